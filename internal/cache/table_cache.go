package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// TableReader is the subset of *sstable.Reader the table cache needs to
// know about in order to close evicted entries; kept narrow here so this
// package does not import internal/sstable (which would create a cycle,
// since sstable depends on cache for block caching).
type TableReader interface {
	Close() error
}

// tableCacheEntry holds one cached reader plus the reference count that
// gates when it's actually safe to close it. refs counts outstanding
// Get/Insert callers that haven't yet Release'd; evicted records that the
// LRU chain itself no longer holds the entry. The reader is closed the
// moment both conditions are true, whichever happens last.
type tableCacheEntry struct {
	reader TableReader

	mu      sync.Mutex
	refs    int32
	evicted bool
}

func (e *tableCacheEntry) acquire() {
	e.mu.Lock()
	e.refs++
	e.mu.Unlock()
}

// TableCache bounds the number of concurrently open sstable file handles,
// the way internal/cache.BlockCache bounds block memory. Unlike the block
// cache, this one is bounded by entry count rather than bytes, since the
// resource it guards is file descriptors, so
// github.com/hashicorp/golang-lru's count-based Cache is a direct fit.
//
// Entries are reference counted (spec.md §4.7's Insert/Lookup/Release/Erase
// contract): an eviction from the LRU chain for capacity reasons marks the
// entry evicted but does not close its reader while a Get/Insert caller
// still holds a reference, so a reader in active use is never closed out
// from under a concurrent ReadAt. byReader is guarded by its own mutex,
// separate from the one guarding calls into the LRU itself, because
// golang-lru invokes the eviction callback synchronously from inside
// Add/Remove/Purge and the callback must not re-enter that lock.
type TableCache struct {
	mu  sync.Mutex
	lru *lru.Cache[uint64, *tableCacheEntry]

	refMu    sync.Mutex
	byReader map[TableReader]*tableCacheEntry
}

// NewTableCache creates a table cache holding up to maxOpenFiles readers.
func NewTableCache(maxOpenFiles int) *TableCache {
	if maxOpenFiles <= 0 {
		maxOpenFiles = 1000
	}
	t := &TableCache{byReader: make(map[TableReader]*tableCacheEntry)}
	c, _ := lru.NewWithEvict(maxOpenFiles, func(_ uint64, e *tableCacheEntry) {
		e.mu.Lock()
		e.evicted = true
		closeNow := e.refs == 0
		e.mu.Unlock()
		if closeNow {
			t.refMu.Lock()
			delete(t.byReader, e.reader)
			t.refMu.Unlock()
			_ = e.reader.Close()
		}
	})
	t.lru = c
	return t
}

// Get returns the reader cached for fileNum, if any, with the caller's
// reference already accounted for. The caller must call Release exactly
// once when it no longer needs the reader.
func (c *TableCache) Get(fileNum uint64) (TableReader, bool) {
	c.mu.Lock()
	e, ok := c.lru.Get(fileNum)
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.acquire()
	return e.reader, true
}

// Insert records a newly opened reader, returning the reader that ends up
// cached (an existing one if a concurrent Insert for the same fileNum won
// the race) with one reference already accounted for; the caller must call
// Release exactly once when done, just as with Get. If an existing entry
// was returned instead of newReader, newReader was never published and
// remains the caller's to close.
func (c *TableCache) Insert(fileNum uint64, newReader TableReader) TableReader {
	c.mu.Lock()
	if e, ok := c.lru.Get(fileNum); ok {
		c.mu.Unlock()
		e.acquire()
		return e.reader
	}
	e := &tableCacheEntry{reader: newReader, refs: 1}
	c.lru.Add(fileNum, e)
	c.mu.Unlock()

	c.refMu.Lock()
	c.byReader[newReader] = e
	c.refMu.Unlock()
	return newReader
}

// Release drops one reference to reader, previously obtained from Get or
// Insert. The reader is closed once its count reaches zero and the entry
// has also been evicted from the LRU chain (or explicitly Erase'd).
func (c *TableCache) Release(reader TableReader) {
	c.refMu.Lock()
	e, ok := c.byReader[reader]
	c.refMu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.refs--
	if e.refs < 0 {
		panic("cache: TableCache reference count underflow")
	}
	done := e.refs == 0 && e.evicted
	e.mu.Unlock()

	if done {
		c.refMu.Lock()
		delete(c.byReader, reader)
		c.refMu.Unlock()
		_ = reader.Close()
	}
}

// Erase removes fileNum from the cache outright, closing its reader once
// every outstanding reference has been released.
func (c *TableCache) Erase(fileNum uint64) {
	c.mu.Lock()
	c.lru.Remove(fileNum)
	c.mu.Unlock()
}

// Close evicts every cached reader, closing each one once its outstanding
// references (if any) have been released.
func (c *TableCache) Close() {
	c.mu.Lock()
	c.lru.Purge()
	c.mu.Unlock()
}
