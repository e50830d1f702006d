// Package cache implements the engine's block cache: a byte-budgeted,
// sharded LRU holding decompressed sstable data blocks, indexed by (file
// number, block offset). Entries carry no reference count: eviction drops a
// block whether or not a reader still holds its bytes. It is grounded on the classic
// single-list cache.BlockCache, generalized to multiple shards (so Get/Insert
// under concurrent load does not serialize on one mutex) and hashed with
// xxhash rather than a plain struct key.
package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const numShards = 16

type cacheKey struct {
	FileNum uint64
	Offset  uint64
}

type entry struct {
	key        cacheKey
	value      []byte
	next, prev *entry
}

// entryList is a circular doubly linked list, matching the classic
// container/list-derived implementation but specialized to *entry so a block
// insertion costs one allocation instead of two.
type entryList struct {
	root entry
}

func (l *entryList) init() { l.root.next, l.root.prev = &l.root, &l.root }

func (l *entryList) empty() bool { return l.root.next == &l.root }

func (l *entryList) back() *entry { return l.root.prev }

func (l *entryList) insertAfter(e, at *entry) {
	n := at.next
	at.next, e.prev = e, at
	e.next, n.prev = n, e
}

func (l *entryList) remove(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.next, e.prev = nil, nil
}

func (l *entryList) pushFront(e *entry) { l.insertAfter(e, &l.root) }

func (l *entryList) moveToFront(e *entry) {
	if l.root.next == e {
		return
	}
	l.remove(e)
	l.insertAfter(e, &l.root)
}

// shard is one independently-locked LRU partition of the cache.
type shard struct {
	mu      sync.Mutex
	maxSize int64
	size    int64
	m       map[cacheKey]*entry
	lru     entryList
}

// BlockCache is a sharded, byte-budgeted LRU cache of sstable data blocks.
// A nil *BlockCache is valid and behaves as an always-miss cache, so callers
// can pass a nil cache when Options.Cache is unset without special-casing
// every call site.
type BlockCache struct {
	shards [numShards]shard
}

// NewBlockCache creates a cache with the given total byte budget, split
// evenly across shards.
func NewBlockCache(maxSize int64) *BlockCache {
	c := &BlockCache{}
	perShard := maxSize / numShards
	if perShard <= 0 {
		perShard = 1
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.maxSize = perShard
		s.m = make(map[cacheKey]*entry)
		s.lru.init()
	}
	return c
}

func shardFor(c *BlockCache, k cacheKey) *shard {
	h := xxhash.Sum64(encodeKey(k))
	return &c.shards[h%numShards]
}

func encodeKey(k cacheKey) []byte {
	var buf [16]byte
	putUint64(buf[:8], k.FileNum)
	putUint64(buf[8:], k.Offset)
	return buf[:]
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// Get returns the cached block for (fileNum, offset), or nil on a miss.
func (c *BlockCache) Get(fileNum, offset uint64) []byte {
	if c == nil {
		return nil
	}
	k := cacheKey{fileNum, offset}
	s := shardFor(c, k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[k]; ok {
		s.lru.moveToFront(e)
		return e.value
	}
	return nil
}

// Insert adds a block to the cache, returning the canonical stored slice
// (which may be an earlier caller's value if a race inserted first).
func (c *BlockCache) Insert(fileNum, offset uint64, value []byte) []byte {
	if c == nil {
		return value
	}
	k := cacheKey{fileNum, offset}
	s := shardFor(c, k)
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.m[k]; ok {
		s.lru.moveToFront(e)
		return e.value
	}
	e := &entry{key: k, value: value}
	s.m[k] = e
	s.lru.pushFront(e)
	s.size += int64(len(value))
	s.evict()
	return value
}

// EvictFile drops every block belonging to fileNum, called when a table is
// deleted by compaction so its cached blocks do not linger uselessly.
func (c *BlockCache) EvictFile(fileNum uint64) {
	if c == nil {
		return
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, e := range s.m {
			if k.FileNum == fileNum {
				s.lru.remove(e)
				delete(s.m, k)
				s.size -= int64(len(e.value))
			}
		}
		s.mu.Unlock()
	}
}

func (s *shard) evict() {
	for s.size > s.maxSize && !s.lru.empty() {
		e := s.lru.back()
		s.lru.remove(e)
		delete(s.m, e.key)
		s.size -= int64(len(e.value))
	}
}
