// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"sync/atomic"

	"github.com/strata-db/strata/internal/arenaskl"
	"github.com/strata-db/strata/internal/base"
)

// memTableEntrySize pessimistically bounds the arena bytes a single record
// will consume once written into the memtable's skip list, so a batch's
// total footprint can be reserved up front before any of its entries are
// actually applied.
func memTableEntrySize(keyBytes, valueBytes int) uint32 {
	return arenaskl.MaxNodeSize(uint32(keyBytes)+8, uint32(valueBytes))
}

// A memTable is an in-memory, mutable, append-only layer of the LSM tree.
// Records are added but never removed; deletion is represented by a
// tombstone entry (base.InternalKeyKindDelete), left for higher layers
// (the merging iterator, compaction) to drop once no read can still observe
// it. It is implemented on top of a lock-free, arena-backed skip list (see
// internal/arenaskl), so a memtable's memory footprint is fixed at creation
// time by Options.MemTableSize.
//
// A batch is applied to a memTable in two steps: prepare reserves space and
// is not safe for concurrent use (the write coordinator serializes it
// across batches), while apply inserts the batch's entries and may run
// concurrently with other applies once each has been prepared in sequence
// order. This split lets the coordinator hand sequence numbers out and
// release callers before the (comparatively slow) skip-list insertion has
// actually happened.
//
// refs counts writers currently preparing or applying a batch against this
// memtable; it starts at zero and is only ever nonzero transiently, for the
// duration of one ref/unref pair bracketing a single write. A memtable is
// readyForFlush once it is no longer the mutable one and refs has settled
// back to zero -- i.e. once every write already admitted to it has finished
// landing in the skip list.
type memTable struct {
	cmp       base.Compare
	skl       arenaskl.Skiplist
	emptySize uint32
	reserved  uint32
	refs      int32
	flushedCh chan struct{}
	logNum    base.FileNum
}

// newMemTable returns a new, empty memTable backed by a fresh arena sized
// per o.MemTableSize.
func newMemTable(o *Options, logNum base.FileNum) *memTable {
	o = o.EnsureDefaults()
	m := &memTable{
		cmp:       o.Comparer.Compare,
		flushedCh: make(chan struct{}),
		logNum:    logNum,
	}
	arena := arenaskl.NewArena(uint32(o.MemTableSize))
	skl := arenaskl.NewSkiplist(arena, func(a, b []byte) int {
		return base.DecodedInternalCompare(m.cmp, a, b)
	})
	m.skl = *skl
	m.emptySize = arena.Size()
	return m
}

func (m *memTable) ref() {
	atomic.AddInt32(&m.refs, 1)
}

func (m *memTable) unref() bool {
	switch v := atomic.AddInt32(&m.refs, -1); {
	case v < 0:
		panic("strata: inconsistent memtable reference count")
	case v == 0:
		return true
	default:
		return false
	}
}

func (m *memTable) flushed() chan struct{} {
	return m.flushedCh
}

func (m *memTable) readyForFlush() bool {
	return atomic.LoadInt32(&m.refs) == 0
}

// get returns the value for key as of seqNum, or base.ErrNotFound if the
// memtable has no live entry for it at or below that sequence number
// (either no entry at all, or the newest qualifying entry is a delete
// tombstone). Pass base.SeqNumMax to read the newest entry regardless of
// sequence number.
func (m *memTable) get(key []byte, seqNum base.SeqNum) (value []byte, err error) {
	it := m.skl.NewIter()
	if !it.SeekGE(base.MakeSearchKey(key, seqNum).Encode(make([]byte, len(key)+8))) {
		return nil, base.ErrNotFound
	}
	ikey := base.DecodeInternalKey(it.Key())
	if m.cmp(key, ikey.UserKey) != 0 {
		return nil, base.ErrNotFound
	}
	if ikey.Kind() == base.InternalKeyKindDelete {
		return nil, base.ErrNotFound
	}
	return it.Value(), nil
}

// prepare reserves space for the batch in the memtable's arena and
// references the memtable, preventing it from being flushed until the
// batch has been applied and the caller calls unref. prepare is not safe
// for concurrent use; apply is.
func (m *memTable) prepare(b *Batch) error {
	a := m.skl.Arena()
	if atomic.LoadInt32(&m.refs) == 0 {
		// No other apply is in flight, so the arena's actual usage is an
		// exact accounting of everything reserved so far; resync to it to
		// recover the slack left by earlier entries' over-estimated size.
		m.reserved = a.Size()
	}

	avail := a.Capacity() - m.reserved
	if b.memTableSize > avail {
		return arenaskl.ErrArenaFull
	}
	m.reserved += b.memTableSize

	m.ref()
	return nil
}

// apply inserts every entry of b into the skip list, starting at seqNum and
// incrementing for each entry in turn, matching the sequence numbers the
// write coordinator already assigned when framing the batch.
func (m *memTable) apply(b *Batch, seqNum base.SeqNum) error {
	startSeqNum := seqNum
	for r := b.reader(); ; seqNum++ {
		kind, ukey, value, ok := r.next()
		if !ok {
			break
		}
		ikey := base.MakeInternalKey(ukey, seqNum, kind)
		buf := make([]byte, ikey.Size())
		if err := m.skl.Add(ikey.Encode(buf), value); err != nil {
			return err
		}
	}
	if seqNum != startSeqNum+base.SeqNum(b.count()) {
		panic("strata: inconsistent batch count")
	}
	return nil
}

// newIter returns an iterator over the memtable's entries, unpositioned
// until a Seek/First/Last call. The returned iterator satisfies
// base.InternalIterator via memTableIterator below.
func (m *memTable) newIter() base.InternalIterator {
	it := m.skl.NewIter()
	return &memTableIterator{it: it}
}

func (m *memTable) close() error {
	return nil
}

// empty reports whether the memtable has no entries at all.
func (m *memTable) empty() bool {
	return m.skl.Size() == m.emptySize
}

// memTableIterator adapts arenaskl.Iterator (which deals in raw encoded
// keys) to base.InternalIterator (which deals in decoded base.InternalKey),
// so memtable and sstable iterators can be merged by the same
// compaction/read-path merging iterator.
type memTableIterator struct {
	it arenaskl.Iterator
}

func (i *memTableIterator) SeekGE(key []byte) bool { return i.it.SeekGE(key) }
func (i *memTableIterator) First() bool            { return i.it.First() }
func (i *memTableIterator) Last() bool              { return i.it.Last() }
func (i *memTableIterator) Next() bool              { return i.it.Next() }
func (i *memTableIterator) Prev() bool              { return i.it.Prev() }
func (i *memTableIterator) Valid() bool             { return i.it.Valid() }
func (i *memTableIterator) Key() base.InternalKey   { return base.DecodeInternalKey(i.it.Key()) }
func (i *memTableIterator) Value() []byte           { return i.it.Value() }
func (i *memTableIterator) Error() error            { return nil }
func (i *memTableIterator) Close() error            { return nil }
