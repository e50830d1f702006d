// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/batchskl"
)

const (
	batchHeaderLen       = 12
	batchInitialSize     = 1 << 10
	batchMaxRetainedSize = 1 << 20
	maxVarintLen32       = 5
)

// seqNumBatchBit marks a sequence number as a provisional, batch-local
// ordinal (a record's byte offset into the batch's own buffer) rather than
// a real sequence number handed out by the write coordinator. It lets an
// indexed batch's entries be ordered with the same
// base.DecodedInternalCompare used everywhere else in the engine: a
// later-added entry for a given user key gets a larger provisional
// "sequence number", and since InternalCompare sorts higher sequence
// numbers first, it naturally wins reads against an earlier entry for the
// same key within the batch -- last write in a batch wins, without any
// special-casing in the comparator.
const seqNumBatchBit base.SeqNum = 1 << 40

// ErrNotIndexed is returned by Batch.Get and Batch.NewIter when called on a
// batch that was not constructed with indexing enabled.
var ErrNotIndexed = errors.New("strata: batch is not indexed")

// ErrInvalidBatch indicates a batch's wire-format framing is corrupt.
var ErrInvalidBatch = errors.New("strata: invalid batch")

// batchStorage implements batchskl.Storage over a Batch's own wire-format
// buffer, synthesizing the internal key each index node is compared by
// rather than storing it a second time.
type batchStorage struct {
	data []byte
	cmp  base.Compare
}

// Get implements batchskl.Storage.
func (s *batchStorage) Get(offset uint32) []byte {
	kind, key, _, ok := decodeBatchEntry(s.data[offset:])
	if !ok {
		panic("strata: corrupt batch entry")
	}
	ikey := base.MakeInternalKey(key, seqNumBatchBit|base.SeqNum(offset), kind)
	return ikey.Encode(make([]byte, ikey.Size()))
}

func (s *batchStorage) compare(a, b []byte) int {
	return base.DecodedInternalCompare(s.cmp, a, b)
}

// Batch is a sequence of Set and Delete operations applied atomically: the
// write coordinator assigns every entry in the batch a consecutive real
// sequence number and appends the whole batch to the write-ahead log as one
// record before applying it to the memtable (spec.md §3 "Batch").
//
// A batch built with newIndexedBatch additionally maintains an in-memory
// index (internal/batchskl) of its own entries, so Get and NewIter can
// observe a batch's own not-yet-committed writes layered over the rest of
// the database -- the same trick the teacher's classic core uses.
type Batch struct {
	batchStorage

	memTableSize uint32

	db    *DB
	index *batchskl.Skiplist

	commit  sync.WaitGroup
	applied uint32 // accessed atomically
}

var batchPool = sync.Pool{
	New: func() interface{} { return &Batch{} },
}

func newBatch(db *DB) *Batch {
	b := batchPool.Get().(*Batch)
	b.db = db
	return b
}

func newIndexedBatch(db *DB, cmp base.Compare) *Batch {
	b := batchPool.Get().(*Batch)
	b.db = db
	b.cmp = cmp
	b.index = batchskl.NewSkiplist(&b.batchStorage, b.compare)
	return b
}

func (b *Batch) release() {
	b.reset()
	b.cmp = nil
	b.memTableSize = 0
	b.db = nil
	b.commit = sync.WaitGroup{}
	b.index = nil
	batchPool.Put(b)
}

// Indexed reports whether the batch supports Get and NewIter.
func (b *Batch) Indexed() bool {
	return b.index != nil
}

func (b *Batch) init(cap int) {
	n := batchInitialSize
	for n < cap {
		n *= 2
	}
	b.data = make([]byte, n)
	b.setSeqNum(0)
	b.setCount(0)
	b.data = b.data[:batchHeaderLen]
}

func (b *Batch) reset() {
	if b.data == nil {
		return
	}
	if cap(b.data) > batchMaxRetainedSize {
		b.data = nil
		return
	}
	b.data = b.data[:batchHeaderLen]
	b.setSeqNum(0)
	b.setCount(0)
}

// Set adds a put of key/value to the batch.
//
// It is safe to modify the contents of the arguments after Set returns.
func (b *Batch) Set(key, value []byte) error {
	if len(b.data) == 0 {
		b.init(len(key) + len(value) + 2*binary.MaxVarintLen64 + batchHeaderLen)
	}
	if !b.increment() {
		return ErrInvalidBatch
	}
	offset := b.encodeKeyValue(key, value, base.InternalKeyKindSet)
	if b.index != nil {
		b.index.Add(offset)
	}
	b.memTableSize += memTableEntrySize(len(key), len(value))
	return nil
}

// Delete adds a deletion of key to the batch.
//
// It is safe to modify the contents of the arguments after Delete returns.
func (b *Batch) Delete(key []byte) error {
	if len(b.data) == 0 {
		b.init(len(key) + binary.MaxVarintLen64 + batchHeaderLen)
	}
	if !b.increment() {
		return ErrInvalidBatch
	}
	pos := len(b.data)
	offset := uint32(pos)
	b.grow(1 + maxVarintLen32 + len(key))
	b.data[pos] = byte(base.InternalKeyKindDelete)
	pos, varlen := b.copyStr(pos+1, key)
	b.data = b.data[:len(b.data)-(maxVarintLen32-varlen)]
	if b.index != nil {
		b.index.Add(offset)
	}
	b.memTableSize += memTableEntrySize(len(key), 0)
	return nil
}

func (b *Batch) encodeKeyValue(key, value []byte, kind base.InternalKeyKind) uint32 {
	pos := len(b.data)
	offset := uint32(pos)
	b.grow(1 + 2*maxVarintLen32 + len(key) + len(value))
	b.data[pos] = byte(kind)
	pos, varlen1 := b.copyStr(pos+1, key)
	_, varlen2 := b.copyStr(pos, value)
	b.data = b.data[:len(b.data)-(2*maxVarintLen32-varlen1-varlen2)]
	return offset
}

// Get returns the value for key as observed through this batch's own
// uncommitted writes layered over the underlying database. It returns
// ErrNotIndexed if the batch was not constructed with indexing enabled.
func (b *Batch) Get(key []byte) ([]byte, error) {
	if b.index == nil {
		return nil, ErrNotIndexed
	}
	return b.db.getWithBatch(key, b)
}

// get returns the newest value recorded for key within the batch's own
// uncommitted entries, or base.ErrNotFound if the batch has no entry for
// it. Used by getWithBatch to let an indexed batch observe its own writes
// before they are committed.
func (b *Batch) get(key []byte) ([]byte, error) {
	if b.index == nil {
		return nil, base.ErrNotFound
	}
	it := &batchIter{cmp: b.cmp, storage: &b.batchStorage, iter: b.index.NewIter()}
	if !it.SeekGE(key) {
		return nil, base.ErrNotFound
	}
	ikey := it.Key()
	if b.cmp(ikey.UserKey, key) != 0 {
		return nil, base.ErrNotFound
	}
	if ikey.Kind() == base.InternalKeyKindDelete {
		return nil, base.ErrNotFound
	}
	return it.Value(), nil
}

// NewIter returns an internal iterator over the batch's own entries, in key
// order, for merging with the rest of the read path. Returns an iterator
// reporting ErrNotIndexed if the batch was not constructed with indexing
// enabled.
func (b *Batch) NewIter() base.InternalIterator {
	if b.index == nil {
		return &errorIter{err: ErrNotIndexed}
	}
	return &batchIter{cmp: b.cmp, storage: &b.batchStorage, iter: b.index.NewIter()}
}

// Repr returns the batch's wire-format representation: the 12-byte header
// (sequence number, count) followed by its framed entries. It is not safe
// to modify the returned slice.
func (b *Batch) Repr() []byte {
	return b.data
}

// Count returns the number of entries in the batch.
func (b *Batch) Count() uint32 {
	return b.count()
}

// Commit applies the batch to its parent DB, waiting for it to be applied
// (and, if opts requests it, synced) before returning.
func (b *Batch) Commit(opts *WriteOptions) error {
	return b.db.Apply(b, opts)
}

// Close discards the batch, returning it to the pool of reusable batches.
func (b *Batch) Close() error {
	b.release()
	return nil
}

func (b *Batch) seqNumData() []byte { return b.data[:8] }
func (b *Batch) countData() []byte  { return b.data[8:12] }

func (b *Batch) setSeqNum(seqNum base.SeqNum) {
	binary.LittleEndian.PutUint64(b.seqNumData(), uint64(seqNum))
}

func (b *Batch) seqNum() base.SeqNum {
	return base.SeqNum(binary.LittleEndian.Uint64(b.seqNumData()))
}

func (b *Batch) setCount(v uint32) {
	binary.LittleEndian.PutUint32(b.countData(), v)
}

func (b *Batch) count() uint32 {
	return binary.LittleEndian.Uint32(b.countData())
}

// increment bumps the batch's entry count, reporting false (and leaving the
// count unchanged) on overflow past the maximum representable count.
func (b *Batch) increment() bool {
	p := b.countData()
	for i := range p {
		p[i]++
		if p[i] != 0x00 {
			return true
		}
	}
	p[0], p[1], p[2], p[3] = 0xff, 0xff, 0xff, 0xff
	return false
}

// append copies src's entries, excluding its 12-byte header, onto the end
// of b and folds src's count into b's. Used by the write coordinator to
// merge a run of queued batches into a single physical write.
func (b *Batch) append(src *Batch) {
	n := len(src.data) - batchHeaderLen
	if n <= 0 {
		return
	}
	off := len(b.data)
	b.grow(n)
	copy(b.data[off:], src.data[batchHeaderLen:])
	b.setCount(b.count() + src.count())
	b.memTableSize += src.memTableSize
}

func (b *Batch) grow(n int) {
	newSize := len(b.data) + n
	if newSize > cap(b.data) {
		newCap := 2 * cap(b.data)
		for newCap < newSize {
			newCap *= 2
		}
		newData := make([]byte, len(b.data), newCap)
		copy(newData, b.data)
		b.data = newData
	}
	b.data = b.data[:newSize]
}

func putUvarint32(buf []byte, x uint32) int {
	i := 0
	for x >= 0x80 {
		buf[i] = byte(x) | 0x80
		x >>= 7
		i++
	}
	buf[i] = byte(x)
	return i + 1
}

func (b *Batch) copyStr(pos int, s []byte) (int, int) {
	n := putUvarint32(b.data[pos:], uint32(len(s)))
	return pos + n + copy(b.data[pos+n:], s), n
}

// reader returns a batchReader over the batch's framed entries, in the
// order they were added.
func (b *Batch) reader() batchReader {
	return b.data[batchHeaderLen:]
}

// setRepr installs data, a previously-written Repr, as the batch's contents
// (used to replay a record read back from the write-ahead log) and
// recomputes memTableSize by walking the now-decoded entries, since that
// budget was never persisted alongside the wire format.
func (b *Batch) setRepr(data []byte) error {
	if len(data) < batchHeaderLen {
		return ErrInvalidBatch
	}
	b.data = data
	b.memTableSize = 0
	for r := b.reader(); ; {
		_, key, value, ok := r.next()
		if !ok {
			break
		}
		b.memTableSize += memTableEntrySize(len(key), len(value))
	}
	return nil
}

func decodeBatchEntry(p []byte) (kind base.InternalKeyKind, key, value []byte, ok bool) {
	if len(p) == 0 {
		return 0, nil, nil, false
	}
	kind, p = base.InternalKeyKind(p[0]), p[1:]
	if kind > base.InternalKeyKindMax {
		return 0, nil, nil, false
	}
	p, key, ok = batchDecodeStr(p)
	if !ok {
		return 0, nil, nil, false
	}
	if kind == base.InternalKeyKindSet {
		_, value, ok = batchDecodeStr(p)
		if !ok {
			return 0, nil, nil, false
		}
	}
	return kind, key, value, true
}

func batchDecodeStr(data []byte) (rest, s []byte, ok bool) {
	v, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, nil, false
	}
	data = data[n:]
	if v > uint64(len(data)) {
		return nil, nil, false
	}
	return data[v:], data[:v], true
}

// batchReader sequentially decodes a batch's framed entries.
type batchReader []byte

func (r *batchReader) next() (kind base.InternalKeyKind, key, value []byte, ok bool) {
	p := *r
	if len(p) == 0 {
		return 0, nil, nil, false
	}
	kind, p = base.InternalKeyKind(p[0]), p[1:]
	if kind > base.InternalKeyKindMax {
		*r = nil
		return 0, nil, nil, false
	}
	var rest []byte
	rest, key, ok = batchDecodeStr(p)
	if !ok {
		*r = nil
		return 0, nil, nil, false
	}
	if kind == base.InternalKeyKindSet {
		rest, value, ok = batchDecodeStr(rest)
		if !ok {
			*r = nil
			return 0, nil, nil, false
		}
	}
	*r = rest
	return kind, key, value, true
}

// batchIter adapts an indexed batch's batchskl.Iterator to
// base.InternalIterator, resolving each node's offset back through
// batchStorage to get the decoded key and, when present, value bytes.
type batchIter struct {
	cmp     base.Compare
	storage *batchStorage
	iter    batchskl.Iterator
}

func (i *batchIter) SeekGE(key []byte) bool {
	search := base.MakeSearchKey(key, seqNumBatchBit|base.SeqNum(^uint32(0)))
	return i.iter.SeekGE(search.Encode(make([]byte, search.Size())))
}
func (i *batchIter) First() bool { return i.iter.First() }
func (i *batchIter) Last() bool  { return i.iter.Last() }
func (i *batchIter) Next() bool  { return i.iter.Next() }
func (i *batchIter) Prev() bool  { return i.iter.Prev() }
func (i *batchIter) Valid() bool { return i.iter.Valid() }

func (i *batchIter) Key() base.InternalKey {
	return base.DecodeInternalKey(i.iter.Key())
}

func (i *batchIter) Value() []byte {
	_, _, value, _ := decodeBatchEntry(i.storage.data[i.iter.Offset():])
	return value
}

func (i *batchIter) Error() error { return nil }
func (i *batchIter) Close() error { return nil }

// errorIter is a base.InternalIterator that always reports err, used so a
// batch built without indexing can still satisfy the interface when asked
// for an iterator.
type errorIter struct{ err error }

func (i *errorIter) SeekGE(key []byte) bool     { return false }
func (i *errorIter) First() bool                { return false }
func (i *errorIter) Last() bool                 { return false }
func (i *errorIter) Next() bool                 { return false }
func (i *errorIter) Prev() bool                 { return false }
func (i *errorIter) Valid() bool                { return false }
func (i *errorIter) Key() base.InternalKey      { return base.InternalKey{} }
func (i *errorIter) Value() []byte              { return nil }
func (i *errorIter) Error() error                { return i.err }
func (i *errorIter) Close() error                { return i.err }
