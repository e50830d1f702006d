// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"github.com/cockroachdb/errors"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/manifest"
)

// errInvalidInternalKeyKind is returned by an Iterator that encounters a
// kind other than InternalKeyKindSet/InternalKeyKindDelete, which should be
// impossible: those are the only two kinds any writer in this engine ever
// produces.
var errInvalidInternalKeyKind = errors.New("strata: invalid internal key kind")

// dbIterPos records which direction the underlying merged iterator is
// already positioned relative to the last key dbIter/Iterator returned, so
// Next/Prev know how many user keys to skip before searching again.
type dbIterPos int8

const (
	dbIterCur  dbIterPos = 0
	dbIterNext dbIterPos = 1
	dbIterPrev dbIterPos = -1
)

// Iterator iterates over a consistent point-in-time view of a DB (or of a
// Snapshot, or of an indexed Batch layered on top of one): it resolves
// duplicate user keys across memtables, L0 sstables and per-level iterators
// down to at most one entry each, skips delete tombstones, and hides any
// entry newer than the sequence number it was opened at (except for an
// indexed batch's own uncommitted writes, which are always visible to that
// batch's own iterator).
//
// An Iterator must be positioned with SeekGE, SeekLT, First or Last before
// Key/Value are meaningful, and must be closed to release the memtables and
// sstables it pins.
type Iterator struct {
	opts   *ReadOptions
	cmp    base.Compare
	iter   base.InternalIterator
	seqNum base.SeqNum
	state  *readState

	err    error
	key    []byte
	keyBuf []byte
	value  []byte
	valid  bool
	pos    dbIterPos
}

// newIter builds the merged internal iterator stack backing a public
// Iterator: an indexed batch's own uncommitted writes (if any), every
// memtable newest to oldest, every L0 file (each may overlap any other, so
// each gets its own source), and one levelIter per non-empty L1+ level.
// Duplicate internal keys across these sources are resolved by mergingIter
// on ordinary InternalKey order -- higher sequence number (and a batch's
// always-larger provisional sequence number) sorts first -- so the layering
// order among sources doesn't itself need to encode recency.
func (d *DB) newIter(b *Batch, opts *ReadOptions, seqNum base.SeqNum) *Iterator {
	state := d.loadReadState()

	var iters []base.InternalIterator
	if b != nil && b.Indexed() {
		iters = append(iters, b.NewIter())
	}
	for i := len(state.memtables) - 1; i >= 0; i-- {
		iters = append(iters, state.memtables[i].newIter())
	}

	var err error
	v := state.current
	for i := len(v.Files[0]) - 1; i >= 0; i-- {
		it, openErr := d.newTableIter(v.Files[0][i].FileNum)
		if openErr != nil {
			err = openErr
			break
		}
		iters = append(iters, it)
	}
	for level := 1; err == nil && level < manifest.NumLevels; level++ {
		if len(v.Files[level]) == 0 {
			continue
		}
		iters = append(iters, newLevelIter(d.cmp, d.newTableIter, v.Files[level]))
	}

	if err != nil {
		for _, it := range iters {
			it.Close()
		}
		state.unref()
		return &Iterator{err: err}
	}

	return &Iterator{
		opts:   opts,
		cmp:    d.cmp,
		iter:   newMergingIter(d.cmp, iters...),
		seqNum: seqNum,
		state:  state,
	}
}

// findNextEntry advances past every entry this iterator must not surface --
// tombstones, and anything newer than i.seqNum that isn't a batch's own
// provisional write -- stopping on the first entry it should return, or
// leaving Valid false once the underlying iterator (and any upper bound)
// is exhausted.
func (i *Iterator) findNextEntry() bool {
	upperBound := i.opts.GetUpperBound()
	i.valid = false
	i.pos = dbIterCur

	for i.iter.Valid() {
		key := i.iter.Key()
		if upperBound != nil && i.cmp(key.UserKey, upperBound) >= 0 {
			break
		}

		if seqNum := key.SeqNum(); seqNum > i.seqNum && seqNum&seqNumBatchBit == 0 {
			i.iter.Next()
			continue
		}

		switch key.Kind() {
		case base.InternalKeyKindDelete:
			i.nextUserKey()
			continue
		case base.InternalKeyKindSet:
			i.keyBuf = append(i.keyBuf[:0], key.UserKey...)
			i.key = i.keyBuf
			i.value = i.iter.Value()
			i.valid = true
			return true
		default:
			i.err = errInvalidInternalKeyKind
			return false
		}
	}
	return false
}

// nextUserKey advances past every remaining entry for the current user key,
// landing on the first entry (if any) of the next one.
func (i *Iterator) nextUserKey() {
	if i.iter.Valid() {
		if !i.valid {
			i.keyBuf = append(i.keyBuf[:0], i.iter.Key().UserKey...)
			i.key = i.keyBuf
		}
		i.iter.Next()
		for i.iter.Valid() && i.cmp(i.key, i.iter.Key().UserKey) == 0 {
			i.iter.Next()
		}
	} else {
		i.iter.First()
	}
}

func (i *Iterator) findPrevEntry() bool {
	lowerBound := i.opts.GetLowerBound()
	i.valid = false
	i.pos = dbIterCur

	for i.iter.Valid() {
		key := i.iter.Key()
		if lowerBound != nil && i.cmp(key.UserKey, lowerBound) < 0 {
			break
		}

		if seqNum := key.SeqNum(); seqNum > i.seqNum && seqNum&seqNumBatchBit == 0 {
			if i.valid {
				i.pos = dbIterCur
				return true
			}
			i.iter.Prev()
			continue
		}

		if i.valid && i.cmp(key.UserKey, i.key) < 0 {
			i.pos = dbIterPrev
			return true
		}

		switch key.Kind() {
		case base.InternalKeyKindDelete:
			i.value = nil
			i.valid = false
			i.iter.Prev()
			continue
		case base.InternalKeyKindSet:
			i.keyBuf = append(i.keyBuf[:0], key.UserKey...)
			i.key = i.keyBuf
			i.value = i.iter.Value()
			i.valid = true
			i.iter.Prev()
			continue
		default:
			i.err = errInvalidInternalKeyKind
			return false
		}
	}

	if i.valid {
		i.pos = dbIterPrev
		return true
	}
	return false
}

func (i *Iterator) prevUserKey() {
	if i.iter.Valid() {
		if !i.valid {
			i.keyBuf = append(i.keyBuf[:0], i.iter.Key().UserKey...)
			i.key = i.keyBuf
		}
		i.iter.Prev()
		for i.iter.Valid() && i.cmp(i.key, i.iter.Key().UserKey) == 0 {
			i.iter.Prev()
		}
	} else {
		i.iter.Last()
	}
}

// SeekGE moves the iterator to the first key >= key (clamped to the
// iterator's lower bound, if any).
func (i *Iterator) SeekGE(key []byte) bool {
	if i.err != nil {
		return false
	}
	if lowerBound := i.opts.GetLowerBound(); lowerBound != nil && i.cmp(key, lowerBound) < 0 {
		key = lowerBound
	}
	i.iter.SeekGE(key)
	return i.findNextEntry()
}

// SeekLT moves the iterator to the last key < key (clamped to the
// iterator's upper bound, if any).
func (i *Iterator) SeekLT(key []byte) bool {
	if i.err != nil {
		return false
	}
	if upperBound := i.opts.GetUpperBound(); upperBound != nil && i.cmp(key, upperBound) >= 0 {
		key = upperBound
	}
	i.iter.SeekGE(key)
	if !i.iter.Valid() {
		i.iter.Last()
	} else {
		i.iter.Prev()
	}
	return i.findPrevEntry()
}

// First moves the iterator to the first key (or the iterator's lower
// bound, if one is set).
func (i *Iterator) First() bool {
	if i.err != nil {
		return false
	}
	if lowerBound := i.opts.GetLowerBound(); lowerBound != nil {
		return i.SeekGE(lowerBound)
	}
	i.iter.First()
	return i.findNextEntry()
}

// Last moves the iterator to the last key (or just before the iterator's
// upper bound, if one is set).
func (i *Iterator) Last() bool {
	if i.err != nil {
		return false
	}
	if upperBound := i.opts.GetUpperBound(); upperBound != nil {
		return i.SeekLT(upperBound)
	}
	i.iter.Last()
	return i.findPrevEntry()
}

// Next moves the iterator to the next key in increasing order.
func (i *Iterator) Next() bool {
	if i.err != nil {
		return false
	}
	switch i.pos {
	case dbIterCur:
		i.nextUserKey()
	case dbIterPrev:
		i.nextUserKey()
		i.nextUserKey()
	case dbIterNext:
	}
	return i.findNextEntry()
}

// Prev moves the iterator to the previous key in decreasing order.
func (i *Iterator) Prev() bool {
	if i.err != nil {
		return false
	}
	switch i.pos {
	case dbIterCur:
		i.prevUserKey()
	case dbIterNext:
		i.prevUserKey()
		i.prevUserKey()
	case dbIterPrev:
	}
	return i.findPrevEntry()
}

// Key returns the current entry's user key. Valid must be true.
func (i *Iterator) Key() []byte { return i.key }

// Value returns the current entry's value. Valid must be true.
func (i *Iterator) Value() []byte { return i.value }

// Valid reports whether the iterator is positioned at an entry.
func (i *Iterator) Valid() bool { return i.valid }

// Error returns any error encountered during iteration or while opening the
// iterator's underlying sstables.
func (i *Iterator) Error() error { return i.err }

// Close releases every resource the iterator holds -- its merged internal
// iterator stack and its pin on the readState (memtables and Version) it
// was built from. Close must be called exactly once.
func (i *Iterator) Close() error {
	if i.iter != nil {
		if err := i.iter.Close(); err != nil && i.err == nil {
			i.err = err
		}
	}
	if i.state != nil {
		i.state.unref()
		i.state = nil
	}
	return i.err
}
