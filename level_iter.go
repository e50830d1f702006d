// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/manifest"
)

// tableOpener opens a forward-and-backward internal iterator over an
// sstable named by file number. d.newTableIter satisfies this.
type tableOpener func(fileNum base.FileNum) (base.InternalIterator, error)

// levelIter presents the (non-overlapping, key-sorted) sstables of a single
// L1+ level as one InternalIterator, opening at most one table at a time
// rather than the whole level up front -- a level can hold far more files
// than a read ever touches. This is a much smaller relative of the classic
// root levelIter: that one also manages range-deletion interleaving and
// block-property filters, neither of which this engine's two-kind (Set,
// Delete) key space has a use for, so iteration here is a plain walk across
// file boundaries.
type levelIter struct {
	cmp   base.Compare
	open  tableOpener
	files []*manifest.FileMetadata

	index int
	iter  base.InternalIterator
	err   error
}

var _ base.InternalIterator = (*levelIter)(nil)

// newLevelIter returns an iterator over files, which must already be sorted
// by key range (as manifest.Version.Files guarantees for levels >= 1).
func newLevelIter(cmp base.Compare, open tableOpener, files []*manifest.FileMetadata) *levelIter {
	return &levelIter{cmp: cmp, open: open, files: files, index: -1}
}

// loadFile opens the table at index i, closing whatever was previously
// open. i outside [0, len(files)) leaves the iterator positioned on no
// table at all (Valid reports false).
func (l *levelIter) loadFile(i int) bool {
	if l.iter != nil {
		if err := l.iter.Close(); err != nil && l.err == nil {
			l.err = err
		}
		l.iter = nil
	}
	l.index = i
	if i < 0 || i >= len(l.files) {
		return false
	}
	iter, err := l.open(l.files[i].FileNum)
	if err != nil {
		l.err = err
		return false
	}
	l.iter = iter
	return true
}

// findFile returns the index of the one file whose key range could contain
// key, or len(files) if key falls after every file (forward must then stop;
// there is nothing to load).
func (l *levelIter) findFile(key []byte) int {
	lo, hi := 0, len(l.files)
	for lo < hi {
		mid := (lo + hi) / 2
		if l.cmp(l.files[mid].Largest.UserKey, key) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

func (l *levelIter) SeekGE(key []byte) bool {
	i := l.findFile(key)
	if !l.loadFile(i) {
		return false
	}
	if !l.iter.SeekGE(key) {
		return l.Next()
	}
	return true
}

func (l *levelIter) First() bool {
	if !l.loadFile(0) {
		return false
	}
	if !l.iter.First() {
		return l.Next()
	}
	return true
}

func (l *levelIter) Last() bool {
	if !l.loadFile(len(l.files) - 1) {
		return false
	}
	if !l.iter.Last() {
		return l.Prev()
	}
	return true
}

func (l *levelIter) Next() bool {
	for {
		if l.iter != nil && l.iter.Next() {
			return true
		}
		if l.iter != nil {
			if l.err = l.iter.Error(); l.err != nil {
				return false
			}
		}
		if !l.loadFile(l.index + 1) {
			return false
		}
		if l.iter.First() {
			return true
		}
	}
}

func (l *levelIter) Prev() bool {
	for {
		if l.iter != nil && l.iter.Prev() {
			return true
		}
		if l.iter != nil {
			if l.err = l.iter.Error(); l.err != nil {
				return false
			}
		}
		if !l.loadFile(l.index - 1) {
			return false
		}
		if l.iter.Last() {
			return true
		}
	}
}

func (l *levelIter) Valid() bool {
	return l.iter != nil && l.err == nil && l.iter.Valid()
}

func (l *levelIter) Key() base.InternalKey {
	return l.iter.Key()
}

func (l *levelIter) Value() []byte {
	return l.iter.Value()
}

func (l *levelIter) Error() error {
	if l.err != nil {
		return l.err
	}
	if l.iter == nil {
		return nil
	}
	return l.iter.Error()
}

func (l *levelIter) Close() error {
	if l.iter != nil {
		if err := l.iter.Close(); err != nil && l.err == nil {
			l.err = err
		}
		l.iter = nil
	}
	return l.err
}
