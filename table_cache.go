// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/sstable"
)

// newTableReader returns the sstable.Reader for fileNum plus a release
// func the caller must invoke exactly once when done with it, opening and
// caching the reader on a miss. Grounded on the classic root
// table_cache.go's shared-reader-by-file-number model, simplified from its
// per-CPU sharded implementation to a single internal/cache.TableCache
// (itself already internally synchronized), since this engine's read path
// doesn't need to avoid a single shared lock at the concurrency the
// teacher was built for. The release indirection is what internal/cache's
// ref-counted TableCache needs to keep an evicted-but-still-in-use reader
// alive until every borrower is done with it.
func (d *DB) newTableReader(fileNum base.FileNum) (r *sstable.Reader, release func(), err error) {
	if cached, ok := d.tableCache.Get(uint64(fileNum)); ok {
		r = cached.(*sstable.Reader)
		return r, func() { d.tableCache.Release(cached) }, nil
	}
	f, err := d.fs.Open(base.MakeFilename(d.dirname, base.FileTypeTable, fileNum))
	if err != nil {
		return nil, nil, err
	}
	newReader, err := sstable.NewReader(f, uint64(fileNum), d.blockCache, sstable.ReaderOptions{
		Compare: d.cmp,
	})
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	cached := d.tableCache.Insert(uint64(fileNum), newReader)
	r = cached.(*sstable.Reader)
	return r, func() { d.tableCache.Release(cached) }, nil
}

// newTableIter opens fileNum and returns a forward-and-backward internal
// iterator over it, satisfying internal/compaction.TableOpener and the
// read path's tableOpener. The returned iterator's Close releases the
// table cache's reference in addition to closing the sstable iterator
// itself, so the cache can safely close an evicted reader's file
// descriptor once every iterator built on it has gone away.
func (d *DB) newTableIter(fileNum base.FileNum) (base.InternalIterator, error) {
	r, release, err := d.newTableReader(fileNum)
	if err != nil {
		return nil, err
	}
	it, err := r.NewIter()
	if err != nil {
		release()
		return nil, err
	}
	return &releasingIter{InternalIterator: it, release: release}, nil
}

// releasingIter decorates an InternalIterator so that Close also releases
// the table cache reference the iterator was built on.
type releasingIter struct {
	base.InternalIterator
	release func()
	done    bool
}

func (it *releasingIter) Close() error {
	err := it.InternalIterator.Close()
	if !it.done {
		it.done = true
		it.release()
	}
	return err
}
