// Copyright 2013 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/internal/storage"
)

func writeTestTable(t *testing.T, d *DB, fileNum base.FileNum, keys []string) {
	t.Helper()
	f, err := d.fs.Create(base.MakeFilename(d.dirname, base.FileTypeTable, fileNum))
	require.NoError(t, err)

	w := sstable.NewWriter(f, sstable.NewWriterOptions(sstable.WriterOptions{Compare: d.cmp}))
	for _, k := range keys {
		ikey := base.MakeInternalKey([]byte(k), 1, base.InternalKeyKindSet)
		require.NoError(t, w.Add(ikey, []byte(k+"-value")))
	}
	_, err = w.Close()
	require.NoError(t, err)
}

func TestNewTableReaderCachesByFileNum(t *testing.T) {
	opts := (&Options{FS: storage.NewMem()}).EnsureDefaults()
	d := &DB{
		dirname:    "",
		opts:       opts,
		cmp:        opts.Comparer.Compare,
		fs:         opts.FS,
		blockCache: opts.newBlockCache(),
		tableCache: opts.newTableCache(),
	}
	writeTestTable(t, d, 1, []string{"a", "b", "c"})

	r1, release1, err := d.newTableReader(1)
	require.NoError(t, err)
	defer release1()
	r2, release2, err := d.newTableReader(1)
	require.NoError(t, err)
	defer release2()
	require.Same(t, r1, r2)
}

func TestNewTableIterReadsInOrder(t *testing.T) {
	opts := (&Options{FS: storage.NewMem()}).EnsureDefaults()
	d := &DB{
		dirname:    "",
		opts:       opts,
		cmp:        opts.Comparer.Compare,
		fs:         opts.FS,
		blockCache: opts.newBlockCache(),
		tableCache: opts.newTableCache(),
	}
	writeTestTable(t, d, 1, []string{"a", "b", "c"})

	it, err := d.newTableIter(1)
	require.NoError(t, err)
	defer it.Close()

	var got []string
	for valid := it.First(); valid; valid = it.Next() {
		got = append(got, string(it.Key().UserKey))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}
