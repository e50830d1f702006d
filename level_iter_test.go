// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/manifest"
	"github.com/strata-db/strata/internal/storage"
)

func newTestDBForIters(t *testing.T) *DB {
	t.Helper()
	opts := (&Options{FS: storage.NewMem()}).EnsureDefaults()
	return &DB{
		dirname:    "",
		opts:       opts,
		cmp:        opts.Comparer.Compare,
		fs:         opts.FS,
		blockCache: opts.newBlockCache(),
		tableCache: opts.newTableCache(),
	}
}

func fileMeta(fileNum base.FileNum, smallest, largest string) *manifest.FileMetadata {
	return &manifest.FileMetadata{
		FileNum:  fileNum,
		Smallest: base.MakeInternalKey([]byte(smallest), 1, base.InternalKeyKindSet),
		Largest:  base.MakeInternalKey([]byte(largest), 1, base.InternalKeyKindSet),
	}
}

func TestLevelIterWalksFilesInOrder(t *testing.T) {
	d := newTestDBForIters(t)
	writeTestTable(t, d, 1, []string{"a", "b"})
	writeTestTable(t, d, 2, []string{"c", "d"})

	files := []*manifest.FileMetadata{
		fileMeta(1, "a", "b"),
		fileMeta(2, "c", "d"),
	}
	l := newLevelIter(d.cmp, d.newTableIter, files)
	defer l.Close()

	var got []string
	for valid := l.First(); valid; valid = l.Next() {
		got = append(got, string(l.Key().UserKey))
	}
	require.Equal(t, []string{"a", "b", "c", "d"}, got)
	require.NoError(t, l.Error())
}

func TestLevelIterReverseWalk(t *testing.T) {
	d := newTestDBForIters(t)
	writeTestTable(t, d, 1, []string{"a", "b"})
	writeTestTable(t, d, 2, []string{"c", "d"})

	files := []*manifest.FileMetadata{
		fileMeta(1, "a", "b"),
		fileMeta(2, "c", "d"),
	}
	l := newLevelIter(d.cmp, d.newTableIter, files)
	defer l.Close()

	var got []string
	for valid := l.Last(); valid; valid = l.Prev() {
		got = append(got, string(l.Key().UserKey))
	}
	require.Equal(t, []string{"d", "c", "b", "a"}, got)
}

func TestLevelIterSeekGEFindsCorrectFile(t *testing.T) {
	d := newTestDBForIters(t)
	writeTestTable(t, d, 1, []string{"a", "b"})
	writeTestTable(t, d, 2, []string{"e", "f"})

	files := []*manifest.FileMetadata{
		fileMeta(1, "a", "b"),
		fileMeta(2, "e", "f"),
	}
	l := newLevelIter(d.cmp, d.newTableIter, files)
	defer l.Close()

	require.True(t, l.SeekGE([]byte("c")))
	require.Equal(t, "e", string(l.Key().UserKey))

	require.False(t, l.SeekGE([]byte("z")))
}
