// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata"
)

func TestBatchCommitIsAtomic(t *testing.T) {
	d := open(t, nil)

	b := d.NewBatch()
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, b.Set([]byte("b"), []byte("2")))
	require.NoError(t, b.Delete([]byte("c")))
	require.EqualValues(t, 3, b.Count())
	require.NoError(t, b.Commit(strata.Sync))

	v, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	v, err = d.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)
}

func TestIndexedBatchSeesItsOwnUncommittedWrites(t *testing.T) {
	d := open(t, nil)
	require.NoError(t, d.Set([]byte("a"), []byte("committed"), nil))

	b := d.NewIndexedBatch()
	defer b.Close()

	require.NoError(t, b.Set([]byte("a"), []byte("pending")))
	require.NoError(t, b.Set([]byte("b"), []byte("new")))

	v, err := b.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("pending"), v)

	v, err = b.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)

	// The batch's writes are not yet visible to the DB until committed.
	v, err = d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("committed"), v)
	_, err = d.Get([]byte("b"))
	require.ErrorIs(t, err, strata.ErrNotFound)

	require.NoError(t, b.Commit(strata.Sync))
	v, err = d.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestUnindexedBatchGetReturnsErrNotIndexed(t *testing.T) {
	d := open(t, nil)
	b := d.NewBatch()
	defer b.Close()

	_, err := b.Get([]byte("a"))
	require.ErrorIs(t, err, strata.ErrNotIndexed)
}

func TestLastWriteInABatchWins(t *testing.T) {
	d := open(t, nil)

	b := d.NewBatch()
	require.NoError(t, b.Set([]byte("a"), []byte("first")))
	require.NoError(t, b.Set([]byte("a"), []byte("second")))
	require.NoError(t, b.Commit(strata.Sync))

	v, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("second"), v)
}
