// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata"
)

func TestSnapshotIsolatesLaterWrites(t *testing.T) {
	d := open(t, nil)
	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))

	snap := d.NewSnapshot()
	defer func() { require.NoError(t, snap.Close()) }()

	require.NoError(t, d.Set([]byte("a"), []byte("2"), nil))
	require.NoError(t, d.Set([]byte("b"), []byte("new"), nil))
	require.NoError(t, d.Delete([]byte("a"), nil))

	v, err := snap.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	_, err = snap.Get([]byte("b"))
	require.ErrorIs(t, err, strata.ErrNotFound)

	// The live DB sees the later writes.
	_, err = d.Get([]byte("a"))
	require.ErrorIs(t, err, strata.ErrNotFound)
	v, err = d.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestSnapshotIterSeesPointInTimeView(t *testing.T) {
	d := open(t, nil)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
	}

	snap := d.NewSnapshot()
	defer func() { require.NoError(t, snap.Close()) }()

	require.NoError(t, d.Set([]byte("d"), []byte("d"), nil))
	require.NoError(t, d.Delete([]byte("a"), nil))

	iter := snap.NewIter(nil)
	defer func() { require.NoError(t, iter.Close()) }()

	var got []string
	for valid := iter.First(); valid; valid = iter.Next() {
		got = append(got, string(iter.Key()))
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestClosedSnapshotReturnsErrClosed(t *testing.T) {
	d := open(t, nil)
	snap := d.NewSnapshot()
	require.NoError(t, snap.Close())

	// Close is not idempotent: a second call reports the snapshot is gone.
	require.ErrorIs(t, snap.Close(), strata.ErrClosed)

	_, err := snap.Get([]byte("a"))
	require.ErrorIs(t, err, strata.ErrClosed)
}
