// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata"
	"github.com/strata-db/strata/internal/storage"
)

func open(t *testing.T, opts *strata.Options) *strata.DB {
	t.Helper()
	if opts == nil {
		opts = &strata.Options{}
	}
	if opts.FS == nil {
		opts.FS = storage.NewMem()
	}
	d, err := strata.Open("", opts)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, d.Close()) })
	return d
}

func TestGetSetDelete(t *testing.T) {
	d := open(t, nil)

	_, err := d.Get([]byte("a"))
	require.ErrorIs(t, err, strata.ErrNotFound)

	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	v, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, d.Set([]byte("a"), []byte("2"), nil))
	v, err = d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)

	require.NoError(t, d.Delete([]byte("a"), nil))
	_, err = d.Get([]byte("a"))
	require.ErrorIs(t, err, strata.ErrNotFound)

	// A blind delete of an absent key is not an error.
	require.NoError(t, d.Delete([]byte("never-existed"), nil))
}

func TestIteratorOrderAndBounds(t *testing.T) {
	d := open(t, nil)

	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys {
		require.NoError(t, d.Set([]byte(k), []byte(k+"-value"), nil))
	}
	require.NoError(t, d.Delete([]byte("c"), nil))

	iter := d.NewIter(nil)
	defer func() { require.NoError(t, iter.Close()) }()

	var got []string
	for valid := iter.First(); valid; valid = iter.Next() {
		got = append(got, string(iter.Key()))
	}
	require.Equal(t, []string{"a", "b", "d", "e"}, got)
	require.NoError(t, iter.Error())

	got = got[:0]
	for valid := iter.Last(); valid; valid = iter.Prev() {
		got = append(got, string(iter.Key()))
	}
	require.Equal(t, []string{"e", "d", "b", "a"}, got)
}

func TestIteratorBounds(t *testing.T) {
	d := open(t, nil)
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
	}

	iter := d.NewIter(&strata.ReadOptions{LowerBound: []byte("b"), UpperBound: []byte("d")})
	defer func() { require.NoError(t, iter.Close()) }()

	var got []string
	for valid := iter.First(); valid; valid = iter.Next() {
		got = append(got, string(iter.Key()))
	}
	require.Equal(t, []string{"b", "c"}, got)
}

func TestSeekGEAndSeekLT(t *testing.T) {
	d := open(t, nil)
	for _, k := range []string{"a", "c", "e"} {
		require.NoError(t, d.Set([]byte(k), []byte(k), nil))
	}

	iter := d.NewIter(nil)
	defer func() { require.NoError(t, iter.Close()) }()

	require.True(t, iter.SeekGE([]byte("b")))
	require.Equal(t, "c", string(iter.Key()))

	require.True(t, iter.SeekLT([]byte("d")))
	require.Equal(t, "c", string(iter.Key()))

	require.False(t, iter.SeekGE([]byte("z")))
	require.False(t, iter.SeekLT([]byte("a")))
}

func TestFlushAcrossMemtableRotation(t *testing.T) {
	opts := &strata.Options{MemTableSize: 4 << 10}
	d := open(t, opts)

	value := make([]byte, 256)
	for i := 0; i < 64; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		require.NoError(t, d.Set(key, value, nil))
	}

	for i := 0; i < 64; i++ {
		key := []byte(fmt.Sprintf("key-%04d", i))
		v, err := d.Get(key)
		require.NoError(t, err)
		require.Equal(t, value, v)
	}
}

func TestGetProperty(t *testing.T) {
	d := open(t, nil)
	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))

	n, err := d.GetProperty("strata.num-files-at-level0")
	require.NoError(t, err)
	require.Equal(t, "0", n)

	_, err = d.GetProperty("strata.approximate-memtable-bytes")
	require.NoError(t, err)

	_, err = d.GetProperty("strata.unknown-property")
	require.Error(t, err)
}

func TestCompactRangeIsANoOpOnAnEmptyDB(t *testing.T) {
	d := open(t, nil)
	require.NoError(t, d.CompactRange(nil, nil))
}

func TestRepairRemovesNothingOnAHealthyDB(t *testing.T) {
	d := open(t, nil)
	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	require.NoError(t, d.Repair())

	v, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}
