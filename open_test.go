// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata"
	"github.com/strata-db/strata/internal/storage"
)

func TestReopenReplaysWAL(t *testing.T) {
	fs := storage.NewMem()
	opts := &strata.Options{FS: fs}

	d, err := strata.Open("", opts)
	require.NoError(t, err)
	require.NoError(t, d.Set([]byte("a"), []byte("1"), strata.Sync))
	require.NoError(t, d.Set([]byte("b"), []byte("2"), strata.Sync))
	require.NoError(t, d.Delete([]byte("a"), strata.Sync))
	require.NoError(t, d.Close())

	d2, err := strata.Open("", opts)
	require.NoError(t, err)
	defer func() { require.NoError(t, d2.Close()) }()

	_, err = d2.Get([]byte("a"))
	require.ErrorIs(t, err, strata.ErrNotFound)

	v, err := d2.Get([]byte("b"))
	require.NoError(t, err)
	require.Equal(t, []byte("2"), v)
}

func TestOpenErrorIfDBExists(t *testing.T) {
	fs := storage.NewMem()
	opts := &strata.Options{FS: fs}

	d, err := strata.Open("", opts)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	_, err = strata.Open("", &strata.Options{FS: fs, ErrorIfDBExists: true})
	require.Error(t, err)
}

func TestOpenCreatesMissingDirectory(t *testing.T) {
	fs := storage.NewMem()
	d, err := strata.Open("/db", &strata.Options{FS: fs})
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()

	require.NoError(t, d.Set([]byte("a"), []byte("1"), nil))
	v, err := d.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}
