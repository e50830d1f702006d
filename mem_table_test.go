// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/arenaskl"
	"github.com/strata-db/strata/internal/base"
)

func TestMemTableRefAndReadyForFlush(t *testing.T) {
	m := newMemTable(&Options{}, 0)
	require.True(t, m.readyForFlush())

	m.ref()
	require.False(t, m.readyForFlush())
	m.ref()
	require.False(t, m.readyForFlush())

	require.False(t, m.unref())
	require.True(t, m.unref())
	require.True(t, m.readyForFlush())
}

func TestMemTableUnrefBelowZeroPanics(t *testing.T) {
	m := newMemTable(&Options{}, 0)
	require.Panics(t, func() { m.unref() })
}

func TestMemTableEmpty(t *testing.T) {
	m := newMemTable(&Options{}, 0)
	require.True(t, m.empty())

	b := &Batch{}
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, m.prepare(b))
	require.NoError(t, m.apply(b, 1))
	m.unref()

	require.False(t, m.empty())
}

func TestMemTableGetHonorsSeqNumAndTombstones(t *testing.T) {
	m := newMemTable(&Options{}, 0)

	b := &Batch{}
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, m.prepare(b))
	require.NoError(t, m.apply(b, 1))
	m.unref()

	v, err := m.get([]byte("a"), base.SeqNumMax)
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)

	// Not yet visible as of a sequence number before the write landed.
	_, err = m.get([]byte("a"), 0)
	require.ErrorIs(t, err, base.ErrNotFound)

	b2 := &Batch{}
	require.NoError(t, b2.Delete([]byte("a")))
	require.NoError(t, m.prepare(b2))
	require.NoError(t, m.apply(b2, 2))
	m.unref()

	_, err = m.get([]byte("a"), base.SeqNumMax)
	require.ErrorIs(t, err, base.ErrNotFound)
}

func TestMemTablePrepareReturnsErrArenaFullWhenOversized(t *testing.T) {
	m := newMemTable(&Options{MemTableSize: 1 << 10}, 0)
	b := &Batch{}
	big := make([]byte, 4<<10)
	require.NoError(t, b.Set([]byte("a"), big))
	require.ErrorIs(t, m.prepare(b), arenaskl.ErrArenaFull)
}

func TestMemTableIterOrder(t *testing.T) {
	m := newMemTable(&Options{}, 0)

	b := &Batch{}
	require.NoError(t, b.Set([]byte("b"), []byte("2")))
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.NoError(t, m.prepare(b))
	require.NoError(t, m.apply(b, 1))
	m.unref()

	it := m.newIter()
	defer it.Close()

	require.True(t, it.First())
	require.Equal(t, "a", string(it.Key().UserKey))
	require.True(t, it.Next())
	require.Equal(t, "b", string(it.Key().UserKey))
	require.False(t, it.Next())
}
