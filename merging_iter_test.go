// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/base"
)

func setSeqNum(t *testing.T, m *memTable, key, value string, seqNum base.SeqNum) {
	t.Helper()
	b := &Batch{}
	require.NoError(t, b.Set([]byte(key), []byte(value)))
	require.NoError(t, m.prepare(b))
	require.NoError(t, m.apply(b, seqNum))
	m.unref()
}

func TestMergingIterOrdersNewestSeqNumFirst(t *testing.T) {
	mem1 := newMemTable(&Options{}, 0)
	setSeqNum(t, mem1, "a", "old", 1)

	mem2 := newMemTable(&Options{}, 0)
	setSeqNum(t, mem2, "a", "new", 2)
	setSeqNum(t, mem2, "b", "only", 3)

	it := newMergingIter(base.DefaultComparer.Compare, mem1.newIter(), mem2.newIter())
	defer it.Close()

	require.True(t, it.First())
	require.Equal(t, "a", string(it.Key().UserKey))
	require.EqualValues(t, 2, it.Key().SeqNum())
	require.Equal(t, []byte("new"), it.Value())

	require.True(t, it.Next())
	require.Equal(t, "a", string(it.Key().UserKey))
	require.EqualValues(t, 1, it.Key().SeqNum())

	require.True(t, it.Next())
	require.Equal(t, "b", string(it.Key().UserKey))
	require.False(t, it.Next())
}

func TestMergingIterReverseThenForward(t *testing.T) {
	mem1 := newMemTable(&Options{}, 0)
	setSeqNum(t, mem1, "a", "1", 1)
	setSeqNum(t, mem1, "c", "3", 2)

	mem2 := newMemTable(&Options{}, 0)
	setSeqNum(t, mem2, "b", "2", 3)

	it := newMergingIter(base.DefaultComparer.Compare, mem1.newIter(), mem2.newIter())
	defer it.Close()

	require.True(t, it.Last())
	require.Equal(t, "c", string(it.Key().UserKey))
	require.True(t, it.Prev())
	require.Equal(t, "b", string(it.Key().UserKey))

	// Switching direction mid-iteration must not re-yield "c".
	require.True(t, it.Next())
	require.Equal(t, "c", string(it.Key().UserKey))
	require.False(t, it.Next())
}

func TestMergingIterSeekGE(t *testing.T) {
	mem1 := newMemTable(&Options{}, 0)
	setSeqNum(t, mem1, "a", "1", 1)
	setSeqNum(t, mem1, "c", "3", 2)

	mem2 := newMemTable(&Options{}, 0)
	setSeqNum(t, mem2, "e", "5", 3)

	it := newMergingIter(base.DefaultComparer.Compare, mem1.newIter(), mem2.newIter())
	defer it.Close()

	require.True(t, it.SeekGE([]byte("b")))
	require.Equal(t, "c", string(it.Key().UserKey))
	require.False(t, it.SeekGE([]byte("z")))
}
