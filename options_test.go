// Copyright 2011 The LevelDB-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsEnsureDefaults(t *testing.T) {
	o := (&Options{}).EnsureDefaults()
	require.NotNil(t, o.Comparer)
	require.NotNil(t, o.FS)
	require.NotNil(t, o.Logger)
	require.Equal(t, 4, o.L0CompactionThreshold)
	require.Len(t, o.Levels, 1)
	require.Equal(t, 16, o.Levels[0].BlockRestartInterval)
}

func TestOptionsLevelExtrapolates(t *testing.T) {
	o := (&Options{
		Levels: []LevelOptions{
			{MaxBytes: 10, TargetFileSize: 2},
			{MaxBytes: 100, TargetFileSize: 4},
		},
	}).EnsureDefaults()

	l2 := o.Level(2)
	require.EqualValues(t, 1000, l2.MaxBytes)
	require.EqualValues(t, 8, l2.TargetFileSize)

	l3 := o.Level(3)
	require.EqualValues(t, 10000, l3.MaxBytes)
	require.EqualValues(t, 16, l3.TargetFileSize)
}

func TestReadOptionsNilSafety(t *testing.T) {
	var o *ReadOptions
	require.Nil(t, o.GetLowerBound())
	require.Nil(t, o.GetUpperBound())

	o = &ReadOptions{LowerBound: []byte("a"), UpperBound: []byte("z")}
	require.Equal(t, []byte("a"), o.GetLowerBound())
	require.Equal(t, []byte("z"), o.GetUpperBound())
}

func TestWriteOptionsGetSyncDefaultsTrue(t *testing.T) {
	var o *WriteOptions
	require.True(t, o.GetSync())
	require.True(t, Sync.GetSync())
	require.False(t, NoSync.GetSync())
}
