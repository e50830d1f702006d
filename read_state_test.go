// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/manifest"
	"github.com/strata-db/strata/internal/storage"
)

func TestReadStateRefCounting(t *testing.T) {
	v := &manifest.Version{}
	v.Ref()

	s := &readState{refcnt: 1, current: v}
	s.ref()
	require.EqualValues(t, 2, s.refcnt)

	s.unref()
	require.EqualValues(t, 1, s.refcnt)
	s.unref()
	require.EqualValues(t, 0, s.refcnt)
}

func TestLoadReadStateReflectsMemtableRotation(t *testing.T) {
	opts := &Options{FS: storage.NewMem()}
	d, err := Open("", opts)
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()

	state := d.loadReadState()
	require.Len(t, state.memtables, 1)
	require.Same(t, d.mu.mem.mutable, state.memtables[0])
	state.unref()

	d.mu.Lock()
	err = d.rotateMemtableLocked()
	d.mu.Unlock()
	require.NoError(t, err)

	state = d.loadReadState()
	defer state.unref()
	require.Len(t, state.memtables, 2)
	require.Same(t, d.mu.mem.mutable, state.memtables[len(state.memtables)-1])
}
