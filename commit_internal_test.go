// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/storage"
)

// TestApplyAfterStickyBackgroundErrorDoesNotDeadlock exercises the case
// where makeRoomForWriteLocked fails before a batch group is ever built: the
// head writer must still be popped off the queue (resolving only itself) so
// every subsequent Apply fails promptly with the sticky error instead of
// waiting forever for a writer that will never pop.
func TestApplyAfterStickyBackgroundErrorDoesNotDeadlock(t *testing.T) {
	d, err := Open("", &Options{FS: storage.NewMem()})
	require.NoError(t, err)
	defer d.Close()

	wantErr := errors.New("injected background error")

	d.mu.Lock()
	d.mu.compact.err = wantErr
	d.mu.Unlock()

	err = d.Set([]byte("a"), []byte("1"), nil)
	require.ErrorIs(t, err, wantErr)

	done := make(chan error, 1)
	go func() {
		done <- d.Set([]byte("b"), []byte("2"), nil)
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, wantErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Apply deadlocked instead of failing with the sticky background error")
	}
}
