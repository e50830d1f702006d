// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata"
	"github.com/strata-db/strata/internal/storage"
)

func TestConcurrentWritesAllLand(t *testing.T) {
	d := open(t, nil)

	const goroutines = 16
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				key := []byte(fmt.Sprintf("k-%02d-%03d", g, i))
				require.NoError(t, d.Set(key, []byte("v"), nil))
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < goroutines; g++ {
		for i := 0; i < perGoroutine; i++ {
			key := []byte(fmt.Sprintf("k-%02d-%03d", g, i))
			v, err := d.Get(key)
			require.NoError(t, err)
			require.Equal(t, []byte("v"), v)
		}
	}
}

func TestApplyOnClosedDBReturnsErrClosed(t *testing.T) {
	// Close is not idempotent (see TestClosedSnapshotReturnsErrClosed's
	// sibling behavior on DB itself), so this test manages its own DB
	// instead of open()'s auto-close cleanup.
	d, err := strata.Open("", &strata.Options{FS: storage.NewMem()})
	require.NoError(t, err)
	require.NoError(t, d.Close())

	b := d.NewBatch()
	require.NoError(t, b.Set([]byte("a"), []byte("1")))
	require.ErrorIs(t, b.Commit(strata.Sync), strata.ErrClosed)
}

func TestEmptyBatchCommitIsANoOp(t *testing.T) {
	d := open(t, nil)
	b := d.NewBatch()
	require.NoError(t, b.Commit(strata.Sync))
}
