// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package sstable

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// numRestarts decodes the restart-point count a finished block ends with.
func numRestarts(t *testing.T, block []byte) int {
	t.Helper()
	require.True(t, len(block) >= 4)
	return int(binary.LittleEndian.Uint32(block[len(block)-4:]))
}

func TestBlockWriterRestartIntervalOne(t *testing.T) {
	w := newBlockWriter(1)
	for i := 0; i < 5; i++ {
		w.add([]byte{byte('a' + i)}, []byte("v"))
	}
	// A restart point at every entry: exactly as many restarts as entries.
	require.Equal(t, 5, numRestarts(t, w.finish()))
}

func TestBlockWriterRestartIntervalSixteen(t *testing.T) {
	w := newBlockWriter(16)
	for i := 0; i < 33; i++ {
		w.add([]byte{byte(i), byte(i >> 8)}, []byte("v"))
	}
	// One restart at entry 0, and every 16th entry after: 0, 16, 32.
	require.Equal(t, 3, numRestarts(t, w.finish()))
}

func TestNewWriterUsesFixedRestartIntervalForIndexBlock(t *testing.T) {
	o := NewWriterOptions(WriterOptions{RestartInterval: 16})
	w := NewWriter(nil, o)
	require.Equal(t, 16, w.dataBlock.restartInterval)
	require.Equal(t, 1, w.indexBlock.restartInterval)
}
