// Copyright 2019 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"sync/atomic"

	"github.com/strata-db/strata/internal/manifest"
)

// readState encapsulates the state needed for reading: the current Version
// and the list of memtables, oldest first, with the currently mutable
// memtable last. Loading the readState is done without grabbing DB.mu -- a
// separate DB.readState.RWMutex synchronizes access to the readState
// pointer itself, which is swapped only when memtables rotate or a new
// Version installs, so it is rarely contended.
type readState struct {
	refcnt    int32
	current   *manifest.Version
	memtables []*memTable
}

// ref adds a reference to the readState.
func (s *readState) ref() {
	atomic.AddInt32(&s.refcnt, 1)
}

// unref removes a reference to the readState. If this was the last
// reference, the Version's reference is released, which may make its files
// eligible for deletion. Memtables need no equivalent release: close is a
// no-op (there is no arena to free early) and the slice below is the only
// thing keeping a rotated-out memtable reachable, so ordinary GC reclaims it
// once the last readState naming it is gone.
func (s *readState) unref() {
	if atomic.AddInt32(&s.refcnt, -1) == 0 {
		s.current.Unref()
	}
}

// loadReadState returns the current readState, referenced. The caller must
// unref it when done.
func (d *DB) loadReadState() *readState {
	d.readState.RLock()
	state := d.readState.val
	state.ref()
	d.readState.RUnlock()
	return state
}

// updateReadStateLocked creates a new readState from the current Version and
// memtable queue. Requires d.mu to be held.
func (d *DB) updateReadStateLocked() {
	s := &readState{
		refcnt: 1,
		// CurrentVersion already returns a Version with its own added
		// reference, held by this readState until unref.
		current:   d.mu.versions.CurrentVersion(),
		memtables: append([]*memTable(nil), d.mu.mem.queue...),
	}

	d.readState.Lock()
	old := d.readState.val
	d.readState.val = s
	d.readState.Unlock()

	if old != nil {
		old.unref()
	}
}
