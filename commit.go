// Copyright 2011 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"sync"
	"time"

	"github.com/strata-db/strata/internal/base"
)

// maxBatchGroupSize bounds how many bytes worth of queued batches the write
// coordinator merges into a single physical write.
const maxBatchGroupSize = 1 << 20

// smallBatchGroupSize is used instead of maxBatchGroupSize when the head
// batch itself is small, so a single oversized batch can't force a long
// run of small ones to wait an extra round trip for no benefit.
const smallBatchGroupSize = 128 << 10

// writer is one FIFO entry in the write coordinator's queue: a batch
// waiting to be sequenced, logged and applied. Grounded on the classic
// mutex-and-condition-variable write path (DBImpl::Writer in the original
// LevelDB/early-pebble DB.Apply), deliberately not the teacher's modern
// lock-free commitPipeline: SPEC_FULL.md's concurrency model (§5) names one
// global mutex and per-writer condition variables, which this reproduces
// directly.
type writer struct {
	batch *Batch
	sync  bool
	done  bool
	err   error
	cond  sync.Cond
}

// Apply commits b to the database: every entry recorded in b becomes
// visible to subsequent reads as a single atomic group. If opts.Sync is
// true, Apply does not return until the write is durable on disk.
//
// Apply implements the write coordinator algorithm of spec.md §4.11:
// writers queue FIFO; the head writer builds a batch group from itself and
// as many immediately-following compatible, size-bounded queued batches as
// will fit; it assigns the group a starting sequence number, releases the
// mutex to append the group to the log and insert it into the memtable,
// then reacquires the mutex to advance last_sequence, wake every member of
// the group, and hand the write slot to the next head writer.
func (d *DB) Apply(b *Batch, opts *WriteOptions) error {
	if b.Count() == 0 {
		return nil
	}
	if d.closed.Load() {
		return ErrClosed
	}

	w := &writer{batch: b, sync: opts.GetSync()}
	w.cond.L = &d.mu.Mutex

	d.mu.Lock()
	d.mu.writers = append(d.mu.writers, w)
	for d.mu.writers[0] != w && !w.done {
		w.cond.Wait()
	}
	if w.done {
		// Some earlier head writer included us in its group and already
		// recorded our result.
		err := w.err
		d.mu.Unlock()
		return err
	}

	// w is now the head of the queue; it owns the write slot until it pops
	// its group below.
	err := d.makeRoomForWriteLocked()

	var group *Batch
	var n int
	var seqNum base.SeqNum
	groupSync := w.sync
	if err == nil {
		group, n = d.buildBatchGroupLocked()
		groupSync = d.mu.writers[0].sync
		seqNum = d.mu.versions.LastSeqNum() + 1
		group.setSeqNum(seqNum)
		d.mu.versions.SetLastSeqNum(seqNum + base.SeqNum(group.Count()) - 1)
	} else {
		// makeRoomForWriteLocked failed before any group could be built. w is
		// still the head of the queue and must still be popped -- resolving
		// only itself, with no group to merge in -- or it and every writer
		// queued behind it would wait forever for a signal that never comes.
		n = 1
	}

	mem := d.mu.mem.mutable
	logWriter := d.mu.log.writer
	logFile := d.mu.log.file
	mem.ref()

	// Release the mutex for the slow part: the log append and the memtable
	// insertion. Only the head writer ever reaches this section, so no
	// other writer can race with it; readers proceed against the snapshot
	// of state captured above.
	d.mu.Unlock()

	if err == nil {
		if err = logWriter.WriteRecord(group.Repr()); err == nil && groupSync {
			err = logFile.Sync()
		}
	}
	if err == nil {
		err = mem.apply(group, seqNum)
	}
	mem.unref()
	if n > 1 {
		group.release()
	}

	d.mu.Lock()
	if err != nil {
		d.mu.compact.err = err
	}
	for i := 0; i < n; i++ {
		d.mu.writers[i].err = err
		d.mu.writers[i].done = true
		d.mu.writers[i].cond.Signal()
	}
	d.mu.writers = d.mu.writers[n:]
	if len(d.mu.writers) > 0 {
		d.mu.writers[0].cond.Signal()
	}
	d.mu.Unlock()

	return err
}

// buildBatchGroupLocked merges the head writer's batch with as many
// immediately-following queued writers' batches as fit within the group
// size budget and share a compatible sync flag, returning the merged batch
// and the number of writers it consumed. Requires d.mu to be held.
func (d *DB) buildBatchGroupLocked() (group *Batch, n int) {
	first := d.mu.writers[0]
	n = 1
	size := len(first.batch.Repr())
	limit := maxBatchGroupSize
	if size <= smallBatchGroupSize {
		limit = smallBatchGroupSize
	}
	for n < len(d.mu.writers) {
		w := d.mu.writers[n]
		if w.sync && !first.sync {
			// Don't force a synchronous write to ride along with a group
			// that started out asynchronous; let it become its own head
			// once the current group pops.
			break
		}
		grown := size + len(w.batch.Repr()) - batchHeaderLen
		if grown > limit {
			break
		}
		size = grown
		n++
	}
	if n == 1 {
		return first.batch, 1
	}
	group = newBatch(d)
	group.data = append([]byte(nil), first.batch.Repr()...)
	for i := 1; i < n; i++ {
		group.append(d.mu.writers[i].batch)
	}
	return group, n
}

// makeRoomForWriteLocked implements the flow-control policy of spec.md
// §4.11: it blocks the head writer until the active memtable has room for
// another write, rotating in a fresh memtable and requesting a flush along
// the way, and slows or stops writers when L0 is falling behind compaction.
// Requires d.mu to be held; may release and reacquire it.
func (d *DB) makeRoomForWriteLocked() error {
	allowDelay := true
	for {
		if d.mu.compact.err != nil {
			return d.mu.compact.err
		}

		v := d.mu.versions.CurrentVersion()
		l0Files := len(v.Files[0])
		v.Unref()

		switch {
		case allowDelay && l0Files >= d.opts.L0SlowdownWritesThreshold:
			// Sleep once per write to let compaction catch up, without
			// blocking everyone else behind the mutex for the duration.
			allowDelay = false
			d.mu.Unlock()
			time.Sleep(time.Millisecond)
			d.mu.Lock()

		case d.mu.mem.mutable.skl.Size() < uint32(d.opts.MemTableSize):
			return nil

		case len(d.mu.mem.queue) > 1:
			// The active memtable is full and an immutable memtable is
			// still waiting on the flush worker; there's nowhere to put a
			// rotated memtable yet.
			d.mu.compact.cond.Wait()

		case l0Files >= d.opts.L0StopWritesThreshold:
			// Too many L0 files for compaction to keep up; stop accepting
			// writes until it reduces the count.
			d.mu.compact.cond.Wait()

		default:
			if err := d.rotateMemtableLocked(); err != nil {
				return err
			}
			return nil
		}
	}
}
