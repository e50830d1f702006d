// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

// Package strata provides an ordered key/value store backed by a
// log-structured merge tree.
package strata // import "github.com/strata-db/strata"

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/cache"
	"github.com/strata-db/strata/internal/compaction"
	"github.com/strata-db/strata/internal/manifest"
	"github.com/strata-db/strata/internal/record"
	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/internal/storage"
	"github.com/strata-db/strata/metrics"
)

var (
	// ErrNotFound is returned when a Get does not find the requested key.
	ErrNotFound = base.ErrNotFound
	// ErrClosed is returned when an operation is performed on a closed DB or
	// Snapshot.
	ErrClosed = errors.New("strata: closed")
)

// Reader is a readable key/value store. It is safe to call Get and NewIter
// from concurrent goroutines.
type Reader interface {
	Get(key []byte) (value []byte, err error)
	NewIter(o *ReadOptions) *Iterator
	Close() error
}

// Writer is a writable key/value store. Goroutine safety is dependent on
// the specific implementation.
type Writer interface {
	Apply(batch *Batch, o *WriteOptions) error
	Set(key, value []byte, o *WriteOptions) error
	Delete(key []byte, o *WriteOptions) error
}

// DB provides a concurrent, persistent ordered key/value store. Its basic
// operations (Get, Set, Delete) return ErrNotFound when the requested key
// is not present. A DB also allows iterating over key/value pairs in key
// order:
//
//	iter := d.NewIter(nil)
//	for iter.SeekGE(k); iter.Valid(); iter.Next() {
//		fmt.Printf("key=%q value=%q\n", iter.Key(), iter.Value())
//	}
//	return iter.Close()
type DB struct {
	dirname string
	opts    *Options
	cmp     base.Compare
	fs      storage.FS

	fileLock storage.Lock

	blockCache *cache.BlockCache
	tableCache *cache.TableCache
	metrics    *metrics.Metrics

	closed atomic.Bool

	readState struct {
		sync.RWMutex
		val *readState
	}

	mu struct {
		sync.Mutex

		versions manifest.VersionSet

		writers []*writer

		log struct {
			file   storage.File
			writer *record.Writer
		}

		// mem.queue holds every memtable not yet fully flushed, oldest
		// first, with the currently mutable memtable last; mem.mutable is
		// a convenience pointer to that last entry.
		mem struct {
			mutable *memTable
			queue   []*memTable
		}

		compact struct {
			cond       sync.Cond
			flushing   bool
			compacting bool
			err        error
		}

		snapshots snapshotList
	}
}

// Get gets the value for the given key. It returns ErrNotFound if the DB
// does not contain the key.
//
// The caller should not modify the contents of the returned slice, but it
// is safe to modify the contents of the argument after Get returns.
func (d *DB) Get(key []byte) ([]byte, error) {
	return d.getInternal(key, nil, base.SeqNumMax)
}

// getWithBatch is the entry point used by an indexed Batch's own Get: it
// checks the batch's uncommitted writes first, falling through to the DB's
// committed state for anything the batch doesn't shadow.
func (d *DB) getWithBatch(key []byte, b *Batch) ([]byte, error) {
	return d.getInternal(key, b, base.SeqNumMax)
}

// getInternal implements Get, Snapshot.Get and Batch.Get. It consults, in
// order: the batch's own uncommitted entries (if any), the memtables from
// newest to oldest, the L0 sstables from newest to oldest (since L0 files
// may overlap), and finally each level L1+ in turn, where at most one file
// can possibly contain the key.
func (d *DB) getInternal(key []byte, b *Batch, seqNum base.SeqNum) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	if b != nil && b.Indexed() {
		if v, err := b.get(key); err != base.ErrNotFound {
			return v, err
		}
	}

	state := d.loadReadState()
	defer state.unref()

	for i := len(state.memtables) - 1; i >= 0; i-- {
		v, err := state.memtables[i].get(key, seqNum)
		if err != base.ErrNotFound {
			return v, err
		}
	}

	v := state.current
	for i := len(v.Files[0]) - 1; i >= 0; i-- {
		f := v.Files[0][i]
		if f.SmallestSeqNum > seqNum {
			continue
		}
		val, found, err := d.getFromTable(f, key, seqNum)
		if err != nil {
			return nil, err
		}
		if found {
			return val, nil
		}
		d.maybeScheduleReadCompaction(f)
	}

	for level := 1; level < manifest.NumLevels; level++ {
		f := v.Contains(level, d.cmp, key)
		if f == nil || f.SmallestSeqNum > seqNum {
			continue
		}
		val, found, err := d.getFromTable(f, key, seqNum)
		if err != nil {
			return nil, err
		}
		if found {
			return val, nil
		}
		d.maybeScheduleReadCompaction(f)
	}

	return nil, base.ErrNotFound
}

// maybeScheduleReadCompaction charges f for a wasted seek -- a lookup that
// checked it, found nothing, and kept searching a lower level -- and
// nominates it for compaction once its allowed_seeks budget is exhausted.
// Grounded on the classic Version::Get/UpdateStats path, which charges
// exactly the file(s) consulted before the one that actually resolved (or
// failed to resolve) a lookup.
func (d *DB) maybeScheduleReadCompaction(f *manifest.FileMetadata) {
	if !f.RecordWastedSeek() {
		return
	}
	d.mu.Lock()
	f.MarkedForCompaction = true
	d.mu.Unlock()
	d.maybeScheduleCompaction()
}

// getFromTable looks up key, as of seqNum, in the sstable named by f. found
// is false both when the key is absent and when the newest qualifying
// entry is a delete tombstone.
func (d *DB) getFromTable(f *manifest.FileMetadata, key []byte, seqNum base.SeqNum) (value []byte, found bool, err error) {
	r, release, err := d.newTableReader(f.FileNum)
	if err != nil {
		return nil, false, err
	}
	defer release()
	searchKey := base.MakeSearchKey(key, seqNum)
	buf := make([]byte, searchKey.Size())
	ikey, val, ok, err := r.Get(searchKey.Encode(buf))
	if err != nil || !ok {
		return nil, false, err
	}
	if d.cmp(ikey.UserKey, key) != 0 {
		return nil, false, nil
	}
	if ikey.Kind() == base.InternalKeyKindDelete {
		return nil, false, nil
	}
	return val, true, nil
}

// Set sets the value for the given key, overwriting any existing value. It
// is safe to modify the contents of the arguments after Set returns.
func (d *DB) Set(key, value []byte, opts *WriteOptions) error {
	b := newBatch(d)
	defer b.release()
	if err := b.Set(key, value); err != nil {
		return err
	}
	return d.Apply(b, opts)
}

// Delete deletes the value for the given key. Deletes are blind: they
// succeed even if the key does not exist.
func (d *DB) Delete(key []byte, opts *WriteOptions) error {
	b := newBatch(d)
	defer b.release()
	if err := b.Delete(key); err != nil {
		return err
	}
	return d.Apply(b, opts)
}

// NewBatch returns a new write-only batch.
func (d *DB) NewBatch() *Batch {
	return newBatch(d)
}

// NewIndexedBatch returns a new batch whose own uncommitted writes can be
// observed by Get and NewIter before the batch is committed.
func (d *DB) NewIndexedBatch() *Batch {
	return newIndexedBatch(d, d.cmp)
}

// NewIter returns an unpositioned iterator over the database's current
// state. The iterator must be positioned via SeekGE, SeekLT, First or Last
// before use.
func (d *DB) NewIter(o *ReadOptions) *Iterator {
	return d.newIter(nil, o, base.SeqNumMax)
}

// Metrics returns a point-in-time snapshot of the database's operational
// metrics.
func (d *DB) Metrics() *metrics.Metrics {
	return d.metrics
}

// GetProperty returns the value of an internal introspection property, or
// an error if name is not recognized. Mirrors leveldb's DB::GetProperty
// property surface (db_impl.h), which the original spec's distillation
// dropped: "strata.num-files-at-level<N>", "strata.stats",
// "strata.sstables" and "strata.approximate-memtable-bytes".
func (d *DB) GetProperty(name string) (string, error) {
	const prefix = "strata."
	if !strings.HasPrefix(name, prefix) {
		return "", errors.Newf("strata: unknown property %q", name)
	}
	key := name[len(prefix):]

	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case strings.HasPrefix(key, "num-files-at-level"):
		var level int
		if _, err := fmt.Sscanf(key, "num-files-at-level%d", &level); err != nil {
			return "", errors.Newf("strata: unknown property %q", name)
		}
		if level < 0 || level >= manifest.NumLevels {
			return "", errors.Newf("strata: level out of range in property %q", name)
		}
		v := d.mu.versions.CurrentVersion()
		defer v.Unref()
		return strconv.Itoa(len(v.Files[level])), nil

	case key == "sstables":
		v := d.mu.versions.CurrentVersion()
		defer v.Unref()
		return v.String(), nil

	case key == "approximate-memtable-bytes":
		var n int64
		for _, m := range d.mu.mem.queue {
			n += int64(m.skl.Size())
		}
		return strconv.FormatInt(n, 10), nil

	case key == "stats":
		return d.metrics.String(), nil

	default:
		return "", errors.Newf("strata: unknown property %q", name)
	}
}

// CompactRange forces compaction of the key range [start, end). Unlike the
// teacher's manual picker (which targets a specific level and key range),
// this engine's compaction.Picker only ever selects its own automatic
// candidate (see internal/compaction/picker.go's PickAuto) -- so
// CompactRange approximates a manual compaction by running the automatic
// picker repeatedly until it reports no further work, which drains every
// level down to its steady state rather than touching only [start, end).
// start and end are accepted for API compatibility with that manual
// interface and to document the intended range; a future picker could
// target them directly.
func (d *DB) CompactRange(start, end []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		ran, err := d.compactOnceLocked()
		if err != nil {
			return err
		}
		if !ran {
			return nil
		}
	}
}

// Close flushes the active memtable synchronously, closes every open file,
// and releases the database's directory lock. It is not safe to call Close
// until every outstanding Iterator and Snapshot has been closed.
func (d *DB) Close() error {
	d.mu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.mu.Unlock()
		return ErrClosed
	}
	for !d.mu.mem.mutable.empty() {
		if err := d.rotateMemtableLocked(); err != nil {
			d.mu.Unlock()
			return err
		}
		break
	}
	d.mu.compact.cond.Broadcast()
	for len(d.mu.mem.queue) > 1 && d.mu.compact.err == nil {
		d.mu.compact.cond.Wait()
	}
	err := d.mu.compact.err
	d.mu.Unlock()

	d.tableCache.Close()
	if closeErr := d.mu.log.file.Close(); err == nil {
		err = closeErr
	}
	if closeErr := d.mu.versions.Close(); err == nil {
		err = closeErr
	}
	if d.fileLock != nil {
		if closeErr := d.fileLock.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// rotateMemtableLocked installs a fresh, empty memtable as the active one,
// demoting the current mutable memtable to immutable and requesting it be
// flushed. Requires d.mu to be held.
func (d *DB) rotateMemtableLocked() error {
	logNum := d.mu.versions.GetNextFileNum()
	logFile, err := d.fs.Create(base.MakeFilename(d.dirname, base.FileTypeLog, logNum))
	if err != nil {
		return err
	}

	d.mu.log.file = logFile
	d.mu.log.writer = record.NewWriter(logFile)

	mem := newMemTable(d.opts, logNum)
	d.mu.mem.mutable = mem
	d.mu.mem.queue = append(d.mu.mem.queue, mem)
	d.updateReadStateLocked()

	d.mu.compact.cond.Broadcast()
	return nil
}

// maybeScheduleCompaction wakes the background worker if it might have
// work to do: a queued immutable memtable to flush, or a level whose
// compaction score warrants attention.
func (d *DB) maybeScheduleCompaction() {
	d.mu.Lock()
	d.mu.compact.cond.Broadcast()
	d.mu.Unlock()
}

// backgroundWorker is the single goroutine that services both flushes and
// compactions, started by Open. It sleeps on d.mu.compact.cond whenever
// there is nothing to do, matching spec.md §5's single-worker concurrency
// model (in contrast to the teacher's separate flush/compaction scheduling
// paths, unified here since this engine has exactly one background actor).
func (d *DB) backgroundWorker() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		for d.mu.compact.err == nil {
			if len(d.mu.mem.queue) > 1 && !d.mu.compact.flushing {
				d.mu.compact.flushing = true
				err := d.flushLocked()
				d.mu.compact.flushing = false
				if err != nil {
					d.mu.compact.err = err
				}
				d.mu.compact.cond.Broadcast()
				continue
			}
			if d.closed.Load() {
				break
			}
			if !d.mu.compact.compacting {
				d.mu.compact.compacting = true
				ran, err := d.compactOnceLocked()
				d.mu.compact.compacting = false
				if err != nil {
					d.mu.compact.err = err
				}
				if ran {
					d.mu.compact.cond.Broadcast()
					continue
				}
			}
			break
		}
		if d.closed.Load() {
			d.mu.compact.cond.Broadcast()
			return
		}
		d.mu.compact.cond.Wait()
	}
}

// flushLocked writes the oldest queued (necessarily immutable) memtable
// out as a new L0 sstable and installs the resulting Version. Requires
// d.mu to be held; releases and reacquires it around the actual file I/O.
func (d *DB) flushLocked() error {
	mem := d.mu.mem.queue[0]
	for !mem.readyForFlush() {
		d.mu.compact.cond.Wait()
	}

	fileNum := d.mu.versions.GetNextFileNum()
	filename := base.MakeFilename(d.dirname, base.FileTypeTable, fileNum)

	d.mu.Unlock()
	meta, numEntries, err := d.writeTable(filename, fileNum, mem.newIter(), 0)
	d.mu.Lock()

	if err != nil {
		return err
	}

	var bytesWritten uint64
	if numEntries == 0 {
		_ = d.fs.Remove(filename)
	} else {
		bytesWritten = meta.Size
		ve := &manifest.VersionEdit{
			DeletedFiles: map[manifest.DeletedFileEntry]bool{},
			NewFiles:     []manifest.NewFileEntry{{Level: 0, Meta: meta}},
		}
		if err := d.mu.versions.LogAndApply(ve); err != nil {
			return err
		}
	}

	d.mu.mem.queue = d.mu.mem.queue[1:]
	d.updateReadStateLocked()
	d.metrics.RecordFlush(bytesWritten)
	logNum := mem.logNum
	_ = mem.close()

	d.mu.Unlock()
	_ = d.fs.Remove(base.MakeFilename(d.dirname, base.FileTypeLog, logNum))
	d.mu.Lock()

	return nil
}

// writeTable drains iter (closing it) into a fresh sstable at filename,
// returning its file metadata and entry count. level selects the per-level
// writer options (block size, compression, filter policy).
func (d *DB) writeTable(filename string, fileNum base.FileNum, iter base.InternalIterator, level int) (meta manifest.FileMetadata, numEntries uint64, err error) {
	defer iter.Close()

	f, err := d.fs.Create(filename)
	if err != nil {
		return manifest.FileMetadata{}, 0, err
	}
	w := sstable.NewWriter(f, d.opts.writerOptions(level))
	meta.FileNum = fileNum
	for valid := iter.First(); valid; valid = iter.Next() {
		ikey := iter.Key()
		if err := w.Add(ikey, iter.Value()); err != nil {
			_ = f.Close()
			return manifest.FileMetadata{}, 0, err
		}
		if meta.Smallest.UserKey == nil {
			meta.Smallest = ikey.Clone()
		}
		meta.Largest = ikey.Clone()
	}
	if err := iter.Error(); err != nil {
		_ = f.Close()
		return manifest.FileMetadata{}, 0, err
	}
	props, err := w.Close()
	if err != nil {
		return manifest.FileMetadata{}, 0, err
	}
	if props.NumEntries == 0 {
		return manifest.FileMetadata{}, 0, nil
	}
	meta.Size = props.FileSize
	meta.AllowedSeeks = manifest.InitAllowedSeeks(meta.Size)
	meta.SmallestSeqNum = meta.Smallest.SeqNum()
	meta.LargestSeqNum = meta.Largest.SeqNum()
	return meta, props.NumEntries, nil
}

// compactOnceLocked picks and, if one is available, runs a single
// compaction to completion, reporting whether it ran one. Requires d.mu to
// be held; releases and reacquires it around the merge itself.
func (d *DB) compactOnceLocked() (bool, error) {
	v := d.mu.versions.CurrentVersion()
	picker := compaction.NewPicker(v, d.opts.compactionOptions(), nil)
	c := picker.PickAuto(d.cmp, nil)
	if c == nil {
		v.Unref()
		return false, nil
	}
	smallestSnapshot := d.mu.snapshots.earliest()
	if last := d.mu.versions.LastSeqNum() + 1; smallestSnapshot > last {
		smallestSnapshot = last
	}

	d.mu.Unlock()
	executor := &compaction.Executor{
		FS:          d.fs,
		Dirname:     d.dirname,
		Comparer:    d.opts.Comparer,
		Open:        d.newTableIter,
		NextFileNum: d.nextFileNum,
		Opts:        d.opts.compactionOptions(),
		WriterOpts:  d.opts.writerOptions(c.OutputLevel),
	}
	ve, err := executor.Execute(c, v, smallestSnapshot)
	d.mu.Lock()

	v.Unref()
	if err != nil {
		return false, err
	}
	if err := d.mu.versions.LogAndApply(ve); err != nil {
		return false, err
	}
	d.updateReadStateLocked()

	var bytesWritten uint64
	for _, nf := range ve.NewFiles {
		bytesWritten += nf.Meta.Size
	}
	bytesIn := manifest.TotalSize(c.Inputs[0]) + manifest.TotalSize(c.Inputs[1])
	d.metrics.RecordCompaction(c.OutputLevel, bytesIn, bytesIn, bytesWritten)
	return true, nil
}

// nextFileNum allocates the next file number under d.mu, for use by
// callers (such as the compaction executor) that run with the mutex
// released.
func (d *DB) nextFileNum() base.FileNum {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mu.versions.GetNextFileNum()
}

// obsoleteTables deletes the sstables named by fileNums and evicts any of
// their blocks from the block cache and table cache. Installed as the
// VersionSet's obsolete callback: it fires once a file's last referencing
// Version is unreffed.
func (d *DB) obsoleteTables(fileNums []base.FileNum) {
	for _, num := range fileNums {
		d.tableCache.Erase(uint64(num))
		d.blockCache.EvictFile(uint64(num))
		_ = d.fs.Remove(base.MakeFilename(d.dirname, base.FileTypeTable, num))
	}
}
