// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"io"
	"os"
	"sort"

	"github.com/cockroachdb/errors"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/record"
	"github.com/strata-db/strata/metrics"
)

// Open opens a database whose files live in dirname, creating one if it does
// not already exist; with opts.ErrorIfDBExists set, an existing database is
// an error instead. A nil *Options
// uses every default; see Options.EnsureDefaults.
func Open(dirname string, opts *Options) (*DB, error) {
	opts = opts.EnsureDefaults()

	d := &DB{
		dirname:    dirname,
		opts:       opts,
		cmp:        opts.Comparer.Compare,
		fs:         opts.FS,
		blockCache: opts.newBlockCache(),
		tableCache: opts.newTableCache(),
		metrics:    metrics.New(nil),
	}
	d.mu.compact.cond.L = &d.mu.Mutex
	d.mu.snapshots.init()

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.fs.MkdirAll(dirname, 0755); err != nil {
		return nil, err
	}

	fileLock, err := d.fs.Lock(base.MakeFilename(dirname, base.FileTypeLock, 0))
	if err != nil {
		return nil, err
	}
	defer func() {
		if fileLock != nil {
			fileLock.Close()
		}
	}()

	d.mu.versions.Init(dirname, d.fs, d.cmp, opts.Comparer.Name, &d.mu.Mutex, d.obsoleteTables)

	currentName := base.MakeFilename(dirname, base.FileTypeCurrent, 0)
	if _, err := d.fs.Stat(currentName); os.IsNotExist(err) {
		if err := d.mu.versions.Create(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "strata: opening database %q", dirname)
	} else if opts.ErrorIfDBExists {
		return nil, errors.Newf("strata: database %q already exists", dirname)
	} else {
		if err := d.mu.versions.Load(); err != nil {
			return nil, err
		}
	}

	names, err := d.fs.List(dirname)
	if err != nil {
		return nil, err
	}

	type logFile struct {
		num  base.FileNum
		name string
	}
	var logs []logFile
	for _, name := range names {
		if ft, fn, ok := base.ParseFilename(name); ok && ft == base.FileTypeLog {
			logs = append(logs, logFile{fn, name})
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].num < logs[j].num })

	var maxSeqNum base.SeqNum
	for _, lf := range logs {
		mem := newMemTable(opts, lf.num)
		n, err := d.replayWAL(mem, d.fs.PathJoin(dirname, lf.name))
		if err != nil {
			return nil, err
		}
		d.mu.versions.MarkFileNumUsed(lf.num)
		if n > maxSeqNum {
			maxSeqNum = n
		}
		// A replayed log file's data has no other durable home (the log
		// itself is about to be superseded by a fresh one below), so queue
		// its memtable for a flush like any other immutable memtable,
		// giving the data a backing sstable again. An empty log replays to
		// an empty memtable, which is simply discarded.
		if !mem.empty() {
			d.mu.mem.queue = append(d.mu.mem.queue, mem)
		}
	}
	if maxSeqNum > d.mu.versions.LastSeqNum() {
		d.mu.versions.SetLastSeqNum(maxSeqNum)
	}

	newLogNum := d.mu.versions.GetNextFileNum()
	logFilePath := base.MakeFilename(dirname, base.FileTypeLog, newLogNum)
	logFileHandle, err := d.fs.Create(logFilePath)
	if err != nil {
		return nil, err
	}
	d.mu.log.file = logFileHandle
	d.mu.log.writer = record.NewWriter(logFileHandle)

	mem := newMemTable(opts, newLogNum)
	d.mu.mem.mutable = mem
	d.mu.mem.queue = append(d.mu.mem.queue, mem)

	d.updateReadStateLocked()

	d.fileLock, fileLock = fileLock, nil
	go d.backgroundWorker()

	return d, nil
}

// replayWAL replays every batch recorded in the log file named by filename
// (written under file number mem.logNum) into mem, returning the highest
// sequence number observed. d.mu must be held; replayWAL itself never
// releases it, since mem is not yet reachable from any other goroutine.
func (d *DB) replayWAL(mem *memTable, filename string) (maxSeqNum base.SeqNum, err error) {
	f, err := d.fs.Open(filename)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	rr := record.NewReader(f, mem.logNum)
	for {
		r, err := rr.Next()
		if err != nil {
			if err == io.EOF || record.IsInvalidRecord(err) {
				break
			}
			return 0, err
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return 0, err
		}

		b := newBatch(d)
		if err := b.setRepr(data); err != nil {
			b.release()
			return 0, err
		}
		seqNum := b.seqNum()
		if n := seqNum + base.SeqNum(b.count()); n > maxSeqNum {
			maxSeqNum = n
		}

		if err := mem.prepare(b); err != nil {
			b.release()
			return 0, err
		}
		if err := mem.apply(b, seqNum); err != nil {
			b.release()
			return 0, err
		}
		mem.unref()
		b.release()
	}
	return maxSeqNum, nil
}
