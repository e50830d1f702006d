// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"github.com/strata-db/strata/internal/base"
)

// Repair scans the database directory for sstables that no file in the
// current Version references -- left behind by a crash between an
// sstable's creation and the VersionEdit that would have installed or
// superseded it -- and for log files that no queued memtable uses, and
// removes them. Unlike classic LevelDB's Repairer
// (include/leveldb/db.h's RepairDB, which rebuilds a manifest from
// scratch by reading every sstable's index when the manifest itself is
// unreadable), this engine's manifest recovery already happens
// unconditionally on every Open (internal/manifest.VersionSet.Load plus
// open.go's WAL replay), so the remaining repair this engine's on-disk
// format actually needs is reclaiming those orphaned files; a corrupt
// MANIFEST is not a case this simplified Repair attempts to recover
// from.
func (d *DB) Repair() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	referenced := make(map[base.FileNum]bool)
	v := d.mu.versions.CurrentVersion()
	for level := range v.Files {
		for _, f := range v.Files[level] {
			referenced[f.FileNum] = true
		}
	}
	v.Unref()
	for _, m := range d.mu.mem.queue {
		referenced[m.logNum] = true
	}

	names, err := d.fs.List(d.dirname)
	if err != nil {
		return err
	}
	for _, name := range names {
		fileType, fileNum, ok := base.ParseFilename(name)
		if !ok || referenced[fileNum] {
			continue
		}
		if fileType != base.FileTypeTable && fileType != base.FileTypeLog {
			continue
		}
		if err := d.fs.Remove(d.fs.PathJoin(d.dirname, name)); err != nil {
			return err
		}
		d.tableCache.Erase(uint64(fileNum))
		d.blockCache.EvictFile(uint64(fileNum))
	}
	return nil
}
