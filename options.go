// Copyright 2011 The LevelDB-Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package strata

import (
	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/bloomfilter"
	"github.com/strata-db/strata/internal/cache"
	"github.com/strata-db/strata/internal/compaction"
	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/internal/storage"
)

// Compression is the per-block compression algorithm a LevelOptions uses
// when writing sstables for that level.
type Compression int

// The supported Compression values.
const (
	DefaultCompression Compression = iota
	NoCompression
	SnappyCompression
	nCompression
)

// String implements fmt.Stringer.
func (c Compression) String() string {
	switch c {
	case DefaultCompression:
		return "Default"
	case NoCompression:
		return "NoCompression"
	case SnappyCompression:
		return "Snappy"
	default:
		return "Unknown"
	}
}

func (c Compression) toSSTable() sstable.Compression {
	if c == NoCompression {
		return sstable.NoCompression
	}
	return sstable.SnappyCompression
}

// LevelOptions configures the sstable layout, compression, filter policy
// and compaction target size for a single level of the LSM tree.
type LevelOptions struct {
	// BlockRestartInterval is the number of keys between restart points in
	// a data block's prefix-compression scheme.
	BlockRestartInterval int
	// BlockSize is the target uncompressed size of a data block before it
	// is flushed to the output file.
	BlockSize int
	// Compression is the per-block compression algorithm for this level.
	Compression Compression
	// FilterPolicy, if non-nil, builds a Bloom filter block for each
	// sstable written at this level. The table cache opens sstables without
	// a filter policy, so reads do not consult the filter block.
	FilterPolicy bloomfilter.FilterPolicy
	// MaxBytes is the target size of the level, used by the compaction
	// picker's score computation.
	MaxBytes int64
	// TargetFileSize is the size at which a compaction producing output
	// for this level rolls over to a new sstable.
	TargetFileSize int64
}

// EnsureDefaults ensures that the default values for all fields in o are
// set if a valid value was not already specified.
func (o *LevelOptions) EnsureDefaults() *LevelOptions {
	if o == nil {
		o = &LevelOptions{}
	}
	if o.BlockRestartInterval <= 0 {
		o.BlockRestartInterval = 16
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.Compression <= DefaultCompression || o.Compression >= nCompression {
		o.Compression = SnappyCompression
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 64 << 20
	}
	if o.TargetFileSize <= 0 {
		o.TargetFileSize = 2 << 20
	}
	return o
}

// Options holds the parameters for opening a DB. A nil *Options is valid
// and means to use the default values.
type Options struct {
	// BytesPerSync controls the frequency with which data is synced to
	// disk as it is written, ahead of an explicit Sync, to smooth the I/O
	// latency that would otherwise occur at the end of a large write.
	BytesPerSync int
	// BlockCacheSize bounds the total size, in bytes, of decoded sstable
	// blocks the engine keeps resident in memory.
	BlockCacheSize int64
	// Comparer defines the order of keys in the database, and must be the
	// same across every open of an existing store.
	Comparer *base.Comparer
	// ErrorIfDBExists, if true, causes Open to fail if the database
	// already exists.
	ErrorIfDBExists bool
	// L0CompactionThreshold is the number of L0 files that triggers an
	// L0 compaction.
	L0CompactionThreshold int
	// L0SlowdownWritesThreshold is the number of L0 files at which writes
	// are slowed to let compaction catch up.
	L0SlowdownWritesThreshold int
	// L0StopWritesThreshold is the number of L0 files at which writes are
	// blocked entirely until compaction reduces the L0 file count.
	L0StopWritesThreshold int
	// Levels holds the per-level options. Levels[i] configures level i;
	// if shorter than the number of levels actually used, Level
	// extrapolates from the last configured entry.
	Levels []LevelOptions
	// MaxOpenFiles bounds the number of open sstable file descriptors the
	// table cache keeps resident.
	MaxOpenFiles int
	// MemTableSize is the size, in bytes, at which a memtable is queued
	// for flushing to an L0 sstable.
	MemTableSize int64
	// MemTableStopWritesThreshold is the maximum number of memtables,
	// including the mutable memtable, that may exist at once before
	// writes are blocked until a flush completes.
	MemTableStopWritesThreshold int
	// FS provides the platform abstraction for all file operations.
	FS storage.FS
	// Logger logs internal engine events such as flushes and compactions.
	Logger base.Logger
}

// EnsureDefaults ensures that the default values for all options are set
// if a valid value was not already specified, and returns o.
func (o *Options) EnsureDefaults() *Options {
	if o == nil {
		o = &Options{}
	}
	if o.BytesPerSync <= 0 {
		o.BytesPerSync = 512 << 10
	}
	if o.BlockCacheSize <= 0 {
		o.BlockCacheSize = 8 << 20
	}
	if o.Comparer == nil {
		o.Comparer = base.DefaultComparer
	}
	if o.L0CompactionThreshold <= 0 {
		o.L0CompactionThreshold = 4
	}
	if o.L0SlowdownWritesThreshold <= 0 {
		o.L0SlowdownWritesThreshold = 8
	}
	if o.L0StopWritesThreshold <= 0 {
		o.L0StopWritesThreshold = 12
	}
	if o.Levels == nil {
		o.Levels = make([]LevelOptions, 1)
	}
	for i := range o.Levels {
		if i > 0 {
			l := &o.Levels[i]
			if l.MaxBytes <= 0 {
				l.MaxBytes = o.Levels[i-1].MaxBytes * 10
			}
			if l.TargetFileSize <= 0 {
				l.TargetFileSize = o.Levels[i-1].TargetFileSize * 2
			}
		}
		o.Levels[i] = *o.Levels[i].EnsureDefaults()
	}
	if o.MaxOpenFiles <= 0 {
		o.MaxOpenFiles = 1000
	}
	if o.MemTableSize <= 0 {
		o.MemTableSize = 4 << 20
	}
	if o.MemTableStopWritesThreshold <= 0 {
		o.MemTableStopWritesThreshold = 2
	}
	if o.FS == nil {
		o.FS = storage.Default
	}
	if o.Logger == nil {
		o.Logger = base.DefaultLogger
	}
	return o
}

// Level returns the options for the given level, extrapolating from the
// last explicitly configured level if level is beyond len(o.Levels).
func (o *Options) Level(level int) LevelOptions {
	if level < len(o.Levels) {
		return o.Levels[level]
	}
	n := len(o.Levels) - 1
	l := o.Levels[n]
	for i := n; i < level; i++ {
		l.MaxBytes *= 10
		l.TargetFileSize *= 2
	}
	return l
}

// compactionOptions translates the relevant subset of o into the
// internal/compaction package's Options, used to build a Picker.
func (o *Options) compactionOptions() compaction.Options {
	return compaction.Options{
		L0CompactionThreshold: o.L0CompactionThreshold,
		MemTableSize:          o.MemTableSize,
		LBaseMaxBytes:         o.Level(1).MaxBytes,
		TargetFileSize:        o.Level(0).TargetFileSize,
	}
}

// writerOptions translates the per-level options for level into the
// internal/sstable package's WriterOptions.
func (o *Options) writerOptions(level int) sstable.WriterOptions {
	lo := o.Level(level)
	return sstable.WriterOptions{
		Compare:         o.Comparer.Compare,
		Separator:       o.Comparer.Separator,
		BlockSize:       lo.BlockSize,
		RestartInterval: lo.BlockRestartInterval,
		Compression:     lo.Compression.toSSTable(),
		FilterPolicy:    lo.FilterPolicy,
	}
}

func (o *Options) newBlockCache() *cache.BlockCache {
	return cache.NewBlockCache(o.BlockCacheSize)
}

func (o *Options) newTableCache() *cache.TableCache {
	return cache.NewTableCache(o.MaxOpenFiles)
}

// ReadOptions holds the optional per-call parameters for Get and NewIter.
// A nil *ReadOptions is valid and means no bound restriction.
type ReadOptions struct {
	// LowerBound restricts iteration to keys >= LowerBound.
	LowerBound []byte
	// UpperBound restricts iteration to keys < UpperBound.
	UpperBound []byte
}

// GetLowerBound returns o.LowerBound, treating a nil *ReadOptions as having
// no lower bound.
func (o *ReadOptions) GetLowerBound() []byte {
	if o == nil {
		return nil
	}
	return o.LowerBound
}

// GetUpperBound returns o.UpperBound, treating a nil *ReadOptions as having
// no upper bound.
func (o *ReadOptions) GetUpperBound() []byte {
	if o == nil {
		return nil
	}
	return o.UpperBound
}

// WriteOptions holds the optional per-call parameters for Set and Delete.
type WriteOptions struct {
	// Sync, if true, waits for the write to be synced to stable storage
	// before returning.
	Sync bool
}

// Sync and NoSync are the two WriteOptions values most callers need; they
// avoid an allocation at every call site that doesn't need a custom value.
var (
	Sync   = &WriteOptions{Sync: true}
	NoSync = &WriteOptions{Sync: false}
)

// GetSync returns the Sync value of o, treating a nil *WriteOptions (the
// zero value of the type most commonly used as a default) as Sync, to
// match the classic package's conservative default.
func (o *WriteOptions) GetSync() bool {
	return o == nil || o.Sync
}
