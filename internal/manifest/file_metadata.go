// Package manifest implements the persistent description of which sstables
// make up the database: per-level file metadata, the in-memory Version built
// from it, VersionEdit (the unit of change recorded in the MANIFEST log),
// and VersionSet (the component that owns the current Version and appends
// edits to the manifest under DB.mu). Grounded on the classic
// version.go/version_edit.go/version_set.go, split into their own package
// the way the teacher's own modern tree does (version_set.go there imports
// `internal/manifest` for exactly these types).
package manifest

import (
	"fmt"
	"sync/atomic"

	"github.com/strata-db/strata/internal/base"
)

// NumLevels is the number of levels in the LSM tree, L0 through L6.
const NumLevels = 7

// readCompactionRate sets the read-sampling budget a newly written file
// starts with: one allowed seek per this many bytes. 32KB matches the
// classic pebble lineage's Options.Experimental.ReadCompactionRate default.
const readCompactionRate = 32 << 10

// InitAllowedSeeks computes the read-sampling compaction budget for a
// freshly written file of the given size, the classic formula: one allowed
// seek per readCompactionRate bytes, floored at 100 so small files still
// tolerate a reasonable number of wasted seeks before being nominated for
// compaction.
func InitAllowedSeeks(size uint64) int64 {
	seeks := int64(size) / readCompactionRate
	if seeks < 100 {
		seeks = 100
	}
	return seeks
}

// FileMetadata describes one on-disk sstable. It is shared (by pointer)
// across every Version that references the file, so a reference count
// lets VersionSet know when the file becomes obsolete and can be deleted.
type FileMetadata struct {
	FileNum             base.FileNum
	Size                uint64
	Smallest            base.InternalKey
	Largest             base.InternalKey
	SmallestSeqNum      base.SeqNum
	LargestSeqNum       base.SeqNum
	MarkedForCompaction bool

	// AllowedSeeks is the read-sampling budget of spec.md §3, initialized
	// to InitAllowedSeeks(Size) when the file is created. It is decremented
	// (via RecordWastedSeek) every time a lookup checks this file, finds
	// nothing, and the search continues into a lower level; accessed with
	// sync/atomic since reads proceed without the owning DB's mutex held.
	AllowedSeeks int64

	refs int32
}

// RecordWastedSeek charges m for one lookup that consulted it, found
// nothing, and had to continue searching a lower level. It reports true
// exactly once, the first call that exhausts the budget, so the caller
// knows to nominate the file for a seek-triggered compaction.
func (m *FileMetadata) RecordWastedSeek() bool {
	return atomic.AddInt64(&m.AllowedSeeks, -1) == 0
}

func (m *FileMetadata) String() string {
	return fmt.Sprintf("%06d:[%s-%s]", m.FileNum, m.Smallest, m.Largest)
}

// Ref increments the file's reference count; must be called with the owning
// VersionSet's mutex held.
func (m *FileMetadata) Ref() { m.refs++ }

// Unref decrements the reference count, returning true once it reaches
// zero (meaning the file is no longer referenced by any live Version and
// its backing sstable can be deleted).
func (m *FileMetadata) Unref() bool {
	m.refs--
	if m.refs < 0 {
		panic("manifest: FileMetadata refcount underflow")
	}
	return m.refs == 0
}

// TotalSize sums the on-disk size of every file in files.
func TotalSize(files []*FileMetadata) uint64 {
	var size uint64
	for _, f := range files {
		size += f.Size
	}
	return size
}

// KeyRange returns the minimum smallest and maximum largest internal key
// spanned by the union of f0 and f1.
func KeyRange(cmp base.Compare, f0, f1 []*FileMetadata) (smallest, largest base.InternalKey) {
	first := true
	for _, files := range [2][]*FileMetadata{f0, f1} {
		for _, f := range files {
			if first {
				first = false
				smallest, largest = f.Smallest, f.Largest
				continue
			}
			if base.InternalCompare(cmp, f.Smallest, smallest) < 0 {
				smallest = f.Smallest
			}
			if base.InternalCompare(cmp, f.Largest, largest) > 0 {
				largest = f.Largest
			}
		}
	}
	return smallest, largest
}

// BySeqNum orders L0 files the way RocksDB does: by largest sequence number,
// then smallest, then file number, so iterating L0 files in this order
// visits them newest-to-be-superseded last.
type BySeqNum []*FileMetadata

func (b BySeqNum) Len() int { return len(b) }
func (b BySeqNum) Less(i, j int) bool {
	if b[i].LargestSeqNum != b[j].LargestSeqNum {
		return b[i].LargestSeqNum < b[j].LargestSeqNum
	}
	if b[i].SmallestSeqNum != b[j].SmallestSeqNum {
		return b[i].SmallestSeqNum < b[j].SmallestSeqNum
	}
	return b[i].FileNum < b[j].FileNum
}
func (b BySeqNum) Swap(i, j int) { b[i], b[j] = b[j], b[i] }

// BySmallest orders files at levels >= 1 by their smallest key, which is
// valid there only because such files are known not to overlap.
type BySmallest struct {
	Files []*FileMetadata
	Cmp   base.Compare
}

func (b BySmallest) Len() int { return len(b.Files) }
func (b BySmallest) Less(i, j int) bool {
	return base.InternalCompare(b.Cmp, b.Files[i].Smallest, b.Files[j].Smallest) < 0
}
func (b BySmallest) Swap(i, j int) { b.Files[i], b.Files[j] = b.Files[j], b.Files[i] }
