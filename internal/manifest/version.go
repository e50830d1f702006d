package manifest

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/strata-db/strata/internal/base"
)

// Version is an immutable snapshot of which sstables exist at each level.
// L0 files may overlap each other in key range; they are kept in the order
// they were flushed (oldest first). Files at any level >= 1 are sorted by
// key range and never overlap one another.
type Version struct {
	refs int32

	Files [NumLevels][]*FileMetadata

	obsolete func([]base.FileNum)

	list       *VersionList
	prev, next *Version
}

func (v *Version) String() string {
	var buf bytes.Buffer
	for level := 0; level < NumLevels; level++ {
		if len(v.Files[level]) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "%d:", level)
		for _, f := range v.Files[level] {
			fmt.Fprintf(&buf, " %s-%s", f.Smallest.UserKey, f.Largest.UserKey)
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.String()
}

// Ref increments the version's reference count.
func (v *Version) Ref() { atomic.AddInt32(&v.refs, 1) }

// Unref decrements the reference count. Once it reaches zero, the version
// is removed from its VersionList and every file it references has its own
// reference count dropped; files that reach zero are reported through the
// obsolete callback so VersionSet can schedule their deletion.
func (v *Version) Unref() {
	if atomic.AddInt32(&v.refs, -1) != 0 {
		return
	}
	var obsolete []base.FileNum
	for _, files := range v.Files {
		for _, f := range files {
			if f.Unref() {
				obsolete = append(obsolete, f.FileNum)
			}
		}
	}
	if v.list != nil {
		v.list.mu.Lock()
		v.list.remove(v)
		v.list.mu.Unlock()
	}
	if v.obsolete != nil && len(obsolete) > 0 {
		v.obsolete(obsolete)
	}
}

// Overlaps returns every file at level whose user key range intersects
// [start, end]. For level 0, whose files may overlap each other, the
// search range is expanded and retried until it stabilizes.
func (v *Version) Overlaps(level int, cmp base.Compare, start, end []byte) []*FileMetadata {
	if level == 0 {
		var ret []*FileMetadata
	loop:
		for {
			for _, f := range v.Files[level] {
				smallest, largest := f.Smallest.UserKey, f.Largest.UserKey
				if cmp(largest, start) < 0 || cmp(smallest, end) > 0 {
					continue
				}
				ret = append(ret, f)
				restart := false
				if cmp(smallest, start) < 0 {
					start, restart = smallest, true
				}
				if cmp(largest, end) > 0 {
					end, restart = largest, true
				}
				if restart {
					ret = ret[:0]
					continue loop
				}
			}
			return ret
		}
	}

	files := v.Files[level]
	lower := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Largest.UserKey, start) >= 0
	})
	upper := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Smallest.UserKey, end) > 0
	})
	if lower >= upper {
		return nil
	}
	return files[lower:upper]
}

// Contains returns the single file at level (>= 1, where files are sorted
// and non-overlapping) whose key range may hold key, or nil if no file's
// range covers it. Used by the point-lookup path, which otherwise has no
// reason to build a full overlap slice for a single key.
func (v *Version) Contains(level int, cmp base.Compare, key []byte) *FileMetadata {
	files := v.Files[level]
	i := sort.Search(len(files), func(i int) bool {
		return cmp(files[i].Largest.UserKey, key) >= 0
	})
	if i >= len(files) || cmp(files[i].Smallest.UserKey, key) > 0 {
		return nil
	}
	return files[i]
}

// CheckOrdering validates the invariants Version depends on: L0 files in
// increasing sequence-number order, and L1+ files sorted and non-overlapping.
func (v *Version) CheckOrdering(cmp base.Compare) error {
	for level, files := range v.Files {
		if level == 0 {
			for i := 1; i < len(files); i++ {
				prev, f := files[i-1], files[i]
				if prev.LargestSeqNum >= f.LargestSeqNum {
					return fmt.Errorf("manifest: level 0 files not in increasing largest seqnum order: %d, %d",
						prev.LargestSeqNum, f.LargestSeqNum)
				}
			}
			continue
		}
		for i := 1; i < len(files); i++ {
			prev, f := files[i-1], files[i]
			if base.InternalCompare(cmp, prev.Largest, f.Smallest) >= 0 {
				return fmt.Errorf("manifest: level %d files not in increasing key order: %s, %s", level, prev.Largest, f.Smallest)
			}
		}
	}
	return nil
}

// VersionList is a circular doubly-linked list of every live Version, used
// by VersionSet to find the oldest version still pinning a file when
// deciding what is obsolete.
type VersionList struct {
	mu   *sync.Mutex
	root Version
}

// Init prepares an empty list, protected by mu (normally the owning
// VersionSet's mutex).
func (l *VersionList) Init(mu *sync.Mutex) {
	l.mu = mu
	l.root.next = &l.root
	l.root.prev = &l.root
}

func (l *VersionList) Empty() bool    { return l.root.next == &l.root }
func (l *VersionList) Front() *Version { return l.root.next }
func (l *VersionList) Back() *Version  { return l.root.prev }

// PushBack appends v to the list.
func (l *VersionList) PushBack(v *Version) {
	if v.list != nil || v.prev != nil || v.next != nil {
		panic("manifest: version list is inconsistent")
	}
	v.prev = l.root.prev
	v.prev.next = v
	v.next = &l.root
	v.next.prev = v
	v.list = l
}

func (l *VersionList) remove(v *Version) {
	if v == &l.root {
		panic("manifest: cannot remove version list root")
	}
	v.prev.next = v.next
	v.next.prev = v.prev
	v.next, v.prev, v.list = nil, nil, nil
}
