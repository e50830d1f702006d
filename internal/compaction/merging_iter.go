// Package compaction picks which sstables should be merged next and runs
// the merge itself, producing new sstables and the VersionEdit that installs
// them. Grounded on the classic compaction.go (picking, trivial moves, the
// drop rules applied while merging) and compaction_picker.go (the
// score-based picker), with the heap-backed k-way merge ported from
// merging_iter.go/merging_iter_heap.go.
package compaction

import (
	"github.com/strata-db/strata/internal/base"
)

type mergingIterItem struct {
	index int
	key   base.InternalKey
}

// mergingIterHeap is the same binary min-heap shape as Go's container/heap,
// inlined (as the teacher does) to avoid boxing items behind an interface.
type mergingIterHeap struct {
	cmp   base.Compare
	items []mergingIterItem
}

func (h *mergingIterHeap) len() int { return len(h.items) }

func (h *mergingIterHeap) less(i, j int) bool {
	return base.InternalCompare(h.cmp, h.items[i].key, h.items[j].key) < 0
}

func (h *mergingIterHeap) swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *mergingIterHeap) init() {
	n := h.len()
	for i := n/2 - 1; i >= 0; i-- {
		h.down(i, n)
	}
}

func (h *mergingIterHeap) fix(i int) {
	if !h.down(i, h.len()) {
		h.up(i)
	}
}

func (h *mergingIterHeap) pop() *mergingIterItem {
	n := h.len() - 1
	h.swap(0, n)
	h.down(0, n)
	item := &h.items[n]
	h.items = h.items[:n]
	return item
}

func (h *mergingIterHeap) up(j int) {
	for {
		i := (j - 1) / 2
		if i == j || !h.less(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *mergingIterHeap) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 {
			break
		}
		j := j1
		if j2 := j1 + 1; j2 < n && h.less(j2, j1) {
			j = j2
		}
		if !h.less(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
	return i > i0
}

// MergingIter merges the forward output of several internal iterators
// (typically one per input sstable) into a single strictly-increasing
// stream of internal keys, used to drive a compaction's single output pass.
// Unlike the root package's read-path iterator, this one is forward-only:
// a compaction never needs to scan backwards.
type MergingIter struct {
	iters []base.InternalIterator
	heap  mergingIterHeap
	err   error
}

var _ base.InternalIterator = (*MergingIter)(nil)

// NewMergingIter returns an iterator yielding every key/value pair from
// iters in strictly increasing internal-key order. Input key ranges may
// overlap; duplicate user keys across iters are expected (that's exactly
// what a compaction needs to resolve) and are not deduplicated here.
func NewMergingIter(cmp base.Compare, iters ...base.InternalIterator) *MergingIter {
	m := &MergingIter{iters: iters}
	m.heap.cmp = cmp
	m.heap.items = make([]mergingIterItem, 0, len(iters))
	return m
}

func (m *MergingIter) initHeap() {
	m.heap.items = m.heap.items[:0]
	for i, t := range m.iters {
		if t.Valid() {
			m.heap.items = append(m.heap.items, mergingIterItem{index: i, key: t.Key()})
		}
	}
	m.heap.init()
}

func (m *MergingIter) SeekGE(key []byte) bool {
	for _, t := range m.iters {
		t.SeekGE(key)
	}
	m.initHeap()
	return m.heap.len() > 0
}

func (m *MergingIter) First() bool {
	for _, t := range m.iters {
		t.First()
	}
	m.initHeap()
	return m.heap.len() > 0
}

func (m *MergingIter) Last() bool {
	panic("compaction: MergingIter is forward-only")
}

func (m *MergingIter) Prev() bool {
	panic("compaction: MergingIter is forward-only")
}

func (m *MergingIter) Next() bool {
	if m.err != nil || m.heap.len() == 0 {
		return false
	}
	item := &m.heap.items[0]
	iter := m.iters[item.index]
	if iter.Next() {
		item.key = iter.Key()
		m.heap.fix(0)
		return true
	}
	if m.err = iter.Error(); m.err != nil {
		return false
	}
	m.heap.pop()
	return m.heap.len() > 0
}

func (m *MergingIter) Valid() bool {
	return m.heap.len() > 0 && m.err == nil
}

func (m *MergingIter) Key() base.InternalKey {
	return m.heap.items[0].key
}

func (m *MergingIter) Value() []byte {
	return m.iters[m.heap.items[0].index].Value()
}

func (m *MergingIter) Error() error {
	if m.err != nil {
		return m.err
	}
	if m.heap.len() == 0 {
		return nil
	}
	return m.iters[m.heap.items[0].index].Error()
}

func (m *MergingIter) Close() error {
	for _, iter := range m.iters {
		if err := iter.Close(); err != nil && m.err == nil {
			m.err = err
		}
	}
	m.iters = nil
	m.heap.items = nil
	return m.err
}
