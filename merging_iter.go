// Copyright 2018 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package strata

import (
	"github.com/strata-db/strata/internal/base"
)

type mergingIterItem struct {
	index int
	key   base.InternalKey
}

// mergingIterHeap implements container/heap.Interface's contract by hand
// (init/fix/up/down copied from the stdlib algorithm), same as the classic
// root package, rather than boxing items behind heap.Interface -- the
// merging iterator is on the hot path for every read.
type mergingIterHeap struct {
	cmp     base.Compare
	reverse bool
	items   []mergingIterItem
}

func (h *mergingIterHeap) len() int { return len(h.items) }

func (h *mergingIterHeap) less(i, j int) bool {
	ikey, jkey := h.items[i].key, h.items[j].key
	c := base.InternalCompare(h.cmp, ikey, jkey)
	if h.reverse {
		return c > 0
	}
	return c < 0
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

// mergingIter merges the read path's per-source internal iterators (one per
// memtable, one per L0 file, one per non-overlapping level) into a single
// bidirectional stream of internal keys. Duplicate user keys across sources
// are expected -- the same key can live in the mutable memtable, an older
// immutable memtable awaiting flush, and an sstable simultaneously -- and
// are left for dbIter to resolve by picking the newest version a given read
// may observe.
type mergingIter struct {
	dir   int
	iters []base.InternalIterator
	heap  mergingIterHeap
	err   error
}

var _ base.InternalIterator = (*mergingIter)(nil)

// newMergingIter returns an iterator that merges iters, newest source first:
// when two sources both carry the same user key at the same visible
// sequence number, the first one's entry wins a tie, so callers order iters
// newest to oldest (mutable memtable, then immutable memtables oldest to
// newest reversed, then L0 newest file first, then L1+). It itself does not
// use that ordering -- sequence numbers alone disambiguate visibility -- but
// dbIter's duplicate-skipping relies on the InternalKey comparison already
// breaking ties by descending sequence number.
func newMergingIter(cmp base.Compare, iters ...base.InternalIterator) *mergingIter {
	m := &mergingIter{iters: iters}
	m.heap.cmp = cmp
	m.heap.items = make([]mergingIterItem, 0, len(iters))
	m.initMinHeap()
	return m
}

func (m *mergingIter) initHeap() {
	m.heap.items = m.heap.items[:0]
	for i, t := range m.iters {
		if t.Valid() {
			m.heap.items = append(m.heap.items, mergingIterItem{index: i, key: t.Key()})
		}
	}
	m.heap.init()
}

func (m *mergingIter) initMinHeap() {
	m.dir = 1
	m.heap.reverse = false
	m.initHeap()
}

func (m *mergingIter) initMaxHeap() {
	m.dir = -1
	m.heap.reverse = true
	m.initHeap()
}

// switchToMinHeap reorients every iterator but the current front one past
// the current key, so resuming forward iteration after scanning backwards
// doesn't re-yield anything already returned. See the mirror-image
// switchToMaxHeap below; both are ported from the classic root
// merging_iter.go unchanged in approach.
func (m *mergingIter) switchToMinHeap() {
	if m.heap.len() == 0 {
		m.First()
		return
	}

	key := m.heap.items[0].key
	cur := m.iters[m.heap.items[0].index]

	for _, i := range m.iters {
		if i == cur {
			continue
		}
		if !i.Valid() {
			i.Next()
		}
		for ; i.Valid(); i.Next() {
			if base.InternalCompare(m.heap.cmp, key, i.Key()) < 0 {
				break
			}
		}
	}
	cur.Next()
	m.initMinHeap()
}

func (m *mergingIter) switchToMaxHeap() {
	if m.heap.len() == 0 {
		m.Last()
		return
	}

	key := m.heap.items[0].key
	cur := m.iters[m.heap.items[0].index]

	for _, i := range m.iters {
		if i == cur {
			continue
		}
		if !i.Valid() {
			i.Prev()
		}
		for ; i.Valid(); i.Prev() {
			if base.InternalCompare(m.heap.cmp, key, i.Key()) > 0 {
				break
			}
		}
	}
	cur.Prev()
	m.initMaxHeap()
}

func (m *mergingIter) SeekGE(key []byte) bool {
	for _, t := range m.iters {
		t.SeekGE(key)
	}
	m.initMinHeap()
	return m.heap.len() > 0
}

func (m *mergingIter) First() bool {
	for _, t := range m.iters {
		t.First()
	}
	m.initMinHeap()
	return m.heap.len() > 0
}

func (m *mergingIter) Last() bool {
	for _, t := range m.iters {
		t.Last()
	}
	m.initMaxHeap()
	return m.heap.len() > 0
}

func (m *mergingIter) Next() bool {
	if m.err != nil {
		return false
	}
	if m.dir != 1 {
		m.switchToMinHeap()
		return m.heap.len() > 0
	}
	if m.heap.len() == 0 {
		return false
	}

	item := &m.heap.items[0]
	iter := m.iters[item.index]
	if iter.Next() {
		item.key = iter.Key()
		m.heap.fix(0)
		return true
	}

	m.err = iter.Error()
	if m.err != nil {
		return false
	}
	m.heap.pop()
	return m.heap.len() > 0
}

func (m *mergingIter) Prev() bool {
	if m.err != nil {
		return false
	}
	if m.dir != -1 {
		m.switchToMaxHeap()
		return m.heap.len() > 0
	}
	if m.heap.len() == 0 {
		return false
	}

	item := &m.heap.items[0]
	iter := m.iters[item.index]
	if iter.Prev() {
		item.key = iter.Key()
		m.heap.fix(0)
		return true
	}

	m.err = iter.Error()
	if m.err != nil {
		return false
	}
	m.heap.pop()
	return m.heap.len() > 0
}

func (m *mergingIter) Key() base.InternalKey {
	if m.heap.len() == 0 || m.err != nil {
		return base.InternalKey{}
	}
	return m.heap.items[0].key
}

func (m *mergingIter) Value() []byte {
	if m.heap.len() == 0 || m.err != nil {
		return nil
	}
	return m.iters[m.heap.items[0].index].Value()
}

func (m *mergingIter) Valid() bool {
	return m.heap.len() > 0 && m.err == nil
}

func (m *mergingIter) Error() error {
	if m.heap.len() == 0 || m.err != nil {
		return m.err
	}
	return m.iters[m.heap.items[0].index].Error()
}

func (m *mergingIter) Close() error {
	for _, iter := range m.iters {
		if err := iter.Close(); err != nil && m.err == nil {
			m.err = err
		}
	}
	m.iters = nil
	m.heap.items = nil
	return m.err
}
