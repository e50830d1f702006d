package arenaskl

import (
	"errors"
	"math"
	"math/rand"
	"sync/atomic"
	"unsafe"
)

const (
	maxHeight   = 20
	maxNodeSize = int(unsafe.Sizeof(node{}))
	linksSize   = int(unsafe.Sizeof(links{}))
	pValue      = 1 / math.E
)

// ErrRecordExists is returned by Add when an entry with an identical encoded
// key is already present (never expected for the memtable, since every
// insert carries a fresh, strictly increasing sequence number, but
// surfaced rather than silently overwriting in case a caller violates that
// invariant).
var ErrRecordExists = errors.New("arenaskl: record with this key already exists")

// Compare orders two already-encoded keys. The memtable passes a comparer
// that decodes the internal-key trailer so entries for one user key sort
// newest sequence number first.
type Compare func(a, b []byte) int

// Skiplist is a lock-free, arena-backed sorted map supporting one writer and
// many concurrent readers.
type Skiplist struct {
	arena    *Arena
	compare  Compare
	head     *node
	tail     *node
	height   uint32
}

var probabilities [maxHeight]uint32

func init() {
	p := float64(1.0)
	for i := 0; i < maxHeight; i++ {
		probabilities[i] = uint32(float64(math.MaxUint32) * p)
		p *= pValue
	}
}

// NewSkiplist constructs an empty skip list backed by arena.
func NewSkiplist(arena *Arena, compare Compare) *Skiplist {
	s := &Skiplist{arena: arena, compare: compare}
	head, err := newNode(arena, maxHeight, nil, nil)
	if err != nil {
		panic("arenaskl: arena too small for head node")
	}
	tail, err := newNode(arena, maxHeight, nil, nil)
	if err != nil {
		panic("arenaskl: arena too small for tail node")
	}
	headOffset := arena.GetPointerOffset(unsafe.Pointer(head))
	tailOffset := arena.GetPointerOffset(unsafe.Pointer(tail))
	for i := 0; i < maxHeight; i++ {
		head.tower[i].nextOffset = tailOffset
		tail.tower[i].prevOffset = headOffset
	}
	s.head, s.tail, s.height = head, tail, 1
	return s
}

// Arena returns the arena backing this list.
func (s *Skiplist) Arena() *Arena { return s.arena }

// Size reports how many bytes have been allocated from the arena.
func (s *Skiplist) Size() uint32 { return s.arena.Size() }

type splice struct {
	prev, next *node
}

func (sp *splice) init(prev, next *node) { sp.prev, sp.next = prev, next }

// Add inserts key/value. Concurrent with any number of readers and NewIter
// calls, but Add itself must not be called concurrently with another Add
// (single-writer discipline, enforced by the write coordinator).
func (s *Skiplist) Add(key, value []byte) error {
	var spl [maxHeight]splice
	if s.findSplice(key, &spl) {
		return ErrRecordExists
	}

	height := s.randomHeight()
	nd, err := newNode(s.arena, height, key, value)
	if err != nil {
		return err
	}
	s.tryIncreaseHeight(height)

	ndOffset := s.arena.GetPointerOffset(unsafe.Pointer(nd))
	for i := 0; i < int(height); i++ {
		prev, next := spl[i].prev, spl[i].next
		if prev == nil {
			prev, next = s.head, s.tail
		}
		for {
			prevOffset := s.arena.GetPointerOffset(unsafe.Pointer(prev))
			nextOffset := s.arena.GetPointerOffset(unsafe.Pointer(next))
			nd.tower[i].init(prevOffset, nextOffset)

			if next.prevOffset(i) != prevOffset {
				if prev.nextOffset(i) == nextOffset {
					next.casPrevOffset(i, next.prevOffset(i), prevOffset)
				}
			}

			if prev.casNextOffset(i, nextOffset, ndOffset) {
				next.casPrevOffset(i, prevOffset, ndOffset)
				break
			}

			var found bool
			prev, next, found = s.findSpliceForLevel(key, i, prev)
			if found {
				return ErrRecordExists
			}
		}
	}
	return nil
}

func (s *Skiplist) tryIncreaseHeight(height uint32) {
	for {
		cur := s.Height()
		if height <= cur {
			return
		}
		if atomic.CompareAndSwapUint32(&s.height, cur, height) {
			return
		}
	}
}

// Height returns the tallest tower among nodes ever inserted.
func (s *Skiplist) Height() uint32 { return atomic.LoadUint32(&s.height) }

// NewIter returns an unpositioned iterator, safe to copy by value.
func (s *Skiplist) NewIter() Iterator {
	return Iterator{list: s, nd: s.head}
}

func (s *Skiplist) randomHeight() uint32 {
	rnd := rand.Uint32()
	h := uint32(1)
	for h < maxHeight && rnd <= probabilities[h] {
		h++
	}
	return h
}

func (s *Skiplist) findSplice(key []byte, spl *[maxHeight]splice) bool {
	var found bool
	level := int(s.Height() - 1)
	prev := s.head
	for {
		var next *node
		prev, next, found = s.findSpliceForLevel(key, level, prev)
		if next == nil {
			next = s.tail
		}
		spl[level].init(prev, next)
		if level == 0 {
			break
		}
		level--
	}
	return found
}

func (s *Skiplist) findSpliceForLevel(key []byte, level int, start *node) (prev, next *node, found bool) {
	prev = start
	for {
		next = s.getNext(prev, level)
		if next == s.tail {
			return prev, nil, false
		}
		nextKey := next.getKeyBytes(s.arena)
		cmp := s.compare(key, nextKey)
		if cmp == 0 {
			return prev, next, true
		}
		if cmp < 0 {
			return prev, next, false
		}
		prev = next
	}
}

func (s *Skiplist) getNext(nd *node, h int) *node {
	return (*node)(s.arena.GetPointer(nd.nextOffset(h)))
}

func (s *Skiplist) getPrev(nd *node, h int) *node {
	return (*node)(s.arena.GetPointer(nd.prevOffset(h)))
}
