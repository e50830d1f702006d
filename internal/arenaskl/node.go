package arenaskl

import (
	"math"
	"sync/atomic"
)

type links struct {
	nextOffset uint32
	prevOffset uint32
}

func (l *links) init(prevOffset, nextOffset uint32) {
	l.nextOffset = nextOffset
	l.prevOffset = prevOffset
}

// node holds one skip-list entry. key is the fully encoded internal key
// (user key plus the 8-byte little-endian sequence/kind trailer). Nodes are
// ordered by the Compare function the skip list was built with, not by raw
// byte order; the memtable's Compare decodes the trailer so that entries
// sharing a user key sort newest-first.
type node struct {
	keyOffset uint32
	keySize   uint32
	valueSize uint32

	// Towers are truncated to the node's actual height; elements beyond
	// that height are never allocated, so node size varies per insert.
	tower [maxHeight]links
}

func newNode(arena *Arena, height uint32, key, value []byte) (*node, error) {
	if height < 1 || height > maxHeight {
		panic("arenaskl: height out of range")
	}
	keySize := len(key)
	if keySize > math.MaxUint32 || len(value) > math.MaxUint32 {
		panic("arenaskl: key or value too large")
	}

	nd, err := newRawNode(arena, height, uint32(keySize), uint32(len(value)))
	if err != nil {
		return nil, err
	}
	copy(nd.getKeyBytes(arena), key)
	copy(nd.getValue(arena), value)
	return nd, nil
}

func newRawNode(arena *Arena, height, keySize, valueSize uint32) (*node, error) {
	unusedSize := (maxHeight - int(height)) * linksSize
	nodeSize := uint32(maxNodeSize - unusedSize)

	nodeOffset, err := arena.Alloc(nodeSize+keySize+valueSize, align4)
	if err != nil {
		return nil, err
	}

	nd := (*node)(arena.GetPointer(nodeOffset))
	nd.keyOffset = nodeOffset + nodeSize
	nd.keySize = keySize
	nd.valueSize = valueSize
	return nd, nil
}

func (n *node) getKeyBytes(arena *Arena) []byte {
	return arena.GetBytes(n.keyOffset, n.keySize)
}

func (n *node) getValue(arena *Arena) []byte {
	return arena.GetBytes(n.keyOffset+n.keySize, n.valueSize)
}

// MaxNodeSize returns the upper-bound number of arena bytes a skip-list entry
// for the given key and value will occupy: the full-height node header plus
// the key and value bytes themselves. It over-counts by the unused portion
// of the tower for any node whose randomly chosen height is less than
// maxHeight, so callers that sum it across many entries (e.g. a memtable
// deciding when it is full) get a conservative, monotonically safe budget
// rather than an exact one.
func MaxNodeSize(keySize, valueSize uint32) uint32 {
	return uint32(maxNodeSize) + keySize + valueSize + align4
}

func (n *node) nextOffset(h int) uint32 { return atomic.LoadUint32(&n.tower[h].nextOffset) }
func (n *node) prevOffset(h int) uint32 { return atomic.LoadUint32(&n.tower[h].prevOffset) }

func (n *node) casNextOffset(h int, old, val uint32) bool {
	return atomic.CompareAndSwapUint32(&n.tower[h].nextOffset, old, val)
}

func (n *node) casPrevOffset(h int, old, val uint32) bool {
	return atomic.CompareAndSwapUint32(&n.tower[h].prevOffset, old, val)
}
