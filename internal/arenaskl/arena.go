// Package arenaskl implements a lock-free, arena-backed skip list used as
// the memtable's in-memory sorted structure (spec.md §3/§4.5). It is a
// derivative of the Dgraph/Badger inline skip list: no delete support (the
// engine represents deletion with a tombstone value-type tag instead), no
// custom splice caching, and a fixed maximum height.
package arenaskl

import (
	"sync/atomic"
	"unsafe"

	"github.com/strata-db/strata/internal/base"
)

// Arena is a lock-free bump-pointer allocator. Nodes, keys and values for a
// single memtable are all allocated from one arena; the arena (and
// everything in it) is one buffer that the garbage collector reclaims as a
// whole once nothing references it, avoiding per-node garbage collection
// pressure under high write throughput.
type Arena struct {
	n   uint32
	buf []byte
}

const align4 = 3

// NewArena allocates a new arena of the given capacity in bytes.
func NewArena(capacity uint32) *Arena {
	return &Arena{
		// Position 0 is reserved to mean "nil offset", so the first byte is
		// never handed out.
		n:   1,
		buf: make([]byte, capacity),
	}
}

// Size reports the number of bytes allocated from the arena so far.
func (a *Arena) Size() uint32 { return atomic.LoadUint32(&a.n) }

// Capacity reports the arena's total size.
func (a *Arena) Capacity() uint32 { return uint32(len(a.buf)) }

// ErrArenaFull is returned by Alloc when the arena has no room left for the
// requested allocation; the memtable is then frozen and swapped out.
var ErrArenaFull = base.InvalidArgumentErrorf("arenaskl: arena full")

// Alloc reserves size bytes aligned to align+1 bytes and returns their
// offset within the arena.
func (a *Arena) Alloc(size, align uint32) (uint32, error) {
	padded := size + align
	newSize := atomic.AddUint32(&a.n, padded)
	if int(newSize) > len(a.buf) {
		return 0, ErrArenaFull
	}
	offset := (newSize - padded + align) &^ align
	return offset, nil
}

// GetBytes returns the size bytes of arena memory starting at offset.
func (a *Arena) GetBytes(offset, size uint32) []byte {
	if offset == 0 {
		return nil
	}
	return a.buf[offset : offset+size : offset+size]
}

// GetPointer returns a pointer into the arena's backing array at offset.
func (a *Arena) GetPointer(offset uint32) unsafe.Pointer {
	if offset == 0 {
		return nil
	}
	return unsafe.Pointer(&a.buf[offset])
}

// GetPointerOffset is the inverse of GetPointer.
func (a *Arena) GetPointerOffset(ptr unsafe.Pointer) uint32 {
	if ptr == nil {
		return 0
	}
	return uint32(uintptr(ptr) - uintptr(unsafe.Pointer(&a.buf[0])))
}
