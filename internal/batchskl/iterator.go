package batchskl

// Iterator walks a Skiplist's indexed offsets in key order. The zero value
// is not usable; obtain one from Skiplist.NewIter.
type Iterator struct {
	list *Skiplist
	nd   uint32
}

// Valid reports whether the iterator is positioned at an entry.
func (it *Iterator) Valid() bool {
	return it.nd != it.list.head && it.nd != it.list.tail
}

// Key returns the encoded key at the current position.
func (it *Iterator) Key() []byte {
	return it.list.storage.Get(it.list.nodes[it.nd].offset)
}

// Offset returns the batch-buffer offset recorded at the current position.
func (it *Iterator) Offset() uint32 {
	return it.list.nodes[it.nd].offset
}

// Next advances to the following entry.
func (it *Iterator) Next() bool {
	it.nd = it.list.getNext(it.nd, 0)
	return it.Valid()
}

// First positions the iterator at the first entry.
func (it *Iterator) First() bool {
	it.nd = it.list.getNext(it.list.head, 0)
	return it.Valid()
}

// Last positions the iterator at the last entry.
func (it *Iterator) Last() bool {
	it.nd = it.list.getPrev(it.list.tail)
	return it.Valid()
}

// Prev moves to the preceding entry.
func (it *Iterator) Prev() bool {
	it.nd = it.list.getPrev(it.nd)
	return it.Valid()
}

// SeekGE positions the iterator at the first entry whose key is >= target.
func (it *Iterator) SeekGE(target []byte) bool {
	level := it.list.height - 1
	prev := it.list.head
	var next uint32
	var found bool
	for {
		prev, next, found = it.list.findSpliceForLevel(target, level, prev)
		if found || level == 0 {
			break
		}
		level--
	}
	if found {
		it.nd = next
		return true
	}
	if next == it.list.tail {
		it.nd = it.list.tail
		return false
	}
	it.nd = next
	return it.Valid()
}
