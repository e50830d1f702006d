package arenaskl

// Iterator walks a Skiplist in either direction. The zero value is not
// usable; obtain one from Skiplist.NewIter. Safe to copy by value and to use
// concurrently with writers (it never observes a torn insert, by the
// publication-safety property of the Add algorithm).
type Iterator struct {
	list *Skiplist
	nd   *node
}

// Valid reports whether the iterator is positioned at an entry (as opposed
// to before the first or after the last entry).
func (it *Iterator) Valid() bool {
	return it.nd != nil && it.nd != it.list.head && it.nd != it.list.tail
}

// Key returns the encoded key at the current position.
func (it *Iterator) Key() []byte {
	return it.nd.getKeyBytes(it.list.arena)
}

// Value returns the value at the current position.
func (it *Iterator) Value() []byte {
	return it.nd.getValue(it.list.arena)
}

// Next advances to the following entry, returning false once exhausted.
func (it *Iterator) Next() bool {
	it.nd = it.list.getNext(it.nd, 0)
	return it.Valid()
}

// Prev moves to the preceding entry, returning false once exhausted.
func (it *Iterator) Prev() bool {
	it.nd = it.list.getPrev(it.nd, 0)
	return it.Valid()
}

// First positions the iterator at the first entry.
func (it *Iterator) First() bool {
	it.nd = it.list.getNext(it.list.head, 0)
	return it.Valid()
}

// Last positions the iterator at the last entry.
func (it *Iterator) Last() bool {
	it.nd = it.list.getPrev(it.list.tail, 0)
	return it.Valid()
}

// SeekGE positions the iterator at the first entry whose key is >= target
// under the list's comparer.
func (it *Iterator) SeekGE(target []byte) bool {
	_, next, found := it.list.findSpliceForLevel(target, 0, it.list.head)
	if found {
		it.nd = next
		return true
	}
	if next == nil {
		it.nd = it.list.tail
		return false
	}
	it.nd = next
	return it.Valid()
}
