package base

// InternalIterator is the common interface implemented by every component
// that produces a stream of internal keys in comparer order: memtable
// iterators, sstable block/table iterators, the merging iterator, and the
// per-level iterator. Exposing one interface lets the merging iterator treat
// a memtable and an sstable identically.
type InternalIterator interface {
	// SeekGE moves to the first entry whose key is >= key.
	SeekGE(key []byte) bool
	// First moves to the first entry.
	First() bool
	// Last moves to the last entry.
	Last() bool
	// Next moves to the next entry, in increasing key order.
	Next() bool
	// Prev moves to the previous entry, in decreasing key order.
	Prev() bool
	// Valid reports whether the iterator is positioned at an entry.
	Valid() bool
	// Key returns the internal key at the current position. Valid must be
	// true. The returned key is only valid until the next iterator call.
	Key() InternalKey
	// Value returns the value at the current position.
	Value() []byte
	// Error returns any accumulated error.
	Error() error
	// Close releases any resources held by the iterator.
	Close() error
}
