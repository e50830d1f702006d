package base

import "bytes"

// Compare returns -1, 0 or +1 depending on whether a is less than, equal to
// or greater than b. The empty slice must compare less than any non-empty
// slice.
type Compare func(a, b []byte) int

// Separator appends to dst a key x such that a <= x < b, where "less than"
// agrees with Compare. It is used by the sstable writer to shorten index
// separator keys. An implementation may simply return append(dst, a...).
type Separator func(dst, a, b []byte) []byte

// Successor appends to dst a key x such that a <= x, shortening a where
// possible. Used to shorten the last key held in an sstable's index.
type Successor func(dst, a []byte) []byte

// Comparer is the pluggable capability defining a total order over user
// keys. The on-disk format records a comparer's Name; opening a database
// with a different comparer than the one it was created with is an error.
type Comparer struct {
	Compare   Compare
	Separator Separator
	Successor Successor
	Name      string
}

// DefaultComparer orders keys by byte-wise lexicographic comparison, matching
// the classic LevelDB bytewise comparator.
var DefaultComparer = &Comparer{
	Compare: bytes.Compare,

	Separator: func(dst, a, b []byte) []byte {
		i, n := SharedPrefixLen(a, b), len(dst)
		dst = append(dst, a...)

		min := len(a)
		if len(b) < min {
			min = len(b)
		}
		if i >= min {
			return dst
		}
		if a[i] >= b[i] {
			return dst
		}
		if i < len(b)-1 || a[i]+1 < b[i] {
			i += n
			dst[i]++
			return dst[:i+1]
		}
		i += n + 1
		for ; i < len(dst); i++ {
			if dst[i] != 0xff {
				dst[i]++
				return dst[:i+1]
			}
		}
		return dst
	},

	Successor: func(dst, a []byte) []byte {
		for i := 0; i < len(a); i++ {
			if a[i] != 0xff {
				dst = append(dst, a[:i+1]...)
				dst[len(dst)-1]++
				return dst
			}
		}
		return append(dst, a...)
	},

	// Part of the on-disk format; must match across opens of the same
	// database, the same way the original LevelDB comparator name does.
	Name: "strata.BytewiseComparator",
}

// SharedPrefixLen returns the largest i such that a[:i] equals b[:i].
func SharedPrefixLen(a, b []byte) int {
	i, n := 0, len(a)
	if len(b) < n {
		n = len(b)
	}
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}
