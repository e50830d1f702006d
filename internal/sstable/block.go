// Package sstable implements the on-disk sorted-table format: a sequence of
// prefix-compressed data blocks, an optional filter block, an index block
// mapping separator keys to data block handles, a metaindex block, and a
// fixed-size footer. Grounded on the classic table/{block,reader,writer}.go,
// restructured around base.InternalKey/base.InternalIterator so the same
// reader can be merged with memtable iterators by the merging iterator.
package sstable

import (
	"encoding/binary"
	"sort"

	"github.com/strata-db/strata/internal/base"
)

// blockWriter accumulates prefix-compressed key/value pairs for one block
// (data, index, or metaindex), restarting the shared-prefix chain every
// restartInterval entries so readers can binary search restart points
// without decoding every preceding entry.
type blockWriter struct {
	restartInterval int
	nEntries        int
	buf             []byte
	restarts        []uint32
	prevKey         []byte
	tmp             [3 * binary.MaxVarintLen64]byte
}

func newBlockWriter(restartInterval int) *blockWriter {
	return &blockWriter{restartInterval: restartInterval, restarts: []uint32{0}}
}

// add appends key/value. For data blocks, key is an encoded internal key;
// for the index block it is a separator, and for the metaindex block it is
// the filter name. Keys must be added in increasing order.
func (w *blockWriter) add(key, value []byte) {
	shared := 0
	restart := w.nEntries%w.restartInterval == 0
	if restart {
		// restarts is seeded with offset 0, which covers the first entry.
		if w.nEntries > 0 {
			w.restarts = append(w.restarts, uint32(len(w.buf)))
		}
	} else {
		shared = base.SharedPrefixLen(w.prevKey, key)
	}

	n := binary.PutUvarint(w.tmp[0:], uint64(shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(key)-shared))
	n += binary.PutUvarint(w.tmp[n:], uint64(len(value)))
	w.buf = append(w.buf, w.tmp[:n]...)
	w.buf = append(w.buf, key[shared:]...)
	w.buf = append(w.buf, value...)

	w.prevKey = append(w.prevKey[:0], key...)
	w.nEntries++
}

// estimatedSize returns the block's size if finished right now, used to
// decide when to close the current block out.
func (w *blockWriter) estimatedSize() int {
	return len(w.buf) + 4*(len(w.restarts)+1)
}

func (w *blockWriter) empty() bool { return w.nEntries == 0 }

// finish appends the restart point table and count, returning the block's
// uncompressed bytes. The writer can be reset and reused afterward.
func (w *blockWriter) finish() []byte {
	if len(w.restarts) == 1 && w.restarts[0] != 0 {
		w.restarts[0] = 0
	}
	var tmp4 [4]byte
	for _, x := range w.restarts {
		binary.LittleEndian.PutUint32(tmp4[:], x)
		w.buf = append(w.buf, tmp4[:]...)
	}
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(w.restarts)))
	w.buf = append(w.buf, tmp4[:]...)
	return w.buf
}

func (w *blockWriter) reset() {
	w.buf = w.buf[:0]
	w.restarts = w.restarts[:1]
	w.restarts[0] = 0
	w.nEntries = 0
	w.prevKey = w.prevKey[:0]
}

func decodeVarint(src []byte) (uint32, int) {
	v, n := binary.Uvarint(src)
	return uint32(v), n
}

// blockIter iterates one decoded block in comparer order, reconstructing
// each key from the restart-relative shared-prefix encoding.
type blockIter struct {
	cmp         base.Compare
	data        []byte
	restarts    int
	numRestarts int
	offset      int
	nextOffset  int
	key         []byte
	val         []byte
	ikey        base.InternalKey
	isIndex     bool
	cached      []cachedEntry
	cachedBuf   []byte
	err         error
}

type cachedEntry struct {
	offset int
	key    []byte
	val    []byte
}

// newBlockIter constructs an iterator over block, which must have been
// produced by blockWriter.finish. Data blocks and the index block are both
// iterated through this constructor, their keys decoding as
// base.InternalKey; only the metaindex block, whose keys are plain filter
// names, is read through rawBlockIter.
func newBlockIter(cmp base.Compare, data []byte) (*blockIter, error) {
	i := &blockIter{}
	if err := i.init(cmp, data); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *blockIter) init(cmp base.Compare, data []byte) error {
	if len(data) < 4 {
		return base.CorruptionErrorf("sstable: block too short")
	}
	numRestarts := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	if numRestarts == 0 {
		return base.CorruptionErrorf("sstable: block has no restart points")
	}
	*i = blockIter{
		cmp:         cmp,
		data:        data,
		restarts:    len(data) - 4*(1+numRestarts),
		numRestarts: numRestarts,
		key:         make([]byte, 0, 256),
	}
	return nil
}

func (i *blockIter) readEntry() {
	shared, n := decodeVarint(i.data[i.offset:])
	p := i.offset + n
	unshared, n := decodeVarint(i.data[p:])
	p += n
	valLen, n := decodeVarint(i.data[p:])
	p += n
	i.key = append(i.key[:shared], i.data[p:p+int(unshared)]...)
	i.key = i.key[:len(i.key):len(i.key)]
	p += int(unshared)
	i.val = i.data[p : p+int(valLen) : p+int(valLen)]
	i.nextOffset = p + int(valLen)
}

func (i *blockIter) loadEntry() {
	i.readEntry()
	i.ikey = base.DecodeInternalKey(i.key)
}

func (i *blockIter) clearCache() {
	i.cached = i.cached[:0]
	i.cachedBuf = i.cachedBuf[:0]
}

func (i *blockIter) cacheEntry() {
	i.cachedBuf = append(i.cachedBuf, i.key...)
	i.cached = append(i.cached, cachedEntry{
		offset: i.offset,
		key:    i.cachedBuf[len(i.cachedBuf)-len(i.key):],
		val:    i.val,
	})
}

func (i *blockIter) SeekGE(key []byte) bool {
	target := base.DecodeInternalKey(key)
	index := sort.Search(i.numRestarts, func(j int) bool {
		offset := int(binary.LittleEndian.Uint32(i.data[i.restarts+4*j:])) + 1
		v1, n1 := decodeVarint(i.data[offset:])
		_, n2 := decodeVarint(i.data[offset+n1:])
		m := offset + n1 + n2
		ik := base.DecodeInternalKey(i.data[m : m+int(v1)])
		return base.InternalCompare(i.cmp, target, ik) < 0
	})
	i.offset = 0
	if index > 0 {
		i.offset = int(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	}
	i.loadEntry()
	for ; i.Valid(); i.Next() {
		if base.InternalCompare(i.cmp, target, i.ikey) <= 0 {
			break
		}
	}
	return i.Valid()
}

func (i *blockIter) First() bool {
	i.offset = 0
	if !i.Valid() {
		return false
	}
	i.loadEntry()
	return true
}

func (i *blockIter) Last() bool {
	i.offset = int(binary.LittleEndian.Uint32(i.data[i.restarts+4*(i.numRestarts-1):]))
	i.readEntry()
	i.clearCache()
	i.cacheEntry()
	for i.nextOffset < i.restarts {
		i.offset = i.nextOffset
		i.readEntry()
		i.cacheEntry()
	}
	i.ikey = base.DecodeInternalKey(i.key)
	return true
}

func (i *blockIter) Next() bool {
	i.offset = i.nextOffset
	if !i.Valid() {
		return false
	}
	i.loadEntry()
	return true
}

func (i *blockIter) Prev() bool {
	if n := len(i.cached) - 1; n > 0 && i.cached[n].offset == i.offset {
		i.nextOffset = i.offset
		e := &i.cached[n-1]
		i.offset = e.offset
		i.val = e.val
		i.ikey = base.DecodeInternalKey(e.key)
		i.cached = i.cached[:n]
		return true
	}
	if i.offset == 0 {
		i.offset = -1
		i.nextOffset = 0
		return false
	}
	targetOffset := i.offset
	index := sort.Search(i.numRestarts, func(j int) bool {
		offset := int(binary.LittleEndian.Uint32(i.data[i.restarts+4*j:]))
		return offset >= targetOffset
	})
	i.offset = 0
	if index > 0 {
		i.offset = int(binary.LittleEndian.Uint32(i.data[i.restarts+4*(index-1):]))
	}
	i.readEntry()
	i.clearCache()
	i.cacheEntry()
	for i.nextOffset < targetOffset {
		i.offset = i.nextOffset
		i.readEntry()
		i.cacheEntry()
	}
	i.ikey = base.DecodeInternalKey(i.key)
	return true
}

func (i *blockIter) Key() base.InternalKey { return i.ikey }
func (i *blockIter) Value() []byte         { return i.val }
func (i *blockIter) Valid() bool           { return i.offset >= 0 && i.offset < i.restarts }
func (i *blockIter) Error() error          { return i.err }
func (i *blockIter) Close() error          { i.val = nil; return i.err }

var _ base.InternalIterator = (*blockIter)(nil)
