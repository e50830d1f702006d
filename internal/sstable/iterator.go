package sstable

import "github.com/strata-db/strata/internal/base"

// twoLevelIterator walks the index block to find the data block that might
// contain a key, then descends into that block. Grounded on the classic
// table package's reader iterator, which inlines the same two steps (look
// up the block handle in the index, then iterate the decoded data block).
type twoLevelIterator struct {
	reader *Reader
	index  *blockIter
	data   *blockIter
	err    error
}

var _ base.InternalIterator = (*twoLevelIterator)(nil)

func (i *twoLevelIterator) loadDataBlock(forward bool) bool {
	if !i.index.Valid() {
		i.data = nil
		return false
	}
	bh, n := decodeBlockHandle(i.index.Value())
	if n == 0 {
		i.err = base.CorruptionErrorf("sstable: invalid index entry")
		return false
	}
	blk, err := i.reader.readBlock(bh)
	if err != nil {
		i.err = err
		return false
	}
	data, err := newBlockIter(i.reader.opts.Compare, blk)
	if err != nil {
		i.err = err
		return false
	}
	i.data = data
	if forward {
		return i.data.First()
	}
	return i.data.Last()
}

func (i *twoLevelIterator) SeekGE(key []byte) bool {
	if !i.index.SeekGE(key) {
		i.data = nil
		return false
	}
	if !i.loadDataBlock(false) {
		return i.skipForward()
	}
	if !i.data.SeekGE(key) {
		return i.skipForward()
	}
	return true
}

func (i *twoLevelIterator) skipForward() bool {
	for {
		if !i.index.Next() {
			i.data = nil
			return false
		}
		if i.loadDataBlock(true) {
			return true
		}
	}
}

func (i *twoLevelIterator) skipBackward() bool {
	for {
		if !i.index.Prev() {
			i.data = nil
			return false
		}
		if i.loadDataBlock(false) {
			return true
		}
	}
}

func (i *twoLevelIterator) First() bool {
	if !i.index.First() {
		i.data = nil
		return false
	}
	if i.loadDataBlock(true) {
		return true
	}
	return i.skipForward()
}

func (i *twoLevelIterator) Last() bool {
	if !i.index.Last() {
		i.data = nil
		return false
	}
	if i.loadDataBlock(false) {
		return true
	}
	return i.skipBackward()
}

func (i *twoLevelIterator) Next() bool {
	if i.data == nil {
		return false
	}
	if i.data.Next() {
		return true
	}
	return i.skipForward()
}

func (i *twoLevelIterator) Prev() bool {
	if i.data == nil {
		return false
	}
	if i.data.Prev() {
		return true
	}
	return i.skipBackward()
}

func (i *twoLevelIterator) Valid() bool { return i.data != nil && i.data.Valid() }
func (i *twoLevelIterator) Key() base.InternalKey { return i.data.Key() }
func (i *twoLevelIterator) Value() []byte         { return i.data.Value() }
func (i *twoLevelIterator) Error() error          { return i.err }
func (i *twoLevelIterator) Close() error          { return i.err }
