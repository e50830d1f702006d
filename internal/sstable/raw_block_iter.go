package sstable

import "encoding/binary"

// rawBlockIter walks a block whose keys are opaque byte strings rather than
// encoded internal keys — used only for the metaindex block, whose single
// entry ("filter.<policy name>") is not a user key at all.
type rawBlockIter struct {
	data        []byte
	restarts    int
	numRestarts int
	offset      int
	nextOffset  int
	key         []byte
	val         []byte
}

func newBlockIterRaw(data []byte) (*rawBlockIter, error) {
	if len(data) < 4 {
		return &rawBlockIter{numRestarts: 0}, nil
	}
	numRestarts := int(binary.LittleEndian.Uint32(data[len(data)-4:]))
	return &rawBlockIter{
		data:        data,
		restarts:    len(data) - 4*(1+numRestarts),
		numRestarts: numRestarts,
	}, nil
}

func (i *rawBlockIter) firstRaw() bool {
	if i.numRestarts == 0 {
		return false
	}
	i.offset = 0
	i.key = i.key[:0]
	return i.readEntry()
}

func (i *rawBlockIter) nextRaw() bool {
	i.offset = i.nextOffset
	if i.offset >= i.restarts {
		return false
	}
	return i.readEntry()
}

func (i *rawBlockIter) readEntry() bool {
	shared, n := decodeVarint(i.data[i.offset:])
	p := i.offset + n
	unshared, n := decodeVarint(i.data[p:])
	p += n
	valLen, n := decodeVarint(i.data[p:])
	p += n
	i.key = append(i.key[:shared], i.data[p:p+int(unshared)]...)
	p += int(unshared)
	i.val = i.data[p : p+int(valLen)]
	i.nextOffset = p + int(valLen)
	return true
}
