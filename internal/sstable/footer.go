package sstable

import (
	"encoding/binary"

	"github.com/strata-db/strata/internal/base"
)

// blockHandle is a block's offset and length within the file.
type blockHandle struct {
	offset, length uint64
}

func decodeBlockHandle(src []byte) (blockHandle, int) {
	offset, n := binary.Uvarint(src)
	length, m := binary.Uvarint(src[n:])
	if n == 0 || m == 0 {
		return blockHandle{}, 0
	}
	return blockHandle{offset, length}, n + m
}

func encodeBlockHandle(dst []byte, b blockHandle) int {
	n := binary.PutUvarint(dst, b.offset)
	m := binary.PutUvarint(dst[n:], b.length)
	return n + m
}

const (
	// blockTrailerLen is the 1-byte compression type plus the 4-byte masked
	// CRC32C checksum appended after every raw block on disk.
	blockTrailerLen = 5

	noCompressionBlockType     = 0
	snappyCompressionBlockType = 1

	// footerLen is fixed-size regardless of how short the two block handles
	// encode to, so a reader always knows to read the last footerLen bytes
	// of the file before decoding anything else.
	footerLen = 53
)

// magic is written at the end of every footer; unrelated files (or a
// truncated write) are rejected if it doesn't match.
var magic = [8]byte{0x51, 0x52, 0x53, 0x54, 0xb1, 0xb2, 0xb3, 0xb4}

func encodeFooter(metaindexBH, indexBH blockHandle) []byte {
	buf := make([]byte, footerLen)
	n := encodeBlockHandle(buf, metaindexBH)
	encodeBlockHandle(buf[n:], indexBH)
	copy(buf[footerLen-len(magic):], magic[:])
	return buf
}

func decodeFooter(buf []byte) (metaindexBH, indexBH blockHandle, err error) {
	if len(buf) != footerLen {
		return blockHandle{}, blockHandle{}, base.CorruptionErrorf("sstable: invalid footer length")
	}
	if string(buf[footerLen-len(magic):]) != string(magic[:]) {
		return blockHandle{}, blockHandle{}, base.CorruptionErrorf("sstable: invalid table (bad magic number)")
	}
	metaindexBH, n := decodeBlockHandle(buf)
	if n == 0 {
		return blockHandle{}, blockHandle{}, base.CorruptionErrorf("sstable: invalid metaindex block handle")
	}
	indexBH, n = decodeBlockHandle(buf[n:])
	if n == 0 {
		return blockHandle{}, blockHandle{}, base.CorruptionErrorf("sstable: invalid index block handle")
	}
	return metaindexBH, indexBH, nil
}
