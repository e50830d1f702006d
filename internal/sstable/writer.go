package sstable

import (
	"github.com/golang/snappy"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/bloomfilter"
	"github.com/strata-db/strata/internal/storage"
)

// Compression selects the per-block compression algorithm.
type Compression int

// The supported compression algorithms.
const (
	NoCompression Compression = iota
	SnappyCompression
)

// WriterOptions configures a Writer. The zero value is not valid; use
// NewWriterOptions.
type WriterOptions struct {
	Compare         base.Compare
	Separator       base.Separator
	BlockSize       int
	RestartInterval int
	Compression     Compression
	FilterPolicy    bloomfilter.FilterPolicy
}

// NewWriterOptions fills in defaults for the unset fields of o.
func NewWriterOptions(o WriterOptions) WriterOptions {
	if o.Compare == nil {
		o.Compare = base.DefaultComparer.Compare
	}
	if o.Separator == nil {
		o.Separator = base.DefaultComparer.Separator
	}
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = 16
	}
	return o
}

// filterBaseLog means a new filter is generated for every 2KiB of data
// written, matching the classic LevelDB/RocksDB on-disk format.
const filterBaseLog = 11

// indexBlockRestartInterval is fixed at 1 for the index and metaindex
// blocks, unlike the configurable data-block restart interval: every index
// entry already carries a full key needed to binary search it, so nothing
// is gained by delta-prefixing against a restart point, and a restart
// every entry makes SeekGE a pure binary search with no linear scan tail.
const indexBlockRestartInterval = 1

// Properties summarizes a finished table, recorded in the manifest so the
// compaction picker and Get path don't need to reopen the file to learn its
// key range or entry count.
type Properties struct {
	NumEntries  uint64
	FileSize    uint64
	SmallestKey base.InternalKey
	LargestKey  base.InternalKey
}

// Writer builds one sstable. Add must be called with strictly increasing
// internal keys; Close finalizes the filter, index, metaindex and footer.
type Writer struct {
	file  storage.File
	opts  WriterOptions
	err   error
	props Properties

	offset uint64

	dataBlock  *blockWriter
	indexBlock *blockWriter

	pendingHandle blockHandle
	havePending   bool
	prevKey       []byte

	filterKeys    [][]byte
	filterOffsets []uint32
	filterData    []byte

	compressedBuf []byte
}

// NewWriter creates a Writer that appends to file.
func NewWriter(file storage.File, o WriterOptions) *Writer {
	o = NewWriterOptions(o)
	return &Writer{
		file:       file,
		opts:       o,
		dataBlock:  newBlockWriter(o.RestartInterval),
		indexBlock: newBlockWriter(indexBlockRestartInterval),
	}
}

// EstimatedSize returns the approximate number of bytes written to the
// output file so far, including the as-yet-unflushed data block, so a
// compaction can decide when to roll over to a new output file without
// waiting for the current block to flush first.
func (w *Writer) EstimatedSize() uint64 {
	return w.offset + uint64(w.dataBlock.estimatedSize())
}

// Add appends one key/value pair.
func (w *Writer) Add(key base.InternalKey, value []byte) error {
	if w.err != nil {
		return w.err
	}
	enc := key.Encode(make([]byte, key.Size()))

	if len(w.prevKey) > 0 && base.InternalCompare(w.opts.Compare, key, base.DecodeInternalKey(w.prevKey)) <= 0 {
		w.err = base.InvalidArgumentErrorf("sstable: Add called in non-increasing key order")
		return w.err
	}

	w.flushPendingIndexEntry(enc)

	if w.opts.FilterPolicy != nil {
		w.filterKeys = append(w.filterKeys, append([]byte(nil), key.UserKey...))
	}

	w.dataBlock.add(enc, value)
	w.props.NumEntries++
	if w.props.NumEntries == 1 {
		w.props.SmallestKey = key.Clone()
	}
	w.props.LargestKey = key.Clone()
	w.prevKey = append(w.prevKey[:0], enc...)

	if w.dataBlock.estimatedSize() >= w.opts.BlockSize {
		if err := w.finishDataBlock(); err != nil {
			w.err = err
			return err
		}
	}
	return nil
}

// flushPendingIndexEntry adds the index entry for a just-finished data
// block, using the shortest separator between its last key and the next
// key (or its successor, at Close, when there is no next key).
func (w *Writer) flushPendingIndexEntry(nextKey []byte) {
	if !w.havePending {
		return
	}
	sep := w.opts.Separator(nil, w.prevKey, nextKey)
	var tmp [2 * 10]byte
	n := encodeBlockHandle(tmp[:], w.pendingHandle)
	w.indexBlock.add(sep, tmp[:n])
	w.havePending = false
}

func (w *Writer) finishDataBlock() error {
	w.maybeEmitFilter()
	bh, err := w.writeBlock(w.dataBlock.finish())
	if err != nil {
		return err
	}
	w.dataBlock.reset()
	w.pendingHandle = bh
	w.havePending = true
	return nil
}

func (w *Writer) maybeEmitFilter() {
	if w.opts.FilterPolicy == nil {
		return
	}
	for w.offset>>filterBaseLog >= uint64(len(w.filterOffsets)) {
		w.emitFilter()
	}
}

func (w *Writer) emitFilter() {
	w.filterOffsets = append(w.filterOffsets, uint32(len(w.filterData)))
	if len(w.filterKeys) == 0 {
		return
	}
	fw := w.opts.FilterPolicy.NewWriter()
	for _, k := range w.filterKeys {
		fw.AddKey(k)
	}
	if f, ok := fw.Finish(); ok {
		w.filterData = append(w.filterData, f...)
	}
	w.filterKeys = w.filterKeys[:0]
}

func (w *Writer) writeBlock(data []byte) (blockHandle, error) {
	blockType := byte(noCompressionBlockType)
	b := data
	if w.opts.Compression == SnappyCompression {
		compressed := snappy.Encode(w.compressedBuf, data)
		w.compressedBuf = compressed[:cap(compressed)]
		if len(compressed) < len(data)-len(data)/8 {
			blockType = snappyCompressionBlockType
			b = compressed
		}
	}

	var trailer [blockTrailerLen]byte
	trailer[0] = blockType
	checksum := base.MaskCRC(base.CRC32C(append(append([]byte(nil), b...), trailer[0])))
	trailer[1] = byte(checksum)
	trailer[2] = byte(checksum >> 8)
	trailer[3] = byte(checksum >> 16)
	trailer[4] = byte(checksum >> 24)

	if _, err := w.file.Write(b); err != nil {
		return blockHandle{}, err
	}
	if _, err := w.file.Write(trailer[:]); err != nil {
		return blockHandle{}, err
	}
	bh := blockHandle{offset: w.offset, length: uint64(len(b))}
	w.offset += uint64(len(b)) + blockTrailerLen
	return bh, nil
}

// Close finishes the table: any pending data block, the filter block, the
// index block, the metaindex block, and the fixed-size footer.
func (w *Writer) Close() (Properties, error) {
	if w.err != nil {
		return Properties{}, w.err
	}

	if !w.dataBlock.empty() {
		if err := w.finishDataBlock(); err != nil {
			return Properties{}, err
		}
	}
	w.flushPendingIndexEntry(nil)

	metaBlock := newBlockWriter(indexBlockRestartInterval)
	var filterBH blockHandle
	haveFilter := w.opts.FilterPolicy != nil
	if haveFilter {
		w.maybeEmitFilter()
		w.filterOffsets = append(w.filterOffsets, uint32(len(w.filterData)))
		var tmp4 [4]byte
		for _, off := range w.filterOffsets {
			tmp4[0] = byte(off)
			tmp4[1] = byte(off >> 8)
			tmp4[2] = byte(off >> 16)
			tmp4[3] = byte(off >> 24)
			w.filterData = append(w.filterData, tmp4[:]...)
		}
		w.filterData = append(w.filterData, filterBaseLog)
		var err error
		filterBH, err = w.writeBlock(w.filterData)
		if err != nil {
			return Properties{}, err
		}
		var tmp [2 * 10]byte
		n := encodeBlockHandle(tmp[:], filterBH)
		metaBlock.add([]byte("filter."+w.opts.FilterPolicy.Name()), tmp[:n])
	}
	metaindexBH, err := w.writeBlock(metaBlock.finish())
	if err != nil {
		return Properties{}, err
	}

	indexBH, err := w.writeBlock(w.indexBlock.finish())
	if err != nil {
		return Properties{}, err
	}

	footer := encodeFooter(metaindexBH, indexBH)
	if _, err := w.file.Write(footer); err != nil {
		return Properties{}, err
	}
	if err := w.file.Sync(); err != nil {
		return Properties{}, err
	}

	w.props.FileSize = w.offset + uint64(len(footer))
	w.err = base.InvalidArgumentErrorf("sstable: writer is closed")
	return w.props, w.file.Close()
}
