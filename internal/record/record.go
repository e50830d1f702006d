// Package record reads and writes the framed record streams used for both
// the write-ahead log and the manifest (spec.md §4.6/§4.8/§6). A logical
// record is split into one or more physical chunks so that it can span the
// fixed-size blocks the stream is divided into; Next on a Reader returns an
// io.Reader over the next logical record, and WriteRecord on a Writer
// appends one whole record.
package record

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/strata-db/strata/internal/base"
)

// Chunk types, part of the on-disk wire format.
const (
	fullChunkType   = 1
	firstChunkType  = 2
	middleChunkType = 3
	lastChunkType   = 4

	recyclableFullChunkType   = 5
	recyclableFirstChunkType  = 6
	recyclableMiddleChunkType = 7
	recyclableLastChunkType   = 8
)

const (
	// BlockSize is the size of each physical block the record stream is
	// divided into; a chunk never spans a block boundary.
	BlockSize = 32 * 1024

	legacyHeaderSize     = 7
	recyclableHeaderSize = legacyHeaderSize + 4
)

// Sentinel errors surfaced by Reader.Next during recovery.
var (
	ErrZeroedChunk  = errors.New("strata/record: zeroed chunk")
	ErrInvalidChunk = errors.New("strata/record: invalid chunk")
)

// IsInvalidRecord reports whether err is one of the recoverable corruption
// errors a Reader may return: a torn write at the tail of the log looks
// exactly like this, so callers that tolerate partial trailing writes treat
// it like io.EOF.
func IsInvalidRecord(err error) bool {
	return errors.Is(err, ErrZeroedChunk) || errors.Is(err, ErrInvalidChunk) || errors.Is(err, io.ErrUnexpectedEOF)
}

func isRecyclable(chunkType byte) bool {
	return chunkType >= recyclableFullChunkType && chunkType <= recyclableLastChunkType
}

func headerSize(chunkType byte) int {
	if isRecyclable(chunkType) {
		return recyclableHeaderSize
	}
	return legacyHeaderSize
}

func chunkPosition(chunkType byte) byte {
	if isRecyclable(chunkType) {
		return chunkType - (recyclableFullChunkType - fullChunkType)
	}
	return chunkType
}

// Reader reads a stream of records, resynchronising at block boundaries
// after corruption. It is not safe for concurrent use.
type Reader struct {
	r   io.Reader
	buf [BlockSize]byte
	// end is the end of the bytes buf is valid for; i is the read offset.
	i, end int
	// blockNum is the current zero-based block number.
	blockNum int64
	// logNum is compared against a recyclable chunk's embedded log number;
	// a mismatch means the block was left over from an earlier incarnation
	// of a recycled log file and should be treated as EOF, not corruption.
	logNum uint32
	// last is whether the previous chunk read was a full or last chunk,
	// meaning the reader is positioned at a logical record boundary.
	last bool
	// eof is whether the underlying reader has returned io.EOF.
	eof bool
	// Paranoid selects fail-stop recovery: a corrupt chunk returns an error
	// immediately instead of resynchronising at the next block.
	Paranoid bool
}

// NewReader returns a Reader reading records appended under the given log
// file number (used to validate recyclable chunk headers).
func NewReader(r io.Reader, logNum base.FileNum) *Reader {
	return &Reader{r: r, logNum: uint32(logNum), last: true}
}

func (r *Reader) fillBlock() error {
	if r.eof {
		r.i, r.end = 0, 0
		return io.EOF
	}
	r.i = 0
	n, err := io.ReadFull(r.r, r.buf[:])
	r.end = n
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		r.eof = true
		if n == 0 {
			return io.EOF
		}
		return nil
	}
	return err
}

// nextChunk returns the chunk type and payload of the next physical chunk,
// resynchronising to the following block boundary on corruption unless
// Paranoid is set.
func (r *Reader) nextChunk(wantFirst bool) (byte, []byte, error) {
	for {
		if r.end-r.i < legacyHeaderSize {
			// Leftover bytes too small to hold a header are zero padding
			// at the end of a block; skip to the next block.
			if err := r.fillBlock(); err != nil {
				return 0, nil, err
			}
			continue
		}
		checksum := binary.LittleEndian.Uint32(r.buf[r.i : r.i+4])
		length := binary.LittleEndian.Uint16(r.buf[r.i+4 : r.i+6])
		chunkType := r.buf[r.i+6]

		if checksum == 0 && length == 0 && chunkType == 0 {
			// Zero padding at the tail of a block (or a torn write that
			// never got its header written). Advance to the next block.
			if err := r.fillBlock(); err != nil {
				return 0, nil, err
			}
			continue
		}

		hdrSize := headerSize(chunkType)
		if hdrSize > legacyHeaderSize && r.end-r.i < hdrSize {
			if err := r.recoverCorruption(); err != nil {
				return 0, nil, err
			}
			continue
		}

		payloadStart := r.i + hdrSize
		payloadEnd := payloadStart + int(length)
		if payloadEnd > r.end || chunkPosition(chunkType) == 0 {
			if err := r.recoverCorruption(); err != nil {
				return 0, nil, err
			}
			continue
		}

		if isRecyclable(chunkType) {
			logNum := binary.LittleEndian.Uint32(r.buf[r.i+legacyHeaderSize : r.i+recyclableHeaderSize])
			if logNum != r.logNum {
				// Stale data from a previous incarnation of a recycled
				// file; treat the remainder of the log as absent.
				r.i, r.end = 0, 0
				return 0, nil, io.EOF
			}
		}

		payload := r.buf[payloadStart:payloadEnd:payloadEnd]
		if !r.verifyChecksum(checksum, chunkType, r.buf[r.i+legacyHeaderSize:payloadStart], payload) {
			if err := r.recoverCorruption(); err != nil {
				return 0, nil, err
			}
			continue
		}

		r.i = payloadEnd
		pos := chunkPosition(chunkType)
		if wantFirst && pos != fullChunkType && pos != firstChunkType {
			// Got a middle/last chunk while looking for a record start;
			// skip it, it belongs to a record we're not reading.
			continue
		}
		return pos, payload, nil
	}
}

func (r *Reader) verifyChecksum(want uint32, chunkType byte, extra, payload []byte) bool {
	got := base.CRC32C(append([]byte{chunkType}, append(append([]byte(nil), extra...), payload...)...))
	return base.UnmaskCRC(want) == got
}

func (r *Reader) recoverCorruption() error {
	if r.Paranoid {
		return ErrInvalidChunk
	}
	return r.fillBlock()
}

// Next returns a reader for the next logical record, concatenating its
// physical chunks. It returns io.EOF when the stream is exhausted.
func (r *Reader) Next() (io.Reader, error) {
	if !r.last {
		// Caller didn't drain the previous record; skip ahead to its end.
		for {
			typ, _, err := r.nextChunk(false)
			if err != nil {
				return nil, err
			}
			if typ == lastChunkType || typ == fullChunkType {
				break
			}
		}
	}
	var record []byte
	first := true
	for {
		typ, payload, err := r.nextChunk(first)
		if err != nil {
			return nil, err
		}
		record = append(record, payload...)
		first = false
		if typ == fullChunkType || typ == lastChunkType {
			r.last = true
			return &bytesReader{b: record}, nil
		}
		r.last = false
	}
}

type bytesReader struct {
	b []byte
	i int
}

func (b *bytesReader) Read(p []byte) (int, error) {
	if b.i >= len(b.b) {
		return 0, io.EOF
	}
	n := copy(p, b.b[b.i:])
	b.i += n
	return n, nil
}

// Writer writes a stream of records to an underlying io.Writer, framing and
// padding blocks as it goes. It is not safe for concurrent use.
type Writer struct {
	w   io.Writer
	buf [BlockSize]byte
	// j is the write offset within the current block.
	j int
	// written is how many bytes of the current block have already been
	// handed to w.
	written int
	// blockNum is the current zero-based block number, used for logging.
	blockNum int64
	// Recyclable selects the 4-byte-larger chunk header that embeds the log
	// file number, enabling log file reuse without a metadata update.
	Recyclable bool
	LogNum     uint32
	err        error
}

// NewWriter returns a Writer appending framed records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) hdrSize() int {
	if w.Recyclable {
		return recyclableHeaderSize
	}
	return legacyHeaderSize
}

// WriteRecord writes p as a (possibly multi-chunk) logical record.
func (w *Writer) WriteRecord(p []byte) error {
	if w.err != nil {
		return w.err
	}
	first := true
	for {
		hdr := w.hdrSize()
		if BlockSize-w.j < hdr {
			w.padBlock()
		}
		space := BlockSize - w.j - hdr
		n := len(p)
		last := true
		if n > space {
			n = space
			last = false
		}
		if err := w.writeChunk(p[:n], first, last); err != nil {
			w.err = err
			return err
		}
		p = p[n:]
		first = false
		if last {
			// Hand the record's bytes to w now, so that syncing the
			// underlying file makes the record durable.
			if _, err := w.w.Write(w.buf[w.written:w.j]); err != nil {
				w.err = err
				return err
			}
			w.written = w.j
			return nil
		}
	}
}

func (w *Writer) padBlock() {
	for w.j < BlockSize {
		w.buf[w.j] = 0
		w.j++
	}
	w.flushBlock()
}

func (w *Writer) flushBlock() {
	if w.j == 0 {
		return
	}
	w.w.Write(w.buf[w.written:w.j])
	w.j = 0
	w.written = 0
	w.blockNum++
}

func (w *Writer) writeChunk(payload []byte, first, last bool) error {
	var chunkType byte
	switch {
	case first && last:
		chunkType = fullChunkType
	case first:
		chunkType = firstChunkType
	case last:
		chunkType = lastChunkType
	default:
		chunkType = middleChunkType
	}
	var extra []byte
	if w.Recyclable {
		chunkType += recyclableFullChunkType - fullChunkType
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], w.LogNum)
		extra = lb[:]
	}
	checksum := base.MaskCRC(base.CRC32C(append([]byte{chunkType}, append(append([]byte(nil), extra...), payload...)...)))

	hdr := make([]byte, 0, recyclableHeaderSize)
	var cb, lb [4]byte
	binary.LittleEndian.PutUint32(cb[:], checksum)
	binary.LittleEndian.PutUint32(lb[:], uint32(len(payload)))
	hdr = append(hdr, cb[:]...)
	hdr = append(hdr, lb[0], lb[1])
	hdr = append(hdr, chunkType)
	hdr = append(hdr, extra...)

	copy(w.buf[w.j:], hdr)
	w.j += len(hdr)
	copy(w.buf[w.j:], payload)
	w.j += len(payload)

	if w.j == BlockSize {
		w.flushBlock()
	}
	return nil
}

// Close flushes any buffered bytes. The caller is responsible for closing
// (and, if durability is required, syncing) the underlying writer.
func (w *Writer) Close() error {
	w.flushBlock()
	return w.err
}
