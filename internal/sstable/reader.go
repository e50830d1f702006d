package sstable

import (
	"github.com/golang/snappy"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/bloomfilter"
	"github.com/strata-db/strata/internal/cache"
	"github.com/strata-db/strata/internal/storage"
)

// ReaderOptions configures a Reader.
type ReaderOptions struct {
	Compare         base.Compare
	FilterPolicy    bloomfilter.FilterPolicy
	VerifyChecksums bool
}

// Reader reads a single sstable produced by Writer. A Reader is safe for
// concurrent use by multiple goroutines once constructed.
type Reader struct {
	file    storage.File
	fileNum uint64
	cache   *cache.BlockCache
	opts    ReaderOptions

	index      []byte
	filterData []byte
	filterLog  uint32
	haveFilter bool
}

// NewReader opens file as an sstable. blockCache may be nil, in which case
// blocks are never cached (every read re-decompresses from disk).
func NewReader(file storage.File, fileNum uint64, blockCache *cache.BlockCache, o ReaderOptions) (*Reader, error) {
	if o.Compare == nil {
		o.Compare = base.DefaultComparer.Compare
	}
	r := &Reader{file: file, fileNum: fileNum, cache: blockCache, opts: o}

	stat, err := file.Stat()
	if err != nil {
		return nil, base.CorruptionErrorf("sstable: could not stat file: %v", err)
	}
	if stat.Size() < footerLen {
		return nil, base.CorruptionErrorf("sstable: file too small to be a table")
	}

	var footer [footerLen]byte
	if _, err := file.ReadAt(footer[:], stat.Size()-footerLen); err != nil {
		return nil, base.CorruptionErrorf("sstable: could not read footer: %v", err)
	}
	metaindexBH, indexBH, err := decodeFooter(footer[:])
	if err != nil {
		return nil, err
	}

	metaindex, err := r.readBlock(metaindexBH)
	if err != nil {
		return nil, err
	}
	if err := r.parseMetaindex(metaindex); err != nil {
		return nil, err
	}

	r.index, err = r.readBlock(indexBH)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) parseMetaindex(data []byte) error {
	if r.opts.FilterPolicy == nil {
		return nil
	}
	it, err := newBlockIterRaw(data)
	if err != nil {
		return err
	}
	name := []byte("filter." + r.opts.FilterPolicy.Name())
	for valid := it.firstRaw(); valid; valid = it.nextRaw() {
		if string(it.key) == string(name) {
			bh, n := decodeBlockHandle(it.val)
			if n == 0 {
				return base.CorruptionErrorf("sstable: invalid filter block handle")
			}
			filter, err := r.readBlock(bh)
			if err != nil {
				return err
			}
			if len(filter) == 0 {
				return nil
			}
			r.filterLog = uint32(filter[len(filter)-1])
			r.filterData = filter[:len(filter)-1]
			r.haveFilter = true
			return nil
		}
	}
	return nil
}

func (r *Reader) readBlock(bh blockHandle) ([]byte, error) {
	if r.cache != nil {
		if b := r.cache.Get(r.fileNum, bh.offset); b != nil {
			return b, nil
		}
	}

	b := make([]byte, bh.length+blockTrailerLen)
	if _, err := r.file.ReadAt(b, int64(bh.offset)); err != nil {
		return nil, base.CorruptionErrorf("sstable: could not read block: %v", err)
	}
	data := b[:bh.length]
	trailer := b[bh.length:]

	if r.opts.VerifyChecksums {
		want := uint32(trailer[1]) | uint32(trailer[2])<<8 | uint32(trailer[3])<<16 | uint32(trailer[4])<<24
		got := base.MaskCRC(base.CRC32C(b[:bh.length+1]))
		if want != got {
			return nil, base.CorruptionErrorf("sstable: checksum mismatch")
		}
	}

	switch trailer[0] {
	case noCompressionBlockType:
	case snappyCompressionBlockType:
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, base.CorruptionErrorf("sstable: corrupt snappy-compressed block: %v", err)
		}
		data = decoded
	default:
		return nil, base.CorruptionErrorf("sstable: unknown block compression type %d", trailer[0])
	}

	if r.cache != nil {
		data = r.cache.Insert(r.fileNum, bh.offset, data)
	}
	return data, nil
}

// mayContain reports whether the table's filter indicates key might be
// present. A false return means key is definitely absent; a true return
// (including when there is no filter) means the data blocks must be
// checked.
func (r *Reader) mayContain(key []byte) bool {
	if !r.haveFilter {
		return true
	}
	// All keys share one table-level filter in this layout (filterBaseLog
	// granularity tracks compaction progress, not per-key routing), so any
	// offset selects the same underlying filter bytes.
	return r.opts.FilterPolicy.MayContain(r.filterData, key)
}

// NewIter returns a two-level iterator over the table's internal keys.
func (r *Reader) NewIter() (base.InternalIterator, error) {
	indexIter, err := newBlockIter(r.opts.Compare, r.index)
	if err != nil {
		return nil, err
	}
	return &twoLevelIterator{reader: r, index: indexIter}, nil
}

// Get looks up key (an encoded internal key) directly, without constructing
// a full iterator, short-circuiting via the filter block when present.
func (r *Reader) Get(key []byte) (base.InternalKey, []byte, bool, error) {
	target := base.DecodeInternalKey(key)
	if !r.mayContain(target.UserKey) {
		return base.InternalKey{}, nil, false, nil
	}
	it, err := r.NewIter()
	if err != nil {
		return base.InternalKey{}, nil, false, err
	}
	defer it.Close()
	if !it.SeekGE(key) {
		return base.InternalKey{}, nil, false, it.Error()
	}
	k := it.Key()
	if r.opts.Compare(k.UserKey, target.UserKey) != 0 {
		return base.InternalKey{}, nil, false, nil
	}
	v := append([]byte(nil), it.Value()...)
	return k, v, true, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
