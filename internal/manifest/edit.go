package manifest

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"sort"

	"github.com/strata-db/strata/internal/base"
)

// Tags for the VersionEdit wire format, unchanged from the classic format
// so a dumped manifest stays human-diffable against the original project's.
const (
	tagComparator     = 1
	tagLogNumber      = 2
	tagNextFileNumber = 3
	tagLastSequence   = 4
	tagCompactPointer = 5
	tagDeletedFile    = 6
	tagNewFile        = 7
	tagPrevLogNumber  = 9
)

// DeletedFileEntry identifies one file removed from a level by an edit.
type DeletedFileEntry struct {
	Level   int
	FileNum base.FileNum
}

// NewFileEntry describes one file added to a level by an edit.
type NewFileEntry struct {
	Level int
	Meta  FileMetadata
}

// VersionEdit is one entry in the manifest log: the delta that, applied to
// a base Version, produces the next Version. Only the fields actually set
// are written out, so a routine flush's edit is a handful of bytes.
type VersionEdit struct {
	ComparatorName string
	LogNumber      base.FileNum
	PrevLogNumber  base.FileNum
	NextFileNumber base.FileNum
	LastSeqNum     base.SeqNum
	DeletedFiles   map[DeletedFileEntry]bool
	NewFiles       []NewFileEntry
}

type byteReader interface {
	io.ByteReader
	io.Reader
}

// Decode reads one VersionEdit from r.
func (v *VersionEdit) Decode(r io.Reader) error {
	br, ok := r.(byteReader)
	if !ok {
		br = bufio.NewReader(r)
	}
	for {
		tag, err := binary.ReadUvarint(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch tag {
		case tagComparator:
			s, err := readBytes(br)
			if err != nil {
				return err
			}
			v.ComparatorName = string(s)
		case tagLogNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.LogNumber = base.FileNum(n)
		case tagPrevLogNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.PrevLogNumber = base.FileNum(n)
		case tagNextFileNumber:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.NextFileNumber = base.FileNum(n)
		case tagLastSequence:
			n, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			v.LastSeqNum = base.SeqNum(n)
		case tagCompactPointer:
			if _, err := binary.ReadUvarint(br); err != nil { // level
				return err
			}
			if _, err := readBytes(br); err != nil { // key
				return err
			}
		case tagDeletedFile:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			fileNum, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			if v.DeletedFiles == nil {
				v.DeletedFiles = make(map[DeletedFileEntry]bool)
			}
			v.DeletedFiles[DeletedFileEntry{int(level), base.FileNum(fileNum)}] = true
		case tagNewFile:
			level, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			fileNum, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			size, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			smallestSeq, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			largestSeq, err := binary.ReadUvarint(br)
			if err != nil {
				return err
			}
			smallest, err := readBytes(br)
			if err != nil {
				return err
			}
			largest, err := readBytes(br)
			if err != nil {
				return err
			}
			v.NewFiles = append(v.NewFiles, NewFileEntry{
				Level: int(level),
				Meta: FileMetadata{
					FileNum:        base.FileNum(fileNum),
					Size:           size,
					SmallestSeqNum: base.SeqNum(smallestSeq),
					LargestSeqNum:  base.SeqNum(largestSeq),
					Smallest:       base.DecodeInternalKey(smallest),
					Largest:        base.DecodeInternalKey(largest),
				},
			})
		default:
			return base.CorruptionErrorf("manifest: unknown edit tag %d", tag)
		}
	}
}

func readBytes(br byteReader) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Encode writes the edit to w.
func (v *VersionEdit) Encode(w io.Writer) error {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	writeUvarint := func(u uint64) {
		n := binary.PutUvarint(tmp[:], u)
		buf.Write(tmp[:n])
	}
	writeBytes := func(p []byte) {
		writeUvarint(uint64(len(p)))
		buf.Write(p)
	}

	if v.ComparatorName != "" {
		writeUvarint(tagComparator)
		writeBytes([]byte(v.ComparatorName))
	}
	if v.LogNumber != 0 {
		writeUvarint(tagLogNumber)
		writeUvarint(uint64(v.LogNumber))
	}
	if v.PrevLogNumber != 0 {
		writeUvarint(tagPrevLogNumber)
		writeUvarint(uint64(v.PrevLogNumber))
	}
	if v.NextFileNumber != 0 {
		writeUvarint(tagNextFileNumber)
		writeUvarint(uint64(v.NextFileNumber))
	}
	if v.LastSeqNum != 0 {
		writeUvarint(tagLastSequence)
		writeUvarint(uint64(v.LastSeqNum))
	}
	for x := range v.DeletedFiles {
		writeUvarint(tagDeletedFile)
		writeUvarint(uint64(x.Level))
		writeUvarint(uint64(x.FileNum))
	}
	for _, x := range v.NewFiles {
		writeUvarint(tagNewFile)
		writeUvarint(uint64(x.Level))
		writeUvarint(uint64(x.Meta.FileNum))
		writeUvarint(x.Meta.Size)
		writeUvarint(uint64(x.Meta.SmallestSeqNum))
		writeUvarint(uint64(x.Meta.LargestSeqNum))
		writeBytes(x.Meta.Smallest.Encode(make([]byte, x.Meta.Smallest.Size())))
		writeBytes(x.Meta.Largest.Encode(make([]byte, x.Meta.Largest.Size())))
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// BulkVersionEdit accumulates a run of VersionEdits (replayed from the
// manifest at Open) so Apply only needs to touch each level once instead of
// once per edit.
type BulkVersionEdit struct {
	Added   [NumLevels]map[base.FileNum]*FileMetadata
	Deleted [NumLevels]map[base.FileNum]bool

	comparatorName string
	logNumber      base.FileNum
	nextFileNumber base.FileNum
	lastSeqNum     base.SeqNum
}

// Accumulate folds one more edit into the running totals.
func (b *BulkVersionEdit) Accumulate(ve *VersionEdit) {
	for df := range ve.DeletedFiles {
		if b.Deleted[df.Level] == nil {
			b.Deleted[df.Level] = make(map[base.FileNum]bool)
		}
		b.Deleted[df.Level][df.FileNum] = true
		if b.Added[df.Level] != nil {
			delete(b.Added[df.Level], df.FileNum)
		}
	}
	for _, nf := range ve.NewFiles {
		if b.Added[nf.Level] == nil {
			b.Added[nf.Level] = make(map[base.FileNum]*FileMetadata)
		}
		meta := nf.Meta
		b.Added[nf.Level][nf.Meta.FileNum] = &meta
	}
	if ve.ComparatorName != "" {
		b.comparatorName = ve.ComparatorName
	}
	if ve.LogNumber != 0 {
		b.logNumber = ve.LogNumber
	}
	if ve.NextFileNumber != 0 {
		b.nextFileNumber = ve.NextFileNumber
	}
	if ve.LastSeqNum != 0 {
		b.lastSeqNum = ve.LastSeqNum
	}
}

// Apply produces a new Version from a base Version (nil for a brand new
// database) plus every accumulated edit.
func (b *BulkVersionEdit) Apply(baseVersion *Version, cmp base.Compare) (*Version, error) {
	v := &Version{}
	for level := 0; level < NumLevels; level++ {
		var files []*FileMetadata
		if baseVersion != nil {
			for _, f := range baseVersion.Files[level] {
				if b.Deleted[level][f.FileNum] {
					continue
				}
				files = append(files, f)
			}
		}
		for _, f := range b.Added[level] {
			files = append(files, f)
		}
		if level == 0 {
			sort.Sort(BySeqNum(files))
		} else {
			sort.Sort(BySmallest{Files: files, Cmp: cmp})
		}
		v.Files[level] = files
	}
	if err := v.CheckOrdering(cmp); err != nil {
		return nil, err
	}
	return v, nil
}
