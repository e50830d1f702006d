package compaction

import (
	"fmt"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/manifest"
	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/internal/storage"
)

// TableOpener returns a forward internal iterator over the sstable named by
// fileNum, typically backed by a shared cache.TableCache/BlockCache pair so
// a compaction doesn't have to re-open and re-read every input from scratch.
type TableOpener func(fileNum base.FileNum) (base.InternalIterator, error)

// Executor runs compactions picked by a Picker, merging their inputs into
// new sstables at c.OutputLevel and producing the VersionEdit that installs
// the result. Grounded on DB.compactDiskTables/compactionIterator in the
// classic compaction.go, generalized to output more than one file once the
// current one reaches TargetFileSize (the original left this as a TODO).
type Executor struct {
	FS          storage.FS
	Dirname     string
	Comparer    *base.Comparer
	Open        TableOpener
	NextFileNum func() base.FileNum
	Opts        Options
	WriterOpts  sstable.WriterOptions
}

// Result is one output file produced by a compaction.
type Result struct {
	Meta manifest.FileMetadata
}

// Execute runs c to completion: every key at or below smallestSnapshot's
// sequence number that is shadowed by a newer version, or that is an
// obsolete delete tombstone once past the base level, is dropped; whatever
// remains is written out to one or more new sstables at c.OutputLevel.
func (e *Executor) Execute(c *Compaction, v *manifest.Version, smallestSnapshot base.SeqNum) (*manifest.VersionEdit, error) {
	iter, err := e.openInputIter(c)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	ve := &manifest.VersionEdit{DeletedFiles: map[manifest.DeletedFileEntry]bool{}}
	for i := 0; i < 2; i++ {
		for _, f := range c.Inputs[i] {
			ve.DeletedFiles[manifest.DeletedFileEntry{Level: c.StartLevel + i, FileNum: f.FileNum}] = true
		}
	}

	var (
		w        *sstable.Writer
		file     storage.File
		fileNum  base.FileNum
		filename string
		smallest base.InternalKey
		largest  base.InternalKey
	)

	finishOutput := func() error {
		if w == nil {
			return nil
		}
		props, err := w.Close()
		if err != nil {
			return err
		}
		ve.NewFiles = append(ve.NewFiles, manifest.NewFileEntry{
			Level: c.OutputLevel,
			Meta: manifest.FileMetadata{
				FileNum:        fileNum,
				Size:           props.FileSize,
				AllowedSeeks:   manifest.InitAllowedSeeks(props.FileSize),
				Smallest:       smallest,
				Largest:        largest,
				SmallestSeqNum: smallest.SeqNum(),
				LargestSeqNum:  largest.SeqNum(),
			},
		})
		w = nil
		return nil
	}

	var (
		currentUkey      []byte
		hasCurrentUkey   bool
		lastSeqNumForKey base.SeqNum = base.SeqNumMax
	)

	// grandparentIdx/overlappedGrandparentBytes implement spec.md §4.10's
	// second, independent output-rollover trigger: a single output file is
	// also cut short once its key range would overlap too many
	// level-(StartLevel+2) files, not just once it reaches targetFileSize.
	// Grounded on the classic Compaction::ShouldStopBefore: grandparentIdx
	// only ever advances forward across the whole compaction, while
	// overlappedGrandparentBytes resets every time it triggers a rollover.
	grandparents := c.Inputs[2]
	var (
		grandparentIdx             int
		overlappedGrandparentBytes uint64
		seenKeyPastGrandparent     bool
	)
	grandparentOverlapLimit := uint64(maxGrandparentOverlapFactor) * uint64(c.targetFileSize())
	shouldSplitForGrandparents := func(ikey base.InternalKey) bool {
		for grandparentIdx < len(grandparents) &&
			base.InternalCompare(e.Comparer.Compare, ikey, grandparents[grandparentIdx].Largest) > 0 {
			if seenKeyPastGrandparent {
				overlappedGrandparentBytes += grandparents[grandparentIdx].Size
			}
			grandparentIdx++
		}
		seenKeyPastGrandparent = true
		if overlappedGrandparentBytes > grandparentOverlapLimit {
			overlappedGrandparentBytes = 0
			return true
		}
		return false
	}

	for valid := iter.First(); valid; valid = iter.Next() {
		ikey := iter.Key()
		drop := false

		if !ikey.Valid() {
			currentUkey = currentUkey[:0]
			hasCurrentUkey = false
			lastSeqNumForKey = base.SeqNumMax
		} else {
			ukey := ikey.UserKey
			if !hasCurrentUkey || e.Comparer.Compare(currentUkey, ukey) != 0 {
				currentUkey = append(currentUkey[:0], ukey...)
				hasCurrentUkey = true
				lastSeqNumForKey = base.SeqNumMax
			}

			seqNum := ikey.SeqNum()
			switch {
			case lastSeqNumForKey <= smallestSnapshot:
				// An earlier (higher sequence number, since trailer order
				// sorts descending) version of this user key is already
				// visible at or below the oldest live snapshot, so nothing
				// can ever need this older version again.
				drop = true
			case ikey.Kind() == base.InternalKeyKindDelete &&
				seqNum <= smallestSnapshot &&
				c.IsBaseLevelForUkey(v, e.Comparer.Compare, ukey):
				// No data for ukey exists below the output level, so this
				// tombstone no longer shadows anything and can be dropped.
				drop = true
			}
			lastSeqNumForKey = seqNum
		}

		if drop {
			continue
		}

		splitForGrandparents := shouldSplitForGrandparents(ikey)
		if w != nil && splitForGrandparents {
			if err := finishOutput(); err != nil {
				return nil, err
			}
		}

		if w == nil {
			fileNum = e.NextFileNum()
			filename = base.MakeFilename(e.Dirname, base.FileTypeTable, fileNum)
			file, err = e.FS.Create(filename)
			if err != nil {
				return nil, err
			}
			w = sstable.NewWriter(file, e.WriterOpts)
			smallest = ikey.Clone()
		}
		largest = ikey.Clone()
		if err := w.Add(ikey, iter.Value()); err != nil {
			return nil, err
		}

		if w.EstimatedSize() >= uint64(c.targetFileSize()) {
			if err := finishOutput(); err != nil {
				return nil, err
			}
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	if err := finishOutput(); err != nil {
		return nil, err
	}
	return ve, nil
}

func (e *Executor) openInputIter(c *Compaction) (base.InternalIterator, error) {
	var iters []base.InternalIterator
	closeAll := func() {
		for _, it := range iters {
			it.Close()
		}
	}

	if c.StartLevel == 0 {
		for _, f := range c.Inputs[0] {
			it, err := e.Open(f.FileNum)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("compaction: opening table %d: %w", f.FileNum, err)
			}
			iters = append(iters, it)
		}
	} else {
		it, err := e.concatIter(c.Inputs[0])
		if err != nil {
			closeAll()
			return nil, err
		}
		iters = append(iters, it)
	}

	it, err := e.concatIter(c.Inputs[1])
	if err != nil {
		closeAll()
		return nil, err
	}
	iters = append(iters, it)

	return NewMergingIter(e.Comparer.Compare, iters...), nil
}

// concatIter chains a level's non-overlapping files into a single forward
// iterator; grounded on the classic newConcatenatingIterator, simplified to
// the forward-only traversal a compaction needs.
func (e *Executor) concatIter(files []*manifest.FileMetadata) (base.InternalIterator, error) {
	iters := make([]base.InternalIterator, 0, len(files))
	for _, f := range files {
		it, err := e.Open(f.FileNum)
		if err != nil {
			for _, prior := range iters {
				prior.Close()
			}
			return nil, fmt.Errorf("compaction: opening table %d: %w", f.FileNum, err)
		}
		iters = append(iters, it)
	}
	return &concatenatingIter{iters: iters}, nil
}

// concatenatingIter walks a sequence of non-overlapping iterators end to
// end, used for every level >= 1 whose files are known not to overlap.
type concatenatingIter struct {
	iters []base.InternalIterator
	idx   int
	err   error
}

var _ base.InternalIterator = (*concatenatingIter)(nil)

func (c *concatenatingIter) First() bool {
	c.idx = 0
	for c.idx < len(c.iters) {
		if c.iters[c.idx].First() {
			return true
		}
		c.idx++
	}
	return false
}

func (c *concatenatingIter) SeekGE(key []byte) bool {
	for c.idx = 0; c.idx < len(c.iters); c.idx++ {
		if c.iters[c.idx].SeekGE(key) {
			return true
		}
	}
	return false
}

func (c *concatenatingIter) Last() bool { panic("compaction: concatenatingIter is forward-only") }
func (c *concatenatingIter) Prev() bool { panic("compaction: concatenatingIter is forward-only") }

func (c *concatenatingIter) Next() bool {
	if c.idx >= len(c.iters) {
		return false
	}
	if c.iters[c.idx].Next() {
		return true
	}
	if err := c.iters[c.idx].Error(); err != nil {
		c.err = err
		return false
	}
	c.idx++
	for c.idx < len(c.iters) {
		if c.iters[c.idx].First() {
			return true
		}
		c.idx++
	}
	return false
}

func (c *concatenatingIter) Valid() bool {
	return c.idx < len(c.iters) && c.iters[c.idx].Valid()
}
func (c *concatenatingIter) Key() base.InternalKey { return c.iters[c.idx].Key() }
func (c *concatenatingIter) Value() []byte         { return c.iters[c.idx].Value() }
func (c *concatenatingIter) Error() error {
	if c.err != nil {
		return c.err
	}
	if c.idx < len(c.iters) {
		return c.iters[c.idx].Error()
	}
	return nil
}
func (c *concatenatingIter) Close() error {
	var err error
	for _, it := range c.iters {
		if e := it.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
