package compaction

import (
	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/manifest"
)

// Compaction describes one level-to-level merge: inputs[0] is the level
// being compacted, inputs[1] is the overlapping set of files one level
// down (the output level), and inputs[2] is the overlapping "grandparent"
// set two levels down, tracked only to bound how large a single output
// file is allowed to grow. Grounded on the classic compaction struct.
type Compaction struct {
	opts Options

	StartLevel  int
	OutputLevel int

	Inputs [3][]*manifest.FileMetadata
}

func newCompaction(opts Options, v *manifest.Version, level, baseLevel int, cmp compareFunc) *Compaction {
	outputLevel := level + 1
	if level == 0 {
		outputLevel = baseLevel
	}
	c := &Compaction{opts: opts, StartLevel: level, OutputLevel: outputLevel}
	return c
}

// SetupInputs expands c.Inputs[0] to cover every overlapping L0 file (L0
// files may overlap each other), computes the overlapping output-level
// files, grows the input set further when doing so doesn't pull in
// additional output-level files, and finally computes the grandparent
// overlap used to cap individual output file sizes.
func (c *Compaction) SetupInputs(cmp compareFunc, v *manifest.Version, picked []*manifest.FileMetadata) {
	c.Inputs[0] = picked
	if c.StartLevel == 0 {
		smallest, largest := manifest.KeyRange(cmp, c.Inputs[0], nil)
		c.Inputs[0] = v.Overlaps(0, cmp, smallest.UserKey, largest.UserKey)
	}

	smallest0, largest0 := manifest.KeyRange(cmp, c.Inputs[0], nil)
	c.Inputs[1] = v.Overlaps(c.OutputLevel, cmp, smallest0.UserKey, largest0.UserKey)

	smallest01, largest01 := manifest.KeyRange(cmp, c.Inputs[0], c.Inputs[1])
	if c.grow(cmp, v, smallest01, largest01) {
		smallest01, largest01 = manifest.KeyRange(cmp, c.Inputs[0], c.Inputs[1])
	}

	if c.StartLevel+2 < manifest.NumLevels {
		c.Inputs[2] = v.Overlaps(c.StartLevel+2, cmp, smallest01.UserKey, largest01.UserKey)
	}
}

// grow widens Inputs[0] without changing the number of output-level files
// the compaction touches, as long as the combined size stays under
// expandedCompactionByteSizeFactor * TargetFileSize.
func (c *Compaction) grow(cmp compareFunc, v *manifest.Version, smallest, largest base.InternalKey) bool {
	if len(c.Inputs[1]) == 0 {
		return false
	}
	grow0 := v.Overlaps(c.StartLevel, cmp, smallest.UserKey, largest.UserKey)
	if len(grow0) <= len(c.Inputs[0]) {
		return false
	}
	limit := uint64(expandedCompactionByteSizeFactor) * uint64(c.targetFileSize())
	if manifest.TotalSize(grow0)+manifest.TotalSize(c.Inputs[1]) >= limit {
		return false
	}
	sm1, la1 := manifest.KeyRange(cmp, grow0, nil)
	grow1 := v.Overlaps(c.OutputLevel, cmp, sm1.UserKey, la1.UserKey)
	if len(grow1) != len(c.Inputs[1]) {
		return false
	}
	c.Inputs[0], c.Inputs[1] = grow0, grow1
	return true
}

func (c *Compaction) targetFileSize() int64 {
	if c.opts.TargetFileSize > 0 {
		return c.opts.TargetFileSize
	}
	return targetFileSizeDefault
}

// IsTrivialMove reports whether this compaction can be satisfied by simply
// re-levelling a single file (no data rewritten), the classic optimization
// for a level whose lone compacting file doesn't overlap anything below it.
func (c *Compaction) IsTrivialMove() bool {
	if len(c.Inputs[0]) != 1 || len(c.Inputs[1]) != 0 {
		return false
	}
	limit := uint64(maxGrandparentOverlapFactor) * uint64(c.targetFileSize())
	return manifest.TotalSize(c.Inputs[2]) <= limit
}

// IsBaseLevelForUkey reports whether it's guaranteed there is no data for
// ukey at c.OutputLevel+1 or deeper, which lets the executor drop an
// obsolete delete tombstone for ukey once it reaches that level.
func (c *Compaction) IsBaseLevelForUkey(v *manifest.Version, cmp compareFunc, ukey []byte) bool {
	for level := c.OutputLevel + 1; level < manifest.NumLevels; level++ {
		for _, f := range v.Files[level] {
			if cmp(ukey, f.Largest.UserKey) <= 0 {
				if cmp(ukey, f.Smallest.UserKey) >= 0 {
					return false
				}
				break
			}
		}
	}
	return true
}
