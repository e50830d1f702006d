package compaction

import (
	"math"
	"sort"

	"github.com/strata-db/strata/internal/manifest"
)

// Options configures how the picker scores levels and how the executor
// writes its output sstables; a subset of the root package's Options,
// threaded down so this package stays independent of it.
type Options struct {
	L0CompactionThreshold int
	MemTableSize          int64
	LBaseMaxBytes         int64
	TargetFileSize        int64
}

// DefaultOptions mirrors the classic db/options.go defaults for the knobs
// this package needs.
func DefaultOptions() Options {
	return Options{
		L0CompactionThreshold: 4,
		MemTableSize:          4 << 20,
		LBaseMaxBytes:         64 << 20,
		TargetFileSize:        2 << 20,
	}
}

const (
	targetFileSizeDefault = 2 << 20

	// maxGrandparentOverlapFactor bounds the grandparent-level overlap of a
	// single output file as a multiple of the target file size, the same
	// ratio the classic picker uses to decide when a trivial move is safe.
	maxGrandparentOverlapFactor = 10
	// expandedCompactionByteSizeFactor bounds how far setupInputs will grow
	// an input set while still covering the same number of next-level files.
	expandedCompactionByteSizeFactor = 25
)

// Picker scores each level of a Version and queues the compactions needed
// to keep the LSM shape healthy. One Picker is built fresh for every new
// Version, exactly as the classic compactionPickerByScore is.
type Picker struct {
	opts Options
	vers *manifest.Version

	baseLevel               int
	estimatedMaxWAmp        float64
	smoothedLevelMultiplier float64
	levelMaxBytes           [manifest.NumLevels]int64
	scores                  [manifest.NumLevels]float64

	queue []pickedInfo
}

type pickedInfo struct {
	score       float64
	level       int
	outputLevel int
	file        int
}

// NewPicker builds a picker for v, skipping levels that already have a
// compaction in progress (inProgress lists the (startLevel, outputLevel)
// pairs currently being compacted).
func NewPicker(v *manifest.Version, opts Options, inProgress [][2]int) *Picker {
	p := &Picker{opts: opts, vers: v}
	p.initLevelMaxBytes(v, inProgress)
	p.initQueue(v)
	return p
}

func (p *Picker) BaseLevel() int { return p.baseLevel }

// EstimatedCompactionDebt estimates the bytes that must still be compacted,
// including l0ExtraSize bytes not yet flushed from the active memtable,
// before the LSM reaches a stable shape.
func (p *Picker) EstimatedCompactionDebt(l0ExtraSize uint64) uint64 {
	compactionDebt := manifest.TotalSize(p.vers.Files[0]) + l0ExtraSize
	bytesAddedToNextLevel := compactionDebt

	levelSize := manifest.TotalSize(p.vers.Files[p.baseLevel])
	estimatedL0CompactionSize := uint64(p.opts.L0CompactionThreshold) * uint64(p.opts.MemTableSize)
	if estimatedL0CompactionSize == 0 {
		estimatedL0CompactionSize = 1
	}
	compactionDebt += (levelSize * bytesAddedToNextLevel) / estimatedL0CompactionSize

	var nextLevelSize uint64
	for level := p.baseLevel; level < manifest.NumLevels-1; level++ {
		levelSize += bytesAddedToNextLevel
		bytesAddedToNextLevel = 0
		nextLevelSize = manifest.TotalSize(p.vers.Files[level+1])
		if levelSize > uint64(p.levelMaxBytes[level]) {
			bytesAddedToNextLevel = levelSize - uint64(p.levelMaxBytes[level])
			levelRatio := float64(nextLevelSize) / float64(levelSize)
			compactionDebt += uint64(float64(bytesAddedToNextLevel) * (levelRatio + 1))
		}
		levelSize = nextLevelSize
	}
	return compactionDebt
}

func (p *Picker) initLevelMaxBytes(v *manifest.Version, inProgress [][2]int) {
	firstNonEmptyLevel := -1
	var bottomLevelSize int64
	for level := 1; level < manifest.NumLevels; level++ {
		levelSize := int64(manifest.TotalSize(v.Files[level]))
		if levelSize > 0 {
			if firstNonEmptyLevel == -1 {
				firstNonEmptyLevel = level
			}
			bottomLevelSize = levelSize
		}
	}
	for _, c := range inProgress {
		if c[0] == 0 && (firstNonEmptyLevel == -1 || c[1] < firstNonEmptyLevel) {
			firstNonEmptyLevel = c[1]
		}
	}

	for level := 0; level < manifest.NumLevels; level++ {
		p.levelMaxBytes[level] = math.MaxInt64
	}

	if bottomLevelSize == 0 {
		p.baseLevel = manifest.NumLevels - 1
		if firstNonEmptyLevel >= 0 {
			p.baseLevel = firstNonEmptyLevel
		}
		return
	}

	const levelMultiplier = 10.0
	baseBytesMax := p.opts.LBaseMaxBytes
	baseBytesMin := int64(float64(baseBytesMax) / levelMultiplier)

	curLevelSize := bottomLevelSize
	for level := manifest.NumLevels - 2; level >= firstNonEmptyLevel; level-- {
		curLevelSize = int64(float64(curLevelSize) / levelMultiplier)
	}

	if curLevelSize <= baseBytesMin {
		p.baseLevel = firstNonEmptyLevel
	} else {
		p.baseLevel = firstNonEmptyLevel
		for p.baseLevel > 1 && curLevelSize > baseBytesMax {
			p.baseLevel--
			curLevelSize = int64(float64(curLevelSize) / levelMultiplier)
		}
	}

	if p.baseLevel < manifest.NumLevels-1 {
		p.smoothedLevelMultiplier = math.Pow(
			float64(bottomLevelSize)/float64(baseBytesMax), 1.0/float64(manifest.NumLevels-p.baseLevel-1))
	} else {
		p.smoothedLevelMultiplier = 1.0
	}
	p.estimatedMaxWAmp = float64(manifest.NumLevels-p.baseLevel) * (p.smoothedLevelMultiplier + 1)

	levelSize := float64(baseBytesMax)
	for level := p.baseLevel; level < manifest.NumLevels; level++ {
		if level > p.baseLevel && levelSize > 0 {
			levelSize *= p.smoothedLevelMultiplier
		}
		rounded := math.Round(levelSize)
		if rounded > float64(math.MaxInt64) {
			p.levelMaxBytes[level] = math.MaxInt64
		} else {
			p.levelMaxBytes[level] = int64(rounded)
		}
	}
}

type byDecreasingScore struct {
	levels []int
	scores *[manifest.NumLevels]float64
}

func (s byDecreasingScore) Len() int           { return len(s.levels) }
func (s byDecreasingScore) Less(i, j int) bool { return s.scores[s.levels[i]] > s.scores[s.levels[j]] }
func (s byDecreasingScore) Swap(i, j int)      { s.levels[i], s.levels[j] = s.levels[j], s.levels[i] }

func (p *Picker) initQueue(v *manifest.Version) {
	threshold := p.opts.L0CompactionThreshold
	if threshold == 0 {
		threshold = 4
	}
	p.scores[0] = float64(len(v.Files[0])) / float64(threshold)
	for level := 1; level < manifest.NumLevels-1; level++ {
		p.scores[level] = float64(manifest.TotalSize(v.Files[level])) / float64(p.levelMaxBytes[level])
	}

	var candidates []int
	for level := 0; level < manifest.NumLevels-1; level++ {
		if p.scores[level] >= 1 {
			candidates = append(candidates, level)
		}
	}
	sort.Sort(byDecreasingScore{levels: candidates, scores: &p.scores})

	for _, level := range candidates {
		outputLevel := level + 1
		if level == 0 {
			outputLevel = p.baseLevel
		}
		p.queue = append(p.queue, pickedInfo{score: p.scores[level], level: level, outputLevel: outputLevel})
	}
	// Within each queued level, compact the file with the oldest data first
	// (the classic picker's kOldestSmallestSeqFirst heuristic), so deletions
	// are propagated toward the bottom level in a timely fashion.
	for i := range p.queue {
		best := -1
		files := v.Files[p.queue[i].level]
		for j, f := range files {
			if best == -1 || f.SmallestSeqNum < files[best].SmallestSeqNum {
				best = j
			}
		}
		if best >= 0 {
			p.queue[i].file = best
		}
	}

	for level := 0; level < manifest.NumLevels-1; level++ {
		outputLevel := level + 1
		if level == 0 {
			outputLevel = p.baseLevel
		}
		for i, f := range v.Files[level] {
			if f.MarkedForCompaction {
				p.queue = append(p.queue, pickedInfo{level: level, outputLevel: outputLevel, file: i})
				break
			}
		}
	}
}

// PickAuto dequeues and fully expands the highest-priority pending
// compaction, or returns nil if none is queued or all remaining candidates
// conflict with an in-progress compaction.
func (p *Picker) PickAuto(cmp compareFunc, inProgress [][2]int) *Compaction {
	for len(p.queue) > 0 {
		info := p.queue[0]
		p.queue = p.queue[1:]
		if conflicts(info.level, info.outputLevel, inProgress) {
			continue
		}
		c := newCompaction(p.opts, p.vers, info.level, p.baseLevel, cmp)
		files := p.vers.Files[info.level]
		if info.file >= len(files) {
			continue
		}
		c.SetupInputs(cmp, p.vers, []*manifest.FileMetadata{files[info.file]})
		return c
	}
	return nil
}

func conflicts(level, outputLevel int, inProgress [][2]int) bool {
	for _, c := range inProgress {
		if level == c[0] || outputLevel == c[0] || level == c[1] {
			return true
		}
	}
	return false
}

type compareFunc = func(a, b []byte) int
