package compaction

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/base"
	"github.com/strata-db/strata/internal/manifest"
	"github.com/strata-db/strata/internal/sstable"
	"github.com/strata-db/strata/internal/storage"
)

func writeInputTable(t *testing.T, fs storage.FS, name string, keys []string) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	w := sstable.NewWriter(f, sstable.WriterOptions{Compare: base.DefaultComparer.Compare})
	for _, k := range keys {
		ikey := base.MakeInternalKey([]byte(k), 1, base.InternalKeyKindSet)
		require.NoError(t, w.Add(ikey, []byte(k+"-value")))
	}
	_, err = w.Close()
	require.NoError(t, err)
}

func fakeGrandparent(smallest, largest string, size uint64) *manifest.FileMetadata {
	return &manifest.FileMetadata{
		Smallest: base.MakeInternalKey([]byte(smallest), 1, base.InternalKeyKindSet),
		Largest:  base.MakeInternalKey([]byte(largest), 1, base.InternalKeyKindSet),
		Size:     size,
	}
}

// TestExecuteSplitsOutputOnGrandparentOverlap exercises spec.md §4.10's
// second output-rollover trigger: a single output file is also cut short
// once its key range would overlap too many level-(StartLevel+2) files,
// independent of TargetFileSize.
func TestExecuteSplitsOutputOnGrandparentOverlap(t *testing.T) {
	fs := storage.NewMem()
	writeInputTable(t, fs, "input", []string{"a", "b", "c", "d", "e", "f"})

	nextFileNum := base.FileNum(100)
	e := &Executor{
		FS:       fs,
		Dirname:  "",
		Comparer: base.DefaultComparer,
		Open: func(fileNum base.FileNum) (base.InternalIterator, error) {
			f, err := fs.Open("input")
			if err != nil {
				return nil, err
			}
			r, err := sstable.NewReader(f, uint64(fileNum), nil, sstable.ReaderOptions{Compare: base.DefaultComparer.Compare})
			if err != nil {
				return nil, err
			}
			return r.NewIter()
		},
		NextFileNum: func() base.FileNum {
			nextFileNum++
			return nextFileNum
		},
		Opts:       Options{TargetFileSize: 100000},
		WriterOpts: sstable.WriterOptions{Compare: base.DefaultComparer.Compare},
	}

	c := &Compaction{
		opts:        Options{TargetFileSize: 100000},
		StartLevel:  0,
		OutputLevel: 1,
		Inputs: [3][]*manifest.FileMetadata{
			{{FileNum: 1}},
			nil,
			// Each grandparent file is much larger than
			// maxGrandparentOverlapFactor*TargetFileSize / 2 on its own, so
			// crossing two of their boundaries (at key "c" and key "e")
			// trips the rollover exactly once.
			{
				fakeGrandparent("a", "b", 600000),
				fakeGrandparent("c", "d", 600000),
				fakeGrandparent("e", "f", 600000),
			},
		},
	}

	ve, err := e.Execute(c, &manifest.Version{}, 0)
	require.NoError(t, err)
	require.Len(t, ve.NewFiles, 2, "expected the grandparent overlap to force a second output file")

	first, second := ve.NewFiles[0].Meta, ve.NewFiles[1].Meta
	require.Equal(t, "d", string(first.Largest.UserKey))
	require.Equal(t, "e", string(second.Smallest.UserKey))
	require.Equal(t, "f", string(second.Largest.UserKey))
}
