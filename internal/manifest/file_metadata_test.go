package manifest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitAllowedSeeksFloorsAtOneHundred(t *testing.T) {
	require.Equal(t, int64(100), InitAllowedSeeks(0))
	require.Equal(t, int64(100), InitAllowedSeeks(1<<10))
	require.Equal(t, int64(200), InitAllowedSeeks(200*readCompactionRate))
}

func TestRecordWastedSeekMarksExhaustionExactlyOnce(t *testing.T) {
	f := &FileMetadata{AllowedSeeks: 2}

	require.False(t, f.RecordWastedSeek())
	require.True(t, f.RecordWastedSeek())
	// Further wasted seeks keep draining the budget but don't re-report
	// exhaustion; the caller only needs to act on the transition once.
	require.False(t, f.RecordWastedSeek())
	require.Equal(t, int64(-1), f.AllowedSeeks)
}
