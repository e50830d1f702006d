package record_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/strata-db/strata/internal/record"
)

func readAll(t *testing.T, buf *bytes.Buffer) [][]byte {
	t.Helper()
	r := record.NewReader(bytes.NewReader(buf.Bytes()), 1)
	var got [][]byte
	for {
		rec, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(rec)
		require.NoError(t, err)
		got = append(got, b)
	}
	return got
}

func TestWriteReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := record.NewWriter(&buf)
	want := [][]byte{
		[]byte("hello"),
		[]byte(""),
		bytes.Repeat([]byte{'x'}, record.BlockSize*3+17),
		[]byte("tail"),
	}
	for _, rec := range want {
		require.NoError(t, w.WriteRecord(rec))
	}
	require.NoError(t, w.Close())

	got := readAll(t, &buf)
	require.Equal(t, len(want), len(got))
	for i := range want {
		require.Equal(t, want[i], got[i])
	}
}

func TestParanoidReaderReportsCorruption(t *testing.T) {
	var buf bytes.Buffer
	w := record.NewWriter(&buf)
	require.NoError(t, w.WriteRecord([]byte("first")))
	require.NoError(t, w.WriteRecord([]byte("second")))
	require.NoError(t, w.Close())

	corrupt := buf.Bytes()
	corrupt[0] ^= 0xff // flip a bit in the first record's checksum

	r := record.NewReader(bytes.NewReader(corrupt), 1)
	r.Paranoid = true
	_, err := r.Next()
	require.Error(t, err)
	require.True(t, record.IsInvalidRecord(err))
}
