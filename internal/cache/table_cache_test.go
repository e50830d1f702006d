package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	closed bool
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func TestTableCacheInsertThenGetSharesOneEntry(t *testing.T) {
	c := NewTableCache(10)
	r := &fakeReader{}

	got := c.Insert(1, r)
	require.Same(t, r, got)

	got2, ok := c.Get(1)
	require.True(t, ok)
	require.Same(t, r, got2)

	c.Release(got)
	c.Release(got2)
	require.False(t, r.closed)
}

func TestTableCacheEvictionDefersCloseUntilLastRelease(t *testing.T) {
	c := NewTableCache(1)
	r1 := &fakeReader{}
	inserted := c.Insert(1, r1)

	held, ok := c.Get(1)
	require.True(t, ok)

	// Inserting a second file evicts fileNum 1 from a capacity-1 cache, but
	// its reader must not be closed yet: two references are still
	// outstanding on it (inserted, held).
	r2 := &fakeReader{}
	c.Insert(2, r2)
	require.False(t, r1.closed)

	c.Release(inserted)
	require.False(t, r1.closed)
	c.Release(held)
	require.True(t, r1.closed)

	got2, ok := c.Get(2)
	require.True(t, ok)
	c.Release(got2)
}

func TestTableCacheEraseClosesOnceUnreferenced(t *testing.T) {
	c := NewTableCache(10)
	r := &fakeReader{}
	held := c.Insert(1, r)

	c.Erase(1)
	require.False(t, r.closed)

	c.Release(held)
	require.True(t, r.closed)
}

func TestTableCacheCloseEvictsEverything(t *testing.T) {
	c := NewTableCache(10)
	r1, r2 := &fakeReader{}, &fakeReader{}
	held1 := c.Insert(1, r1)
	held2 := c.Insert(2, r2)
	c.Release(held2)

	c.Close()
	require.False(t, r1.closed, "still referenced, must wait for Release")
	require.True(t, r2.closed)

	c.Release(held1)
	require.True(t, r1.closed)
}
