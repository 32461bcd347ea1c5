package scanner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheHitAndMiss(t *testing.T) {
	c := NewFileCache(10, time.Minute)

	_, ok := c.Get("o/r", "src/a.ts", "sha1")
	assert.False(t, ok)

	c.Put("o/r", "src/a.ts", "sha1", "content")
	got, ok := c.Get("o/r", "src/a.ts", "sha1")
	require.True(t, ok)
	assert.Equal(t, "content", got)

	// A different blob sha is a different key.
	_, ok = c.Get("o/r", "src/a.ts", "sha2")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.Equal(t, 1, stats.Entries)
}

func TestCacheTTLExpiry(t *testing.T) {
	c := NewFileCache(10, 5*time.Minute)
	now := time.Now()
	c.nowFn = func() time.Time { return now }

	c.Put("o/r", "src/a.ts", "sha1", "content")

	now = now.Add(4 * time.Minute)
	_, ok := c.Get("o/r", "src/a.ts", "sha1")
	assert.True(t, ok)

	// TTL is absolute from insertion; the earlier hit did not extend it.
	now = now.Add(2 * time.Minute)
	_, ok = c.Get("o/r", "src/a.ts", "sha1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Entries, "expired entry is dropped")
}

func TestCacheLRUEviction(t *testing.T) {
	c := NewFileCache(2, time.Minute)

	c.Put("o/r", "a", "s", "1")
	c.Put("o/r", "b", "s", "2")

	// Touch a so b becomes the eviction candidate.
	_, ok := c.Get("o/r", "a", "s")
	require.True(t, ok)

	c.Put("o/r", "c", "s", "3")

	_, ok = c.Get("o/r", "a", "s")
	assert.True(t, ok)
	_, ok = c.Get("o/r", "b", "s")
	assert.False(t, ok)
	_, ok = c.Get("o/r", "c", "s")
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evictions)
}

func TestCachePutUpdatesExisting(t *testing.T) {
	c := NewFileCache(10, time.Minute)
	c.Put("o/r", "a", "s", "old")
	c.Put("o/r", "a", "s", "new")

	got, ok := c.Get("o/r", "a", "s")
	require.True(t, ok)
	assert.Equal(t, "new", got)
	assert.Equal(t, 1, c.Stats().Entries)
}
