package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *UploadCache {
	t.Helper()
	c, err := NewUploadCache(filepath.Join(t.TempDir(), "nested", "uploads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUploadCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)

	_, found, err := c.Get("u1", "req-1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put("u1", "req-1", UploadedEvidence{ScreenshotURL: "https://cdn/a.png"}))

	ev, found, err := c.Get("u1", "req-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://cdn/a.png", ev.ScreenshotURL)
	assert.False(t, ev.StoredAt.IsZero())

	require.NoError(t, c.Forget("u1", "req-1"))
	_, found, err = c.Get("u1", "req-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUploadCacheIsScopedToTheUser(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("u1", "shared-req", UploadedEvidence{ScreenshotURL: "https://cdn/u1.png"}))

	_, found, err := c.Get("u2", "shared-req")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Forget("u2", "shared-req"))
	ev, found, err := c.Get("u1", "shared-req")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "https://cdn/u1.png", ev.ScreenshotURL)
}

func TestUploadCachePrune(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.Put("u1", "old", UploadedEvidence{ScreenshotURL: "x", StoredAt: time.Now().Add(-48 * time.Hour)}))
	require.NoError(t, c.Put("u1", "fresh", UploadedEvidence{ScreenshotURL: "y"}))

	n, err := c.Prune(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, found, _ := c.Get("u1", "fresh")
	assert.True(t, found)
	_, found, _ = c.Get("u1", "old")
	assert.False(t, found)
}
