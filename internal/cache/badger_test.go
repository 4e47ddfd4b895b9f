// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBadgerCache(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := OpenBadgerCache(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBadgerCacheSetGetRoundTrip(t *testing.T) {
	c := newTestBadgerCache(t)
	c.Set("list:1:capability:live_detection", true, time.Minute)

	value, ok := c.Get("list:1:capability:live_detection")
	require.True(t, ok)
	assert.Equal(t, true, value)
}

func TestBadgerCacheMissReturnsFalse(t *testing.T) {
	c := newTestBadgerCache(t)
	_, ok := c.Get("nonexistent")
	assert.False(t, ok)
}

func TestBadgerCacheExpiresAfterTTL(t *testing.T) {
	c := newTestBadgerCache(t)
	c.Set("short-lived", "value", 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	_, ok := c.Get("short-lived")
	assert.False(t, ok)
}

func TestBadgerCacheDelete(t *testing.T) {
	c := newTestBadgerCache(t)
	c.Set("key", "value", time.Minute)
	c.Delete("key")

	_, ok := c.Get("key")
	assert.False(t, ok)
}

func TestBadgerCacheClearRemovesEverything(t *testing.T) {
	c := newTestBadgerCache(t)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	c.Clear()

	assert.Equal(t, 0, c.Stats().CurrentSize)
}

func TestBadgerCacheStatsReportsCurrentSize(t *testing.T) {
	c := newTestBadgerCache(t)
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	assert.Equal(t, 2, c.Stats().CurrentSize)
}
