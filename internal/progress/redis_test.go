// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package progress

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisTracker(t *testing.T) (*Tracker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, time.Minute, zerolog.Nop()), mr
}

func TestRedisTrackerRoundTripsASnapshot(t *testing.T) {
	tr, _ := newTestRedisTracker(t)

	tr.Update(1, func(s *Snapshot) {
		s.Status = StatusDownloading
		s.Percent = 25
	})

	snap, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, int64(1), snap.VideoID)
	assert.Equal(t, StatusDownloading, snap.Status)
	assert.Equal(t, 25.0, snap.Percent)
}

func TestRedisTrackerMergesSuccessiveUpdates(t *testing.T) {
	tr, _ := newTestRedisTracker(t)

	hook := tr.CreateHook(2)
	hook(map[string]string{"_percent_str": "10%"})
	hook(map[string]string{"_percent_str": "55%", "_speed_str": "2MiB/s"})

	snap, ok := tr.Get(2)
	require.True(t, ok)
	assert.Equal(t, 55.0, snap.Percent)
	assert.Equal(t, "2MiB/s", snap.Speed)
}

func TestRedisTrackerMissReturnsFalse(t *testing.T) {
	tr, _ := newTestRedisTracker(t)

	_, ok := tr.Get(999)
	assert.False(t, ok)
}

func TestRedisTrackerExpiresAfterTTL(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tr := NewRedis(client, 10*time.Millisecond, zerolog.Nop())
	tr.MarkDone(3)

	mr.FastForward(50 * time.Millisecond)

	_, ok := tr.Get(3)
	assert.False(t, ok, "a snapshot past its TTL must not be served")
}

func TestRedisTrackerMarkErrorRecordsMessage(t *testing.T) {
	tr, _ := newTestRedisTracker(t)

	tr.MarkError(4, assert.AnError)
	snap, ok := tr.Get(4)
	require.True(t, ok)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, assert.AnError.Error(), snap.Error)
}
