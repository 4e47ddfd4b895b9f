// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package progress

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateHookParsesPercentString(t *testing.T) {
	tr := New()
	hook := tr.CreateHook(1)

	hook(map[string]string{"_percent_str": " 42.5% ", "_speed_str": "1.2MiB/s", "eta": "00:10"})

	snap, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, 42.5, snap.Percent)
	assert.Equal(t, "1.2MiB/s", snap.Speed)
	assert.Equal(t, "00:10", snap.ETA)
	assert.Equal(t, StatusDownloading, snap.Status)
}

func TestCreateHookToleratesANSIAndGarbage(t *testing.T) {
	tr := New()
	hook := tr.CreateHook(2)

	hook(map[string]string{"_percent_str": "\x1b[32m37.0\x1b[0m%"})
	snap, ok := tr.Get(2)
	require.True(t, ok)
	assert.Equal(t, 37.0, snap.Percent)

	hook(map[string]string{"_percent_str": "not-a-number"})
	snap, ok = tr.Get(2)
	require.True(t, ok)
	assert.Equal(t, 0.0, snap.Percent)
}

func TestMarkDoneAndMarkError(t *testing.T) {
	tr := New()
	tr.Update(3, func(s *Snapshot) { s.Percent = 50 })

	tr.MarkDone(3)
	snap, ok := tr.Get(3)
	require.True(t, ok)
	assert.Equal(t, StatusDone, snap.Status)
	assert.Equal(t, 100.0, snap.Percent)

	tr.MarkError(3, errors.New("network reset"))
	snap, ok = tr.Get(3)
	require.True(t, ok)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "network reset", snap.Error)
}

func TestGetEvictsStaleEntries(t *testing.T) {
	tr := &Tracker{backend: newMemoryBackend(10 * time.Millisecond)}
	tr.Update(4, func(s *Snapshot) { s.Percent = 10 })

	time.Sleep(20 * time.Millisecond)

	_, ok := tr.Get(4)
	assert.False(t, ok, "entry should have been evicted after exceeding TTL")
}

func TestGetUnknownVideoReturnsFalse(t *testing.T) {
	tr := New()
	_, ok := tr.Get(999)
	assert.False(t, ok)
}
