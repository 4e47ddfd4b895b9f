// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateVideoDuplicateExternalIDConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@videos")

	_, err := s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "abc123", MediaType: MediaVideo})
	require.NoError(t, err)

	_, err = s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "abc123", MediaType: MediaVideo})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestExistingExternalIDsReflectsSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@snapshot")

	_, err := s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "v1", MediaType: MediaVideo})
	require.NoError(t, err)
	_, err = s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "v2", MediaType: MediaShort})
	require.NoError(t, err)

	ids, err := s.ExistingExternalIDs(ctx, l.ID)
	require.NoError(t, err)
	assert.True(t, ids["v1"])
	assert.True(t, ids["v2"])
	assert.False(t, ids["v3"])
}

func TestMarkDownloadedMergesLabels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@labels")

	v, err := s.CreateVideo(ctx, &Video{
		ListID: l.ID, ExternalVideoID: "v1", MediaType: MediaVideo,
		Labels: map[string]string{"resolution": "1080p"},
	})
	require.NoError(t, err)

	require.NoError(t, s.MarkDownloaded(ctx, v.ID, "/data/v1.mkv", map[string]string{"codec": "av1"}))

	reloaded, err := s.GetVideo(ctx, v.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.Downloaded)
	assert.Equal(t, "/data/v1.mkv", reloaded.DownloadPath)
	assert.Equal(t, "1080p", reloaded.Labels["resolution"])
	assert.Equal(t, "av1", reloaded.Labels["codec"])
}

func TestPendingDownloadsRespectsAutoDownloadAndBlacklist(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@pending")

	candidate, err := s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "v1", MediaType: MediaVideo})
	require.NoError(t, err)

	blacklisted, err := s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "v2", MediaType: MediaVideo, Blacklisted: true})
	require.NoError(t, err)
	_ = blacklisted

	alreadyDownloaded, err := s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "v3", MediaType: MediaVideo, Downloaded: true})
	require.NoError(t, err)
	_ = alreadyDownloaded

	pending, err := s.PendingDownloads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, candidate.ID, pending[0].ID)
}

func TestPendingDownloadsKeepsVideoAfterOneFailedAttempt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@errors")

	v, err := s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "v1", MediaType: MediaVideo})
	require.NoError(t, err)
	require.NoError(t, s.MarkDownloadFailed(ctx, v.ID, "network error"))

	pending, err := s.PendingDownloads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1, "a single failed attempt still has retry_count > 0 and remains eligible")
	assert.Equal(t, v.ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
}
