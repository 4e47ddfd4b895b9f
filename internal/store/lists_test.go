// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestList(t *testing.T, s *Store, url string) *List {
	t.Helper()
	ctx := context.Background()
	p := newTestProfile()
	p.Name = url
	profile, err := s.CreateProfile(ctx, p)
	require.NoError(t, err)

	l, err := s.CreateList(ctx, &List{
		URL: url, Name: "channel", ListType: ListTypeChannel,
		ProfileID: profile.ID, SyncCadence: CadenceDaily, Enabled: true, AutoDownload: true,
	})
	require.NoError(t, err)
	return l
}

func TestCreateListDuplicateURLConflicts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@a")

	_, err := s.CreateList(ctx, &List{
		URL: l.URL, ListType: ListTypeChannel, ProfileID: l.ProfileID, SyncCadence: CadenceDaily,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEnabledListsExcludesDeletingAndDisabled(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	active := createTestList(t, s, "https://example.com/@active")
	disabled := createTestList(t, s, "https://example.com/@disabled")
	disabled.Enabled = false
	require.NoError(t, s.UpdateList(ctx, disabled))

	deleting := createTestList(t, s, "https://example.com/@deleting")
	require.NoError(t, s.MarkListDeleting(ctx, deleting.ID))

	enabled, err := s.EnabledLists(ctx)
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, active.ID, enabled[0].ID)
}

func TestDeleteListCascadesVideos(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@cascade")

	_, err := s.CreateVideo(ctx, &Video{ListID: l.ID, ExternalVideoID: "vid1", MediaType: MediaVideo})
	require.NoError(t, err)

	require.NoError(t, s.DeleteList(ctx, l.ID))

	_, err = s.GetList(ctx, l.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	videos, err := s.VideosByList(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, videos)
}

func TestTouchLastSyncedSetsTimestamp(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	l := createTestList(t, s, "https://example.com/@touch")
	assert.Nil(t, l.LastSynced)

	require.NoError(t, s.TouchLastSynced(ctx, l.ID))

	reloaded, err := s.GetList(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastSynced)
}
