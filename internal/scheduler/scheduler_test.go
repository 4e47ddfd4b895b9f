// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scheduler

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/reelwatch/reelwatch/internal/eventhub"
	"github.com/reelwatch/reelwatch/internal/queue"
	"github.com/reelwatch/reelwatch/internal/schedule"
	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "reelwatch.db"), false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	hub := eventhub.New()
	q := queue.New(s, hub, nil, queue.Config{PollInterval: time.Hour})
	gate := schedule.New(s)
	return New(s, q, gate), s
}

func TestRunSyncDueListsEnqueuesStaleLists(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()

	profile, err := s.CreateProfile(ctx, &store.Profile{Name: "default"})
	require.NoError(t, err)
	list, err := s.CreateList(ctx, &store.List{
		URL: "https://example.com/@c", ListType: store.ListTypeChannel,
		ProfileID: profile.ID, SyncCadence: store.CadenceHourly, Enabled: true,
	})
	require.NoError(t, err)

	sched.runSyncDueLists(ctx)

	task, err := s.FindActiveTask(ctx, store.TaskSync, list.ID)
	require.NoError(t, err)
	require.NotNil(t, task)
}

func TestRunSyncDueListsSkipsRecentlySyncedLists(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()

	profile, err := s.CreateProfile(ctx, &store.Profile{Name: "default"})
	require.NoError(t, err)
	list, err := s.CreateList(ctx, &store.List{
		URL: "https://example.com/@c", ListType: store.ListTypeChannel,
		ProfileID: profile.ID, SyncCadence: store.CadenceDaily, Enabled: true,
	})
	require.NoError(t, err)
	require.NoError(t, s.TouchLastSynced(ctx, list.ID))

	sched.runSyncDueLists(ctx)

	task, err := s.FindActiveTask(ctx, store.TaskSync, list.ID)
	require.NoError(t, err)
	assert.Nil(t, task)
}

func TestRunEnqueuePendingDownloadsSkipsWhenGateIsClosed(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()

	profile, err := s.CreateProfile(ctx, &store.Profile{Name: "default"})
	require.NoError(t, err)
	list, err := s.CreateList(ctx, &store.List{
		URL: "https://example.com/@c", ListType: store.ListTypeChannel,
		ProfileID: profile.ID, SyncCadence: store.CadenceDaily, Enabled: true, AutoDownload: true,
	})
	require.NoError(t, err)
	video, err := s.CreateVideo(ctx, &store.Video{ListID: list.ID, ExternalVideoID: "v1", Title: "t", MediaType: store.MediaVideo})
	require.NoError(t, err)

	// An enabled schedule naming every weekday except the one we're never
	// on (there isn't one) would always be open, so instead construct a
	// window that is guaranteed closed: a single permitted minute, almost
	// certainly not "now".
	closedWindow := closedMinuteWindow()
	_, err = s.CreateSchedule(ctx, &store.DownloadSchedule{
		Name: "rare", Enabled: true, DaysOfWeek: []time.Weekday{closedWindow.weekday},
		StartTime: closedWindow.start, EndTime: closedWindow.end,
	})
	require.NoError(t, err)

	sched.runEnqueuePendingDownloads(ctx)

	task, err := s.FindActiveTask(ctx, store.TaskDownload, video.ID)
	require.NoError(t, err)
	assert.Nil(t, task, "a closed schedule window must prevent automatic download enqueue")
}

type window struct {
	weekday     time.Weekday
	start, end  string
}

// closedMinuteWindow picks a weekday other than today's and a narrow
// window, so schedule.Gate reports the download window closed regardless
// of when the test runs.
func closedMinuteWindow() window {
	other := (time.Now().Weekday() + 1) % 7
	return window{weekday: other, start: "00:00", end: "00:01"}
}

func TestRunEnqueuePendingDownloadsWithNoSchedulesAlwaysRuns(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()

	profile, err := s.CreateProfile(ctx, &store.Profile{Name: "default"})
	require.NoError(t, err)
	list, err := s.CreateList(ctx, &store.List{
		URL: "https://example.com/@c", ListType: store.ListTypeChannel,
		ProfileID: profile.ID, SyncCadence: store.CadenceDaily, Enabled: true, AutoDownload: true,
	})
	require.NoError(t, err)
	video, err := s.CreateVideo(ctx, &store.Video{ListID: list.ID, ExternalVideoID: "v1", Title: "t", MediaType: store.MediaVideo})
	require.NoError(t, err)

	sched.runEnqueuePendingDownloads(ctx)

	task, err := s.FindActiveTask(ctx, store.TaskDownload, video.ID)
	require.NoError(t, err)
	require.NotNil(t, task)
}

func TestRunPruneRetainedNoopWithoutRetentionSetting(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()

	profile, err := s.CreateProfile(ctx, &store.Profile{Name: "default"})
	require.NoError(t, err)
	list, err := s.CreateList(ctx, &store.List{
		URL: "https://example.com/@c", ListType: store.ListTypeChannel,
		ProfileID: profile.ID, SyncCadence: store.CadenceDaily, Enabled: true,
	})
	require.NoError(t, err)
	require.NoError(t, s.AppendHistory(ctx, list.ID, "note", "old entry"))

	sched.runPruneRetained(ctx)

	entries, err := s.HistoryByList(ctx, list.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRunPruneRetainedKeepsRecentTasksWhenConfigured(t *testing.T) {
	sched, s := newTestScheduler(t)
	ctx := context.Background()
	require.NoError(t, s.SetSetting(ctx, store.SettingDataRetentionDays, strconv.Itoa(1)))

	profile, err := s.CreateProfile(ctx, &store.Profile{Name: "default"})
	require.NoError(t, err)
	list, err := s.CreateList(ctx, &store.List{
		URL: "https://example.com/@c", ListType: store.ListTypeChannel,
		ProfileID: profile.ID, SyncCadence: store.CadenceDaily, Enabled: true,
	})
	require.NoError(t, err)

	task, err := s.EnqueueTask(ctx, store.TaskSync, list.ID, 3)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, task.ID, "ok"))

	sched.runPruneRetained(ctx)

	remaining, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err, "a task completed moments ago is within the retention window and must survive this run")
	assert.Equal(t, store.TaskCompleted, remaining.Status)
}
