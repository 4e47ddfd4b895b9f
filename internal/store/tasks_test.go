// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reelwatch.db")
	s, err := Open(path, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEnqueueDedup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.EnqueueTask(ctx, TaskSync, 42, DefaultMaxRetries)
	require.NoError(t, err)
	require.NotNil(t, task)

	again, err := s.EnqueueTask(ctx, TaskSync, 42, DefaultMaxRetries)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestEnqueueAfterCancelYieldsFreshTask(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.EnqueueTask(ctx, TaskSync, 7, DefaultMaxRetries)
	require.NoError(t, err)
	require.NoError(t, s.CancelTask(ctx, task.ID))

	fresh, err := s.EnqueueTask(ctx, TaskSync, 7, DefaultMaxRetries)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.NotEqual(t, task.ID, fresh.ID)
}

func TestRetryResetsCountersAndStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.EnqueueTask(ctx, TaskDownload, 3, DefaultMaxRetries)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, task.ID, "boom"))

	require.NoError(t, s.RetryTask(ctx, task.ID))

	reloaded, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, reloaded.Status)
	assert.Equal(t, 0, reloaded.RetryCount)
	assert.Empty(t, reloaded.Error)
}

// TestDedupUnderContention fires 10 parallel enqueues for the same
// (type, entity_id) and expects exactly one row to survive.
func TestDedupUnderContention(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := s.EnqueueTask(ctx, TaskSync, 42, DefaultMaxRetries)
			if err != nil {
				return
			}
			if task != nil {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)

	counts, err := s.CountByStatus(ctx, TaskSync)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[TaskPending])
}

// TestCrashRecovery seeds a stale running task (as if the prior process
// died mid-execution) and verifies ResetStaleRunning reclaims it.
func TestCrashRecovery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.EnqueueTask(ctx, TaskSync, 99, DefaultMaxRetries)
	require.NoError(t, err)

	staleStart := time.Now().Add(-1 * time.Hour)
	_, err = s.DB.ExecContext(ctx, `UPDATE tasks SET status = 'running', started_at = ? WHERE id = ?`, formatTime(staleStart), task.ID)
	require.NoError(t, err)

	n, err := s.ResetStaleRunning(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reloaded, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, reloaded.Status)
	assert.Nil(t, reloaded.StartedAt)

	leased, err := s.LeasePending(ctx, TaskSync, 10)
	require.NoError(t, err)
	require.Len(t, leased, 1)
	assert.Equal(t, TaskRunning, leased[0].Status)
	assert.NotNil(t, leased[0].StartedAt)
}

func TestRetryLadderAttemptsAndLogs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.EnqueueTask(ctx, TaskDownload, 5, 3)
	require.NoError(t, err)

	levels := []TaskLogLevel{LogInfo, LogWarning, LogWarning, LogError}
	for attempt := 1; attempt <= 4; attempt++ {
		leased, err := s.LeasePending(ctx, TaskDownload, 1)
		require.NoError(t, err)
		require.Len(t, leased, 1)

		require.NoError(t, s.AppendTaskLog(ctx, task.ID, attempt, levels[attempt-1], "attempt"))

		if attempt < 4 {
			require.NoError(t, s.RequeueForRetry(ctx, task.ID, "boom"))
		} else {
			require.NoError(t, s.MarkFailed(ctx, task.ID, "boom"))
		}
	}

	reloaded, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskFailed, reloaded.Status)
	assert.Equal(t, 3, reloaded.RetryCount)

	logs, err := s.TaskLogs(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, logs, 4)
	for i, l := range logs {
		assert.Equal(t, levels[i], l.Level)
		assert.Equal(t, i+1, l.Attempt)
	}
}

func TestBulkInsertTasksHandlesManyIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	ids := make([]int64, 600)
	for i := range ids {
		ids[i] = int64(i + 1)
	}

	result, err := s.BulkInsertTasks(ctx, TaskDownload, ids, DefaultMaxRetries)
	require.NoError(t, err)
	assert.Equal(t, 600, result.Queued+result.Skipped)
	assert.Equal(t, 600, result.Queued)

	again, err := s.BulkInsertTasks(ctx, TaskDownload, ids, DefaultMaxRetries)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Queued)
	assert.Equal(t, 600, again.Skipped)
}

func TestPruneTerminalKeepsPendingAndRunning(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	oldCompleted, err := s.EnqueueTask(ctx, TaskSync, 1, DefaultMaxRetries)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, oldCompleted.ID, "ok"))
	_, err = s.DB.ExecContext(ctx, `UPDATE tasks SET completed_at = ? WHERE id = ?`, formatTime(time.Now().Add(-48*time.Hour)), oldCompleted.ID)
	require.NoError(t, err)

	pending, err := s.EnqueueTask(ctx, TaskSync, 2, DefaultMaxRetries)
	require.NoError(t, err)

	n, err := s.PruneTerminal(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetTask(ctx, oldCompleted.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	stillThere, err := s.GetTask(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskPending, stillThere.Status)
}

func TestCancelRunningTaskIsRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	task, err := s.EnqueueTask(ctx, TaskSync, 1, DefaultMaxRetries)
	require.NoError(t, err)

	leased, err := s.LeasePending(ctx, TaskSync, 1)
	require.NoError(t, err)
	require.Len(t, leased, 1)

	err = s.CancelTask(ctx, task.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTasksRunningSinceFindsOnlyStaleRunningRows(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	stuck, err := s.EnqueueTask(ctx, TaskSync, 1, DefaultMaxRetries)
	require.NoError(t, err)
	_, err = s.DB.ExecContext(ctx, `UPDATE tasks SET status = 'running', started_at = ? WHERE id = ?`,
		formatTime(time.Now().Add(-2*time.Hour)), stuck.ID)
	require.NoError(t, err)

	fresh, err := s.EnqueueTask(ctx, TaskSync, 2, DefaultMaxRetries)
	require.NoError(t, err)
	_, err = s.DB.ExecContext(ctx, `UPDATE tasks SET status = 'running', started_at = ? WHERE id = ?`,
		formatTime(time.Now()), fresh.ID)
	require.NoError(t, err)

	_, err = s.EnqueueTask(ctx, TaskSync, 3, DefaultMaxRetries)
	require.NoError(t, err)

	running, err := s.TasksRunningSince(ctx, time.Now().Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, stuck.ID, running[0].ID)
}
