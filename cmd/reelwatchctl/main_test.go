// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reelwatch.db")
	s, err := store.Open(path, false)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	dbPath = path
	return path
}

func TestPauseAndResumeReportScope(t *testing.T) {
	newTestDB(t)

	out := runCLI(t, "--db", dbPath, "pause", "--scope", "download")
	assert.Contains(t, out, "download paused")

	out = runCLI(t, "--db", dbPath, "stats")
	assert.Contains(t, out, "paused=true")

	out = runCLI(t, "--db", dbPath, "resume", "--scope", "download")
	assert.Contains(t, out, "download resumed")
}

func TestRetryAndCancelOperateOnRealTasks(t *testing.T) {
	path := newTestDB(t)
	s, err := store.Open(path, false)
	require.NoError(t, err)

	ctx := t.Context()
	task, err := s.EnqueueTask(ctx, store.TaskSync, 1, store.DefaultMaxRetries)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, task.ID, "boom"))
	require.NoError(t, s.Close())

	out := runCLI(t, "--db", dbPath, "retry", itoa(task.ID))
	assert.Contains(t, out, "reset to pending")

	out = runCLI(t, "--db", dbPath, "cancel", itoa(task.ID))
	assert.Contains(t, out, "cancelled")
}

func TestStuckListsOnlyTasksPastTheThreshold(t *testing.T) {
	path := newTestDB(t)
	s, err := store.Open(path, false)
	require.NoError(t, err)

	ctx := t.Context()
	task, err := s.EnqueueTask(ctx, store.TaskSync, 7, store.DefaultMaxRetries)
	require.NoError(t, err)
	_, err = s.DB.ExecContext(ctx, `UPDATE tasks SET status = 'running', started_at = datetime('now', '-2 hours') WHERE id = ?`, task.ID)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out := runCLI(t, "--db", dbPath, "stuck", "--since", "30m")
	assert.Contains(t, out, itoa(task.ID))
}

func itoa(id int64) string {
	return fmt.Sprintf("%d", id)
}
