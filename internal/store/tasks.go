// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FindActiveTask returns the task in {pending, running, paused} targeting
// (taskType, entityID), or (nil, nil) if none exists. It applies the same
// active-status filter as EnqueueTask's dedup check.
func (s *Store) FindActiveTask(ctx context.Context, taskType TaskType, entityID int64) (*Task, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, task_type, entity_id, status, result, error, retry_count, max_retries, created_at, started_at, completed_at
		FROM tasks
		WHERE task_type = ? AND entity_id = ? AND status IN ('pending', 'running', 'paused')
		LIMIT 1
	`, taskType, entityID)
	task, err := scanTask(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return task, err
}

// InsertTask inserts a new pending task, unchecked. The caller must already
// hold the dedup guarantee (see EnqueueTask for the checked variant).
func (s *Store) InsertTask(ctx context.Context, taskType TaskType, entityID int64, maxRetries int) (*Task, error) {
	return s.insertTaskTx(ctx, s.DB, taskType, entityID, maxRetries)
}

func (s *Store) insertTaskTx(ctx context.Context, q queryer, taskType TaskType, entityID int64, maxRetries int) (*Task, error) {
	now := formatTime(time.Now())
	res, err := q.ExecContext(ctx, `
		INSERT INTO tasks (task_type, entity_id, status, retry_count, max_retries, created_at)
		VALUES (?, ?, 'pending', 0, ?, ?)
	`, taskType, entityID, maxRetries, now)
	if err != nil {
		return nil, fmt.Errorf("store: insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: insert task: %w", err)
	}
	return &Task{
		ID:         id,
		TaskType:   taskType,
		EntityID:   entityID,
		Status:     TaskPending,
		MaxRetries: maxRetries,
		CreatedAt:  parseTime(now),
	}, nil
}

// EnqueueTask inserts a new pending task for (taskType, entityID) unless an
// active task already targets it, in which case it returns (nil, nil).
// Check-then-insert runs inside a single transaction so it is serialisable
// against concurrent callers targeting the same (taskType, entityID).
func (s *Store) EnqueueTask(ctx context.Context, taskType TaskType, entityID int64, maxRetries int) (*Task, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM tasks WHERE task_type = ? AND entity_id = ? AND status IN ('pending', 'running', 'paused') LIMIT 1
	`, taskType, entityID).Scan(&existing)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: enqueue dedup check: %w", err)
	}

	task, err := s.insertTaskTx(ctx, tx, taskType, entityID, maxRetries)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return task, nil
}

// BulkEnqueueResult reports how a bulk enqueue call was resolved.
type BulkEnqueueResult struct {
	Queued  int
	Skipped int
	Tasks   []*Task
}

// BulkInsertTasks enqueues a task for every entityID not already active,
// in a single atomic unit — a partial bulk insert never happens.
func (s *Store) BulkInsertTasks(ctx context.Context, taskType TaskType, entityIDs []int64, maxRetries int) (BulkEnqueueResult, error) {
	if len(entityIDs) == 0 {
		return BulkEnqueueResult{}, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return BulkEnqueueResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	result := BulkEnqueueResult{}
	for _, id := range entityIDs {
		var existing int64
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM tasks WHERE task_type = ? AND entity_id = ? AND status IN ('pending', 'running', 'paused') LIMIT 1
		`, taskType, id).Scan(&existing)
		if err == nil {
			result.Skipped++
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return BulkEnqueueResult{}, fmt.Errorf("store: bulk enqueue dedup check: %w", err)
		}

		task, err := s.insertTaskTx(ctx, tx, taskType, id, maxRetries)
		if err != nil {
			return BulkEnqueueResult{}, err
		}
		result.Queued++
		result.Tasks = append(result.Tasks, task)
	}

	if err := tx.Commit(); err != nil {
		return BulkEnqueueResult{}, err
	}
	return result, nil
}

// LeasePending selects up to limit pending tasks of taskType ordered by
// created_at ascending, atomically transitions them to running with
// started_at=now, and returns them. The surrounding transaction makes the
// select-then-update serialisable against concurrent dispatchers.
func (s *Store) LeasePending(ctx context.Context, taskType TaskType, limit int) ([]*Task, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM tasks WHERE task_type = ? AND status = 'pending' ORDER BY created_at ASC LIMIT ?
	`, taskType, limit)
	if err != nil {
		return nil, fmt.Errorf("store: lease_pending select: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := formatTime(time.Now())
	leased := make([]*Task, 0, len(ids))
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status = 'running', started_at = ? WHERE id = ? AND status = 'pending'
		`, now, id); err != nil {
			return nil, fmt.Errorf("store: lease_pending update: %w", err)
		}
		row := tx.QueryRowContext(ctx, `
			SELECT id, task_type, entity_id, status, result, error, retry_count, max_retries, created_at, started_at, completed_at
			FROM tasks WHERE id = ?
		`, id)
		task, err := scanTask(row)
		if err != nil {
			return nil, err
		}
		leased = append(leased, task)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return leased, nil
}

// MarkCompleted transitions a running task to completed.
func (s *Store) MarkCompleted(ctx context.Context, taskID int64, result string) error {
	now := formatTime(time.Now())
	_, err := s.DB.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', completed_at = ?, result = ?, error = '' WHERE id = ?
	`, now, result, taskID)
	return err
}

// MarkFailed transitions a task to failed (permanent failure, retries exhausted).
func (s *Store) MarkFailed(ctx context.Context, taskID int64, errMsg string) error {
	now := formatTime(time.Now())
	_, err := s.DB.ExecContext(ctx, `
		UPDATE tasks SET status = 'failed', completed_at = ?, error = ? WHERE id = ?
	`, now, errMsg, taskID)
	return err
}

// RequeueForRetry transitions a running task back to pending, incrementing
// retry_count and recording the error that triggered the retry.
func (s *Store) RequeueForRetry(ctx context.Context, taskID int64, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE tasks SET status = 'pending', started_at = NULL, error = ?, retry_count = retry_count + 1 WHERE id = ?
	`, errMsg, taskID)
	return err
}

// ResetStaleRunning flips every running task back to pending at process
// start: the only legitimate owner of a running row is the live dispatcher,
// so any survivor from a prior process is orphaned.
func (s *Store) ResetStaleRunning(ctx context.Context) (int, error) {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks SET status = 'pending', started_at = NULL WHERE status = 'running'
	`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Pause transitions a pending task to paused.
func (s *Store) Pause(ctx context.Context, taskID int64) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE tasks SET status = 'paused' WHERE id = ? AND status = 'pending'`, taskID)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrInvalidTransition)
}

// ResumeTask transitions a paused task back to pending.
func (s *Store) ResumeTask(ctx context.Context, taskID int64) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE tasks SET status = 'pending' WHERE id = ? AND status = 'paused'`, taskID)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrInvalidTransition)
}

// CancelTask transitions a pending or paused task to cancelled. Cancellation
// of a running task is deliberately unsupported (§5): the backend subprocess
// owns kernel-level file handles and forcibly terminating it would leave
// partial files and a corrupt Video row.
func (s *Store) CancelTask(ctx context.Context, taskID int64) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks SET status = 'cancelled' WHERE id = ? AND status IN ('pending', 'paused')
	`, taskID)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrInvalidTransition)
}

// RetryTask resets a terminal task back to pending with counters cleared.
func (s *Store) RetryTask(ctx context.Context, taskID int64) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE tasks
		SET status = 'pending', error = '', retry_count = 0, started_at = NULL, completed_at = NULL
		WHERE id = ? AND status IN ('failed', 'completed', 'cancelled')
	`, taskID)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrInvalidTransition)
}

// GetTask loads a single task by ID.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*Task, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, task_type, entity_id, status, result, error, retry_count, max_retries, created_at, started_at, completed_at
		FROM tasks WHERE id = ?
	`, taskID)
	return scanTask(row)
}

// CountByStatus returns how many tasks of taskType are in each status,
// keyed by status string.
func (s *Store) CountByStatus(ctx context.Context, taskType TaskType) (map[TaskStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM tasks WHERE task_type = ? GROUP BY status
	`, taskType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var status TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// AppendTaskLog appends an operational timeline entry for a task attempt.
func (s *Store) AppendTaskLog(ctx context.Context, taskID int64, attempt int, level TaskLogLevel, message string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO task_logs (task_id, attempt, level, message, created_at) VALUES (?, ?, ?, ?, ?)
	`, taskID, attempt, level, message, formatTime(time.Now()))
	return err
}

// TaskLogs returns a task's operational timeline ordered by creation time.
func (s *Store) TaskLogs(ctx context.Context, taskID int64) ([]*TaskLog, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, task_id, attempt, level, message, created_at FROM task_logs WHERE task_id = ? ORDER BY created_at ASC
	`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*TaskLog
	for rows.Next() {
		var l TaskLog
		var createdAt string
		if err := rows.Scan(&l.ID, &l.TaskID, &l.Attempt, &l.Level, &l.Message, &createdAt); err != nil {
			return nil, err
		}
		l.CreatedAt = parseTime(createdAt)
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// TasksRunningSince returns every task still in 'running' status whose
// started_at is older than cutoff, ordered oldest-first — the candidates an
// operator would call stuck, since a live dispatcher only holds a task in
// running for the duration of one attempt.
func (s *Store) TasksRunningSince(ctx context.Context, cutoff time.Time) ([]*Task, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, task_type, entity_id, status, result, error, retry_count, max_retries, created_at, started_at, completed_at
		FROM tasks WHERE status = 'running' AND started_at < ? ORDER BY started_at ASC
	`, formatTime(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// PruneTerminal deletes terminal-status tasks (and their logs) older than
// olderThan. Pending/running rows are never touched.
func (s *Store) PruneTerminal(ctx context.Context, olderThan time.Time) (int, error) {
	cutoff := formatTime(olderThan)

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM task_logs WHERE task_id IN (
			SELECT id FROM tasks WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < ?
		)
	`, cutoff); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM tasks WHERE status IN ('completed', 'failed', 'cancelled') AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return int(n), nil
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func checkAffected(res sql.Result, errIfZero error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errIfZero
	}
	return nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, so scanTask can
// decode a task from either a single QueryRowContext result or one row of
// a QueryContext result set.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var result, errMsg sql.NullString
	var createdAt string
	var startedAt, completedAt sql.NullString

	err := row.Scan(&t.ID, &t.TaskType, &t.EntityID, &t.Status, &result, &errMsg, &t.RetryCount, &t.MaxRetries, &createdAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Result = result.String
	t.Error = errMsg.String
	t.CreatedAt = parseTime(createdAt)
	t.StartedAt = parseNullTime(startedAt)
	t.CompletedAt = parseNullTime(completedAt)
	return &t, nil
}
