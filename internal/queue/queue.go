// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package queue is the TaskQueue: two bounded worker pools, a single
// dispatcher loop, and the public enqueue/pause/resume/cancel/retry
// contract described in §4.3.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/reelwatch/reelwatch/internal/eventhub"
	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/reelwatch/reelwatch/internal/metrics"
	"github.com/reelwatch/reelwatch/internal/schedule"
	"github.com/reelwatch/reelwatch/internal/store"
)

// Handler executes one task for entityID and returns a short, loggable
// result string on success.
type Handler func(ctx context.Context, entityID int64) (string, error)

// Scope selects which pools a pause/resume call targets.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeSync     Scope = "sync"
	ScopeDownload Scope = "download"
)

// Config configures pool sizes and poll cadence.
type Config struct {
	MaxSyncWorkers     int
	MaxDownloadWorkers int
	PollInterval       time.Duration
}

// Stats is the snapshot returned by GetStats.
type Stats struct {
	RunningSync      int
	RunningDownload  int
	MaxSync          int
	MaxDownload      int
	Paused           bool
	SyncPaused       bool
	DownloadPaused   bool
}

// Queue is the TaskQueue.
type Queue struct {
	store *store.Store
	hub   *eventhub.Hub
	gate  *schedule.Gate

	// id identifies this dispatcher instance in logs and TaskLog rows, so
	// operators running more than one daemon process against the same
	// database can tell which one leased and ran a given attempt.
	id uuid.UUID

	maxWorkers   map[store.TaskType]int
	pollInterval time.Duration

	mu      sync.Mutex
	running map[store.TaskType]int
	handler map[store.TaskType]Handler

	wake chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Queue. Register handlers with RegisterHandler before
// calling Run.
func New(s *store.Store, hub *eventhub.Hub, gate *schedule.Gate, cfg Config) *Queue {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.MaxSyncWorkers <= 0 {
		cfg.MaxSyncWorkers = 2
	}
	if cfg.MaxDownloadWorkers <= 0 {
		cfg.MaxDownloadWorkers = 2
	}
	return &Queue{
		store: s,
		hub:   hub,
		gate:  gate,
		id:    uuid.New(),
		maxWorkers: map[store.TaskType]int{
			store.TaskSync:     cfg.MaxSyncWorkers,
			store.TaskDownload: cfg.MaxDownloadWorkers,
		},
		pollInterval: cfg.PollInterval,
		running:      make(map[store.TaskType]int),
		handler:      make(map[store.TaskType]Handler),
		wake:         make(chan struct{}, 1),
	}
}

// ID returns the dispatcher instance identity, for operators distinguishing
// between multiple daemon processes sharing one database.
func (q *Queue) ID() uuid.UUID {
	return q.id
}

// RegisterHandler binds the executor invoked for every leased task of taskType.
func (q *Queue) RegisterHandler(taskType store.TaskType, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler[taskType] = h
}

// Notify wakes the dispatcher immediately rather than waiting for the next
// poll tick.
func (q *Queue) Notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Enqueue inserts a pending task for (taskType, entityID) unless one is
// already active, and wakes the dispatcher. Returns (nil, nil) on dedup.
func (q *Queue) Enqueue(ctx context.Context, taskType store.TaskType, entityID int64, maxRetries int) (*store.Task, error) {
	task, err := q.store.EnqueueTask(ctx, taskType, entityID, maxRetries)
	if err != nil {
		return nil, err
	}
	if task != nil {
		q.Notify()
	}
	return task, nil
}

// EnqueueBulk inserts pending tasks for every entityID not already active.
func (q *Queue) EnqueueBulk(ctx context.Context, taskType store.TaskType, entityIDs []int64, maxRetries int) (store.BulkEnqueueResult, error) {
	result, err := q.store.BulkInsertTasks(ctx, taskType, entityIDs, maxRetries)
	if err != nil {
		return store.BulkEnqueueResult{}, err
	}
	if result.Queued > 0 {
		q.Notify()
	}
	return result, nil
}

// Pause toggles the persisted pause flag for scope. It does not preempt
// tasks already running.
func (q *Queue) Pause(ctx context.Context, scope Scope) error {
	return q.setPaused(ctx, scope, true)
}

// Resume clears the persisted pause flag for scope and wakes the dispatcher.
func (q *Queue) Resume(ctx context.Context, scope Scope) error {
	if err := q.setPaused(ctx, scope, false); err != nil {
		return err
	}
	q.Notify()
	return nil
}

func (q *Queue) setPaused(ctx context.Context, scope Scope, paused bool) error {
	switch scope {
	case ScopeAll:
		return q.store.SetSettingBool(ctx, store.SettingWorkerPaused, paused)
	case ScopeSync:
		return q.store.SetSettingBool(ctx, store.SettingSyncPaused, paused)
	case ScopeDownload:
		return q.store.SetSettingBool(ctx, store.SettingDownloadPaused, paused)
	default:
		return fmt.Errorf("queue: unknown scope %q", scope)
	}
}

// Cancel transitions a pending or paused task to cancelled.
func (q *Queue) Cancel(ctx context.Context, taskID int64) error {
	return q.store.CancelTask(ctx, taskID)
}

// Retry resets a terminal task back to pending and wakes the dispatcher.
func (q *Queue) Retry(ctx context.Context, taskID int64) error {
	if err := q.store.RetryTask(ctx, taskID); err != nil {
		return err
	}
	q.Notify()
	return nil
}

// GetStats returns the current pool occupancy and pause flags.
func (q *Queue) GetStats(ctx context.Context) (Stats, error) {
	allPaused, err := q.store.GetSettingBool(ctx, store.SettingWorkerPaused)
	if err != nil {
		return Stats{}, err
	}
	syncPaused, err := q.store.GetSettingBool(ctx, store.SettingSyncPaused)
	if err != nil {
		return Stats{}, err
	}
	downloadPaused, err := q.store.GetSettingBool(ctx, store.SettingDownloadPaused)
	if err != nil {
		return Stats{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		RunningSync:     q.running[store.TaskSync],
		RunningDownload: q.running[store.TaskDownload],
		MaxSync:         q.maxWorkers[store.TaskSync],
		MaxDownload:     q.maxWorkers[store.TaskDownload],
		Paused:          allPaused,
		SyncPaused:      syncPaused,
		DownloadPaused:  downloadPaused,
	}, nil
}

// Run drives the dispatcher loop until ctx is cancelled, then waits for
// in-flight executions to finish.
func (q *Queue) Run(ctx context.Context) {
	logger := log.WithComponent("queue").With().Str("dispatcher_id", q.id.String()).Logger()
	logger.Info().Msg("dispatcher starting")

	if n, err := q.store.ResetStaleRunning(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to reset stale running tasks at startup")
	} else if n > 0 {
		logger.Info().Int("count", n).Msg("reclaimed stale running tasks from a prior process")
	}

	timer := time.NewTimer(q.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			q.wg.Wait()
			return
		case <-q.wake:
			q.dispatchTick(ctx)
		case <-timer.C:
			q.dispatchTick(ctx)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(q.pollInterval)
	}
}

func (q *Queue) dispatchTick(ctx context.Context) {
	logger := log.WithComponent("queue")

	allPaused, err := q.store.GetSettingBool(ctx, store.SettingWorkerPaused)
	if err != nil {
		logger.Error().Err(err).Msg("failed to read worker_paused setting")
		return
	}
	if allPaused {
		return
	}

	for _, taskType := range []store.TaskType{store.TaskSync, store.TaskDownload} {
		q.dispatchType(ctx, taskType)
	}
}

func (q *Queue) dispatchType(ctx context.Context, taskType store.TaskType) {
	logger := log.WithComponent("queue")

	pauseKey := store.SettingSyncPaused
	if taskType == store.TaskDownload {
		pauseKey = store.SettingDownloadPaused
	}
	typePaused, err := q.store.GetSettingBool(ctx, pauseKey)
	if err != nil {
		logger.Error().Err(err).Str("task_type", string(taskType)).Msg("failed to read pause setting")
		return
	}
	if typePaused {
		return
	}

	q.mu.Lock()
	available := q.maxWorkers[taskType] - q.running[taskType]
	q.mu.Unlock()
	if available <= 0 {
		return
	}

	if taskType == store.TaskDownload && q.gate != nil {
		allowed, err := q.gate.IsDownloadAllowed(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("schedule gate check failed")
			return
		}
		if !allowed {
			return
		}
	}

	tasks, err := q.store.LeasePending(ctx, taskType, available)
	if err != nil {
		logger.Error().Err(err).Str("task_type", string(taskType)).Msg("lease_pending failed")
		return
	}

	for _, task := range tasks {
		q.mu.Lock()
		q.running[taskType]++
		q.mu.Unlock()
		metrics.QueueRunningTasks.WithLabelValues(string(taskType)).Set(float64(q.snapshotRunning(taskType)))

		q.publishTaskTopics(ctx, task)

		q.wg.Add(1)
		go func(t *store.Task) {
			defer q.wg.Done()
			q.execute(ctx, t, taskType)
		}(task)
	}
}

func (q *Queue) snapshotRunning(taskType store.TaskType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running[taskType]
}

func (q *Queue) execute(ctx context.Context, task *store.Task, taskType store.TaskType) {
	logger := log.WithComponent("queue")
	defer func() {
		q.mu.Lock()
		q.running[taskType]--
		q.mu.Unlock()
		metrics.QueueRunningTasks.WithLabelValues(string(taskType)).Set(float64(q.snapshotRunning(taskType)))
		q.Notify()
	}()

	q.mu.Lock()
	handler, ok := q.handler[taskType]
	q.mu.Unlock()
	if !ok {
		if err := q.store.MarkFailed(ctx, task.ID, fmt.Sprintf("no handler registered for task type %q", taskType)); err != nil {
			logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark task failed")
		}
		metrics.QueueTaskOutcomesTotal.WithLabelValues(string(taskType), "failed").Inc()
		q.publishTaskTopics(ctx, task)
		return
	}

	attempt := task.RetryCount + 1
	if err := q.store.AppendTaskLog(ctx, task.ID, attempt, store.LogInfo, fmt.Sprintf("starting attempt %d (dispatcher %s)", attempt, q.id)); err != nil {
		logger.Warn().Err(err).Int64("task_id", task.ID).Msg("failed to append task log")
	}

	result, err := handler(ctx, task.EntityID)
	if err == nil {
		if dbErr := q.store.MarkCompleted(ctx, task.ID, result); dbErr != nil {
			logger.Error().Err(dbErr).Int64("task_id", task.ID).Msg("failed to mark task completed")
		}
		_ = q.store.AppendTaskLog(ctx, task.ID, attempt, store.LogInfo, "completed")
		metrics.QueueTaskOutcomesTotal.WithLabelValues(string(taskType), "completed").Inc()
		q.publishTaskTopics(ctx, task)
		return
	}

	if task.RetryCount < task.MaxRetries {
		if dbErr := q.store.RequeueForRetry(ctx, task.ID, err.Error()); dbErr != nil {
			logger.Error().Err(dbErr).Int64("task_id", task.ID).Msg("failed to requeue task for retry")
		}
		_ = q.store.AppendTaskLog(ctx, task.ID, attempt, store.LogWarning, fmt.Sprintf("will retry: %s", err.Error()))
		metrics.QueueTaskOutcomesTotal.WithLabelValues(string(taskType), "retried").Inc()
	} else {
		if dbErr := q.store.MarkFailed(ctx, task.ID, err.Error()); dbErr != nil {
			logger.Error().Err(dbErr).Int64("task_id", task.ID).Msg("failed to mark task failed")
		}
		_ = q.store.AppendTaskLog(ctx, task.ID, attempt, store.LogError, fmt.Sprintf("failed permanently: %s", err.Error()))
		metrics.QueueTaskOutcomesTotal.WithLabelValues(string(taskType), "failed").Inc()
	}
	q.publishTaskTopics(ctx, task)
}

// publishTaskTopics fans out the `tasks` topic and, when the entity's list
// can be resolved, the per-list `list:<id>:tasks` topic.
func (q *Queue) publishTaskTopics(ctx context.Context, task *store.Task) {
	q.hub.Publish(eventhub.TopicTasks, task.ID)

	listID, ok := q.resolveListID(ctx, task)
	if ok {
		q.hub.Publish(eventhub.ListTasksTopic(listID), task.ID)
	}
	q.hub.Publish(eventhub.TopicTaskStats, task.TaskType)
}

func (q *Queue) resolveListID(ctx context.Context, task *store.Task) (int64, bool) {
	switch task.TaskType {
	case store.TaskSync:
		return task.EntityID, true
	case store.TaskDownload:
		video, err := q.store.GetVideo(ctx, task.EntityID)
		if err != nil {
			return 0, false
		}
		return video.ListID, true
	default:
		return 0, false
	}
}
