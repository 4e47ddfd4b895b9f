// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package scheduler runs the three periodic background jobs described in
// §4.7: sync_due_lists, enqueue_pending_downloads, and prune_retained.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/reelwatch/reelwatch/internal/queue"
	"github.com/reelwatch/reelwatch/internal/schedule"
	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var errInvalidRetention = errors.New("scheduler: invalid retention value")

// Clock abstracts time.NewTimer so tests can drive the loop without real
// sleeps.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer abstracts time.Timer.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

type realClock struct{}

func (realClock) Now() time.Time             { return time.Now() }
func (realClock) NewTimer(d time.Duration) Timer { return &realTimer{t: time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }

// Scheduler drives the three periodic jobs, each on its own interval.
type Scheduler struct {
	store *store.Store
	queue *queue.Queue
	gate  *schedule.Gate
	clock Clock
	logger zerolog.Logger

	SyncDueInterval       time.Duration
	EnqueueDownloadInterval time.Duration
	PruneInterval         time.Duration
	PendingDownloadBatch  int
}

// New returns a Scheduler with the default job intervals.
func New(s *store.Store, q *queue.Queue, gate *schedule.Gate) *Scheduler {
	return &Scheduler{
		store:                   s,
		queue:                   q,
		gate:                    gate,
		clock:                   realClock{},
		logger:                  log.WithComponent("scheduler"),
		SyncDueInterval:         30 * time.Minute,
		EnqueueDownloadInterval: 5 * time.Minute,
		PruneInterval:           24 * time.Hour,
		PendingDownloadBatch:    100,
	}
}

// Start runs all three job loops in background goroutines supervised by an
// errgroup, and returns immediately. The loops stop once ctx is cancelled;
// Start does not wait for that to happen.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		if err := s.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("scheduler stopped with an error")
		}
	}()
}

// Run drives all three job loops and blocks until ctx is cancelled and
// every loop has returned. It is the supervised entry point for a caller
// (e.g. cmd/daemon) that wants the scheduler's goroutines folded into its
// own top-level errgroup instead of fired-and-forgotten.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.loop(ctx, "sync_due_lists", s.SyncDueInterval, s.runSyncDueLists)
		return nil
	})
	g.Go(func() error {
		s.loop(ctx, "enqueue_pending_downloads", s.EnqueueDownloadInterval, s.runEnqueuePendingDownloads)
		return nil
	})
	g.Go(func() error {
		s.loop(ctx, "prune_retained", s.PruneInterval, s.runPruneRetained)
		return nil
	})
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, job func(context.Context)) {
	timer := s.clock.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C():
			job(ctx)
			timer.Reset(interval)
		}
	}
}

// runSyncDueLists enqueues a sync Task for every enabled List whose age
// since its last sync exceeds its cadence.
func (s *Scheduler) runSyncDueLists(ctx context.Context) {
	lists, err := s.store.EnabledLists(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("sync_due_lists: failed to load enabled lists")
		return
	}

	now := s.clock.Now()
	enqueued := 0
	for _, l := range lists {
		if l.LastSynced != nil && now.Sub(*l.LastSynced) < l.SyncCadence.Period() {
			continue
		}
		if _, err := s.queue.Enqueue(ctx, store.TaskSync, l.ID, store.DefaultMaxRetries); err != nil {
			s.logger.Warn().Err(err).Int64("list_id", l.ID).Msg("sync_due_lists: failed to enqueue")
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		s.logger.Info().Int("enqueued", enqueued).Msg("sync_due_lists: dispatched due lists")
	}
}

// runEnqueuePendingDownloads bulk-enqueues download Tasks for pending
// videos, unless ScheduleGate currently forbids automatic downloads.
func (s *Scheduler) runEnqueuePendingDownloads(ctx context.Context) {
	if s.gate != nil {
		allowed, err := s.gate.IsDownloadAllowed(ctx)
		if err != nil {
			s.logger.Error().Err(err).Msg("enqueue_pending_downloads: schedule gate check failed")
			return
		}
		if !allowed {
			s.logger.Debug().Str("reason", "schedule").Msg("enqueue_pending_downloads: outside download window")
			return
		}
	}

	videos, err := s.store.PendingDownloads(ctx, s.PendingDownloadBatch)
	if err != nil {
		s.logger.Error().Err(err).Msg("enqueue_pending_downloads: failed to load pending videos")
		return
	}
	if len(videos) == 0 {
		return
	}

	ids := make([]int64, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}

	result, err := s.queue.EnqueueBulk(ctx, store.TaskDownload, ids, store.DefaultMaxRetries)
	if err != nil {
		s.logger.Error().Err(err).Msg("enqueue_pending_downloads: bulk enqueue failed")
		return
	}
	s.logger.Info().Int("queued", result.Queued).Int("skipped", result.Skipped).Msg("enqueue_pending_downloads: dispatched pending videos")
}

// runPruneRetained deletes terminal Tasks and History rows past the
// configured retention window, when data_retention_days > 0.
func (s *Scheduler) runPruneRetained(ctx context.Context) {
	raw, ok, err := s.store.GetSetting(ctx, store.SettingDataRetentionDays)
	if err != nil {
		s.logger.Error().Err(err).Msg("prune_retained: failed to read retention setting")
		return
	}
	if !ok {
		return
	}
	days, err := parsePositiveInt(raw)
	if err != nil || days <= 0 {
		return
	}

	cutoff := s.clock.Now().Add(-time.Duration(days) * 24 * time.Hour)

	tasksPruned, err := s.store.PruneTerminal(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("prune_retained: failed to prune tasks")
	}
	historyPruned, err := s.store.PruneHistory(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Msg("prune_retained: failed to prune history")
	}
	if tasksPruned > 0 || historyPruned > 0 {
		s.logger.Info().Int("tasks_pruned", tasksPruned).Int("history_pruned", historyPruned).Msg("prune_retained: finished")
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errInvalidRetention
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
