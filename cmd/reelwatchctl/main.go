// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command reelwatchctl is an operator CLI for a running reelwatch
// database: retry/cancel/pause/resume tasks and list ones that look stuck,
// without going through the daemon's own process.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/reelwatch/reelwatch/internal/eventhub"
	"github.com/reelwatch/reelwatch/internal/queue"
	"github.com/reelwatch/reelwatch/internal/schedule"
	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/spf13/cobra"
)

var dbPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reelwatchctl",
		Short: "Operate a reelwatch TaskQueue from the command line",
	}
	root.PersistentFlags().StringVar(&dbPath, "db", "reelwatch.db", "path to the reelwatch sqlite database")

	root.AddCommand(newRetryCmd(), newCancelCmd(), newPauseCmd(), newResumeCmd(), newStatsCmd(), newStuckCmd())
	return root
}

// openQueue opens the database at dbPath and wraps it in a Queue with no
// registered handlers: this CLI only issues control-plane calls (pause,
// cancel, retry, stats) that operate on the store directly, it never
// dispatches a task itself.
func openQueue() (*store.Store, *queue.Queue, error) {
	s, err := store.Open(dbPath, false)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", dbPath, err)
	}
	hub := eventhub.New()
	gate := schedule.New(s)
	q := queue.New(s, hub, gate, queue.Config{MaxSyncWorkers: 1, MaxDownloadWorkers: 1})
	return s, q, nil
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Reset a failed or cancelled task back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			s, q, err := openQueue()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := q.Retry(cmd.Context(), taskID); err != nil {
				return fmt.Errorf("retry task %d: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d reset to pending\n", taskID)
			return nil
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a pending or paused task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID, err := parseTaskID(args[0])
			if err != nil {
				return err
			}
			s, q, err := openQueue()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := q.Cancel(cmd.Context(), taskID); err != nil {
				return fmt.Errorf("cancel task %d: %w", taskID, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "task %d cancelled\n", taskID)
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause the sync pool, download pool, or both",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, q, err := openQueue()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := q.Pause(cmd.Context(), queue.Scope(scope)); err != nil {
				return fmt.Errorf("pause %s: %w", scope, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s paused\n", scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "all", "one of: all, sync, download")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var scope string
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume the sync pool, download pool, or both",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, q, err := openQueue()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := q.Resume(cmd.Context(), queue.Scope(scope)); err != nil {
				return fmt.Errorf("resume %s: %w", scope, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s resumed\n", scope)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "all", "one of: all, sync, download")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print current pool occupancy and pause flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, q, err := openQueue()
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := q.GetStats(cmd.Context())
			if err != nil {
				return fmt.Errorf("get stats: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sync:     %d/%d running (paused=%t)\n", stats.RunningSync, stats.MaxSync, stats.SyncPaused)
			fmt.Fprintf(cmd.OutOrStdout(), "download: %d/%d running (paused=%t)\n", stats.RunningDownload, stats.MaxDownload, stats.DownloadPaused)
			fmt.Fprintf(cmd.OutOrStdout(), "all paused: %t\n", stats.Paused)
			return nil
		},
	}
}

func newStuckCmd() *cobra.Command {
	var since time.Duration
	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List tasks that have been running longer than --since",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, _, err := openQueue()
			if err != nil {
				return err
			}
			defer s.Close()

			tasks, err := s.TasksRunningSince(cmd.Context(), time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("list stuck tasks: %w", err)
			}
			if len(tasks) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no tasks running longer than %s\n", since)
				return nil
			}
			for _, t := range tasks {
				started := "unknown"
				if t.StartedAt != nil {
					started = t.StartedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "task %d: %s entity=%d started=%s retry=%d/%d\n",
					t.ID, t.TaskType, t.EntityID, started, t.RetryCount, t.MaxRetries)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&since, "since", 30*time.Minute, "minimum running duration to be considered stuck")
	return cmd
}

func parseTaskID(raw string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	return id, nil
}
