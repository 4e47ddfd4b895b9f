// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package schedule implements the ScheduleGate described in §4.4: a
// day/time-window check deciding whether an automatic download may run
// right now.
package schedule

import (
	"context"
	"time"

	"github.com/reelwatch/reelwatch/internal/store"
)

// Gate decides whether automatic downloads are currently permitted.
type Gate struct {
	store *store.Store
	now   func() time.Time
}

// New returns a Gate backed by s, evaluated against the wall clock.
func New(s *store.Store) *Gate {
	return &Gate{store: s, now: time.Now}
}

// IsDownloadAllowed reports whether an automatically-scheduled download may
// run at the current local time. With no enabled DownloadSchedule rows,
// downloads are always allowed. Manual downloads bypass this check
// entirely — callers invoke it only from the Scheduler's automatic path,
// never from a user-initiated enqueue.
func (g *Gate) IsDownloadAllowed(ctx context.Context) (bool, error) {
	schedules, err := g.store.EnabledSchedules(ctx)
	if err != nil {
		return false, err
	}
	if len(schedules) == 0 {
		return true, nil
	}

	now := g.now().Local()
	weekday := now.Weekday()
	clock := now.Hour()*60 + now.Minute()

	for _, sch := range schedules {
		if !containsWeekday(sch.DaysOfWeek, weekday) {
			continue
		}
		start, ok1 := parseClock(sch.StartTime)
		end, ok2 := parseClock(sch.EndTime)
		if !ok1 || !ok2 {
			continue
		}
		if inWindow(clock, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, w := range days {
		if w == d {
			return true
		}
	}
	return false
}

// inWindow reports whether clock (minutes since local midnight) falls
// within [start, end]. When start > end the window wraps past midnight:
// [start, 24:00) ∪ [00:00, end].
func inWindow(clock, start, end int) bool {
	if start <= end {
		return clock >= start && clock <= end
	}
	return clock >= start || clock <= end
}

func parseClock(hhmm string) (int, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
