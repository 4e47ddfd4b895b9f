// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"encoding/json"
	"time"
)

// EnabledSchedules returns every enabled DownloadSchedule, the candidate
// set ScheduleGate evaluates against the current local time.
func (s *Store) EnabledSchedules(ctx context.Context) ([]*DownloadSchedule, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, enabled, days_of_week, start_time, end_time FROM download_schedules WHERE enabled = 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DownloadSchedule
	for rows.Next() {
		var sch DownloadSchedule
		var days []byte
		if err := rows.Scan(&sch.ID, &sch.Name, &sch.Enabled, &days, &sch.StartTime, &sch.EndTime); err != nil {
			return nil, err
		}
		var weekdays []int
		_ = json.Unmarshal(days, &weekdays)
		for _, d := range weekdays {
			sch.DaysOfWeek = append(sch.DaysOfWeek, time.Weekday(d))
		}
		out = append(out, &sch)
	}
	return out, rows.Err()
}

// CreateSchedule inserts a new DownloadSchedule.
func (s *Store) CreateSchedule(ctx context.Context, sch *DownloadSchedule) (*DownloadSchedule, error) {
	days := make([]int, len(sch.DaysOfWeek))
	for i, d := range sch.DaysOfWeek {
		days[i] = int(d)
	}
	encoded, _ := json.Marshal(days)

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO download_schedules (name, enabled, days_of_week, start_time, end_time) VALUES (?, ?, ?, ?, ?)
	`, sch.Name, sch.Enabled, encoded, sch.StartTime, sch.EndTime)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	sch.ID = id
	return sch, nil
}
