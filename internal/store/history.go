// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"time"
)

// AppendHistory records an audit-log entry tied to listID.
func (s *Store) AppendHistory(ctx context.Context, listID int64, event, detail string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO history (list_id, event, detail, created_at) VALUES (?, ?, ?, ?)
	`, listID, event, detail, formatTime(time.Now()))
	return err
}

// HistoryByList returns a list's audit trail, most recent first.
func (s *Store) HistoryByList(ctx context.Context, listID int64, limit int) ([]*HistoryEntry, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, list_id, event, detail, created_at FROM history WHERE list_id = ? ORDER BY created_at DESC LIMIT ?
	`, listID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var createdAt string
		if err := rows.Scan(&h.ID, &h.ListID, &h.Event, &h.Detail, &createdAt); err != nil {
			return nil, err
		}
		h.CreatedAt = parseTime(createdAt)
		out = append(out, &h)
	}
	return out, rows.Err()
}

// PruneHistory deletes history rows older than olderThan.
func (s *Store) PruneHistory(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, formatTime(olderThan))
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
