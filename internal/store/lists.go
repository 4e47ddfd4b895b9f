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

// CreateList inserts a new List. Returns ErrConflict on a duplicate URL.
func (s *Store) CreateList(ctx context.Context, l *List) (*List, error) {
	now := formatTime(time.Now())
	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO video_lists (url, name, list_type, profile_id, from_date, sync_cadence, enabled,
			auto_download, title_blacklist, min_duration, max_duration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.URL, l.Name, l.ListType, l.ProfileID, l.FromDate, l.SyncCadence, l.Enabled, l.AutoDownload,
		l.TitleBlacklist, l.MinDuration, l.MaxDuration, now, now)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store: create list: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetList(ctx, id)
}

// GetList loads a List by ID.
func (s *Store) GetList(ctx context.Context, id int64) (*List, error) {
	row := s.DB.QueryRowContext(ctx, listSelectColumns+` FROM video_lists WHERE id = ?`, id)
	return scanList(row)
}

const listSelectColumns = `
	SELECT id, url, name, list_type, profile_id, from_date, sync_cadence, enabled, auto_download,
		title_blacklist, min_duration, max_duration, last_synced, deleting, created_at, updated_at
`

// UpdateList persists changes to an existing List.
func (s *Store) UpdateList(ctx context.Context, l *List) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE video_lists SET name = ?, profile_id = ?, from_date = ?, sync_cadence = ?, enabled = ?,
			auto_download = ?, title_blacklist = ?, min_duration = ?, max_duration = ?, updated_at = ?
		WHERE id = ?
	`, l.Name, l.ProfileID, l.FromDate, l.SyncCadence, l.Enabled, l.AutoDownload, l.TitleBlacklist,
		l.MinDuration, l.MaxDuration, formatTime(time.Now()), l.ID)
	if err != nil {
		return fmt.Errorf("store: update list: %w", err)
	}
	return checkAffected(res, ErrNotFound)
}

// MarkListDeleting sets the soft-delete marker that blocks re-enqueue
// during cascading removal.
func (s *Store) MarkListDeleting(ctx context.Context, id int64) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE video_lists SET deleting = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrNotFound)
}

// DeleteList removes a List and its Videos (cascade).
func (s *Store) DeleteList(ctx context.Context, id int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE list_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM video_lists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if err := checkAffected(res, ErrNotFound); err != nil {
		return err
	}
	return tx.Commit()
}

// TouchLastSynced sets last_synced = now.
func (s *Store) TouchLastSynced(ctx context.Context, id int64) error {
	now := formatTime(time.Now())
	_, err := s.DB.ExecContext(ctx, `UPDATE video_lists SET last_synced = ?, updated_at = ? WHERE id = ?`, now, now, id)
	return err
}

// ListAllLists returns every List ordered by ID.
func (s *Store) ListAllLists(ctx context.Context) ([]*List, error) {
	rows, err := s.DB.QueryContext(ctx, listSelectColumns+` FROM video_lists ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*List
	for rows.Next() {
		l, err := scanListRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// EnabledLists returns every enabled, non-deleting List — the candidate
// set for the Scheduler's sync_due_lists job.
func (s *Store) EnabledLists(ctx context.Context) ([]*List, error) {
	rows, err := s.DB.QueryContext(ctx, listSelectColumns+` FROM video_lists WHERE enabled = 1 AND deleting = 0 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*List
	for rows.Next() {
		l, err := scanListRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanList(row *sql.Row) (*List, error) {
	l, err := scanListRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

func scanListRow(row rowScanner) (*List, error) {
	var l List
	var lastSynced sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&l.ID, &l.URL, &l.Name, &l.ListType, &l.ProfileID, &l.FromDate, &l.SyncCadence, &l.Enabled,
		&l.AutoDownload, &l.TitleBlacklist, &l.MinDuration, &l.MaxDuration, &lastSynced, &l.Deleting, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	l.LastSynced = parseNullTime(lastSynced)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}
