// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const videoSelectColumns = `
	SELECT id, list_id, external_video_id, title, url, duration, upload_date, thumbnail, media_type,
		labels, downloaded, download_path, error_message, retry_count, blacklisted, created_at, updated_at
`

// CreateVideo inserts a new Video. Returns ErrConflict if (list_id, external_video_id) already exists.
func (s *Store) CreateVideo(ctx context.Context, v *Video) (*Video, error) {
	labels, _ := json.Marshal(v.Labels)
	now := formatTime(time.Now())

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO videos (list_id, external_video_id, title, url, duration, upload_date, thumbnail,
			media_type, labels, downloaded, download_path, error_message, retry_count, blacklisted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ListID, v.ExternalVideoID, v.Title, v.URL, v.Duration, v.UploadDate, v.Thumbnail, v.MediaType,
		labels, v.Downloaded, v.DownloadPath, v.ErrorMessage, v.RetryCount, v.Blacklisted, now, now)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store: create video: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetVideo(ctx, id)
}

// GetVideo loads a Video by ID.
func (s *Store) GetVideo(ctx context.Context, id int64) (*Video, error) {
	row := s.DB.QueryRowContext(ctx, videoSelectColumns+` FROM videos WHERE id = ?`, id)
	return scanVideo(row)
}

// ExistingExternalIDs snapshots the set of external_video_id already stored
// for a list, used by SyncHandler before invoking the extractor.
func (s *Store) ExistingExternalIDs(ctx context.Context, listID int64) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT external_video_id FROM videos WHERE list_id = ?`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// MarkDownloaded records a successful download outcome, merging labels into
// the Video's existing label map (existing keys preserved unless the backend
// supplies a new value for the same key).
func (s *Store) MarkDownloaded(ctx context.Context, videoID int64, path string, labels map[string]string) error {
	v, err := s.GetVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if v.Labels == nil {
		v.Labels = make(map[string]string)
	}
	for k, val := range labels {
		v.Labels[k] = val
	}
	merged, _ := json.Marshal(v.Labels)

	_, err = s.DB.ExecContext(ctx, `
		UPDATE videos SET downloaded = 1, download_path = ?, error_message = '', labels = ?, updated_at = ? WHERE id = ?
	`, path, merged, formatTime(time.Now()), videoID)
	return err
}

// MarkDownloadFailed records a failed download attempt; the caller is
// responsible for surfacing this as a transient error to the TaskQueue.
func (s *Store) MarkDownloadFailed(ctx context.Context, videoID int64, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE videos SET error_message = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?
	`, errMsg, formatTime(time.Now()), videoID)
	return err
}

// PendingDownloads returns up to limit un-downloaded, non-blacklisted
// videos belonging to lists with auto_download=true, where either
// error_message is empty or retry_count > 0 — the candidate set for the
// Scheduler's enqueue_pending_downloads job.
func (s *Store) PendingDownloads(ctx context.Context, limit int) ([]*Video, error) {
	rows, err := s.DB.QueryContext(ctx, videoSelectColumns+`
		FROM videos v
		JOIN video_lists l ON l.id = v.list_id
		WHERE v.downloaded = 0 AND v.blacklisted = 0 AND l.auto_download = 1
			AND (v.error_message = '' OR v.retry_count > 0)
		ORDER BY v.created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// VideosByList returns every Video in a list ordered by creation time.
func (s *Store) VideosByList(ctx context.Context, listID int64) ([]*Video, error) {
	rows, err := s.DB.QueryContext(ctx, videoSelectColumns+` FROM videos WHERE list_id = ? ORDER BY created_at ASC`, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideoRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanVideo(row *sql.Row) (*Video, error) {
	v, err := scanVideoRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func scanVideoRow(row rowScanner) (*Video, error) {
	var v Video
	var labels []byte
	var createdAt, updatedAt string

	err := row.Scan(&v.ID, &v.ListID, &v.ExternalVideoID, &v.Title, &v.URL, &v.Duration, &v.UploadDate,
		&v.Thumbnail, &v.MediaType, &labels, &v.Downloaded, &v.DownloadPath, &v.ErrorMessage, &v.RetryCount,
		&v.Blacklisted, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal(labels, &v.Labels)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	return &v, nil
}
