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

// CreateProfile inserts a new Profile. Returns ErrConflict on a duplicate name.
func (s *Store) CreateProfile(ctx context.Context, p *Profile) (*Profile, error) {
	codecs, _ := json.Marshal(p.PreferredCodecs)
	extra, _ := json.Marshal(p.ExtraOptions)
	now := formatTime(time.Now())

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO profiles (name, container, resolution_ceiling, preferred_codecs, include_shorts, include_live,
			embed_subtitles, embed_metadata, filename_template, sponsorblock_behavior, extra_options, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Container, p.ResolutionCeiling, codecs, p.IncludeShorts, p.IncludeLive,
		p.EmbedSubtitles, p.EmbedMetadata, p.FilenameTemplate, p.SponsorblockBehavior, extra, now, now)
	if err != nil {
		if isUniqueConstraint(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("store: create profile: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetProfile(ctx, id)
}

// GetProfile loads a Profile by ID.
func (s *Store) GetProfile(ctx context.Context, id int64) (*Profile, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, container, resolution_ceiling, preferred_codecs, include_shorts, include_live,
			embed_subtitles, embed_metadata, filename_template, sponsorblock_behavior, extra_options, created_at, updated_at
		FROM profiles WHERE id = ?
	`, id)
	return scanProfile(row)
}

// UpdateProfile persists changes to an existing Profile.
func (s *Store) UpdateProfile(ctx context.Context, p *Profile) error {
	codecs, _ := json.Marshal(p.PreferredCodecs)
	extra, _ := json.Marshal(p.ExtraOptions)
	now := formatTime(time.Now())

	res, err := s.DB.ExecContext(ctx, `
		UPDATE profiles SET container = ?, resolution_ceiling = ?, preferred_codecs = ?, include_shorts = ?,
			include_live = ?, embed_subtitles = ?, embed_metadata = ?, filename_template = ?,
			sponsorblock_behavior = ?, extra_options = ?, updated_at = ?
		WHERE id = ?
	`, p.Container, p.ResolutionCeiling, codecs, p.IncludeShorts, p.IncludeLive, p.EmbedSubtitles,
		p.EmbedMetadata, p.FilenameTemplate, p.SponsorblockBehavior, extra, now, p.ID)
	if err != nil {
		return fmt.Errorf("store: update profile: %w", err)
	}
	return checkAffected(res, ErrNotFound)
}

// DeleteProfile removes a Profile. Forbidden while any List references it.
func (s *Store) DeleteProfile(ctx context.Context, id int64) error {
	var inUse int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM video_lists WHERE profile_id = ?`, id).Scan(&inUse); err != nil {
		return err
	}
	if inUse > 0 {
		return ErrInUse
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkAffected(res, ErrNotFound)
}

// ListProfiles returns every Profile, ordered by name.
func (s *Store) ListProfiles(ctx context.Context) ([]*Profile, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, name, container, resolution_ceiling, preferred_codecs, include_shorts, include_live,
			embed_subtitles, embed_metadata, filename_template, sponsorblock_behavior, extra_options, created_at, updated_at
		FROM profiles ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Profile
	for rows.Next() {
		p, err := scanProfileRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanProfile(row *sql.Row) (*Profile, error) {
	p, err := scanProfileRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func scanProfileRow(row rowScanner) (*Profile, error) {
	var p Profile
	var codecs, extra []byte
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.Name, &p.Container, &p.ResolutionCeiling, &codecs, &p.IncludeShorts, &p.IncludeLive,
		&p.EmbedSubtitles, &p.EmbedMetadata, &p.FilenameTemplate, &p.SponsorblockBehavior, &extra, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	_ = json.Unmarshal(codecs, &p.PreferredCodecs)
	_ = json.Unmarshal(extra, &p.ExtraOptions)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}
