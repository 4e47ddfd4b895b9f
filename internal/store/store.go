// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"database/sql"
	"fmt"

	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/reelwatch/reelwatch/internal/persistence/sqlite"
)

const schemaVersion = 1

// Store is the sqlite-backed persistence layer for every core entity.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if necessary) the sqlite database at dbPath and
// applies pending migrations.
func Open(dbPath string, networkShare bool) (*Store, error) {
	cfg := sqlite.DefaultConfig()
	cfg.NetworkShare = networkShare

	db, err := sqlite.Open(dbPath, cfg)
	if err != nil {
		return nil, err
	}

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// New wraps an already-open *sql.DB and applies pending migrations to it.
func New(db *sql.DB) (*Store, error) {
	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migration failed: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		container TEXT NOT NULL DEFAULT '',
		resolution_ceiling INTEGER NOT NULL DEFAULT 0,
		preferred_codecs TEXT NOT NULL DEFAULT '[]',
		include_shorts BOOLEAN NOT NULL DEFAULT 0,
		include_live BOOLEAN NOT NULL DEFAULT 0,
		embed_subtitles BOOLEAN NOT NULL DEFAULT 0,
		embed_metadata BOOLEAN NOT NULL DEFAULT 0,
		filename_template TEXT NOT NULL DEFAULT '',
		sponsorblock_behavior TEXT NOT NULL DEFAULT '',
		extra_options TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS video_lists (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		list_type TEXT NOT NULL,
		profile_id INTEGER NOT NULL REFERENCES profiles(id),
		from_date TEXT NOT NULL DEFAULT '',
		sync_cadence TEXT NOT NULL DEFAULT 'daily',
		enabled BOOLEAN NOT NULL DEFAULT 1,
		auto_download BOOLEAN NOT NULL DEFAULT 0,
		title_blacklist TEXT NOT NULL DEFAULT '',
		min_duration INTEGER,
		max_duration INTEGER,
		last_synced TEXT,
		deleting BOOLEAN NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lists_profile ON video_lists(profile_id);

	CREATE TABLE IF NOT EXISTS videos (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		list_id INTEGER NOT NULL REFERENCES video_lists(id),
		external_video_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		duration INTEGER,
		upload_date TEXT NOT NULL DEFAULT '',
		thumbnail TEXT NOT NULL DEFAULT '',
		media_type TEXT NOT NULL DEFAULT 'video',
		labels TEXT NOT NULL DEFAULT '{}',
		downloaded BOOLEAN NOT NULL DEFAULT 0,
		download_path TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		blacklisted BOOLEAN NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(list_id, external_video_id)
	);
	CREATE INDEX IF NOT EXISTS idx_videos_list_downloaded ON videos(list_id, downloaded);
	CREATE INDEX IF NOT EXISTS idx_videos_list_updated ON videos(list_id, updated_at);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_type TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		result TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_type_entity_status ON tasks(task_type, entity_id, status);
	CREATE INDEX IF NOT EXISTS idx_tasks_status_type ON tasks(status, task_type);

	CREATE TABLE IF NOT EXISTS task_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id INTEGER NOT NULL REFERENCES tasks(id),
		attempt INTEGER NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs(task_id, created_at);

	CREATE TABLE IF NOT EXISTS download_schedules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT 0,
		days_of_week TEXT NOT NULL DEFAULT '[]',
		start_time TEXT NOT NULL DEFAULT '00:00',
		end_time TEXT NOT NULL DEFAULT '23:59'
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		list_id INTEGER NOT NULL,
		event TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_history_list ON history(list_id, created_at);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.WithComponent("store").Info().Int("version", schemaVersion).Msg("schema migrated")
	return nil
}
