// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads and hot-reloads reelwatch's runtime configuration.
package config

import "time"

// AppConfig is the fully resolved runtime configuration: YAML file values
// overridden by environment variables, with defaults filled in.
type AppConfig struct {
	// MaxSyncWorkers bounds the TaskQueue worker pool for "sync" tasks.
	MaxSyncWorkers int `yaml:"max_sync_workers"`
	// MaxDownloadWorkers bounds the TaskQueue worker pool for "download" tasks.
	MaxDownloadWorkers int `yaml:"max_download_workers"`
	// DatabaseURL is the sqlite DSN path (file path, not a full DSN string).
	DatabaseURL string `yaml:"database_url"`
	// SQLiteNetworkShare switches the DB's journal mode from WAL to DELETE
	// for DatabaseURL paths that live on a network share.
	SQLiteNetworkShare bool `yaml:"sqlite_network_share"`
	// DataRetentionDays bounds how long terminal-status tasks/history rows live.
	DataRetentionDays int `yaml:"data_retention_days"`
	// PollInterval is loaded and validated, but cmd/daemon does not pass it
	// on: the Scheduler and the Queue use their own default intervals.
	PollInterval time.Duration `yaml:"poll_interval"`
	// LogLevel is the zerolog level name ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level"`

	// RedisURL, when set, backs ProgressTracker with Redis instead of an
	// in-process map. Empty means in-process only.
	RedisURL string `yaml:"redis_url"`

	// YtdlpBinary is the extractor/downloader executable name or path.
	YtdlpBinary string `yaml:"ytdlp_binary"`
	// DownloadDir is where downloaded media and list artwork are written.
	DownloadDir string `yaml:"download_dir"`
	// CacheDir is where the on-disk capability/blacklist-pattern cache lives.
	CacheDir string `yaml:"cache_dir"`

	NotifierWebhookURL    string `yaml:"notifier_webhook_url"`
	NotifierWebhookSecret string `yaml:"notifier_webhook_secret"`
	PlexToken             string `yaml:"plex_token"`
	PlexBaseURL           string `yaml:"plex_base_url"`
}

// FileConfig is the on-disk YAML shape. It mirrors AppConfig's fields that
// are reasonable to set from a file; secrets are read from ENV only (see
// env.go) and are deliberately absent here.
type FileConfig struct {
	MaxSyncWorkers     int    `yaml:"max_sync_workers"`
	MaxDownloadWorkers int    `yaml:"max_download_workers"`
	DatabaseURL        string `yaml:"database_url"`
	SQLiteNetworkShare bool   `yaml:"sqlite_network_share"`
	DataRetentionDays  int    `yaml:"data_retention_days"`
	PollInterval       string `yaml:"poll_interval"`
	LogLevel           string `yaml:"log_level"`
	RedisURL           string `yaml:"redis_url"`
	YtdlpBinary        string `yaml:"ytdlp_binary"`
	DownloadDir        string `yaml:"download_dir"`
	CacheDir           string `yaml:"cache_dir"`
}

// Default returns the built-in defaults, used when neither a config file
// nor an environment variable supplies a value.
func Default() AppConfig {
	return AppConfig{
		MaxSyncWorkers:     2,
		MaxDownloadWorkers: 4,
		DatabaseURL:        "reelwatch.db",
		SQLiteNetworkShare: false,
		DataRetentionDays:  30,
		PollInterval:       30 * time.Minute,
		LogLevel:           "info",
		YtdlpBinary:        "yt-dlp",
		DownloadDir:        "downloads",
		CacheDir:           "cache",
	}
}
