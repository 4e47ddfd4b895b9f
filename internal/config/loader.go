// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func parseZerologLevel(level string) (zerolog.Level, error) {
	return zerolog.ParseLevel(level)
}

// ErrInvalidConfig is wrapped by Validate when a resolved AppConfig is unusable.
var ErrInvalidConfig = errors.New("invalid configuration")

// Loader loads an AppConfig from an optional YAML file merged with
// environment overrides, at the precedence ENV > file > defaults.
type Loader struct {
	// Path is the YAML config file path. Empty means ENV/defaults only.
	Path string
}

// NewLoader builds a Loader for the given (possibly empty) file path.
func NewLoader(path string) *Loader {
	return &Loader{Path: path}
}

// Load resolves the final AppConfig.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.Path != "" {
		file, err := l.readFile()
		if err != nil {
			return AppConfig{}, err
		}
		applyFile(&cfg, file)
	}

	applyEnv(&cfg)

	if err := Validate(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (l *Loader) readFile() (FileConfig, error) {
	logger := log.WithComponent("config")

	data, err := os.ReadFile(l.Path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info().Str("path", l.Path).Msg("config file not found, using environment and defaults")
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse config file: %w", err)
	}
	logger.Info().Str("path", l.Path).Msg("loaded config file")
	return fc, nil
}

func applyFile(cfg *AppConfig, fc FileConfig) {
	if fc.MaxSyncWorkers != 0 {
		cfg.MaxSyncWorkers = fc.MaxSyncWorkers
	}
	if fc.MaxDownloadWorkers != 0 {
		cfg.MaxDownloadWorkers = fc.MaxDownloadWorkers
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	cfg.SQLiteNetworkShare = fc.SQLiteNetworkShare || cfg.SQLiteNetworkShare
	if fc.DataRetentionDays != 0 {
		cfg.DataRetentionDays = fc.DataRetentionDays
	}
	if fc.PollInterval != "" {
		if d, err := time.ParseDuration(fc.PollInterval); err == nil {
			cfg.PollInterval = d
		}
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.RedisURL != "" {
		cfg.RedisURL = fc.RedisURL
	}
	if fc.YtdlpBinary != "" {
		cfg.YtdlpBinary = fc.YtdlpBinary
	}
	if fc.DownloadDir != "" {
		cfg.DownloadDir = fc.DownloadDir
	}
	if fc.CacheDir != "" {
		cfg.CacheDir = fc.CacheDir
	}
}

func applyEnv(cfg *AppConfig) {
	cfg.MaxSyncWorkers = ParseInt("MAX_SYNC_WORKERS", cfg.MaxSyncWorkers)
	cfg.MaxDownloadWorkers = ParseInt("MAX_DOWNLOAD_WORKERS", cfg.MaxDownloadWorkers)
	cfg.DatabaseURL = ParseString("DATABASE_URL", cfg.DatabaseURL)
	cfg.SQLiteNetworkShare = ParseBool("SQLITE_NETWORK_SHARE", cfg.SQLiteNetworkShare)
	cfg.DataRetentionDays = ParseInt("DATA_RETENTION_DAYS", cfg.DataRetentionDays)
	cfg.PollInterval = ParseDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.LogLevel = ParseString("LOG_LEVEL", cfg.LogLevel)
	cfg.RedisURL = ParseString("REDIS_URL", cfg.RedisURL)
	cfg.YtdlpBinary = ParseString("YTDLP_BINARY", cfg.YtdlpBinary)
	cfg.DownloadDir = ParseString("DOWNLOAD_DIR", cfg.DownloadDir)
	cfg.CacheDir = ParseString("CACHE_DIR", cfg.CacheDir)

	cfg.NotifierWebhookURL = ParseString("NOTIFIER_WEBHOOK_URL", cfg.NotifierWebhookURL)
	cfg.NotifierWebhookSecret = ParseString("NOTIFIER_WEBHOOK_SECRET", cfg.NotifierWebhookSecret)
	cfg.PlexToken = ParseString("PLEX_TOKEN", cfg.PlexToken)
	cfg.PlexBaseURL = ParseString("PLEX_BASE_URL", cfg.PlexBaseURL)
}

// Validate rejects resolved configuration that would misbehave at runtime.
func Validate(cfg AppConfig) error {
	if cfg.MaxSyncWorkers < 1 {
		return fmt.Errorf("%w: max_sync_workers must be >= 1, got %d", ErrInvalidConfig, cfg.MaxSyncWorkers)
	}
	if cfg.MaxDownloadWorkers < 1 {
		return fmt.Errorf("%w: max_download_workers must be >= 1, got %d", ErrInvalidConfig, cfg.MaxDownloadWorkers)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("%w: database_url must not be empty", ErrInvalidConfig)
	}
	if cfg.DataRetentionDays < 0 {
		return fmt.Errorf("%w: data_retention_days must be >= 0, got %d", ErrInvalidConfig, cfg.DataRetentionDays)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be > 0, got %s", ErrInvalidConfig, cfg.PollInterval)
	}
	if _, err := parseZerologLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
