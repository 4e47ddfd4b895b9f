// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/reelwatch/reelwatch/internal/cache"
	"github.com/reelwatch/reelwatch/internal/config"
	"github.com/reelwatch/reelwatch/internal/download"
	"github.com/reelwatch/reelwatch/internal/eventhub"
	rwlog "github.com/reelwatch/reelwatch/internal/log"
	"github.com/reelwatch/reelwatch/internal/mediabackend"
	"github.com/reelwatch/reelwatch/internal/notifier"
	"github.com/reelwatch/reelwatch/internal/progress"
	"github.com/reelwatch/reelwatch/internal/queue"
	"github.com/reelwatch/reelwatch/internal/schedule"
	"github.com/reelwatch/reelwatch/internal/scheduler"
	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/reelwatch/reelwatch/internal/sync"
	"github.com/reelwatch/reelwatch/internal/ytdlp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	version = "v0.1.0"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reelwatch %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	rwlog.Configure(rwlog.Config{Level: "info", Service: "reelwatch", Version: version})
	logger := rwlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Str("config_path", *configPath).Msg("failed to load configuration")
	}

	rwlog.Configure(rwlog.Config{Level: cfg.LogLevel, Service: "reelwatch", Version: version})
	logger = rwlog.WithComponent("daemon")
	logger.Info().Str("database_url", cfg.DatabaseURL).Msg("configuration loaded")

	if err := run(ctx, logger, cfg); err != nil {
		logger.Fatal().Err(err).Msg("daemon exited with an error")
	}
}

// run wires every core component together and blocks until ctx is
// cancelled. It deliberately exposes no HTTP surface: operators drive the
// queue through cmd/reelwatchctl, and internal/stream.Facade is a library
// a future HTTP layer can mount, not something this daemon serves itself.
func run(ctx context.Context, logger zerolog.Logger, cfg config.AppConfig) error {
	s, err := store.Open(cfg.DatabaseURL, cfg.SQLiteNetworkShare)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close store")
		}
	}()

	if err := seedRetentionSetting(ctx, s, cfg.DataRetentionDays); err != nil {
		logger.Warn().Err(err).Msg("failed to seed data_retention_days setting")
	}

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	hub := eventhub.New()
	gate := schedule.New(s)

	capStore, err := cache.OpenBadgerCache(filepath.Join(cfg.CacheDir, "capabilities"))
	if err != nil {
		return fmt.Errorf("open capability cache: %w", err)
	}
	defer func() {
		if err := capStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close capability cache")
		}
	}()
	capCache := mediabackend.NewCapabilityCache(capStore)

	blacklistStore, err := cache.OpenBadgerCache(filepath.Join(cfg.CacheDir, "blacklist"))
	if err != nil {
		return fmt.Errorf("open blacklist cache: %w", err)
	}
	defer func() {
		if err := blacklistStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close blacklist cache")
		}
	}()

	var backend mediabackend.Backend = ytdlp.New(cfg.YtdlpBinary, cfg.DownloadDir, capCache)
	limiter := mediabackend.NewProbeLimiter(mediabackend.DefaultProbeLimiterConfig())
	backend = mediabackend.NewRateLimitedBackend(backend, limiter)

	tracker, err := buildProgressTracker(cfg, logger)
	if err != nil {
		return fmt.Errorf("build progress tracker: %w", err)
	}

	notify := notifier.NewMultiplexer(buildNotifierSinks(cfg)...)

	syncHandler := sync.New(s, backend, hub, notify, blacklistStore)
	downloadHandler := download.New(s, backend, hub, tracker, notify)

	// The Queue gets no gate: the Scheduler applies it when it enqueues
	// automatic downloads, so a manually enqueued download is dispatched
	// regardless of the schedule windows.
	q := queue.New(s, hub, nil, queue.Config{
		MaxSyncWorkers:     cfg.MaxSyncWorkers,
		MaxDownloadWorkers: cfg.MaxDownloadWorkers,
	})
	q.RegisterHandler(store.TaskSync, func(ctx context.Context, listID int64) (string, error) {
		result, err := syncHandler.Handle(ctx, listID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d new of %d found", result.NewVideos, result.TotalFound), nil
	})
	q.RegisterHandler(store.TaskDownload, func(ctx context.Context, videoID int64) (string, error) {
		result, err := downloadHandler.Handle(ctx, videoID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("downloaded to %s", result.Path), nil
	})

	sched := scheduler.New(s, q, gate)

	logger.Info().
		Int("max_sync_workers", cfg.MaxSyncWorkers).
		Int("max_download_workers", cfg.MaxDownloadWorkers).
		Msg("starting dispatcher and scheduler")

	queueDone := make(chan struct{})
	go func() {
		q.Run(ctx)
		close(queueDone)
	}()
	sched.Start(ctx)

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received, waiting for in-flight tasks")
	<-queueDone
	return nil
}

func seedRetentionSetting(ctx context.Context, s *store.Store, days int) error {
	_, ok, err := s.GetSetting(ctx, store.SettingDataRetentionDays)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return s.SetSetting(ctx, store.SettingDataRetentionDays, strconv.Itoa(days))
}

// buildProgressTracker backs the ProgressTracker with Redis when cfg.RedisURL
// is set, otherwise with the in-process map tracker.
func buildProgressTracker(cfg config.AppConfig, logger zerolog.Logger) (*progress.Tracker, error) {
	if cfg.RedisURL == "" {
		return progress.New(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis_url: %w", err)
	}
	client := redis.NewClient(opts)
	return progress.NewRedis(client, 0, logger), nil
}

func buildNotifierSinks(cfg config.AppConfig) []notifier.Sink {
	var sinks []notifier.Sink
	if cfg.NotifierWebhookURL != "" {
		sinks = append(sinks, notifier.NewWebhookSink(cfg.NotifierWebhookURL, cfg.NotifierWebhookSecret))
	}
	if cfg.PlexBaseURL != "" && cfg.PlexToken != "" {
		sinks = append(sinks, notifier.NewPlexSink(cfg.PlexBaseURL, cfg.PlexToken))
	}
	return sinks
}
