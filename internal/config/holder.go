// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/rs/zerolog"
)

// Holder holds the current AppConfig with atomic, hot-reloadable access.
// cmd/daemon does not use it: the daemon loads its configuration once at
// startup, so a reload does not reach the running Queue or Scheduler.
type Holder struct {
	current atomic.Pointer[AppConfig]
	loader  *Loader
	logger  zerolog.Logger

	watcher    *fsnotify.Watcher
	configDir  string
	configFile string

	listenersMu sync.RWMutex
	listeners   []chan<- AppConfig
}

// NewHolder loads the initial configuration via loader and wraps it in a Holder.
func NewHolder(loader *Loader) (*Holder, error) {
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}
	h := &Holder{loader: loader, logger: log.WithComponent("config")}
	h.current.Store(&cfg)
	return h, nil
}

// Get returns the current configuration (thread-safe read).
func (h *Holder) Get() AppConfig {
	return *h.current.Load()
}

// Reload re-reads the config file and environment. On validation failure
// the prior configuration is kept and an error is returned.
func (h *Holder) Reload() error {
	cfg, err := h.loader.Load()
	if err != nil {
		h.logger.Error().Err(err).Str("event", "config.reload_failed").Msg("failed to reload configuration")
		return fmt.Errorf("reload config: %w", err)
	}

	old := h.Get()
	h.current.Store(&cfg)
	h.logChanges(old, cfg)
	h.notify(cfg)

	h.logger.Info().Str("event", "config.reload_success").Msg("configuration reloaded")
	return nil
}

// RegisterListener registers a channel to receive the new AppConfig after
// every successful reload. Sends are non-blocking; a full channel is skipped.
func (h *Holder) RegisterListener(ch chan<- AppConfig) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listeners = append(h.listeners, ch)
}

func (h *Holder) notify(cfg AppConfig) {
	h.listenersMu.RLock()
	defer h.listenersMu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- cfg:
		default:
			h.logger.Warn().Str("event", "config.listener_skip").Msg("skipped notifying listener (channel full)")
		}
	}
}

// Watch starts watching the config file for changes and reloads on write,
// debounced to absorb editor save-as-rename bursts. It is a no-op when the
// Loader has no Path (ENV-only configuration).
func (h *Holder) Watch(ctx context.Context) error {
	if h.loader.Path == "" {
		h.logger.Info().Str("event", "config.watcher_disabled").Msg("no config file path, skipping file watch")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	h.watcher = watcher
	h.configDir = filepath.Dir(h.loader.Path)
	h.configFile = filepath.Base(h.loader.Path)

	if err := watcher.Add(h.configDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config dir: %w", err)
	}

	h.logger.Info().Str("event", "config.watcher_started").Str("path", h.loader.Path).Msg("watching config file")
	go h.watchLoop(ctx)
	return nil
}

func (h *Holder) watchLoop(ctx context.Context) {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = h.watcher.Close()
			return

		case ev, ok := <-h.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != h.configFile {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := h.Reload(); err != nil {
					h.logger.Error().Err(err).Str("event", "config.auto_reload_failed").Msg("automatic config reload failed")
				}
			})

		case err, ok := <-h.watcher.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Str("event", "config.watcher_error").Msg("config watcher error")
		}
	}
}

func (h *Holder) logChanges(old, next AppConfig) {
	if old.MaxSyncWorkers != next.MaxSyncWorkers {
		h.logger.Info().Int("old", old.MaxSyncWorkers).Int("new", next.MaxSyncWorkers).Msg("config changed: max_sync_workers")
	}
	if old.MaxDownloadWorkers != next.MaxDownloadWorkers {
		h.logger.Info().Int("old", old.MaxDownloadWorkers).Int("new", next.MaxDownloadWorkers).Msg("config changed: max_download_workers")
	}
	if old.DataRetentionDays != next.DataRetentionDays {
		h.logger.Info().Int("old", old.DataRetentionDays).Int("new", next.DataRetentionDays).Msg("config changed: data_retention_days")
	}
	if old.PollInterval != next.PollInterval {
		h.logger.Info().Dur("old", old.PollInterval).Dur("new", next.PollInterval).Msg("config changed: poll_interval")
	}
	if old.LogLevel != next.LogLevel {
		h.logger.Info().Str("old", old.LogLevel).Str("new", next.LogLevel).Msg("config changed: log_level")
	}
}
