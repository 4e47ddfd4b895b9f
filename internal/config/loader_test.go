// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	l := NewLoader("")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "max_sync_workers: 5\nmax_download_workers: 9\ndata_retention_days: 7\npoll_interval: 10m\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.MaxSyncWorkers)
	assert.Equal(t, 9, cfg.MaxDownloadWorkers)
	assert.Equal(t, 7, cfg.DataRetentionDays)
	assert.Equal(t, 10*time.Minute, cfg.PollInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_sync_workers: 5\n"), 0o600))

	t.Setenv("MAX_SYNC_WORKERS", "11")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.MaxSyncWorkers)
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := Default()
	cfg.MaxSyncWorkers = 0
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "not-a-level"
	err := Validate(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestHolderReloadNotifiesListeners(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_sync_workers: 2\n"), 0o600))

	h, err := NewHolder(NewLoader(path))
	require.NoError(t, err)
	assert.Equal(t, 2, h.Get().MaxSyncWorkers)

	ch := make(chan AppConfig, 1)
	h.RegisterListener(ch)

	require.NoError(t, os.WriteFile(path, []byte("max_sync_workers: 8\n"), 0o600))
	require.NoError(t, h.Reload())

	assert.Equal(t, 8, h.Get().MaxSyncWorkers)
	select {
	case cfg := <-ch:
		assert.Equal(t, 8, cfg.MaxSyncWorkers)
	default:
		t.Fatal("expected listener notification")
	}
}
