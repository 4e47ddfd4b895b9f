// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package download implements the DownloadHandler described in §4.6.
package download

import (
	"context"
	"fmt"

	"github.com/reelwatch/reelwatch/internal/eventhub"
	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/reelwatch/reelwatch/internal/mediabackend"
	"github.com/reelwatch/reelwatch/internal/notifier"
	"github.com/reelwatch/reelwatch/internal/progress"
	"github.com/reelwatch/reelwatch/internal/store"
)

// Result is what Handle returns on success.
type Result struct {
	AlreadyDownloaded bool
	Path              string
}

// Handler runs the download algorithm for one Video at a time.
type Handler struct {
	store   *store.Store
	backend mediabackend.Backend
	hub     *eventhub.Hub
	tracker *progress.Tracker
	notify  *notifier.Multiplexer
}

// New returns a Handler.
func New(s *store.Store, backend mediabackend.Backend, hub *eventhub.Hub, tracker *progress.Tracker, notify *notifier.Multiplexer) *Handler {
	return &Handler{store: s, backend: backend, hub: hub, tracker: tracker, notify: notify}
}

// Handle runs the six-step download algorithm for videoID.
func (h *Handler) Handle(ctx context.Context, videoID int64) (Result, error) {
	logger := log.WithComponent("download")

	video, err := h.store.GetVideo(ctx, videoID)
	if err != nil {
		return Result{}, fmt.Errorf("download: load video: %w", err)
	}
	if video.Downloaded {
		return Result{AlreadyDownloaded: true, Path: video.DownloadPath}, nil
	}

	list, err := h.store.GetList(ctx, video.ListID)
	if err != nil {
		return Result{}, fmt.Errorf("download: load list: %w", err)
	}
	profile, err := h.store.GetProfile(ctx, list.ProfileID)
	if err != nil {
		return Result{}, fmt.Errorf("download: load profile: %w", err)
	}

	var hook progress.Hook
	if h.tracker != nil {
		hook = h.tracker.CreateHook(videoID)
	}

	path, labels, err := h.backend.Download(ctx, video, profile, hook)
	if err != nil {
		if dbErr := h.store.MarkDownloadFailed(ctx, videoID, err.Error()); dbErr != nil {
			logger.Error().Err(dbErr).Int64("video_id", videoID).Msg("failed to record download failure")
		}
		if h.tracker != nil {
			h.tracker.MarkError(videoID, err)
		}
		h.hub.Publish(eventhub.ListVideosTopic(video.ListID), videoID)
		if appendErr := h.store.AppendHistory(ctx, video.ListID, "download_failed", err.Error()); appendErr != nil {
			logger.Warn().Err(appendErr).Msg("failed to append download-failed history entry")
		}
		return Result{}, fmt.Errorf("download: backend failed: %w", err)
	}

	if err := h.store.MarkDownloaded(ctx, videoID, path, labels); err != nil {
		return Result{}, fmt.Errorf("download: mark downloaded: %w", err)
	}
	if h.tracker != nil {
		h.tracker.MarkDone(videoID)
	}

	h.hub.Publish(eventhub.ListVideosTopic(video.ListID), videoID)
	if err := h.store.AppendHistory(ctx, video.ListID, "download_completed", video.Title); err != nil {
		logger.Warn().Err(err).Msg("failed to append download-completed history entry")
	}
	h.hub.Publish(eventhub.ListHistoryTopic(video.ListID), video.Title)

	if h.notify != nil {
		h.notify.Notify(ctx, notifier.Event{Kind: notifier.DownloadCompleted, Payload: map[string]any{
			"video_id": videoID, "list_id": video.ListID, "path": path,
		}})
	}

	return Result{Path: path}, nil
}
