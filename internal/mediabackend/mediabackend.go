// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mediabackend is the abstract capability the core delegates to
// for channel/playlist extraction and video download (§6). Production
// wiring points this at an external extractor/downloader binary; tests
// supply a fake.
package mediabackend

import (
	"context"

	"github.com/reelwatch/reelwatch/internal/progress"
	"github.com/reelwatch/reelwatch/internal/store"
)

// VideoData is one discovered entry, as reported by extract_videos.
type VideoData struct {
	VideoID     string
	Title       string
	URL         string
	Duration    *int
	UploadDate  string
	Thumbnail   string
	Extractor   string
	MediaType   store.MediaType
	Labels      map[string]string
	Description string
	WasLive     bool
}

// ListMetadata is what extract_list_metadata reports about a channel or
// playlist, independent of its videos.
type ListMetadata struct {
	Name         string
	Description  string
	Thumbnails   []string
	Tags         []string
	ExtractorKey string
	ChannelID    string
}

// OnVideoFound is invoked once per newly-discovered video. Implementations
// may run multiple fetchers concurrently, so OnVideoFound must be safe for
// concurrent invocation.
type OnVideoFound func(ctx context.Context, video VideoData) error

// Backend is the extraction/download capability the core depends on.
type Backend interface {
	// ExtractVideos iterates url from fromDate onward, calling onVideo for
	// every entry whose external ID is not already in existingIDs.
	ExtractVideos(ctx context.Context, url, fromDate string, onVideo OnVideoFound, existingIDs map[string]bool) error

	// ExtractListMetadata fetches channel/playlist-level metadata only.
	ExtractListMetadata(ctx context.Context, url string) (ListMetadata, error)

	// Download fetches video per profile, reporting progress through hook.
	// Returns the on-disk path and any backend-assigned labels on success.
	Download(ctx context.Context, video *store.Video, profile *store.Profile, hook progress.Hook) (path string, labels map[string]string, err error)

	// EnsureListArtwork best-effort fetches and caches artwork for a List;
	// failures are logged by the caller and never propagated.
	EnsureListArtwork(ctx context.Context, name, url string) error
}
