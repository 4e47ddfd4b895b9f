// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sync implements the SyncHandler described in §4.5: discover new
// videos for a List, apply blacklist/shorts/live filters, and persist
// them.
package sync

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/reelwatch/reelwatch/internal/cache"
	"github.com/reelwatch/reelwatch/internal/eventhub"
	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/reelwatch/reelwatch/internal/mediabackend"
	"github.com/reelwatch/reelwatch/internal/notifier"
	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/rs/zerolog"
)

// blacklistCacheTTL bounds how long a compiled title-blacklist pattern is
// reused across syncs before it is recompiled. An operator's edit to a
// List's TitleBlacklist takes effect on the next sync regardless, because
// the cache key embeds the pattern text.
const blacklistCacheTTL = 10 * time.Minute

// Result is what Handle returns on success.
type Result struct {
	NewVideos  int
	TotalFound int
}

// Handler runs the sync algorithm for one List at a time.
type Handler struct {
	store          *store.Store
	backend        mediabackend.Backend
	hub            *eventhub.Hub
	notify         *notifier.Multiplexer
	blacklistCache cache.Cache
}

// New returns a Handler. blacklistCache may be nil, in which case every
// List's title-blacklist pattern is recompiled on every Handle call.
func New(s *store.Store, backend mediabackend.Backend, hub *eventhub.Hub, notify *notifier.Multiplexer, blacklistCache cache.Cache) *Handler {
	return &Handler{store: s, backend: backend, hub: hub, notify: notify, blacklistCache: blacklistCache}
}

// Handle runs the ten-step sync algorithm for listID.
func (h *Handler) Handle(ctx context.Context, listID int64) (Result, error) {
	logger := log.WithComponent("sync")

	list, err := h.store.GetList(ctx, listID)
	if err != nil {
		return Result{}, fmt.Errorf("sync: load list: %w", err)
	}

	profile, err := h.store.GetProfile(ctx, list.ProfileID)
	if err != nil {
		return Result{}, fmt.Errorf("sync: load profile: %w", err)
	}

	fetchURL := list.URL
	if !profile.IncludeShorts {
		fetchURL = rewriteAwayFromShorts(fetchURL)
	}

	blacklist := h.compiledBlacklist(listID, list.TitleBlacklist, logger)

	existingIDs, err := h.store.ExistingExternalIDs(ctx, listID)
	if err != nil {
		return Result{}, fmt.Errorf("sync: snapshot existing ids: %w", err)
	}

	var (
		mu        sync.Mutex
		newVideos int
		total     int
	)

	onVideo := func(ctx context.Context, v mediabackend.VideoData) error {
		mu.Lock()
		defer mu.Unlock()
		total++

		if skipByMediaType(v, profile) {
			return nil
		}

		reasons := blacklistReasons(v, list, blacklist)
		labels := v.Labels
		if labels == nil {
			labels = make(map[string]string)
		}
		labels["filename_safe_title"] = SanitizeTitleForFilename(v.Title)

		video := &store.Video{
			ListID:          listID,
			ExternalVideoID: v.VideoID,
			Title:           v.Title,
			URL:             v.URL,
			Duration:        v.Duration,
			UploadDate:      v.UploadDate,
			Thumbnail:       v.Thumbnail,
			MediaType:       v.MediaType,
			Labels:          labels,
		}
		if len(reasons) > 0 {
			video.Blacklisted = true
			video.ErrorMessage = strings.Join(reasons, "; ")
		}

		created, err := h.store.CreateVideo(ctx, video)
		if err != nil {
			logger.Warn().Err(err).Str("external_video_id", v.VideoID).Msg("failed to insert discovered video")
			return nil
		}
		newVideos++
		h.hub.Publish(eventhub.ListVideosTopic(listID), created.ID)
		if h.notify != nil {
			h.notify.Notify(ctx, notifier.Event{Kind: notifier.VideoDiscovered, Payload: map[string]any{
				"list_id": listID, "video_id": created.ID,
			}})
		}
		return nil
	}

	if err := h.backend.ExtractVideos(ctx, fetchURL, list.FromDate, onVideo, existingIDs); err != nil {
		return Result{}, fmt.Errorf("sync: extract videos: %w", err)
	}

	// Best-effort, and deliberately re-run on every successful sync rather
	// than once per List: a channel's avatar/banner can change between
	// syncs, and re-fetching it here is cheap compared to a full
	// extraction pass.
	artworkName := list.Name
	if artworkName == "" {
		artworkName = fmt.Sprintf("list-%d", listID)
	}
	if err := h.backend.EnsureListArtwork(ctx, artworkName, list.URL); err != nil {
		logger.Warn().Err(err).Int64("list_id", listID).Msg("failed to ensure list artwork")
	}

	if err := h.store.TouchLastSynced(ctx, listID); err != nil {
		return Result{}, fmt.Errorf("sync: touch last_synced: %w", err)
	}

	detail := fmt.Sprintf("%d new videos of %d found", newVideos, total)
	if err := h.store.AppendHistory(ctx, listID, "sync_completed", detail); err != nil {
		logger.Warn().Err(err).Msg("failed to append sync history entry")
	}
	h.hub.Publish(eventhub.ListHistoryTopic(listID), detail)
	h.hub.Publish(eventhub.TopicHistory, listID)
	h.hub.Publish(eventhub.TopicLists, listID)

	if h.notify != nil {
		h.notify.Notify(ctx, notifier.Event{Kind: notifier.SyncCompleted, Payload: map[string]any{
			"list_id": listID, "new_videos": newVideos, "total_found": total,
		}})
	}

	return Result{NewVideos: newVideos, TotalFound: total}, nil
}

func skipByMediaType(v mediabackend.VideoData, profile *store.Profile) bool {
	if v.MediaType == store.MediaShort && !profile.IncludeShorts {
		return true
	}
	if v.MediaType == store.MediaLive && !profile.IncludeLive {
		return true
	}
	return false
}

// compiledBlacklist returns list's compiled title-blacklist pattern, reusing
// h.blacklistCache when present. The cache key embeds the pattern text
// itself, so an operator editing a List's TitleBlacklist invalidates the
// old entry implicitly rather than needing an explicit cache-bust call.
func (h *Handler) compiledBlacklist(listID int64, pattern string, logger zerolog.Logger) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	if h.blacklistCache == nil {
		return compileBlacklist(pattern, logger)
	}

	key := fmt.Sprintf("blacklist:%d:%s", listID, pattern)
	if cached, ok := h.blacklistCache.Get(key); ok {
		re, ok := cached.(*regexp.Regexp)
		if ok {
			return re
		}
	}

	re := compileBlacklist(pattern, logger)
	if re != nil {
		h.blacklistCache.Set(key, re, blacklistCacheTTL)
	}
	return re
}

func compileBlacklist(pattern string, logger zerolog.Logger) *regexp.Regexp {
	if pattern == "" {
		return nil
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		logger.Warn().Err(err).Str("pattern", pattern).Msg("invalid title blacklist pattern, ignoring")
		return nil
	}
	return re
}

func blacklistReasons(v mediabackend.VideoData, list *store.List, blacklist *regexp.Regexp) []string {
	var reasons []string
	if blacklist != nil && blacklist.MatchString(v.Title) {
		reasons = append(reasons, "title matches blacklist pattern")
	}
	if v.Duration != nil {
		if list.MinDuration != nil && *v.Duration < *list.MinDuration {
			reasons = append(reasons, "duration below minimum")
		}
		if list.MaxDuration != nil && *v.Duration > *list.MaxDuration {
			reasons = append(reasons, "duration above maximum")
		}
	}
	return reasons
}

// shortsHosts are platforms known to segregate shorts-style content under a
// distinct sub-path from regular uploads.
var shortsHosts = []string{"youtube.com", "youtu.be", "m.youtube.com"}

// rewriteAwayFromShorts rewrites a channel URL to its /videos sub-path so
// the extractor lists long-form uploads only, unless the URL already names
// a specific sub-path (e.g. .../shorts, .../streams).
func rewriteAwayFromShorts(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !isShortsHost(u.Hostname()) {
		return raw
	}

	trimmed := strings.TrimRight(u.Path, "/")
	segments := strings.Split(trimmed, "/")
	if len(segments) == 0 {
		return raw
	}
	last := segments[len(segments)-1]
	knownSubPaths := map[string]bool{"videos": true, "shorts": true, "streams": true, "playlists": true, "community": true}
	if knownSubPaths[last] {
		return raw
	}

	u.Path = trimmed + "/videos"
	return u.String()
}

func isShortsHost(host string) bool {
	for _, h := range shortsHosts {
		if host == h {
			return true
		}
	}
	return false
}
