// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ytdlp is the production mediabackend.Backend: it shells out to
// the yt-dlp binary for channel/playlist extraction and video download,
// mirroring the flat-list-then-parallel-metadata strategy of the extractor
// this system delegates to.
package ytdlp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/reelwatch/reelwatch/internal/log"
	"github.com/reelwatch/reelwatch/internal/mediabackend"
	"github.com/reelwatch/reelwatch/internal/progress"
	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// maxParallelMetadataFetches bounds how many `yt-dlp -j <video-url>` child
// processes run at once while expanding a flat playlist into full
// per-video metadata.
const maxParallelMetadataFetches = 5

// Backend invokes the yt-dlp binary for every mediabackend.Backend
// operation. It holds no state beyond its configuration: every call is an
// independent subprocess invocation.
type Backend struct {
	binary    string
	outputDir string

	metadataSem *semaphore.Weighted
	capCache    *mediabackend.CapabilityCache

	logger zerolog.Logger
}

// New returns a Backend that shells out to binary (found via PATH if not
// absolute) and writes downloads under outputDir. capCache may be nil, in
// which case capability probes (e.g. sponsorblock support) run on every
// call instead of being cached.
func New(binary, outputDir string, capCache *mediabackend.CapabilityCache) *Backend {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &Backend{
		binary:      binary,
		outputDir:   outputDir,
		metadataSem: semaphore.NewWeighted(maxParallelMetadataFetches),
		capCache:    capCache,
		logger:      log.WithComponent("ytdlp"),
	}
}

// flatEntry is one row of `yt-dlp -J --flat-playlist <url>`'s "entries".
type flatEntry struct {
	ID         string      `json:"id"`
	URL        string      `json:"url"`
	Title      string      `json:"title"`
	Entries    []flatEntry `json:"entries"`
	WebpageURL string      `json:"webpage_url"`
}

// videoInfo is the subset of a full `yt-dlp -j <video-url>` object this
// backend consumes.
type videoInfo struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	WebpageURL  string            `json:"webpage_url"`
	Duration    *float64          `json:"duration"`
	UploadDate  string            `json:"upload_date"`
	Thumbnail   string            `json:"thumbnail"`
	Extractor   string            `json:"extractor_key"`
	Description string            `json:"description"`
	IsLive      bool              `json:"is_live"`
	WasLive     bool              `json:"was_live"`
	LiveStatus  string            `json:"live_status"`
	Tags        []string          `json:"tags"`
	Channel     string            `json:"channel"`
	ChannelID   string            `json:"channel_id"`
	Thumbnails  []thumbnailRef    `json:"thumbnails"`
	Labels      map[string]string `json:"-"`
}

type thumbnailRef struct {
	URL string `json:"url"`
}

// ExtractVideos lists url's entries via a fast flat-playlist pass, then
// fetches full metadata for every entry not already in existingIDs,
// bounded by maxParallelMetadataFetches concurrent yt-dlp processes —
// mirroring the extractor's own worker-pooled metadata fetch.
func (b *Backend) ExtractVideos(ctx context.Context, url, fromDate string, onVideo mediabackend.OnVideoFound, existingIDs map[string]bool) error {
	entries, err := b.flatPlaylist(ctx, url)
	if err != nil {
		return fmt.Errorf("ytdlp: list %s: %w", url, err)
	}

	var (
		g         = make(chan error, len(entries))
		submitted int
	)
	for _, e := range entries {
		videoID := e.ID
		if videoID == "" || existingIDs[videoID] {
			continue
		}
		videoURL := e.WebpageURL
		if videoURL == "" {
			videoURL = e.URL
		}
		if videoURL == "" {
			continue
		}

		if err := b.metadataSem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("ytdlp: acquire metadata slot: %w", err)
		}
		submitted++

		go func(videoID, videoURL string) {
			defer b.metadataSem.Release(1)

			info, err := b.videoMetadata(ctx, videoURL)
			if err != nil {
				b.logger.Warn().Err(err).Str("video_id", videoID).Msg("failed to fetch video metadata")
				g <- nil
				return
			}
			if fromDate != "" && info.UploadDate != "" && info.UploadDate < fromDate {
				g <- nil
				return
			}
			g <- onVideo(ctx, toVideoData(info, videoURL))
		}(videoID, videoURL)
	}

	for i := 0; i < submitted; i++ {
		if err := <-g; err != nil {
			return err
		}
	}
	return nil
}

// ExtractListMetadata reports channel/playlist-level metadata from the
// flat-playlist pass's parent object, without fetching any video's full
// metadata.
func (b *Backend) ExtractListMetadata(ctx context.Context, url string) (mediabackend.ListMetadata, error) {
	raw, err := b.run(ctx, "-J", "--flat-playlist", "--playlist-items", "0", url)
	if err != nil {
		return mediabackend.ListMetadata{}, fmt.Errorf("ytdlp: list metadata %s: %w", url, err)
	}

	var parent struct {
		Title        string         `json:"title"`
		Description  string         `json:"description"`
		Tags         []string       `json:"tags"`
		ExtractorKey string         `json:"extractor_key"`
		ChannelID    string         `json:"channel_id"`
		Thumbnails   []thumbnailRef `json:"thumbnails"`
	}
	if err := json.Unmarshal(raw, &parent); err != nil {
		return mediabackend.ListMetadata{}, fmt.Errorf("ytdlp: parse list metadata: %w", err)
	}

	thumbs := make([]string, 0, len(parent.Thumbnails))
	for _, t := range parent.Thumbnails {
		if t.URL != "" {
			thumbs = append(thumbs, t.URL)
		}
	}

	return mediabackend.ListMetadata{
		Name:         parent.Title,
		Description:  parent.Description,
		Thumbnails:   thumbs,
		Tags:         parent.Tags,
		ExtractorKey: parent.ExtractorKey,
		ChannelID:    parent.ChannelID,
	}, nil
}

// EnsureListArtwork best-effort fetches url's channel thumbnail into
// outputDir/name-thumb.<ext>. Failures are logged, never returned as fatal
// by callers per the best-effort contract.
func (b *Backend) EnsureListArtwork(ctx context.Context, name, url string) error {
	target := filepath.Join(b.outputDir, sanitizeFilename(name)+"-thumb")
	args := []string{"--skip-download", "--write-thumbnail", "--convert-thumbnails", "jpg", "-o", target, url}
	if _, err := b.run(ctx, args...); err != nil {
		return fmt.Errorf("ytdlp: ensure artwork for %s: %w", name, err)
	}
	return nil
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		case r < 0x20:
			return '_'
		default:
			return r
		}
	}, s)
}

func (b *Backend) flatPlaylist(ctx context.Context, url string) ([]flatEntry, error) {
	raw, err := b.run(ctx, "-J", "--flat-playlist", url)
	if err != nil {
		return nil, err
	}

	var parent struct {
		Entries []flatEntry `json:"entries"`
	}
	if err := json.Unmarshal(raw, &parent); err != nil {
		return nil, fmt.Errorf("parse flat playlist: %w", err)
	}

	return flattenEntries(parent.Entries), nil
}

// flattenEntries handles channels that nest videos/shorts/streams under
// per-tab sub-playlists (each itself an entry with its own "entries").
func flattenEntries(entries []flatEntry) []flatEntry {
	var flat []flatEntry
	for _, e := range entries {
		if len(e.Entries) > 0 {
			flat = append(flat, flattenEntries(e.Entries)...)
			continue
		}
		flat = append(flat, e)
	}
	return flat
}

func (b *Backend) videoMetadata(ctx context.Context, videoURL string) (*videoInfo, error) {
	raw, err := b.run(ctx, "-j", videoURL)
	if err != nil {
		return nil, err
	}
	var info videoInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("parse video metadata: %w", err)
	}
	return &info, nil
}

// run executes the yt-dlp binary with args and returns its stdout.
func (b *Backend) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.binary, append([]string{"--no-warnings", "--ignore-errors"}, args...)...)
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

func toVideoData(info *videoInfo, fallbackURL string) mediabackend.VideoData {
	url := info.WebpageURL
	if url == "" {
		url = fallbackURL
	}

	var duration *int
	if info.Duration != nil {
		d := int(*info.Duration)
		duration = &d
	}

	return mediabackend.VideoData{
		VideoID:     info.ID,
		Title:       info.Title,
		URL:         url,
		Duration:    duration,
		UploadDate:  info.UploadDate,
		Thumbnail:   info.Thumbnail,
		Extractor:   info.Extractor,
		MediaType:   classifyMediaType(url, info),
		Description: info.Description,
		WasLive:     info.WasLive || info.IsLive,
	}
}

// classifyMediaType distinguishes a short from a regular upload by its
// webpage URL shape, and a live broadcast by yt-dlp's live_status field.
func classifyMediaType(url string, info *videoInfo) store.MediaType {
	if info.IsLive || info.LiveStatus == "is_live" || info.LiveStatus == "was_live" {
		return store.MediaLive
	}
	if strings.Contains(url, "/shorts/") {
		return store.MediaShort
	}
	return store.MediaVideo
}

// filepathPrintMarker prefixes the final on-disk path yt-dlp prints once a
// download (and any post-processing, e.g. merge/embed) has finished moving
// the file into place, so it can be told apart from ordinary progress
// lines on the same stdout stream.
const filepathPrintMarker = "REELWATCH_PATH:"

// Download invokes yt-dlp for video per profile's format/embedding/
// sponsorblock settings, streaming progress through hook as the process
// reports it, and returns the final on-disk path yt-dlp moved the file to.
func (b *Backend) Download(ctx context.Context, video *store.Video, profile *store.Profile, hook progress.Hook) (string, map[string]string, error) {
	args, err := b.downloadArgs(ctx, video, profile)
	if err != nil {
		return "", nil, fmt.Errorf("ytdlp: build download args for %s: %w", video.ExternalVideoID, err)
	}

	cmd := exec.CommandContext(ctx, b.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, fmt.Errorf("ytdlp: stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("ytdlp: start download: %w", err)
	}

	var path string
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if p, ok := strings.CutPrefix(line, filepathPrintMarker); ok {
			path = p
			continue
		}
		if fields, ok := parseDownloadProgressLine(line); ok && hook != nil {
			hook(fields)
		}
	}

	if err := cmd.Wait(); err != nil {
		return "", nil, fmt.Errorf("ytdlp: download %s: %s: %s", video.ExternalVideoID, err, strings.TrimSpace(stderr.String()))
	}
	if path == "" {
		return "", nil, fmt.Errorf("ytdlp: download %s: completed without reporting a final path", video.ExternalVideoID)
	}

	labels := map[string]string{"downloaded_with": "yt-dlp"}
	return path, labels, nil
}

// downloadArgs translates profile into the yt-dlp flags that select a
// format, choose the output container, and apply embedding/sponsorblock
// preferences, mirroring the extractor's own profile-to-flags mapping.
func (b *Backend) downloadArgs(ctx context.Context, video *store.Video, profile *store.Profile) ([]string, error) {
	args := []string{
		"--newline",
		"--no-warnings",
		"--print", "after_move:" + filepathPrintMarker + "%(filepath)s",
	}

	args = append(args, "-f", formatSelector(profile))

	if profile.ResolutionCeiling > 0 && profile.Container != "" {
		args = append(args, "--merge-output-format", profile.Container)
	}
	if profile.ResolutionCeiling == 0 {
		args = append(args, "-x")
		if profile.Container != "" {
			args = append(args, "--audio-format", profile.Container)
		}
	}

	if profile.EmbedSubtitles {
		args = append(args, "--write-subs", "--write-auto-subs", "--embed-subs")
	}
	if profile.EmbedMetadata {
		args = append(args, "--embed-metadata", "--embed-thumbnail")
	}

	switch profile.SponsorblockBehavior {
	case "remove":
		args = append(args, "--sponsorblock-remove", "all")
	case "mark":
		args = append(args, "--sponsorblock-mark", "all")
	}

	if b.capCache != nil {
		supportsChapters, err := b.capCache.Check(ctx, b.binary, "chapters-from-comments", func(ctx context.Context, _ string) (bool, error) {
			out, err := b.run(ctx, "--help")
			if err != nil {
				return false, err
			}
			return strings.Contains(string(out), "--sponsorblock-chapter-title"), nil
		})
		if err == nil && supportsChapters && profile.SponsorblockBehavior == "mark" {
			args = append(args, "--sponsorblock-chapter-title", "[SponsorBlock]: %(category_names)l")
		}
	}

	template := profile.FilenameTemplate
	if template == "" {
		template = "%(title)s [%(id)s].%(ext)s"
	}
	args = append(args, "-o", filepath.Join(b.outputDir, template))

	for key, value := range profile.ExtraOptions {
		flag := "--" + key
		switch v := value.(type) {
		case bool:
			if v {
				args = append(args, flag)
			}
		default:
			args = append(args, flag, fmt.Sprintf("%v", v))
		}
	}

	args = append(args, video.URL)
	return args, nil
}

// formatSelector builds yt-dlp's -f value from a profile's resolution
// ceiling and preferred codecs. A zero ceiling means audio-only.
func formatSelector(profile *store.Profile) string {
	if profile.ResolutionCeiling == 0 {
		return "bestaudio/best"
	}

	height := profile.ResolutionCeiling
	if len(profile.PreferredCodecs) == 0 {
		return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, height)
	}

	var alternatives []string
	for _, codec := range profile.PreferredCodecs {
		alternatives = append(alternatives,
			fmt.Sprintf("bestvideo[height<=%d][vcodec~='^%s']+bestaudio", height, codec))
	}
	alternatives = append(alternatives, fmt.Sprintf("bestvideo[height<=%d]+bestaudio", height))
	alternatives = append(alternatives, fmt.Sprintf("best[height<=%d]", height))
	return strings.Join(alternatives, "/")
}

// parseDownloadProgressLine extracts the raw progress fields
// progress.Tracker.CreateHook expects from one line of yt-dlp's
// --newline-delimited stdout, e.g.:
//
//	[download]  42.5% of   10.00MiB at    1.20MiB/s ETA 00:08
func parseDownloadProgressLine(line string) (map[string]string, bool) {
	if !strings.HasPrefix(line, "[download]") || !strings.Contains(line, "%") {
		return nil, false
	}

	fields := strings.Fields(line)
	out := make(map[string]string)
	for i, f := range fields {
		switch {
		case strings.HasSuffix(f, "%"):
			out["_percent_str"] = f
		case strings.HasSuffix(f, "/s"):
			out["_speed_str"] = f
		case f == "ETA" && i+1 < len(fields):
			out["eta"] = fields[i+1]
		}
	}
	if _, ok := out["_percent_str"]; !ok {
		return nil, false
	}
	return out, true
}
