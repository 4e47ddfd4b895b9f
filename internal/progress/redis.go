// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisBackend stores Snapshots in Redis, keyed by video ID, relying on a
// Redis key TTL for eviction instead of the memory backend's sweep.
type redisBackend struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func newRedisBackend(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *redisBackend {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisBackend{client: client, ttl: ttl, logger: logger}
}

// NewRedis returns a Tracker whose Snapshots live in Redis under client,
// for deployments where progress must survive a daemon restart or be
// visible to more than one reelwatch process. A connection or
// serialization error on any one call degrades that call to a no-op read
// (miss) or a dropped write — a progress read is advisory, never load
// bearing for a download's correctness.
func NewRedis(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *Tracker {
	return &Tracker{backend: newRedisBackend(client, ttl, logger)}
}

func progressKey(videoID int64) string {
	return fmt.Sprintf("reelwatch:progress:%d", videoID)
}

func (b *redisBackend) update(videoID int64, apply func(*Snapshot)) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	snap, _ := b.get(videoID)
	if snap.VideoID == 0 {
		snap = Snapshot{VideoID: videoID}
	}
	apply(&snap)

	data, err := json.Marshal(snap)
	if err != nil {
		b.logger.Warn().Err(err).Int64("video_id", videoID).Msg("progress: failed to marshal snapshot")
		return
	}
	if err := b.client.Set(ctx, progressKey(videoID), data, b.ttl).Err(); err != nil {
		b.logger.Warn().Err(err).Int64("video_id", videoID).Msg("progress: redis set failed")
	}
}

func (b *redisBackend) get(videoID int64) (Snapshot, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := b.client.Get(ctx, progressKey(videoID)).Bytes()
	if err == redis.Nil {
		return Snapshot{}, false
	}
	if err != nil {
		b.logger.Warn().Err(err).Int64("video_id", videoID).Msg("progress: redis get failed")
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		b.logger.Warn().Err(err).Int64("video_id", videoID).Msg("progress: failed to unmarshal snapshot")
		return Snapshot{}, false
	}
	return snap, true
}
