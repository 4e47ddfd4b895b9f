// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mediabackend

import (
	"context"
	"testing"
	"time"

	"github.com/reelwatch/reelwatch/internal/progress"
	"github.com/reelwatch/reelwatch/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackend struct {
	extractCalls int
}

func (c *countingBackend) ExtractVideos(ctx context.Context, url, fromDate string, onVideo OnVideoFound, existingIDs map[string]bool) error {
	c.extractCalls++
	return nil
}

func (c *countingBackend) ExtractListMetadata(ctx context.Context, url string) (ListMetadata, error) {
	c.extractCalls++
	return ListMetadata{}, nil
}

func (c *countingBackend) Download(ctx context.Context, video *store.Video, profile *store.Profile, hook progress.Hook) (string, map[string]string, error) {
	return "", nil, nil
}

func (c *countingBackend) EnsureListArtwork(ctx context.Context, name, url string) error { return nil }

func TestRateLimitedBackendDelegatesAfterWaiting(t *testing.T) {
	backend := &countingBackend{}
	limiter := NewProbeLimiter(ProbeLimiterConfig{RatePerSecond: 1000, Burst: 5})
	wrapped := NewRateLimitedBackend(backend, limiter)

	err := wrapped.ExtractVideos(context.Background(), "https://example.com/@c", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.extractCalls)
}

func TestProbeLimiterTracksDistinctListsSeparately(t *testing.T) {
	limiter := NewProbeLimiter(ProbeLimiterConfig{RatePerSecond: 0.001, Burst: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, limiter.Wait(ctx, "https://example.com/@a"))
	require.NoError(t, limiter.Wait(ctx, "https://example.com/@b"), "a distinct list must have its own burst allowance")
}

func TestProbeLimiterBlocksSecondCallWithinBurst(t *testing.T) {
	limiter := NewProbeLimiter(ProbeLimiterConfig{RatePerSecond: 0.001, Burst: 1})

	require.NoError(t, limiter.Wait(context.Background(), "https://example.com/@a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx, "https://example.com/@a")
	assert.Error(t, err, "a second call within the same second should be throttled past the burst allowance")
}
