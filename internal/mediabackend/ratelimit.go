// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mediabackend

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// ProbeLimiterConfig bounds how often metadata/extraction calls may be
// issued against a single List's URL, so a burst of manual syncs or a
// misbehaving Scheduler tick doesn't hammer the upstream site.
type ProbeLimiterConfig struct {
	RatePerSecond float64
	Burst         int
}

// DefaultProbeLimiterConfig allows a gentle one call every two seconds
// per list, with room for a small burst.
func DefaultProbeLimiterConfig() ProbeLimiterConfig {
	return ProbeLimiterConfig{RatePerSecond: 0.5, Burst: 2}
}

// ProbeLimiter rate-limits extraction calls per list URL.
type ProbeLimiter struct {
	cfg ProbeLimiterConfig

	mu      sync.Mutex
	perList map[string]*rate.Limiter
}

// NewProbeLimiter returns a ProbeLimiter using cfg for every list it sees.
func NewProbeLimiter(cfg ProbeLimiterConfig) *ProbeLimiter {
	return &ProbeLimiter{cfg: cfg, perList: make(map[string]*rate.Limiter)}
}

// Wait blocks until listURL is allowed to make another extraction call, or
// ctx is cancelled.
func (p *ProbeLimiter) Wait(ctx context.Context, listURL string) error {
	return p.limiterFor(listURL).Wait(ctx)
}

func (p *ProbeLimiter) limiterFor(listURL string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.perList[listURL]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.cfg.RatePerSecond), p.cfg.Burst)
		p.perList[listURL] = l
	}
	return l
}

// RateLimitedBackend wraps a Backend, applying a ProbeLimiter to every
// extraction call before delegating. Download is left unlimited: a
// download's own HTTP client handles its own backoff.
type RateLimitedBackend struct {
	Backend
	limiter *ProbeLimiter
}

// NewRateLimitedBackend wraps backend with limiter.
func NewRateLimitedBackend(backend Backend, limiter *ProbeLimiter) *RateLimitedBackend {
	return &RateLimitedBackend{Backend: backend, limiter: limiter}
}

// ExtractVideos waits for the per-list limiter before delegating.
func (b *RateLimitedBackend) ExtractVideos(ctx context.Context, url, fromDate string, onVideo OnVideoFound, existingIDs map[string]bool) error {
	if err := b.limiter.Wait(ctx, url); err != nil {
		return err
	}
	return b.Backend.ExtractVideos(ctx, url, fromDate, onVideo, existingIDs)
}

// ExtractListMetadata waits for the per-list limiter before delegating.
func (b *RateLimitedBackend) ExtractListMetadata(ctx context.Context, url string) (ListMetadata, error) {
	if err := b.limiter.Wait(ctx, url); err != nil {
		return ListMetadata{}, err
	}
	return b.Backend.ExtractListMetadata(ctx, url)
}
