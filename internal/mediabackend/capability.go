// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mediabackend

import (
	"context"
	"fmt"
	"time"

	"github.com/reelwatch/reelwatch/internal/cache"
)

// defaultCapabilityTTL bounds how long a probed extractor capability is
// trusted before it is re-probed; upstream sites occasionally change what
// they expose (e.g. a channel enabling/disabling its community tab).
const defaultCapabilityTTL = 6 * time.Hour

// CapabilityProbe checks whether backend supports capability for listURL.
// Probing is assumed to cost a real network round-trip, so results are
// cached per (listURL, capability) pair.
type CapabilityProbe func(ctx context.Context, listURL string) (bool, error)

// CapabilityCache memoizes extractor capability probes (e.g. "does this
// extractor support live-stream detection for this URL") so a Backend
// doesn't re-probe on every sync. Backed by cache.Cache, which in
// production is a *cache.BadgerCache so results survive a daemon restart.
type CapabilityCache struct {
	store cache.Cache
	ttl   time.Duration
}

// NewCapabilityCache wraps store with the default TTL.
func NewCapabilityCache(store cache.Cache) *CapabilityCache {
	return &CapabilityCache{store: store, ttl: defaultCapabilityTTL}
}

// Check returns the cached result of probing capability for listURL,
// running probe and caching its result on a miss.
func (c *CapabilityCache) Check(ctx context.Context, listURL, capability string, probe CapabilityProbe) (bool, error) {
	key := capabilityKey(listURL, capability)
	if cached, ok := c.store.Get(key); ok {
		if supported, ok := cached.(bool); ok {
			return supported, nil
		}
	}

	supported, err := probe(ctx, listURL)
	if err != nil {
		return false, err
	}
	c.store.Set(key, supported, c.ttl)
	return supported, nil
}

func capabilityKey(listURL, capability string) string {
	return fmt.Sprintf("capability:%s:%s", capability, listURL)
}
