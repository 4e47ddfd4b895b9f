// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package progress is the video_id → download-progress mapping described in
// §4.8: a small TTL cache plus a hook translating the media backend's raw
// progress dicts into typed Snapshots. The default backend keeps state in
// an in-process map; when reelwatch is configured with a Redis URL,
// NewRedis backs the same Tracker API with Redis instead, so progress
// survives a daemon restart and is visible across replicas.
package progress

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// defaultTTL is how long a Snapshot survives without being refreshed
// before it is evicted.
const defaultTTL = 300 * time.Second

// Status is a Snapshot's lifecycle stage.
type Status string

const (
	StatusDownloading Status = "downloading"
	StatusDone        Status = "done"
	StatusError       Status = "error"
)

// Snapshot is the current state of one in-flight download.
type Snapshot struct {
	VideoID int64
	Status  Status
	Percent float64
	Speed   string
	ETA     string
	Error   string
}

// backend is the storage strategy behind a Tracker: an in-process map
// (memoryBackend) or Redis (redisBackend). Both apply the mutation under
// their own lock/round-trip and refresh the entry's TTL on every update.
type backend interface {
	update(videoID int64, apply func(*Snapshot))
	get(videoID int64) (Snapshot, bool)
}

type entry struct {
	snapshot   Snapshot
	lastUpdate time.Time
}

// memoryBackend is a thread-safe video_id → Snapshot map with TTL eviction.
type memoryBackend struct {
	mu      sync.Mutex
	entries map[int64]*entry
	ttl     time.Duration
}

func newMemoryBackend(ttl time.Duration) *memoryBackend {
	return &memoryBackend{entries: make(map[int64]*entry), ttl: ttl}
}

func (b *memoryBackend) update(videoID int64, apply func(*Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[videoID]
	if !ok {
		e = &entry{snapshot: Snapshot{VideoID: videoID}}
		b.entries[videoID] = e
	}
	apply(&e.snapshot)
	e.lastUpdate = time.Now()
}

func (b *memoryBackend) get(videoID int64) (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictLocked()

	e, ok := b.entries[videoID]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot, true
}

func (b *memoryBackend) evictLocked() {
	cutoff := time.Now().Add(-b.ttl)
	for id, e := range b.entries {
		if e.lastUpdate.Before(cutoff) {
			delete(b.entries, id)
		}
	}
}

// Tracker is the video_id → Snapshot map used to drive SSE progress
// updates, backed by either an in-process map or Redis.
type Tracker struct {
	backend backend
}

// New returns a Tracker backed by an in-process map, evicting entries
// after defaultTTL of inactivity. This is the fallback used whenever no
// Redis URL is configured.
func New() *Tracker {
	return &Tracker{backend: newMemoryBackend(defaultTTL)}
}

// Update merges fields into videoID's Snapshot, creating it if absent, and
// refreshes the entry's TTL clock.
func (t *Tracker) Update(videoID int64, apply func(*Snapshot)) {
	t.backend.update(videoID, apply)
}

// Get returns a copy of videoID's current Snapshot, evicting stale entries
// along the way (memory backend only; Redis expires keys on its own).
func (t *Tracker) Get(videoID int64) (Snapshot, bool) {
	return t.backend.get(videoID)
}

// MarkDone records a terminal success state.
func (t *Tracker) MarkDone(videoID int64) {
	t.Update(videoID, func(s *Snapshot) {
		s.Status = StatusDone
		s.Percent = 100
		s.Error = ""
	})
}

// MarkError records a terminal failure state.
func (t *Tracker) MarkError(videoID int64, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	t.Update(videoID, func(s *Snapshot) {
		s.Status = StatusError
		s.Error = msg
	})
}

// Hook is the callable a MediaBackend invokes with its raw progress dict
// on every tick.
type Hook func(raw map[string]string)

// CreateHook returns a Hook that translates a backend's raw progress
// fields (_percent_str, _speed_str, eta, status) into an Update call for
// videoID.
func (t *Tracker) CreateHook(videoID int64) Hook {
	return func(raw map[string]string) {
		t.Update(videoID, func(s *Snapshot) {
			s.Status = StatusDownloading
			s.Percent = parsePercent(raw["_percent_str"])
			s.Speed = raw["_speed_str"]
			s.ETA = raw["eta"]
			if status := raw["status"]; status != "" {
				s.Status = Status(status)
			}
		})
	}
}

// parsePercent defensively parses a backend-supplied percent string. It
// tolerates a trailing '%', surrounding whitespace, and embedded ANSI
// escape sequences; any unparsable input yields 0.0 rather than an error,
// since progress reporting must never abort a download.
func parsePercent(raw string) float64 {
	s := stripANSI(raw)
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// stripANSI removes CSI-style escape sequences (ESC '[' ... letter) that
// some extractor backends embed in their progress text.
func stripANSI(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			i += 2
			for i < len(s) && !isANSITerminator(s[i]) {
				i++
			}
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isANSITerminator(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
