// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package notifier is the outbound Notifier sink described in §6: the
// core emits typed events on a best-effort basis, and a delivery failure
// is logged, never propagated back to the caller.
package notifier

import (
	"context"

	"github.com/reelwatch/reelwatch/internal/log"
)

// Kind is one of the three reserved event kinds the core emits.
type Kind string

const (
	DownloadCompleted Kind = "DOWNLOAD_COMPLETED"
	VideoDiscovered   Kind = "VIDEO_DISCOVERED"
	SyncCompleted     Kind = "SYNC_COMPLETED"
)

// Event is one outbound notification.
type Event struct {
	Kind    Kind
	Payload map[string]any
}

// Sink delivers one Event to an external system.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// Multiplexer fans an Event out to every registered Sink, swallowing and
// logging individual sink failures so one broken integration never blocks
// another or the caller.
type Multiplexer struct {
	sinks []Sink
}

// NewMultiplexer returns a Multiplexer delivering to every given sink.
func NewMultiplexer(sinks ...Sink) *Multiplexer {
	return &Multiplexer{sinks: sinks}
}

// Notify delivers event to every registered sink. It never returns an
// error: failures are logged and otherwise ignored, per §6.
func (m *Multiplexer) Notify(ctx context.Context, event Event) {
	logger := log.WithComponent("notifier")
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, event); err != nil {
			logger.Warn().Err(err).Str("kind", string(event.Kind)).Msg("notifier sink delivery failed")
		}
	}
}
