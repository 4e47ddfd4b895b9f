// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package stream builds lazy server-sent-event streams over an EventHub
// topic and a cheap, idempotent fetch function, per §4.9.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/reelwatch/reelwatch/internal/eventhub"
	"github.com/reelwatch/reelwatch/internal/log"
)

// FetchFunc produces the current value to emit as a data event. It must be
// cheap and idempotent: Facade calls it once up front and again on every
// wakeup token, and a slow fetch stalls that one subscriber's stream, not
// the EventHub.
type FetchFunc func(ctx context.Context) (any, error)

// Facade constructs an update stream for one (topic, fetch) pair.
type Facade struct {
	hub              *eventhub.Hub
	topic            string
	fetch            FetchFunc
	heartbeatInterval time.Duration
}

// New returns a Facade. heartbeatInterval defaults to 15s if zero.
func New(hub *eventhub.Hub, topic string, fetch FetchFunc, heartbeatInterval time.Duration) *Facade {
	if heartbeatInterval <= 0 {
		heartbeatInterval = 15 * time.Second
	}
	return &Facade{hub: hub, topic: topic, fetch: fetch, heartbeatInterval: heartbeatInterval}
}

// ServeHTTP writes a line-delimited `data: <json>\n\n` event stream with
// `: heartbeat\n\n` comment keep-alives, until the request context is
// cancelled (client disconnect).
func (f *Facade) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// subscriberID exists only for log correlation: it lets an operator
	// grep one connection's lifecycle (connect, drops, disconnect) out of
	// a daemon serving many concurrent streams on the same topic.
	subscriberID := uuid.New()
	logger := log.WithComponent("stream").With().Str("subscriber_id", subscriberID.String()).Str("topic", f.topic).Logger()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()

	if err := f.emit(w, ctx); err != nil {
		logger.Warn().Err(err).Msg("initial fetch failed")
	}
	flusher.Flush()

	sub := f.hub.Subscribe(f.topic)
	logger.Debug().Msg("subscriber connected")
	defer func() {
		sub.Close()
		logger.Debug().Msg("subscriber disconnected")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-sub.C():
			if !ok {
				return
			}
			if err := f.emit(w, ctx); err != nil {
				logger.Warn().Err(err).Msg("fetch failed after wakeup")
				continue
			}
			flusher.Flush()
		case <-time.After(f.heartbeatInterval):
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (f *Facade) emit(w http.ResponseWriter, ctx context.Context) error {
	value, err := f.fetch(ctx)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", encoded)
	return err
}
