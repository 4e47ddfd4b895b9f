// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package eventhub is the in-process topic-based pub/sub fan-out. Topics
// carry coalesced change-notification tokens, not delivered payloads: a
// subscriber that misses a token because its queue filled is expected to
// refetch current state from the Store, not reconstruct history from the
// stream.
package eventhub

import (
	"fmt"
	"sync"

	"github.com/reelwatch/reelwatch/internal/metrics"
)

// queueSize bounds each subscriber's FIFO. Once full, Publish drops the
// token for that subscriber rather than blocking the publisher.
const queueSize = 100

// Event is one notification token delivered on a topic.
type Event struct {
	Topic string
	Data  any
}

// Hub is the reserved-topic, bounded-FIFO event fan-out described in §4.2.
// Zero value is not usable; construct with New.
type Hub struct {
	mu   sync.RWMutex
	subs map[string][]*subscription
}

// New returns an empty Hub.
func New() *Hub {
	return &Hub{subs: make(map[string][]*subscription)}
}

// Subscription is a live handle returned by Subscribe.
type Subscription interface {
	// C returns the read-only notification channel.
	C() <-chan Event
	// Close unsubscribes and garbage-collects the topic if it is now empty.
	Close()
}

type subscription struct {
	hub   *Hub
	topic string
	ch    chan Event
}

func (s *subscription) C() <-chan Event { return s.ch }

func (s *subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	lst := s.hub.subs[s.topic]
	out := lst[:0]
	for _, sub := range lst {
		if sub != s {
			out = append(out, sub)
		}
	}
	if len(out) == 0 {
		delete(s.hub.subs, s.topic)
	} else {
		s.hub.subs[s.topic] = out
	}
	close(s.ch)
}

// Subscribe registers a new bounded-FIFO subscriber on topic.
func (h *Hub) Subscribe(topic string) Subscription {
	sub := &subscription{hub: h, topic: topic, ch: make(chan Event, queueSize)}

	h.mu.Lock()
	h.subs[topic] = append(h.subs[topic], sub)
	h.mu.Unlock()

	return sub
}

// Publish fans out data on topic to every current subscriber. It never
// blocks: a subscriber whose queue is full silently drops the token, and
// the drop is recorded so operators can see backpressure building.
func (h *Hub) Publish(topic string, data any) {
	h.mu.RLock()
	subs := append([]*subscription(nil), h.subs[topic]...)
	h.mu.RUnlock()

	evt := Event{Topic: topic, Data: data}
	for _, sub := range subs {
		select {
		case sub.ch <- evt:
		default:
			metrics.IncEventHubDrop(topic)
		}
	}
}

// SubscriberCount reports how many live subscriptions a topic has, for
// diagnostics and tests. It never triggers garbage collection.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// TopicTasks is the reserved topic for any Task status transition.
const TopicTasks = "tasks"

// TopicTaskStats is the reserved topic for Task counter changes.
const TopicTaskStats = "tasks:stats"

// TopicLists is the reserved topic for List insert/update/delete.
const TopicLists = "lists"

// TopicHistory is the reserved topic for any audit entry.
const TopicHistory = "history"

// TopicProgress is the reserved firehose topic for progress ticks.
const TopicProgress = "progress"

// ListVideosTopic is the per-list reserved topic for Video insert/update.
func ListVideosTopic(listID int64) string {
	return fmt.Sprintf("list:%d:videos", listID)
}

// ListTasksTopic is the per-list reserved topic for Task changes referencing
// the list or one of its videos.
func ListTasksTopic(listID int64) string {
	return fmt.Sprintf("list:%d:tasks", listID)
}

// ListHistoryTopic is the per-list reserved topic for audit entries tied to
// the list.
func ListHistoryTopic(listID int64) string {
	return fmt.Sprintf("list:%d:history", listID)
}
