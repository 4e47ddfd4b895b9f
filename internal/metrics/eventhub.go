// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventHubDropsTotal counts every message an EventHub subscriber missed
	// because its per-subscriber queue was full.
	EventHubDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelwatch_eventhub_drop_total",
		Help: "Total number of EventHub message drops (backpressure)",
	}, []string{"topic"})

	// EventHubDroppedTotal breaks the same drops down by topic and reason.
	EventHubDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelwatch_eventhub_dropped_total",
		Help: "Total number of EventHub message drops by topic and reason",
	}, []string{"topic", "reason"})
)

// IncEventHubDrop records a dropped EventHub message for the given topic,
// defaulting to the "full" reason (queue at capacity).
func IncEventHubDrop(topic string) {
	IncEventHubDropReason(topic, "full")
}

// IncEventHubDropReason records a dropped EventHub message with a concrete reason.
func IncEventHubDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	EventHubDropsTotal.WithLabelValues(topic).Inc()
	EventHubDroppedTotal.WithLabelValues(topic, reason).Inc()
}
