// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueRunningTasks reports the number of tasks currently leased and
	// executing, per task type ("sync", "download").
	QueueRunningTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reelwatch_queue_running_tasks",
		Help: "Number of tasks currently leased and executing",
	}, []string{"task_type"})

	// QueuePendingTasks is registered for the number of tasks waiting to be
	// leased; no code in this repository sets it.
	QueuePendingTasks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "reelwatch_queue_pending_tasks",
		Help: "Number of tasks waiting to be leased",
	}, []string{"task_type"})

	// QueueLeaseLatency is registered for the time between a task becoming
	// eligible for dispatch and the dispatcher leasing it; no code in this
	// repository observes into it.
	QueueLeaseLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelwatch_queue_lease_latency_seconds",
		Help:    "Latency between a task becoming eligible and being leased by the dispatcher",
		Buckets: prometheus.DefBuckets,
	}, []string{"task_type"})

	// QueueTaskOutcomesTotal counts completed task executions by terminal outcome.
	QueueTaskOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelwatch_queue_task_outcomes_total",
		Help: "Total number of task executions by terminal outcome",
	}, []string{"task_type", "outcome"})
)
