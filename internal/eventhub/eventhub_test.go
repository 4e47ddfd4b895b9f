// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package eventhub

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/reelwatch/reelwatch/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	require.NoError(t, counter.Write(metric))
	return metric.GetCounter().GetValue()
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicLists)
	defer sub.Close()

	h.Publish(TopicLists, 42)

	select {
	case evt := <-sub.C():
		assert.Equal(t, TopicLists, evt.Topic)
		assert.Equal(t, 42, evt.Data)
	case <-time.After(time.Second):
		t.Fatal("expected event, got none")
	}
}

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	h := New()
	subA := h.Subscribe(TopicTasks)
	subB := h.Subscribe(TopicTasks)
	defer subA.Close()
	defer subB.Close()

	h.Publish(TopicTasks, "task-1")

	for _, sub := range []Subscription{subA, subB} {
		select {
		case evt := <-sub.C():
			assert.Equal(t, "task-1", evt.Data)
		case <-time.After(time.Second):
			t.Fatal("expected event on every subscriber")
		}
	}
}

func TestPublishToUnrelatedTopicDoesNotDeliver(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicLists)
	defer sub.Close()

	h.Publish(TopicTasks, "irrelevant")

	select {
	case <-sub.C():
		t.Fatal("did not expect an event for an unrelated topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseUnsubscribesAndGarbageCollectsEmptyTopic(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicHistory)
	assert.Equal(t, 1, h.SubscriberCount(TopicHistory))

	sub.Close()
	assert.Equal(t, 0, h.SubscriberCount(TopicHistory))

	_, ok := <-sub.C()
	assert.False(t, ok, "closed subscription channel should be drained and closed")
}

func TestPublishDropsWhenSubscriberQueueIsFull(t *testing.T) {
	h := New()
	sub := h.Subscribe(TopicProgress)
	defer sub.Close()

	initial := getCounterValue(t, metrics.EventHubDropsTotal.WithLabelValues(TopicProgress))

	for i := 0; i < queueSize+5; i++ {
		h.Publish(TopicProgress, i)
	}

	final := getCounterValue(t, metrics.EventHubDropsTotal.WithLabelValues(TopicProgress))
	assert.Greater(t, final, initial, "expected drop counter to increase once the bounded queue filled")

	drained := 0
	for {
		select {
		case <-sub.C():
			drained++
		default:
			assert.Equal(t, queueSize, drained)
			return
		}
	}
}

func TestPerListTopicHelpersAreStable(t *testing.T) {
	assert.Equal(t, "list:7:videos", ListVideosTopic(7))
	assert.Equal(t, "list:7:tasks", ListTasksTopic(7))
	assert.Equal(t, "list:7:history", ListHistoryTopic(7))
}
