package kafka_middleware

import (
	"context"
	"sync/atomic"
	"time"

	"bargain/pkg/kafka"
)

// Metrics holds Kafka operation counters
type Metrics struct {
	MessagesPublished       atomic.Int64
	MessagesPublishedFailed atomic.Int64
	PublishDurationTotal    atomic.Int64 // nanoseconds

	MessagesConsumed       atomic.Int64
	MessagesConsumedFailed atomic.Int64
	ConsumeDurationTotal   atomic.Int64 // nanoseconds
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AvgPublishDuration() time.Duration {
	published := m.MessagesPublished.Load()
	if published == 0 {
		return 0
	}
	return time.Duration(m.PublishDurationTotal.Load() / published)
}

func (m *Metrics) AvgConsumeDuration() time.Duration {
	consumed := m.MessagesConsumed.Load()
	if consumed == 0 {
		return 0
	}
	return time.Duration(m.ConsumeDurationTotal.Load() / consumed)
}

// Snapshot returns the counters as a JSON-friendly map.
func (m *Metrics) Snapshot() map[string]any {
	return map[string]any{
		"published":        m.MessagesPublished.Load(),
		"published_failed": m.MessagesPublishedFailed.Load(),
		"avg_publish_ms":   m.AvgPublishDuration().Milliseconds(),
		"consumed":         m.MessagesConsumed.Load(),
		"consumed_failed":  m.MessagesConsumedFailed.Load(),
		"avg_consume_ms":   m.AvgConsumeDuration().Milliseconds(),
	}
}

func MetricsProducerMiddleware(m *Metrics) kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)
		m.PublishDurationTotal.Add(int64(time.Since(start)))
		if err != nil {
			m.MessagesPublishedFailed.Add(1)
		} else {
			m.MessagesPublished.Add(1)
		}
		return err
	}
}

func MetricsConsumerMiddleware(m *Metrics) kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		m.ConsumeDurationTotal.Add(int64(time.Since(start)))
		if err != nil {
			m.MessagesConsumedFailed.Add(1)
		} else {
			m.MessagesConsumed.Add(1)
		}
		return err
	}
}
