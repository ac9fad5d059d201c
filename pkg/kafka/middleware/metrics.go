package kafka_middleware

import (
	"context"
	"time"

	"loanbook/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_published_total",
			Help: "Total number of Kafka publish attempts by outcome",
		},
		[]string{"topic", "event_type", "status"},
	)
	PublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_publish_duration_seconds",
			Help:    "Kafka publish latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)
)

func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.PublishFunc) error {
		start := time.Now()
		err := next(ctx, msg)

		status := "success"
		if err != nil {
			status = "failure"
		}
		MessagesPublished.WithLabelValues(msg.Topic, msg.EventType(), status).Inc()
		PublishDuration.WithLabelValues(msg.Topic).Observe(time.Since(start).Seconds())
		return err
	}
}
