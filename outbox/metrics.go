package outbox

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pdh-travel/booking-saga/outbox"

type relayMetrics struct {
	published   metric.Int64Counter
	failed      metric.Int64Counter
	invalid     metric.Int64Counter
	expired     metric.Int64Counter
	queueDepth  metric.Int64Gauge
	publishTime metric.Float64Histogram
}

func newRelayMetrics(provider metric.MeterProvider) (*relayMetrics, error) {
	meter := provider.Meter(meterName)

	metrics := &relayMetrics{}

	var errs []error

	var err error

	metrics.published, err = meter.Int64Counter("outbox_events_published_total",
		metric.WithDescription("Outbox events successfully published to the broker"))
	errs = append(errs, err)

	metrics.failed, err = meter.Int64Counter("outbox_events_failed_total",
		metric.WithDescription("Outbox publish attempts that failed"))
	errs = append(errs, err)

	metrics.invalid, err = meter.Int64Counter("outbox_events_invalid_total",
		metric.WithDescription("Outbox events rejected permanently by the broker"))
	errs = append(errs, err)

	metrics.expired, err = meter.Int64Counter("outbox_events_expired_total",
		metric.WithDescription("Outbox events expired before they could be published"))
	errs = append(errs, err)

	metrics.queueDepth, err = meter.Int64Gauge("outbox_queue_depth",
		metric.WithDescription("Pending outbox events observed at the last tick"))
	errs = append(errs, err)

	metrics.publishTime, err = meter.Float64Histogram("outbox_publish_duration_ms",
		metric.WithDescription("Latency of a single broker publish"),
		metric.WithUnit("ms"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return metrics, nil
}

func (metrics *relayMetrics) recordPublished(ctx context.Context, topic string) {
	metrics.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (metrics *relayMetrics) recordFailed(ctx context.Context, topic string) {
	metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (metrics *relayMetrics) recordInvalid(ctx context.Context, topic string) {
	metrics.invalid.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (metrics *relayMetrics) recordExpired(ctx context.Context, count int) {
	metrics.expired.Add(ctx, int64(count))
}

func (metrics *relayMetrics) recordQueueDepth(ctx context.Context, depth int64) {
	metrics.queueDepth.Record(ctx, depth)
}

func (metrics *relayMetrics) recordPublishTime(ctx context.Context, millis float64) {
	metrics.publishTime.Record(ctx, millis)
}
