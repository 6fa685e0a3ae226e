package saga

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/pdh-travel/booking-saga/saga"

// orchestratorMetrics counts the outcomes a log line alone would hide,
// notably the silently dropped events.
type orchestratorMetrics struct {
	transitions        metric.Int64Counter
	invalidTransitions metric.Int64Counter
	duplicates         metric.Int64Counter
	notFound           metric.Int64Counter
	poison             metric.Int64Counter
	completed          metric.Int64Counter
	cancelled          metric.Int64Counter
	stuck              metric.Int64Counter
}

func newOrchestratorMetrics(provider metric.MeterProvider) (*orchestratorMetrics, error) {
	meter := provider.Meter(meterName)

	metrics := &orchestratorMetrics{}

	var errs []error

	var err error

	metrics.transitions, err = meter.Int64Counter("saga_transitions_total",
		metric.WithDescription("Applied saga state transitions"))
	errs = append(errs, err)

	metrics.invalidTransitions, err = meter.Int64Counter("saga_invalid_transitions_total",
		metric.WithDescription("Events dropped because the transition table forbids them"))
	errs = append(errs, err)

	metrics.duplicates, err = meter.Int64Counter("saga_duplicate_events_total",
		metric.WithDescription("Events suppressed by the deduplication cache"))
	errs = append(errs, err)

	metrics.notFound, err = meter.Int64Counter("saga_events_without_saga_total",
		metric.WithDescription("Events dropped because no saga exists for their booking"))
	errs = append(errs, err)

	metrics.poison, err = meter.Int64Counter("saga_poison_events_total",
		metric.WithDescription("Events dropped after exhausting processing attempts"))
	errs = append(errs, err)

	metrics.completed, err = meter.Int64Counter("saga_completed_total",
		metric.WithDescription("Sagas that reached BOOKING_COMPLETED"))
	errs = append(errs, err)

	metrics.cancelled, err = meter.Int64Counter("saga_cancelled_total",
		metric.WithDescription("Sagas that reached BOOKING_CANCELLED"))
	errs = append(errs, err)

	metrics.stuck, err = meter.Int64Counter("saga_stuck_detected_total",
		metric.WithDescription("Non-terminal sagas picked up by the watchdog sweep"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return metrics, nil
}

func (metrics *orchestratorMetrics) recordTransition(ctx context.Context, from, to State) {
	metrics.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to))))
}

func (metrics *orchestratorMetrics) recordInvalidTransition(ctx context.Context, from State, kind Kind) {
	metrics.invalidTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", string(from)),
		attribute.String("event_kind", string(kind))))
}
