package outbox

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// RelayConfig tunes the outbox relay loop.
type RelayConfig struct {
	// DispatchInterval is how often the relay polls for pending events.
	DispatchInterval time.Duration

	// BatchSize is the maximum number of events drained per tick.
	BatchSize int

	// MaxFailedPerBatch caps how many failed events are reset for retry in
	// a single tick, so a burst of failures cannot starve fresh events.
	MaxFailedPerBatch int

	// RetryWindow is how long a failed event waits before it becomes
	// eligible for another batch.
	RetryWindow time.Duration

	// PublishMaxAttempts is the number of in-process publish tries per
	// event per tick, before the event is marked failed.
	PublishMaxAttempts int

	// PublishBackoff is the base backoff between in-process publish tries.
	PublishBackoff time.Duration

	// CleanupInterval is how often the expiry sweep runs.
	CleanupInterval time.Duration

	// CleanupBatchSize caps how many events one sweep expires.
	CleanupBatchSize int

	// MeterProvider supplies relay metrics instruments.
	MeterProvider metric.MeterProvider
}

// DefaultRelayConfig returns the relay defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		DispatchInterval:   2 * time.Second,
		BatchSize:          50,
		MaxFailedPerBatch:  25,
		RetryWindow:        5 * time.Minute,
		PublishMaxAttempts: 3,
		PublishBackoff:     200 * time.Millisecond,
		CleanupInterval:    time.Minute,
		CleanupBatchSize:   100,
		MeterProvider:      noop.NewMeterProvider(),
	}
}

func (config *RelayConfig) normalize() {
	defaults := DefaultRelayConfig()

	if config.DispatchInterval <= 0 {
		config.DispatchInterval = defaults.DispatchInterval
	}

	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	if config.MaxFailedPerBatch <= 0 || config.MaxFailedPerBatch > config.BatchSize {
		config.MaxFailedPerBatch = min(defaults.MaxFailedPerBatch, config.BatchSize)
	}

	if config.RetryWindow <= 0 {
		config.RetryWindow = defaults.RetryWindow
	}

	if config.PublishMaxAttempts <= 0 {
		config.PublishMaxAttempts = defaults.PublishMaxAttempts
	}

	if config.PublishBackoff <= 0 {
		config.PublishBackoff = defaults.PublishBackoff
	}

	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	if config.CleanupBatchSize <= 0 {
		config.CleanupBatchSize = defaults.CleanupBatchSize
	}

	if config.MeterProvider == nil {
		config.MeterProvider = defaults.MeterProvider
	}
}

// RelayOption customizes a relay.
type RelayOption func(*Relay)

// WithDispatchInterval sets the polling interval.
func WithDispatchInterval(interval time.Duration) RelayOption {
	return func(relay *Relay) {
		relay.config.DispatchInterval = interval
	}
}

// WithBatchSize sets the per-tick batch size.
func WithBatchSize(size int) RelayOption {
	return func(relay *Relay) {
		relay.config.BatchSize = size
	}
}

// WithMaxFailedPerBatch caps retried events per tick.
func WithMaxFailedPerBatch(limit int) RelayOption {
	return func(relay *Relay) {
		relay.config.MaxFailedPerBatch = limit
	}
}

// WithRetryWindow sets the failed-event cool-down.
func WithRetryWindow(window time.Duration) RelayOption {
	return func(relay *Relay) {
		relay.config.RetryWindow = window
	}
}

// WithPublishRetries sets the in-process publish attempts and base backoff.
func WithPublishRetries(attempts int, backoff time.Duration) RelayOption {
	return func(relay *Relay) {
		relay.config.PublishMaxAttempts = attempts
		relay.config.PublishBackoff = backoff
	}
}

// WithCleanup sets the expiry sweep cadence and batch size.
func WithCleanup(interval time.Duration, batchSize int) RelayOption {
	return func(relay *Relay) {
		relay.config.CleanupInterval = interval
		relay.config.CleanupBatchSize = batchSize
	}
}

// WithRetryClassifier replaces the default publish error classifier.
func WithRetryClassifier(classifier RetryClassifier) RelayOption {
	return func(relay *Relay) {
		if classifier != nil {
			relay.classifier = classifier
		}
	}
}

// WithMeterProvider sets the provider for relay metrics.
func WithMeterProvider(provider metric.MeterProvider) RelayOption {
	return func(relay *Relay) {
		relay.config.MeterProvider = provider
	}
}
