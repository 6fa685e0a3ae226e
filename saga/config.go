package saga

import (
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Config tunes the orchestrator.
type Config struct {
	// ServiceName namespaces self-event deduplication keys.
	ServiceName string

	// DedupTTL is how long processed-event markers live.
	DedupTTL time.Duration

	// MaxProcessingAttempts caps redeliveries of one event before it is
	// treated as poison and dropped.
	MaxProcessingAttempts int

	// LockTimeout bounds how long event handling may hold the per-saga lock.
	LockTimeout time.Duration

	// MeterProvider supplies orchestrator metrics instruments.
	MeterProvider metric.MeterProvider
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		ServiceName:           "booking-saga",
		DedupTTL:              24 * time.Hour,
		MaxProcessingAttempts: 5,
		LockTimeout:           30 * time.Second,
		MeterProvider:         noop.NewMeterProvider(),
	}
}

func (config *Config) normalize() {
	defaults := DefaultConfig()

	if config.ServiceName == "" {
		config.ServiceName = defaults.ServiceName
	}

	if config.DedupTTL <= 0 {
		config.DedupTTL = defaults.DedupTTL
	}

	if config.MaxProcessingAttempts <= 0 {
		config.MaxProcessingAttempts = defaults.MaxProcessingAttempts
	}

	if config.LockTimeout <= 0 {
		config.LockTimeout = defaults.LockTimeout
	}

	if config.MeterProvider == nil {
		config.MeterProvider = defaults.MeterProvider
	}
}

// Option customizes an orchestrator.
type Option func(*Orchestrator)

// WithServiceName sets the self-event deduplication namespace.
func WithServiceName(name string) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.config.ServiceName = name
	}
}

// WithDedupTTL sets the processed-marker lifetime.
func WithDedupTTL(ttl time.Duration) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.config.DedupTTL = ttl
	}
}

// WithMaxProcessingAttempts sets the poison-message cap.
func WithMaxProcessingAttempts(attempts int) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.config.MaxProcessingAttempts = attempts
	}
}

// WithLockTimeout bounds per-saga lock holds.
func WithLockTimeout(timeout time.Duration) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.config.LockTimeout = timeout
	}
}

// WithMeterProvider sets the provider for orchestrator metrics.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.config.MeterProvider = provider
	}
}

// WithCommandSender enables the best-effort direct publish path alongside
// the durable outbox path.
func WithCommandSender(sender CommandSender) Option {
	return func(orchestrator *Orchestrator) {
		orchestrator.sender = sender
	}
}

// WithCompensationHandler replaces the default compensation handler.
func WithCompensationHandler(handler CompensationHandler) Option {
	return func(orchestrator *Orchestrator) {
		if handler != nil {
			orchestrator.compensator = handler
		}
	}
}
