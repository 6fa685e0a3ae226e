// Package dedup provides the idempotency ledger consulted before every event
// processing attempt. It records processed inbound event IDs, self-originated
// events (listen-to-yourself pattern), and per-event processing attempts used
// to cap poison-message reprocessing.
//
// Two interchangeable backends exist: a Redis-backed ledger for
// multi-instance deployments and an in-process ledger for single-instance
// fallback.
package dedup

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a processed marker is retained before expiry.
const DefaultTTL = 24 * time.Hour

var (
	// ErrEventIDRequired is returned when an empty event ID is supplied.
	ErrEventIDRequired = errors.New("event id is required")
	// ErrServiceNameRequired is returned when a self-event call omits the service name.
	ErrServiceNameRequired = errors.New("service name is required")
	// ErrClientRequired is returned when a backend is constructed without its client.
	ErrClientRequired = errors.New("dedup backend client is required")
)

// Deduplicator is the idempotency ledger contract.
type Deduplicator interface {
	// IsProcessed reports whether the inbound event was already handled.
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	// MarkProcessed records the inbound event as handled for ttl.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
	// IsSelfProcessed reports whether a self-published event was already consumed.
	IsSelfProcessed(ctx context.Context, serviceName, eventID string) (bool, error)
	// MarkSelfProcessed records a self-published event as consumed for ttl.
	MarkSelfProcessed(ctx context.Context, serviceName, eventID string, ttl time.Duration) error
	// ProcessingAttempts returns how many times handling of the event started.
	ProcessingAttempts(ctx context.Context, eventID string) (int, error)
	// IncrementAttempts atomically bumps the attempt count and returns it.
	IncrementAttempts(ctx context.Context, eventID string) (int, error)
	// ShouldAttemptProcessing reports whether the attempt budget still allows handling.
	ShouldAttemptProcessing(ctx context.Context, eventID string, maxAttempts int) (bool, error)
	// Remove drops the processed marker, for tests or manual reprocessing.
	Remove(ctx context.Context, eventID string) error
	// RemoveSelf drops a self-event marker, for tests or manual reprocessing.
	RemoveSelf(ctx context.Context, serviceName, eventID string) error
}

func processedKey(eventID string) string {
	return "event:processed:" + eventID
}

func selfProcessedKey(serviceName, eventID string) string {
	return "self-event:processed:" + serviceName + ":" + eventID
}

func attemptsKey(eventID string) string {
	return "event:attempts:" + eventID
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}

	return ttl
}
