package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Stats summarizes the outbox backlog for monitoring.
type Stats struct {
	// UnprocessedCount is the number of pending events.
	UnprocessedCount int64

	// FailedCount is the number of events whose last attempt failed,
	// including events whose attempts are exhausted.
	FailedCount int64
}

// Repository persists outbox events. Implementations must make Append
// participate in the caller's transaction when one is supplied, so the
// event row commits or rolls back together with the state change that
// produced it.
type Repository interface {
	// Append stores a new pending event.
	Append(ctx context.Context, event *Event) error

	// ListPending returns up to limit pending events, most urgent first,
	// equal priorities in creation order.
	ListPending(ctx context.Context, limit int) ([]*Event, error)

	// ResetForRetry flips up to limit failed events back to pending and
	// returns them. Only events that failed before the cutoff and still
	// have attempts left are eligible.
	ResetForRetry(ctx context.Context, failedBefore time.Time, limit int) ([]*Event, error)

	// MarkPublished records a successful publish.
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error

	// MarkFailed records a failed publish attempt, incrementing the
	// attempt counter and storing the sanitized error.
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error

	// MarkInvalid records a permanent rejection. Invalid events are never
	// retried.
	MarkInvalid(ctx context.Context, id uuid.UUID, lastError string) error

	// ExpireOverdue marks unpublished events past their deadline as failed
	// with no attempts remaining, and returns how many were expired.
	// Expired events are kept for inspection, never deleted.
	ExpireOverdue(ctx context.Context, now time.Time, limit int) (int, error)

	// GetByID fetches a single event.
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)

	// Stats reports backlog counters.
	Stats(ctx context.Context) (Stats, error)
}
