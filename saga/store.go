package saga

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pdh-travel/booking-saga/outbox"
)

// Store persists saga instances. Create and Save take the outbox events
// produced by the same state change and must commit or roll back the
// instance and the events as one unit; that atomicity is what makes the
// outbox pattern reliable.
type Store interface {
	// Create stores a new instance. It fails with ErrSagaActive when the
	// booking already has a non-terminal saga.
	Create(ctx context.Context, instance *Instance, events []*outbox.Event) error

	// FindByBookingID returns the latest saga for a booking, terminal or
	// not, or ErrSagaNotFound.
	FindByBookingID(ctx context.Context, bookingID uuid.UUID) (*Instance, error)

	// Save persists a state change together with its outbox events.
	Save(ctx context.Context, instance *Instance, events []*outbox.Event) error

	// ListStuck returns up to limit non-terminal instances not updated
	// since the cutoff, for the watchdog sweep.
	ListStuck(ctx context.Context, updatedBefore time.Time, limit int) ([]*Instance, error)
}
