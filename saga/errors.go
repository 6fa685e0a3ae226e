package saga

import "errors"

var (
	// ErrSagaNotFound is returned when no saga exists for a booking.
	ErrSagaNotFound = errors.New("saga: not found")

	// ErrSagaActive is returned when a second saga is started for a
	// booking that already has a non-terminal one.
	ErrSagaActive = errors.New("saga: booking already has an active saga")

	// ErrSagaTerminal is returned when an operation needs a live saga but
	// the saga has already finished.
	ErrSagaTerminal = errors.New("saga: already in a terminal state")

	// ErrInvalidTransition is returned on a state change the transition
	// table forbids.
	ErrInvalidTransition = errors.New("saga: invalid state transition")

	// ErrUnknownEventKind is returned for event types outside the enum.
	ErrUnknownEventKind = errors.New("saga: unknown event kind")

	// ErrEventIDRequired is returned for events without an id.
	ErrEventIDRequired = errors.New("saga: event id is required")

	// ErrBookingIDRequired is returned for events without a booking id.
	ErrBookingIDRequired = errors.New("saga: booking id is required")

	// ErrInstanceRequired is returned when a nil instance is persisted.
	ErrInstanceRequired = errors.New("saga: instance is required")

	// ErrStoreRequired is returned when an orchestrator is built without a store.
	ErrStoreRequired = errors.New("saga: store is required")

	// ErrDeduplicatorRequired is returned when an orchestrator is built
	// without a deduplicator.
	ErrDeduplicatorRequired = errors.New("saga: deduplicator is required")

	// ErrLockManagerRequired is returned when an orchestrator is built
	// without a lock manager.
	ErrLockManagerRequired = errors.New("saga: lock manager is required")

	// ErrBookingServiceRequired is returned when an orchestrator is built
	// without a booking service.
	ErrBookingServiceRequired = errors.New("saga: booking service is required")
)
