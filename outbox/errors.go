package outbox

import "errors"

var (
	// ErrEventNotFound is returned when an outbox row does not exist.
	ErrEventNotFound = errors.New("outbox: event not found")

	// ErrEventRequired is returned when a nil event is passed to a repository.
	ErrEventRequired = errors.New("outbox: event is required")

	// ErrEventTypeRequired is returned when an event is built without a type.
	ErrEventTypeRequired = errors.New("outbox: event type is required")

	// ErrAggregateRequired is returned when an event is built without an
	// aggregate type or identifier.
	ErrAggregateRequired = errors.New("outbox: aggregate type and id are required")

	// ErrPayloadInvalid is returned when an event payload is not valid JSON.
	ErrPayloadInvalid = errors.New("outbox: payload must be valid JSON")

	// ErrPayloadTooLarge is returned when an event payload exceeds the size cap.
	ErrPayloadTooLarge = errors.New("outbox: payload exceeds maximum size")

	// ErrRepositoryRequired is returned when a relay is built without a repository.
	ErrRepositoryRequired = errors.New("outbox: repository is required")

	// ErrPublisherRequired is returned when a relay is built without a publisher.
	ErrPublisherRequired = errors.New("outbox: publisher is required")

	// ErrRelayRunning is returned when Run is called on a relay that is
	// already running.
	ErrRelayRunning = errors.New("outbox: relay already running")

	// ErrInvalidStatusTransition is returned on a disallowed status change.
	ErrInvalidStatusTransition = errors.New("outbox: invalid status transition")
)
