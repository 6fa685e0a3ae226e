package outbox

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultMaxAttempts is the publish attempt cap applied to new events.
	DefaultMaxAttempts = 10

	// DefaultTTL is how long an unpublished event stays eligible for
	// dispatch before the cleanup sweep expires it.
	DefaultTTL = 24 * time.Hour

	// MaxPayloadSize caps the serialized payload of a single event.
	MaxPayloadSize = 256 * 1024

	// Priority uses the broker's scale: higher values are more urgent and
	// drain first. The same number becomes the AMQP message priority.

	// PriorityFailure is assigned to failure and cancellation events so the
	// relay drains them first.
	PriorityFailure = 10

	// PriorityCompletion is assigned to completion events.
	PriorityCompletion = 9

	// PriorityDefault is assigned to everything else.
	PriorityDefault = 5
)

// Event is a single outbox row. It carries enough routing context for the
// relay to publish it without consulting any other table: the destination
// topic, a partition key for ordered delivery, and the saga and booking
// identifiers it belongs to.
type Event struct {
	ID            uuid.UUID       `json:"id"`
	EventType     string          `json:"event_type"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	SagaID        string          `json:"saga_id,omitempty"`
	BookingID     uuid.UUID       `json:"booking_id,omitempty"`
	Topic         string          `json:"topic"`
	PartitionKey  string          `json:"partition_key,omitempty"`
	Priority      int             `json:"priority"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"max_attempts"`
	LastError     string          `json:"last_error,omitempty"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// EventOption customizes a new outbox event.
type EventOption func(*Event)

// WithEventID overrides the generated event identifier. The saga layer uses
// this to share one idempotency key between the outbox row and the
// best-effort direct publish of the same command.
func WithEventID(id uuid.UUID) EventOption {
	return func(event *Event) {
		event.ID = id
	}
}

// WithSaga attaches the owning saga and booking to the event.
func WithSaga(sagaID string, bookingID uuid.UUID) EventOption {
	return func(event *Event) {
		event.SagaID = sagaID
		event.BookingID = bookingID
	}
}

// WithTopic sets the destination topic.
func WithTopic(topic string) EventOption {
	return func(event *Event) {
		event.Topic = topic
	}
}

// WithPartitionKey sets the partition key used for ordered delivery.
func WithPartitionKey(key string) EventOption {
	return func(event *Event) {
		event.PartitionKey = key
	}
}

// WithPriority overrides the priority derived from the event type.
func WithPriority(priority int) EventOption {
	return func(event *Event) {
		event.Priority = priority
	}
}

// WithMaxAttempts overrides the publish attempt cap.
func WithMaxAttempts(max int) EventOption {
	return func(event *Event) {
		event.MaxAttempts = max
	}
}

// WithTTL overrides how long the event stays eligible for dispatch.
func WithTTL(ttl time.Duration) EventOption {
	return func(event *Event) {
		event.ExpiresAt = event.CreatedAt.Add(ttl)
	}
}

// NewEvent builds a pending outbox event. The payload must be valid JSON.
func NewEvent(eventType, aggregateType, aggregateID string, payload []byte, opts ...EventOption) (*Event, error) {
	if strings.TrimSpace(eventType) == "" {
		return nil, ErrEventTypeRequired
	}

	if strings.TrimSpace(aggregateType) == "" || strings.TrimSpace(aggregateID) == "" {
		return nil, ErrAggregateRequired
	}

	if len(payload) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	if !json.Valid(payload) {
		return nil, ErrPayloadInvalid
	}

	now := time.Now().UTC()

	event := &Event{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Priority:      PriorityFor(eventType),
		Payload:       json.RawMessage(payload),
		Status:        StatusPending,
		MaxAttempts:   DefaultMaxAttempts,
		ExpiresAt:     now.Add(DefaultTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for _, opt := range opts {
		opt(event)
	}

	return event, nil
}

// PriorityFor derives a dispatch priority from the event type. Failures and
// cancellations outrank completions, which outrank everything else.
func PriorityFor(eventType string) int {
	upper := strings.ToUpper(eventType)

	switch {
	case strings.Contains(upper, "FAILED") || strings.Contains(upper, "CANCELLED"):
		return PriorityFailure
	case strings.Contains(upper, "COMPLETED"):
		return PriorityCompletion
	default:
		return PriorityDefault
	}
}

// IsExpired reports whether the event is past its dispatch deadline.
func (event *Event) IsExpired(now time.Time) bool {
	return !event.ExpiresAt.IsZero() && now.After(event.ExpiresAt)
}

// AttemptsExhausted reports whether the event has used up its publish budget.
func (event *Event) AttemptsExhausted() bool {
	return event.MaxAttempts > 0 && event.Attempts >= event.MaxAttempts
}
