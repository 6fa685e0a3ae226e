package saga

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdh-travel/booking-saga/outbox"
)

// MemoryStore keeps saga instances in memory, backed by an in-memory
// outbox repository. Save emulates transactional semantics: when an outbox
// append fails, already-appended events are removed and the instance is
// left untouched, so no orphan events survive a failed state change.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	byBooking map[uuid.UUID]string
	outbox    *outbox.MemoryRepository
}

// NewMemoryStore builds a store over the given in-memory outbox repository.
func NewMemoryStore(repository *outbox.MemoryRepository) *MemoryStore {
	if repository == nil {
		repository = outbox.NewMemoryRepository()
	}

	return &MemoryStore{
		instances: make(map[string]*Instance),
		byBooking: make(map[uuid.UUID]string),
		outbox:    repository,
	}
}

// Outbox exposes the backing repository so callers can wire the same one
// into the relay.
func (store *MemoryStore) Outbox() *outbox.MemoryRepository {
	return store.outbox
}

// Create implements Store.
func (store *MemoryStore) Create(ctx context.Context, instance *Instance, events []*outbox.Event) error {
	if instance == nil {
		return ErrInstanceRequired
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if sagaID, ok := store.byBooking[instance.BookingID]; ok {
		if existing := store.instances[sagaID]; existing != nil && !existing.IsTerminal() {
			return ErrSagaActive
		}
	}

	if err := store.appendAll(ctx, events); err != nil {
		return err
	}

	store.instances[instance.SagaID] = instance.Clone()
	store.byBooking[instance.BookingID] = instance.SagaID

	return nil
}

// FindByBookingID implements Store.
func (store *MemoryStore) FindByBookingID(_ context.Context, bookingID uuid.UUID) (*Instance, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	sagaID, ok := store.byBooking[bookingID]
	if !ok {
		return nil, ErrSagaNotFound
	}

	instance, ok := store.instances[sagaID]
	if !ok {
		return nil, ErrSagaNotFound
	}

	return instance.Clone(), nil
}

// Save implements Store.
func (store *MemoryStore) Save(ctx context.Context, instance *Instance, events []*outbox.Event) error {
	if instance == nil {
		return ErrInstanceRequired
	}

	store.mu.Lock()
	defer store.mu.Unlock()

	if _, ok := store.instances[instance.SagaID]; !ok {
		return ErrSagaNotFound
	}

	if err := store.appendAll(ctx, events); err != nil {
		return err
	}

	store.instances[instance.SagaID] = instance.Clone()

	return nil
}

// ListStuck implements Store.
func (store *MemoryStore) ListStuck(_ context.Context, updatedBefore time.Time, limit int) ([]*Instance, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	var stuck []*Instance

	for _, instance := range store.instances {
		if !instance.IsTerminal() && instance.UpdatedAt.Before(updatedBefore) {
			stuck = append(stuck, instance.Clone())
		}
	}

	sort.Slice(stuck, func(i, j int) bool {
		return stuck[i].UpdatedAt.Before(stuck[j].UpdatedAt)
	})

	if limit > 0 && len(stuck) > limit {
		stuck = stuck[:limit]
	}

	return stuck, nil
}

// appendAll writes events and rolls back the ones already written when a
// later append fails.
func (store *MemoryStore) appendAll(ctx context.Context, events []*outbox.Event) error {
	appended := make([]uuid.UUID, 0, len(events))

	for _, event := range events {
		if err := store.outbox.Append(ctx, event); err != nil {
			for _, id := range appended {
				store.outbox.Remove(ctx, id)
			}

			return err
		}

		appended = append(appended, event.ID)
	}

	return nil
}
