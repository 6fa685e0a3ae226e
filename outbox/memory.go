package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository used by tests and by the
// in-memory saga store. It applies the same status rules as the durable
// implementation.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*Event

	appendErr error
}

// NewMemoryRepository builds an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		events: make(map[uuid.UUID]*Event),
	}
}

// FailNextAppend makes the next Append call return err. Tests use it to
// exercise transactional rollback in callers.
func (repository *MemoryRepository) FailNextAppend(err error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	repository.appendErr = err
}

// Append implements Repository.
func (repository *MemoryRepository) Append(_ context.Context, event *Event) error {
	if event == nil {
		return ErrEventRequired
	}

	repository.mu.Lock()
	defer repository.mu.Unlock()

	if repository.appendErr != nil {
		err := repository.appendErr
		repository.appendErr = nil

		return err
	}

	clone := *event
	repository.events[event.ID] = &clone

	return nil
}

// ListPending implements Repository.
func (repository *MemoryRepository) ListPending(_ context.Context, limit int) ([]*Event, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	var pending []*Event

	for _, event := range repository.events {
		if event.Status == StatusPending {
			clone := *event
			pending = append(pending, &clone)
		}
	}

	sortForDispatch(pending)

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	return pending, nil
}

// ResetForRetry implements Repository.
func (repository *MemoryRepository) ResetForRetry(_ context.Context, failedBefore time.Time, limit int) ([]*Event, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	var eligible []*Event

	for _, event := range repository.events {
		if event.Status == StatusFailed && !event.AttemptsExhausted() && event.UpdatedAt.Before(failedBefore) {
			eligible = append(eligible, event)
		}
	}

	sortForDispatch(eligible)

	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}

	now := time.Now().UTC()
	reset := make([]*Event, 0, len(eligible))

	for _, event := range eligible {
		event.Status = StatusPending
		event.UpdatedAt = now

		clone := *event
		reset = append(reset, &clone)
	}

	return reset, nil
}

// MarkPublished implements Repository.
func (repository *MemoryRepository) MarkPublished(_ context.Context, id uuid.UUID, publishedAt time.Time) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	event, ok := repository.events[id]
	if !ok {
		return ErrEventNotFound
	}

	if !event.Status.CanTransitionTo(StatusPublished) {
		return ErrInvalidStatusTransition
	}

	event.Status = StatusPublished
	event.PublishedAt = &publishedAt
	event.UpdatedAt = time.Now().UTC()

	return nil
}

// MarkFailed implements Repository.
func (repository *MemoryRepository) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	event, ok := repository.events[id]
	if !ok {
		return ErrEventNotFound
	}

	if !event.Status.CanTransitionTo(StatusFailed) {
		return ErrInvalidStatusTransition
	}

	event.Status = StatusFailed
	event.Attempts++
	event.LastError = lastError
	event.UpdatedAt = time.Now().UTC()

	return nil
}

// MarkInvalid implements Repository.
func (repository *MemoryRepository) MarkInvalid(_ context.Context, id uuid.UUID, lastError string) error {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	event, ok := repository.events[id]
	if !ok {
		return ErrEventNotFound
	}

	if !event.Status.CanTransitionTo(StatusInvalid) {
		return ErrInvalidStatusTransition
	}

	event.Status = StatusInvalid
	event.LastError = lastError
	event.UpdatedAt = time.Now().UTC()

	return nil
}

// ExpireOverdue implements Repository.
func (repository *MemoryRepository) ExpireOverdue(_ context.Context, now time.Time, limit int) (int, error) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	expired := 0

	for _, event := range repository.events {
		if limit > 0 && expired >= limit {
			break
		}

		if (event.Status == StatusPending || event.Status == StatusFailed) && event.IsExpired(now) {
			event.Status = StatusFailed
			event.Attempts = event.MaxAttempts
			event.LastError = "expired before publish"
			event.UpdatedAt = now
			expired++
		}
	}

	return expired, nil
}

// GetByID implements Repository.
func (repository *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*Event, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	event, ok := repository.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}

	clone := *event

	return &clone, nil
}

// Stats implements Repository.
func (repository *MemoryRepository) Stats(_ context.Context) (Stats, error) {
	repository.mu.RLock()
	defer repository.mu.RUnlock()

	var stats Stats

	for _, event := range repository.events {
		switch event.Status {
		case StatusPending:
			stats.UnprocessedCount++
		case StatusFailed:
			stats.FailedCount++
		}
	}

	return stats, nil
}

// Remove deletes an event. It exists for tests; the relay never deletes.
func (repository *MemoryRepository) Remove(_ context.Context, id uuid.UUID) {
	repository.mu.Lock()
	defer repository.mu.Unlock()

	delete(repository.events, id)
}

func sortForDispatch(events []*Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Priority != events[j].Priority {
			return events[i].Priority > events[j].Priority
		}

		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
}
