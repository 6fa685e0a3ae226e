// Package lock serializes per-saga state mutation. The orchestrator wraps
// every mutation of one saga in Manager.WithLock, guaranteeing at most one
// in-flight mutation per saga ID even when duplicate or out-of-order events
// for the same saga arrive concurrently.
package lock

import (
	"context"
	"errors"
)

var (
	// ErrKeyRequired is returned when an empty lock key is supplied.
	ErrKeyRequired = errors.New("lock key is required")
	// ErrFnRequired is returned when a nil function is passed to WithLock.
	ErrFnRequired = errors.New("lock function is required")
	// ErrNotAcquired is returned when the lock could not be obtained.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrClientRequired is returned when a distributed manager is built
	// without a Redis client.
	ErrClientRequired = errors.New("redis client is required")
)

// Manager runs fn while holding an exclusive lock on key.
type Manager interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
