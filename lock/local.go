package lock

import (
	"context"
	"sync"
)

// Local is an in-process keyed mutex manager. It serializes callers within a
// single instance only; multi-instance deployments must use the Redsync
// manager instead.
type Local struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	mu   sync.Mutex
	refs int
}

var _ Manager = (*Local)(nil)

// NewLocal creates an in-process lock manager.
func NewLocal() *Local {
	return &Local{entries: map[string]*localEntry{}}
}

// WithLock implements Manager. Entries are reference counted so the key map
// does not grow with every saga ever seen.
func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrKeyRequired
	}

	if fn == nil {
		return ErrFnRequired
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	entry := l.acquire(key)
	entry.mu.Lock()

	defer func() {
		entry.mu.Unlock()
		l.release(key)
	}()

	return fn(ctx)
}

func (l *Local) acquire(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[key]
	if !exists {
		entry = &localEntry{}
		l.entries[key] = entry
	}

	entry.refs++

	return entry
}

func (l *Local) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[key]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
}
