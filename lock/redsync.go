package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/internal/nilcheck"
)

const (
	defaultLockExpiry     = 30 * time.Second
	defaultLockTries      = 32
	defaultLockRetryDelay = 50 * time.Millisecond
)

// Redsync distributes per-saga locks across instances using the RedLock
// algorithm, so two consumers on different nodes can never mutate the same
// saga concurrently.
type Redsync struct {
	rs     *redsync.Redsync
	logger *zap.Logger

	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

var _ Manager = (*Redsync)(nil)

// RedsyncOption mutates Redsync construction.
type RedsyncOption func(*Redsync)

// WithExpiry overrides how long a held lock survives a crashed holder.
func WithExpiry(expiry time.Duration) RedsyncOption {
	return func(r *Redsync) {
		if expiry > 0 {
			r.expiry = expiry
		}
	}
}

// WithTries overrides how many acquisition attempts are made before giving up.
func WithTries(tries int) RedsyncOption {
	return func(r *Redsync) {
		if tries > 0 {
			r.tries = tries
		}
	}
}

// WithRetryDelay overrides the delay between acquisition attempts.
func WithRetryDelay(delay time.Duration) RedsyncOption {
	return func(r *Redsync) {
		if delay > 0 {
			r.retryDelay = delay
		}
	}
}

// NewRedsync creates a Redis-backed distributed lock manager.
func NewRedsync(client goredislib.UniversalClient, logger *zap.Logger, opts ...RedsyncOption) (*Redsync, error) {
	if err := nilcheck.Require(client, ErrClientRequired); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	manager := &Redsync{
		rs:         redsync.New(goredis.NewPool(client)),
		logger:     logger,
		expiry:     defaultLockExpiry,
		tries:      defaultLockTries,
		retryDelay: defaultLockRetryDelay,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}

	return manager, nil
}

// WithLock implements Manager.
func (r *Redsync) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if key == "" {
		return ErrKeyRequired
	}

	if fn == nil {
		return ErrFnRequired
	}

	mutex := r.rs.NewMutex(
		"lock:"+key,
		redsync.WithExpiry(r.expiry),
		redsync.WithTries(r.tries),
		redsync.WithRetryDelay(r.retryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, err)
	}

	defer func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			r.logger.Warn("failed to release distributed lock",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}()

	return fn(ctx)
}
