package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/compensation"
)

// Watchdog periodically sweeps non-terminal sagas that stopped moving,
// usually because an expected downstream event never arrived, and routes
// them into the compensation policy engine as timeouts. SAGA_TIMEOUT
// classifies as retryable, so a stuck saga first gets its pending command
// re-dispatched before the chain gives up and compensates.
type Watchdog struct {
	orchestrator *Orchestrator
	interval     time.Duration
	stuckAfter   time.Duration
	batchSize    int
	logger       *zap.Logger
}

// WatchdogOption customizes a watchdog.
type WatchdogOption func(*Watchdog)

// WithSweepInterval sets how often the sweep runs.
func WithSweepInterval(interval time.Duration) WatchdogOption {
	return func(watchdog *Watchdog) {
		if interval > 0 {
			watchdog.interval = interval
		}
	}
}

// WithStuckThreshold sets how long a saga may sit unchanged before the
// sweep picks it up.
func WithStuckThreshold(threshold time.Duration) WatchdogOption {
	return func(watchdog *Watchdog) {
		if threshold > 0 {
			watchdog.stuckAfter = threshold
		}
	}
}

// WithSweepBatchSize caps sagas handled per sweep.
func WithSweepBatchSize(size int) WatchdogOption {
	return func(watchdog *Watchdog) {
		if size > 0 {
			watchdog.batchSize = size
		}
	}
}

// NewWatchdog builds a watchdog over an orchestrator.
func NewWatchdog(orchestrator *Orchestrator, logger *zap.Logger, opts ...WatchdogOption) (*Watchdog, error) {
	if orchestrator == nil {
		return nil, ErrStoreRequired
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	watchdog := &Watchdog{
		orchestrator: orchestrator,
		interval:     time.Minute,
		stuckAfter:   10 * time.Minute,
		batchSize:    50,
		logger:       logger,
	}

	for _, opt := range opts {
		opt(watchdog)
	}

	return watchdog, nil
}

// Run sweeps until the context is cancelled.
func (watchdog *Watchdog) Run(ctx context.Context) error {
	ticker := time.NewTicker(watchdog.interval)
	defer ticker.Stop()

	watchdog.logger.Info("saga watchdog started",
		zap.Duration("interval", watchdog.interval),
		zap.Duration("stuck_after", watchdog.stuckAfter))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			watchdog.SweepOnce(ctx)
		}
	}
}

// SweepOnce handles one batch of stuck sagas and returns how many it found.
func (watchdog *Watchdog) SweepOnce(ctx context.Context) int {
	orchestrator := watchdog.orchestrator
	cutoff := time.Now().UTC().Add(-watchdog.stuckAfter)

	stuck, err := orchestrator.store.ListStuck(ctx, cutoff, watchdog.batchSize)
	if err != nil {
		watchdog.logger.Error("listing stuck sagas failed", zap.Error(err))

		return 0
	}

	for _, stale := range stuck {
		if err := watchdog.escalate(ctx, stale.BookingID, cutoff); err != nil {
			watchdog.logger.Error("escalating stuck saga failed",
				zap.String("saga_id", stale.SagaID),
				zap.String("booking_id", stale.BookingID.String()),
				zap.Error(err))
		}
	}

	return len(stuck)
}

// escalate re-checks one stuck saga under its lock, persists the sweep
// counter so repeated timeouts exhaust the retry budget and fall through to
// compensation, and hands the timeout to the policy engine.
func (watchdog *Watchdog) escalate(ctx context.Context, bookingID uuid.UUID, cutoff time.Time) error {
	orchestrator := watchdog.orchestrator

	return orchestrator.withSagaLock(ctx, bookingID, func(ctx context.Context) error {
		instance, err := orchestrator.store.FindByBookingID(ctx, bookingID)
		if err != nil {
			return err
		}

		// the saga may have moved between the listing and the lock
		if instance.IsTerminal() || !instance.UpdatedAt.Before(cutoff) {
			return nil
		}

		orchestrator.metrics.stuck.Add(ctx, 1)

		watchdog.logger.Warn("stuck saga detected",
			zap.String("saga_id", instance.SagaID),
			zap.String("booking_id", instance.BookingID.String()),
			zap.String("state", string(instance.CurrentState)),
			zap.Int("timeout_retries", instance.TimeoutRetries),
			zap.Time("last_update", instance.UpdatedAt))

		comp := compensation.Context{
			SagaID:     instance.SagaID,
			BookingID:  instance.BookingID.String(),
			Operation:  pendingActionFor(instance.CurrentState),
			ErrorCode:  "SAGA_TIMEOUT",
			RetryCount: instance.TimeoutRetries,
			StartedAt:  instance.CreatedAt,
		}

		instance.TimeoutRetries++
		instance.UpdatedAt = time.Now().UTC()

		if err := orchestrator.store.Save(ctx, instance, nil); err != nil {
			return fmt.Errorf("recording timeout sweep for saga %s: %w", instance.SagaID, err)
		}

		orchestrator.dispatchCompensation(ctx, comp, "saga timed out waiting for downstream event")

		return nil
	})
}
