package compensation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdh-travel/booking-saga/backoff"
)

// Executor performs the domain side of a compensation. The saga layer
// implements it by emitting cancellation commands.
type Executor interface {
	// Retry re-attempts the failed operation.
	Retry(ctx context.Context, compensation Context) error

	// Compensate undoes the operation's effects.
	Compensate(ctx context.Context, compensation Context) error
}

// Handler applies the strategy the policy picked for a failure.
type Handler struct {
	policy  Policy
	logger  *zap.Logger
	delayFn func(retryCount int) time.Duration
}

// HandlerOption customizes a handler.
type HandlerOption func(*Handler)

// WithDelayFunc replaces the retry delay schedule.
func WithDelayFunc(fn func(retryCount int) time.Duration) HandlerOption {
	return func(handler *Handler) {
		if fn != nil {
			handler.delayFn = fn
		}
	}
}

// NewHandler builds a handler.
func NewHandler(logger *zap.Logger, opts ...HandlerOption) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := &Handler{logger: logger}
	handler.delayFn = handler.policy.RetryDelay

	for _, opt := range opts {
		opt(handler)
	}

	return handler
}

// Execute runs the compensation for one failure. It blocks through retry
// delays, honoring context cancellation, so callers that need asynchrony
// run it in their own goroutine.
func (handler *Handler) Execute(ctx context.Context, compensation Context, executor Executor) error {
	strategy := handler.policy.DetermineStrategy(compensation)

	handler.logger.Info("handling failed operation",
		zap.String("saga_id", compensation.SagaID),
		zap.String("operation", compensation.Operation),
		zap.String("error_code", compensation.ErrorCode),
		zap.String("strategy", string(strategy)))

	switch strategy {
	case StrategyImmediate:
		return handler.compensate(ctx, compensation, executor)

	case StrategyRetryThenCompensate:
		if err := handler.retryOperation(ctx, compensation, executor); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return err
		}

		return handler.compensate(ctx, compensation, executor)

	case StrategyBestEffort:
		if err := executor.Compensate(ctx, compensation); err != nil {
			handler.logger.Warn("best-effort compensation failed",
				zap.String("saga_id", compensation.SagaID),
				zap.String("operation", compensation.Operation),
				zap.Error(err))
		}

		return nil

	case StrategyManual:
		handler.logger.Error("compensation requires manual intervention",
			zap.String("saga_id", compensation.SagaID),
			zap.String("operation", compensation.Operation),
			zap.String("error_code", compensation.ErrorCode))

		return ErrManualInterventionRequired

	case StrategyNone:
		return nil
	}

	return fmt.Errorf("compensation: unknown strategy %q", strategy)
}

func (handler *Handler) retryOperation(ctx context.Context, compensation Context, executor Executor) error {
	var lastErr error

	for attempt := compensation.RetryCount; attempt < MaxRetries; attempt++ {
		delay := handler.delayFn(attempt)

		handler.logger.Info("retrying failed operation",
			zap.String("saga_id", compensation.SagaID),
			zap.String("operation", compensation.Operation),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay))

		if err := backoff.Sleep(ctx, delay); err != nil {
			return err
		}

		retryCtx := compensation
		retryCtx.RetryCount = attempt

		if err := executor.Retry(ctx, retryCtx); err != nil {
			lastErr = err

			continue
		}

		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("compensation: retry budget exhausted for %s", compensation.Operation)
	}

	return lastErr
}

func (handler *Handler) compensate(ctx context.Context, compensation Context, executor Executor) error {
	if err := executor.Compensate(ctx, compensation); err != nil {
		return fmt.Errorf("compensating %s for saga %s: %w",
			compensation.Operation, compensation.SagaID, err)
	}

	return nil
}
