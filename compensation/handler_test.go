//go:build unit

package compensation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingExecutor struct {
	mu          sync.Mutex
	retries     int
	compensates int
	retryErrs   []error
	compErr     error
}

func (executor *recordingExecutor) Retry(_ context.Context, _ Context) error {
	executor.mu.Lock()
	defer executor.mu.Unlock()

	executor.retries++

	if len(executor.retryErrs) > 0 {
		err := executor.retryErrs[0]
		executor.retryErrs = executor.retryErrs[1:]

		return err
	}

	return nil
}

func (executor *recordingExecutor) Compensate(_ context.Context, _ Context) error {
	executor.mu.Lock()
	defer executor.mu.Unlock()

	executor.compensates++

	return executor.compErr
}

func newFastHandler(t *testing.T) *Handler {
	t.Helper()

	return NewHandler(zap.NewNop(), WithDelayFunc(func(int) time.Duration {
		return time.Millisecond
	}))
}

func TestExecuteImmediate(t *testing.T) {
	t.Parallel()

	handler := newFastHandler(t)
	executor := &recordingExecutor{}

	err := handler.Execute(context.Background(), Context{
		SagaID:    "saga-1",
		Operation: "PROCESS_PAYMENT",
		ErrorCode: "TIMEOUT",
	}, executor)
	require.NoError(t, err)
	require.Equal(t, 1, executor.compensates)
	require.Zero(t, executor.retries)
}

func TestExecuteRetrySucceeds(t *testing.T) {
	t.Parallel()

	handler := newFastHandler(t)
	executor := &recordingExecutor{retryErrs: []error{errors.New("still down")}}

	err := handler.Execute(context.Background(), Context{
		SagaID:    "saga-1",
		Operation: "CANCEL_HOTEL_RESERVATION",
		ErrorCode: "TIMEOUT",
	}, executor)
	require.NoError(t, err)
	require.Equal(t, 2, executor.retries)
	require.Zero(t, executor.compensates)
}

func TestExecuteRetryExhaustedThenCompensates(t *testing.T) {
	t.Parallel()

	handler := newFastHandler(t)
	down := errors.New("still down")
	executor := &recordingExecutor{retryErrs: []error{down, down, down}}

	err := handler.Execute(context.Background(), Context{
		SagaID:    "saga-1",
		Operation: "CANCEL_HOTEL_RESERVATION",
		ErrorCode: "TIMEOUT",
	}, executor)
	require.NoError(t, err)
	require.Equal(t, MaxRetries, executor.retries)
	require.Equal(t, 1, executor.compensates)
}

func TestExecuteRetryHonorsCancellation(t *testing.T) {
	t.Parallel()

	handler := NewHandler(zap.NewNop(), WithDelayFunc(func(int) time.Duration {
		return time.Hour
	}))
	executor := &recordingExecutor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handler.Execute(ctx, Context{
		SagaID:    "saga-1",
		Operation: "CANCEL_HOTEL_RESERVATION",
		ErrorCode: "TIMEOUT",
	}, executor)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, executor.retries)
	require.Zero(t, executor.compensates)
}

func TestExecuteBestEffortSwallowsFailure(t *testing.T) {
	t.Parallel()

	handler := newFastHandler(t)
	executor := &recordingExecutor{compErr: errors.New("inventory gone")}

	err := handler.Execute(context.Background(), Context{
		SagaID:     "saga-1",
		Operation:  "RESERVE_HOTEL",
		ErrorCode:  "ROOM_GONE",
		RetryCount: MaxRetries,
	}, executor)
	require.NoError(t, err)
	require.Equal(t, 1, executor.compensates)
}

func TestExecuteImmediateSurfacesFailure(t *testing.T) {
	t.Parallel()

	handler := newFastHandler(t)
	boom := errors.New("downstream rejected cancel")
	executor := &recordingExecutor{compErr: boom}

	err := handler.Execute(context.Background(), Context{
		SagaID:    "saga-1",
		Operation: "PROCESS_PAYMENT",
		ErrorCode: "PAYMENT_FAILED",
	}, executor)
	require.ErrorIs(t, err, boom)
}
