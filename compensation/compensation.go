// Package compensation decides how a failed saga operation is undone. The
// policy engine classifies the failed operation and its error, picks a
// strategy, and the handler drives retries or hands off to the
// compensation chain.
package compensation

import (
	"errors"
	"strings"
	"time"
)

// Strategy is how a failed operation is handled.
type Strategy string

const (
	// StrategyImmediate compensates right away with no retries.
	StrategyImmediate Strategy = "IMMEDIATE"

	// StrategyRetryThenCompensate retries the operation a few times and
	// compensates only when retries are exhausted.
	StrategyRetryThenCompensate Strategy = "RETRY_THEN_COMPENSATE"

	// StrategyBestEffort attempts compensation but tolerates its failure.
	StrategyBestEffort Strategy = "BEST_EFFORT"

	// StrategyManual requires operator intervention.
	StrategyManual Strategy = "MANUAL"

	// StrategyNone performs no compensation.
	StrategyNone Strategy = "NONE"
)

// ErrManualInterventionRequired is returned when a failure cannot be
// compensated automatically.
var ErrManualInterventionRequired = errors.New("compensation: manual intervention required")

// Context describes one failed operation for the policy engine.
type Context struct {
	SagaID    string
	BookingID string

	// Operation is the action that failed, such as PROCESS_PAYMENT.
	Operation string

	// ErrorCode classifies the failure, such as TIMEOUT or PAYMENT_FAILED.
	ErrorCode string

	// RetryCount is how many times the operation has already been retried.
	RetryCount int

	// StartedAt is when the saga began, used to escalate priority for old
	// sagas.
	StartedAt time.Time
}

const (
	// MaxRetries is the retry budget for RETRY_THEN_COMPENSATE.
	MaxRetries = 3

	// MaxRetryDelay caps the delay between compensation retries.
	MaxRetryDelay = 60 * time.Second

	basePriority = 5
	minPriority  = 1
	maxPriority  = 10
	oldSagaAge   = 30 * time.Minute
	agingSagaAge = 10 * time.Minute
)

// Policy classifies failures and picks compensation strategies. The zero
// value is ready to use.
type Policy struct{}

// DetermineStrategy picks the strategy for a failed operation. Critical
// operations are compensated immediately so money and confirmed inventory
// are released as fast as possible; transient errors on non-critical
// operations get a short retry budget first.
func (Policy) DetermineStrategy(compensation Context) Strategy {
	if isCriticalOperation(compensation.Operation) {
		return StrategyImmediate
	}

	if isRetryableError(compensation.ErrorCode) && compensation.RetryCount < MaxRetries {
		return StrategyRetryThenCompensate
	}

	if isPaymentOperation(compensation.Operation) {
		return StrategyRetryThenCompensate
	}

	if isInventoryOperation(compensation.Operation) {
		return StrategyBestEffort
	}

	return StrategyImmediate
}

// RetryDelay returns the exponential delay before the next retry, capped at
// MaxRetryDelay.
func (Policy) RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	if retryCount > 5 {
		return MaxRetryDelay
	}

	delay := time.Duration(1<<uint(retryCount)) * time.Second
	if delay > MaxRetryDelay {
		return MaxRetryDelay
	}

	return delay
}

// Priority ranks a compensation between 1 and 10 on the broker's scale:
// higher values are more urgent and drain first.
func (Policy) Priority(compensation Context, now time.Time) int {
	priority := basePriority

	if isCriticalOperation(compensation.Operation) {
		priority += 3
	}

	if isPaymentOperation(compensation.Operation) {
		priority += 2
	}

	if !compensation.StartedAt.IsZero() {
		age := now.Sub(compensation.StartedAt)

		switch {
		case age > oldSagaAge:
			priority += 2
		case age > agingSagaAge:
			priority++
		}
	}

	if isCriticalError(compensation.ErrorCode) {
		priority += 2
	}

	if priority > maxPriority {
		return maxPriority
	}

	if priority < minPriority {
		return minPriority
	}

	return priority
}

func isCriticalOperation(operation string) bool {
	return containsAny(operation, "PAYMENT", "CONFIRM")
}

func isPaymentOperation(operation string) bool {
	return containsAny(operation, "PAYMENT", "REFUND")
}

func isInventoryOperation(operation string) bool {
	return containsAny(operation, "RESERVE", "INVENTORY")
}

func isRetryableError(errorCode string) bool {
	return containsAny(errorCode, "TIMEOUT", "CONNECTION", "SERVICE_UNAVAILABLE")
}

func isCriticalError(errorCode string) bool {
	return containsAny(errorCode, "PAYMENT_FAILED", "FRAUD", "SECURITY")
}

func containsAny(value string, markers ...string) bool {
	upper := strings.ToUpper(value)

	for _, marker := range markers {
		if strings.Contains(upper, marker) {
			return true
		}
	}

	return false
}
