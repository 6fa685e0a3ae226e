// Package backoff provides exponential delay helpers shared by the outbox
// relay and the compensation engine.
package backoff

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// maxShift bounds the exponent so the multiplier never overflows int64.
const maxShift = 62

// Exponential returns base * 2^attempt with overflow protection.
// Negative attempts are treated as attempt 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return base * time.Duration(multiplier)
}

// ExponentialCapped returns Exponential(base, attempt) clamped to cap.
func ExponentialCapped(base time.Duration, attempt int, cap time.Duration) time.Duration {
	delay := Exponential(base, attempt)
	if cap > 0 && delay > cap {
		return cap
	}

	return delay
}

// FullJitter returns a random duration in [0, delay), the "full jitter"
// strategy. Returns 0 for zero or negative delays.
func FullJitter(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}

	return time.Duration(rand.Int63n(int64(delay))) // #nosec G404 -- jitter does not need crypto randomness
}

// ExponentialWithJitter returns a random duration in [0, base * 2^attempt).
func ExponentialWithJitter(base time.Duration, attempt int) time.Duration {
	return FullJitter(Exponential(base, attempt))
}

// Sleep waits for duration but aborts when ctx is cancelled.
// Returns immediately for zero or negative durations.
func Sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return nil
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff sleep interrupted: %w", ctx.Err())
	}
}
