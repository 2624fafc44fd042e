package review

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// RetryPolicy is an explicit backoff description: attempt count, base
// delay range, and the growth multiplier applied per attempt.
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// Delay computes the sleep preceding the given 1-based attempt: a value
// uniform in [MinDelay, MaxDelay], scaled by Multiplier^(attempt-1).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	base := RandomDuration(p.MinDelay, p.MaxDelay)
	scale := 1.0
	for i := 1; i < attempt; i++ {
		scale *= p.Multiplier
	}
	return time.Duration(float64(base) * scale)
}

// SleepFunc suspends for d, honoring ctx cancellation.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc, a context-aware timer wait.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Retry runs op up to policy.MaxAttempts times, sleeping the policy
// delay before each attempt. shouldRetry gates continuation; a
// non-retryable error returns immediately. The last error is returned
// when every attempt fails. A non-positive MaxAttempts never invokes
// op and reports exhaustion, so callers cannot mistake an empty retry
// budget for success.
func Retry(
	ctx context.Context,
	policy RetryPolicy,
	sleep SleepFunc,
	shouldRetry func(error) bool,
	op func(attempt int) error,
) error {
	if policy.MaxAttempts <= 0 {
		return fmt.Errorf("retry budget of %d permits no attempts", policy.MaxAttempts)
	}
	if sleep == nil {
		sleep = Sleep
	}
	var last error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if err := sleep(ctx, policy.Delay(attempt)); err != nil {
			return err
		}
		last = op(attempt)
		if last == nil {
			return nil
		}
		if shouldRetry != nil && !shouldRetry(last) {
			return last
		}
	}
	return last
}

// RandomDuration draws a uniform value in [min, max]. Bounds are
// normalized when reversed; equal bounds return min.
func RandomDuration(min, max time.Duration) time.Duration {
	if max < min {
		min, max = max, min
	}
	span := max - min
	if span <= 0 {
		return min
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(span)+1))
	if err != nil {
		return min + span/2
	}
	return min + time.Duration(n.Int64())
}
