package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetryPolicyDelayScaling(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{
		MaxAttempts: 3,
		MinDelay:    100 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		Multiplier:  1.5,
	}

	require.Equal(t, 100*time.Millisecond, p.Delay(1))
	require.Equal(t, 150*time.Millisecond, p.Delay(2))
	require.Equal(t, 225*time.Millisecond, p.Delay(3))
}

func TestRetrySucceedsMidway(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 3, Multiplier: 1.5}
	var sleeps []time.Duration
	sleep := func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	attempts := 0
	err := Retry(context.Background(), p, sleep, nil, func(attempt int) error {
		attempts = attempt
		if attempt < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, attempts)
	require.Len(t, sleeps, 2, "each attempt is preceded by a sleep")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 2, Multiplier: 1.5}
	wantErr := errors.New("still blocked")

	calls := 0
	err := Retry(context.Background(), p, func(context.Context, time.Duration) error { return nil },
		func(error) bool { return true },
		func(int) error {
			calls++
			return wantErr
		})
	require.ErrorIs(t, err, wantErr)
	require.Equal(t, 2, calls)
}

func TestRetryZeroAttemptsIsExhaustion(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 0}, nil, nil,
		func(int) error {
			calls++
			return nil
		})
	require.Error(t, err, "an empty retry budget must not report success")
	require.Zero(t, calls)
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	t.Parallel()

	p := RetryPolicy{MaxAttempts: 5, Multiplier: 1.5}
	fatal := errors.New("fatal")

	calls := 0
	err := Retry(context.Background(), p, func(context.Context, time.Duration) error { return nil },
		func(err error) bool { return !errors.Is(err, fatal) },
		func(int) error {
			calls++
			return fatal
		})
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestRetryHonorsContextDuringSleep(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RetryPolicy{MaxAttempts: 3, MinDelay: time.Hour, MaxDelay: time.Hour, Multiplier: 1.5}
	err := Retry(ctx, p, nil, nil, func(int) error { return errors.New("never runs") })
	require.ErrorIs(t, err, context.Canceled)
}

func TestRandomDurationBounds(t *testing.T) {
	t.Parallel()

	for range 50 {
		d := RandomDuration(10*time.Millisecond, 20*time.Millisecond)
		require.GreaterOrEqual(t, d, 10*time.Millisecond)
		require.LessOrEqual(t, d, 20*time.Millisecond)
	}
	require.Equal(t, 5*time.Millisecond, RandomDuration(5*time.Millisecond, 5*time.Millisecond))
}
