package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillvee/mend/classify"
	"github.com/skillvee/mend/errors"
)

func fastPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   1 * time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("connection refused")
		}
		return "ok", nil
	}

	result, err := Do(context.Background(), fastPolicy(3), op, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	calls := 0
	orig := errors.New("Permission denied")
	op := func(ctx context.Context) (int, error) {
		calls++
		return 0, orig
	}

	start := time.Now()
	_, err := Do(context.Background(), Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, op, nil)
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors get exactly one attempt")
	assert.Same(t, orig, err, "original error identity preserved")
	assert.Less(t, time.Since(start), time.Second, "no backoff sleep for non-retryable failures")
}

func TestDoExhaustionReturnsOriginalError(t *testing.T) {
	calls := 0
	orig := errors.New("network unreachable")
	op := func(ctx context.Context) (int, error) {
		calls++
		return 0, orig
	}

	_, err := Do(context.Background(), fastPolicy(3), op, nil)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Same(t, orig, err)
}

func TestDoInvokesOnRetryHook(t *testing.T) {
	var attempts []int
	var categories []classify.Category

	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("upstream timeout")
		}
		return 7, nil
	}

	hook := func(attempt int, ce *classify.CategorizedError, delay time.Duration) {
		attempts = append(attempts, attempt)
		categories = append(categories, ce.Category)
		assert.Greater(t, delay, time.Duration(0))
	}

	result, err := Do(context.Background(), fastPolicy(5), op, hook)
	require.NoError(t, err)
	assert.Equal(t, 7, result)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []classify.Category{classify.CategoryNetwork, classify.CategoryNetwork}, categories)
}

func TestDoCancellationAbortsBackoffSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	op := func(ctx context.Context) (int, error) {
		return 0, errors.New("network flake")
	}

	policy := Policy{MaxAttempts: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, policy, op, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry loop did not abort backoff on cancellation")
	}
}

func TestDoZeroPolicyStillAttemptsOnce(t *testing.T) {
	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	}

	result, err := Do(context.Background(), Policy{}, op, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
}

func TestBackoffDelayBounds(t *testing.T) {
	base := 10 * time.Millisecond
	max := 80 * time.Millisecond

	for attempt := 0; attempt < 12; attempt++ {
		d := BackoffDelay(attempt, base, max)
		expected := base << uint(attempt)
		if expected <= 0 || expected > max {
			expected = max
		}
		assert.GreaterOrEqual(t, d, expected, "attempt %d", attempt)
		// Upper bound: expected + 25% jitter
		assert.LessOrEqual(t, d, expected+expected/4, "attempt %d", attempt)
	}
}

func TestBackoffDelayNonDecreasingExpectation(t *testing.T) {
	base := 10 * time.Millisecond
	max := 10 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 8; attempt++ {
		// Deterministic component only: strip jitter by taking the minimum of many samples
		min := time.Duration(1<<62 - 1)
		for i := 0; i < 50; i++ {
			if d := BackoffDelay(attempt, base, max); d < min {
				min = d
			}
		}
		assert.GreaterOrEqual(t, min, prev)
		prev = min
	}
}

func TestDoContextAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	op := func(ctx context.Context) (int, error) {
		calls++
		return 1, nil
	}

	_, err := Do(ctx, fastPolicy(3), op, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}
