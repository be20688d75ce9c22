// Package retry provides a generic bounded-retry driver with exponential
// backoff and jitter, built on classify for retryability decisions.
//
// Each Do call is self-contained: no state is shared between invocations, so
// any number of operations can be retried concurrently. The backoff sleep
// between attempts honors context cancellation, so shutdown or a caller
// deadline interrupts an in-progress wait instead of riding it out.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/skillvee/mend/classify"
)

// Policy configures one retry loop. It is plain configuration, never persisted.
type Policy struct {
	MaxAttempts int           // total attempts including the first (min 1)
	BaseDelay   time.Duration // delay before the second attempt
	MaxDelay    time.Duration // backoff ceiling before jitter
}

// DefaultPolicy returns the policy the platform shipped with: three attempts,
// 1s base delay, 30s ceiling.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// normalized clamps nonsensical values so a zero-valued Policy still attempts once
func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// OnRetry is an optional observability hook invoked before each backoff sleep.
// attempt is the 1-based number of the attempt that just failed.
type OnRetry func(attempt int, ce *classify.CategorizedError, delay time.Duration)

// Do runs op up to policy.MaxAttempts times. On each failure the error is
// classified; non-retryable failures propagate immediately without further
// attempts or delay. When retries are exhausted the original underlying error
// propagates unchanged, so callers see the same error identity they would
// have seen without retry wrapping.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error), onRetry OnRetry) (T, error) {
	var zero T
	policy = policy.normalized()

	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		ce := classify.Classify(err)
		if !ce.Retryable {
			return zero, err
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}

		delay := BackoffDelay(attempt, policy.BaseDelay, policy.MaxDelay)
		if onRetry != nil {
			onRetry(attempt+1, ce, delay)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// BackoffDelay computes the sleep before attempt n+1:
// min(base * 2^attempt, max) plus up to 25% random jitter. The jitter spreads
// out retry storms when many callers fail against the same dependency at once.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = 1 * time.Second
	}
	if max < base {
		max = base
	}
	// Cap the shift so the multiplication cannot overflow
	if attempt > 30 {
		attempt = 30
	}

	delay := base << uint(attempt)
	if delay <= 0 || delay > max {
		delay = max
	}

	jitter := time.Duration(rand.Int63n(int64(delay)/4 + 1))
	return delay + jitter
}
