package archiver

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"time"
)

// RetryAttempt describes a failed attempt that is about to be retried.
type RetryAttempt struct {
	Attempt     int
	MaxAttempts int
	Err         error
}

// RetryPolicy bounds how often an operation is attempted. The zero Backoff
// retries immediately.
type RetryPolicy struct {
	MaxAttempts int
	OnRetry     func(RetryAttempt)
	Backoff     func(attempt int) time.Duration
}

// WithObserver returns a copy of the policy whose OnRetry calls the existing
// observer (if any) followed by fn.
func (p RetryPolicy) WithObserver(fn func(RetryAttempt)) RetryPolicy {
	if fn == nil {
		return p
	}
	prev := p.OnRetry
	p.OnRetry = func(a RetryAttempt) {
		if prev != nil {
			prev(a)
		}
		fn(a)
	}
	return p
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// Retry runs op until it succeeds or the policy's attempts are used up.
// Attempts are sequential. When the last attempt fails the error is returned
// as an *ExhaustedError. Cancelling ctx stops further attempts.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, canceledRetry(attempt-1, err, lastErr)
		}
		value, err := op(ctx)
		if err == nil {
			return value, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		if policy.OnRetry != nil {
			policy.OnRetry(RetryAttempt{Attempt: attempt, MaxAttempts: maxAttempts, Err: err})
		}
		if policy.Backoff != nil {
			if waitErr := sleep(ctx, policy.Backoff(attempt)); waitErr != nil {
				return zero, canceledRetry(attempt, waitErr, lastErr)
			}
		}
	}
	return zero, &ExhaustedError{Attempts: maxAttempts, Err: lastErr}
}

func canceledRetry(done int, ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("retry canceled: %w", ctxErr)
	}
	return fmt.Errorf("retry canceled after %d attempts (last error: %v): %w", done, lastErr, ctxErr)
}

// ExponentialBackoff doubles base per attempt up to max and returns a
// jittered delay in [d/2, d).
func ExponentialBackoff(base, maxDelay time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		if base <= 0 {
			return 0
		}
		delay := float64(base) * math.Pow(2, float64(attempt-1))
		if maxDelay > 0 && delay > float64(maxDelay) {
			delay = float64(maxDelay)
		}
		half := time.Duration(delay / 2)
		return half + randomJitter(half)
	}
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
