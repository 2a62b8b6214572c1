package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the wait between retries.
	MaxDelay time.Duration

	// Multiplier grows the wait after each retry.
	Multiplier float64

	// Jitter scales each wait by a random factor in [0.5, 1.0).
	Jitter bool
}

// DefaultRetryConfig returns a short backoff: 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// backoff returns the wait before retry n (0-based), before jitter.
func (c RetryConfig) backoff(n int) time.Duration {
	d := c.InitialDelay
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * c.Multiplier)
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	return d
}

// Retry calls fn until it succeeds or MaxRetries retries have failed.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := retry(ctx, cfg, nil, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryIf is like Retry but only retries errors for which shouldRetry returns
// true. Any other error is returned unwrapped on the attempt that produced it.
func RetryIf(ctx context.Context, cfg RetryConfig, shouldRetry func(error) bool, fn func() error) error {
	_, err := retry(ctx, cfg, shouldRetry, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that also return a value.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	return retry(ctx, cfg, nil, fn)
}

// InterruptedError is returned when ctx ends while fn is still failing. It
// unwraps to the last failure, so its code survives, and errors.Is matches
// the context error.
type InterruptedError struct {
	Attempts int
	Last     error
	ctxErr   error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", e.ctxErr, e.Attempts, e.Last)
}

func (e *InterruptedError) Unwrap() error { return e.Last }

// Is matches context.Canceled or context.DeadlineExceeded.
func (e *InterruptedError) Is(target error) bool { return target == e.ctxErr }

func retry[T any](ctx context.Context, cfg RetryConfig, shouldRetry func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	interrupted := func(attempts int) error {
		if lastErr == nil {
			return ctx.Err()
		}
		return &InterruptedError{Attempts: attempts, Last: lastErr, ctxErr: ctx.Err()}
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, interrupted(attempt)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if shouldRetry != nil && !shouldRetry(err) {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		wait := cfg.backoff(attempt)
		if cfg.Jitter {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()*0.5))
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, interrupted(attempt + 1)
		case <-timer.C:
		}
	}

	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
