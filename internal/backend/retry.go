package backend

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/abhisek/cogtest/internal/assessment"
)

// RetryConfig configures retries of idempotent reads.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     5 * time.Second,
		Multiplier:  2,
	}
}

// Reader is the idempotent subset of the backend API.
type Reader interface {
	Modules(ctx context.Context) (assessment.Catalog, error)
	AttemptStatus(ctx context.Context, userID string) (assessment.AttemptStatus, error)
}

// RetryReader is a decorator that retries transient read failures with
// exponential backoff and jitter. Session starts, submits and abandons are
// never retried since the backend does not promise idempotency for them.
type RetryReader struct {
	inner  Reader
	config RetryConfig
	sleep  func(ctx context.Context, d time.Duration) error
}

// WithRetry wraps a Reader with retry logic.
func WithRetry(r Reader, cfg RetryConfig) *RetryReader {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	return &RetryReader{inner: r, config: cfg, sleep: sleepCtx}
}

func (r *RetryReader) Modules(ctx context.Context) (assessment.Catalog, error) {
	return retry(ctx, r, func() (assessment.Catalog, error) {
		return r.inner.Modules(ctx)
	})
}

func (r *RetryReader) AttemptStatus(ctx context.Context, userID string) (assessment.AttemptStatus, error) {
	return retry(ctx, r, func() (assessment.AttemptStatus, error) {
		return r.inner.AttemptStatus(ctx, userID)
	})
}

func retry[T any](ctx context.Context, r *RetryReader, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := range r.config.MaxAttempts {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return zero, err
		}
		if attempt == r.config.MaxAttempts-1 {
			break
		}
		if err := r.sleep(ctx, r.backoff(attempt, err)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// shouldRetry determines if an error is retryable.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// A bad body will not improve by asking again.
	if IsMalformed(err) {
		return false
	}

	var se *ServerError
	if errors.As(err, &se) {
		return se.Temporary()
	}

	return IsNetwork(err)
}

// backoff computes the wait duration for the given attempt.
func (r *RetryReader) backoff(attempt int, err error) time.Duration {
	var se *ServerError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return min(se.RetryAfter, r.config.MaxWait)
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// ±20% jitter.
	wait += wait * 0.2 * (2*rand.Float64() - 1)
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
