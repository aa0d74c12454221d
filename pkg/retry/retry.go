// Package retry re-issues provider calls that fail with transient errors.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	clog "github.com/xrsl/tailor/pkg/log"
)

// Config controls how Do spaces out attempts.
type Config struct {
	MaxRetries  int           // attempts after the first one
	BaseDelay   time.Duration // wait before the first retry
	MaxDelay    time.Duration // upper bound of a single wait
	Multiplier  float64       // growth of the wait per retry
	JitterRatio float64       // share of the wait randomized either way, 0..1
	Limiter     *RateLimiter  // waited on before every attempt when set
}

// DefaultConfig is the backoff of the Claude and Gemini clients.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
		JitterRatio: 0.1,
	}
}

// RetryableError marks a provider error as transient: rate limits,
// overload and server errors.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err, or anything it wraps, was marked with
// Retryable.
func IsRetryable(err error) bool {
	var transient *RetryableError
	return errors.As(err, &transient)
}

// Do calls fn until it succeeds, returns an error not marked Retryable, or
// runs out of retries. The error returned after the last retry has its
// Retryable mark removed.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		v, err := fn()
		if err == nil {
			return v, nil
		}
		var transient *RetryableError
		if !errors.As(err, &transient) {
			return zero, err
		}
		if attempt >= cfg.MaxRetries {
			clog.Warn("giving up on provider call", "attempts", attempt+1, "error", transient.Err)
			return zero, transient.Err
		}

		wait := cfg.backoff(attempt)
		clog.Debug("transient provider error, backing off",
			"attempt", attempt+1,
			"max_retries", cfg.MaxRetries,
			"wait", wait,
			"error", transient.Err,
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff is BaseDelay*Multiplier^attempt, capped at MaxDelay, then jittered.
func (c Config) backoff(attempt int) time.Duration {
	d := min(float64(c.BaseDelay)*math.Pow(c.Multiplier, float64(attempt)), float64(c.MaxDelay))
	if c.JitterRatio > 0 {
		d += d * c.JitterRatio * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}
