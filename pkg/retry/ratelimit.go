package retry

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimiter spaces out calls to a provider. It starts with a full
// bucket of one second's worth of calls.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows perSecond calls per second on average.
func NewRateLimiter(perSecond float64) *RateLimiter {
	burst := max(1, int(math.Ceil(perSecond)))
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a call is allowed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Limit returns the sustained calls per second.
func (r *RateLimiter) Limit() float64 { return float64(r.limiter.Limit()) }

// Burst returns the number of calls allowed at once.
func (r *RateLimiter) Burst() int { return r.limiter.Burst() }
