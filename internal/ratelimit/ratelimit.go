// Package ratelimit provides the shared token bucket that limits the
// rate of calls to the LLM and embedding backends (spec.md §5:
// "LLM calls are further rate-limited by a shared token bucket").
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps golang.org/x/time/rate.Limiter with the construction
// defaults this service uses: requests-per-second plus a burst
// allowance, shared across every worker/enrichment goroutine. It limits
// how fast calls start, not how many are outstanding at once; that
// count is bounded by W * P (worker count times chunk parallelism).
type Limiter struct {
	limiter *rate.Limiter
}

// New builds a Limiter allowing rps sustained requests per second with
// the given burst capacity.
func New(rps float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Wait blocks until a token is available or ctx is cancelled, whichever
// comes first.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a token is immediately available, consuming one
// if so. Used by callers that want a non-blocking check instead of Wait.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
