// Package retry implements the exponential-backoff-with-jitter helper
// used throughout the core (spec.md §7: "local retries (with
// exponential backoff + jitter) for RateLimited, UpstreamUnavailable,
// TransientDatabase up to adapter-defined limits").
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Backoff computes the delay before attempt k (0-indexed): base*2^k plus
// up to 20% jitter, capped at max.
func Backoff(base time.Duration, k int, max time.Duration) time.Duration {
	d := base << k // base * 2^k
	if d > max || d <= 0 {
		d = max
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5 + 1))
	return d + jitter
}

// Do runs fn up to attempts times, sleeping Backoff(base,k,max) between
// attempts, stopping early when shouldRetry(err) is false or ctx is
// cancelled. It returns the last error on exhaustion.
func Do(ctx context.Context, attempts int, base, max time.Duration, shouldRetry func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for k := 0; k < attempts; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
		if k == attempts-1 {
			break
		}
		select {
		case <-time.After(Backoff(base, k, max)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
