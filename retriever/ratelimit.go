package retriever

import (
	"context"

	"golang.org/x/time/rate"
)

// rateLimiter is a single token-bucket limiter bounding the RPC worker
// pool's outbound request rate (spec §6 "RPC worker concurrency"),
// adapted from the teacher's per-IP HTTP rate limiter down to the single
// steady-state limiter an outbound batch client needs.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(ratePerSecond float64, burst int) *rateLimiter {
	return &rateLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (r *rateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
