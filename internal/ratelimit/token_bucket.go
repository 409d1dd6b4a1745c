package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenBucket paces new work such as connection accepts.
// A nil *TokenBucket allows everything.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket returns a bucket refilled at rate tokens per second holding at
// most burst tokens. A non-positive rate disables limiting and returns nil.
func NewTokenBucket(ratePerSec float64, burst int) *TokenBucket {
	if ratePerSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Wait blocks until n tokens are available or ctx is done.
func (tb *TokenBucket) Wait(ctx context.Context, n int) error {
	if tb == nil {
		return ctx.Err()
	}
	return tb.limiter.WaitN(ctx, n)
}
