package ratelimiter

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// CollectionLimiters holds one token bucket limiter per remote collection.
// Each limiter enforces a steady-state rate (e.g. 20 tokens/sec).
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type CollectionLimiters struct {
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
	ratePerSec int
}

// New creates a CollectionLimiters with ratePerSec tokens per second per
// collection. Limiters are created lazily the first time a collection is seen.
func New(ratePerSec int) *CollectionLimiters {
	return &CollectionLimiters{
		limiters:   make(map[string]*rate.Limiter),
		ratePerSec: ratePerSec,
	}
}

// Wait blocks until the collection's limiter grants a token.
// Called immediately before every remote write.
// Returns a non-nil error only if ctx is cancelled while waiting.
func (cl *CollectionLimiters) Wait(ctx context.Context, collection string) error {
	cl.mu.Lock()
	l, ok := cl.limiters[collection]
	if !ok {
		// burst == rate: prevents any "saved up" burst above the limit
		l = rate.NewLimiter(rate.Limit(cl.ratePerSec), cl.ratePerSec)
		cl.limiters[collection] = l
	}
	cl.mu.Unlock()
	return l.Wait(ctx)
}
