// Package ratelimit provides an injected per-provider rate limiter. The
// in-memory map is fine for a single instance; multi-instance deployments
// would back the same interface with a shared counter store.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Waiter is what components depend on; keys are "provider:operation".
type Waiter interface {
	Wait(ctx context.Context, provider, operation string) error
}

type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

// New creates a limiter allowing perMin requests per minute for each
// provider+operation pair.
func New(perMin int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMin,
	}
}

func (l *Limiter) Wait(ctx context.Context, provider, operation string) error {
	return l.limiterFor(provider + ":" + operation).Wait(ctx)
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(l.perMin)/60.0), l.perMin)
		l.limiters[key] = lim
	}
	return lim
}
