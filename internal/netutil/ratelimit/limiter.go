// Package ratelimit provides per-host token-bucket rate limiting for score
// provider polling and venue REST calls.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rate-limits calls independently per host/provider name.
type Limiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	rps      float64
	burst    int
}

// New creates a Limiter with the given requests-per-second and burst capacity,
// applied independently to each distinct key passed to Allow/Wait.
func New(rps float64, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rps,
		burst:    burst,
	}
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[key]; ok {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(l.rps), l.burst)
	l.limiters[key] = lim
	return lim
}

// Allow reports whether a call for key is permitted right now.
func (l *Limiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}

// Wait blocks until a call for key is permitted or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.limiterFor(key).Wait(ctx)
}
