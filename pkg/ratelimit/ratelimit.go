// Package ratelimit provides per-key token-bucket throttling, used to keep
// outbound requests to any single host within a courteous rate.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter defines the interface for rate limiting by an arbitrary string key
// (a hostname, in the enricher's case).
type Limiter interface {
	Allow(key string) bool
	Wait(ctx context.Context, key string) error
}

// InMemoryLimiter is a Limiter keyed by string, one token bucket per key.
type InMemoryLimiter struct {
	keys map[string]*rate.Limiter
	mu   sync.Mutex
	r    rate.Limit
	b    int
}

// NewInMemoryLimiter creates a new rate limiter.
// Example: NewInMemoryLimiter(1, 2*time.Second, 1) -> one request every 2s per key, no burst.
func NewInMemoryLimiter(requests int, per time.Duration, burst int) *InMemoryLimiter {
	return &InMemoryLimiter{
		keys: make(map[string]*rate.Limiter),
		r:    rate.Every(per / time.Duration(requests)),
		b:    burst,
	}
}

func (l *InMemoryLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.keys[key]
	if !exists {
		limiter = rate.NewLimiter(l.r, l.b)
		l.keys[key] = limiter
	}
	return limiter
}

// Allow reports whether a request for key may proceed right now.
func (l *InMemoryLimiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}

// Wait blocks until a request for key may proceed or ctx is done.
func (l *InMemoryLimiter) Wait(ctx context.Context, key string) error {
	return l.limiterFor(key).Wait(ctx)
}
