package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

var _ Limiter = (*Local)(nil)

// Local keeps one token bucket per key in process memory. It is used when no
// Redis is configured.
type Local struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	capacity int
	refill   rate.Limit
}

func NewLocal(capacity int, refillPerSecond float64) *Local {
	return &Local{
		buckets:  make(map[string]*rate.Limiter),
		capacity: capacity,
		refill:   rate.Limit(refillPerSecond),
	}
}

func (l *Local) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(l.refill, l.capacity)
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow(), nil
}
