// Package ratelimit bounds how often a single caller may hit the proxy.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is an in-process token bucket per key.
type Limiter struct {
	mu         sync.Mutex
	m          map[string]*bucket
	capacity   float64
	refillRate float64 // tokens per second
	now        func() time.Time
	maxKeys    int
}

// New creates a token bucket limiter. Each key starts with a full bucket.
func New(capacity, refillPerSec float64) *Limiter {
	return &Limiter{
		m:          make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillPerSec,
		now:        time.Now,
		maxKeys:    10000,
	}
}

// Allow consumes one token for key if available. It never returns an error.
func (l *Limiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.m[key]
	if !ok {
		if len(l.m) >= l.maxKeys {
			l.evictFull(now)
		}
		if len(l.m) >= l.maxKeys {
			l.evictOldest()
		}
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.refillRate
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true, nil
	}
	return false, nil
}

// evictFull drops buckets that would be full by now; they are equivalent to new ones.
func (l *Limiter) evictFull(now time.Time) {
	for k, b := range l.m {
		if b.tokens+now.Sub(b.last).Seconds()*l.refillRate >= l.capacity {
			delete(l.m, k)
		}
	}
}

// evictOldest drops the least recently seen bucket.
func (l *Limiter) evictOldest() {
	var (
		oldest string
		at     time.Time
	)
	for k, b := range l.m {
		if oldest == "" || b.last.Before(at) {
			oldest, at = k, b.last
		}
	}
	delete(l.m, oldest)
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
