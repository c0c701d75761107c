// Package ratelimit provides a keyed token bucket used to pace calls to
// quota-bound upstreams such as the confirmation oracle.
package ratelimit

import (
	"sync"
	"time"
)

type bucket struct {
	tokens float64
	last   time.Time
}

// Limiter is a token bucket per key. All keys share the same capacity and
// refill rate; tokens accumulate while idle up to capacity.
type Limiter struct {
	capacity  float64
	refillSec float64

	mu  sync.Mutex
	m   map[string]*bucket
	now func() time.Time
}

// New creates a limiter with the given bucket capacity and refill rate in
// tokens per second.
func New(capacity, refillPerSec float64) *Limiter {
	return &Limiter{
		capacity:  capacity,
		refillSec: refillPerSec,
		m:         make(map[string]*bucket),
		now:       time.Now,
	}
}

// Allow consumes one token for key if available. A fresh key starts full.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.m[key] = b
	}
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens += elapsed * l.refillSec
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Tokens reports the current token count for key.
func (l *Limiter) Tokens(key string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.m[key]; ok {
		return b.tokens
	}
	return l.capacity
}
