// Package ratelimit implements the token-bucket rate limit primitive (C1)
// and its Redis-backed distributed variant (C2).
package ratelimit

import (
	"sync"
	"time"
)

// Bucket is a single in-memory token bucket. Safe for concurrent use — Allow
// holds the bucket's own exclusive lock for its whole duration
// (§4.1: "callers hold an exclusive lock over a single bucket during allow").
type Bucket struct {
	mu sync.Mutex

	capacity float64
	refill   float64
	tokens   float64
	last     time.Time
}

// NewBucket creates a bucket that starts full.
func NewBucket(capacity float64, refillPerSec float64) *Bucket {
	return &Bucket{
		capacity: capacity,
		refill:   refillPerSec,
		tokens:   capacity,
		last:     time.Now(),
	}
}

// Allow implements §4.1 exactly: refill proportional to elapsed time, then
// take one token if available.
func (b *Bucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(b.capacity, b.tokens+elapsed*b.refill)
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Local is a registry of named in-memory buckets, used both standalone and
// as the fallback path for Distributed.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*Bucket
}

// NewLocal creates an empty bucket registry.
func NewLocal() *Local {
	return &Local{buckets: make(map[string]*Bucket)}
}

// Allow looks up (or creates) the named bucket with the given capacity and
// refill rate and evaluates it. Capacity/refill changes on an existing
// named bucket are applied going forward (the bucket keeps its current
// token count).
func (l *Local) Allow(name string, capacity float64, refillPerSec float64) bool {
	l.mu.Lock()
	b, ok := l.buckets[name]
	if !ok {
		b = NewBucket(capacity, refillPerSec)
		l.buckets[name] = b
	} else {
		b.mu.Lock()
		b.capacity = capacity
		b.refill = refillPerSec
		b.mu.Unlock()
	}
	l.mu.Unlock()

	return b.Allow()
}
