// Package breaker implements the circuit breaker primitive (C5): a
// monotonic consecutive-failure counter, not a rolling time window. A
// single failed request that crosses the threshold opens the circuit;
// only a single success ever resets it, from any state.
package breaker

import (
	"sync"
	"time"
)

type state int

const (
	closed state = iota
	open
	halfOpen
)

func (s state) String() string {
	switch s {
	case open:
		return "OPEN"
	case halfOpen:
		return "HALF_OPEN"
	default:
		return "CLOSED"
	}
}

// Breaker is a single provider's circuit breaker. Safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	recoveryTimeout  time.Duration

	failureCount  int
	st            state
	lastFailureAt time.Time
	lastSuccessAt time.Time
}

// New creates a breaker with the given threshold and recovery timeout.
func New(failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		st:               closed,
		lastSuccessAt:    time.Now(),
	}
}

// Default returns a breaker using §4.5's defaults (threshold 5, 60s).
func Default() *Breaker {
	return New(5, 60*time.Second)
}

// ShouldAttempt implements the should_attempt transition table.
func (b *Breaker) ShouldAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case closed:
		return true
	case open:
		if time.Since(b.lastFailureAt) > b.recoveryTimeout {
			b.st = halfOpen
			return true
		}
		return false
	case halfOpen:
		return true
	default:
		return true
	}
}

// RecordSuccess resets the breaker to CLOSED from any state.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.st = closed
	b.lastSuccessAt = time.Now()
}

// RecordFailure increments the consecutive-failure count and opens the
// circuit once it reaches the threshold, from CLOSED or HALF_OPEN alike.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureAt = time.Now()

	if b.failureCount >= b.failureThreshold {
		b.st = open
	}
}

// State reports the current state as one of "CLOSED", "OPEN", "HALF_OPEN".
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st.String()
}

// Penalty returns the pick_best ranking penalty for the current state:
// 0 (CLOSED), 50000 (HALF_OPEN), 100000 (OPEN).
func (b *Breaker) Penalty() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case open:
		return 100000
	case halfOpen:
		return 50000
	default:
		return 0
	}
}
