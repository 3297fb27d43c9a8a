// Package health implements the health registry (C6): per-provider EMA
// latency tracking, wired to a circuit breaker, and the pick_best ranking
// used to order failover candidates.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/nulpointcorp/apibridge/internal/breaker"
)

// defaultLatencyMs is the assumed latency for a provider with no
// HealthEntry yet, matching the distillation source's health.py.
const defaultLatencyMs = 9999

// entry is a provider's HealthEntry.
type entry struct {
	healthy    bool
	avgLatency float64
	lastAt     time.Time
	cb         *breaker.Breaker
}

// Registry tracks the HealthEntry of every provider key seen so far.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

func (r *Registry) get(key string) *entry {
	e, ok := r.entries[key]
	if !ok {
		e = &entry{healthy: true, avgLatency: defaultLatencyMs, cb: breaker.Default()}
		r.entries[key] = e
	}
	return e
}

// MarkSuccess upserts key's HealthEntry, marks it healthy, folds
// latencyMs into the EMA (weight 0.7 old / 0.3 new, first sample seeds the
// average), and records a breaker success.
func (r *Registry) MarkSuccess(key string, latencyMs float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{cb: breaker.Default()}
		r.entries[key] = e
		e.avgLatency = latencyMs
	} else {
		e.avgLatency = float64(int(0.7*e.avgLatency + 0.3*latencyMs))
	}
	e.healthy = true
	e.lastAt = time.Now()
	e.cb.RecordSuccess()
}

// MarkFailure marks key unhealthy and records a breaker failure.
func (r *Registry) MarkFailure(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		e = &entry{healthy: false, avgLatency: defaultLatencyMs, cb: breaker.Default()}
		r.entries[key] = e
	}
	e.healthy = false
	e.lastAt = time.Now()
	e.cb.RecordFailure()
}

// ShouldAttempt reports true if key has no entry yet, else delegates to
// its breaker.
func (r *Registry) ShouldAttempt(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return true
	}
	return e.cb.ShouldAttempt()
}

// Candidate is the minimal shape pick_best needs from a provider.
type Candidate struct {
	Key    string
	Weight int
}

// PickBest orders candidates per §4.6:
//  1. drop any whose ShouldAttempt is false; if that empties the list,
//     fall back to the original list (lets HALF_OPEN probing happen);
//  2. sort by (0 if healthy else 1, penalty + avg_latency_ms - weight*10)
//     ascending. Providers without a HealthEntry are healthy with
//     avg_latency_ms = 9999.
func (r *Registry) PickBest(candidates []Candidate) []Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()

	available := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if r.shouldAttemptLocked(c.Key) {
			available = append(available, c)
		}
	}
	if len(available) == 0 {
		available = append([]Candidate(nil), candidates...)
	}

	type ranked struct {
		c         Candidate
		healthTie int
		score     float64
	}

	rs := make([]ranked, len(available))
	for i, c := range available {
		healthy := true
		penalty := 0
		avg := float64(defaultLatencyMs)

		if e, ok := r.entries[c.Key]; ok {
			healthy = e.healthy
			avg = e.avgLatency
			penalty = e.cb.Penalty()
		}

		tie := 0
		if !healthy {
			tie = 1
		}

		rs[i] = ranked{c: c, healthTie: tie, score: float64(penalty) + avg - float64(c.Weight*10)}
	}

	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].healthTie != rs[j].healthTie {
			return rs[i].healthTie < rs[j].healthTie
		}
		return rs[i].score < rs[j].score
	})

	out := make([]Candidate, len(rs))
	for i, x := range rs {
		out[i] = x.c
	}
	return out
}

func (r *Registry) shouldAttemptLocked(key string) bool {
	e, ok := r.entries[key]
	if !ok {
		return true
	}
	return e.cb.ShouldAttempt()
}
