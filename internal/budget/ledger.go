// Package budget implements the monthly spend ledger (C4): accumulated USD
// cost per connector, tracked per calendar month so budgets reset
// automatically at the start of each month.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger is add_cost/get_cost from §4.4, backed by Redis when configured
// and reachable, falling back to an in-process map otherwise — the same
// degrade-to-local shape as ratelimit.Distributed.
type Ledger struct {
	rdb *redis.Client

	mu    sync.Mutex
	local map[string]float64
}

// New wraps an already-connected Redis client. Pass nil to always use the
// in-memory fallback.
func New(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb, local: make(map[string]float64)}
}

// AddCost adds usd to key's accumulated cost for the given month (default:
// the current month, "YYYY-MM"). Never called on a failed request — only
// from the pipeline's post-success step.
func (l *Ledger) AddCost(ctx context.Context, key string, usd float64, month string) error {
	full := fullKey(key, month)

	if l.rdb != nil {
		if err := l.rdb.IncrByFloat(ctx, full, usd).Err(); err == nil {
			return nil
		}
		// Redis unreachable — fall through to the in-memory ledger so the
		// request is never blocked by a budget-tracking outage.
	}

	l.mu.Lock()
	l.local[full] += usd
	l.mu.Unlock()
	return nil
}

// GetCost returns key's accumulated cost for the given month (default: the
// current month).
func (l *Ledger) GetCost(ctx context.Context, key string, month string) (float64, error) {
	full := fullKey(key, month)

	if l.rdb != nil {
		val, err := l.rdb.Get(ctx, full).Float64()
		if err == nil {
			return val, nil
		}
		if err != redis.Nil {
			// Fall back rather than surface a transient Redis error as a
			// budget-exceeded false positive or false negative.
			l.mu.Lock()
			v := l.local[full]
			l.mu.Unlock()
			return v, nil
		}
		return 0, nil
	}

	l.mu.Lock()
	v := l.local[full]
	l.mu.Unlock()
	return v, nil
}

func fullKey(key, month string) string {
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}
	return fmt.Sprintf("budget:%s:%s", key, month)
}
