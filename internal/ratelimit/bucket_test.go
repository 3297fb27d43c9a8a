package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketAllowConsecutiveNoElapsedTime(t *testing.T) {
	b := NewBucket(5, 1)

	allowed := 0
	for i := 0; i < 8; i++ {
		if b.Allow() {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed, "want min(8,capacity)=5")
}

func TestBucketRefillsOverTime(t *testing.T) {
	b := NewBucket(3, 1000) // fast refill so a short sleep is enough
	for i := 0; i < 3; i++ {
		require.Truef(t, b.Allow(), "expected bucket to have capacity on call %d", i)
	}
	assert.False(t, b.Allow(), "expected bucket to be empty")

	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.Allow(), "expected bucket to have refilled after idle gap")
}

func TestDistributedFallsBackToLocalWithoutRedis(t *testing.T) {
	d := NewDistributed(nil)
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 5; i++ {
		if d.Allow(ctx, "rl:test", 3, 0) {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)
}

func TestDistributedAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	d := NewDistributed(rdb)
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 15; i++ {
		if d.Allow(ctx, "rl:weather", 10, 0) {
			allowed++
		}
	}
	assert.Equal(t, 10, allowed)

	fields, err := rdb.HGetAll(ctx, "rl:weather").Result()
	require.NoError(t, err)
	assert.Equal(t, "10", fields["capacity"])
}

func TestDistributedDegradesWhenRedisDisappears(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	d := NewDistributed(rdb)
	ctx := context.Background()

	require.True(t, d.Allow(ctx, "rl:x", 5, 1), "expected first call to succeed")

	mr.Close()

	// Must not error or panic; falls back to in-memory.
	assert.NotPanics(t, func() { d.Allow(ctx, "rl:x", 5, 1) })
}
