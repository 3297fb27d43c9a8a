package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCacheSetThenGetWithinTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(ctx)
	defer c.Close()

	entry := Entry{
		Body:    []byte(`{"ok":true}`),
		Headers: []HeaderPair{{Name: "Content-Type", Value: "application/json"}},
		Status:  200,
	}

	require.NoError(t, c.Set(ctx, "k1", entry, time.Minute))

	got, ok := c.Get(ctx, "k1")
	require.True(t, ok, "expected hit")
	assert.Equal(t, string(entry.Body), string(got.Body))
	assert.Equal(t, entry.Status, got.Status)
	require.Len(t, got.Headers, 1)
	assert.Equal(t, "Content-Type", got.Headers[0].Name)
}

func TestMemoryCacheExpiresLazily(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(ctx)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k1", Entry{Status: 200}, time.Millisecond))

	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok, "expected expired entry to be a miss")
	assert.Equal(t, 0, c.Len(), "want 0 after lazy eviction")
}

func TestMemoryCacheMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(ctx)
	defer c.Close()

	_, ok := c.Get(ctx, "nope")
	assert.False(t, ok, "expected miss for unknown key")
}

func TestMemoryCacheDelete(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(ctx)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k1", Entry{Status: 200}, time.Minute))
	require.NoError(t, c.Delete(ctx, "k1"))

	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok, "expected miss after Delete")
}

func TestCacheKeyBuiltFromFirstRankedProvider(t *testing.T) {
	k1 := Key("weather", "GET", "https://primary.example", "/v1/forecast", "city=nyc")
	k2 := Key("weather", "GET", "https://primary.example", "/v1/forecast", "city=nyc")
	assert.Equal(t, k1, k2, "Key should be deterministic")

	k3 := Key("weather", "GET", "https://secondary.example", "/v1/forecast", "city=nyc")
	assert.NotEqual(t, k1, k3, "Key should differ when the ranked provider base URL differs")
}
