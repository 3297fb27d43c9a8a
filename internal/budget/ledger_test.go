package budget

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerInMemoryAccumulates(t *testing.T) {
	l := New(nil)
	ctx := context.Background()

	require.NoError(t, l.AddCost(ctx, "weather", 1.25, "2026-07"))
	require.NoError(t, l.AddCost(ctx, "weather", 0.50, "2026-07"))

	got, err := l.GetCost(ctx, "weather", "2026-07")
	require.NoError(t, err)
	assert.InDelta(t, 1.75, got, 1e-3)
}

func TestLedgerMonthsAreIndependent(t *testing.T) {
	l := New(nil)
	ctx := context.Background()

	require.NoError(t, l.AddCost(ctx, "weather", 5, "2026-06"))
	require.NoError(t, l.AddCost(ctx, "weather", 1, "2026-07"))

	june, err := l.GetCost(ctx, "weather", "2026-06")
	require.NoError(t, err)
	july, err := l.GetCost(ctx, "weather", "2026-07")
	require.NoError(t, err)

	assert.InDelta(t, 5, june, 1e-3)
	assert.InDelta(t, 1, july, 1e-3)
}

func TestLedgerConnectorsAreIndependent(t *testing.T) {
	l := New(nil)
	ctx := context.Background()

	require.NoError(t, l.AddCost(ctx, "weather", 3, "2026-07"))
	require.NoError(t, l.AddCost(ctx, "news", 7, "2026-07"))

	weather, err := l.GetCost(ctx, "weather", "2026-07")
	require.NoError(t, err)
	news, err := l.GetCost(ctx, "news", "2026-07")
	require.NoError(t, err)

	assert.InDelta(t, 3, weather, 1e-3)
	assert.InDelta(t, 7, news, 1e-3)
}

func TestLedgerAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l := New(rdb)
	ctx := context.Background()

	require.NoError(t, l.AddCost(ctx, "weather", 2.5, "2026-07"))
	require.NoError(t, l.AddCost(ctx, "weather", 2.5, "2026-07"))

	got, err := l.GetCost(ctx, "weather", "2026-07")
	require.NoError(t, err)
	assert.InDelta(t, 5, got, 1e-3)
}

func TestLedgerGetCostUnsetKeyIsZero(t *testing.T) {
	l := New(nil)
	got, err := l.GetCost(context.Background(), "unknown", "2026-07")
	require.NoError(t, err)
	assert.Zero(t, got)
}
