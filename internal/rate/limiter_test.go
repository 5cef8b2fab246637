package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return New(rdb, "rl:s:", cfg, zerolog.Nop()), mr
}

func strictConfig() Config {
	return Config{Limit: 5, Window: 15 * time.Minute, BlockFactor: 2}
}

func TestAllowWithinBudget(t *testing.T) {
	l, _ := newTestLimiter(t, strictConfig())
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res := l.Allow(ctx, "203.0.113.7:login")
		require.True(t, res.Allowed, "attempt %d", i)
		require.Equal(t, 5, res.Limit)
		require.Equal(t, 5-i, res.Remaining)
		require.False(t, res.Degraded)
	}
}

func TestExceedingBudgetBlocksForTwiceTheWindow(t *testing.T) {
	l, mr := newTestLimiter(t, strictConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(ctx, "ip:login").Allowed)
	}

	// Sixth attempt trips the limit and applies a 2x-window block.
	res := l.Allow(ctx, "ip:login")
	require.False(t, res.Allowed)
	require.GreaterOrEqual(t, res.RetryAfter, 30*time.Minute)

	// Seventh attempt is rejected by the block key regardless of counter.
	res = l.Allow(ctx, "ip:login")
	require.False(t, res.Allowed)
	require.Greater(t, res.RetryAfter, time.Duration(0))

	// The block outlives the counting window.
	mr.FastForward(16 * time.Minute)
	res = l.Allow(ctx, "ip:login")
	require.False(t, res.Allowed)

	// After the full block elapses the budget is fresh.
	mr.FastForward(15 * time.Minute)
	res = l.Allow(ctx, "ip:login")
	require.True(t, res.Allowed)
}

func TestWindowResetsCounter(t *testing.T) {
	l, mr := newTestLimiter(t, strictConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.True(t, l.Allow(ctx, "ip:login").Allowed)
	}

	mr.FastForward(16 * time.Minute)

	res := l.Allow(ctx, "ip:login")
	require.True(t, res.Allowed)
	require.Equal(t, 4, res.Remaining)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, strictConfig())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Allow(ctx, "attacker:login")
	}
	require.False(t, l.Allow(ctx, "attacker:login").Allowed)
	require.True(t, l.Allow(ctx, "innocent:login").Allowed)
}

func TestResetClearsBudgetAndBlock(t *testing.T) {
	l, _ := newTestLimiter(t, strictConfig())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		l.Allow(ctx, "ip:login")
	}
	require.False(t, l.Allow(ctx, "ip:login").Allowed)

	require.NoError(t, l.Reset(ctx, "ip:login"))

	res := l.Allow(ctx, "ip:login")
	require.True(t, res.Allowed)
	require.Equal(t, 4, res.Remaining)
}

func TestProgressiveBlockDoubles(t *testing.T) {
	cfg := Config{Limit: 2, Window: time.Minute, BlockFactor: 1, Progressive: true, MaxBlockFactor: 4}
	l, mr := newTestLimiter(t, cfg)
	ctx := context.Background()

	trip := func() Result {
		var res Result
		for i := 0; i < 3; i++ {
			res = l.Allow(ctx, "ip:login")
		}
		return res
	}

	// First violation: base block (1x window).
	res := trip()
	require.False(t, res.Allowed)
	require.Equal(t, time.Minute, res.RetryAfter)

	// Wait out the block, violate again: block doubles.
	mr.FastForward(2 * time.Minute)
	res = trip()
	require.False(t, res.Allowed)
	require.Equal(t, 2*time.Minute, res.RetryAfter)

	// Third violation doubles again.
	mr.FastForward(3 * time.Minute)
	res = trip()
	require.False(t, res.Allowed)
	require.Equal(t, 4*time.Minute, res.RetryAfter)

	// Capped at MaxBlockFactor x base.
	mr.FastForward(5 * time.Minute)
	res = trip()
	require.False(t, res.Allowed)
	require.Equal(t, 4*time.Minute, res.RetryAfter)
}

func TestFailOpenOnBackendOutage(t *testing.T) {
	l, mr := newTestLimiter(t, strictConfig())
	ctx := context.Background()

	mr.Close()

	res := l.Allow(ctx, "ip:login")
	require.True(t, res.Allowed)
	require.True(t, res.Degraded)
}

func TestNilClientFailsOpen(t *testing.T) {
	l := New(nil, "rl:g:", strictConfig(), zerolog.Nop())

	res := l.Allow(context.Background(), "ip")
	require.True(t, res.Allowed)
	require.True(t, res.Degraded)
}

func TestCounterAlwaysCarriesExpiry(t *testing.T) {
	l, mr := newTestLimiter(t, strictConfig())
	ctx := context.Background()

	l.Allow(ctx, "ip:login")

	ttl := mr.TTL("rl:s:ip:login")
	require.Greater(t, ttl, time.Duration(0), "counter must never persist without a window expiry")
}
