package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis, *MemoryStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	durable := NewMemoryStore()
	return NewStore(rdb, durable, zerolog.Nop()), mr, durable
}

func makeSession(id, accountID string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		AccountID: accountID,
		IP:        "203.0.113.7",
		UserAgent: "portal/1.0",
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestPutWritesBothLayers(t *testing.T) {
	store, mr, durable := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, makeSession("s1", "acc-1", time.Hour)))

	require.True(t, mr.Exists("sess:s1"))
	require.Equal(t, 1, durable.Len())

	ttl := mr.TTL("sess:s1")
	require.Greater(t, ttl, 59*time.Minute)
}

func TestGetPrefersCache(t *testing.T) {
	store, _, durable := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, makeSession("s1", "acc-1", time.Hour)))

	// Remove the durable record: a cache hit must not consult it.
	require.NoError(t, durable.Delete(ctx, "s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", got.AccountID)
	require.Equal(t, "203.0.113.7", got.IP)
}

func TestGetFallsBackToDurableAndRepopulates(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, makeSession("s1", "acc-1", time.Hour)))

	// Simulate cache loss.
	mr.FlushAll()
	require.False(t, mr.Exists("sess:s1"))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", got.AccountID)

	// Durable hit repopulated the cache.
	require.True(t, mr.Exists("sess:s1"))
}

func TestGetMissingSession(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := store.Exists(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestExpiredSessionIsNotLive(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	sess := makeSession("s1", "acc-1", time.Hour)
	require.NoError(t, store.Put(ctx, sess))

	store.WithNow(func() time.Time { return sess.ExpiresAt.Add(time.Second) })

	_, err := store.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteRemovesBothLayers(t *testing.T) {
	store, mr, durable := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, makeSession("s1", "acc-1", time.Hour)))
	require.NoError(t, store.Delete(ctx, "s1"))

	require.False(t, mr.Exists("sess:s1"))
	require.Equal(t, 0, durable.Len())

	ok, err := store.Exists(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteAllForAccount(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, makeSession("s1", "acc-1", time.Hour)))
	require.NoError(t, store.Put(ctx, makeSession("s2", "acc-1", time.Hour)))
	require.NoError(t, store.Put(ctx, makeSession("s3", "acc-2", time.Hour)))

	n, err := store.DeleteAllForAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.False(t, mr.Exists("sess:s1"))
	require.False(t, mr.Exists("sess:s2"))
	require.True(t, mr.Exists("sess:s3"))
}

func TestListByAccountSkipsExpired(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	live := makeSession("s1", "acc-1", time.Hour)
	stale := makeSession("s2", "acc-1", time.Minute)
	require.NoError(t, store.Put(ctx, live))
	require.NoError(t, store.Put(ctx, stale))

	store.WithNow(func() time.Time { return stale.ExpiresAt.Add(time.Second) })

	sessions, err := store.ListByAccount(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "s1", sessions[0].ID)
}

func TestDegradedModeWithoutCache(t *testing.T) {
	durable := NewMemoryStore()
	store := NewStore(nil, durable, zerolog.Nop())
	ctx := context.Background()

	require.True(t, store.Degraded())

	require.NoError(t, store.Put(ctx, makeSession("s1", "acc-1", time.Hour)))
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", got.AccountID)

	require.NoError(t, store.Delete(ctx, "s1"))
	ok, err := store.Exists(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetSurvivesCacheOutage(t *testing.T) {
	store, mr, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, makeSession("s1", "acc-1", time.Hour)))

	// Cache goes down after the write: reads fall back to durable.
	mr.Close()

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", got.AccountID)
}
