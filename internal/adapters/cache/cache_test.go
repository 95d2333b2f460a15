package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/identity-core/internal/ports"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestConnectPingsServer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	_ = client.Close()

	client, err = Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	_ = client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), addr)
	require.Error(t, err)
}

func TestOAuthStateStoreIsSingleUse(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewOAuthStateStore(client)
	ctx := context.Background()

	want := ports.OAuthState{Provider: "github", CodeVerifier: "v", CreatedAt: time.Now().UTC().Truncate(time.Second)}
	require.NoError(t, store.Put(ctx, "s1", want, 10*time.Minute))

	got, err := store.Take(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Provider, got.Provider)
	assert.Equal(t, want.CodeVerifier, got.CodeVerifier)

	again, err := store.Take(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, store.Put(ctx, "s2", want, time.Minute))
	mr.FastForward(2 * time.Minute)
	expired, err := store.Take(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestTwoFactorChallengeStoreConsumeOnce(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewTwoFactorChallengeStore(client)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, store.Put(ctx, "c1", ports.TwoFactorChallenge{UserID: userID}, 5*time.Minute))

	got, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, userID, got.UserID)

	ok, err := store.Consume(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Consume(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	missing, err := store.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestThrottleStoreLockout(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewThrottleStore(client)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0).UTC()

	for i := 1; i < 3; i++ {
		state, err := store.RecordFailure(ctx, "k", now, 3, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, state.FailedCount)
		assert.Nil(t, state.LockedUntil)
	}
	state, err := store.RecordFailure(ctx, "k", now, 3, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, state.LockedUntil)
	assert.Equal(t, now.Add(time.Minute), *state.LockedUntil)

	read, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, read.FailedCount)
	require.NotNil(t, read.LockedUntil)

	require.NoError(t, store.Clear(ctx, "k"))
	read, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, read.FailedCount)
	assert.Nil(t, read.LockedUntil)
}

func TestThrottleStoreAllowFixedWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewThrottleStore(client)
	now := time.Unix(1_700_000_040, 0)
	store.nowFn = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := store.Allow(ctx, "forgot:a@example.com", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := store.Allow(ctx, "forgot:a@example.com", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	now = now.Add(61 * time.Second)
	mr.FastForward(61 * time.Second)
	ok, err = store.Allow(ctx, "forgot:a@example.com", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = store.Allow(ctx, "forgot:a@example.com", 2, 0)
	assert.Error(t, err)
}

func TestThrottleStoreAllowCountersAlwaysExpire(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewThrottleStore(client)
	now := time.Unix(1_700_000_040, 0)
	store.nowFn = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.Allow(ctx, "login:ip:203.0.113.7", 10, time.Minute)
		require.NoError(t, err)
	}
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "3", mustGet(t, mr, keys[0]))
	ttl := mr.TTL(keys[0])
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	mr.FastForward(2 * time.Minute)
	assert.Empty(t, mr.Keys())
}

func mustGet(t *testing.T, mr *miniredis.Miniredis, key string) string {
	t.Helper()
	v, err := mr.Get(key)
	require.NoError(t, err)
	return v
}
