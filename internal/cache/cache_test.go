package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGet(t *testing.T) {
	store, err := NewMemoryStore(1 << 20)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte(`[1,2]`), time.Minute))
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`[1,2]`), value)
}

func TestMemoryStore_Expires(t *testing.T) {
	store, err := NewMemoryStore(1 << 20)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 50*time.Millisecond))
	require.Eventually(t, func() bool {
		_, ok, _ := store.Get(ctx, "k")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewMemoryStore_InvalidSize(t *testing.T) {
	_, err := NewMemoryStore(0)
	require.Error(t, err)
}

func newTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, "projectd:")
	t.Cleanup(func() {
		store.Close()
	})
	return store, mr
}

func TestRedisStore_SetGet(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte(`{"a":1}`), time.Minute))
	value, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"a":1}`), value)

	// Keys are namespaced.
	require.True(t, mr.Exists("projectd:k"))
	require.Equal(t, time.Minute, mr.TTL("projectd:k"))
}

func TestRedisStore_Expires(t *testing.T) {
	store, mr := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	store := NewRedisStore(client, "projectd:")
	t.Cleanup(func() {
		store.Close()
	})
	mr.Close()

	_, _, err = store.Get(context.Background(), "k")
	require.Error(t, err)
	require.Error(t, store.Ping(context.Background()))
}
