/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testRedisAddr = "localhost:6379"

func setupRedisStore(t *testing.T, keyPrefix string) *RedisStore {
	t.Helper()
	store, err := NewRedisStoreWithOpts(testRedisAddr, RedisStoreOpts{DB: 15, KeyPrefix: keyPrefix})
	if err != nil {
		t.Skip("redis is not available:", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		iter := store.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			store.client.Del(ctx, iter.Val())
		}
		require.NoError(t, store.Close())
	})
	return store
}

func TestRedisStoreIncrement(t *testing.T) {
	store := setupRedisStore(t, "test:throttle:increment:")
	ctx := context.Background()
	now := time.Now()

	for i := 1; i <= 3; i++ {
		count, resetAt, err := store.Increment(ctx, "key", now, time.Minute)
		require.NoError(t, err)
		require.Equal(t, int64(i), count)
		require.WithinDuration(t, now.Add(time.Minute), resetAt, 5*time.Second)
	}

	count, _, err := store.Increment(ctx, "other", now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRedisStoreWindowExpiration(t *testing.T) {
	store := setupRedisStore(t, "test:throttle:expiration:")
	ctx := context.Background()

	count, _, err := store.Increment(ctx, "key", time.Now(), time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	time.Sleep(1500 * time.Millisecond)

	count, _, err = store.Increment(ctx, "key", time.Now(), time.Second)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRedisStoreReset(t *testing.T) {
	store := setupRedisStore(t, "test:throttle:reset:")
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Reset(ctx, "absent"))

	for i := 0; i < 3; i++ {
		_, _, err := store.Increment(ctx, "key", now, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, store.Reset(ctx, "key"))

	count, _, err := store.Increment(ctx, "key", now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRedisStoreKeyPrefixIsolation(t *testing.T) {
	store1 := setupRedisStore(t, "test:throttle:one:")
	store2 := setupRedisStore(t, "test:throttle:two:")
	ctx := context.Background()
	now := time.Now()

	_, _, err := store1.Increment(ctx, "shared", now, time.Minute)
	require.NoError(t, err)

	count, _, err := store2.Increment(ctx, "shared", now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestRedisStoreThrottle(t *testing.T) {
	store := setupRedisStore(t, "test:throttle:e2e:")
	ctx := context.Background()

	tr, err := NewWithStore(Config{WindowDuration: time.Minute, MaxAttempts: 2}, store, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		d, checkErr := tr.Check(ctx, "login:1.2.3.4:user@x.com", time.Now())
		require.NoError(t, checkErr)
		require.True(t, d.Admitted)
	}

	d, err := tr.Check(ctx, "login:1.2.3.4:user@x.com", time.Now())
	require.NoError(t, err)
	require.False(t, d.Admitted)
	require.InDelta(t, 60, d.RetryAfterSeconds, 5)

	require.NoError(t, tr.Reset(ctx, "login:1.2.3.4:user@x.com"))
	d, err = tr.Check(ctx, "login:1.2.3.4:user@x.com", time.Now())
	require.NoError(t, err)
	require.True(t, d.Admitted)
	require.Equal(t, 1, d.Remaining)
}

func TestRedisStoreWithClient(t *testing.T) {
	// RemoveExpired and Close never touch the network for a store built on an
	// external client, Redis expires window entries by TTL on its own.
	client := redis.NewClient(&redis.Options{Addr: testRedisAddr})
	store := NewRedisStoreWithClient(client, "")
	require.Equal(t, DefaultRedisKeyPrefix, store.keyPrefix)

	removed, err := store.RemoveExpired(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 0, removed)

	// The external client is left open for its owner.
	require.NoError(t, store.Close())
	require.NoError(t, client.Close())
}
