/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKeyPrefix is prepended to every key stored by RedisStore unless
// RedisStoreOpts.KeyPrefix overrides it.
const DefaultRedisKeyPrefix = "throttle:"

const redisConnectTimeout = 5 * time.Second

// RedisStoreOpts represents options for RedisStore.
type RedisStoreOpts struct {
	// Password is the password of the Redis server.
	Password string

	// DB is the Redis database number.
	DB int

	// KeyPrefix is prepended to all stored keys, isolating stores
	// that share one Redis database. DefaultRedisKeyPrefix is used if empty.
	KeyPrefix string
}

// RedisStore is a Redis-backed Store implementation. Counters live in Redis,
// so all processes sharing the same Redis database and key prefix enforce one
// set of limits. Window expiration relies on native key TTLs.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
}

// NewRedisStore creates a new RedisStore connected to the Redis server at addr
// and verifies the connection.
func NewRedisStore(addr string) (*RedisStore, error) {
	return NewRedisStoreWithOpts(addr, RedisStoreOpts{})
}

// NewRedisStoreWithOpts is a version of NewRedisStore with options.
func NewRedisStoreWithOpts(addr string, opts RedisStoreOpts) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	store := NewRedisStoreWithClient(client, opts.KeyPrefix)
	store.ownClient = true
	return store, nil
}

// NewRedisStoreWithClient creates a new RedisStore on top of an existing client
// (for example a cluster client). The client is not closed by Close.
func NewRedisStoreWithClient(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = DefaultRedisKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

// Increment adds one attempt to the key's current window.
// The increment and the window TTL are applied in one pipeline: the first
// increment of a fresh window attaches the TTL, later ones leave it untouched,
// so the window end never moves however many attempts are rejected.
func (s *RedisStore) Increment(ctx context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	fullKey := s.keyPrefix + key

	pipe := s.client.Pipeline()
	incrCmd := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, window)
	ttlCmd := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, time.Time{}, fmt.Errorf("redis increment: %w", err)
	}

	count := incrCmd.Val()
	if count <= 0 {
		// A corrupted counter is rebuilt as if its window had expired.
		if err := s.client.Set(ctx, fullKey, 1, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis rebuild corrupted counter: %w", err)
		}
		return 1, now.Add(window), nil
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		// The key has lost its TTL (PTTL returned -1 or -2). Reattach it so the
		// window cannot outlive its duration.
		if err := s.client.PExpire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("redis reattach ttl: %w", err)
		}
		ttl = window
	}
	return count, now.Add(ttl), nil
}

// Reset removes the key's window entry. Resetting an absent key is a no-op.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis reset: %w", err)
	}
	return nil
}

// RemoveExpired is a no-op: Redis expires window entries natively by TTL.
func (s *RedisStore) RemoveExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// Close closes the underlying client if the store created it.
func (s *RedisStore) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}
