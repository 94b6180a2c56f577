/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MohamedNasirS/go-throttlekit/lrucache"
)

// MemoryStore is an in-memory Store implementation that keeps window counters
// in an LRU cache bounded by the maximum number of tracked keys.
//
// Counters of different MemoryStore instances are fully independent: in a
// multi-process deployment each process enforces its own limits. Use RedisStore
// when the limits must be shared.
type MemoryStore struct {
	cache *lrucache.LRUCache[string, *windowEntry]
}

type windowEntry struct {
	mu      sync.Mutex
	count   int64
	resetAt time.Time
}

// NewMemoryStore creates a new MemoryStore tracking at most maxKeys keys.
// When the bound is exceeded, the least recently used key is evicted.
func NewMemoryStore(maxKeys int) (*MemoryStore, error) {
	cache, err := lrucache.New[string, *windowEntry](maxKeys, nil)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

// Increment adds one attempt to the key's current window.
// The lookup-or-insert happens under a single cache lock and the counter is
// mutated under the entry's own lock, so concurrent increments of one key
// always observe distinct counts.
func (s *MemoryStore) Increment(_ context.Context, key string, now time.Time, window time.Duration) (int64, time.Time, error) {
	windowEnd := now.Add(window)
	entry, _ := s.cache.GetOrAdd(key, now, windowEnd, func() *windowEntry {
		return &windowEntry{resetAt: windowEnd}
	})

	entry.mu.Lock()
	if entry.count < 0 {
		// A corrupted counter is rebuilt as if its window had expired.
		entry.count = 0
		entry.resetAt = windowEnd
	}
	entry.count++
	count, resetAt := entry.count, entry.resetAt
	entry.mu.Unlock()

	return count, resetAt, nil
}

// Reset removes the key's window entry. Resetting an absent key is a no-op.
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

// RemoveExpired removes entries whose windows ended before now.
func (s *MemoryStore) RemoveExpired(_ context.Context, now time.Time) (int, error) {
	return s.cache.RemoveExpiredBefore(now), nil
}

// Close removes all tracked entries.
func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}

// Len returns the number of currently tracked keys, expired entries included.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
