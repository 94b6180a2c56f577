/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"time"
)

// Store is an interface for counting attempts per key within fixed windows.
// Implementations must be safe for concurrent use, and Increment must be atomic:
// two concurrent increments of the same key can never observe the same count.
//
// Window entries are not readable or mutable outside of these operations,
// which keeps every backend free to pick its own representation.
type Store interface {
	// Increment adds one attempt to the key's current window and returns the
	// resulting count together with the window's end time. If the key is absent,
	// or its window has ended (now is strictly after the window's end), a fresh
	// window [now, now+window] is started and the returned count is 1.
	Increment(ctx context.Context, key string, now time.Time, window time.Duration) (count int64, resetAt time.Time, err error)

	// Reset removes the key's window entry so that the next increment starts a
	// fresh window. Resetting an absent key is not an error.
	Reset(ctx context.Context, key string) error

	// RemoveExpired removes entries whose windows ended before now and returns
	// the number of removed entries. Backends with native expiration may report 0.
	RemoveExpired(ctx context.Context, now time.Time) (int, error)

	// Close releases resources held by the store.
	Close() error
}
