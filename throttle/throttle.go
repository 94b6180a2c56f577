/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Default configuration values used when the corresponding Config fields are zero.
const (
	DefaultWindowDuration = 15 * time.Minute
	DefaultMaxAttempts    = 5
	DefaultMaxKeys        = 10000
)

// DefaultRejectionMessage is the message returned to clients of rejected
// requests when Config.RejectionMessage is empty.
const DefaultRejectionMessage = "Too many requests, please try again later."

// Decision is the outcome of a single throttling check.
type Decision struct {
	// Admitted reports whether the checked attempt fits into the current window.
	Admitted bool

	// Limit is the configured maximum number of attempts per window.
	Limit int

	// Remaining is the number of attempts left in the current window, never negative.
	Remaining int

	// ResetAt is the time when the current window ends and the counter starts over.
	ResetAt time.Time

	// RetryAfterSeconds is the number of seconds (rounded up) until ResetAt.
	// It is populated only for rejected attempts.
	RetryAfterSeconds int
}

// Config is a configuration for Throttle.
// Zero values of the fields are replaced with the defaults by the constructors.
type Config struct {
	// WindowDuration is the length of the fixed counting window.
	WindowDuration time.Duration

	// MaxAttempts is the maximum number of attempts admitted within one window.
	MaxAttempts int

	// KeyFunc derives the throttling key from the incoming request.
	// It is used by KeyForRequest and ResetForRequest.
	KeyFunc KeyFunc

	// RejectionMessage is the human-readable message for rejected requests.
	RejectionMessage string

	// MaxKeys bounds the number of tracked keys in the in-memory store.
	// It is ignored when a custom store is supplied.
	MaxKeys int
}

func (c Config) withDefaults() Config {
	if c.WindowDuration == 0 {
		c.WindowDuration = DefaultWindowDuration
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.KeyFunc == nil {
		c.KeyFunc = ByClientAddress()
	}
	if c.RejectionMessage == "" {
		c.RejectionMessage = DefaultRejectionMessage
	}
	if c.MaxKeys == 0 {
		c.MaxKeys = DefaultMaxKeys
	}
	return c
}

// Throttle counts attempts per key in fixed windows and decides whether each
// attempt is admitted. All methods are safe for concurrent use.
type Throttle struct {
	window           time.Duration
	maxAttempts      int
	keyFunc          KeyFunc
	rejectionMessage string
	store            Store
	metricsCollector MetricsCollector
}

// New creates a new Throttle backed by the bounded in-memory store.
// If metricsCollector is nil, metrics collection is disabled.
func New(cfg Config, metricsCollector MetricsCollector) (*Throttle, error) {
	cfg = cfg.withDefaults()
	store, err := NewMemoryStore(cfg.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("new memory store: %w", err)
	}
	return NewWithStore(cfg, store, metricsCollector)
}

// NewWithStore creates a new Throttle on top of the provided store.
// If metricsCollector is nil, metrics collection is disabled.
func NewWithStore(cfg Config, store Store, metricsCollector MetricsCollector) (*Throttle, error) {
	cfg = cfg.withDefaults()
	if cfg.WindowDuration < 0 {
		return nil, fmt.Errorf("window duration must be positive, got %s", cfg.WindowDuration)
	}
	if cfg.MaxAttempts < 0 {
		return nil, fmt.Errorf("max attempts must be positive, got %d", cfg.MaxAttempts)
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	return &Throttle{
		window:           cfg.WindowDuration,
		maxAttempts:      cfg.MaxAttempts,
		keyFunc:          cfg.KeyFunc,
		rejectionMessage: cfg.RejectionMessage,
		store:            store,
		metricsCollector: metricsCollector,
	}, nil
}

// MustNew is a version of New that panics if an error occurs.
func MustNew(cfg Config, metricsCollector MetricsCollector) *Throttle {
	t, err := New(cfg, metricsCollector)
	if err != nil {
		panic(err)
	}
	return t
}

// Check counts one attempt for the key and decides whether it is admitted.
// The attempt is counted even when it is rejected, and a rejected attempt never
// renews the window: the reported reset time always stems from the attempt that
// opened the window. A fresh window starts when now is strictly after the end
// of the previous one. Rejection is a regular decision, not an error; an error
// is returned only when the store fails.
func (t *Throttle) Check(ctx context.Context, key string, now time.Time) (Decision, error) {
	count, resetAt, err := t.store.Increment(ctx, key, now, t.window)
	if err != nil {
		return Decision{}, fmt.Errorf("increment key %q: %w", key, err)
	}

	decision := Decision{
		Admitted: count <= int64(t.maxAttempts),
		Limit:    t.maxAttempts,
		ResetAt:  resetAt,
	}
	if remaining := t.maxAttempts - int(count); remaining > 0 {
		decision.Remaining = remaining
	}
	if decision.Admitted {
		t.metricsCollector.IncAdmitted()
	} else {
		decision.RetryAfterSeconds = ceilSeconds(resetAt.Sub(now))
		t.metricsCollector.IncRejected()
	}
	return decision, nil
}

// Reset removes the key's window entry, forgiving all counted attempts.
// The next check of the key behaves exactly as the first check of a never-seen
// key. Resetting an absent key is a no-op.
func (t *Throttle) Reset(ctx context.Context, key string) error {
	if err := t.store.Reset(ctx, key); err != nil {
		return fmt.Errorf("reset key %q: %w", key, err)
	}
	t.metricsCollector.IncResets()
	return nil
}

// ResetForRequest resets the window entry for the key derived from the request
// using the same key derivation Check callers use via KeyForRequest.
// A typical use is forgiving counted login attempts after a successful
// authentication. Requests excluded from throttling are left untouched.
func (t *Throttle) ResetForRequest(r *http.Request) error {
	key, bypass := t.KeyForRequest(r)
	if bypass {
		return nil
	}
	return t.Reset(r.Context(), key)
}

// KeyForRequest derives the throttling key for the request.
// Key derivation never fails the request: if the configured KeyFunc returns an
// error or an empty non-bypassed key, UnknownKey is used instead.
func (t *Throttle) KeyForRequest(r *http.Request) (key string, bypass bool) {
	key, bypass, err := t.keyFunc(r)
	if err != nil {
		return UnknownKey, false
	}
	if bypass {
		return key, true
	}
	if key == "" {
		return UnknownKey, false
	}
	return key, false
}

// Sweep removes window entries that ended before now and returns the number of
// removed entries. Sweeping is pure maintenance: it never changes the outcome
// of any check, since ended windows are treated as absent anyway.
func (t *Throttle) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed, err := t.store.RemoveExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("remove expired entries: %w", err)
	}
	t.metricsCollector.AddSweptEntries(removed)
	return removed, nil
}

// Close releases resources held by the underlying store.
func (t *Throttle) Close() error {
	return t.store.Close()
}

// MaxAttempts returns the configured maximum number of attempts per window.
func (t *Throttle) MaxAttempts() int {
	return t.maxAttempts
}

// WindowDuration returns the configured window length.
func (t *Throttle) WindowDuration() time.Duration {
	return t.window
}

// RejectionMessage returns the configured message for rejected requests.
func (t *Throttle) RejectionMessage() string {
	return t.rejectionMessage
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}
