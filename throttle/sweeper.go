/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"context"
	"time"

	"github.com/MohamedNasirS/go-throttlekit/retry"
)

// DefaultSweepInterval is the interval between sweeps used when the provided one is not positive.
const DefaultSweepInterval = time.Minute

// SweeperOpts represents options for Sweeper.
type SweeperOpts struct {
	// OnError is called when sweeping one of the throttles fails. May be nil.
	// A failed sweep never stops the sweeping loop.
	OnError func(err error)

	// RetryPolicy makes a failed sweep be retried according to the policy before
	// the error is reported via OnError. Useful with remote stores where errors
	// tend to be transient. When nil, a failed sweep is reported right away and
	// the throttle is swept again only on the next tick.
	RetryPolicy retry.Policy
}

// Sweeper periodically removes expired window entries from the registered
// throttles. Sweeping is invisible to checks (ended windows are treated as
// absent with or without it), it only reclaims memory earlier.
//
// Sweeper does not own a goroutine: the host starts Run in a goroutine of its
// choosing and stops it by canceling the context. Run satisfies the
// service.Worker interface, so a Sweeper can be managed as a service unit.
type Sweeper struct {
	throttles   []*Throttle
	interval    time.Duration
	onError     func(err error)
	retryPolicy retry.Policy
}

// NewSweeper creates a new Sweeper for the provided throttles.
// If interval is not positive, DefaultSweepInterval is used.
func NewSweeper(interval time.Duration, throttles ...*Throttle) *Sweeper {
	return NewSweeperWithOpts(interval, SweeperOpts{}, throttles...)
}

// NewSweeperWithOpts is a version of NewSweeper with options.
func NewSweeperWithOpts(interval time.Duration, opts SweeperOpts, throttles ...*Throttle) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		throttles:   throttles,
		interval:    interval,
		onError:     opts.OnError,
		retryPolicy: opts.RetryPolicy,
	}
}

// Run sweeps the registered throttles on each interval tick until the context
// is canceled. It's supposed to be run in a separate goroutine and always
// returns nil after cancellation.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepAll(ctx, time.Now())
		}
	}
}

func (s *Sweeper) sweepAll(ctx context.Context, now time.Time) {
	for _, t := range s.throttles {
		if err := s.sweepOne(ctx, t, now); err != nil && s.onError != nil {
			s.onError(err)
		}
	}
}

func (s *Sweeper) sweepOne(ctx context.Context, t *Throttle, now time.Time) error {
	if s.retryPolicy == nil {
		_, err := t.Sweep(ctx, now)
		return err
	}
	return retry.DoWithRetry(ctx, s.retryPolicy, nil, nil, func(ctx context.Context) error {
		_, err := t.Sweep(ctx, now)
		return err
	})
}
