// Package retry runs remote operations with a bounded number of attempts and
// exponential backoff between them.
package retry

import (
	"context"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultUnit        = time.Second
)

// Attempt describes a failed attempt that is about to be retried.
type Attempt struct {
	Number int
	Max    int
	Wait   time.Duration
	Err    error
}

// Notify is called before each backoff wait.
type Notify func(Attempt)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy is a fixed attempt budget with un-jittered exponential backoff: after
// failed attempt i the policy waits 2^i units.
type Policy struct {
	MaxAttempts int
	Unit        time.Duration
	Sleep       SleepFunc
	OnRetry     Notify
}

func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, Unit: DefaultUnit}
}

// WithNotify returns a copy of p that reports retries to fn as well as to any
// hook already installed.
func (p Policy) WithNotify(fn Notify) Policy {
	if fn == nil {
		return p
	}
	prev := p.OnRetry
	p.OnRetry = func(a Attempt) {
		if prev != nil {
			prev(a)
		}
		fn(a)
	}
	return p
}

// Backoff returns the wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	unit := p.Unit
	if unit <= 0 {
		unit = DefaultUnit
	}
	return unit * time.Duration(1<<attempt)
}

func (p Policy) maxAttempts() int {
	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Do calls op until it succeeds, returns an error rejected by retryable, or the
// attempt budget is spent. The last error is returned unchanged so callers can
// classify it. A done context stops the loop with the context's error.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), retryable func(error) bool) (T, error) {
	var zero T
	max := p.maxAttempts()
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if attempt >= max || retryable == nil || !retryable(err) {
			return zero, err
		}
		if ctx.Err() != nil {
			return zero, err
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(Attempt{Number: attempt, Max: max, Wait: wait, Err: err})
		}
		if serr := p.sleep(ctx, wait); serr != nil {
			return zero, serr
		}
	}
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
