// File: internal/wait/wait.go

// Package wait bridges asynchronous page updates into blocking calls. The
// browser exposes no push notifications for DOM changes, so every wait here is
// a paced poll of a probe against live state.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// finalProbeGrace caps the last probe taken once the budget is spent.
const finalProbeGrace = 500 * time.Millisecond

// ErrTimeout is matched by every *TimeoutError.
var ErrTimeout = errors.New("wait timed out")

// TimeoutError reports a condition that never held within its budget.
type TimeoutError struct {
	// Description names what was awaited, e.g. "chat panel to become visible".
	Description string
	Timeout     time.Duration
	// Last is the most recent probe error, if the probe was failing.
	Last error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("timed out after %s waiting for %s", e.Timeout, e.Description)
	if e.Last != nil {
		msg += fmt.Sprintf(" (last error: %v)", e.Last)
	}
	return msg
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *TimeoutError) Unwrap() error { return e.Last }

// Condition probes live state once. It returns the observed value and whether
// the awaited condition holds.
type Condition[T any] func(ctx context.Context) (T, bool, error)

// Options configures a single wait.
type Options struct {
	Timeout     time.Duration
	Interval    time.Duration
	Description string
	// Retry decides whether a probe error is transient. A nil Retry treats
	// every probe error as fatal.
	Retry func(error) bool
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Description == "" {
		o.Description = "condition"
	}
	return o
}

// Until polls cond until it reports true, returns a non-retryable error, or
// the timeout elapses. Probes are spaced at least Interval apart. Cancellation
// of the parent context is returned as-is and never reported as a timeout.
func Until[T any](ctx context.Context, opts Options, cond Condition[T]) (T, error) {
	opts = opts.withDefaults()
	var zero T

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	var last error

	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			// The limiter gives up early when the next slot falls past the
			// deadline; take one final probe before reporting the timeout.
			return finalProbe(ctx, opts, cond, last)
		}

		value, ok, err := cond(waitCtx)
		switch {
		case err == nil && ok:
			return value, nil
		case err != nil:
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return zero, &TimeoutError{Description: opts.Description, Timeout: opts.Timeout, Last: err}
			}
			if opts.Retry == nil || !opts.Retry(err) {
				return zero, err
			}
			last = err
		default:
			last = nil
		}
	}
}

// finalProbe runs after the budget is spent, under its own short deadline so a
// stalled probe cannot stretch the wait past Timeout by more than the grace.
func finalProbe[T any](ctx context.Context, opts Options, cond Condition[T], last error) (T, error) {
	var zero T
	probeCtx, cancel := context.WithTimeout(ctx, min(opts.Interval, finalProbeGrace))
	defer cancel()

	value, ok, err := cond(probeCtx)
	if err == nil && ok {
		return value, nil
	}
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	if err != nil && probeCtx.Err() == nil {
		last = err
	}
	return zero, &TimeoutError{Description: opts.Description, Timeout: opts.Timeout, Last: last}
}

// For is the boolean form of Until.
func For(ctx context.Context, opts Options, probe func(ctx context.Context) (bool, error)) error {
	_, err := Until(ctx, opts, func(ctx context.Context) (struct{}, bool, error) {
		ok, err := probe(ctx)
		return struct{}{}, ok, err
	})
	return err
}
