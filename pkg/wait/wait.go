// Package wait polls a backend until a readiness predicate holds.
package wait

import (
	"context"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
)

// Defaults used when a Waiter field is zero.
const (
	DefaultTimeout  = 10 * time.Second
	DefaultInterval = 250 * time.Millisecond
)

// Waiter holds the default timeout and the poll interval.
type Waiter struct {
	Timeout  time.Duration
	Interval time.Duration
}

// New creates a Waiter. Zero or negative values fall back to the defaults.
func New(timeout, interval time.Duration) *Waiter {
	w := &Waiter{Timeout: timeout, Interval: interval}
	if w.Timeout <= 0 {
		w.Timeout = DefaultTimeout
	}
	if w.Interval <= 0 {
		w.Interval = DefaultInterval
	}
	return w
}

// Wait polls until p holds for q or the timeout elapses. The predicate is
// evaluated on entry, then every Interval, and a last time at the deadline.
// A timeout <= 0 uses the Waiter's default.
//
// Element-yielding predicates return the matched element; Absent and Hidden
// return nil. Failure after the deadline is a *core.TimeoutError naming the
// locator; cancellation of ctx is core.ErrCancelled.
func (w *Waiter) Wait(ctx context.Context, b core.Backend, q core.Query, p core.Predicate, timeout time.Duration) (core.Element, error) {
	if p.String() == "unknown" {
		return nil, core.ErrInvalidArgument.WithLocator(q.Locator).WithMessagef("unknown predicate %d", int(p))
	}

	var found core.Element
	err := w.poll(ctx, q.Locator, p.String(), timeout,
		func(lookupCtx context.Context) (bool, error) {
			el, ok, err := Check(lookupCtx, b, q, p)
			found = el
			return ok, err
		},
		func(timeout, elapsed time.Duration) *core.TimeoutError {
			return core.NewTimeoutError(q.Locator, p, timeout, elapsed)
		})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Until polls cond with the same schedule as Wait. name and condition label
// logs and the *core.TimeoutError, e.g. "url" and `matching "*/home"`.
func (w *Waiter) Until(ctx context.Context, name, condition string, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	return w.poll(ctx, name, condition, timeout, cond,
		func(timeout, elapsed time.Duration) *core.TimeoutError {
			return &core.TimeoutError{Locator: name, Condition: condition, Timeout: timeout, Elapsed: elapsed}
		})
}

func (w *Waiter) poll(ctx context.Context, name, condition string, timeout time.Duration,
	check func(ctx context.Context) (bool, error),
	timedOut func(timeout, elapsed time.Duration) *core.TimeoutError,
) error {
	if timeout <= 0 {
		timeout = w.Timeout
	}
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := time.Now()
	deadline := start.Add(timeout)

	// Lookups may not outlive the deadline by more than one interval.
	lookupCtx, cancel := context.WithDeadline(ctx, deadline.Add(interval))
	defer cancel()

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return cancelled(name, err)
		}

		ok, err := check(lookupCtx)
		if ok {
			logger.WithFields(map[string]interface{}{
				"locator":   name,
				"predicate": condition,
				"elapsed":   time.Since(start).Round(time.Millisecond).String(),
			}).Debug("wait satisfied")
			return nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cancelled(name, ctxErr)
			}
			logger.Debug("wait %s for %s: lookup failed: %v", name, condition, err)
			lastErr = err
		}

		now := time.Now()
		if !now.Before(deadline) {
			te := timedOut(timeout, now.Sub(start))
			te.Cause = lastErr
			logger.WithFields(map[string]interface{}{
				"locator":   name,
				"predicate": condition,
				"timeout":   timeout.String(),
			}).Warn("wait timed out")
			return te
		}

		next := interval
		if remaining := deadline.Sub(now); remaining < next {
			next = remaining
		}

		timer := time.NewTimer(next)
		select {
		case <-ctx.Done():
			timer.Stop()
			return cancelled(name, ctx.Err())
		case <-timer.C:
		}
	}
}

// Check evaluates p once without waiting. ok reports whether p holds.
func Check(ctx context.Context, b core.Backend, q core.Query, p core.Predicate) (el core.Element, ok bool, err error) {
	els, err := b.FindAll(ctx, q)
	if err != nil {
		return nil, false, err
	}

	switch p {
	case core.PredicatePresent:
		if len(els) == 0 {
			return nil, false, nil
		}
		return els[0], true, nil

	case core.PredicateVisible, core.PredicateClickable:
		if len(els) == 0 {
			return nil, false, nil
		}
		displayed, err := els[0].Displayed(ctx)
		if err != nil || !displayed {
			return nil, false, err
		}
		if p == core.PredicateClickable {
			enabled, err := els[0].Enabled(ctx)
			if err != nil || !enabled {
				return nil, false, err
			}
		}
		return els[0], true, nil

	case core.PredicateAbsent:
		return nil, len(els) == 0, nil

	case core.PredicateHidden:
		if len(els) == 0 {
			return nil, true, nil
		}
		displayed, err := els[0].Displayed(ctx)
		if err != nil {
			return nil, false, err
		}
		return nil, !displayed, nil
	}

	return nil, false, core.ErrInvalidArgument.WithLocator(q.Locator).WithMessagef("unknown predicate %d", int(p))
}

func cancelled(name string, cause error) error {
	return core.ErrCancelled.WithLocator(name).WithCause(cause)
}
