// Package action performs one action on a ready element and reports a uniform
// outcome.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

// Kind is an action the dispatcher can perform.
type Kind int

const (
	Tap Kind = iota + 1
	Type
	MultiTap
	LongPress
	ReadText
	ReadAttribute
	Clear
	SwipeTo
	SwipeDirection
	SwipeCoordinates
	Pinch
)

// String returns the action name used in logs and outcomes.
func (k Kind) String() string {
	switch k {
	case Tap:
		return "tap"
	case Type:
		return "type"
	case MultiTap:
		return "multi_tap"
	case LongPress:
		return "long_press"
	case ReadText:
		return "read_text"
	case ReadAttribute:
		return "read_attribute"
	case Clear:
		return "clear"
	case SwipeTo:
		return "swipe_to"
	case SwipeDirection:
		return "swipe_direction"
	case SwipeCoordinates:
		return "swipe_coordinates"
	case Pinch:
		return "pinch"
	default:
		return "unknown"
	}
}

// Predicate returns the readiness predicate an action's element must satisfy.
func (k Kind) Predicate() core.Predicate {
	switch k {
	case Tap, MultiTap, LongPress:
		return core.PredicateClickable
	case SwipeTo:
		return core.PredicateVisible
	default:
		return core.PredicatePresent
	}
}

// DefaultLongPress is the hold time when a step gives none.
const DefaultLongPress = time.Second

// Step is one action request.
type Step struct {
	Action  Kind
	Query   core.Query    // Element acted on; unused by SwipeDirection and SwipeCoordinates
	Timeout time.Duration // Readiness timeout; 0 uses the waiter default

	Text      string        // Type
	Count     int           // MultiTap
	Duration  time.Duration // LongPress hold, swipe duration
	Attribute string        // ReadAttribute
	Target    core.Query    // SwipeTo

	Direction  Direction // SwipeDirection
	Percentage float64   // SwipeDirection

	From, To core.Point // SwipeCoordinates

	Scale float64 // Pinch: above 1 zooms in, below 1 zooms out
}

// Dispatcher performs steps against one backend session.
type Dispatcher struct {
	backend core.Backend
	waiter  *wait.Waiter

	// ActionTimeout bounds each backend call after readiness. 0 means no bound.
	ActionTimeout time.Duration
}

// New creates a Dispatcher. A nil waiter uses the defaults.
func New(b core.Backend, w *wait.Waiter) *Dispatcher {
	if w == nil {
		w = wait.New(0, 0)
	}
	return &Dispatcher{backend: b, waiter: w}
}

// Backend returns the session the dispatcher acts on.
func (d *Dispatcher) Backend() core.Backend {
	return d.backend
}

// Waiter returns the readiness waiter.
func (d *Dispatcher) Waiter() *wait.Waiter {
	return d.waiter
}

// Dispatch waits for the step's element, performs the action exactly once and
// returns the outcome. Failures are never retried.
func (d *Dispatcher) Dispatch(ctx context.Context, s Step) core.ActionOutcome {
	start := time.Now()
	value, err := d.run(ctx, s)

	var out core.ActionOutcome
	switch {
	case err != nil:
		out = core.Failed(s.Action.String(), s.Query.Locator, err)
	case value != nil:
		out = core.SucceededWith(s.Action.String(), s.Query.Locator, *value)
	default:
		out = core.Succeeded(s.Action.String(), s.Query.Locator)
	}
	out.Duration = time.Since(start)

	fields := map[string]interface{}{
		"action":  out.Action,
		"elapsed": out.Duration.Round(time.Millisecond).String(),
	}
	if out.Locator != "" {
		fields["locator"] = out.Locator
	}
	if err != nil {
		logger.WithFields(fields).Errorf("action failed: %v", err)
	} else {
		logger.WithFields(fields).Info("action done")
	}
	return out
}

func (d *Dispatcher) run(ctx context.Context, s Step) (*string, error) {
	switch s.Action {
	case SwipeDirection:
		return nil, d.swipeDirection(ctx, s)
	case SwipeCoordinates:
		return nil, d.swipeCoordinates(ctx, s)
	case Tap, Type, MultiTap, LongPress, ReadText, ReadAttribute, Clear, SwipeTo, Pinch:
	default:
		return nil, core.ErrInvalidArgument.WithLocator(s.Query.Locator).WithMessagef("unknown action %d", int(s.Action))
	}

	if err := validate(s); err != nil {
		return nil, err
	}

	// One deadline covers every readiness wait of the step.
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = d.waiter.Timeout
	}
	deadline := time.Now().Add(timeout)

	el, err := d.waiter.Wait(ctx, d.backend, s.Query, s.Action.Predicate(), timeout)
	if err != nil {
		return nil, err
	}

	var target core.Element
	if s.Action == SwipeTo {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			// Deadline spent: evaluate the target once.
			remaining = time.Nanosecond
		}
		target, err = d.waiter.Wait(ctx, d.backend, s.Target, s.Action.Predicate(), remaining)
		if err != nil {
			return nil, err
		}
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()

	switch s.Action {
	case Tap:
		return nil, d.interact(s.Query, el.Click(actx))

	case MultiTap:
		for i := 0; i < s.Count; i++ {
			if err := el.Click(actx); err != nil {
				return nil, d.interact(s.Query, err)
			}
		}
		return nil, nil

	case LongPress:
		t, err := d.toucher(s)
		if err != nil {
			return nil, err
		}
		rect, err := el.Rect(actx)
		if err != nil {
			return nil, d.interact(s.Query, err)
		}
		hold := s.Duration
		if hold <= 0 {
			hold = DefaultLongPress
		}
		return nil, d.interact(s.Query, t.LongPress(actx, rect.Center(), hold))

	case Type:
		if err := el.Clear(actx); err != nil {
			return nil, d.interact(s.Query, err)
		}
		return nil, d.interact(s.Query, el.SendKeys(actx, s.Text))

	case Clear:
		return nil, d.interact(s.Query, el.Clear(actx))

	case ReadText:
		text, err := el.Text(actx)
		if err != nil {
			return nil, d.interact(s.Query, err)
		}
		return &text, nil

	case ReadAttribute:
		v, err := el.Attribute(actx, s.Attribute)
		if err != nil {
			return nil, d.interact(s.Query, err)
		}
		return &v, nil

	case SwipeTo:
		t, err := d.toucher(s)
		if err != nil {
			return nil, err
		}
		from, err := el.Rect(actx)
		if err != nil {
			return nil, d.interact(s.Query, err)
		}
		to, err := target.Rect(actx)
		if err != nil {
			return nil, d.interact(s.Target, err)
		}
		return nil, d.interact(s.Query, t.Swipe(actx, from.Center(), to.Center(), s.Duration))

	case Pinch:
		p, ok := d.backend.(core.Pincher)
		if !ok {
			return nil, core.ErrUnsupportedAction.WithLocator(s.Query.Locator).
				WithMessagef("%s not supported by %s backend", s.Action, d.backend.Kind())
		}
		rect, err := el.Rect(actx)
		if err != nil {
			return nil, d.interact(s.Query, err)
		}
		d1, d2 := PinchPaths(rect, s.Scale)
		dur := s.Duration
		if dur <= 0 {
			dur = DefaultPinch
		}
		return nil, d.interact(s.Query, p.Pinch(actx, d1, d2, dur))
	}
	return nil, nil
}

func validate(s Step) error {
	switch s.Action {
	case MultiTap:
		if s.Count < 1 {
			return core.ErrInvalidArgument.WithLocator(s.Query.Locator).WithMessagef("tap count must be at least 1, got %d", s.Count)
		}
	case ReadAttribute:
		if s.Attribute == "" {
			return core.ErrInvalidArgument.WithLocator(s.Query.Locator).WithMessage("attribute name is required")
		}
	case Pinch:
		if s.Scale <= 0 {
			return core.ErrInvalidArgument.WithLocator(s.Query.Locator).WithMessagef("pinch scale must be positive, got %g", s.Scale)
		}
	case SwipeTo:
		if s.Target.Value == "" {
			return core.ErrInvalidArgument.WithLocator(s.Query.Locator).WithMessage("swipe target is required")
		}
	}
	if s.Duration < 0 {
		return core.ErrInvalidArgument.WithLocator(s.Query.Locator).WithMessage("duration must not be negative")
	}
	return nil
}

func (d *Dispatcher) toucher(s Step) (core.Toucher, error) {
	t, ok := d.backend.(core.Toucher)
	if !ok {
		return nil, core.ErrUnsupportedAction.WithLocator(s.Query.Locator).
			WithMessagef("%s not supported by %s backend", s.Action, d.backend.Kind())
	}
	return t, nil
}

func (d *Dispatcher) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.ActionTimeout > 0 {
		return context.WithTimeout(ctx, d.ActionTimeout)
	}
	return context.WithCancel(ctx)
}

// interact names the locator on a failed backend call and classifies
// engine errors into the core taxonomy.
func (d *Dispatcher) interact(q core.Query, err error) error {
	if err == nil {
		return nil
	}
	var ee *core.ExecutionError
	if errors.As(err, &ee) {
		if ee.Locator == "" {
			return ee.WithLocator(q.Locator)
		}
		return ee
	}
	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "element not interactable", "element click intercepted",
		"invalid element state", "element is not enabled", "not visible"):
		return core.ErrElementNotInteractable.WithLocator(q.Locator).WithCause(err)
	case containsAny(msg, "stale element reference", "no such element"):
		return core.ErrLocatorNotFound.WithLocator(q.Locator).WithCause(err)
	}
	return core.ErrBackend.WithLocator(q.Locator).WithCause(err)
}

func containsAny(s string, markers ...string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ReadValue returns the value of a successful read outcome or its error.
func ReadValue(out core.ActionOutcome) (string, error) {
	if !out.Success {
		return "", out.Err
	}
	if out.Value == nil {
		return "", fmt.Errorf("%s on %s produced no value", out.Action, out.Locator)
	}
	return *out.Value, nil
}
