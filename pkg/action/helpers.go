package action

import (
	"context"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// TapOn taps the element once it is clickable.
func (d *Dispatcher) TapOn(ctx context.Context, q core.Query, timeout time.Duration) core.ActionOutcome {
	return d.Dispatch(ctx, Step{Action: Tap, Query: q, Timeout: timeout})
}

// TypeInto clears the element and sends text.
func (d *Dispatcher) TypeInto(ctx context.Context, q core.Query, text string, timeout time.Duration) core.ActionOutcome {
	return d.Dispatch(ctx, Step{Action: Type, Query: q, Text: text, Timeout: timeout})
}

// TextOf reads the element text.
func (d *Dispatcher) TextOf(ctx context.Context, q core.Query, timeout time.Duration) core.ActionOutcome {
	return d.Dispatch(ctx, Step{Action: ReadText, Query: q, Timeout: timeout})
}

// AttributeOf reads one element attribute.
func (d *Dispatcher) AttributeOf(ctx context.Context, q core.Query, name string, timeout time.Duration) core.ActionOutcome {
	return d.Dispatch(ctx, Step{Action: ReadAttribute, Query: q, Attribute: name, Timeout: timeout})
}

// Swipe performs a directional swipe across the viewport.
func (d *Dispatcher) Swipe(ctx context.Context, dir Direction, pct float64, duration time.Duration) core.ActionOutcome {
	return d.Dispatch(ctx, Step{Action: SwipeDirection, Direction: dir, Percentage: pct, Duration: duration})
}
