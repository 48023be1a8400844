package action

import (
	"context"
	"fmt"
	"strings"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Direction is a screen swipe direction.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Up    Direction = "up"
	Down  Direction = "down"
)

// DefaultPercentage is the traversal used when a swipe gives none.
const DefaultPercentage = 0.75

// ParseDirection accepts a direction name in any case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Left, Right, Up, Down:
		return d, nil
	}
	return "", core.ErrInvalidArgument.WithMessagef("invalid direction %q: use left, right, up or down", s)
}

// SwipePoints computes start and end points for a directional swipe on a
// viewport. Coordinates are truncated toward zero.
//
//	left:  x 0.8w -> (1-pct)w   right: x 0.2w -> pct*w     (y at 0.5h)
//	up:    y 0.7h -> (1-pct)h   down:  y 0.3h -> pct*h     (x at 0.5w)
func SwipePoints(size core.Size, dir Direction, pct float64) (from, to core.Point, err error) {
	if !(pct > 0 && pct <= 1) {
		return from, to, core.ErrInvalidArgument.WithMessagef("percentage must be in (0, 1], got %v", pct)
	}
	w, h := float64(size.Width), float64(size.Height)
	midX, midY := int(w*0.5), int(h*0.5)

	switch dir {
	case Left:
		return core.Point{X: int(w * 0.8), Y: midY}, core.Point{X: int(w * (1 - pct)), Y: midY}, nil
	case Right:
		return core.Point{X: int(w * 0.2), Y: midY}, core.Point{X: int(w * pct), Y: midY}, nil
	case Up:
		return core.Point{X: midX, Y: int(h * 0.7)}, core.Point{X: midX, Y: int(h * (1 - pct))}, nil
	case Down:
		return core.Point{X: midX, Y: int(h * 0.3)}, core.Point{X: midX, Y: int(h * pct)}, nil
	}
	_, err = ParseDirection(string(dir))
	return from, to, err
}

func (d *Dispatcher) swipeDirection(ctx context.Context, s Step) error {
	t, err := d.toucher(s)
	if err != nil {
		return err
	}
	pct := s.Percentage
	if pct == 0 {
		pct = DefaultPercentage
	}
	if _, err := ParseDirection(string(s.Direction)); err != nil {
		return err
	}
	if s.Duration < 0 {
		return core.ErrInvalidArgument.WithMessage("duration must not be negative")
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()

	// Viewport is read on every call; orientation may have changed.
	size, err := t.Viewport(actx)
	if err != nil {
		return core.ErrBackend.WithMessage("reading viewport").WithCause(err)
	}
	from, to, err := SwipePoints(size, Direction(strings.ToLower(string(s.Direction))), pct)
	if err != nil {
		return err
	}
	if err := t.Swipe(actx, from, to, s.Duration); err != nil {
		return d.interact(s.Query, err)
	}
	return nil
}

func (d *Dispatcher) swipeCoordinates(ctx context.Context, s Step) error {
	t, err := d.toucher(s)
	if err != nil {
		return err
	}

	actx, cancel := d.actionContext(ctx)
	defer cancel()

	size, err := t.Viewport(actx)
	if err != nil {
		return core.ErrBackend.WithMessage("reading viewport").WithCause(err)
	}
	for _, c := range []struct {
		name  string
		value int
		max   int
	}{
		{"start x", s.From.X, size.Width},
		{"end x", s.To.X, size.Width},
		{"start y", s.From.Y, size.Height},
		{"end y", s.To.Y, size.Height},
	} {
		if c.value < 0 || c.value > c.max {
			return core.ErrInvalidArgument.WithMessage(fmt.Sprintf("invalid %s: %d, must be between 0 and %d", c.name, c.value, c.max))
		}
	}
	if err := t.Swipe(actx, s.From, s.To, s.Duration); err != nil {
		return d.interact(s.Query, err)
	}
	return nil
}
