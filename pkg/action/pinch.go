package action

import (
	"time"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// DefaultPinch is the pinch duration when a step gives none.
const DefaultPinch = 500 * time.Millisecond

// PinchPaths returns the start and end points of both fingers for a pinch of
// scale over r. The fingers move along the diagonal through the element
// centre: apart when scale is above 1, together otherwise.
func PinchPaths(r core.Bounds, scale float64) (finger1, finger2 [2]core.Point) {
	c := r.Center()
	w, h := r.Width, r.Height
	if h < w {
		w = h
	}
	offset := float64(w) / 4

	var start, end float64
	if scale > 1 {
		start, end = offset/2, offset*scale
	} else {
		start, end = offset/scale, offset/2
	}
	at := func(sign, off float64) core.Point {
		return core.Point{X: c.X + int(sign*off), Y: c.Y + int(sign*off)}
	}
	finger1 = [2]core.Point{at(-1, start), at(-1, end)}
	finger2 = [2]core.Point{at(1, start), at(1, end)}
	return finger1, finger2
}
