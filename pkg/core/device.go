package core

import (
	"context"
	"strings"
	"time"
)

// Orientation is a screen orientation as named by Appium.
type Orientation string

const (
	OrientationPortrait         Orientation = "PORTRAIT"
	OrientationLandscape        Orientation = "LANDSCAPE"
	OrientationPortraitReverse  Orientation = "PORTRAIT_REVERSE"
	OrientationLandscapeReverse Orientation = "LANDSCAPE_REVERSE"
)

// ParseOrientation accepts an orientation name in any case.
func ParseOrientation(s string) (Orientation, error) {
	o := Orientation(strings.ToUpper(strings.TrimSpace(s)))
	switch o {
	case OrientationPortrait, OrientationLandscape, OrientationPortraitReverse, OrientationLandscapeReverse:
		return o, nil
	}
	return "", ErrInvalidArgument.WithMessagef("invalid orientation %q: use PORTRAIT, LANDSCAPE, PORTRAIT_REVERSE or LANDSCAPE_REVERSE", s)
}

// LogEntry is one line of a device log.
type LogEntry struct {
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// Device is implemented by mobile backends that control the device itself.
type Device interface {
	Orientation(ctx context.Context) (Orientation, error)
	SetOrientation(ctx context.Context, o Orientation) error
	// BatteryLevel returns the charge in percent.
	BatteryLevel(ctx context.Context) (int, error)
	Logs(ctx context.Context, logType string) ([]LogEntry, error)
}

// Pincher is implemented by backends that can drive two pointers at once.
// Each finger moves from its first point to its second over d.
type Pincher interface {
	Pinch(ctx context.Context, finger1, finger2 [2]Point, d time.Duration) error
}

// Navigator is implemented by browser backends.
type Navigator interface {
	Title(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
}

// ElementCapturer is implemented by elements that can screenshot themselves.
type ElementCapturer interface {
	Screenshot(ctx context.Context) ([]byte, error)
}
