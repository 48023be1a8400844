// Package core provides the shared types of pagekit: locator kinds, readiness
// predicates, the backend collaborator interfaces, errors and results.
package core

import (
	"context"
	"time"
)

// Query is a locator resolved for one backend.
type Query struct {
	Locator  string    // Symbolic name from the catalogue
	Kind     QueryKind // Kind the entry declared
	Strategy string    // Backend-specific strategy: "xpath", "accessibility id", "css", "PATH", ...
	Value    string    // Raw query value
}

// Backend is an automation engine session (mobile driver, browser page,
// in-engine UI driver). Sessions are owned by the caller; the core never
// creates or closes them.
type Backend interface {
	// Kind returns the backend family, used for locator resolution.
	Kind() BackendKind

	// FindAll performs one non-blocking lookup. An absent element is an
	// empty slice, not an error.
	FindAll(ctx context.Context, q Query) ([]Element, error)

	// Screenshot captures the current screen as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Element is a transient handle to a UI element. Handles are never cached
// across steps.
type Element interface {
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Clear(ctx context.Context) error
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Rect(ctx context.Context) (Bounds, error)
}

// Toucher is implemented by backends that support pointer gestures.
type Toucher interface {
	// Viewport returns the current viewport dimensions. Not cached.
	Viewport(ctx context.Context) (Size, error)
	Tap(ctx context.Context, p Point) error
	LongPress(ctx context.Context, p Point, d time.Duration) error
	Swipe(ctx context.Context, from, to Point, d time.Duration) error
}

// Point is a viewport coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a viewport or element size.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bounds represents element position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.X && p.X < b.X+b.Width && p.Y >= b.Y && p.Y < b.Y+b.Height
}
