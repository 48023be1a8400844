// Package mock provides an in-memory backend for testing without a real device
// or browser.
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Backend is a scriptable implementation of core.Backend, core.Toucher,
// core.Pincher, core.Device and core.Navigator. Elements are registered by
// query value.
type Backend struct {
	Config Config

	mu          sync.Mutex
	elements    map[string][]*entry
	gestures    []Gesture
	findCalls   int
	orientation core.Orientation
	battery     int
	logs        []core.LogEntry
	title       string
	url         string
}

// Config configures mock backend behavior.
type Config struct {
	// Kind reported to the resolver. Defaults to core.BackendMock.
	Kind core.BackendKind
	// Viewport reported by Viewport. Defaults to 1080x2400.
	Viewport core.Size
	// FindDelay adds artificial latency to every lookup.
	FindDelay time.Duration
	// FindErr makes every lookup fail.
	FindErr error
	// AutoCreate answers every query with a visible, enabled element.
	AutoCreate bool
	// Screen is returned by Screenshot. Defaults to a 1x1 PNG.
	Screen []byte
}

type entry struct {
	el       *Element
	appearAt time.Time
	goneAt   time.Time
}

// Gesture is a recorded pointer gesture. A pinch records its first finger in
// From and To and its second finger in From2 and To2.
type Gesture struct {
	Kind     string // tap, longPress, swipe, pinch
	From     core.Point
	To       core.Point
	From2    core.Point
	To2      core.Point
	Duration time.Duration
}

// New creates a new mock backend.
func New(cfg Config) *Backend {
	if cfg.Kind == 0 {
		cfg.Kind = core.BackendMock
	}
	if cfg.Viewport == (core.Size{}) {
		cfg.Viewport = core.Size{Width: 1080, Height: 2400}
	}
	return &Backend{
		Config:      cfg,
		elements:    map[string][]*entry{},
		orientation: core.OrientationPortrait,
		battery:     100,
	}
}

// Add registers el as a match for queries with the given value.
func (b *Backend) Add(value string, el *Element) *Element {
	return b.AddAfter(value, el, 0)
}

// AddAfter registers el so it starts matching after delay.
func (b *Backend) AddAfter(value string, el *Element, delay time.Duration) *Element {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.elements[value] = append(b.elements[value], &entry{el: el, appearAt: time.Now().Add(delay)})
	return el
}

// RemoveAfter makes every element registered under value stop matching after delay.
func (b *Backend) RemoveAfter(value string, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	gone := time.Now().Add(delay)
	for _, e := range b.elements[value] {
		e.goneAt = gone
	}
}

// Remove drops every element registered under value.
func (b *Backend) Remove(value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.elements, value)
}

// Kind implements core.Backend.
func (b *Backend) Kind() core.BackendKind {
	return b.Config.Kind
}

// FindAll implements core.Backend.
func (b *Backend) FindAll(ctx context.Context, q core.Query) ([]core.Element, error) {
	b.mu.Lock()
	b.findCalls++
	b.mu.Unlock()

	if b.Config.FindDelay > 0 {
		t := time.NewTimer(b.Config.FindDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	if b.Config.FindErr != nil {
		return nil, b.Config.FindErr
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	var found []core.Element
	for _, e := range b.elements[q.Value] {
		if now.Before(e.appearAt) {
			continue
		}
		if !e.goneAt.IsZero() && !now.Before(e.goneAt) {
			continue
		}
		found = append(found, e.el)
	}
	if len(found) == 0 && b.Config.AutoCreate {
		el := NewElement("Mock Element")
		b.elements[q.Value] = append(b.elements[q.Value], &entry{el: el, appearAt: now})
		found = append(found, el)
	}
	return found, nil
}

// FindCalls returns how many lookups were made.
func (b *Backend) FindCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.findCalls
}

// Screenshot returns Config.Screen or a 1x1 PNG.
func (b *Backend) Screenshot(ctx context.Context) ([]byte, error) {
	if b.Config.Screen != nil {
		return b.Config.Screen, nil
	}
	// Minimal valid PNG (1x1 transparent pixel)
	return []byte{
		0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
		0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
		0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
		0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
		0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
		0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
		0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
		0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
		0x42, 0x60, 0x82,
	}, nil
}

// Viewport implements core.Toucher.
func (b *Backend) Viewport(ctx context.Context) (core.Size, error) {
	return b.Config.Viewport, nil
}

// Tap implements core.Toucher.
func (b *Backend) Tap(ctx context.Context, p core.Point) error {
	b.record(Gesture{Kind: "tap", From: p, To: p})
	return nil
}

// LongPress implements core.Toucher.
func (b *Backend) LongPress(ctx context.Context, p core.Point, d time.Duration) error {
	b.record(Gesture{Kind: "longPress", From: p, To: p, Duration: d})
	return nil
}

// Swipe implements core.Toucher.
func (b *Backend) Swipe(ctx context.Context, from, to core.Point, d time.Duration) error {
	b.record(Gesture{Kind: "swipe", From: from, To: to, Duration: d})
	return nil
}

// Pinch implements core.Pincher.
func (b *Backend) Pinch(ctx context.Context, finger1, finger2 [2]core.Point, d time.Duration) error {
	b.record(Gesture{
		Kind: "pinch", From: finger1[0], To: finger1[1],
		From2: finger2[0], To2: finger2[1], Duration: d,
	})
	return nil
}

// Orientation implements core.Device.
func (b *Backend) Orientation(ctx context.Context) (core.Orientation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orientation, nil
}

// SetOrientation implements core.Device.
func (b *Backend) SetOrientation(ctx context.Context, o core.Orientation) error {
	if _, err := core.ParseOrientation(string(o)); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orientation = o
	return nil
}

// SetBatteryLevel changes the level reported by BatteryLevel.
func (b *Backend) SetBatteryLevel(percent int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.battery = percent
}

// BatteryLevel implements core.Device.
func (b *Backend) BatteryLevel(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.battery, nil
}

// AddLog appends an entry returned by the next Logs call.
func (b *Backend) AddLog(e core.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, e)
}

// Logs implements core.Device. Entries are returned once, like a device
// log buffer read.
func (b *Backend) Logs(ctx context.Context, logType string) ([]core.LogEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	logs := b.logs
	b.logs = nil
	return logs, nil
}

// Navigate sets the title and URL reported to core.Navigator callers.
func (b *Backend) Navigate(title, url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.title, b.url = title, url
}

// Title implements core.Navigator.
func (b *Backend) Title(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.title, nil
}

// URL implements core.Navigator.
func (b *Backend) URL(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url, nil
}

func (b *Backend) record(g Gesture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gestures = append(b.gestures, g)
}

// Gestures returns the recorded gestures in order.
func (b *Backend) Gestures() []Gesture {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Gesture, len(b.gestures))
	copy(out, b.gestures)
	return out
}

// WithoutGestures hides every optional capability of b, like a backend that
// only finds elements and takes screenshots.
func WithoutGestures(b *Backend) core.Backend {
	return plain{b: b}
}

type plain struct{ b *Backend }

func (p plain) Kind() core.BackendKind { return p.b.Kind() }

func (p plain) FindAll(ctx context.Context, q core.Query) ([]core.Element, error) {
	return p.b.FindAll(ctx, q)
}

func (p plain) Screenshot(ctx context.Context) ([]byte, error) { return p.b.Screenshot(ctx) }

// Element is a mock UI element. It is safe for concurrent use.
type Element struct {
	mu       sync.Mutex
	text     string
	attrs    map[string]string
	visible  bool
	enabled  bool
	bounds   core.Bounds
	clicks   int
	clickErr error
}

// NewElement creates a visible, enabled element with the given text.
func NewElement(text string) *Element {
	return &Element{
		text:    text,
		attrs:   map[string]string{},
		visible: true,
		enabled: true,
		bounds:  core.Bounds{X: 100, Y: 200, Width: 200, Height: 50},
	}
}

// SetVisible changes visibility.
func (e *Element) SetVisible(v bool) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visible = v
	return e
}

// SetEnabled changes the enabled state.
func (e *Element) SetEnabled(v bool) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enabled = v
	return e
}

// SetBounds changes the element rect.
func (e *Element) SetBounds(b core.Bounds) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bounds = b
	return e
}

// SetAttribute sets an attribute value.
func (e *Element) SetAttribute(name, value string) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attrs[name] = value
	return e
}

// FailClicks makes every Click return err.
func (e *Element) FailClicks(err error) *Element {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clickErr = err
	return e
}

// Clicks returns the number of successful clicks.
func (e *Element) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Value returns the current text without a context.
func (e *Element) Value() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text
}

// Click implements core.Element.
func (e *Element) Click(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.clickErr != nil {
		return e.clickErr
	}
	if !e.visible || !e.enabled {
		return core.ErrElementNotInteractable
	}
	e.clicks++
	return nil
}

// SendKeys implements core.Element.
func (e *Element) SendKeys(ctx context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return core.ErrElementNotInteractable
	}
	e.text += text
	return nil
}

// Clear implements core.Element.
func (e *Element) Clear(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.enabled {
		return core.ErrElementNotInteractable
	}
	e.text = ""
	return nil
}

// Text implements core.Element.
func (e *Element) Text(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.text, nil
}

// Attribute implements core.Element. "text" reads the element text.
func (e *Element) Attribute(ctx context.Context, name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.attrs[name]; ok {
		return v, nil
	}
	switch name {
	case "text":
		return e.text, nil
	case "enabled":
		return fmt.Sprint(e.enabled), nil
	case "displayed":
		return fmt.Sprint(e.visible), nil
	}
	return "", nil
}

// Displayed implements core.Element.
func (e *Element) Displayed(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.visible, nil
}

// Enabled implements core.Element.
func (e *Element) Enabled(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled, nil
}

// Rect implements core.Element.
func (e *Element) Rect(ctx context.Context) (core.Bounds, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bounds, nil
}
