package appium

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Backend adapts a connected Client to core.Backend, core.Toucher,
// core.Pincher and core.Device.
type Backend struct {
	client *Client
	appID  string // package or bundle ID terminated on Close
}

// New wraps a connected client. appID may be empty.
func New(client *Client, appID string) *Backend {
	return &Backend{client: client, appID: appID}
}

// Client returns the underlying WebDriver client.
func (b *Backend) Client() *Client {
	return b.client
}

// Kind implements core.Backend.
func (b *Backend) Kind() core.BackendKind {
	return core.BackendMobile
}

// FindAll implements core.Backend.
func (b *Backend) FindAll(ctx context.Context, q core.Query) ([]core.Element, error) {
	ids, err := b.client.FindElements(ctx, q.Strategy, q.Value)
	if err != nil {
		return nil, err
	}
	els := make([]core.Element, len(ids))
	for i, id := range ids {
		els[i] = &element{client: b.client, id: id}
	}
	return els, nil
}

// Screenshot implements core.Backend.
func (b *Backend) Screenshot(ctx context.Context) ([]byte, error) {
	return b.client.Screenshot(ctx)
}

// Viewport implements core.Toucher.
func (b *Backend) Viewport(ctx context.Context) (core.Size, error) {
	w, h, err := b.client.WindowRect(ctx)
	if err != nil {
		return core.Size{}, err
	}
	return core.Size{Width: w, Height: h}, nil
}

// Tap implements core.Toucher.
func (b *Backend) Tap(ctx context.Context, p core.Point) error {
	return b.client.Tap(ctx, p.X, p.Y)
}

// LongPress implements core.Toucher.
func (b *Backend) LongPress(ctx context.Context, p core.Point, d time.Duration) error {
	return b.client.LongPress(ctx, p.X, p.Y, int(d.Milliseconds()))
}

// Swipe implements core.Toucher.
func (b *Backend) Swipe(ctx context.Context, from, to core.Point, d time.Duration) error {
	return b.client.Swipe(ctx, from.X, from.Y, to.X, to.Y, int(d.Milliseconds()))
}

// Pinch implements core.Pincher.
func (b *Backend) Pinch(ctx context.Context, finger1, finger2 [2]core.Point, d time.Duration) error {
	path := func(f [2]core.Point) [2][2]int {
		return [2][2]int{{f[0].X, f[0].Y}, {f[1].X, f[1].Y}}
	}
	return b.client.Pinch(ctx, path(finger1), path(finger2), int(d.Milliseconds()))
}

// reverseRotation maps the reverse orientations, which the orientation
// endpoint cannot express, to a z rotation.
var reverseRotation = map[core.Orientation]int{
	core.OrientationPortraitReverse:  180,
	core.OrientationLandscapeReverse: 270,
}

// Orientation implements core.Device.
func (b *Backend) Orientation(ctx context.Context) (core.Orientation, error) {
	o, err := b.client.GetOrientation(ctx)
	if err != nil {
		return "", err
	}
	return core.ParseOrientation(o)
}

// SetOrientation implements core.Device.
func (b *Backend) SetOrientation(ctx context.Context, o core.Orientation) error {
	if z, ok := reverseRotation[o]; ok {
		return b.client.SetRotation(ctx, z)
	}
	return b.client.SetOrientation(ctx, string(o))
}

// BatteryLevel implements core.Device.
func (b *Backend) BatteryLevel(ctx context.Context) (int, error) {
	return b.client.BatteryLevel(ctx)
}

// Logs implements core.Device. An empty logType reads "logcat" on Android
// and "syslog" on iOS.
func (b *Backend) Logs(ctx context.Context, logType string) ([]core.LogEntry, error) {
	if logType == "" {
		logType = "logcat"
		if b.client.Platform() == "ios" {
			logType = "syslog"
		}
	}
	return b.client.GetLogs(ctx, logType)
}

// Close terminates the app under test, then ends the session. Both errors are reported.
func (b *Backend) Close(ctx context.Context) error {
	var err error
	if b.appID != "" && b.client.SessionID() != "" {
		err = b.client.TerminateApp(ctx, b.appID)
	}
	return multierr.Append(err, b.client.Disconnect(ctx))
}

type element struct {
	client *Client
	id     string
}

func (e *element) Click(ctx context.Context) error {
	return e.client.ClickElement(ctx, e.id)
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.client.SendKeysToElement(ctx, e.id, text)
}

func (e *element) Clear(ctx context.Context) error {
	return e.client.ClearElement(ctx, e.id)
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.client.GetElementText(ctx, e.id)
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	return e.client.GetElementAttribute(ctx, e.id, name)
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	return e.client.IsElementDisplayed(ctx, e.id)
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	return e.client.IsElementEnabled(ctx, e.id)
}

func (e *element) Rect(ctx context.Context) (core.Bounds, error) {
	x, y, w, h, err := e.client.GetElementRect(ctx, e.id)
	if err != nil {
		return core.Bounds{}, err
	}
	return core.Bounds{X: x, Y: y, Width: w, Height: h}, nil
}

func (e *element) Screenshot(ctx context.Context) ([]byte, error) {
	return e.client.ElementScreenshot(ctx, e.id)
}
