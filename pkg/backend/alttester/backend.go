package alttester

import (
	"context"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Backend adapts a Client to core.Backend and core.Toucher.
//
// Points handed to the Toucher methods use the top-left origin shared by the
// other backends; they are flipped to Unity's bottom-left origin on the wire.
type Backend struct {
	client *Client
}

// New wraps an open client.
func New(c *Client) *Backend {
	return &Backend{client: c}
}

// Client returns the underlying connection.
func (b *Backend) Client() *Client {
	return b.client
}

// Close closes the connection.
func (b *Backend) Close(ctx context.Context) error {
	return b.client.Close()
}

// Kind implements core.Backend.
func (b *Backend) Kind() core.BackendKind {
	return core.BackendGame
}

// FindAll implements core.Backend. Strategies are the AltTester By names.
func (b *Backend) FindAll(ctx context.Context, q core.Query) ([]core.Element, error) {
	objs, err := b.client.FindObjects(ctx, q.Strategy, q.Value)
	if err != nil {
		return nil, err
	}
	els := make([]core.Element, len(objs))
	for i, o := range objs {
		els[i] = &element{client: b.client, obj: o}
	}
	return els, nil
}

// Screenshot implements core.Backend.
func (b *Backend) Screenshot(ctx context.Context) ([]byte, error) {
	encoded, err := b.client.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(encoded)
}

// Viewport implements core.Toucher.
func (b *Backend) Viewport(ctx context.Context) (core.Size, error) {
	w, h, err := b.client.ScreenSize(ctx)
	if err != nil {
		return core.Size{}, err
	}
	return core.Size{Width: w, Height: h}, nil
}

// Tap implements core.Toucher.
func (b *Backend) Tap(ctx context.Context, p core.Point) error {
	h, err := b.height(ctx)
	if err != nil {
		return err
	}
	return b.client.TapCoordinates(ctx, p.X, h-p.Y)
}

// LongPress implements core.Toucher as a stationary swipe.
func (b *Backend) LongPress(ctx context.Context, p core.Point, d time.Duration) error {
	return b.Swipe(ctx, p, p, d)
}

// Swipe implements core.Toucher.
func (b *Backend) Swipe(ctx context.Context, from, to core.Point, d time.Duration) error {
	h, err := b.height(ctx)
	if err != nil {
		return err
	}
	return b.client.Swipe(ctx, from.X, h-from.Y, to.X, h-to.Y, d)
}

func (b *Backend) height(ctx context.Context) (int, error) {
	_, h, err := b.client.ScreenSize(ctx)
	return h, err
}

type element struct {
	client *Client
	obj    Object
}

func (e *element) Click(ctx context.Context) error {
	return e.client.TapObject(ctx, e.obj, 1)
}

// SendKeys appends text: the server only supports replacing the whole value.
func (e *element) SendKeys(ctx context.Context, text string) error {
	current, err := e.client.GetText(ctx, e.obj)
	if err != nil {
		return err
	}
	return e.client.SetText(ctx, e.obj, current+text)
}

func (e *element) Clear(ctx context.Context) error {
	return e.client.SetText(ctx, e.obj, "")
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.client.GetText(ctx, e.obj)
}

// Attribute reads an object field (name, id, type, enabled), the text, or a
// component property written as "Component.property".
func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	switch name {
	case "name":
		return e.obj.Name, nil
	case "id":
		return strconv.Itoa(e.obj.ID), nil
	case "type":
		return e.obj.Type, nil
	case "enabled":
		return strconv.FormatBool(e.obj.Enabled), nil
	case "text":
		return e.client.GetText(ctx, e.obj)
	}
	i := strings.LastIndex(name, ".")
	if i <= 0 || i == len(name)-1 {
		return "", core.ErrInvalidArgument.WithMessagef("attribute %q: want Component.property", name)
	}
	return e.client.ComponentProperty(ctx, e.obj, name[:i], name[i+1:])
}

// Displayed is always true: findObjects only reports objects active in the hierarchy.
func (e *element) Displayed(ctx context.Context) (bool, error) {
	return true, nil
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	return e.obj.Enabled, nil
}

// Rect reports the object's screen position as a zero-size box.
func (e *element) Rect(ctx context.Context) (core.Bounds, error) {
	return core.Bounds{X: e.obj.X, Y: e.obj.MobileY}, nil
}
