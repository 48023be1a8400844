package page

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/action"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
)

// PinchToZoom pinches the named element: scale above 1 zooms in, below 1
// zooms out. d 0 uses action.DefaultPinch.
func (p *Page) PinchToZoom(ctx context.Context, name string, scale float64, d time.Duration, opts ...CallOption) error {
	return p.step(ctx, name, action.Step{Action: action.Pinch, Scale: scale, Duration: d}, opts).Err
}

// TakeElementScreenshot saves a PNG of the named element once it is visible.
// Elements that cannot screenshot themselves are cut out of a full screenshot.
func (p *Page) TakeElementScreenshot(ctx context.Context, name, label string, opts ...CallOption) (core.Attachment, error) {
	if p.artifacts == nil {
		return core.Attachment{}, core.ErrConfig.WithMessagef("page %s: no artifact store configured", p.name)
	}
	q, err := p.Query(name)
	if err != nil {
		return core.Attachment{}, err
	}
	el, err := p.dispatcher.Waiter().Wait(ctx, p.backend, q, core.PredicateVisible, newCall(opts).timeout)
	if err != nil {
		p.capture(ctx, name, err)
		return core.Attachment{}, err
	}

	data, err := p.elementPNG(ctx, el)
	if err != nil {
		err = core.ErrBackend.WithLocator(name).WithMessage("element screenshot").WithCause(err)
		p.capture(ctx, name, err)
		return core.Attachment{}, err
	}
	att, err := p.artifacts.Save(p.name+"_"+label, data)
	if err != nil {
		return core.Attachment{}, err
	}
	p.attach(att)
	logger.WithFields(map[string]interface{}{"page": p.name, "locator": name, "path": att.Path}).Info("element screenshot saved")
	return att, nil
}

func (p *Page) elementPNG(ctx context.Context, el core.Element) ([]byte, error) {
	if c, ok := el.(core.ElementCapturer); ok {
		return c.Screenshot(ctx)
	}
	rect, err := el.Rect(ctx)
	if err != nil {
		return nil, err
	}
	screen, err := p.backend.Screenshot(ctx)
	if err != nil {
		return nil, err
	}
	return cropPNG(screen, rect)
}

// cropPNG cuts r out of a PNG screenshot.
func cropPNG(data []byte, r core.Bounds) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	area := image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height).Intersect(img.Bounds())
	if area.Empty() {
		return nil, fmt.Errorf("element %dx%d at (%d,%d) is outside the screenshot", r.Width, r.Height, r.X, r.Y)
	}
	sub, ok := img.(interface {
		SubImage(image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("screenshot image %T cannot be cropped", img)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(area)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Page) device() (core.Device, error) {
	d, ok := p.backend.(core.Device)
	if !ok {
		return nil, core.ErrUnsupportedAction.WithMessagef("device control not supported by %s backend", p.backend.Kind())
	}
	return d, nil
}

// RotateDevice sets the screen orientation: PORTRAIT, LANDSCAPE,
// PORTRAIT_REVERSE or LANDSCAPE_REVERSE, in any case.
func (p *Page) RotateDevice(ctx context.Context, orientation string) error {
	o, err := core.ParseOrientation(orientation)
	if err != nil {
		return err
	}
	d, err := p.device()
	if err != nil {
		return err
	}
	if err := d.SetOrientation(ctx, o); err != nil {
		err = core.ErrBackend.WithMessagef("rotate to %s", o).WithCause(err)
		p.capture(ctx, "rotate", err)
		return err
	}
	logger.WithFields(map[string]interface{}{"page": p.name, "orientation": string(o)}).Info("device rotated")
	return nil
}

// DeviceOrientation returns the current screen orientation.
func (p *Page) DeviceOrientation(ctx context.Context) (core.Orientation, error) {
	d, err := p.device()
	if err != nil {
		return "", err
	}
	return d.Orientation(ctx)
}

// BatteryLevel returns the device battery charge in percent.
func (p *Page) BatteryLevel(ctx context.Context) (int, error) {
	d, err := p.device()
	if err != nil {
		return 0, err
	}
	level, err := d.BatteryLevel(ctx)
	if err != nil {
		return 0, core.ErrBackend.WithMessage("battery level").WithCause(err)
	}
	logger.WithFields(map[string]interface{}{"page": p.name, "battery": level}).Info("battery level read")
	return level, nil
}

// DeviceLogs reads the device log of logType. An empty logType uses the
// platform default.
func (p *Page) DeviceLogs(ctx context.Context, logType string) ([]core.LogEntry, error) {
	d, err := p.device()
	if err != nil {
		return nil, err
	}
	entries, err := d.Logs(ctx, logType)
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("read %s logs", logType).WithCause(err)
	}
	return entries, nil
}

// SaveDeviceLogs reads the device log and stores it as a text attachment,
// one "timestamp level message" line per entry.
func (p *Page) SaveDeviceLogs(ctx context.Context, logType, label string) (core.Attachment, error) {
	if p.artifacts == nil {
		return core.Attachment{}, core.ErrConfig.WithMessagef("page %s: no artifact store configured", p.name)
	}
	entries, err := p.DeviceLogs(ctx, logType)
	if err != nil {
		return core.Attachment{}, err
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%d %s %s\n", e.Timestamp, e.Level, e.Message)
	}
	att, err := p.artifacts.SaveFile(p.name+"_"+label, ".log", core.AttachmentDeviceLog, core.ContentTypeText, []byte(b.String()))
	if err != nil {
		return core.Attachment{}, err
	}
	p.attach(att)
	logger.WithFields(map[string]interface{}{"page": p.name, "entries": len(entries), "path": att.Path}).Info("device logs saved")
	return att, nil
}
