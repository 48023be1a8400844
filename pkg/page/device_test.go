package page

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devicelab-dev/pagekit/pkg/artifact"
	"github.com/devicelab-dev/pagekit/pkg/backend/mock"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/locator"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

// screen returns a w x h PNG, red inside r and white elsewhere.
func screen(t *testing.T, w, h int, r image.Rectangle) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if image.Pt(x, y).In(r) {
				c = color.RGBA{255, 0, 0, 255}
			}
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTakeElementScreenshotCropsScreen(t *testing.T) {
	red := image.Rect(10, 20, 30, 30)
	b := mock.New(mock.Config{Screen: screen(t, 40, 40, red)})
	b.Add("welcome", mock.NewElement("hi").SetBounds(core.Bounds{X: 10, Y: 20, Width: 20, Height: 10}))
	dir := t.TempDir()
	p := newPage(t, b, WithArtifacts(artifact.New(dir, core.DefaultArtifactConfig())))

	att, err := p.TakeElementScreenshot(context.Background(), "banner", "banner")
	require.NoError(t, err)
	assert.Equal(t, core.ContentTypePNG, att.ContentType)
	assert.Contains(t, att.Path, "login_banner")

	data, err := os.ReadFile(filepath.Join(dir, att.Path))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())
	r, g, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)

	assert.Len(t, p.TakeAttachments(), 1)
}

func TestTakeElementScreenshotFailures(t *testing.T) {
	b := mock.New(mock.Config{Screen: screen(t, 40, 40, image.Rectangle{})})
	b.Add("welcome", mock.NewElement("hi").SetBounds(core.Bounds{X: 100, Y: 100, Width: 20, Height: 10}))
	ctx := context.Background()

	_, err := newPage(t, b).TakeElementScreenshot(ctx, "banner", "banner")
	assert.ErrorIs(t, err, core.ErrConfig)

	p := newPage(t, b, WithArtifacts(artifact.New(t.TempDir(), core.DefaultArtifactConfig())))
	_, err = p.TakeElementScreenshot(ctx, "banner", "banner")
	assert.ErrorIs(t, err, core.ErrBackend)
	assert.Contains(t, err.Error(), "outside the screenshot")

	_, err = p.TakeElementScreenshot(ctx, "spinner", "spinner", WithTimeout(20*time.Millisecond))
	assert.ErrorIs(t, err, core.ErrTimeout)
}

func TestRotateDevice(t *testing.T) {
	b := mock.New(mock.Config{})
	p := newPage(t, b)
	ctx := context.Background()

	require.NoError(t, p.RotateDevice(ctx, "landscape"))
	o, err := p.DeviceOrientation(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.OrientationLandscape, o)

	require.NoError(t, p.RotateDevice(ctx, "PORTRAIT_REVERSE"))
	o, _ = p.DeviceOrientation(ctx)
	assert.Equal(t, core.OrientationPortraitReverse, o)

	assert.ErrorIs(t, p.RotateDevice(ctx, "diagonal"), core.ErrInvalidArgument)
}

func TestDeviceReadings(t *testing.T) {
	b := mock.New(mock.Config{})
	b.SetBatteryLevel(64)
	b.AddLog(core.LogEntry{Timestamp: 1700000000000, Level: "INFO", Message: "activity started"})
	b.AddLog(core.LogEntry{Timestamp: 1700000000500, Level: "ERROR", Message: "crash"})
	dir := t.TempDir()
	p := newPage(t, b, WithArtifacts(artifact.New(dir, core.DefaultArtifactConfig())))
	ctx := context.Background()

	level, err := p.BatteryLevel(ctx)
	require.NoError(t, err)
	assert.Equal(t, 64, level)

	att, err := p.SaveDeviceLogs(ctx, "logcat", "logcat")
	require.NoError(t, err)
	assert.Equal(t, core.AttachmentDeviceLog, att.Name)
	assert.Equal(t, core.ContentTypeText, att.ContentType)
	data, err := os.ReadFile(filepath.Join(dir, att.Path))
	require.NoError(t, err)
	assert.Equal(t, "1700000000000 INFO activity started\n1700000000500 ERROR crash\n", string(data))
	assert.Len(t, p.TakeAttachments(), 1)
}

func TestDeviceUnsupported(t *testing.T) {
	cat, err := locator.Parse([]byte(loginLocators), locator.FormatJSON, "login.json")
	require.NoError(t, err)
	p, err := New("login", mock.WithoutGestures(mock.New(mock.Config{})), cat,
		WithWaiter(wait.New(100*time.Millisecond, 10*time.Millisecond)))
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, p.RotateDevice(ctx, "landscape"), core.ErrUnsupportedAction)
	_, err = p.BatteryLevel(ctx)
	assert.ErrorIs(t, err, core.ErrUnsupportedAction)
	_, err = p.DeviceLogs(ctx, "")
	assert.ErrorIs(t, err, core.ErrUnsupportedAction)
	_, err = p.Title(ctx)
	assert.ErrorIs(t, err, core.ErrUnsupportedAction)
	assert.ErrorIs(t, p.WaitForURL(ctx, "*"), core.ErrUnsupportedAction)
}

func TestPinchToZoom(t *testing.T) {
	b := mock.New(mock.Config{})
	b.Add("list", mock.NewElement("").SetBounds(core.Bounds{Width: 200, Height: 100}))
	p := newPage(t, b)

	require.NoError(t, p.PinchToZoom(context.Background(), "list", 0.5, 0))
	gestures := b.Gestures()
	require.Len(t, gestures, 1)
	assert.Equal(t, "pinch", gestures[0].Kind)
	assert.Equal(t, core.Point{X: 50, Y: 0}, gestures[0].From)
	assert.Equal(t, core.Point{X: 88, Y: 38}, gestures[0].To)
}
