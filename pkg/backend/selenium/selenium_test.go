package selenium

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/devicelab-dev/pagekit/pkg/action"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/locator"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

var (
	_ core.Backend   = (*Backend)(nil)
	_ core.Navigator = (*Backend)(nil)
)

type fakeDriver struct {
	selenium.WebDriver
	lookups []string
	matches map[string][]selenium.WebElement
	findErr error
	quits   int
}

func (d *fakeDriver) FindElements(by, value string) ([]selenium.WebElement, error) {
	d.lookups = append(d.lookups, by+"="+value)
	if d.findErr != nil {
		return nil, d.findErr
	}
	return d.matches[value], nil
}

func (d *fakeDriver) Screenshot() ([]byte, error) {
	return []byte("png"), nil
}

func (d *fakeDriver) Title() (string, error) {
	return "Checkout", nil
}

func (d *fakeDriver) CurrentURL() (string, error) {
	return "https://shop.example/checkout?step=2", nil
}

func (d *fakeDriver) Quit() error {
	d.quits++
	return nil
}

type fakeElement struct {
	selenium.WebElement
	text    string
	typed   string
	clicks  int
	hidden  bool
	cleared bool
}

func (e *fakeElement) Click() error               { e.clicks++; return nil }
func (e *fakeElement) SendKeys(keys string) error { e.typed += keys; return nil }
func (e *fakeElement) Clear() error               { e.cleared = true; e.typed = ""; return nil }
func (e *fakeElement) Text() (string, error)      { return e.text, nil }
func (e *fakeElement) IsDisplayed() (bool, error) { return !e.hidden, nil }
func (e *fakeElement) IsEnabled() (bool, error)   { return true, nil }
func (e *fakeElement) Location() (*selenium.Point, error) {
	return &selenium.Point{X: 5, Y: 6}, nil
}
func (e *fakeElement) Screenshot(scroll bool) ([]byte, error) {
	return []byte("element"), nil
}
func (e *fakeElement) Size() (*selenium.Size, error) {
	return &selenium.Size{Width: 50, Height: 20}, nil
}

func query(t *testing.T, kind core.QueryKind, value string) core.Query {
	t.Helper()
	q, err := locator.Resolve(locator.Entry{Name: "field", Kind: kind, Value: value}, core.BackendWebDriver)
	require.NoError(t, err)
	return q
}

func TestFindAllUsesResolvedStrategy(t *testing.T) {
	d := &fakeDriver{}
	b := New(d)
	ctx := context.Background()

	for _, q := range []core.Query{
		query(t, core.KindCSS, "#go"),
		query(t, core.KindXPath, "//a"),
		query(t, core.KindID, "login"),
		query(t, core.KindClassName, "btn"),
	} {
		_, err := b.FindAll(ctx, q)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		selenium.ByCSSSelector + "=#go",
		selenium.ByXPATH + "=//a",
		selenium.ByID + "=login",
		selenium.ByCSSSelector + "=.btn",
	}, d.lookups)
}

func TestFindAllNoSuchElementIsEmpty(t *testing.T) {
	b := New(&fakeDriver{findErr: &selenium.Error{Err: "no such element", Message: "gone"}})

	els, err := b.FindAll(context.Background(), query(t, core.KindID, "x"))
	require.NoError(t, err)
	assert.Empty(t, els)
}

func TestFindAllOtherErrors(t *testing.T) {
	b := New(&fakeDriver{findErr: errors.New("session deleted")})

	_, err := b.FindAll(context.Background(), query(t, core.KindID, "x"))
	assert.EqualError(t, err, "session deleted")
}

func TestFindAllCancelled(t *testing.T) {
	d := &fakeDriver{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(d).FindAll(ctx, query(t, core.KindID, "x"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, d.lookups)
}

func TestTypeAndRead(t *testing.T) {
	field := &fakeElement{text: "hello", typed: "stale"}
	d := &fakeDriver{matches: map[string][]selenium.WebElement{"user": {field}}}
	disp := action.New(New(d), wait.New(time.Second, 10*time.Millisecond))
	ctx := context.Background()
	q := query(t, core.KindID, "user")

	out := disp.Dispatch(ctx, action.Step{Action: action.Type, Query: q, Text: "alice"})
	require.True(t, out.Success, "err: %v", out.Err)
	assert.True(t, field.cleared)
	assert.Equal(t, "alice", field.typed)

	out = disp.Dispatch(ctx, action.Step{Action: action.ReadText, Query: q})
	v, err := action.ReadValue(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestGesturesUnsupported(t *testing.T) {
	field := &fakeElement{}
	d := &fakeDriver{matches: map[string][]selenium.WebElement{"user": {field}}}
	disp := action.New(New(d), wait.New(time.Second, 10*time.Millisecond))

	out := disp.Dispatch(context.Background(), action.Step{Action: action.LongPress, Query: query(t, core.KindID, "user")})
	require.False(t, out.Success)
	assert.ErrorIs(t, out.Err, core.ErrUnsupportedAction)
}

func TestRect(t *testing.T) {
	r, err := (&element{we: &fakeElement{}}).Rect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.Bounds{X: 5, Y: 6, Width: 50, Height: 20}, r)
}

func TestCloseOnlyOwned(t *testing.T) {
	d := &fakeDriver{}
	require.NoError(t, New(d).Close(context.Background()))
	assert.Zero(t, d.quits)

	b := &Backend{wd: d, owned: true}
	require.NoError(t, b.Close(context.Background()))
	require.NoError(t, b.Close(context.Background()))
	assert.Equal(t, 1, d.quits)
}

func TestOpenRequiresServerURL(t *testing.T) {
	_, err := Open(RemoteOptions{})
	assert.ErrorIs(t, err, core.ErrConfig)
}

func TestNavigator(t *testing.T) {
	b := New(&fakeDriver{})
	ctx := context.Background()

	title, err := b.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Checkout", title)

	url, err := b.URL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/checkout?step=2", url)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.URL(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestElementScreenshot(t *testing.T) {
	var el core.Element = &element{we: &fakeElement{}}
	capturer, ok := el.(core.ElementCapturer)
	require.True(t, ok)

	data, err := capturer.Screenshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("element"), data)
}
