// Package selenium implements core.Backend over a remote WebDriver session.
//
// The tebeka/selenium client has no context support, so a cancelled context
// is checked before each call rather than interrupting it.
package selenium

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tebeka/selenium"
	"github.com/tebeka/selenium/chrome"
	"github.com/tebeka/selenium/firefox"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Backend wraps a WebDriver session. It does not implement core.Toucher:
// pointer gestures fail with core.ErrUnsupportedAction.
type Backend struct {
	wd    selenium.WebDriver
	owned bool
}

// New wraps a session owned by the caller.
func New(wd selenium.WebDriver) *Backend {
	return &Backend{wd: wd}
}

// RemoteOptions configures Open.
type RemoteOptions struct {
	ServerURL string // e.g. http://127.0.0.1:4444/wd/hub
	Browser   string // chrome (default), firefox, edge, safari
	Headless  bool
	BaseURL   string
	Extra     map[string]interface{} // additional capabilities
}

// Open starts a remote session. Close quits it.
func Open(opts RemoteOptions) (*Backend, error) {
	if opts.ServerURL == "" {
		return nil, core.ErrConfig.WithMessage("selenium server URL is required")
	}
	browser := strings.ToLower(opts.Browser)
	if browser == "" {
		browser = "chrome"
	}

	caps := selenium.Capabilities{"browserName": browser}
	for k, v := range opts.Extra {
		caps[k] = v
	}
	if opts.Headless {
		switch browser {
		case "chrome", "chromium":
			caps.AddChrome(chrome.Capabilities{Args: []string{"--headless=new", "--no-sandbox"}})
		case "firefox":
			caps.AddFirefox(firefox.Capabilities{Args: []string{"-headless"}})
		}
	}

	wd, err := selenium.NewRemote(caps, opts.ServerURL)
	if err != nil {
		return nil, core.ErrBackend.WithMessagef("could not create %s session at %s", browser, opts.ServerURL).WithCause(err)
	}
	b := &Backend{wd: wd, owned: true}

	if opts.BaseURL != "" {
		if err := wd.Get(opts.BaseURL); err != nil {
			_ = wd.Quit()
			return nil, fmt.Errorf("could not open %s: %w", opts.BaseURL, err)
		}
	}
	return b, nil
}

// WebDriver returns the underlying session.
func (b *Backend) WebDriver() selenium.WebDriver {
	return b.wd
}

// Close quits the session when Open created it.
func (b *Backend) Close(ctx context.Context) error {
	if !b.owned {
		return nil
	}
	b.owned = false
	return b.wd.Quit()
}

// Kind implements core.Backend.
func (b *Backend) Kind() core.BackendKind {
	return core.BackendWebDriver
}

// FindAll implements core.Backend. The resolver's strategy names are the
// WebDriver "using" values.
func (b *Backend) FindAll(ctx context.Context, q core.Query) ([]core.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found, err := b.wd.FindElements(q.Strategy, q.Value)
	if err != nil {
		if isNoSuchElement(err) {
			return nil, nil
		}
		return nil, err
	}
	els := make([]core.Element, len(found))
	for i, we := range found {
		els[i] = &element{we: we}
	}
	return els, nil
}

// Screenshot implements core.Backend.
func (b *Backend) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.wd.Screenshot()
}

// Title implements core.Navigator.
func (b *Backend) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.wd.Title()
}

// URL implements core.Navigator.
func (b *Backend) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return b.wd.CurrentURL()
}

func isNoSuchElement(err error) bool {
	var se *selenium.Error
	if errors.As(err, &se) {
		return se.Err == "no such element"
	}
	return strings.Contains(strings.ToLower(err.Error()), "no such element")
}

type element struct {
	we selenium.WebElement
}

func (e *element) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.we.Click()
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.we.SendKeys(text)
}

func (e *element) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.we.Clear()
}

func (e *element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.we.Text()
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.we.GetAttribute(name)
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.we.IsDisplayed()
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return e.we.IsEnabled()
}

func (e *element) Rect(ctx context.Context) (core.Bounds, error) {
	if err := ctx.Err(); err != nil {
		return core.Bounds{}, err
	}
	loc, err := e.we.Location()
	if err != nil {
		return core.Bounds{}, err
	}
	size, err := e.we.Size()
	if err != nil {
		return core.Bounds{}, err
	}
	return core.Bounds{X: loc.X, Y: loc.Y, Width: size.Width, Height: size.Height}, nil
}

func (e *element) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.we.Screenshot(true)
}
