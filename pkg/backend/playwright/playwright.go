// Package playwright implements core.Backend over a playwright-go page.
package playwright

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/multierr"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Backend drives one browser page.
type Backend struct {
	page playwright.Page

	// Set by Launch; nil when the caller owns the page.
	pw      *playwright.Playwright
	browser playwright.Browser
}

// New wraps a page owned by the caller.
func New(page playwright.Page) *Backend {
	return &Backend{page: page}
}

// LaunchOptions configures Launch.
type LaunchOptions struct {
	Browser  string // chromium (default), firefox, webkit, chrome
	Headless bool
	BaseURL  string // opened after launch when set
	Viewport core.Size
}

// Launch starts Playwright, a browser, a context and one page.
func Launch(opts LaunchOptions) (*Backend, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	launch := playwright.BrowserTypeLaunchOptions{Headless: playwright.Bool(opts.Headless)}
	switch strings.ToLower(opts.Browser) {
	case "", "chromium":
		browserType = pw.Chromium
	case "chrome":
		browserType = pw.Chromium
		launch.Channel = playwright.String("chrome")
	case "firefox":
		browserType = pw.Firefox
	case "webkit", "safari":
		browserType = pw.WebKit
	default:
		_ = pw.Stop()
		return nil, core.ErrConfig.WithMessagef("unsupported browser %q", opts.Browser)
	}

	browser, err := browserType.Launch(launch)
	if err != nil {
		return nil, multierr.Append(fmt.Errorf("could not launch %s: %w", browserType.Name(), err), pw.Stop())
	}

	ctxOpts := playwright.BrowserNewContextOptions{HasTouch: playwright.Bool(true)}
	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		ctxOpts.Viewport = &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height}
	}
	bctx, err := browser.NewContext(ctxOpts)
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("could not create context: %w", err), browser.Close(), pw.Stop())
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, multierr.Combine(fmt.Errorf("could not create page: %w", err), browser.Close(), pw.Stop())
	}

	if opts.BaseURL != "" {
		if _, err := page.Goto(opts.BaseURL); err != nil {
			return nil, multierr.Combine(fmt.Errorf("could not open %s: %w", opts.BaseURL, err), browser.Close(), pw.Stop())
		}
	}

	return &Backend{page: page, pw: pw, browser: browser}, nil
}

// Page returns the underlying page.
func (b *Backend) Page() playwright.Page {
	return b.page
}

// Close closes the browser and stops Playwright when Launch created them.
func (b *Backend) Close(ctx context.Context) error {
	var err error
	if b.browser != nil {
		err = multierr.Append(err, b.browser.Close())
		b.browser = nil
	}
	if b.pw != nil {
		err = multierr.Append(err, b.pw.Stop())
		b.pw = nil
	}
	return err
}

// Kind implements core.Backend.
func (b *Backend) Kind() core.BackendKind {
	return core.BackendWeb
}

// locator maps a resolved query onto a Playwright locator.
func (b *Backend) locator(q core.Query) (playwright.Locator, error) {
	switch q.Strategy {
	case "css":
		return b.page.Locator("css=" + q.Value), nil
	case "xpath":
		return b.page.Locator("xpath=" + q.Value), nil
	case "id":
		return b.page.Locator(fmt.Sprintf("[id=%s]", strconv.Quote(q.Value))), nil
	case "text":
		return b.page.GetByText(q.Value), nil
	case "placeholder":
		return b.page.GetByPlaceholder(q.Value), nil
	}
	return nil, core.ErrUnsupportedLocatorKind.WithLocator(q.Locator).
		WithMessagef("strategy %q not supported by web backend", q.Strategy)
}

// FindAll implements core.Backend.
func (b *Backend) FindAll(ctx context.Context, q core.Query) ([]core.Element, error) {
	loc, err := b.locator(q)
	if err != nil {
		return nil, err
	}
	all, err := loc.All()
	if err != nil {
		return nil, err
	}
	els := make([]core.Element, len(all))
	for i, l := range all {
		els[i] = &element{loc: l}
	}
	return els, nil
}

// Screenshot implements core.Backend.
func (b *Backend) Screenshot(ctx context.Context) ([]byte, error) {
	return b.page.Screenshot(playwright.PageScreenshotOptions{Timeout: timeoutFrom(ctx)})
}

// Title implements core.Navigator.
func (b *Backend) Title(ctx context.Context) (string, error) {
	return b.page.Title()
}

// URL implements core.Navigator.
func (b *Backend) URL(ctx context.Context) (string, error) {
	return b.page.URL(), nil
}

// Viewport implements core.Toucher.
func (b *Backend) Viewport(ctx context.Context) (core.Size, error) {
	size := b.page.ViewportSize()
	if size == nil {
		return core.Size{}, fmt.Errorf("page has no fixed viewport")
	}
	return core.Size{Width: size.Width, Height: size.Height}, nil
}

// Tap implements core.Toucher with a mouse click.
func (b *Backend) Tap(ctx context.Context, p core.Point) error {
	return b.page.Mouse().Click(float64(p.X), float64(p.Y))
}

// LongPress implements core.Toucher by holding the primary button.
func (b *Backend) LongPress(ctx context.Context, p core.Point, d time.Duration) error {
	mouse := b.page.Mouse()
	if err := mouse.Move(float64(p.X), float64(p.Y)); err != nil {
		return err
	}
	if err := mouse.Down(); err != nil {
		return err
	}
	if err := sleep(ctx, d); err != nil {
		return multierr.Append(err, mouse.Up())
	}
	return mouse.Up()
}

// Swipe implements core.Toucher as a mouse drag.
func (b *Backend) Swipe(ctx context.Context, from, to core.Point, d time.Duration) error {
	mouse := b.page.Mouse()
	if err := mouse.Move(float64(from.X), float64(from.Y)); err != nil {
		return err
	}
	if err := mouse.Down(); err != nil {
		return err
	}
	// One intermediate mouse event per ~16ms frame.
	steps := int(d / (16 * time.Millisecond))
	if steps < 1 {
		steps = 1
	}
	if err := mouse.Move(float64(to.X), float64(to.Y), playwright.MouseMoveOptions{Steps: playwright.Int(steps)}); err != nil {
		return multierr.Append(err, mouse.Up())
	}
	return mouse.Up()
}

type element struct {
	loc playwright.Locator
}

func (e *element) Click(ctx context.Context) error {
	return e.loc.Click(playwright.LocatorClickOptions{Timeout: timeoutFrom(ctx)})
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Timeout: timeoutFrom(ctx)})
}

func (e *element) Clear(ctx context.Context) error {
	return e.loc.Clear(playwright.LocatorClearOptions{Timeout: timeoutFrom(ctx)})
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.loc.TextContent(playwright.LocatorTextContentOptions{Timeout: timeoutFrom(ctx)})
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	return e.loc.GetAttribute(name, playwright.LocatorGetAttributeOptions{Timeout: timeoutFrom(ctx)})
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	return e.loc.IsVisible()
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	return e.loc.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: timeoutFrom(ctx)})
}

func (e *element) Rect(ctx context.Context) (core.Bounds, error) {
	box, err := e.loc.BoundingBox(playwright.LocatorBoundingBoxOptions{Timeout: timeoutFrom(ctx)})
	if err != nil {
		return core.Bounds{}, err
	}
	if box == nil {
		return core.Bounds{}, core.ErrElementNotInteractable.WithMessage("element has no bounding box")
	}
	return core.Bounds{X: int(box.X), Y: int(box.Y), Width: int(box.Width), Height: int(box.Height)}, nil
}

func (e *element) Screenshot(ctx context.Context) ([]byte, error) {
	return e.loc.Screenshot(playwright.LocatorScreenshotOptions{Timeout: timeoutFrom(ctx)})
}

// timeoutFrom turns the context deadline into a Playwright timeout in ms.
// Without a deadline Playwright's own default applies.
func timeoutFrom(ctx context.Context) *float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return nil
	}
	ms := float64(time.Until(deadline).Milliseconds())
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(ms)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
