// Package page is the page-object layer: it names elements through a
// locator catalogue and performs user-level actions on one backend session.
package page

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/devicelab-dev/pagekit/pkg/action"
	"github.com/devicelab-dev/pagekit/pkg/artifact"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/locator"
	"github.com/devicelab-dev/pagekit/pkg/logger"
	"github.com/devicelab-dev/pagekit/pkg/testdata"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

// Page groups the locators of one screen with the actions performed on it.
// A Page is bound to one session and is not meant to be shared between
// goroutines.
type Page struct {
	name       string
	backend    core.Backend
	catalogue  *locator.Catalogue
	dispatcher *action.Dispatcher
	artifacts  *artifact.Store
	filesDir   string

	waiter        *wait.Waiter
	actionTimeout time.Duration

	mu          sync.Mutex
	attachments []core.Attachment
}

// Option configures a Page.
type Option func(*Page)

// WithWaiter sets the readiness waiter (default timeout and poll interval).
func WithWaiter(w *wait.Waiter) Option {
	return func(p *Page) {
		p.waiter = w
	}
}

// WithActionTimeout bounds each backend call made after readiness.
func WithActionTimeout(d time.Duration) Option {
	return func(p *Page) {
		p.actionTimeout = d
	}
}

// WithArtifacts enables screenshot capture into s according to its policy.
func WithArtifacts(s *artifact.Store) Option {
	return func(p *Page) {
		p.artifacts = s
	}
}

// WithFilesDir sets the directory relative test-data paths resolve against.
func WithFilesDir(dir string) Option {
	return func(p *Page) {
		p.filesDir = dir
	}
}

// New creates a page over backend. Every catalogue entry must be resolvable
// for the backend; otherwise a ConfigError naming the entries is returned.
func New(name string, backend core.Backend, cat *locator.Catalogue, opts ...Option) (*Page, error) {
	if backend == nil {
		return nil, core.ErrConfig.WithMessagef("page %s: no backend", name)
	}
	if cat == nil {
		return nil, core.ErrConfig.WithMessagef("page %s: no locator catalogue", name)
	}
	if err := cat.Validate(backend.Kind()); err != nil {
		return nil, err
	}

	p := &Page{
		name:      name,
		backend:   backend,
		catalogue: cat,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.dispatcher = action.New(backend, p.waiter)
	p.dispatcher.ActionTimeout = p.actionTimeout
	return p, nil
}

// Name returns the page name.
func (p *Page) Name() string { return p.name }

// Backend returns the session the page acts on.
func (p *Page) Backend() core.Backend { return p.backend }

// Catalogue returns the page's locators.
func (p *Page) Catalogue() *locator.Catalogue { return p.catalogue }

// Dispatcher returns the action dispatcher.
func (p *Page) Dispatcher() *action.Dispatcher { return p.dispatcher }

// CallOption adjusts a single page call.
type CallOption func(*call)

type call struct {
	timeout time.Duration
}

// WithTimeout overrides the readiness timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(c *call) {
		c.timeout = d
	}
}

func newCall(opts []CallOption) call {
	var c call
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Query resolves name for the page's backend.
func (p *Page) Query(name string) (core.Query, error) {
	return p.catalogue.Resolve(name, p.backend.Kind())
}

// Do dispatches s and captures a screenshot when the artifact policy asks for
// one. Steps are never retried.
func (p *Page) Do(ctx context.Context, s action.Step) core.ActionOutcome {
	out := p.dispatcher.Dispatch(ctx, s)
	label := s.Query.Locator
	if label == "" {
		label = s.Action.String()
	}
	p.capture(ctx, label, out.Err)
	return out
}

// step resolves name and dispatches an action on it.
func (p *Page) step(ctx context.Context, name string, s action.Step, opts []CallOption) core.ActionOutcome {
	q, err := p.Query(name)
	if err != nil {
		return core.Failed(s.Action.String(), name, err)
	}
	s.Query = q
	s.Timeout = newCall(opts).timeout
	return p.Do(ctx, s)
}

func (p *Page) capture(ctx context.Context, label string, err error) {
	att := p.artifacts.Capture(ctx, p.backend, p.name+"_"+label, err)
	if att == nil {
		return
	}
	p.attach(*att)
}

func (p *Page) attach(att core.Attachment) {
	p.mu.Lock()
	p.attachments = append(p.attachments, att)
	p.mu.Unlock()
}

// TakeAttachments returns and forgets the artifacts captured so far.
func (p *Page) TakeAttachments() []core.Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	atts := p.attachments
	p.attachments = nil
	return atts
}

// Tap taps the named element once it is clickable.
func (p *Page) Tap(ctx context.Context, name string, opts ...CallOption) error {
	return p.step(ctx, name, action.Step{Action: action.Tap}, opts).Err
}

// MultiTap taps the named element count times.
func (p *Page) MultiTap(ctx context.Context, name string, count int, opts ...CallOption) error {
	return p.step(ctx, name, action.Step{Action: action.MultiTap, Count: count}, opts).Err
}

// LongPress holds the named element for d (action.DefaultLongPress when 0).
func (p *Page) LongPress(ctx context.Context, name string, d time.Duration, opts ...CallOption) error {
	return p.step(ctx, name, action.Step{Action: action.LongPress, Duration: d}, opts).Err
}

// EnterText replaces the element's content with text.
func (p *Page) EnterText(ctx context.Context, name, text string, opts ...CallOption) error {
	return p.step(ctx, name, action.Step{Action: action.Type, Text: text}, opts).Err
}

// ClearAndEnterText clears the element as a separate step, then enters text.
func (p *Page) ClearAndEnterText(ctx context.Context, name, text string, opts ...CallOption) error {
	if err := p.ClearText(ctx, name, opts...); err != nil {
		return err
	}
	return p.EnterText(ctx, name, text, opts...)
}

// ClearText clears the element's content.
func (p *Page) ClearText(ctx context.Context, name string, opts ...CallOption) error {
	return p.step(ctx, name, action.Step{Action: action.Clear}, opts).Err
}

// EnterTextFromFile enters a value read from a CSV column or an Excel cell.
// Relative paths resolve against the page's files directory.
func (p *Page) EnterTextFromFile(ctx context.Context, name, file, ref, sheet string, opts ...CallOption) error {
	value, err := testdata.Lookup(p.resolveFile(file), ref, sheet)
	if err != nil {
		err = core.ErrInvalidArgument.WithLocator(name).WithMessage("reading test data").WithCause(err)
		p.capture(ctx, name, err)
		return err
	}
	return p.EnterText(ctx, name, value, opts...)
}

func (p *Page) resolveFile(file string) string {
	if p.filesDir == "" || file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.filesDir, file)
}

// GetText returns the element's text.
func (p *Page) GetText(ctx context.Context, name string, opts ...CallOption) (string, error) {
	return action.ReadValue(p.step(ctx, name, action.Step{Action: action.ReadText}, opts))
}

// GetAttribute returns one attribute of the element.
func (p *Page) GetAttribute(ctx context.Context, name, attribute string, opts ...CallOption) (string, error) {
	return action.ReadValue(p.step(ctx, name, action.Step{Action: action.ReadAttribute, Attribute: attribute}, opts))
}

// SwipeElementToElement drags from one element's centre to another's.
func (p *Page) SwipeElementToElement(ctx context.Context, from, to string, d time.Duration, opts ...CallOption) error {
	target, err := p.Query(to)
	if err != nil {
		return err
	}
	return p.step(ctx, from, action.Step{Action: action.SwipeTo, Target: target, Duration: d}, opts).Err
}

// SwipeByDirection swipes across the viewport. pct 0 uses action.DefaultPercentage.
func (p *Page) SwipeByDirection(ctx context.Context, dir action.Direction, pct float64, d time.Duration) error {
	if pct == 0 {
		pct = action.DefaultPercentage
	}
	return p.Do(ctx, action.Step{Action: action.SwipeDirection, Direction: dir, Percentage: pct, Duration: d}).Err
}

// SwipeByCoordinates swipes between two viewport points.
func (p *Page) SwipeByCoordinates(ctx context.Context, from, to core.Point, d time.Duration) error {
	return p.Do(ctx, action.Step{Action: action.SwipeCoordinates, From: from, To: to, Duration: d}).Err
}

// WaitFor blocks until pred holds for the named element.
func (p *Page) WaitFor(ctx context.Context, name string, pred core.Predicate, opts ...CallOption) error {
	err := p.wait(ctx, name, pred, opts)
	if err != nil {
		logger.WithFields(map[string]interface{}{"page": p.name, "locator": name}).Errorf("wait failed: %v", err)
	}
	p.capture(ctx, name, err)
	return err
}

func (p *Page) wait(ctx context.Context, name string, pred core.Predicate, opts []CallOption) error {
	q, err := p.Query(name)
	if err != nil {
		return err
	}
	_, err = p.dispatcher.Waiter().Wait(ctx, p.backend, q, pred, newCall(opts).timeout)
	return err
}

// WaitUntilVisible waits for the element to be displayed.
func (p *Page) WaitUntilVisible(ctx context.Context, name string, opts ...CallOption) error {
	return p.WaitFor(ctx, name, core.PredicateVisible, opts...)
}

// WaitUntilNotVisible waits for the element to be hidden or gone.
func (p *Page) WaitUntilNotVisible(ctx context.Context, name string, opts ...CallOption) error {
	return p.WaitFor(ctx, name, core.PredicateHidden, opts...)
}

// verify reports a predicate as a boolean: a timeout is false, any other
// failure is an error. Only errors capture a screenshot.
func (p *Page) verify(ctx context.Context, name string, pred core.Predicate, opts []CallOption) (bool, error) {
	err := p.wait(ctx, name, pred, opts)
	if err == nil {
		return true, nil
	}
	fields := map[string]interface{}{"page": p.name, "locator": name, "predicate": pred.String()}
	var te *core.TimeoutError
	if errors.As(err, &te) {
		logger.WithFields(fields).Info("check is false")
		return false, nil
	}
	logger.WithFields(fields).Errorf("check failed: %v", err)
	p.capture(ctx, name, err)
	return false, err
}

// ElementVisible reports whether the element became visible in time.
func (p *Page) ElementVisible(ctx context.Context, name string, opts ...CallOption) (bool, error) {
	return p.verify(ctx, name, core.PredicateVisible, opts)
}

// ElementNotVisible reports whether the element became hidden in time.
func (p *Page) ElementNotVisible(ctx context.Context, name string, opts ...CallOption) (bool, error) {
	return p.verify(ctx, name, core.PredicateHidden, opts)
}

// ElementPresent reports whether the element appeared in time.
func (p *Page) ElementPresent(ctx context.Context, name string, opts ...CallOption) (bool, error) {
	return p.verify(ctx, name, core.PredicatePresent, opts)
}

// VerifyElementText compares the element's text to expected, exactly or as
// a substring, optionally ignoring case.
func (p *Page) VerifyElementText(ctx context.Context, name, expected string, contains, caseSensitive bool, opts ...CallOption) (bool, error) {
	actual, err := p.GetText(ctx, name, opts...)
	if err != nil {
		return false, err
	}
	ok := MatchText(actual, expected, contains, caseSensitive)

	fields := map[string]interface{}{"page": p.name, "locator": name, "expected": expected, "actual": actual}
	if ok {
		logger.WithFields(fields).Info("text verified")
	} else {
		logger.WithFields(fields).Warn("text mismatch")
	}
	return ok, nil
}

// MatchText is the comparison used by VerifyElementText.
func MatchText(actual, expected string, contains, caseSensitive bool) bool {
	if !caseSensitive {
		actual, expected = strings.ToLower(actual), strings.ToLower(expected)
	}
	if contains {
		return strings.Contains(actual, expected)
	}
	return actual == expected
}

// TakeScreenshot saves the current screen under label.
func (p *Page) TakeScreenshot(ctx context.Context, label string) (core.Attachment, error) {
	if p.artifacts == nil {
		return core.Attachment{}, core.ErrConfig.WithMessagef("page %s: no artifact store configured", p.name)
	}
	att, err := p.artifacts.SaveScreenshot(ctx, p.backend, p.name+"_"+label)
	if err != nil {
		return core.Attachment{}, err
	}
	p.attach(att)
	return att, nil
}
