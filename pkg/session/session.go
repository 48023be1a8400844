// Package session opens automation sessions from platform configuration.
// Sessions are explicit values owned by the caller; there is no global driver.
package session

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/multierr"

	"github.com/devicelab-dev/pagekit/pkg/backend/alttester"
	"github.com/devicelab-dev/pagekit/pkg/backend/appium"
	"github.com/devicelab-dev/pagekit/pkg/backend/mock"
	"github.com/devicelab-dev/pagekit/pkg/backend/playwright"
	"github.com/devicelab-dev/pagekit/pkg/backend/selenium"
	"github.com/devicelab-dev/pagekit/pkg/config"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
)

// Server defaults.
const (
	LocalAppiumURL   = "http://127.0.0.1:4723"
	LocalSeleniumURL = "http://127.0.0.1:4444/wd/hub"
	lambdaTestHost   = "mobile-hub.lambdatest.com"
	browserStackHost = "hub-cloud.browserstack.com"
	hubPath          = "/wd/hub"
)

// ProbeTimeout bounds how long Open waits for a local Appium server.
var ProbeTimeout = 30 * time.Second

// Closer is implemented by backends that own resources.
type Closer interface {
	Close(ctx context.Context) error
}

// Session is one open backend and the resources behind it.
type Session struct {
	Platform config.Platform
	Backend  core.Backend
	closers  []Closer
}

// New wraps an already open backend. closers run in reverse order on Close.
func New(p config.Platform, b core.Backend, closers ...Closer) *Session {
	return &Session{Platform: p, Backend: b, closers: closers}
}

// Factory opens a new session. Parallel runners call it once per worker.
type Factory func(ctx context.Context) (*Session, error)

// Opener returns a Factory for p.
func Opener(p config.Platform) Factory {
	return func(ctx context.Context) (*Session, error) {
		return Open(ctx, p)
	}
}

// Close releases everything the session holds and returns all errors.
// It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i].Close(ctx))
	}
	s.closers = nil
	if err != nil {
		logger.Warn("closing %s session: %v", s.Platform.Name, err)
	}
	return err
}

// Open builds exactly one backend for p.
func Open(ctx context.Context, p config.Platform) (*Session, error) {
	kind, err := p.BackendKind()
	if err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"platform": p.Name,
		"backend":  kind.String(),
	}).Info("opening session")

	switch kind {
	case core.BackendMobile:
		return openAppium(ctx, p)
	case core.BackendWeb:
		b, err := playwright.Launch(playwright.LaunchOptions{
			Browser:  p.Browser,
			Headless: p.Headless,
			BaseURL:  p.BaseURL,
		})
		if err != nil {
			return nil, core.ErrBackend.WithMessage("launching browser").WithCause(err)
		}
		return &Session{Platform: p, Backend: b, closers: []Closer{b}}, nil
	case core.BackendWebDriver:
		serverURL := p.ServerURL
		if serverURL == "" {
			serverURL = LocalSeleniumURL
		}
		b, err := selenium.Open(selenium.RemoteOptions{
			ServerURL: serverURL,
			Browser:   p.Browser,
			Headless:  p.Headless,
			BaseURL:   p.BaseURL,
			Extra:     extraCapabilities(p),
		})
		if err != nil {
			return nil, err
		}
		return &Session{Platform: p, Backend: b, closers: []Closer{b}}, nil
	case core.BackendGame:
		c, err := alttester.Dial(ctx, p.Host, p.Port, p.AppName)
		if err != nil {
			return nil, core.ErrBackend.WithMessage("connecting to AltTester").WithCause(err)
		}
		b := alttester.New(c)
		return &Session{Platform: p, Backend: b, closers: []Closer{b}}, nil
	case core.BackendMock:
		return &Session{Platform: p, Backend: mock.New(mock.Config{AutoCreate: true})}, nil
	}
	return nil, core.ErrConfig.WithMessagef("platform %q: no session for backend %s", p.Name, kind)
}

func openAppium(ctx context.Context, p config.Platform) (*Session, error) {
	caps, err := Capabilities(p)
	if err != nil {
		return nil, err
	}
	serverURL, err := ServerURL(p)
	if err != nil {
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"server":       redact(serverURL),
		"capabilities": caps,
	}).Info("creating Appium session")

	client := appium.NewClient(serverURL)
	if provider(p) == "" {
		if err := waitForServer(ctx, client); err != nil {
			return nil, err
		}
	}
	if err := client.Connect(ctx, caps); err != nil {
		return nil, core.ErrBackend.WithMessagef("creating session at %s", redact(serverURL)).WithCause(err)
	}
	logger.Info("Appium session %s created", client.SessionID())

	b := appium.New(client, appID(p))
	return &Session{Platform: p, Backend: b, closers: []Closer{b}}, nil
}

// waitForServer polls /status with exponential backoff until the server
// reports ready, ProbeTimeout elapses or ctx ends.
func waitForServer(ctx context.Context, client *appium.Client) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = ProbeTimeout

	attempt := 0
	ping := func() error {
		attempt++
		ready, err := client.Status(ctx)
		if err != nil {
			logger.Debug("appium status attempt %d: %v", attempt, err)
			return err
		}
		if !ready {
			return fmt.Errorf("server not ready")
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(policy, ctx)); err != nil {
		return core.ErrBackend.WithMessagef("Appium server not ready after %d attempts", attempt).WithCause(err)
	}
	return nil
}

// provider returns "lambdatest" or "browserstack" for cloud platforms, "" otherwise.
func provider(p config.Platform) string {
	for _, s := range []string{p.Name, p.Platform} {
		switch strings.ToLower(s) {
		case "lambdatest", "browserstack":
			return strings.ToLower(s)
		}
	}
	return ""
}

// w3cCapabilities are the standard capability names sent without a vendor prefix.
var w3cCapabilities = map[string]bool{
	"platformName":              true,
	"browserName":               true,
	"browserVersion":            true,
	"acceptInsecureCerts":       true,
	"pageLoadStrategy":          true,
	"proxy":                     true,
	"setWindowRect":             true,
	"timeouts":                  true,
	"strictFileInteractability": true,
	"unhandledPromptBehavior":   true,
	"webSocketUrl":              true,
}

// capabilityName adds the appium: prefix to non-standard capability names.
// Names that already carry a vendor prefix are kept.
func capabilityName(name string) string {
	if w3cCapabilities[name] || strings.Contains(name, ":") {
		return name
	}
	return "appium:" + name
}

// Capabilities builds the Appium capabilities for a mobile platform. Extra
// capabilities from the config override the generated ones. Every
// non-standard name carries the appium: prefix.
func Capabilities(p config.Platform) (map[string]interface{}, error) {
	caps := map[string]interface{}{}
	set := func(k string, v string) {
		if v != "" {
			caps[k] = v
		}
	}

	switch provider(p) {
	case "lambdatest":
		set("platformName", mobileOS(p.Platform))
		set("deviceName", p.DeviceName)
		set("platformVersion", p.PlatformVersion)
		set("app", p.App)
		caps["isRealMobile"] = p.IsRealMobile
	case "browserstack":
		set("platformName", mobileOS(p.Platform))
		set("deviceName", p.DeviceName)
		set("platformVersion", p.PlatformVersion)
		set("app", p.App)
		set("browserName", p.Browser)
	default:
		switch strings.ToLower(p.Platform) {
		case "android":
			caps["platformName"] = "Android"
			set("deviceName", p.DeviceName)
			set("platformVersion", p.PlatformVersion)
			set("automationName", p.AutomationName)
			set("appActivity", p.AppActivity)
			if strings.HasSuffix(strings.ToLower(p.App), ".apk") {
				caps["app"] = p.App
			} else {
				set("appPackage", firstNonEmpty(p.AppPackage, p.App))
			}
		case "ios":
			caps["platformName"] = "iOS"
			set("deviceName", p.DeviceName)
			set("platformVersion", p.PlatformVersion)
			set("automationName", p.AutomationName)
			set("app", p.App)
			set("bundleId", p.BundleID)
		default:
			return nil, core.ErrConfig.WithMessagef("platform %q: unsupported mobile platform %q", p.Name, p.Platform)
		}
	}

	for k, v := range extraCapabilities(p) {
		caps[k] = v
	}

	prefixed := make(map[string]interface{}, len(caps))
	for k, v := range caps {
		prefixed[capabilityName(k)] = v
	}
	return prefixed, nil
}

func extraCapabilities(p config.Platform) map[string]interface{} {
	extra := make(map[string]interface{}, len(p.Capabilities))
	for _, c := range p.Capabilities {
		if c.Name != "" {
			extra[c.Name] = c.Value
		}
	}
	return extra
}

// mobileOS normalises a platform name for cloud capabilities.
func mobileOS(s string) string {
	switch strings.ToLower(s) {
	case "android":
		return "Android"
	case "ios":
		return "iOS"
	case "lambdatest", "browserstack":
		return ""
	}
	return s
}

// ServerURL returns the WebDriver endpoint for a mobile platform. Cloud
// credentials come from LT_USERNAME/LT_ACCESS_KEY or BS_USERNAME/BS_ACCESS_KEY.
func ServerURL(p config.Platform) (string, error) {
	if p.ServerURL != "" {
		return p.ServerURL, nil
	}
	switch provider(p) {
	case "lambdatest":
		return cloudURL("LambdaTest", "LT_USERNAME", "LT_ACCESS_KEY", lambdaTestHost)
	case "browserstack":
		return cloudURL("BrowserStack", "BS_USERNAME", "BS_ACCESS_KEY", browserStackHost)
	}
	return LocalAppiumURL, nil
}

func cloudURL(name, userVar, keyVar, host string) (string, error) {
	user, key := os.Getenv(userVar), os.Getenv(keyVar)
	if user == "" || key == "" {
		return "", core.ErrConfig.WithMessagef("%s credentials not found: set %s and %s", name, userVar, keyVar)
	}
	u := url.URL{Scheme: "https", User: url.UserPassword(user, key), Host: host, Path: hubPath}
	return u.String(), nil
}

func appID(p config.Platform) string {
	if strings.ToLower(p.Platform) == "ios" {
		return p.BundleID
	}
	if strings.HasSuffix(strings.ToLower(p.App), ".apk") {
		return p.AppPackage
	}
	return firstNonEmpty(p.AppPackage, p.App)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// redact hides URL credentials in logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
