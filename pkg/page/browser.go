package page

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
)

func (p *Page) navigator() (core.Navigator, error) {
	n, ok := p.backend.(core.Navigator)
	if !ok {
		return nil, core.ErrUnsupportedAction.WithMessagef("title and URL not available on %s backend", p.backend.Kind())
	}
	return n, nil
}

// Title returns the document title.
func (p *Page) Title(ctx context.Context) (string, error) {
	n, err := p.navigator()
	if err != nil {
		return "", err
	}
	title, err := n.Title(ctx)
	if err != nil {
		return "", core.ErrBackend.WithMessage("read title").WithCause(err)
	}
	return title, nil
}

// URL returns the current URL.
func (p *Page) URL(ctx context.Context) (string, error) {
	n, err := p.navigator()
	if err != nil {
		return "", err
	}
	url, err := n.URL(ctx)
	if err != nil {
		return "", core.ErrBackend.WithMessage("read url").WithCause(err)
	}
	return url, nil
}

// VerifyTitle reports whether the title contains expected.
func (p *Page) VerifyTitle(ctx context.Context, expected string, caseSensitive bool) (bool, error) {
	title, err := p.Title(ctx)
	if err != nil {
		return false, err
	}
	ok := MatchText(title, expected, true, caseSensitive)
	p.logCheck("title", expected, title, ok)
	return ok, nil
}

// VerifyURL reports whether the current URL equals expected.
func (p *Page) VerifyURL(ctx context.Context, expected string) (bool, error) {
	url, err := p.URL(ctx)
	if err != nil {
		return false, err
	}
	ok := url == expected
	p.logCheck("url", expected, url, ok)
	return ok, nil
}

func (p *Page) logCheck(what, expected, actual string, ok bool) {
	fields := map[string]interface{}{"page": p.name, "expected": expected, "actual": actual}
	if ok {
		logger.WithFields(fields).Infof("%s verified", what)
	} else {
		logger.WithFields(fields).Warnf("%s mismatch", what)
	}
}

// WaitForURL blocks until the current URL matches pattern. A pattern without
// "*" must match exactly; "*" matches any run of characters.
func (p *Page) WaitForURL(ctx context.Context, pattern string, opts ...CallOption) error {
	n, err := p.navigator()
	if err != nil {
		return err
	}
	match := URLMatcher(pattern)
	var last string
	err = p.dispatcher.Waiter().Until(ctx, "url", fmt.Sprintf("matching %q", pattern), newCall(opts).timeout,
		func(ctx context.Context) (bool, error) {
			url, err := n.URL(ctx)
			if err != nil {
				return false, err
			}
			last = url
			return match(url), nil
		})
	if err != nil {
		logger.WithFields(map[string]interface{}{"page": p.name, "pattern": pattern, "url": last}).Errorf("wait for url failed: %v", err)
		p.capture(ctx, "url", err)
	}
	return err
}

// URLMatcher returns the comparison used by WaitForURL.
func URLMatcher(pattern string) func(string) bool {
	if !strings.Contains(pattern, "*") {
		return func(url string) bool { return url == pattern }
	}
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	re := regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
	return re.MatchString
}
