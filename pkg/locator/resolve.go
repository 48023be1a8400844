package locator

import (
	"strings"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// strategies maps each backend's supported kinds to its native strategy name.
var strategies = map[core.BackendKind]map[core.QueryKind]string{
	core.BackendMobile: {
		core.KindXPath:              "xpath",
		core.KindID:                 "id",
		core.KindAccessibilityID:    "accessibility id",
		core.KindAndroidUIAutomator: "-android uiautomator",
		core.KindClassName:          "class name",
	},
	core.BackendWeb: {
		core.KindCSS:         "css",
		core.KindXPath:       "xpath",
		core.KindText:        "text",
		core.KindPlaceholder: "placeholder",
		core.KindID:          "id",
	},
	core.BackendWebDriver: {
		core.KindCSS:       "css selector",
		core.KindXPath:     "xpath",
		core.KindID:        "id",
		core.KindClassName: "css selector", // rewritten to .class, see queryValue
	},
	core.BackendGame: {
		core.KindXPath:           "PATH",
		core.KindID:              "ID",
		core.KindText:            "TEXT",
		core.KindAccessibilityID: "NAME",
		core.KindClassName:       "COMPONENT",
	},
}

// Strategy returns the native strategy for kind on backend.
func Strategy(kind core.QueryKind, backend core.BackendKind) (string, bool) {
	if backend == core.BackendMock {
		if kind.String() == "unknown" {
			return "", false
		}
		return kind.String(), true
	}
	s, ok := strategies[backend][kind]
	return s, ok
}

// Supported lists the kinds backend can resolve, in declaration order.
func Supported(backend core.BackendKind) []core.QueryKind {
	var kinds []core.QueryKind
	for _, k := range core.AllQueryKinds {
		if _, ok := Strategy(k, backend); ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// Resolve translates an entry into a query for backend. It does no I/O.
func Resolve(e Entry, backend core.BackendKind) (core.Query, error) {
	strategy, ok := Strategy(e.Kind, backend)
	if !ok {
		return core.Query{}, core.ErrUnsupportedLocatorKind.
			WithLocator(e.Name).
			WithMessagef("locator kind %s not supported by %s backend", e.Kind, backend)
	}
	return core.Query{
		Locator:  e.Name,
		Kind:     e.Kind,
		Strategy: strategy,
		Value:    queryValue(e.Kind, backend, e.Value),
	}, nil
}

// queryValue adapts an entry value to the backend's strategy. W3C WebDriver
// has no class name strategy, so class names become a CSS class selector;
// a space separated list matches elements carrying every class.
func queryValue(kind core.QueryKind, backend core.BackendKind, value string) string {
	if backend == core.BackendWebDriver && kind == core.KindClassName {
		return "." + strings.Join(strings.Fields(value), ".")
	}
	return value
}
