package core

import (
	"fmt"
	"strings"
)

// QueryKind is the closed set of locator strategies a catalogue entry may use.
type QueryKind int

const (
	KindXPath QueryKind = iota + 1
	KindID
	KindAccessibilityID
	KindAndroidUIAutomator
	KindClassName
	KindCSS
	KindText
	KindPlaceholder
)

// AllQueryKinds lists every kind in declaration order.
var AllQueryKinds = []QueryKind{
	KindXPath, KindID, KindAccessibilityID, KindAndroidUIAutomator,
	KindClassName, KindCSS, KindText, KindPlaceholder,
}

// String returns the canonical name of the kind.
func (k QueryKind) String() string {
	switch k {
	case KindXPath:
		return "xpath"
	case KindID:
		return "id"
	case KindAccessibilityID:
		return "accessibility_id"
	case KindAndroidUIAutomator:
		return "android_uiautomator"
	case KindClassName:
		return "class_name"
	case KindCSS:
		return "css"
	case KindText:
		return "text"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// queryKindAliases maps locator_type spellings found in locator files to kinds.
var queryKindAliases = map[string]QueryKind{
	"xpath":               KindXPath,
	"path":                KindXPath,
	"id":                  KindID,
	"content":             KindAccessibilityID,
	"accessibility_id":    KindAccessibilityID,
	"accessibility id":    KindAccessibilityID,
	"uiautomator":         KindAndroidUIAutomator,
	"android_uiautomator": KindAndroidUIAutomator,
	"class":               KindClassName,
	"class_name":          KindClassName,
	"css":                 KindCSS,
	"text":                KindText,
	"placeholder":         KindPlaceholder,
}

// ParseQueryKind converts a locator_type string into a QueryKind.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseQueryKind(s string) (QueryKind, error) {
	if k, ok := queryKindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown locator type %q", s)
}

// BackendKind identifies an automation engine family.
type BackendKind int

const (
	BackendMobile    BackendKind = iota + 1 // Appium (native mobile)
	BackendWeb                              // Playwright (browser)
	BackendWebDriver                        // Selenium remote WebDriver (browser)
	BackendGame                             // AltTester (in-engine UI)
	BackendMock                             // In-memory test double
)

// String returns the backend name.
func (b BackendKind) String() string {
	switch b {
	case BackendMobile:
		return "mobile"
	case BackendWeb:
		return "web"
	case BackendWebDriver:
		return "webdriver"
	case BackendGame:
		return "game"
	case BackendMock:
		return "mock"
	default:
		return "unknown"
	}
}

// ParseBackendKind converts a backend name (or engine name) into a BackendKind.
func ParseBackendKind(s string) (BackendKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mobile", "appium", "android", "ios":
		return BackendMobile, nil
	case "web", "playwright":
		return BackendWeb, nil
	case "webdriver", "selenium":
		return BackendWebDriver, nil
	case "game", "alttester", "unity":
		return BackendGame, nil
	case "mock":
		return BackendMock, nil
	}
	return 0, fmt.Errorf("unknown backend %q", s)
}

// Predicate is a readiness condition gating an action.
type Predicate int

const (
	PredicatePresent Predicate = iota + 1
	PredicateVisible
	PredicateClickable
	PredicateAbsent
	PredicateHidden
)

// String returns the predicate name.
func (p Predicate) String() string {
	switch p {
	case PredicatePresent:
		return "present"
	case PredicateVisible:
		return "visible"
	case PredicateClickable:
		return "clickable"
	case PredicateAbsent:
		return "absent"
	case PredicateHidden:
		return "hidden"
	default:
		return "unknown"
	}
}

// YieldsElement reports whether a satisfied predicate produces an element handle.
func (p Predicate) YieldsElement() bool {
	return p == PredicatePresent || p == PredicateVisible || p == PredicateClickable
}
