package core

import "testing"

func TestParseQueryKind(t *testing.T) {
	tests := []struct {
		in   string
		want QueryKind
	}{
		{"xpath", KindXPath},
		{"path", KindXPath},
		{"XPATH", KindXPath},
		{"id", KindID},
		{"content", KindAccessibilityID},
		{"accessibility_id", KindAccessibilityID},
		{"uiautomator", KindAndroidUIAutomator},
		{"class", KindClassName},
		{" css ", KindCSS},
		{"text", KindText},
		{"placeholder", KindPlaceholder},
	}

	for _, tt := range tests {
		got, err := ParseQueryKind(tt.in)
		if err != nil {
			t.Errorf("ParseQueryKind(%q) error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseQueryKind(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestParseQueryKind_Unknown(t *testing.T) {
	for _, in := range []string{"", "name", "css selector", "link"} {
		if _, err := ParseQueryKind(in); err == nil {
			t.Errorf("ParseQueryKind(%q) should fail", in)
		}
	}
}

func TestQueryKind_StringRoundTrip(t *testing.T) {
	for _, k := range AllQueryKinds {
		got, err := ParseQueryKind(k.String())
		if err != nil || got != k {
			t.Errorf("ParseQueryKind(%q) = %v, %v", k.String(), got, err)
		}
	}
}

func TestParseBackendKind(t *testing.T) {
	tests := []struct {
		in   string
		want BackendKind
	}{
		{"android", BackendMobile},
		{"appium", BackendMobile},
		{"web", BackendWeb},
		{"playwright", BackendWeb},
		{"selenium", BackendWebDriver},
		{"alttester", BackendGame},
		{"mock", BackendMock},
	}

	for _, tt := range tests {
		got, err := ParseBackendKind(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseBackendKind(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseBackendKind("flutter"); err == nil {
		t.Error("ParseBackendKind(flutter) should fail")
	}
}

func TestPredicate_YieldsElement(t *testing.T) {
	for _, p := range []Predicate{PredicatePresent, PredicateVisible, PredicateClickable} {
		if !p.YieldsElement() {
			t.Errorf("%s should yield an element", p)
		}
	}
	for _, p := range []Predicate{PredicateAbsent, PredicateHidden} {
		if p.YieldsElement() {
			t.Errorf("%s should not yield an element", p)
		}
	}
}
