// Package script parses YAML step scripts and runs them against page objects.
//
// A script names a locator catalogue and lists steps, each a single-key map:
//
//	name: login
//	catalogue: locators/login.json
//	timeout: 5s
//	steps:
//	  - type: {on: username, text: alice}
//	  - tap: submit
//	  - readText: {on: banner, expect: Welcome, contains: true}
//	  - swipe: {direction: left, percentage: 0.5}
//	  - rotate: landscape
//	  - screenshot
package script

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/pagekit/pkg/action"
	"github.com/devicelab-dev/pagekit/pkg/core"
)

// Command is the key of a step.
type Command string

// Step commands.
const (
	CmdTap            Command = "tap"
	CmdMultiTap       Command = "multiTap"
	CmdLongPress      Command = "longPress"
	CmdType           Command = "type"
	CmdClear          Command = "clear"
	CmdReadText       Command = "readText"
	CmdReadAttribute  Command = "readAttribute"
	CmdSwipe          Command = "swipe"
	CmdWaitVisible    Command = "waitVisible"
	CmdWaitNotVisible Command = "waitNotVisible"
	CmdWaitPresent    Command = "waitPresent"
	CmdScreenshot     Command = "screenshot"

	CmdElementScreenshot Command = "elementScreenshot"
	CmdPinch             Command = "pinch"
	CmdRotate            Command = "rotate"
	CmdDeviceLogs        Command = "deviceLogs"
	CmdVerifyTitle       Command = "verifyTitle"
	CmdVerifyURL         Command = "verifyUrl"
	CmdWaitURL           Command = "waitUrl"
)

// params lists the keys each command accepts in its mapping form.
var params = map[Command][]string{
	CmdTap:            {"on", "timeout"},
	CmdMultiTap:       {"on", "count", "timeout"},
	CmdLongPress:      {"on", "duration", "timeout"},
	CmdType:           {"on", "text", "file", "ref", "sheet", "timeout"},
	CmdClear:          {"on", "timeout"},
	CmdReadText:       {"on", "expect", "contains", "ignoreCase", "timeout"},
	CmdReadAttribute:  {"on", "name", "expect", "timeout"},
	CmdSwipe:          {"from", "to", "direction", "percentage", "duration", "timeout"},
	CmdWaitVisible:    {"on", "timeout"},
	CmdWaitNotVisible: {"on", "timeout"},
	CmdWaitPresent:    {"on", "timeout"},
	CmdScreenshot:     {"label"},

	CmdElementScreenshot: {"on", "label", "timeout"},
	CmdPinch:             {"on", "scale", "duration", "timeout"},
	CmdRotate:            {"orientation"},
	CmdDeviceLogs:        {"type", "label"},
	CmdVerifyTitle:       {"expect", "ignoreCase"},
	CmdVerifyURL:         {"expect"},
	CmdWaitURL:           {"url", "timeout"},
}

// scalarField names the parameter set by the short form "- cmd: value" for
// commands that do not act on a locator.
var scalarField = map[Command]string{
	CmdScreenshot:  "label",
	CmdRotate:      "orientation",
	CmdDeviceLogs:  "type",
	CmdVerifyTitle: "expect",
	CmdVerifyURL:   "expect",
	CmdWaitURL:     "url",
}

// bare lists the commands allowed without any parameter.
var bare = map[Command]bool{
	CmdScreenshot: true,
	CmdDeviceLogs: true,
}

// Script is a parsed step script.
type Script struct {
	SourcePath string
	Name       string
	Catalogue  string        // Locator catalogue path, relative to the script
	Timeout    time.Duration // Default find timeout for every step, 0 = page default
	Steps      []Step
}

// CataloguePath resolves the catalogue path against the script's directory.
func (s *Script) CataloguePath() string {
	if s.Catalogue == "" || filepath.IsAbs(s.Catalogue) || s.SourcePath == "" {
		return s.Catalogue
	}
	return filepath.Join(filepath.Dir(s.SourcePath), s.Catalogue)
}

// Step is one scripted action.
type Step struct {
	Command Command
	Line    int

	On       string
	Timeout  time.Duration
	Count    int
	Duration time.Duration

	// type
	Text  string
	File  string
	Ref   string
	Sheet string

	// readText / readAttribute
	Attribute  string
	Expect     *string
	Contains   bool
	IgnoreCase bool

	// swipe
	From       string
	To         string
	Direction  action.Direction
	Percentage float64

	// pinch
	Scale float64

	Orientation core.Orientation // rotate
	LogType     string           // deviceLogs
	URL         string           // waitUrl

	Label string
}

// Describe returns a short human-readable form such as "tap submit".
func (s Step) Describe() string {
	switch {
	case s.Command == CmdSwipe && s.From != "":
		return fmt.Sprintf("swipe %s -> %s", s.From, s.To)
	case s.Command == CmdSwipe:
		return fmt.Sprintf("swipe %s", s.Direction)
	case s.Command == CmdScreenshot:
		return strings.TrimSpace("screenshot " + s.Label)
	case s.Command == CmdRotate:
		return fmt.Sprintf("rotate %s", s.Orientation)
	case s.Command == CmdDeviceLogs:
		return strings.TrimSpace("deviceLogs " + s.LogType)
	case (s.Command == CmdVerifyTitle || s.Command == CmdVerifyURL) && s.Expect != nil:
		return fmt.Sprintf("%s %q", s.Command, *s.Expect)
	case s.Command == CmdWaitURL:
		return fmt.Sprintf("waitUrl %s", s.URL)
	case s.Command == CmdPinch:
		return fmt.Sprintf("pinch %s x%g", s.On, s.Scale)
	}
	return fmt.Sprintf("%s %s", s.Command, s.On)
}

// ParseError is a script error with its source position.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func parseErrorf(path string, line int, format string, args ...interface{}) error {
	return &ParseError{Path: path, Line: line, Message: fmt.Sprintf(format, args...)}
}

// rawScript is the document shape before steps are decoded.
type rawScript struct {
	Name      string      `yaml:"name"`
	Catalogue string      `yaml:"catalogue"`
	Timeout   string      `yaml:"timeout"`
	Steps     []yaml.Node `yaml:"steps"`
}

// rawParams holds every parameter a step may carry.
type rawParams struct {
	On         string  `yaml:"on"`
	Timeout    string  `yaml:"timeout"`
	Count      int     `yaml:"count"`
	Duration   string  `yaml:"duration"`
	Text       string  `yaml:"text"`
	File       string  `yaml:"file"`
	Ref        string  `yaml:"ref"`
	Sheet      string  `yaml:"sheet"`
	Name       string  `yaml:"name"`
	Expect     *string `yaml:"expect"`
	Contains   bool    `yaml:"contains"`
	IgnoreCase bool    `yaml:"ignoreCase"`
	From       string  `yaml:"from"`
	To         string  `yaml:"to"`
	Direction  string  `yaml:"direction"`
	Percentage float64 `yaml:"percentage"`
	Label      string  `yaml:"label"`
	Scale      float64 `yaml:"scale"`
	Orient     string  `yaml:"orientation"`
	Type       string  `yaml:"type"`
	URL        string  `yaml:"url"`
}

// setScalar applies the short form "- cmd: value".
func (p *rawParams) setScalar(cmd Command, value string) {
	switch scalarField[cmd] {
	case "label":
		p.Label = value
	case "orientation":
		p.Orient = value
	case "type":
		p.Type = value
	case "expect":
		p.Expect = &value
	case "url":
		p.URL = value
	default:
		p.On = value
	}
}

// ParseFile reads and parses a script file.
func ParseFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(data, path)
}

// ParseFiles parses every path, stopping at the first error.
func ParseFiles(paths []string) ([]*Script, error) {
	scripts := make([]*Script, 0, len(paths))
	for _, p := range paths {
		s, err := ParseFile(p)
		if err != nil {
			return nil, err
		}
		scripts = append(scripts, s)
	}
	return scripts, nil
}

// Parse parses script data. sourcePath is used for error positions and to
// resolve the catalogue path.
func Parse(data []byte, sourcePath string) (*Script, error) {
	var raw rawScript
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, parseErrorf(sourcePath, 0, "%v", err)
	}

	s := &Script{
		SourcePath: sourcePath,
		Name:       raw.Name,
		Catalogue:  raw.Catalogue,
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	}
	if s.Catalogue == "" {
		return nil, parseErrorf(sourcePath, 0, "catalogue is required")
	}
	timeout, err := parseDuration(raw.Timeout)
	if err != nil {
		return nil, parseErrorf(sourcePath, 0, "timeout: %v", err)
	}
	s.Timeout = timeout

	if len(raw.Steps) == 0 {
		return nil, parseErrorf(sourcePath, 0, "no steps")
	}
	for i := range raw.Steps {
		step, err := parseStep(&raw.Steps[i], sourcePath)
		if err != nil {
			return nil, err
		}
		s.Steps = append(s.Steps, step)
	}
	return s, nil
}

// parseStep decodes "- screenshot", "- tap: submit" and "- type: {on: x, text: y}".
func parseStep(node *yaml.Node, path string) (Step, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		cmd := Command(node.Value)
		if !bare[cmd] {
			if _, ok := scalarField[cmd]; ok {
				return Step{}, parseErrorf(path, node.Line, "%s needs a value", cmd)
			}
			if _, ok := params[cmd]; ok {
				return Step{}, parseErrorf(path, node.Line, "%s needs a locator", cmd)
			}
			return Step{}, parseErrorf(path, node.Line, "unknown command %q", node.Value)
		}
		return Step{Command: cmd, Line: node.Line}, nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return Step{}, parseErrorf(path, node.Line, "a step must have exactly one command, found %d keys", len(node.Content)/2)
		}
		key, value := node.Content[0], node.Content[1]
		cmd := Command(key.Value)
		allowed, ok := params[cmd]
		if !ok {
			return Step{}, parseErrorf(path, key.Line, "unknown command %q", key.Value)
		}

		var p rawParams
		switch value.Kind {
		case yaml.ScalarNode:
			p.setScalar(cmd, value.Value)
		case yaml.MappingNode:
			if err := checkKeys(value, allowed, cmd, path); err != nil {
				return Step{}, err
			}
			if err := value.Decode(&p); err != nil {
				return Step{}, parseErrorf(path, value.Line, "%s: %v", cmd, err)
			}
		default:
			return Step{}, parseErrorf(path, value.Line, "%s: expected a locator name or a mapping", cmd)
		}
		return buildStep(cmd, key.Line, p, path)
	}
	return Step{}, parseErrorf(path, node.Line, "a step must be a command or a single-key mapping")
}

func checkKeys(m *yaml.Node, allowed []string, cmd Command, path string) error {
	for i := 0; i+1 < len(m.Content); i += 2 {
		k := m.Content[i]
		if !contains(allowed, k.Value) {
			sorted := append([]string(nil), allowed...)
			sort.Strings(sorted)
			return parseErrorf(path, k.Line, "%s: unknown field %q (allowed: %s)", cmd, k.Value, strings.Join(sorted, ", "))
		}
	}
	return nil
}

func buildStep(cmd Command, line int, p rawParams, path string) (Step, error) {
	fail := func(format string, args ...interface{}) (Step, error) {
		return Step{}, parseErrorf(path, line, string(cmd)+": "+format, args...)
	}

	s := Step{
		Command:    cmd,
		Line:       line,
		On:         p.On,
		Count:      p.Count,
		Text:       p.Text,
		File:       p.File,
		Ref:        p.Ref,
		Sheet:      p.Sheet,
		Attribute:  p.Name,
		Expect:     p.Expect,
		Contains:   p.Contains,
		IgnoreCase: p.IgnoreCase,
		From:       p.From,
		To:         p.To,
		Percentage: p.Percentage,
		Label:      p.Label,
		Scale:      p.Scale,
		LogType:    p.Type,
		URL:        p.URL,
	}
	var err error
	if s.Timeout, err = parseDuration(p.Timeout); err != nil {
		return fail("timeout: %v", err)
	}
	if s.Duration, err = parseDuration(p.Duration); err != nil {
		return fail("duration: %v", err)
	}

	switch cmd {
	case CmdScreenshot, CmdDeviceLogs:
		return s, nil
	case CmdSwipe:
		return buildSwipe(s, p.Direction, fail)
	case CmdRotate:
		if p.Orient == "" {
			return fail("missing orientation")
		}
		o, err := core.ParseOrientation(p.Orient)
		if err != nil {
			return fail("invalid orientation %q (PORTRAIT, LANDSCAPE, PORTRAIT_REVERSE, LANDSCAPE_REVERSE)", p.Orient)
		}
		s.Orientation = o
		return s, nil
	case CmdVerifyTitle, CmdVerifyURL:
		if s.Expect == nil {
			return fail("missing expect")
		}
		s.Contains = cmd == CmdVerifyTitle
		return s, nil
	case CmdWaitURL:
		if s.URL == "" {
			return fail("missing url")
		}
		return s, nil
	}

	if s.On == "" {
		return fail("missing locator (on)")
	}
	switch cmd {
	case CmdMultiTap:
		if s.Count == 0 {
			s.Count = 2
		}
		if s.Count < 1 {
			return fail("count must be at least 1, got %d", s.Count)
		}
	case CmdType:
		if s.File != "" && s.Text != "" {
			return fail("text and file are mutually exclusive")
		}
		if s.File != "" && s.Ref == "" {
			return fail("file needs ref (a column name or cell)")
		}
	case CmdReadAttribute:
		if s.Attribute == "" {
			return fail("missing attribute name")
		}
	case CmdPinch:
		if s.Scale == 0 {
			s.Scale = 2
		}
		if s.Scale < 0 {
			return fail("scale must be positive, got %g", s.Scale)
		}
	}
	return s, nil
}

func buildSwipe(s Step, direction string, fail func(string, ...interface{}) (Step, error)) (Step, error) {
	byElement := s.From != "" || s.To != ""
	switch {
	case byElement && direction != "":
		return fail("use either from/to or direction")
	case byElement:
		if s.From == "" || s.To == "" {
			return fail("from and to are both required")
		}
		return s, nil
	case direction == "":
		return fail("missing direction or from/to")
	}
	dir, err := action.ParseDirection(direction)
	if err != nil {
		return fail("%v", err)
	}
	if s.Percentage < 0 || s.Percentage > 1 {
		return fail("percentage must be in (0, 1], got %v", s.Percentage)
	}
	s.Direction = dir
	return s, nil
}

func parseDuration(v string) (time.Duration, error) {
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", v)
	}
	return d, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
