package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/report"
)

func init() {
	color.NoColor = true
}

// run executes the CLI with args and returns stdout, stderr and the error.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := NewApp(&stdout, &stderr)
	err := app.Run(append([]string{"pagekit"}, args...))
	return stdout.String(), stderr.String(), err
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	var ec cli.ExitCoder
	if !errors.As(err, &ec) {
		t.Fatalf("expected an exit error, got %T: %v", err, err)
	}
	return ec.ExitCode()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const loginLocators = `{
  "submit":   {"locator_type": "xpath", "locator": "//button[@id='go']"},
  "username": {"locator_type": "id", "locator": "user"}
}`

func TestResolveOutputDir_Default(t *testing.T) {
	dir, err := resolveOutputDir("", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parts := strings.Split(dir, string(filepath.Separator))
	if len(parts) != 2 || parts[0] != "reports" {
		t.Errorf("expected reports/<timestamp>, got %s", dir)
	}
}

func TestResolveOutputDir_Flatten(t *testing.T) {
	dir, err := resolveOutputDir("./my-reports", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dir != "my-reports" {
		t.Errorf("expected my-reports, got %s", dir)
	}

	if _, err := resolveOutputDir("", true); err == nil {
		t.Error("expected error when flatten is used without output")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{125 * time.Second, "2m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "login.json", loginLocators)

	out, _, err := run(t, "validate", good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "login.json (2 locators)") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestValidate_Failures(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "login.json", loginLocators)
	bad := writeFile(t, dir, "broken.json", `{"x": {"locator_type": "sonar", "locator": "ping"}}`)

	out, _, err := run(t, "validate", good, bad)
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(err.Error(), "1 of 2 catalogues invalid") {
		t.Errorf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "broken.json") || !strings.Contains(out, `"x"`) {
		t.Errorf("output should name the file and the entry: %q", out)
	}

	// id is fine for web, accessibility_id is not
	mobileOnly := writeFile(t, dir, "mobile.json", `{"menu": {"locator_type": "content", "locator": "Menu"}}`)
	_, _, err = run(t, "validate", "--backend", "web", mobileOnly)
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	if _, _, err := run(t, "validate"); err == nil {
		t.Error("expected error without files")
	}
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "login.json", loginLocators)

	out, _, err := run(t, "resolve", "--backend", "mobile", path, "submit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "submit\txpath\txpath\t//button[@id='go']\n" {
		t.Errorf("unexpected output: %q", out)
	}

	out, _, err = run(t, "resolve", "--backend", "webdriver", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "submit\t") || lines[1] != "username\tid\tid\tuser" {
		t.Errorf("expected every entry in name order, got %q", out)
	}

	_, _, err = run(t, "resolve", "--backend", "mobile", path, "logout")
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestSwipe(t *testing.T) {
	out, _, err := run(t, "swipe", "--width", "1000", "--height", "2000", "--direction", "left", "--percentage", "0.5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "from (800, 1000) to (500, 1000)\n" {
		t.Errorf("unexpected output: %q", out)
	}

	out, _, err = run(t, "swipe", "--width", "1000", "--height", "2000", "--direction", "up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "from (500, 1400) to (500, 500)\n" {
		t.Errorf("default percentage should be 0.75: %q", out)
	}

	if _, _, err := run(t, "swipe", "--width", "1000", "--height", "2000", "--direction", "sideways"); err == nil {
		t.Error("expected error for an invalid direction")
	}
	if _, _, err := run(t, "swipe", "--width", "1000", "--height", "2000", "--direction", "up", "--percentage", "0"); err == nil {
		t.Error("expected error for a zero percentage")
	}
}

// runWorkspace writes a mock-backed config, a catalogue and scripts.
func runWorkspace(t *testing.T, scripts map[string]string) (cfgPath, scriptDir, outDir string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath = writeFile(t, dir, "config.yaml", `run: dry
config:
  dry:
    backend: mock
timeouts:
  default: 200ms
  poll: 10ms
`)
	writeFile(t, dir, "locators.json", loginLocators)
	scriptDir = filepath.Join(dir, "scripts")
	for name, body := range scripts {
		writeFile(t, scriptDir, name, "catalogue: ../locators.json\n"+body)
	}
	return cfgPath, scriptDir, filepath.Join(dir, "out")
}

func TestRun_Passes(t *testing.T) {
	cfgPath, scriptDir, outDir := runWorkspace(t, map[string]string{
		"a_login.yaml": "steps:\n  - type: {on: username, text: alice}\n  - tap: submit\n",
		"b_read.yaml":  "steps:\n  - readText: {on: submit, expect: Mock Element}\n",
	})

	out, _, err := run(t, "--config", cfgPath, "run", "--output", outDir, "--flatten", "--parallel", "2", scriptDir)
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	for _, want := range []string{"a_login", "b_read", "TOTAL", "2/2", "Report:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	suite, err := report.Read(filepath.Join(outDir, report.FileName))
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if suite.TotalFlows != 2 || suite.PassedFlows != 2 {
		t.Errorf("unexpected suite summary: %+v", suite)
	}
	if suite.Flows[0].Name != "a_login" || suite.Flows[0].Backend != "mock" {
		t.Errorf("unexpected first flow: %+v", suite.Flows[0])
	}
	if _, err := os.Stat(filepath.Join(outDir, "pagekit.log")); err != nil {
		t.Errorf("expected a log file in the output dir: %v", err)
	}
}

func TestRun_FailureExitsWithOne(t *testing.T) {
	cfgPath, scriptDir, outDir := runWorkspace(t, map[string]string{
		"read.yaml": "steps:\n  - readText: {on: submit, expect: Sign in}\n  - tap: submit\n",
	})

	out, _, err := run(t, "--config", cfgPath, "run", "--output", outDir, "--flatten", filepath.Join(scriptDir, "read.yaml"))
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out, `expected readText to equal "Sign in"`) {
		t.Errorf("output should show the failure:\n%s", out)
	}

	suite, err := report.Read(filepath.Join(outDir, report.FileName))
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	flow := suite.Flows[0]
	if flow.Status != core.StatusFailed || flow.SkippedSteps != 1 {
		t.Errorf("unexpected flow: %+v", flow)
	}
	if len(flow.Steps[0].Attachments) != 1 {
		t.Errorf("expected a failure screenshot, got %+v", flow.Steps[0].Attachments)
	}
}

func TestRun_PreflightRejectsUnknownLocator(t *testing.T) {
	cfgPath, scriptDir, outDir := runWorkspace(t, map[string]string{
		"bad.yaml": "steps:\n  - tap: submit\n  - tap: logout\n",
	})

	out, _, err := run(t, "--config", cfgPath, "run", "--output", outDir, "--flatten", scriptDir)
	if err == nil || !strings.Contains(err.Error(), "1 problem(s) in scripts") {
		t.Fatalf("expected a preflight error, got %v", err)
	}
	if !strings.Contains(out, `bad.yaml:4: tap: unknown locator "logout"`) {
		t.Errorf("output should name the step:\n%s", out)
	}
	if _, err := os.Stat(filepath.Join(outDir, report.FileName)); !os.IsNotExist(err) {
		t.Errorf("no report should be written when preflight fails, stat err = %v", err)
	}
}

func TestRun_Errors(t *testing.T) {
	cfgPath, scriptDir, outDir := runWorkspace(t, map[string]string{
		"ok.yaml": "steps:\n  - tap: submit\n",
	})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no scripts", []string{"--config", cfgPath, "run"}, "at least one script"},
		{"missing config", []string{"--config", filepath.Join(outDir, "nope.yaml"), "run", scriptDir}, "config file not found"},
		{"unknown platform", []string{"--config", cfgPath, "--platform", "ios", "run", scriptDir}, `unknown platform "ios"`},
		{"missing script", []string{"--config", cfgPath, "run", filepath.Join(scriptDir, "nope.yaml")}, "script path"},
		{"flatten without output", []string{"--config", cfgPath, "run", "--flatten", scriptDir}, "--flatten requires --output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestCollectScripts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yaml", "")
	writeFile(t, dir, "a.yml", "")
	writeFile(t, dir, "nested/c.yaml", "")
	writeFile(t, dir, "notes.txt", "")

	paths, err := collectScripts([]string{dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.yml"),
		filepath.Join(dir, "b.yaml"),
		filepath.Join(dir, "nested", "c.yaml"),
	}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("collectScripts = %v, want %v", paths, want)
	}

	empty := filepath.Join(dir, "empty")
	if err := os.Mkdir(empty, 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := collectScripts([]string{empty}); err == nil {
		t.Error("expected error for a folder without scripts")
	}
}
