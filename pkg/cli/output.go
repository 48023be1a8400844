package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// slowThreshold marks passing steps that took suspiciously long.
const slowThreshold = 5 * time.Second

// printer writes live progress and summaries. Runner callbacks may arrive
// from several goroutines, so every write holds mu.
type printer struct {
	mu sync.Mutex
	w  io.Writer

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	gray   *color.Color
	bold   *color.Color
}

func newPrinter(w io.Writer) *printer {
	return &printer{
		w:      w,
		green:  color.New(color.FgGreen),
		red:    color.New(color.FgRed),
		yellow: color.New(color.FgYellow),
		cyan:   color.New(color.FgCyan),
		gray:   color.New(color.FgHiBlack),
		bold:   color.New(color.Bold),
	}
}

func (p *printer) printf(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, format, args...)
}

func (p *printer) ok(msg string) {
	p.printf("  %s %s\n", p.green.Sprint("✓"), msg)
}

func (p *printer) fail(msg string, err error) {
	p.printf("  %s %s\n", p.red.Sprint("✗"), msg)
	if err != nil {
		p.printf("      %s %s\n", p.gray.Sprint("╰─"), err)
	}
}

func (p *printer) flowStart(name, file string) {
	p.printf("\n  %s %s\n", p.bold.Sprint(name), p.gray.Sprintf("(%s)", file))
}

func (p *printer) stepComplete(script string, sr core.StepResult) {
	desc := strings.TrimSpace(sr.Command + " " + sr.Locator)
	if sr.Message != "" && sr.Status == core.StatusPassed {
		desc = sr.Message
	}
	dur := formatDuration(sr.Duration)

	switch sr.Status {
	case core.StatusPassed:
		if sr.Duration >= slowThreshold {
			p.printf("    %s %s %s\n", p.yellow.Sprint("⚠"), desc, p.yellow.Sprintf("(%s)", dur))
			return
		}
		p.printf("    %s %s (%s)\n", p.green.Sprint("✓"), desc, dur)
	case core.StatusSkipped:
		p.printf("    %s %s\n", p.cyan.Sprint("-"), p.gray.Sprint(desc))
	default:
		p.printf("    %s %s (%s)\n", p.red.Sprint("✗"), desc, dur)
		if sr.Error != "" {
			p.printf("      %s %s\n", p.gray.Sprint("╰─"), sr.Error)
		}
	}
}

func (p *printer) flowEnd(fr core.FlowResult) {
	mark := p.green.Sprint("✓")
	if !fr.Status.IsSuccess() {
		mark = p.red.Sprint("✗")
	}
	p.printf("%s %s %s\n", mark, fr.Name, p.gray.Sprint(formatDuration(fr.Duration)))
}

func (p *printer) summary(suite *core.SuiteResult) {
	var total, passed, failed, skipped int
	for _, fr := range suite.Flows {
		total += fr.TotalSteps
		passed += fr.PassedSteps
		failed += fr.FailedSteps
		skipped += fr.SkippedSteps
	}

	p.printf("\n")
	if passed > 0 {
		p.printf("  %s (%s)\n", p.green.Sprintf("%d steps passing", passed), formatDuration(suite.Duration))
	}
	if failed > 0 {
		p.printf("  %s\n", p.red.Sprintf("%d steps failing", failed))
	}
	if skipped > 0 {
		p.printf("  %s\n", p.cyan.Sprintf("%d steps skipped", skipped))
	}
	p.printf("\n")

	const width = 92
	p.printf("%s\n", strings.Repeat("═", width))
	p.printf("  %-42s %6s %7s %6s %6s %6s %10s\n", "Script", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	p.printf("%s\n", strings.Repeat("─", width))
	for _, fr := range suite.Flows {
		status, c := "✓ PASS", p.green
		switch fr.Status {
		case core.StatusFailed:
			status, c = "✗ FAIL", p.red
		case core.StatusErrored:
			status, c = "✗ ERR", p.red
		case core.StatusSkipped:
			status, c = "- SKIP", p.cyan
		}
		name := fr.Name
		if len(name) > 42 {
			name = name[:39] + "..."
		}
		p.printf("  %-42s %s %7d %6d %6d %6d %10s\n",
			name, c.Sprintf("%6s", status),
			fr.TotalSteps, fr.PassedSteps, fr.FailedSteps, fr.SkippedSteps,
			formatDuration(fr.Duration))
	}
	p.printf("%s\n", strings.Repeat("─", width))

	c := p.green
	if suite.FailedFlows > 0 {
		c = p.red
	}
	p.printf("  %s %s %7d %6d %6d %6d %10s\n",
		p.bold.Sprintf("%-42s", "TOTAL"),
		c.Sprintf("%6s", fmt.Sprintf("%d/%d", suite.PassedFlows, suite.TotalFlows)),
		total, passed, failed, skipped, formatDuration(suite.Duration))
	p.printf("%s\n", strings.Repeat("═", width))
}

// formatDuration shows milliseconds below one second, seconds below one
// minute, and minutes with seconds beyond.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%dm %ds", ms/60000, (ms%60000)/1000)
}
