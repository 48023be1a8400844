package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/pagekit/pkg/artifact"
	"github.com/devicelab-dev/pagekit/pkg/config"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
	"github.com/devicelab-dev/pagekit/pkg/report"
	"github.com/devicelab-dev/pagekit/pkg/script"
	"github.com/devicelab-dev/pagekit/pkg/session"
	"github.com/devicelab-dev/pagekit/pkg/validator"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run step scripts against the configured platform",
	ArgsUsage: "<script-file-or-folder>...",
	Description: `Run one or more YAML step scripts. Every script gets its own session on
the selected platform.

A JSON report is written to the output directory:
  - Default: ./reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/

Examples:
  pagekit run scripts/login.yaml
  pagekit --platform chrome run scripts/ --parallel 4
  pagekit --config TestConfig.json run scripts/ --output ./out --flatten`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: ./reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Run up to N scripts at once, each in its own session",
			Value: 1,
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip scripts not yet started after the first failure",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Default find timeout (overrides timeouts.default)",
		},
	},
	Action: runScripts,
}

func runScripts(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one script file or folder is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	platform, err := cfg.Selected(c.String("platform"))
	if err != nil {
		return err
	}
	if d := c.Duration("timeout"); d > 0 {
		cfg.Timeouts.Default = d
	}

	paths, err := collectScripts(c.Args().Slice())
	if err != nil {
		return err
	}
	kind, err := platform.BackendKind()
	if err != nil {
		return err
	}
	checked := validator.New(kind, cfg.Files.Dir).Validate(paths)
	if !checked.IsValid() {
		p := newPrinter(c.App.Writer)
		for _, e := range checked.Errors {
			p.fail(e.Error(), nil)
		}
		return checked.Err()
	}
	scripts := checked.Scripts

	outputDir, err := resolveOutputDir(c.String("output"), c.Bool("flatten"))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if c.String("log-file") == "" {
		if err := logger.Init(filepath.Join(outputDir, "pagekit.log")); err != nil {
			fmt.Fprintf(c.App.ErrWriter, "Warning: Failed to initialize logger: %v\n", err)
		}
	}

	logger.Info("=== Run started ===")
	logger.Info("Output directory: %s", outputDir)
	logger.Info("Platform: %s (%s)", platform.Name, platform.Platform)
	logger.Info("Scripts: %d, parallel: %d", len(scripts), c.Int("parallel"))

	p := newPrinter(c.App.Writer)
	runner := script.New(script.RunnerConfig{
		Waiter:         wait.New(cfg.Timeouts.Default, cfg.Timeouts.Poll),
		ActionTimeout:  cfg.Timeouts.Action,
		Artifacts:      artifact.New(artifactDir(outputDir, cfg), cfg.Artifacts.ArtifactConfig()),
		FilesDir:       cfg.Files.Dir,
		Parallelism:    c.Int("parallel"),
		StopOnFail:     c.Bool("stop-on-fail"),
		OnFlowStart:    p.flowStart,
		OnStepComplete: p.stepComplete,
		OnFlowEnd:      p.flowEnd,
	})

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	suite, runErr := runner.RunAll(ctx, session.Opener(platform), scripts)
	if runErr != nil {
		logger.Warn("session errors: %v", runErr)
		fmt.Fprintf(c.App.ErrWriter, "Warning: %v\n", runErr)
	}

	reportPath, err := report.Write(outputDir, suite)
	if err != nil {
		return err
	}

	p.summary(suite)
	p.printf("\n  Report: %s\n", reportPath)
	logger.Info("=== Run finished: %d/%d passed ===", suite.PassedFlows, suite.TotalFlows)

	if !suite.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

// artifactDir places relative artifact directories inside the run output.
func artifactDir(outputDir string, cfg *config.Config) string {
	dir := cfg.Artifacts.Dir
	if dir == "" {
		dir = config.DefaultArtifactsDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(outputDir, dir)
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: ./reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = "./reports"
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// collectScripts expands folders into the YAML files they contain, sorted.
func collectScripts(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("script path: %w", err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := strings.ToLower(filepath.Ext(path))
			if !d.IsDir() && (ext == ".yaml" || ext == ".yml") {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if len(found) == 0 {
			return nil, core.ErrConfig.WithMessagef("no scripts in %s", arg)
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
