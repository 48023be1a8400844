// Package cli provides the command-line interface for pagekit.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/pagekit/pkg/config"
	"github.com/devicelab-dev/pagekit/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to the framework config (default: config.yaml, config.json or TestConfig.json in the working directory)",
		EnvVars: []string{"PAGEKIT_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "platform",
		Aliases: []string{"p"},
		Usage:   "Platform block to use (overrides run in the config)",
		EnvVars: []string{"PAGEKIT_PLATFORM"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"PAGEKIT_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Write the process log to this file (default: <home>/logs/pagekit.log for run)",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application writing to stdout and stderr.
func NewApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:    "pagekit",
		Usage:   "Page-object UI automation over Appium, Playwright, Selenium and AltTester",
		Version: Version,
		Description: `pagekit resolves named locators from a catalogue, waits for elements
to be ready and performs actions on them through one automation backend.

Examples:
  pagekit validate --backend web locators/login.json
  pagekit resolve --backend mobile locators/login.json submit
  pagekit swipe --width 1080 --height 2400 --direction left
  pagekit --platform android run --parallel 2 scripts/*.yaml`,
		Flags:     GlobalFlags,
		Writer:    stdout,
		ErrWriter: stderr,
		Before:    setup,
		After:     teardown,
		Commands: []*cli.Command{
			validateCommand,
			resolveCommand,
			swipeCommand,
			runCommand,
		},
		ExitErrHandler: func(c *cli.Context, err error) {},
	}
}

// Execute runs the CLI.
func Execute() {
	app := NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", msg)
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return 1
}

func setup(c *cli.Context) error {
	if c.Bool("no-ansi") || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}
	logger.SetVerbose(c.Bool("verbose"))
	if path := c.String("log-file"); path != "" {
		return logger.Init(path)
	}
	return nil
}

func teardown(c *cli.Context) error {
	logger.Close()
	return nil
}

// loadConfig reads --config, or discovers a config in the working directory.
// Without one the built-in defaults apply.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if config.IsNotFound(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return cfg, err
	}
	dir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromDir(dir)
	if err != nil || cfg.Source != "" {
		return cfg, err
	}
	// Nothing in the working directory, fall back to the install home.
	if home := config.GetHome(); home != dir {
		return config.LoadFromDir(home)
	}
	return cfg, nil
}
