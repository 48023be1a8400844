package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/pagekit/pkg/action"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/locator"
)

func backendFlag(required bool) *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "backend",
		Aliases:  []string{"b"},
		Usage:    "Backend to check against (mobile, web, webdriver, game, mock)",
		Required: required,
	}
}

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check locator catalogues",
	ArgsUsage: "<catalogue>...",
	Description: `Load each catalogue and report malformed entries. With --backend every
entry must also resolve for that backend.

Examples:
  pagekit validate locators/*.json
  pagekit validate --backend web locators/login.yaml`,
	Flags:  []cli.Flag{backendFlag(false)},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one catalogue file is required")
	}
	p := newPrinter(c.App.Writer)

	var backend core.BackendKind
	if name := c.String("backend"); name != "" {
		kind, err := core.ParseBackendKind(name)
		if err != nil {
			return err
		}
		backend = kind
	}

	failed := 0
	for _, path := range c.Args().Slice() {
		var (
			cat *locator.Catalogue
			err error
		)
		if backend != 0 {
			cat, err = locator.LoadFor(path, backend)
		} else {
			cat, err = locator.Load(path)
		}
		if err != nil {
			failed++
			p.fail(path, err)
			continue
		}
		p.ok(fmt.Sprintf("%s (%d locators)", path, cat.Len()))
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d catalogues invalid", failed, c.NArg()), 1)
	}
	return nil
}

var resolveCommand = &cli.Command{
	Name:      "resolve",
	Usage:     "Show the backend query for catalogue entries",
	ArgsUsage: "<catalogue> [name]...",
	Description: `Resolve named entries (all entries when no name is given) into the
strategy and value the backend receives.

Examples:
  pagekit resolve --backend mobile locators/login.json submit`,
	Flags:  []cli.Flag{backendFlag(true)},
	Action: runResolve,
}

func runResolve(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("a catalogue file is required")
	}
	backend, err := core.ParseBackendKind(c.String("backend"))
	if err != nil {
		return err
	}
	cat, err := locator.Load(c.Args().First())
	if err != nil {
		return err
	}

	names := c.Args().Tail()
	if len(names) == 0 {
		names = cat.Names()
	}

	w := c.App.Writer
	var problems []string
	for _, name := range names {
		q, err := cat.Resolve(name, backend)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", q.Locator, q.Kind, q.Strategy, q.Value)
	}
	if len(problems) > 0 {
		return cli.Exit(strings.Join(problems, "\n"), 1)
	}
	return nil
}

var swipeCommand = &cli.Command{
	Name:  "swipe",
	Usage: "Print the start and end points of a directional swipe",
	Description: `Compute the coordinates a directional swipe uses on a viewport.

Examples:
  pagekit swipe --width 1080 --height 2400 --direction up --percentage 0.5`,
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "width", Usage: "Viewport width", Required: true},
		&cli.IntFlag{Name: "height", Usage: "Viewport height", Required: true},
		&cli.StringFlag{Name: "direction", Aliases: []string{"d"}, Usage: "left, right, up or down", Required: true},
		&cli.Float64Flag{Name: "percentage", Usage: "Fraction of the screen to traverse", Value: action.DefaultPercentage},
	},
	Action: runSwipe,
}

func runSwipe(c *cli.Context) error {
	dir, err := action.ParseDirection(c.String("direction"))
	if err != nil {
		return err
	}
	size := core.Size{Width: c.Int("width"), Height: c.Int("height")}
	if size.Width <= 0 || size.Height <= 0 {
		return core.ErrInvalidArgument.WithMessagef("viewport must be positive, got %dx%d", size.Width, size.Height)
	}
	from, to, err := action.SwipePoints(size, dir, c.Float64("percentage"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "from (%d, %d) to (%d, %d)\n", from.X, from.Y, to.X, to.Y)
	return nil
}
