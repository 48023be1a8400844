package script

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/pagekit/pkg/artifact"
	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/locator"
	"github.com/devicelab-dev/pagekit/pkg/logger"
	"github.com/devicelab-dev/pagekit/pkg/page"
	"github.com/devicelab-dev/pagekit/pkg/session"
	"github.com/devicelab-dev/pagekit/pkg/wait"
)

// CloseTimeout bounds session teardown after a script finishes or is cancelled.
var CloseTimeout = 30 * time.Second

// ErrMismatch reports a read value that differs from the expected one.
var ErrMismatch = core.NewExecutionError(core.ErrCategoryLookup, "value_mismatch", "value mismatch")

// RunnerConfig configures script execution.
type RunnerConfig struct {
	Waiter        *wait.Waiter
	ActionTimeout time.Duration
	Artifacts     *artifact.Store
	FilesDir      string

	Parallelism int  // Max concurrent scripts in RunAll, <= 0 means 1
	StopOnFail  bool // Skip scripts not yet started once one fails

	// Live progress callbacks. They may be called from several goroutines.
	OnFlowStart    func(name, file string)
	OnStepComplete func(script string, r core.StepResult)
	OnFlowEnd      func(r core.FlowResult)
}

// Runner executes scripts.
type Runner struct {
	config RunnerConfig
}

// New creates a Runner.
func New(cfg RunnerConfig) *Runner {
	if cfg.Waiter == nil {
		cfg.Waiter = wait.New(0, 0)
	}
	return &Runner{config: cfg}
}

// Config returns the runner configuration.
func (r *Runner) Config() RunnerConfig {
	return r.config
}

// Run executes one script on b. Steps run strictly in order; after the first
// step that does not pass, the remaining steps are skipped.
func (r *Runner) Run(ctx context.Context, b core.Backend, s *Script) (result core.FlowResult) {
	result = core.FlowResult{
		Name:      s.Name,
		FilePath:  s.SourcePath,
		StartTime: time.Now(),
	}
	if b != nil {
		result.Backend = b.Kind().String()
	}
	if r.config.OnFlowStart != nil {
		r.config.OnFlowStart(s.Name, s.SourcePath)
	}
	defer func() {
		if r.config.OnFlowEnd != nil {
			r.config.OnFlowEnd(result)
		}
	}()

	p, err := r.openPage(b, s)
	if err != nil {
		logger.Error("script %s: %v", s.Name, err)
		return finish(result, err)
	}

	failed := false
	for i, step := range s.Steps {
		var sr core.StepResult
		switch {
		case failed:
			sr = skipped(i, step, "previous step failed")
		case ctx.Err() != nil:
			sr = skipped(i, step, "run cancelled")
			if result.Error == "" {
				result.Error = "run cancelled"
			}
		default:
			sr = r.runStep(ctx, p, s, i, step)
			if sr.Status != core.StatusPassed {
				failed = true
				if result.Error == "" {
					result.Error = sr.Error
				}
			}
		}
		result.Steps = append(result.Steps, sr)
		if r.config.OnStepComplete != nil {
			r.config.OnStepComplete(s.Name, sr)
		}
	}

	result.Status = result.AggregateStatus()
	if result.Status == core.StatusPassed && result.Error != "" {
		// Cancelled before any step failed.
		result.Status = core.StatusSkipped
	}
	result.Duration = time.Since(result.StartTime)
	result.ComputeSummary()
	return result
}

func (r *Runner) openPage(b core.Backend, s *Script) (*page.Page, error) {
	if b == nil {
		return nil, core.ErrConfig.WithMessagef("script %s: no backend", s.Name)
	}
	cat, err := locator.LoadFor(s.CataloguePath(), b.Kind())
	if err != nil {
		return nil, err
	}
	return page.New(s.Name, b, cat,
		page.WithWaiter(r.config.Waiter),
		page.WithActionTimeout(r.config.ActionTimeout),
		page.WithArtifacts(r.config.Artifacts),
		page.WithFilesDir(r.config.FilesDir),
	)
}

// finish completes a result for a script that could not start.
func finish(result core.FlowResult, err error) core.FlowResult {
	result.Error = err.Error()
	result.Status = core.StatusFor(core.CategoryOf(err))
	if result.Status == core.StatusFailed {
		result.Status = core.StatusErrored
	}
	result.Duration = time.Since(result.StartTime)
	result.ComputeSummary()
	return result
}

func skipped(i int, step Step, msg string) core.StepResult {
	return core.StepResult{
		Index:   i,
		Command: string(step.Command),
		Locator: step.On,
		Status:  core.StatusSkipped,
		Message: msg,
	}
}

func (r *Runner) runStep(ctx context.Context, p *page.Page, s *Script, i int, step Step) core.StepResult {
	sr := core.StepResult{
		Index:     i,
		Command:   string(step.Command),
		Locator:   step.On,
		StartTime: time.Now(),
	}

	timeout := step.Timeout
	if timeout == 0 {
		timeout = s.Timeout
	}
	var opts []page.CallOption
	if timeout > 0 {
		opts = append(opts, page.WithTimeout(timeout))
	}

	value, err := execute(ctx, p, i, step, opts)

	sr.Duration = time.Since(sr.StartTime)
	sr.Value = value
	sr.Category = core.CategoryOf(err)
	sr.Status = core.StatusFor(sr.Category)
	sr.Attachments = p.TakeAttachments()
	if err != nil && len(sr.Attachments) == 0 {
		// Mismatches fail after a successful read, so the page captured nothing.
		label := fmt.Sprintf("%s_step%02d", p.Name(), i+1)
		if att := r.config.Artifacts.Capture(ctx, p.Backend(), label, err); att != nil {
			sr.Attachments = append(sr.Attachments, *att)
		}
	}

	fields := map[string]interface{}{
		"script":  s.Name,
		"step":    i,
		"command": string(step.Command),
		"locator": step.On,
		"elapsed": sr.Duration.Round(time.Millisecond).String(),
	}
	if err != nil {
		sr.Error = err.Error()
		logger.WithFields(fields).Errorf("step failed: %v", err)
	} else {
		sr.Message = step.Describe()
		logger.WithFields(fields).Info("step passed")
	}
	return sr
}

// execute performs one step through the page object. Screenshots taken by
// the step are collected from the page afterwards.
func execute(ctx context.Context, p *page.Page, i int, step Step, opts []page.CallOption) (string, error) {
	switch step.Command {
	case CmdTap:
		return "", p.Tap(ctx, step.On, opts...)
	case CmdMultiTap:
		return "", p.MultiTap(ctx, step.On, step.Count, opts...)
	case CmdLongPress:
		return "", p.LongPress(ctx, step.On, step.Duration, opts...)
	case CmdType:
		if step.File != "" {
			return "", p.EnterTextFromFile(ctx, step.On, step.File, step.Ref, step.Sheet, opts...)
		}
		return "", p.EnterText(ctx, step.On, step.Text, opts...)
	case CmdClear:
		return "", p.ClearText(ctx, step.On, opts...)
	case CmdReadText:
		v, err := p.GetText(ctx, step.On, opts...)
		if err != nil {
			return "", err
		}
		if step.Expect != nil && !page.MatchText(v, *step.Expect, step.Contains, !step.IgnoreCase) {
			return v, mismatch(step, v)
		}
		return v, nil
	case CmdReadAttribute:
		v, err := p.GetAttribute(ctx, step.On, step.Attribute, opts...)
		if err != nil {
			return "", err
		}
		if step.Expect != nil && v != *step.Expect {
			return v, mismatch(step, v)
		}
		return v, nil
	case CmdSwipe:
		if step.From != "" {
			return "", p.SwipeElementToElement(ctx, step.From, step.To, step.Duration, opts...)
		}
		return "", p.SwipeByDirection(ctx, step.Direction, step.Percentage, step.Duration)
	case CmdWaitVisible:
		return "", p.WaitUntilVisible(ctx, step.On, opts...)
	case CmdWaitNotVisible:
		return "", p.WaitUntilNotVisible(ctx, step.On, opts...)
	case CmdWaitPresent:
		return "", p.WaitFor(ctx, step.On, core.PredicatePresent, opts...)
	case CmdScreenshot:
		label := step.Label
		if label == "" {
			label = fmt.Sprintf("step%02d", i+1)
		}
		_, err := p.TakeScreenshot(ctx, label)
		return "", err
	case CmdElementScreenshot:
		label := step.Label
		if label == "" {
			label = step.On
		}
		_, err := p.TakeElementScreenshot(ctx, step.On, label, opts...)
		return "", err
	case CmdPinch:
		return "", p.PinchToZoom(ctx, step.On, step.Scale, step.Duration, opts...)
	case CmdRotate:
		return "", p.RotateDevice(ctx, string(step.Orientation))
	case CmdDeviceLogs:
		label := step.Label
		if label == "" {
			label = fmt.Sprintf("step%02d_logs", i+1)
		}
		_, err := p.SaveDeviceLogs(ctx, step.LogType, label)
		return "", err
	case CmdVerifyTitle:
		v, err := p.Title(ctx)
		if err != nil {
			return "", err
		}
		if !page.MatchText(v, *step.Expect, true, !step.IgnoreCase) {
			return v, mismatch(step, v)
		}
		return v, nil
	case CmdVerifyURL:
		v, err := p.URL(ctx)
		if err != nil {
			return "", err
		}
		if v != *step.Expect {
			return v, mismatch(step, v)
		}
		return v, nil
	case CmdWaitURL:
		return "", p.WaitForURL(ctx, step.URL, opts...)
	}
	return "", core.ErrInvalidArgument.WithMessagef("unknown command %q", step.Command)
}

func mismatch(step Step, actual string) error {
	how := "equal"
	if step.Contains {
		how = "contain"
	}
	return ErrMismatch.WithLocator(step.On).WithMessagef("expected %s to %s %q, got %q", step.Command, how, *step.Expect, actual)
}

// RunAll runs scripts with at most Parallelism at a time. Every script gets
// its own session from factory, closed when the script ends whatever the
// outcome. Results keep the order of scripts. The returned error aggregates
// session open and close failures; script failures are only in the result.
func (r *Runner) RunAll(ctx context.Context, factory session.Factory, scripts []*Script) (*core.SuiteResult, error) {
	suite := &core.SuiteResult{
		Name:      "pagekit",
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Flows:     make([]core.FlowResult, len(scripts)),
	}

	limit := r.config.Parallelism
	if limit <= 0 {
		limit = 1
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		errs     error
		stopping atomic.Bool
	)
	g.SetLimit(limit)

	for i, s := range scripts {
		i, s := i, s
		g.Go(func() error {
			if stopping.Load() || ctx.Err() != nil {
				suite.Flows[i] = notRun(s, "run stopped")
				return nil
			}
			result, err := r.runInSession(ctx, factory, s)
			suite.Flows[i] = result
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", s.Name, err))
				mu.Unlock()
			}
			if r.config.StopOnFail && !result.Status.IsSuccess() {
				stopping.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()

	suite.Duration = time.Since(suite.StartTime)
	suite.ComputeSummary()
	return suite, errs
}

// runInSession opens a session, runs s and closes the session again.
func (r *Runner) runInSession(ctx context.Context, factory session.Factory, s *Script) (result core.FlowResult, err error) {
	sess, err := factory(ctx)
	if err != nil {
		logger.Error("script %s: opening session: %v", s.Name, err)
		return finish(core.FlowResult{Name: s.Name, FilePath: s.SourcePath, StartTime: time.Now()}, err), err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CloseTimeout)
		defer cancel()
		err = multierr.Append(err, sess.Close(closeCtx))
	}()
	return r.Run(ctx, sess.Backend, s), nil
}

func notRun(s *Script, reason string) core.FlowResult {
	result := core.FlowResult{
		Name:     s.Name,
		FilePath: s.SourcePath,
		Status:   core.StatusSkipped,
		Error:    reason,
	}
	for i, step := range s.Steps {
		result.Steps = append(result.Steps, skipped(i, step, reason))
	}
	result.ComputeSummary()
	return result
}
