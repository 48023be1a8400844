package core

import (
	"time"
)

// ActionOutcome is the uniform result of one dispatched action.
type ActionOutcome struct {
	Success  bool          `json:"success"`
	Action   string        `json:"action"`
	Locator  string        `json:"locator,omitempty"`
	Value    *string       `json:"value,omitempty"` // Set by read actions
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Succeeded builds a successful outcome.
func Succeeded(action, locator string) ActionOutcome {
	return ActionOutcome{Success: true, Action: action, Locator: locator}
}

// SucceededWith builds a successful outcome carrying a read value.
func SucceededWith(action, locator, value string) ActionOutcome {
	v := value
	return ActionOutcome{Success: true, Action: action, Locator: locator, Value: &v}
}

// Failed builds a failed outcome.
func Failed(action, locator string, err error) ActionOutcome {
	return ActionOutcome{Action: action, Locator: locator, Err: err}
}

// ValueOr returns the read value or def when none was produced.
func (o ActionOutcome) ValueOr(def string) string {
	if o.Value == nil {
		return def
	}
	return *o.Value
}

// StepResult captures the complete outcome of executing a single step
type StepResult struct {
	// Identity
	Index   int    `json:"index"`   // 0-based position in script
	Command string `json:"command"` // tap, type, waitVisible, ...
	Locator string `json:"locator,omitempty"`

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message string `json:"message,omitempty"`
	Value   string `json:"value,omitempty"` // Value read by readText/readAttribute
	Error   string `json:"error,omitempty"`

	// Debug Artifacts
	Attachments []Attachment `json:"attachments,omitempty"`
}

// FlowResult captures the complete outcome of executing a script
type FlowResult struct {
	// Identity
	Name     string `json:"name"`
	FilePath string `json:"filePath"`
	Backend  string `json:"backend,omitempty"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`

	// Error info (if flow failed)
	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (f *FlowResult) ComputeSummary() {
	f.TotalSteps = len(f.Steps)
	f.PassedSteps = 0
	f.FailedSteps = 0
	f.SkippedSteps = 0

	for _, step := range f.Steps {
		switch step.Status {
		case StatusPassed:
			f.PassedSteps++
		case StatusFailed, StatusErrored:
			f.FailedSteps++
		case StatusSkipped:
			f.SkippedSteps++
		}
	}
}

// AggregateStatus determines the flow status from step results
func (f *FlowResult) AggregateStatus() StepStatus {
	if f.Error != "" && len(f.Steps) == 0 {
		return StatusErrored
	}
	for _, step := range f.Steps {
		if step.Status == StatusFailed || step.Status == StatusErrored {
			return StatusFailed
		}
	}
	return StatusPassed
}

// SuiteResult captures the complete outcome of executing multiple scripts
type SuiteResult struct {
	// Identity
	Name  string `json:"name"`
	RunID string `json:"runId"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Flows []FlowResult `json:"flows"`

	// Summary
	TotalFlows   int `json:"totalFlows"`
	PassedFlows  int `json:"passedFlows"`
	FailedFlows  int `json:"failedFlows"`
	SkippedFlows int `json:"skippedFlows"`
}

// ComputeSummary calculates flow counts from the Flows slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalFlows = len(s.Flows)
	s.PassedFlows = 0
	s.FailedFlows = 0
	s.SkippedFlows = 0

	for _, flow := range s.Flows {
		switch flow.Status {
		case StatusPassed:
			s.PassedFlows++
		case StatusFailed, StatusErrored:
			s.FailedFlows++
		case StatusSkipped:
			s.SkippedFlows++
		}
	}
}

// Success returns true if all flows passed
func (s *SuiteResult) Success() bool {
	for _, flow := range s.Flows {
		if !flow.Status.IsSuccess() {
			return false
		}
	}
	return len(s.Flows) > 0
}
