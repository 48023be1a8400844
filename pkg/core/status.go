package core

import "fmt"

// StepStatus represents the execution status of a step
type StepStatus int

const (
	StatusPending StepStatus = iota // Not yet started
	StatusRunning                   // Currently executing
	StatusPassed                    // Completed successfully
	StatusFailed                    // Assertion or readiness failure
	StatusErrored                   // Configuration or backend failure
	StatusSkipped                   // Not run because an earlier step failed
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusErrored:
		return "errored"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name in reports.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name written by MarshalText.
func (s *StepStatus) UnmarshalText(text []byte) error {
	for c := StatusPending; c <= StatusSkipped; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown step status %q", text)
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	default:
		return false
	}
}

// IsSuccess returns true if the status indicates success
func (s StepStatus) IsSuccess() bool {
	return s == StatusPassed
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone        ErrorCategory = iota // No error
	ErrCategoryConfig                           // Bad locator source, unsupported kind, bad argument
	ErrCategoryLookup                           // Name absent from catalogue or element absent on screen
	ErrCategoryTimeout                          // Readiness predicate unmet by deadline, cancelled wait
	ErrCategoryInteraction                      // Element not interactable, action unsupported by backend
	ErrCategoryBackend                          // Automation engine or transport failure
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryLookup:
		return "lookup"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryInteraction:
		return "interaction"
	case ErrCategoryBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// MarshalText encodes the category by name in reports.
func (c ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name written by MarshalText.
func (c *ErrorCategory) UnmarshalText(text []byte) error {
	for v := ErrCategoryNone; v <= ErrCategoryBackend; v++ {
		if v.String() == string(text) {
			*c = v
			return nil
		}
	}
	return fmt.Errorf("unknown error category %q", text)
}

// StatusFor maps an error category to the step status it produces.
func StatusFor(c ErrorCategory) StepStatus {
	switch c {
	case ErrCategoryNone:
		return StatusPassed
	case ErrCategoryLookup, ErrCategoryTimeout, ErrCategoryInteraction:
		return StatusFailed
	default:
		return StatusErrored
	}
}
