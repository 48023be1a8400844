package core

import (
	"errors"
	"fmt"
	"time"
)

// ExecutionError represents a structured error with category and details
type ExecutionError struct {
	Category ErrorCategory
	Code     string                 // Machine-readable code: config_error, not_found, timeout, etc.
	Message  string                 // Human-readable message
	Locator  string                 // Symbolic locator name, never the raw query
	Details  map[string]interface{} // Additional context
	Cause    error                  // Underlying error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	msg := e.Message
	if e.Locator != "" {
		msg = fmt.Sprintf("%s: %s", e.Locator, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is matches another ExecutionError by code, so sentinels work with errors.Is.
func (e *ExecutionError) Is(target error) bool {
	t, ok := target.(*ExecutionError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *ExecutionError) clone() *ExecutionError {
	c := *e
	return &c
}

// WithCause returns a copy of the error with the given cause
func (e *ExecutionError) WithCause(cause error) *ExecutionError {
	c := e.clone()
	c.Cause = cause
	return c
}

// WithMessage returns a copy of the error with a custom message
func (e *ExecutionError) WithMessage(msg string) *ExecutionError {
	c := e.clone()
	c.Message = msg
	return c
}

// WithMessagef is WithMessage with formatting.
func (e *ExecutionError) WithMessagef(format string, args ...interface{}) *ExecutionError {
	return e.WithMessage(fmt.Sprintf(format, args...))
}

// WithLocator returns a copy of the error naming the given locator
func (e *ExecutionError) WithLocator(name string) *ExecutionError {
	c := e.clone()
	c.Locator = name
	return c
}

// WithDetails returns a copy of the error with additional details
func (e *ExecutionError) WithDetails(details map[string]interface{}) *ExecutionError {
	merged := make(map[string]interface{})
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	c := e.clone()
	c.Details = merged
	return c
}

// Predefined errors
var (
	// Config errors
	ErrConfig = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "config_error",
		Message:  "invalid locator configuration",
	}
	ErrUnsupportedLocatorKind = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "unsupported_locator_kind",
		Message:  "locator kind not supported by backend",
	}
	ErrInvalidArgument = &ExecutionError{
		Category: ErrCategoryConfig,
		Code:     "invalid_argument",
		Message:  "invalid argument",
	}

	// Lookup errors
	ErrNotFound = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "not_found",
		Message:  "locator not found in catalogue",
	}
	ErrLocatorNotFound = &ExecutionError{
		Category: ErrCategoryLookup,
		Code:     "locator_not_found",
		Message:  "element not found",
	}

	// Timeout errors
	ErrTimeout = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "timeout",
		Message:  "wait condition timed out",
	}
	ErrCancelled = &ExecutionError{
		Category: ErrCategoryTimeout,
		Code:     "cancelled",
		Message:  "wait cancelled",
	}

	// Interaction errors
	ErrElementNotInteractable = &ExecutionError{
		Category: ErrCategoryInteraction,
		Code:     "element_not_interactable",
		Message:  "element not interactable",
	}
	ErrUnsupportedAction = &ExecutionError{
		Category: ErrCategoryInteraction,
		Code:     "unsupported_action",
		Message:  "action not supported by backend",
	}

	// Backend errors
	ErrBackend = &ExecutionError{
		Category: ErrCategoryBackend,
		Code:     "backend_error",
		Message:  "automation backend error",
	}
)

// NewExecutionError creates a new ExecutionError with the given parameters
func NewExecutionError(category ErrorCategory, code, message string) *ExecutionError {
	return &ExecutionError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// TimeoutError reports a readiness predicate that was not satisfied by its deadline.
type TimeoutError struct {
	Locator   string
	Predicate Predicate
	Condition string // replaces Predicate in the message for non-element waits
	Timeout   time.Duration
	Elapsed   time.Duration
	Cause     error // last lookup error seen while polling, if any
}

// NewTimeoutError builds a TimeoutError.
func NewTimeoutError(locator string, p Predicate, timeout, elapsed time.Duration) *TimeoutError {
	return &TimeoutError{Locator: locator, Predicate: p, Timeout: timeout, Elapsed: elapsed}
}

func (e *TimeoutError) Error() string {
	what := e.Predicate.String()
	if e.Condition != "" {
		what = e.Condition
	}
	msg := fmt.Sprintf("%s: not %s after %s (elapsed %s)",
		e.Locator, what, e.Timeout, e.Elapsed.Round(time.Millisecond))
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrTimeout) hold for timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// CategoryOf returns the category of err, ErrCategoryBackend for foreign errors.
func CategoryOf(err error) ErrorCategory {
	if err == nil {
		return ErrCategoryNone
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return ErrCategoryTimeout
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ErrCategoryBackend
}

// CodeOf returns the machine-readable code of err.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return ErrTimeout.Code
	}
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ErrBackend.Code
}
