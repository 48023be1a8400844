// Package validator checks step scripts before any session is opened.
// It parses every script, loads each catalogue once, and reports steps that
// name unknown locators or missing test-data files.
package validator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/locator"
	"github.com/devicelab-dev/pagekit/pkg/script"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File    string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Result contains the validation result.
type Result struct {
	// Scripts are the parsed scripts in input order.
	Scripts []*script.Script
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Err returns the errors as one ConfigError, or nil.
func (r *Result) Err() error {
	if r.IsValid() {
		return nil
	}
	return core.ErrConfig.WithMessagef("%d problem(s) in scripts", len(r.Errors)).WithCause(multierr.Combine(r.Errors...))
}

// Validator validates scripts for one backend.
type Validator struct {
	backend  core.BackendKind
	filesDir string
}

// New creates a Validator. A zero backend skips the per-backend kind check.
func New(backend core.BackendKind, filesDir string) *Validator {
	return &Validator{backend: backend, filesDir: filesDir}
}

type loaded struct {
	cat *locator.Catalogue
	err error
}

// Validate parses and checks every script path.
func (v *Validator) Validate(paths []string) *Result {
	result := &Result{}
	catalogues := make(map[string]loaded)

	for _, path := range paths {
		s, err := script.ParseFile(path)
		if err != nil {
			result.Errors = append(result.Errors, parseError(path, err))
			continue
		}
		result.Scripts = append(result.Scripts, s)

		catPath := s.CataloguePath()
		l, ok := catalogues[catPath]
		if !ok {
			l = v.load(catPath)
			catalogues[catPath] = l
		}
		if l.err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("catalogue: %v", l.err),
			})
			continue
		}
		v.validateSteps(s, l.cat, result)
	}
	return result
}

func (v *Validator) load(path string) loaded {
	if v.backend == 0 {
		cat, err := locator.Load(path)
		return loaded{cat, err}
	}
	cat, err := locator.LoadFor(path, v.backend)
	return loaded{cat, err}
}

func (v *Validator) validateSteps(s *script.Script, cat *locator.Catalogue, result *Result) {
	for _, step := range s.Steps {
		for _, name := range locatorNames(step) {
			if _, err := cat.Get(name); err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    s.SourcePath,
					Line:    step.Line,
					Message: fmt.Sprintf("%s: unknown locator %q in %s", step.Command, name, cat.Source()),
				})
			}
		}
		if step.File != "" {
			path := resolveFilePath(v.filesDir, step.File)
			if _, err := os.Stat(path); err != nil {
				result.Errors = append(result.Errors, &ValidationError{
					File:    s.SourcePath,
					Line:    step.Line,
					Message: fmt.Sprintf("%s: test data file %s: %v", step.Command, path, err),
				})
			}
		}
	}
}

// locatorNames lists the catalogue names a step refers to.
func locatorNames(step script.Step) []string {
	var names []string
	for _, n := range []string{step.On, step.From, step.To} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

func parseError(path string, err error) error {
	var pe *script.ParseError
	if errors.As(err, &pe) {
		return &ValidationError{File: pe.Path, Line: pe.Line, Message: pe.Message}
	}
	return &ValidationError{File: path, Message: fmt.Sprintf("parse error: %v", err)}
}

// resolveFilePath resolves a file path relative to a base directory.
func resolveFilePath(baseDir, filePath string) string {
	if filepath.IsAbs(filePath) || baseDir == "" {
		return filePath
	}
	return filepath.Join(baseDir, filePath)
}
