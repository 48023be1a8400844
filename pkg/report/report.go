// Package report writes run results to disk as JSON.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/pagekit/pkg/core"
)

// FileName is the suite report written into the output directory.
const FileName = "report.json"

// Write stores suite as <outputDir>/report.json and returns the path.
func Write(outputDir string, suite *core.SuiteResult) (string, error) {
	if err := ensureDir(outputDir); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(outputDir, FileName)
	if err := atomicWriteJSON(path, suite); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Read loads a suite report written by Write.
func Read(path string) (*core.SuiteResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var suite core.SuiteResult
	if err := json.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &suite, nil
}

// atomicWriteJSON writes v next to path and renames it into place, so
// readers never see a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
