// Package artifact saves debug artifacts such as screenshots.
package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/devicelab-dev/pagekit/pkg/core"
	"github.com/devicelab-dev/pagekit/pkg/logger"
)

// Store writes artifacts under a directory. A Store is safe for concurrent
// use: every file gets a unique name.
type Store struct {
	dir    string
	config core.ArtifactConfig
}

// New creates a Store rooted at dir.
func New(dir string, cfg core.ArtifactConfig) *Store {
	return &Store{dir: dir, config: cfg}
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Config returns the capture policy.
func (s *Store) Config() core.ArtifactConfig {
	return s.config
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// fileName builds "<label>-<8 hex><ext>" from a free-form label.
func fileName(label, ext string) string {
	label = strings.Trim(unsafeChars.ReplaceAllString(label, "_"), "_")
	if label == "" {
		label = core.AttachmentScreenshot
	}
	return fmt.Sprintf("%s-%s%s", label, uuid.NewString()[:8], ext)
}

// SaveScreenshot captures a screenshot from b and writes it to the store.
// The attachment path is relative to Dir.
func (s *Store) SaveScreenshot(ctx context.Context, b core.Backend, label string) (core.Attachment, error) {
	data, err := b.Screenshot(ctx)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("capture screenshot: %w", err)
	}
	return s.Save(label, data)
}

// Save writes PNG data under a unique name derived from label.
func (s *Store) Save(label string, data []byte) (core.Attachment, error) {
	name, err := s.write(label, ".png", data)
	if err != nil {
		return core.Attachment{}, err
	}
	logger.Debug("saved screenshot %s", name)
	return core.NewScreenshotAttachment(name, data), nil
}

// SaveFile writes any artifact under a unique name derived from label.
func (s *Store) SaveFile(label, ext, name, contentType string, data []byte) (core.Attachment, error) {
	file, err := s.write(label, ext, data)
	if err != nil {
		return core.Attachment{}, err
	}
	logger.Debug("saved %s %s", name, file)
	return core.Attachment{Name: name, ContentType: contentType, Path: file, Body: data}, nil
}

func (s *Store) write(label, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	name := fileName(label, ext)
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// Capture saves a screenshot when the policy asks for one after an action
// that ended with err. It returns nil when nothing was captured. Capture
// failures are logged, not returned: they must not mask err.
func (s *Store) Capture(ctx context.Context, b core.Backend, label string, err error) *core.Attachment {
	if s == nil || !s.config.ShouldCapture(err) {
		return nil
	}
	att, captureErr := s.SaveScreenshot(ctx, b, label)
	if captureErr != nil {
		logger.Warn("screenshot for %s failed: %v", label, captureErr)
		return nil
	}
	return &att
}
