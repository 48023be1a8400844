package core

// Attachment represents a debug artifact captured during step execution
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot
	ContentType string `json:"contentType"` // MIME type: image/png
	Path        string `json:"path"`        // File path relative to output directory
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
	AttachmentDeviceLog  = "device-log"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"
	ContentTypeText = "text/plain"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// ArtifactConfig controls when artifacts are captured
type ArtifactConfig struct {
	CaptureOnFailure bool `yaml:"captureOnFailure" json:"captureOnFailure" mapstructure:"captureOnFailure"` // Default: true
	CaptureOnSuccess bool `yaml:"captureOnSuccess" json:"captureOnSuccess" mapstructure:"captureOnSuccess"` // Default: false
	CaptureOnTimeout bool `yaml:"captureOnTimeout" json:"captureOnTimeout" mapstructure:"captureOnTimeout"` // Default: true
}

// DefaultArtifactConfig returns sensible defaults for artifact capture
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		CaptureOnFailure: true,
		CaptureOnSuccess: false,
		CaptureOnTimeout: true,
	}
}

// ShouldCapture reports whether an action that ended with err should leave a screenshot.
func (c ArtifactConfig) ShouldCapture(err error) bool {
	switch CategoryOf(err) {
	case ErrCategoryNone:
		return c.CaptureOnSuccess
	case ErrCategoryTimeout:
		return c.CaptureOnTimeout
	default:
		return c.CaptureOnFailure
	}
}
