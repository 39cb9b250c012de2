package organize

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// nowFunc is the time source, replaceable in tests.
var nowFunc = time.Now

// timestamp returns the current UTC time as YYYYMMDDHHMMSS.
func timestamp() string {
	return nowFunc().UTC().Format("20060102150405")
}

// supportedExtensions maps lowercase file extensions to whether the
// pipeline accepts them as input.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tiff": true,
	".tif":  true,
	".bmp":  true,
	".gif":  true,
}

// SupportedExtension reports whether the given filename carries an
// extension the pipeline can process.
func SupportedExtension(name string) bool {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return false
	}
	return supportedExtensions[strings.ToLower(name[i:])]
}

// maxInputSize is the largest file the extractor will accept.
const maxInputSize = 50 << 20 // 50 MB

// Config is the parsed configuration the core consumes. The CLI owns
// flag parsing; the core only validates and applies defaults.
type Config struct {
	InputDir       string
	DestinationDir string
	QuarantineDir  string

	Provider string // "openai"|"anthropic"|"google"|"deepseek"|"local"
	Model    string
	APIKey   string
	BaseURL  string // override for tests and self-hosted endpoints

	OCRLanguage       string
	DetectOrientation bool

	ResetProgress bool
	MaxAttempts   int
	WorkerCount   int
	Watch         bool

	TokenBudget    int
	RequestTimeout time.Duration

	LogDir  string
	NoCache bool
}

// applyDefaults fills zero-valued fields with the documented defaults.
func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.OCRLanguage == "" {
		c.OCRLanguage = "eng"
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 1
	}
	if c.TokenBudget <= 0 {
		c.TokenBudget = 15000
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 90 * time.Second
	}
	if c.QuarantineDir == "" && c.DestinationDir != "" {
		c.QuarantineDir = filepath.Join(c.DestinationDir, "quarantine")
	}
}

// Validate checks the fields the core cannot default.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input directory is required")
	}
	if c.DestinationDir == "" {
		return fmt.Errorf("destination directory is required")
	}
	return nil
}

// Quality grades the usefulness of extracted text.
type Quality int

const (
	QualityExcellent Quality = iota
	QualityGood
	QualityFair
	QualityPoor
	QualityFailed
)

func (q Quality) String() string {
	switch q {
	case QualityExcellent:
		return "excellent"
	case QualityGood:
		return "good"
	case QualityFair:
		return "fair"
	case QualityPoor:
		return "poor"
	default:
		return "failed"
	}
}

// downgrade lowers the quality by one tier. Failed stays Failed.
func (q Quality) downgrade() Quality {
	if q >= QualityFailed {
		return QualityFailed
	}
	return q + 1
}

// ExtractedContent is the product of the extractor for one source file.
// It lives only for the duration of one pipeline invocation.
type ExtractedContent struct {
	Text      string
	PageImage []byte // PNG bytes of page 1, nil when unavailable
	Quality   Quality
	Method    string // which strategy produced the text
	ErrMsg    string
}

// Empty reports whether neither text nor an image was produced.
func (c *ExtractedContent) Empty() bool {
	return strings.TrimSpace(c.Text) == "" && len(c.PageImage) == 0
}

// Outcome is the terminal disposition of a whole session.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeInterrupted
	OutcomeFailed
)

// Failure describes one file that ended in quarantine or was left in place.
type Failure struct {
	Name    string
	Message string
}

// Result is what the batch driver hands back to the CLI.
type Result struct {
	Outcome  Outcome
	Stats    StatsSnapshot
	Failures []Failure
}

// ExitCode maps the outcome to the process exit code the CLI uses.
func (r *Result) ExitCode() int {
	switch r.Outcome {
	case OutcomeInterrupted:
		return 130
	case OutcomeFailed:
		return 1
	default:
		return 0
	}
}
