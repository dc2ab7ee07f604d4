package archiver

import (
	"fmt"
	"strings"
	"time"
)

// Format selects the kind of artifact written for each page.
type Format string

// Supported artifact formats.
const (
	FormatImage    Format = "image"
	FormatDocument Format = "document"
)

// ParseFormat maps user input onto a Format. Both the artifact kind
// ("image", "document") and the file extension ("png", "pdf") are accepted.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "png", "image":
		return FormatImage, nil
	case "pdf", "document":
		return FormatDocument, nil
	default:
		return "", fmt.Errorf("invalid format %q: expected pdf or png", raw)
	}
}

// Extension returns the file extension (without the dot) for the format.
func (f Format) Extension() string {
	if f == FormatImage {
		return "png"
	}
	return "pdf"
}

// ContentType returns the MIME type of artifacts in this format.
func (f Format) ContentType() string {
	if f == FormatImage {
		return "image/png"
	}
	return "application/pdf"
}

// PageDescriptor is one unit of work: a course page to archive.
type PageDescriptor struct {
	// Index is the zero-based discovery ordinal. It drives output ordering.
	Index int `json:"index"`
	// Locator is the page address.
	Locator string `json:"locator"`
	// Title stays empty until the capture sequence resolves it.
	Title string `json:"title,omitempty"`
}

// Selectors locate course structure inside rendered pages.
type Selectors struct {
	Link        string
	Title       string
	TitlePrefix string
}

// RunConfig is the immutable configuration for one archival run. It is built
// once by the host and handed to every stage by value.
type RunConfig struct {
	CourseURL       string
	OutputDir       string
	Format          Format
	Concurrency     int
	SettleDelay     time.Duration
	SettleTimeout   time.Duration
	SettleSignal    string
	Retry           RetryPolicy
	Selectors       Selectors
	PrettifyScripts []string
	WriteManifest   bool
}

// Validate checks the values the pipeline cannot run without.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.CourseURL) == "" {
		return fmt.Errorf("course url is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Format != FormatImage && c.Format != FormatDocument {
		return fmt.Errorf("unknown artifact format %q", c.Format)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be > 0")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("settle delay must be >= 0")
	}
	if c.SettleSignal != "" && c.SettleTimeout <= 0 {
		return fmt.Errorf("settle timeout must be > 0 when a settle signal is set")
	}
	if strings.TrimSpace(c.Selectors.Link) == "" {
		return fmt.Errorf("link selector is required")
	}
	return nil
}

// Success records a page whose artifact was persisted.
type Success struct {
	Page         PageDescriptor
	ArtifactPath string
	Bytes        int64
	// Checksum is the hex digest of the artifact when a Hasher is set.
	Checksum string
}

// Failure records a page that exhausted its retries.
type Failure struct {
	Page PageDescriptor
	Err  error
}

// RunResult aggregates the terminal outcome of every scheduled page. Both
// slices are ordered by page index.
type RunResult struct {
	RunID     string
	Successes []Success
	Failures  []Failure
	Started   time.Time
	Finished  time.Time
}

// Total returns the number of pages that reached a terminal outcome.
func (r RunResult) Total() int {
	return len(r.Successes) + len(r.Failures)
}
