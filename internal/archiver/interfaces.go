package archiver

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Browser hands out page-level scopes that share one authenticated session.
type Browser interface {
	NewScope(ctx context.Context) (Scope, error)
}

// Scope is a single browser tab. It is owned by exactly one capture attempt
// and must be closed on every exit path.
type Scope interface {
	Navigate(ctx context.Context, locator string) error
	// Evaluate runs script against the rendered document. out may be nil.
	Evaluate(ctx context.Context, script string, out any) error
	HTML(ctx context.Context) (string, error)
	// WaitFor blocks until expression is truthy or timeout elapses.
	WaitFor(ctx context.Context, expression string, timeout time.Duration) error
	CaptureImage(ctx context.Context) ([]byte, error)
	CaptureDocument(ctx context.Context) ([]byte, error)
	Close() error
}

// Storage persists artifacts. EnsureDir is idempotent and WriteFile
// overwrites existing files.
type Storage interface {
	EnsureDir(ctx context.Context, dir string) error
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Publisher announces a finished run (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Hasher digests artifact bytes for the manifest.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}
