package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
	StagePageStart  Stage = "PAGE_START"
	StagePageRetry  Stage = "PAGE_RETRY"
	StagePageDone   Stage = "PAGE_DONE"
	StagePageFailed Stage = "PAGE_FAILED"
	StagePageNote   Stage = "PAGE_NOTE"
)

// Event captures a single step of an archival run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Index is the page's discovery ordinal; -1 for run-level events.
	Index   int
	Locator string
	// Attempt is the 1-based attempt number for retry events.
	Attempt int
	Path    string
	Format  string
	Bytes   int64
	Dur     time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// IsPage reports whether the event is scoped to a single page.
func (e Event) IsPage() bool {
	switch e.Stage {
	case StagePageStart, StagePageRetry, StagePageDone, StagePageFailed, StagePageNote:
		return true
	default:
		return false
	}
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StagePageStart, StagePageDone, StagePageFailed, StagePageNote:
		if e.Index < 0 {
			return fmt.Errorf("%s requires a page index", e.Stage)
		}
	case StagePageRetry:
		if e.Index < 0 {
			return fmt.Errorf("%s requires a page index", e.Stage)
		}
		if e.Attempt <= 0 {
			return errors.New("page retry requires an attempt number")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
