package archiver

import (
	"errors"
	"fmt"
)

// Failure kinds. Stage errors and exhausted retries match these via errors.Is.
var (
	ErrDiscovery        = errors.New("discovery failed")
	ErrNavigation       = errors.New("navigation failed")
	ErrExtraction       = errors.New("title extraction failed")
	ErrSettleTimeout    = errors.New("settle timeout")
	ErrPersistence      = errors.New("persistence failed")
	ErrLogin            = errors.New("login failed")
	ErrExhaustedRetries = errors.New("retries exhausted")
)

// StageError ties a failure kind to the page it happened on.
type StageError struct {
	Kind    error
	Locator string
	Err     error
}

func (e *StageError) Error() string {
	if e.Locator == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%v (%s): %v", e.Kind, e.Locator, e.Err)
}

// Unwrap exposes both the kind and the underlying cause.
func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func stageError(kind error, locator string, err error) error {
	return &StageError{Kind: kind, Locator: locator, Err: err}
}

// ExhaustedError is returned once every permitted attempt has failed. Err is
// the error from the final attempt.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrExhaustedRetries, e.Attempts, e.Err)
}

// Unwrap exposes ErrExhaustedRetries and the last attempt's error.
func (e *ExhaustedError) Unwrap() []error {
	return []error{ErrExhaustedRetries, e.Err}
}
