package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Callers classify failures with errors.Is.
var (
	// ErrInvalidInput marks bad requests and unreadable geometry. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrFetchExhausted marks a grid archive that failed on every attempt.
	ErrFetchExhausted = errors.New("fetch retries exhausted")

	// ErrPatternMismatch marks a raster in a mosaic group that does not follow
	// the group's naming or grid convention.
	ErrPatternMismatch = errors.New("raster pattern mismatch")

	// ErrPreconditionMismatch marks confidence inputs that disagree in shape or transform.
	ErrPreconditionMismatch = errors.New("raster precondition mismatch")

	// ErrMissingData marks a duration without a complete base/upper/lower set.
	ErrMissingData = errors.New("missing raster data")
)

// FetchError reports a grid task that failed after all attempts.
type FetchError struct {
	Task     GridTask
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %d attempts: %v", e.Task, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error { return []error{ErrFetchExhausted, e.Err} }

// GroupError reports a failed mosaic group.
type GroupError struct {
	Event    Event
	Duration Duration
	Variant  Variant
	Err      error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("mosaic %s: %v", MosaicName(e.Event, e.Duration, e.Variant), e.Err)
}

func (e *GroupError) Unwrap() error { return e.Err }

// DurationError reports a failed confidence-bound computation for one duration.
type DurationError struct {
	Duration Duration
	Err      error
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("confidence bounds %s: %v", e.Duration, e.Err)
}

func (e *DurationError) Unwrap() error { return e.Err }
