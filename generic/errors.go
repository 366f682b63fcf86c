/*
errors.go - Centralized sentinel errors

PURPOSE:
  Sentinels for errors.Is checks. Structured errors carrying context live
  next to the code that raises them (actuals/errors.go) and Unwrap to one
  of these.

ERROR CATEGORIES:
  1. Validation errors - user input mistakes, never retried
  2. Persistence errors - surfaced verbatim, no automatic retry
  3. Lookup errors - missing entries

USAGE:
  if errors.Is(err, generic.ErrOverlap) {
      // one conflict story regardless of which layer found it
  }
*/
package generic

import (
	"errors"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrFutureDate is returned when a start or end date lies after today.
	ErrFutureDate = errors.New("date is in the future")

	// ErrHoursExceeded is returned when hours exceed calendar days * 24.
	ErrHoursExceeded = errors.New("hours exceed calendar ceiling")

	// ErrInvalidHours is returned for zero or negative hours.
	ErrInvalidHours = errors.New("hours must be positive")

	// ErrOverlap is returned when an entry collides with an existing one
	// for the same owner and project.
	ErrOverlap = errors.New("entry overlaps an existing entry")

	// ErrPersistence is returned when the persistence service fails.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrUnknownCategory is returned for category strings outside the closed set.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrEmptySubmission is returned when a multi-project submission has no projects.
	ErrEmptySubmission = errors.New("submission has no projects")

	// ErrEntryNotFound is returned when a referenced entry doesn't exist.
	ErrEntryNotFound = errors.New("entry not found")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrFutureDate) ||
		errors.Is(err, ErrHoursExceeded) ||
		errors.Is(err, ErrInvalidHours) ||
		errors.Is(err, ErrOverlap) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrEmptySubmission)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrEntryNotFound)
}
