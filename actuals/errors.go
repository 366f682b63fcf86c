package actuals

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// VALIDATION ERRORS - Raised before any network call, never retried
// =============================================================================

// FutureDateError is returned when a start or end date is after today.
type FutureDateError struct {
	Field string // "start" or "end"; empty when checked standalone
	Date  generic.TimePoint
	Today generic.TimePoint
}

func (e *FutureDateError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("date %s is in the future (today is %s)", e.Date, e.Today)
	}
	return fmt.Sprintf("%s date %s is in the future (today is %s)", e.Field, e.Date, e.Today)
}

func (e *FutureDateError) Unwrap() error { return generic.ErrFutureDate }

// HoursExceededError is returned when hours exceed calendar days * 24.
type HoursExceededError struct {
	Project    string
	MaxAllowed generic.Hours
	Entered    generic.Hours
}

func (e *HoursExceededError) Error() string {
	msg := fmt.Sprintf("hours exceeded: entered %s, max allowed %s", e.Entered, e.MaxAllowed)
	if e.Project != "" {
		msg += " for " + e.Project
	}
	return msg
}

func (e *HoursExceededError) Unwrap() error { return generic.ErrHoursExceeded }

// InvalidHoursError is returned for zero or negative hours.
type InvalidHoursError struct {
	Project string
	Entered generic.Hours
}

func (e *InvalidHoursError) Error() string {
	msg := fmt.Sprintf("hours must be positive, got %s", e.Entered)
	if e.Project != "" {
		msg += " for " + e.Project
	}
	return msg
}

func (e *InvalidHoursError) Unwrap() error { return generic.ErrInvalidHours }

// ConflictSource records which layer detected an overlap.
type ConflictSource string

const (
	ConflictLocal   ConflictSource = "local"
	ConflictBackend ConflictSource = "backend"
)

// OverlapError is returned when an entry collides with an existing entry
// for the same owner and project. The backend's verdict wins: a 409 from
// persistence becomes an OverlapError even when the local check passed.
type OverlapError struct {
	ConflictingEntryID generic.EntryID // empty when the backend did not say
	Project            string
	Period             generic.Period
	Source             ConflictSource
	Message            string
}

func (e *OverlapError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "entry for %q %s overlaps an existing entry", e.Project, e.Period)
	if e.ConflictingEntryID != "" {
		fmt.Fprintf(&b, " (%s)", e.ConflictingEntryID)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	return b.String()
}

func (e *OverlapError) Unwrap() error { return generic.ErrOverlap }

// =============================================================================
// PERSISTENCE ERRORS - Surfaced verbatim, no automatic retry
// =============================================================================

type PersistenceKind string

const (
	PersistenceTransient PersistenceKind = "transient"
	PersistenceConflict  PersistenceKind = "conflict"
)

// PersistenceError is a failure reported by the persistence service.
type PersistenceError struct {
	Kind               PersistenceKind
	StatusCode         int // HTTP status when known
	Message            string
	ConflictingEntryID generic.EntryID
	Err                error
}

func (e *PersistenceError) Error() string {
	msg := fmt.Sprintf("persistence %s failure", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PersistenceError) Unwrap() []error {
	if e.Err == nil {
		return []error{generic.ErrPersistence}
	}
	return []error{generic.ErrPersistence, e.Err}
}

// IsRetryable reports whether a manual resubmission might succeed. The
// engine never retries on its own.
func IsRetryable(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Kind == PersistenceTransient
}

// asOverlap maps a backend conflict onto the overlap taxonomy.
func asOverlap(err error, line CreateRequest) error {
	var oe *OverlapError
	if errors.As(err, &oe) {
		return oe
	}
	var pe *PersistenceError
	if errors.As(err, &pe) && pe.Kind == PersistenceConflict {
		return &OverlapError{
			ConflictingEntryID: pe.ConflictingEntryID,
			Project:            line.Project,
			Period:             generic.Period{Start: line.Start, End: line.End},
			Source:             ConflictBackend,
			Message:            pe.Message,
		}
	}
	return err
}

// =============================================================================
// SUBMISSION ERROR - Partial fan-out failure
// =============================================================================

// SubmissionError is returned when at least one create request failed.
// Projects listed in Committed were persisted and are not rolled back;
// only Failed needs resubmitting. Pending names creates that had not
// settled when the failure was reported.
type SubmissionError struct {
	Failed    map[string]error
	Committed []string
	Pending   []string
}

func (e *SubmissionError) Error() string {
	projects := e.FailedProjects()
	parts := make([]string, 0, len(projects))
	for _, p := range projects {
		parts = append(parts, fmt.Sprintf("%s: %v", p, e.Failed[p]))
	}
	msg := fmt.Sprintf("submission failed for %d project(s): %s", len(projects), strings.Join(parts, "; "))
	if len(e.Committed) > 0 {
		msg += fmt.Sprintf(" (already committed: %s)", strings.Join(e.Committed, ", "))
	}
	if len(e.Pending) > 0 {
		msg += fmt.Sprintf(" (still in flight: %s)", strings.Join(e.Pending, ", "))
	}
	return msg
}

func (e *SubmissionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, p := range e.FailedProjects() {
		errs = append(errs, e.Failed[p])
	}
	return errs
}

// FailedProjects returns the failed project names in sorted order.
func (e *SubmissionError) FailedProjects() []string {
	names := make([]string, 0, len(e.Failed))
	for p := range e.Failed {
		names = append(names, p)
	}
	sort.Strings(names)
	return names
}
