// Package actuals implements the time-entry rules engine: working-day
// counting, capacity bounds, overlap detection, leave-hour derivation,
// activity aggregation and the validate → fan-out submission flow.
//
// Every calculator and validator is a pure function over in-memory values.
// The only concurrency is the multi-project fan-out in Orchestrator.Submit.
package actuals

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// CATEGORY - Closed set of entry categories
// =============================================================================

// Category classifies an actual entry. The set is closed: ParseCategory
// rejects anything else, and every rule branches exhaustively on it.
type Category string

const (
	CategoryProject     Category = "Project"
	CategoryOperations  Category = "Operations"
	CategoryAdminOthers Category = "Admin/Others"
)

// Categories lists every category in display order.
func Categories() []Category {
	return []Category{CategoryProject, CategoryOperations, CategoryAdminOthers}
}

// ParseCategory maps a wire string onto the closed set.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case CategoryProject, CategoryOperations, CategoryAdminOthers:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", generic.ErrUnknownCategory, s)
}

func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

// HoursMode says where an entry's hours come from.
type HoursMode int

const (
	// HoursEntered: the user types the hours (or the oracle suggests them).
	HoursEntered HoursMode = iota
	// HoursFromLeave: hours are derived from working days and the leave type.
	HoursFromLeave
)

type categoryRules struct {
	hours          HoursMode
	overlapChecked bool
}

func (c Category) rules() categoryRules {
	switch c {
	case CategoryProject:
		return categoryRules{hours: HoursEntered, overlapChecked: true}
	case CategoryOperations:
		return categoryRules{hours: HoursEntered, overlapChecked: true}
	case CategoryAdminOthers:
		// Leave entries are not overlap checked. Kept as observed; see DESIGN.md.
		return categoryRules{hours: HoursFromLeave, overlapChecked: false}
	default:
		panic(fmt.Sprintf("actuals: unhandled category %q", string(c)))
	}
}

// HoursMode reports whether hours are user-entered or derived.
func (c Category) HoursMode() HoursMode { return c.rules().hours }

// HoursEditable reports whether the hours field accepts user input.
func (c Category) HoursEditable() bool { return c.rules().hours == HoursEntered }

// OverlapChecked reports whether entries of this category must not overlap
// other entries for the same owner and project.
func (c Category) OverlapChecked() bool { return c.rules().overlapChecked }

// =============================================================================
// ACTUAL ENTRY - Persisted record of logged hours
// =============================================================================

// ActualEntry is a persisted record of hours logged against a project,
// operation or leave type for an inclusive date range.
//
// For CategoryAdminOthers, Project holds the leave type key (e.g. "Annual Leave").
type ActualEntry struct {
	ID        generic.EntryID
	OwnerID   generic.OwnerID
	Category  Category
	Project   string
	Start     generic.TimePoint
	End       generic.TimePoint
	Hours     generic.Hours
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e ActualEntry) Period() generic.Period {
	return generic.Period{Start: e.Start, End: e.End}
}

// ManDays is Hours / 8.
func (e ActualEntry) ManDays() decimal.Decimal { return generic.ManDays(e.Hours) }

// =============================================================================
// ALLOCATION - Hours per project
// =============================================================================

// Allocation maps project name to hours.
type Allocation map[string]generic.Hours

// Projects returns the project names in sorted order.
func (a Allocation) Projects() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Total sums the hours of every project.
func (a Allocation) Total() generic.Hours {
	total := decimal.Zero
	for _, h := range a {
		total = total.Add(h)
	}
	return total
}

// Only returns a copy restricted to the given projects.
func (a Allocation) Only(projects []string) Allocation {
	out := make(Allocation, len(projects))
	for _, p := range projects {
		if h, ok := a[p]; ok {
			out[p] = h
		}
	}
	return out
}

// =============================================================================
// SUBMISSION REQUEST - Immutable candidate payload
// =============================================================================

// Mode decides how many create requests a submission issues.
type Mode int

const (
	ModeSingle Mode = iota
	ModeMulti
)

func (m Mode) String() string {
	if m == ModeMulti {
		return "multi"
	}
	return "single"
}

// SubmissionRequest is the immutable candidate handed to the orchestrator.
// A nil Allocation means single-project mode (Project/Hours); a non-nil one
// means one create per allocated project, all sharing Start and End.
type SubmissionRequest struct {
	OwnerID    generic.OwnerID
	Category   Category
	Start      generic.TimePoint
	End        generic.TimePoint
	Project    string
	Hours      generic.Hours
	Allocation Allocation
}

func (r SubmissionRequest) Mode() Mode {
	if r.Allocation != nil {
		return ModeMulti
	}
	return ModeSingle
}

func (r SubmissionRequest) Period() generic.Period {
	return generic.Period{Start: r.Start, End: r.End}
}

// Lines expands the request into one CreateRequest per entry to persist,
// ordered by project name.
func (r SubmissionRequest) Lines() []CreateRequest {
	if r.Mode() == ModeSingle {
		return []CreateRequest{r.line(r.Project, r.Hours)}
	}
	lines := make([]CreateRequest, 0, len(r.Allocation))
	for _, project := range r.Allocation.Projects() {
		lines = append(lines, r.line(project, r.Allocation[project]))
	}
	return lines
}

func (r SubmissionRequest) line(project string, hours generic.Hours) CreateRequest {
	return CreateRequest{
		OwnerID:  r.OwnerID,
		Category: r.Category,
		Project:  project,
		Start:    r.Start,
		End:      r.End,
		Hours:    hours,
	}
}

// =============================================================================
// PERSISTENCE CONTRACT
// =============================================================================

// CreateRequest is the body of one persistence create call.
type CreateRequest struct {
	OwnerID  generic.OwnerID
	Category Category
	Project  string
	Start    generic.TimePoint
	End      generic.TimePoint
	Hours    generic.Hours
}

// Candidate is the entry the request would produce, used for overlap checks.
func (c CreateRequest) Candidate() ActualEntry {
	return ActualEntry{
		OwnerID:  c.OwnerID,
		Category: c.Category,
		Project:  c.Project,
		Start:    c.Start,
		End:      c.End,
		Hours:    c.Hours,
	}
}

// EntryCreator persists one entry. A server-detected duplicate is reported
// as a *PersistenceError with Kind PersistenceConflict (HTTP 409) or as an
// *OverlapError.
type EntryCreator interface {
	CreateEntry(ctx context.Context, req CreateRequest) (*ActualEntry, error)
}

// SnapshotSource lists an owner's existing entries for overlap checking.
type SnapshotSource interface {
	ListEntries(ctx context.Context, ownerID generic.OwnerID) ([]ActualEntry, error)
}
