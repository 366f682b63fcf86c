package actuals

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// MATCHING ORACLE CONTRACT
// =============================================================================

// UnassignedProject is the bucket for matched activities without a project.
const UnassignedProject = "Unassigned"

// MatchedActivity is one candidate activity suggested by the matching oracle.
type MatchedActivity struct {
	ActivityName string          `json:"activityName"`
	ProjectName  string          `json:"projectName"`
	Hours        decimal.Decimal `json:"hours"`
	Confidence   float64         `json:"confidence"`
	Reason       string          `json:"reason"`
}

// MatchRequest asks the oracle for activities in a date range.
type MatchRequest struct {
	ProjectNames []string          `json:"projectNames"`
	StartDate    generic.TimePoint `json:"startDate"`
	EndDate      generic.TimePoint `json:"endDate"`
	Category     Category          `json:"category"`
}

// MatchResult is the oracle's answer.
type MatchResult struct {
	MatchedActivities []MatchedActivity `json:"matchedActivities"`
	TotalMatchedHours decimal.Decimal   `json:"totalMatchedHours"`
	Summary           string            `json:"summary"`
}

// Matcher is the external activity-matching oracle.
type Matcher interface {
	Match(ctx context.Context, req MatchRequest) (*MatchResult, error)
}

// =============================================================================
// AGGREGATION
// =============================================================================

// Aggregate groups activities by project name and sums their hours.
// Activities with no project land in UnassignedProject.
func Aggregate(activities []MatchedActivity) Allocation {
	out := make(Allocation)
	for _, a := range activities {
		project := a.ProjectName
		if project == "" {
			project = UnassignedProject
		}
		out[project] = out[project].Add(a.Hours)
	}
	return out
}

// AllocationDraft is the shaped oracle answer, alive between a match
// response and a submit or reset.
type AllocationDraft struct {
	// PinnedProject is set when the caller fixed a single target project.
	// In that case Allocation holds exactly that project with the oracle's
	// TotalMatchedHours and the submission goes out as one entry.
	PinnedProject string
	Allocation    Allocation
	Activities    []MatchedActivity
	Summary       string
}

// NewAllocationDraft shapes a match result. A non-empty pinnedProject
// bypasses aggregation entirely.
func NewAllocationDraft(result *MatchResult, pinnedProject string) AllocationDraft {
	draft := AllocationDraft{PinnedProject: pinnedProject}
	if result == nil {
		draft.Allocation = Allocation{}
		return draft
	}
	draft.Activities = result.MatchedActivities
	draft.Summary = result.Summary
	if pinnedProject != "" {
		draft.Allocation = Allocation{pinnedProject: result.TotalMatchedHours}
		return draft
	}
	draft.Allocation = Aggregate(result.MatchedActivities)
	return draft
}

func (d AllocationDraft) Pinned() bool { return d.PinnedProject != "" }

// Mode is single when pinned, multi otherwise, regardless of how many
// projects the oracle returned.
func (d AllocationDraft) Mode() Mode {
	if d.Pinned() {
		return ModeSingle
	}
	return ModeMulti
}

// Total is the hours the draft would submit.
func (d AllocationDraft) Total() generic.Hours { return d.Allocation.Total() }
