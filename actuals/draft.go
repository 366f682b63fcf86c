package actuals

import (
	"github.com/shopspring/decimal"
	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// DRAFT - Form state as an immutable value
// =============================================================================

// Draft is the logging form's state. Every With* method returns a new
// Draft with derived fields recomputed; the receiver is never modified.
type Draft struct {
	Category Category
	// Project is the project/operation name, or the leave type key for
	// CategoryAdminOthers.
	Project    string
	Start      generic.TimePoint
	End        generic.TimePoint
	Hours      generic.Hours
	Allocation *AllocationDraft
}

// NewDraft returns an empty draft for a category.
func NewDraft(c Category) Draft {
	return RecomputeDerived(Draft{Category: c})
}

func (d Draft) WithCategory(c Category) Draft {
	d.Category = c
	return RecomputeDerived(d)
}

func (d Draft) WithProject(project string) Draft {
	d.Project = project
	return RecomputeDerived(d)
}

// WithLeaveType is WithProject under the leave category's vocabulary.
func (d Draft) WithLeaveType(leaveType string) Draft {
	return d.WithProject(leaveType)
}

func (d Draft) WithStart(start generic.TimePoint) Draft {
	d.Start = start
	return RecomputeDerived(d)
}

func (d Draft) WithEnd(end generic.TimePoint) Draft {
	d.End = end
	return RecomputeDerived(d)
}

// WithHours sets entered hours. Derived categories discard the value.
func (d Draft) WithHours(hours generic.Hours) Draft {
	d.Hours = hours
	return RecomputeDerived(d)
}

// WithAllocation attaches an oracle allocation.
func (d Draft) WithAllocation(a AllocationDraft) Draft {
	d.Allocation = &a
	return RecomputeDerived(d)
}

// Reset clears the form but keeps the selected category.
func (d Draft) Reset() Draft {
	return NewDraft(d.Category)
}

// RecomputeDerived recalculates every derived field from the inputs.
// Called after each mutation; deterministic and side-effect free.
func RecomputeDerived(d Draft) Draft {
	if !d.Category.Valid() {
		return d
	}
	switch d.Category.HoursMode() {
	case HoursEntered:
		// hours are whatever was entered
	case HoursFromLeave:
		d.Allocation = nil
		if d.Start.IsZero() || d.End.IsZero() {
			d.Hours = decimal.Zero
		} else {
			d.Hours = ComputeLeaveHours(d.Start, d.End, d.Project)
		}
	}
	return d
}

// Request freezes the draft into a SubmissionRequest. An unpinned
// allocation produces a multi-project request; a pinned one a single
// entry carrying the oracle's total.
func (d Draft) Request(ownerID generic.OwnerID) SubmissionRequest {
	req := SubmissionRequest{
		OwnerID:  ownerID,
		Category: d.Category,
		Start:    d.Start,
		End:      d.End,
		Project:  d.Project,
		Hours:    d.Hours,
	}
	if d.Allocation == nil {
		return req
	}
	switch d.Allocation.Mode() {
	case ModeSingle:
		req.Project = d.Allocation.PinnedProject
		req.Hours = d.Allocation.Total()
	case ModeMulti:
		req.Project = ""
		req.Hours = decimal.Zero
		req.Allocation = d.Allocation.Allocation
	}
	return req
}
