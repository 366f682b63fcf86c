/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model (decimal hours, TimePoint dates) from the wire
  contract (float hours, YYYY-MM-DD strings).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

WIRE FORMAT:
  The create body follows the persistence contract:
    { ownerId, category, project, startDate, endDate, hours }
  Dates carry no time component. The same types are decoded by the
  backend client (backend/client.go).

VALIDATION:
  Struct tags are checked with go-playground/validator before any domain
  logic runs (see validation.go). Domain rules (future dates, hour
  ceilings, overlap) stay in the actuals package.

SEE ALSO:
  - handlers.go: Uses these types
  - backend/client.go: Client side of the same contract
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// ACTUAL ENTRIES
// =============================================================================

// CreateEntryRequest is the body of POST /api/actuals.
type CreateEntryRequest struct {
	OwnerID   string  `json:"ownerId" validate:"required"`
	Category  string  `json:"category" validate:"required,category"`
	Project   string  `json:"project" validate:"required"`
	StartDate string  `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate   string  `json:"endDate" validate:"required,datetime=2006-01-02"`
	Hours     float64 `json:"hours"`
}

// EntryDTO represents a persisted actual entry in API responses.
type EntryDTO struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Category  string    `json:"category"`
	Project   string    `json:"project"`
	StartDate string    `json:"startDate"`
	EndDate   string    `json:"endDate"`
	Hours     float64   `json:"hours"`
	ManDays   float64   `json:"manDays"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateHoursRequest is the body of PATCH /api/actuals/{id}/hours.
type UpdateHoursRequest struct {
	Hours float64 `json:"hours"`
}

// =============================================================================
// SUBMISSIONS
// =============================================================================

// SubmitRequest is the body of POST /api/submissions and
// POST /api/actuals/validate. A non-empty Allocation selects multi-project
// mode; otherwise Project and Hours describe a single entry. For
// Admin/Others, Project carries the leave type and Hours is ignored.
type SubmitRequest struct {
	OwnerID    string             `json:"ownerId" validate:"required"`
	Category   string             `json:"category" validate:"required,category"`
	Project    string             `json:"project"`
	StartDate  string             `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string             `json:"endDate" validate:"required,datetime=2006-01-02"`
	Hours      float64            `json:"hours"`
	Allocation map[string]float64 `json:"allocation,omitempty" validate:"omitempty,dive,keys,required,endkeys"`
}

// ValidationDTO is the success response of POST /api/actuals/validate.
type ValidationDTO struct {
	OK    bool          `json:"ok"`
	Mode  string        `json:"mode"`
	Lines []LinePreview `json:"lines"`
	Total float64       `json:"totalHours"`
}

// LinePreview is one entry a submission would create.
type LinePreview struct {
	Project string  `json:"project"`
	Hours   float64 `json:"hours"`
}

// SubmissionDTO reports the outcome of an orchestrated submission.
type SubmissionDTO struct {
	State     string            `json:"state"`
	Mode      string            `json:"mode"`
	Trace     []string          `json:"trace"`
	Committed []EntryDTO        `json:"committed"`
	Failed    map[string]string `json:"failed,omitempty"`
	Retryable []string          `json:"retryable,omitempty"`
	Pending   []string          `json:"pending,omitempty"`
}

// =============================================================================
// ALLOCATION PREVIEW
// =============================================================================

// PreviewRequest is the body of POST /api/allocations/preview.
type PreviewRequest struct {
	ProjectNames  []string `json:"projectNames" validate:"required,min=1,dive,required"`
	StartDate     string   `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate       string   `json:"endDate" validate:"required,datetime=2006-01-02"`
	Category      string   `json:"category" validate:"required,category"`
	PinnedProject string   `json:"pinnedProject"`
}

// AllocationDTO is the allocation the caller would submit.
type AllocationDTO struct {
	Mode          string                    `json:"mode"`
	PinnedProject string                    `json:"pinnedProject,omitempty"`
	Allocation    map[string]float64        `json:"allocation"`
	TotalHours    float64                   `json:"totalHours"`
	Activities    []actuals.MatchedActivity `json:"activities"`
	Summary       string                    `json:"summary"`
}

// =============================================================================
// CALENDAR
// =============================================================================

// HolidayDTO represents a holiday in API responses.
type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// CreateHolidayRequest is the body of POST /api/holidays. ID is optional;
// the server generates one when it is empty.
type CreateHolidayRequest struct {
	ID        string `json:"id,omitempty"`
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required"`
	Recurring bool   `json:"recurring"`
}

// WorkdaysDTO is the response of GET /api/workdays.
type WorkdaysDTO struct {
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	WorkingDays     int    `json:"workingDays"`
	HolidaysApplied bool   `json:"holidaysApplied"`
}

// LeaveHoursDTO is the response of GET /api/leave-hours.
type LeaveHoursDTO struct {
	StartDate   string  `json:"startDate"`
	EndDate     string  `json:"endDate"`
	LeaveType   string  `json:"leaveType"`
	WorkingDays int     `json:"workingDays"`
	Hours       float64 `json:"hours"`
	ManDays     float64 `json:"manDays"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error              string `json:"error"`
	Details            any    `json:"details,omitempty"`
	ConflictingEntryID string `json:"conflicting_entry_id,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

// ToEntryDTO converts a domain entry to its wire form.
func ToEntryDTO(e actuals.ActualEntry) EntryDTO {
	return EntryDTO{
		ID:        string(e.ID),
		OwnerID:   string(e.OwnerID),
		Category:  string(e.Category),
		Project:   e.Project,
		StartDate: e.Start.String(),
		EndDate:   e.End.String(),
		Hours:     e.Hours.InexactFloat64(),
		ManDays:   e.ManDays().InexactFloat64(),
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
}

// ToEntry converts a wire entry back into the domain type.
func (d EntryDTO) ToEntry() (actuals.ActualEntry, error) {
	start, err := generic.ParseDate(d.StartDate)
	if err != nil {
		return actuals.ActualEntry{}, err
	}
	end, err := generic.ParseDate(d.EndDate)
	if err != nil {
		return actuals.ActualEntry{}, err
	}
	return actuals.ActualEntry{
		ID:        generic.EntryID(d.ID),
		OwnerID:   generic.OwnerID(d.OwnerID),
		Category:  actuals.Category(d.Category),
		Project:   d.Project,
		Start:     start,
		End:       end,
		Hours:     decimal.NewFromFloat(d.Hours),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// NewCreateEntryRequest builds the wire body for one create call.
func NewCreateEntryRequest(req actuals.CreateRequest) CreateEntryRequest {
	return CreateEntryRequest{
		OwnerID:   string(req.OwnerID),
		Category:  string(req.Category),
		Project:   req.Project,
		StartDate: req.Start.String(),
		EndDate:   req.End.String(),
		Hours:     req.Hours.InexactFloat64(),
	}
}

// ToCreateRequest parses the wire body into the domain request.
func (r CreateEntryRequest) ToCreateRequest() (actuals.CreateRequest, error) {
	category, err := actuals.ParseCategory(r.Category)
	if err != nil {
		return actuals.CreateRequest{}, err
	}
	period, err := parsePeriod(r.StartDate, r.EndDate)
	if err != nil {
		return actuals.CreateRequest{}, err
	}
	return actuals.CreateRequest{
		OwnerID:  generic.OwnerID(r.OwnerID),
		Category: category,
		Project:  r.Project,
		Start:    period.Start,
		End:      period.End,
		Hours:    decimal.NewFromFloat(r.Hours),
	}, nil
}

// ToSubmissionRequest parses the wire body into the domain request.
func (r SubmitRequest) ToSubmissionRequest() (actuals.SubmissionRequest, error) {
	category, err := actuals.ParseCategory(r.Category)
	if err != nil {
		return actuals.SubmissionRequest{}, err
	}
	period, err := parsePeriod(r.StartDate, r.EndDate)
	if err != nil {
		return actuals.SubmissionRequest{}, err
	}

	req := actuals.SubmissionRequest{
		OwnerID:  generic.OwnerID(r.OwnerID),
		Category: category,
		Start:    period.Start,
		End:      period.End,
		Project:  r.Project,
		Hours:    decimal.NewFromFloat(r.Hours),
	}
	if len(r.Allocation) > 0 {
		req.Allocation = make(actuals.Allocation, len(r.Allocation))
		for project, h := range r.Allocation {
			req.Allocation[project] = decimal.NewFromFloat(h)
		}
	}
	return req, nil
}

// ToAllocationDTO converts an allocation draft to its wire form.
func ToAllocationDTO(d actuals.AllocationDraft) AllocationDTO {
	alloc := make(map[string]float64, len(d.Allocation))
	for project, h := range d.Allocation {
		alloc[project] = h.InexactFloat64()
	}
	activities := d.Activities
	if activities == nil {
		activities = []actuals.MatchedActivity{}
	}
	return AllocationDTO{
		Mode:          d.Mode().String(),
		PinnedProject: d.PinnedProject,
		Allocation:    alloc,
		TotalHours:    d.Total().InexactFloat64(),
		Activities:    activities,
		Summary:       d.Summary,
	}
}

// ToSubmissionDTO converts an orchestrator result to its wire form.
func ToSubmissionDTO(r *actuals.SubmissionResult) SubmissionDTO {
	dto := SubmissionDTO{
		State:     string(r.State),
		Mode:      r.Request.Mode().String(),
		Trace:     make([]string, 0, len(r.Trace)),
		Committed: make([]EntryDTO, 0, len(r.Committed)),
	}
	for _, s := range r.Trace {
		dto.Trace = append(dto.Trace, string(s))
	}
	for _, e := range r.Committed {
		dto.Committed = append(dto.Committed, ToEntryDTO(e))
	}
	for _, project := range r.FailedProjects() {
		if dto.Failed == nil {
			dto.Failed = make(map[string]string)
		}
		err := r.Failures[project]
		dto.Failed[project] = err.Error()
		if actuals.IsRetryable(err) {
			dto.Retryable = append(dto.Retryable, project)
		}
	}
	dto.Pending = r.Pending
	return dto
}

// ToHolidayDTO converts a holiday to its wire form.
func ToHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

func parsePeriod(start, end string) (generic.Period, error) {
	s, err := generic.ParseDate(start)
	if err != nil {
		return generic.Period{}, err
	}
	e, err := generic.ParseDate(end)
	if err != nil {
		return generic.Period{}, err
	}
	return generic.Period{Start: s, End: e}, nil
}
