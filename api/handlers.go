/*
handlers.go - HTTP API handlers for the actuals engine

PURPOSE:
  Exposes the validation engine, the submission orchestrator and the
  persistence service via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to domain logic.

ENDPOINTS:
  Actual entries (persistence contract):
    POST   /api/actuals                 Create one entry (201 / 409 on overlap)
    GET    /api/actuals?owner_id=       Snapshot of an owner's entries
    GET    /api/actuals/{id}            Get one entry
    PATCH  /api/actuals/{id}/hours      Edit hours (ceiling re-checked)

  Engine:
    POST   /api/actuals/validate        Run validation only
    POST   /api/submissions             Validate against a fresh snapshot, then fan out
    POST   /api/allocations/preview     Ask the matching oracle, shape the allocation

  Calendar:
    GET    /api/holidays?year=          List holidays of a year
    POST   /api/holidays                Create holiday
    POST   /api/holidays/defaults       Add common recurring holidays
    DELETE /api/holidays/{id}           Delete holiday
    GET    /api/workdays                Working days in a range
    GET    /api/leave-hours             Derived leave hours for a range

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: persistence (SQLite in production, memory in tests)
  - Orchestrator: validation order and fan-out, creating through Store
  - Matcher: optional activity-matching oracle

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed body, failed struct validation, unknown category
  - 404: Entry not found
  - 409: Overlap (local or backend), body carries conflicting_entry_id
  - 422: Future date, hours above ceiling, non-positive hours
  - 502: Persistence or oracle failure
  - 503: Oracle not configured
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence surface the API needs.
type Store interface {
	actuals.EntryCreator
	actuals.SnapshotSource
	GetEntry(ctx context.Context, id generic.EntryID) (*actuals.ActualEntry, error)
	UpdateHours(ctx context.Context, id generic.EntryID, hours generic.Hours) (*actuals.ActualEntry, error)
	SaveHoliday(ctx context.Context, h generic.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	HolidaysForYear(ctx context.Context, year int) ([]generic.Holiday, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        Store
	Orchestrator *actuals.Orchestrator
	Matcher      actuals.Matcher

	log      *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a handler whose orchestrator persists through store.
// matcher may be nil, in which case allocation previews return 503.
func NewHandler(store Store, matcher actuals.Matcher, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Store:        store,
		Orchestrator: actuals.NewOrchestrator(store, log.Named("orchestrator")),
		Matcher:      matcher,
		log:          log,
		validate:     NewValidator(),
	}
}

// Healthz reports whether the store is reachable.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// ACTUAL ENTRY HANDLERS
// =============================================================================

// CreateEntry persists one entry.
// POST /api/actuals
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var body CreateEntryRequest
	if !h.decode(w, r, &body) {
		return
	}

	req, err := body.ToCreateRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	entry, err := h.Store.CreateEntry(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.log.Info("entry created",
		zap.String("id", string(entry.ID)),
		zap.String("owner_id", string(entry.OwnerID)),
		zap.String("project", entry.Project))
	writeJSON(w, http.StatusCreated, ToEntryDTO(*entry))
}

// ListEntries returns an owner's snapshot.
// GET /api/actuals?owner_id=
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required", nil)
		return
	}

	entries, err := h.Store.ListEntries(r.Context(), generic.OwnerID(ownerID))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, ToEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": dtos})
}

// GetEntry returns one entry.
// GET /api/actuals/{id}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := h.Store.GetEntry(r.Context(), generic.EntryID(id))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, ToEntryDTO(*entry))
}

// UpdateHours edits the hours of an entry.
// PATCH /api/actuals/{id}/hours
func (h *Handler) UpdateHours(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body UpdateHoursRequest
	if !h.decode(w, r, &body) {
		return
	}

	entry, err := h.Store.UpdateHours(r.Context(), generic.EntryID(id), decimal.NewFromFloat(body.Hours))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ToEntryDTO(*entry))
}

// =============================================================================
// ENGINE HANDLERS
// =============================================================================

// ValidateSubmission runs the validation order against a fresh snapshot
// without persisting anything.
// POST /api/actuals/validate
func (h *Handler) ValidateSubmission(w http.ResponseWriter, r *http.Request) {
	req, snapshot, ok := h.submissionInput(w, r)
	if !ok {
		return
	}

	if err := h.Orchestrator.Validate(req, snapshot); err != nil {
		h.writeDomainError(w, err)
		return
	}

	req = h.Orchestrator.Normalize(req)
	dto := ValidationDTO{OK: true, Mode: req.Mode().String(), Lines: []LinePreview{}}
	total := decimal.Zero
	for _, line := range req.Lines() {
		dto.Lines = append(dto.Lines, LinePreview{Project: line.Project, Hours: line.Hours.InexactFloat64()})
		total = total.Add(line.Hours)
	}
	dto.Total = total.InexactFloat64()
	writeJSON(w, http.StatusOK, dto)
}

// Submit validates and persists a submission.
// POST /api/submissions
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	req, snapshot, ok := h.submissionInput(w, r)
	if !ok {
		return
	}

	result, err := h.Orchestrator.Submit(r.Context(), req, snapshot)
	if result == nil {
		writeError(w, http.StatusInternalServerError, "Submission failed", err)
		return
	}

	switch result.State {
	case actuals.StateRejected:
		h.writeDomainError(w, err)
	case actuals.StateFailed:
		writeJSON(w, failedStatus(result), ToSubmissionDTO(result))
		if len(result.Pending) > 0 {
			go h.logSettlement(req.OwnerID, result)
		}
	default:
		writeJSON(w, http.StatusCreated, ToSubmissionDTO(result))
	}
}

// PreviewAllocation asks the oracle for matched activities and shapes them
// into the allocation the caller would submit.
// POST /api/allocations/preview
func (h *Handler) PreviewAllocation(w http.ResponseWriter, r *http.Request) {
	if h.Matcher == nil {
		writeError(w, http.StatusServiceUnavailable, "Matching oracle not configured", nil)
		return
	}

	var body PreviewRequest
	if !h.decode(w, r, &body) {
		return
	}
	period, err := parsePeriod(body.StartDate, body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	result, err := h.Matcher.Match(r.Context(), actuals.MatchRequest{
		ProjectNames: body.ProjectNames,
		StartDate:    period.Start,
		EndDate:      period.End,
		Category:     actuals.Category(body.Category),
	})
	if err != nil {
		h.log.Warn("oracle match failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "Matching oracle failed", err)
		return
	}

	writeJSON(w, http.StatusOK, ToAllocationDTO(actuals.NewAllocationDraft(result, body.PinnedProject)))
}

func (h *Handler) submissionInput(w http.ResponseWriter, r *http.Request) (actuals.SubmissionRequest, []actuals.ActualEntry, bool) {
	var body SubmitRequest
	if !h.decode(w, r, &body) {
		return actuals.SubmissionRequest{}, nil, false
	}

	req, err := body.ToSubmissionRequest()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return actuals.SubmissionRequest{}, nil, false
	}

	snapshot, err := h.Store.ListEntries(r.Context(), req.OwnerID)
	if err != nil {
		h.writeDomainError(w, err)
		return actuals.SubmissionRequest{}, nil, false
	}
	return req, snapshot, true
}

// failedStatus is 409 when every failure is an overlap, 502 otherwise.
// logSettlement records the outcome of creates that were still in flight
// when a failed submission was answered.
func (h *Handler) logSettlement(ownerID generic.OwnerID, result *actuals.SubmissionResult) {
	settled := result.Wait()
	projects := make([]string, 0, len(settled.Committed))
	for _, e := range settled.Committed {
		projects = append(projects, e.Project)
	}
	h.log.Info("submission settled",
		zap.String("owner_id", string(ownerID)),
		zap.Strings("committed", projects),
		zap.Strings("failed", settled.FailedProjects()))
}

func failedStatus(result *actuals.SubmissionResult) int {
	for _, err := range result.Failures {
		if !errors.Is(err, generic.ErrOverlap) {
			return http.StatusBadGateway
		}
	}
	return http.StatusConflict
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// ListHolidays returns the holidays of a year.
// GET /api/holidays?year=
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := generic.Today().Year()
	if s := r.URL.Query().Get("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = y
	}

	holidays, err := h.Store.HolidaysForYear(r.Context(), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
		return
	}

	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, ToHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "holidays": dtos})
}

// CreateHoliday creates a new holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var body CreateHolidayRequest
	if !h.decode(w, r, &body) {
		return
	}

	date, err := generic.ParseDate(body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	holiday := generic.Holiday{
		ID:        body.ID,
		Date:      date,
		Name:      body.Name,
		Recurring: body.Recurring,
	}
	if holiday.ID == "" {
		holiday.ID = uuid.NewString()
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
		return
	}

	writeJSON(w, http.StatusCreated, ToHolidayDTO(holiday))
}

// AddDefaultHolidays adds common recurring holidays.
// POST /api/holidays/defaults
func (h *Handler) AddDefaultHolidays(w http.ResponseWriter, r *http.Request) {
	defaults := []struct {
		month time.Month
		day   int
		name  string
	}{
		{time.January, 1, "New Year's Day"},
		{time.May, 1, "Labour Day"},
		{time.December, 25, "Christmas Day"},
		{time.December, 26, "Boxing Day"},
	}

	year := generic.Today().Year()
	for _, d := range defaults {
		holiday := generic.Holiday{
			ID:        fmt.Sprintf("holiday-%02d%02d", d.month, d.day),
			Date:      generic.NewTimePoint(year, d.month, d.day),
			Name:      d.name,
			Recurring: true,
		}
		if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to create holiday", err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "created",
		"count":  len(defaults),
	})
}

// DeleteHoliday deletes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeleteHoliday(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete holiday", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Workdays counts working days in an inclusive range. With holidays=true
// the stored holiday calendar is applied as well.
// GET /api/workdays?start=&end=&holidays=
func (h *Handler) Workdays(w http.ResponseWriter, r *http.Request) {
	period, ok := rangeParams(w, r)
	if !ok {
		return
	}

	withHolidays := false
	if s := r.URL.Query().Get("holidays"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid holidays flag", err)
			return
		}
		withHolidays = b
	}

	var calendar generic.HolidayCalendar
	if withHolidays {
		set, err := h.holidaySet(r.Context(), period)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get holidays", err)
			return
		}
		calendar = set
	}

	writeJSON(w, http.StatusOK, WorkdaysDTO{
		StartDate:       period.Start.String(),
		EndDate:         period.End.String(),
		WorkingDays:     actuals.CountWorkingDays(period.Start, period.End, calendar),
		HolidaysApplied: withHolidays,
	})
}

// LeaveHours derives the hours of a leave entry.
// GET /api/leave-hours?start=&end=&leave_type=
func (h *Handler) LeaveHours(w http.ResponseWriter, r *http.Request) {
	period, ok := rangeParams(w, r)
	if !ok {
		return
	}

	leaveType := r.URL.Query().Get("leave_type")
	if !isLeaveType(leaveType) {
		writeError(w, http.StatusBadRequest, "Unknown leave type", fmt.Errorf("leave_type %q", leaveType))
		return
	}

	hours := actuals.ComputeLeaveHours(period.Start, period.End, leaveType)
	writeJSON(w, http.StatusOK, LeaveHoursDTO{
		StartDate:   period.Start.String(),
		EndDate:     period.End.String(),
		LeaveType:   leaveType,
		WorkingDays: actuals.CountWorkingDays(period.Start, period.End, nil),
		Hours:       hours.InexactFloat64(),
		ManDays:     generic.ManDays(hours).InexactFloat64(),
	})
}

func (h *Handler) holidaySet(ctx context.Context, period generic.Period) (generic.HolidaySet, error) {
	var all []generic.Holiday
	for year := period.Start.Year(); year <= period.End.Year(); year++ {
		holidays, err := h.Store.HolidaysForYear(ctx, year)
		if err != nil {
			return nil, err
		}
		all = append(all, holidays...)
	}
	return generic.HolidaySetFrom(all), nil
}

func rangeParams(w http.ResponseWriter, r *http.Request) (generic.Period, bool) {
	q := r.URL.Query()
	if q.Get("start") == "" || q.Get("end") == "" {
		writeError(w, http.StatusBadRequest, "start and end are required", nil)
		return generic.Period{}, false
	}
	period, err := parsePeriod(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return generic.Period{}, false
	}
	return period, true
}

func isLeaveType(s string) bool {
	for _, lt := range actuals.LeaveTypes() {
		if s == lt {
			return true
		}
	}
	return false
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads the JSON body into dst and runs struct validation. It writes
// the 400 response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.log.Debug("failed to decode json", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.log.Debug("validation failed", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Details: validationDetails(err),
		})
		return false
	}
	return true
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrOverlap):
		return http.StatusConflict
	case remoteClientStatus(err) != 0:
		return remoteClientStatus(err)
	case errors.Is(err, generic.ErrFutureDate),
		errors.Is(err, generic.ErrHoursExceeded),
		errors.Is(err, generic.ErrInvalidHours):
		return http.StatusUnprocessableEntity
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, generic.ErrPersistence):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// remoteClientStatus is the 4xx status a remote persistence service
// answered with, or 0.
func remoteClientStatus(err error) int {
	var pe *actuals.PersistenceError
	if errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 500 {
		return pe.StatusCode
	}
	return 0
}

var statusMessages = map[int]string{
	http.StatusNotFound:            "Entry not found",
	http.StatusConflict:            "Entry overlaps an existing entry",
	http.StatusUnprocessableEntity: "Validation failed",
	http.StatusBadRequest:          "Invalid request",
	http.StatusBadGateway:          "Persistence failure",
	http.StatusInternalServerError: "Internal error",
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg, ok := statusMessages[status]
	if !ok {
		msg = http.StatusText(status)
	}
	resp := ErrorResponse{Error: msg, Details: err.Error()}

	var oe *actuals.OverlapError
	var pe *actuals.PersistenceError
	switch {
	case errors.As(err, &oe):
		resp.ConflictingEntryID = string(oe.ConflictingEntryID)
	case errors.As(err, &pe):
		resp.ConflictingEntryID = string(pe.ConflictingEntryID)
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
