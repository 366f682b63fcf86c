/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Persistence contract (create, 409 on overlap, snapshot, hours edit)
- Validation and orchestrated submission, including partial fan-out failure
- Allocation preview through a stub oracle
- Calendar endpoints (holidays, workdays, leave hours)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/generic"
	"github.com/warp/actuals-engine/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	store   *memory.Memory
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T, matcher actuals.Matcher) *testServer {
	t.Helper()
	store := memory.NewMemory()
	h := NewHandler(store, matcher, zaptest.NewLogger(t))
	h.Orchestrator.Clock = func() generic.TimePoint { return generic.MustParseDate("2025-01-15") }
	return &testServer{store: store, handler: h, router: NewRouter(h, nil)}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func createBody(project, start, end string, hours float64) CreateEntryRequest {
	return CreateEntryRequest{
		OwnerID:   "u-1",
		Category:  string(actuals.CategoryProject),
		Project:   project,
		StartDate: start,
		EndDate:   end,
		Hours:     hours,
	}
}

// failingStore fails creates for the listed projects.
type failingStore struct {
	*memory.Memory
	fail map[string]error
}

func (f *failingStore) CreateEntry(ctx context.Context, req actuals.CreateRequest) (*actuals.ActualEntry, error) {
	if err := f.fail[req.Project]; err != nil {
		return nil, err
	}
	return f.Memory.CreateEntry(ctx, req)
}

type stubMatcher struct {
	result *actuals.MatchResult
	err    error
	got    actuals.MatchRequest
}

func (m *stubMatcher) Match(_ context.Context, req actuals.MatchRequest) (*actuals.MatchResult, error) {
	m.got = req
	return m.result, m.err
}

// =============================================================================
// PERSISTENCE CONTRACT
// =============================================================================

func TestCreateEntry_CreatedThenConflict(t *testing.T) {
	s := newTestServer(t, nil)

	// GIVEN: An entry for Apollo, Jan 6-10
	rec := s.do(t, http.MethodPost, "/api/actuals", createBody("Apollo", "2025-01-06", "2025-01-10", 40))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[EntryDTO](t, rec)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 40.0, created.Hours)
	assert.Equal(t, 5.0, created.ManDays)

	// WHEN: An overlapping entry is created directly
	rec = s.do(t, http.MethodPost, "/api/actuals", createBody("Apollo", "2025-01-10", "2025-01-10", 2))

	// THEN: 409 with the conflicting entry ID
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, created.ID, resp.ConflictingEntryID)
}

func TestCreateEntry_ValidationErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"malformed json", "not-an-object", http.StatusBadRequest},
		{"missing owner", CreateEntryRequest{Category: "Project", Project: "A", StartDate: "2025-01-06", EndDate: "2025-01-06", Hours: 1}, http.StatusBadRequest},
		{"unknown category", CreateEntryRequest{OwnerID: "u-1", Category: "Holiday", Project: "A", StartDate: "2025-01-06", EndDate: "2025-01-06", Hours: 1}, http.StatusBadRequest},
		{"bad date", createBody("A", "06/01/2025", "2025-01-06", 1), http.StatusBadRequest},
		{"above ceiling", createBody("A", "2025-01-06", "2025-01-06", 25), http.StatusUnprocessableEntity},
		{"zero hours", createBody("A", "2025-01-06", "2025-01-06", 0), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/actuals", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestListAndGetEntries(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/api/actuals", createBody("Apollo", "2025-01-06", "2025-01-06", 8))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[EntryDTO](t, rec)

	rec = s.do(t, http.MethodGet, "/api/actuals?owner_id=u-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[map[string][]EntryDTO](t, rec)
	assert.Len(t, list["entries"], 1)

	rec = s.do(t, http.MethodGet, "/api/actuals", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/actuals/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Apollo", decodeBody[EntryDTO](t, rec).Project)

	rec = s.do(t, http.MethodGet, "/api/actuals/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateHours(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(t, http.MethodPost, "/api/actuals", createBody("Apollo", "2025-01-06", "2025-01-06", 8))
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[EntryDTO](t, rec)

	rec = s.do(t, http.MethodPatch, "/api/actuals/"+created.ID+"/hours", UpdateHoursRequest{Hours: 6.5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6.5, decodeBody[EntryDTO](t, rec).Hours)

	rec = s.do(t, http.MethodPatch, "/api/actuals/"+created.ID+"/hours", UpdateHoursRequest{Hours: 30})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPatch, "/api/actuals/missing/hours", UpdateHoursRequest{Hours: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// VALIDATION & SUBMISSION
// =============================================================================

func TestValidateSubmission(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   SubmitRequest
		status int
	}{
		{
			name:   "ok single",
			body:   SubmitRequest{OwnerID: "u-1", Category: "Project", Project: "Apollo", StartDate: "2025-01-06", EndDate: "2025-01-10", Hours: 40},
			status: http.StatusOK,
		},
		{
			name:   "future end",
			body:   SubmitRequest{OwnerID: "u-1", Category: "Project", Project: "Apollo", StartDate: "2025-01-14", EndDate: "2025-01-16", Hours: 4},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "multi above ceiling",
			body:   SubmitRequest{OwnerID: "u-1", Category: "Operations", StartDate: "2025-01-06", EndDate: "2025-01-06", Allocation: map[string]float64{"A": 10, "B": 25}},
			status: http.StatusUnprocessableEntity,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/actuals/validate", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	entries, _ := s.store.ListEntries(context.Background(), "u-1")
	assert.Empty(t, entries, "validation never persists")
}

func TestValidateSubmission_LeaveHoursDerived(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/actuals/validate", SubmitRequest{
		OwnerID: "u-1", Category: "Admin/Others", Project: actuals.LeaveHalfDay,
		StartDate: "2025-01-06", EndDate: "2025-01-10", Hours: 999,
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeBody[ValidationDTO](t, rec)
	assert.Equal(t, "single", dto.Mode)
	assert.Equal(t, 20.0, dto.Total)
}

func TestSubmit_MultiProjectCommits(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/submissions", SubmitRequest{
		OwnerID: "u-1", Category: "Project", StartDate: "2025-01-06", EndDate: "2025-01-10",
		Allocation: map[string]float64{"Apollo": 12, "Gemini": 8},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dto := decodeBody[SubmissionDTO](t, rec)
	assert.Equal(t, "committed", dto.State)
	assert.Equal(t, "multi", dto.Mode)
	assert.Len(t, dto.Committed, 2)
	assert.Equal(t, []string{"idle", "validating", "ready", "submitting", "committed"}, dto.Trace)

	// A resubmission collides with the fresh snapshot before any create.
	rec = s.do(t, http.MethodPost, "/api/submissions", SubmitRequest{
		OwnerID: "u-1", Category: "Project", Project: "Gemini", StartDate: "2025-01-10", EndDate: "2025-01-10", Hours: 1,
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).ConflictingEntryID)
}

func TestSubmit_PartialFailure(t *testing.T) {
	// GIVEN: A backend that fails one project with a transient error
	mem := memory.NewMemory()
	store := &failingStore{Memory: mem, fail: map[string]error{
		"Gemini": &actuals.PersistenceError{Kind: actuals.PersistenceTransient, StatusCode: 503},
	}}
	// Apollo may settle after the response; its log line can outlive the test.
	h := NewHandler(store, nil, zap.NewNop())
	router := NewRouter(h, nil)

	// WHEN: Submitting two projects
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(SubmitRequest{
		OwnerID: "u-1", Category: "Project", StartDate: "2025-01-06", EndDate: "2025-01-10",
		Allocation: map[string]float64{"Apollo": 12, "Gemini": 8},
	}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/submissions", &buf))

	// THEN: Gemini is reported and retryable, Apollo committed or still in flight
	require.Equal(t, http.StatusBadGateway, rec.Code, rec.Body.String())
	dto := decodeBody[SubmissionDTO](t, rec)
	assert.Equal(t, "failed", dto.State)
	assert.Contains(t, dto.Failed, "Gemini")
	assert.Equal(t, []string{"Gemini"}, dto.Retryable)
	assert.Equal(t, 1, len(dto.Committed)+len(dto.Pending))
	if len(dto.Committed) == 1 {
		assert.Equal(t, "Apollo", dto.Committed[0].Project)
	} else {
		assert.Equal(t, []string{"Apollo"}, dto.Pending)
	}

	// AND: Apollo settles and is not rolled back
	assert.Eventually(t, func() bool {
		entries, err := mem.ListEntries(context.Background(), "u-1")
		return err == nil && len(entries) == 1 && entries[0].Project == "Apollo"
	}, time.Second, 10*time.Millisecond)
}

func TestSubmit_BlankAllocationKeyRejected(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/submissions", SubmitRequest{
		OwnerID: "u-1", Category: "Project", StartDate: "2025-01-06", EndDate: "2025-01-10",
		Allocation: map[string]float64{"": 5, "Apollo": 3},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	entries, err := s.store.ListEntries(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// =============================================================================
// ALLOCATION PREVIEW
// =============================================================================

func TestPreviewAllocation(t *testing.T) {
	matcher := &stubMatcher{result: &actuals.MatchResult{
		MatchedActivities: []actuals.MatchedActivity{
			{ActivityName: "standup", ProjectName: "Apollo", Hours: decimal.NewFromInt(3)},
			{ActivityName: "review", ProjectName: "Apollo", Hours: decimal.NewFromInt(2)},
			{ActivityName: "email", Hours: decimal.NewFromInt(1)},
		},
		TotalMatchedHours: decimal.NewFromInt(6),
		Summary:           "3 activities",
	}}
	s := newTestServer(t, matcher)
	body := PreviewRequest{ProjectNames: []string{"Apollo"}, StartDate: "2025-01-06", EndDate: "2025-01-10", Category: "Project"}

	rec := s.do(t, http.MethodPost, "/api/allocations/preview", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeBody[AllocationDTO](t, rec)
	assert.Equal(t, "multi", dto.Mode)
	assert.Equal(t, map[string]float64{"Apollo": 5, actuals.UnassignedProject: 1}, dto.Allocation)
	assert.Equal(t, "2025-01-06", matcher.got.StartDate.String())

	body.PinnedProject = "Apollo"
	rec = s.do(t, http.MethodPost, "/api/allocations/preview", body)
	require.Equal(t, http.StatusOK, rec.Code)
	dto = decodeBody[AllocationDTO](t, rec)
	assert.Equal(t, "single", dto.Mode)
	assert.Equal(t, map[string]float64{"Apollo": 6}, dto.Allocation)
}

func TestPreviewAllocation_OracleErrors(t *testing.T) {
	body := PreviewRequest{ProjectNames: []string{"Apollo"}, StartDate: "2025-01-06", EndDate: "2025-01-10", Category: "Project"}

	rec := newTestServer(t, nil).do(t, http.MethodPost, "/api/allocations/preview", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = newTestServer(t, &stubMatcher{err: errors.New("timeout")}).do(t, http.MethodPost, "/api/allocations/preview", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	body.ProjectNames = nil
	rec = newTestServer(t, &stubMatcher{}).do(t, http.MethodPost, "/api/allocations/preview", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CALENDAR
// =============================================================================

func TestHolidayEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/holidays", CreateHolidayRequest{Date: "2025-01-08", Name: "Company Day"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[HolidayDTO](t, rec)

	rec = s.do(t, http.MethodGet, "/api/holidays?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Company Day")

	rec = s.do(t, http.MethodGet, "/api/workdays?start=2025-01-06&end=2025-01-10&holidays=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4, decodeBody[WorkdaysDTO](t, rec).WorkingDays)

	rec = s.do(t, http.MethodGet, "/api/workdays?start=2025-01-06&end=2025-01-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, decodeBody[WorkdaysDTO](t, rec).WorkingDays)

	rec = s.do(t, http.MethodDelete, "/api/holidays/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/workdays?start=2025-01-06&end=2025-01-10&holidays=true", nil)
	assert.Equal(t, 5, decodeBody[WorkdaysDTO](t, rec).WorkingDays)
}

func TestWorkdays_ReversedRangeIsZero(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/workdays?start=2025-01-10&end=2025-01-06", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeBody[WorkdaysDTO](t, rec).WorkingDays)
}

func TestLeaveHours(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/api/leave-hours?start=2025-01-06&end=2025-01-12&leave_type=Annual+Leave", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	dto := decodeBody[LeaveHoursDTO](t, rec)
	assert.Equal(t, 5, dto.WorkingDays)
	assert.Equal(t, 40.0, dto.Hours)
	assert.Equal(t, 5.0, dto.ManDays)

	rec = s.do(t, http.MethodGet, "/api/leave-hours?start=2025-01-06&end=2025-01-06&leave_type=Nap", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	rec := newTestServer(t, nil).do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
