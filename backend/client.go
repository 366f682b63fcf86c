// Package backend is the HTTP client for a remote persistence service
// speaking the /api/actuals contract. It implements api.Store, so an
// actuals server can run as a validating front for another instance.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/api"
	"github.com/warp/actuals-engine/generic"
	"go.uber.org/zap"
)

// Client creates and lists entries on a remote persistence service.
//
// Every failure comes back as *actuals.PersistenceError: 409 is a
// conflict (the orchestrator remaps it to *actuals.OverlapError), anything
// else is transient. Nothing is retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger used for failed calls.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateEntry posts one entry.
func (c *Client) CreateEntry(ctx context.Context, req actuals.CreateRequest) (*actuals.ActualEntry, error) {
	body, err := json.Marshal(api.NewCreateEntryRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encoding create request: %w", err)
	}

	var dto api.EntryDTO
	if err := c.do(ctx, http.MethodPost, "/api/actuals", bytes.NewReader(body), http.StatusCreated, &dto); err != nil {
		c.log.Warn("create failed",
			zap.String("owner_id", string(req.OwnerID)),
			zap.String("project", req.Project),
			zap.Error(err))
		return nil, err
	}

	return c.entry(dto)
}

func (c *Client) entry(dto api.EntryDTO) (*actuals.ActualEntry, error) {
	entry, err := dto.ToEntry()
	if err != nil {
		return nil, &actuals.PersistenceError{Kind: actuals.PersistenceTransient, Message: "malformed entry", Err: err}
	}
	return &entry, nil
}

// ListEntries fetches an owner's snapshot.
func (c *Client) ListEntries(ctx context.Context, ownerID generic.OwnerID) ([]actuals.ActualEntry, error) {
	path := "/api/actuals?owner_id=" + url.QueryEscape(string(ownerID))

	var resp struct {
		Entries []api.EntryDTO `json:"entries"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}

	entries := make([]actuals.ActualEntry, 0, len(resp.Entries))
	for _, dto := range resp.Entries {
		e, err := dto.ToEntry()
		if err != nil {
			return nil, &actuals.PersistenceError{Kind: actuals.PersistenceTransient, Message: "malformed snapshot", Err: err}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// GetEntry fetches one entry. A missing entry is (nil, nil).
func (c *Client) GetEntry(ctx context.Context, id generic.EntryID) (*actuals.ActualEntry, error) {
	var dto api.EntryDTO
	if err := c.do(ctx, http.MethodGet, "/api/actuals/"+url.PathEscape(string(id)), nil, http.StatusOK, &dto); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return c.entry(dto)
}

// UpdateHours edits the hours of an entry.
func (c *Client) UpdateHours(ctx context.Context, id generic.EntryID, hours generic.Hours) (*actuals.ActualEntry, error) {
	body, err := json.Marshal(api.UpdateHoursRequest{Hours: hours.InexactFloat64()})
	if err != nil {
		return nil, fmt.Errorf("encoding hours: %w", err)
	}

	var dto api.EntryDTO
	path := "/api/actuals/" + url.PathEscape(string(id)) + "/hours"
	if err := c.do(ctx, http.MethodPatch, path, bytes.NewReader(body), http.StatusOK, &dto); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", generic.ErrEntryNotFound, id)
		}
		return nil, err
	}
	return c.entry(dto)
}

// SaveHoliday creates a holiday, keeping h.ID when set.
func (c *Client) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	body, err := json.Marshal(api.CreateHolidayRequest{
		ID:        h.ID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	})
	if err != nil {
		return fmt.Errorf("encoding holiday: %w", err)
	}
	var dto api.HolidayDTO
	return c.do(ctx, http.MethodPost, "/api/holidays", bytes.NewReader(body), http.StatusCreated, &dto)
}

// DeleteHoliday deletes a holiday by ID.
func (c *Client) DeleteHoliday(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/holidays/"+url.PathEscape(id), nil, http.StatusOK, nil)
}

// Ping checks the remote health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, http.StatusOK, nil)
}

// HolidaysForYear fetches the holidays of a year.
func (c *Client) HolidaysForYear(ctx context.Context, year int) ([]generic.Holiday, error) {
	var resp struct {
		Holidays []api.HolidayDTO `json:"holidays"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/holidays?year="+strconv.Itoa(year), nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}

	holidays := make([]generic.Holiday, 0, len(resp.Holidays))
	for _, dto := range resp.Holidays {
		d, err := generic.ParseDate(dto.Date)
		if err != nil {
			continue
		}
		holidays = append(holidays, generic.Holiday{ID: dto.ID, Date: d, Name: dto.Name, Recurring: dto.Recurring})
	}
	return holidays, nil
}

// HolidaySet collects the holidays of every year touched by period.
func (c *Client) HolidaySet(ctx context.Context, period generic.Period) (generic.HolidaySet, error) {
	var all []generic.Holiday
	for year := period.Start.Year(); year <= period.End.Year(); year++ {
		holidays, err := c.HolidaysForYear(ctx, year)
		if err != nil {
			return nil, err
		}
		all = append(all, holidays...)
	}
	return generic.HolidaySetFrom(all), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &actuals.PersistenceError{Kind: actuals.PersistenceTransient, Message: "building request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &actuals.PersistenceError{Kind: actuals.PersistenceTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &actuals.PersistenceError{Kind: actuals.PersistenceTransient, StatusCode: resp.StatusCode, Message: "decoding response", Err: err}
	}
	return nil
}

// statusError turns a non-success response into a PersistenceError,
// keeping the server's message and conflicting entry when present.
func statusError(resp *http.Response) error {
	pe := &actuals.PersistenceError{Kind: actuals.PersistenceTransient, StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusConflict {
		pe.Kind = actuals.PersistenceConflict
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body api.ErrorResponse
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		pe.Message = body.Error
		if details, ok := body.Details.(string); ok && details != "" {
			pe.Message = details
		}
		pe.ConflictingEntryID = generic.EntryID(body.ConflictingEntryID)
	} else {
		pe.Message = strings.TrimSpace(string(raw))
	}
	return pe
}

func statusOf(err error) int {
	var pe *actuals.PersistenceError
	if errors.As(err, &pe) {
		return pe.StatusCode
	}
	return 0
}

// Compile-time checks
var (
	_ actuals.EntryCreator   = (*Client)(nil)
	_ actuals.SnapshotSource = (*Client)(nil)
	_ api.Store              = (*Client)(nil)
)
