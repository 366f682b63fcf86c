// Package memory provides an in-memory actual-entry store (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of the persistence contract
// =============================================================================

// Memory keeps entries per owner and enforces the same overlap rule as
// the SQLite store, so it can stand in for the backend.
type Memory struct {
	mu       sync.RWMutex
	entries  map[generic.OwnerID][]actuals.ActualEntry
	byID     map[generic.EntryID]generic.OwnerID
	holidays map[string]generic.Holiday // keyed by date|name
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries:  make(map[generic.OwnerID][]actuals.ActualEntry),
		byID:     make(map[generic.EntryID]generic.OwnerID),
		holidays: make(map[string]generic.Holiday),
		now:      time.Now,
	}
}

// CreateEntry persists an entry, rejecting overlaps with *actuals.OverlapError.
func (m *Memory) CreateEntry(_ context.Context, req actuals.CreateRequest) (*actuals.ActualEntry, error) {
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", generic.ErrUnknownCategory, string(req.Category))
	}
	if err := actuals.CheckHoursBounds(req.Start, req.End, req.Hours); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	candidate := req.Candidate()
	if req.Category.OverlapChecked() {
		if hit := actuals.FindOverlap(m.entries[req.OwnerID], candidate); hit != nil {
			return nil, &actuals.OverlapError{
				ConflictingEntryID: hit.ID,
				Project:            req.Project,
				Period:             candidate.Period(),
				Source:             actuals.ConflictBackend,
			}
		}
	}

	now := m.now().UTC()
	candidate.ID = generic.EntryID(uuid.NewString())
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	list := m.entries[req.OwnerID]
	// Keep each owner's entries ordered by start date.
	i := sort.Search(len(list), func(i int) bool {
		return list[i].Start.After(candidate.Start)
	})
	list = append(list, actuals.ActualEntry{})
	copy(list[i+1:], list[i:])
	list[i] = candidate
	m.entries[req.OwnerID] = list
	m.byID[candidate.ID] = req.OwnerID

	created := candidate
	return &created, nil
}

// ListEntries returns a copy of the owner's entries ordered by start date.
func (m *Memory) ListEntries(_ context.Context, ownerID generic.OwnerID) ([]actuals.ActualEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]actuals.ActualEntry, len(m.entries[ownerID]))
	copy(result, m.entries[ownerID])
	return result, nil
}

func (m *Memory) GetEntry(_ context.Context, id generic.EntryID) (*actuals.ActualEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i, owner, ok := m.locate(id)
	if !ok {
		return nil, nil
	}
	e := m.entries[owner][i]
	return &e, nil
}

// UpdateHours changes the hours of an entry. Dates and project are immutable.
func (m *Memory) UpdateHours(_ context.Context, id generic.EntryID, hours generic.Hours) (*actuals.ActualEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, owner, ok := m.locate(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrEntryNotFound, id)
	}
	e := &m.entries[owner][i]
	if !e.Category.HoursEditable() {
		return nil, fmt.Errorf("%w: %s hours are derived", generic.ErrInvalidHours, e.Category)
	}
	if err := actuals.CheckHoursBounds(e.Start, e.End, hours); err != nil {
		return nil, err
	}
	e.Hours = hours
	e.UpdatedAt = m.now().UTC()
	updated := *e
	return &updated, nil
}

func (m *Memory) locate(id generic.EntryID) (int, generic.OwnerID, bool) {
	owner, ok := m.byID[id]
	if !ok {
		return 0, "", false
	}
	for i, e := range m.entries[owner] {
		if e.ID == id {
			return i, owner, true
		}
	}
	return 0, "", false
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// SaveHoliday upserts on (date, name) like the SQLite store: saving the
// same holiday again only updates Recurring and keeps the first ID.
func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := holidayKey(h)
	if existing, ok := m.holidays[key]; ok {
		existing.Recurring = h.Recurring
		m.holidays[key] = existing
		return nil
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	m.holidays[key] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, h := range m.holidays {
		if h.ID == id {
			delete(m.holidays, key)
		}
	}
	return nil
}

func holidayKey(h generic.Holiday) string {
	return h.Date.String() + "|" + h.Name
}

// HolidaysForYear returns the year's holidays, projecting recurring ones
// onto that year.
func (m *Memory) HolidaysForYear(_ context.Context, year int) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.Holiday
	for _, h := range m.holidays {
		switch {
		case h.Recurring:
			h.Date = generic.NewTimePoint(year, h.Date.Month(), h.Date.Day())
			out = append(out, h)
		case h.Date.Year() == year:
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Compile-time checks
var (
	_ actuals.EntryCreator   = (*Memory)(nil)
	_ actuals.SnapshotSource = (*Memory)(nil)
)
