/*
Package sqlite provides the SQLite-backed persistence service for actual
entries and holidays.

PURPOSE:
  This is the authoritative backend behind the create endpoint. It re-runs
  the overlap rule inside a database transaction, so a duplicate that a
  client missed because of a stale snapshot is still rejected.

KEY TABLES:
  actual_entries: Logged hours per owner, category, project and date range
  holidays:       Non-working dates (one-off or recurring)

INDEXES:
  - idx_entries_owner_project_dates: overlap lookups (hot path)
  - idx_entries_owner_start: snapshot listing

DATES:
  Stored as TEXT YYYY-MM-DD so lexical comparison equals date comparison.
  Hours are stored as decimal strings.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. Writers serialize; the overlap
  check and insert happen in one SQL transaction.

USAGE:
  store, err := sqlite.New("./data/actuals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/memory: In-memory equivalent for tests
  - api/handlers.go: Maps *actuals.OverlapError to 409 Conflict
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/generic"
)

// Store implements the persistence contract using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actual_entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		category TEXT NOT NULL,
		project TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		hours TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		CHECK (start_date <= end_date)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_owner_project_dates
		ON actual_entries(owner_id, project, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_entries_owner_start
		ON actual_entries(owner_id, start_date);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ACTUAL ENTRIES
// =============================================================================

const entryColumns = `id, owner_id, category, project, start_date, end_date, hours, created_at, updated_at`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateEntry validates bounds, checks for overlaps and inserts the entry
// in one transaction. A collision returns *actuals.OverlapError.
func (s *Store) CreateEntry(ctx context.Context, req actuals.CreateRequest) (*actuals.ActualEntry, error) {
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: %q", generic.ErrUnknownCategory, string(req.Category))
	}
	if err := actuals.CheckHoursBounds(req.Start, req.End, req.Hours); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if req.Category.OverlapChecked() {
		conflictID, err := s.findOverlap(ctx, sqlTx, req)
		if err != nil {
			return nil, err
		}
		if conflictID != "" {
			return nil, &actuals.OverlapError{
				ConflictingEntryID: conflictID,
				Project:            req.Project,
				Period:             generic.Period{Start: req.Start, End: req.End},
				Source:             actuals.ConflictBackend,
			}
		}
	}

	now := s.now().UTC().Truncate(time.Second)
	e := req.Candidate()
	e.ID = generic.EntryID(uuid.NewString())
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err = sqlTx.ExecContext(ctx,
		`INSERT INTO actual_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OwnerID, string(e.Category), e.Project,
		e.Start.String(), e.End.String(), e.Hours.String(),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert entry: %w", err)
	}

	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit entry: %w", err)
	}
	return &e, nil
}

// findOverlap applies the inclusive rule start1 <= end2 AND start2 <= end1
// to every overlap-checked entry of the same owner and project.
func (s *Store) findOverlap(ctx context.Context, db execer, req actuals.CreateRequest) (generic.EntryID, error) {
	checked := overlapCheckedCategories()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(checked)), ", ")

	query := `
		SELECT id FROM actual_entries
		WHERE owner_id = ? AND project = ?
		  AND category IN (` + placeholders + `)
		  AND start_date <= ? AND ? <= end_date
		ORDER BY start_date ASC
		LIMIT 1
	`
	args := []any{req.OwnerID, req.Project}
	for _, c := range checked {
		args = append(args, string(c))
	}
	args = append(args, req.End.String(), req.Start.String())

	var id string
	err := db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check overlap: %w", err)
	}
	return generic.EntryID(id), nil
}

func overlapCheckedCategories() []actuals.Category {
	var out []actuals.Category
	for _, c := range actuals.Categories() {
		if c.OverlapChecked() {
			out = append(out, c)
		}
	}
	return out
}

// ListEntries returns an owner's entries ordered by start date.
func (s *Store) ListEntries(ctx context.Context, ownerID generic.OwnerID) ([]actuals.ActualEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + ` FROM actual_entries
		WHERE owner_id = ?
		ORDER BY start_date ASC, created_at ASC`
	return s.queryEntries(ctx, s.db, query, ownerID)
}

// GetEntry returns one entry, or nil when it does not exist.
func (s *Store) GetEntry(ctx context.Context, id generic.EntryID) (*actuals.ActualEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntry(ctx, s.db, id)
}

func (s *Store) getEntry(ctx context.Context, db execer, id generic.EntryID) (*actuals.ActualEntry, error) {
	entries, err := s.queryEntries(ctx, db, `SELECT `+entryColumns+` FROM actual_entries WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// UpdateHours edits the hours of an existing entry after re-checking the
// calendar ceiling. Dates and project never change on this path.
func (s *Store) UpdateHours(ctx context.Context, id generic.EntryID, hours generic.Hours) (*actuals.ActualEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	e, err := s.getEntry(ctx, sqlTx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: %s", generic.ErrEntryNotFound, id)
	}
	if !e.Category.HoursEditable() {
		return nil, fmt.Errorf("%w: %s hours are derived", generic.ErrInvalidHours, e.Category)
	}
	if err := actuals.CheckHoursBounds(e.Start, e.End, hours); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	if _, err := sqlTx.ExecContext(ctx,
		`UPDATE actual_entries SET hours = ?, updated_at = ? WHERE id = ?`,
		hours.String(), now.Format(time.RFC3339), id,
	); err != nil {
		return nil, fmt.Errorf("failed to update hours: %w", err)
	}
	if err := sqlTx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit hours: %w", err)
	}

	e.Hours = hours
	e.UpdatedAt = now
	return e, nil
}

func (s *Store) queryEntries(ctx context.Context, db execer, query string, args ...any) ([]actuals.ActualEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []actuals.ActualEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (actuals.ActualEntry, error) {
	var (
		e                    actuals.ActualEntry
		id, owner, category  string
		start, end, hours    string
		createdAt, updatedAt string
	)
	if err := rows.Scan(&id, &owner, &category, &e.Project, &start, &end, &hours, &createdAt, &updatedAt); err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	e.ID = generic.EntryID(id)
	e.OwnerID = generic.OwnerID(owner)
	e.Category = actuals.Category(category)
	var err error
	if e.Start, err = generic.ParseDate(start); err != nil {
		return e, fmt.Errorf("entry %s: %w", id, err)
	}
	if e.End, err = generic.ParseDate(end); err != nil {
		return e, fmt.Errorf("entry %s: %w", id, err)
	}
	if e.Hours, err = generic.ParseHours(hours); err != nil {
		return e, fmt.Errorf("entry %s: invalid hours %q: %w", id, hours, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// SaveHoliday upserts a holiday keyed by (date, name).
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.ID == "" {
		h.ID = uuid.NewString()
	}

	query := `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, name) DO UPDATE SET
			recurring = excluded.recurring
	`

	_, err := s.db.ExecContext(ctx, query,
		h.ID,
		h.Date.String(),
		h.Name,
		h.Recurring,
		s.now().UTC().Format(time.RFC3339),
	)
	return err
}

// DeleteHoliday deletes a holiday by ID.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM holidays WHERE id = ?", id)
	return err
}

// HolidaysForYear returns the holidays of a year. Recurring holidays are
// projected onto that year.
func (s *Store) HolidaysForYear(ctx context.Context, year int) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, date, name, recurring
		FROM holidays
		WHERE (recurring = FALSE AND strftime('%Y', date) = ?)
		   OR recurring = TRUE
		ORDER BY strftime('%m-%d', date) ASC
	`

	rows, err := s.db.QueryContext(ctx, query, fmt.Sprintf("%04d", year))
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []generic.Holiday
	for rows.Next() {
		var h generic.Holiday
		var dateStr string
		if err := rows.Scan(&h.ID, &dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}

		d, err := generic.ParseDate(dateStr)
		if err != nil {
			continue
		}
		if h.Recurring {
			d = generic.NewTimePoint(year, d.Month(), d.Day())
		}
		h.Date = d
		holidays = append(holidays, h)
	}

	return holidays, rows.Err()
}

// IsHoliday checks a single date, honoring recurring holidays.
func (s *Store) IsHoliday(date generic.TimePoint) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT COUNT(*) FROM holidays
		WHERE (recurring = FALSE AND date = ?)
		   OR (recurring = TRUE AND strftime('%m-%d', date) = ?)
	`

	var count int
	err := s.db.QueryRow(query, date.String(), date.Time.Format("01-02")).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// Reset deletes all data (for development).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM actual_entries; DELETE FROM holidays;`)
	return err
}

// Compile-time checks
var (
	_ actuals.EntryCreator    = (*Store)(nil)
	_ actuals.SnapshotSource  = (*Store)(nil)
	_ generic.HolidayCalendar = (*Store)(nil)
)
