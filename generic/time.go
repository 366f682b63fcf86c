package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Day-granular date used at every engine boundary
// =============================================================================

// DateLayout is the only wire format for dates: ISO YYYY-MM-DD, no time part.
const DateLayout = "2006-01-02"

// TimePoint is a calendar date. Time-of-day and zone are discarded on
// construction; all comparisons are date-only.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t, keeping the calendar date as seen in t's location.
func DateOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint {
	return DateOf(time.Now())
}

// ParseDate parses an ISO date (YYYY-MM-DD).
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// MustParseDate is ParseDate for literals in tests and fixtures.
func MustParseDate(s string) TimePoint {
	tp, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return tp
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return DateOf(tp.normalize().AddDate(0, 0, n)) }

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsWorkday() bool       { return !tp.IsWeekend() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

func (tp TimePoint) IsWeekend() bool {
	wd := tp.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (tp TimePoint) String() string {
	return tp.Time.Format(DateLayout)
}

// MarshalText encodes the date as YYYY-MM-DD so TimePoint can sit directly in JSON bodies.
func (tp TimePoint) MarshalText() ([]byte, error) {
	return []byte(tp.String()), nil
}

func (tp *TimePoint) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

// Holiday is a non-working date published by the holiday source.
type Holiday struct {
	ID        string
	Date      TimePoint
	Name      string // e.g., "New Year's Day"
	Recurring bool   // true = same month/day every year
}

// HolidayCalendar answers whether a date is a holiday.
type HolidayCalendar interface {
	IsHoliday(date TimePoint) bool
}

// HolidaySet is an in-memory set of holiday dates, usually one year's worth.
// The zero value is an empty set and is safe to query.
type HolidaySet map[string]struct{}

// NewHolidaySet builds a set from dates.
func NewHolidaySet(dates ...TimePoint) HolidaySet {
	hs := make(HolidaySet, len(dates))
	for _, d := range dates {
		hs[d.String()] = struct{}{}
	}
	return hs
}

// HolidaySetFrom collects the dates of the given holidays.
func HolidaySetFrom(holidays []Holiday) HolidaySet {
	hs := make(HolidaySet, len(holidays))
	for _, h := range holidays {
		hs[h.Date.String()] = struct{}{}
	}
	return hs
}

func (hs HolidaySet) IsHoliday(date TimePoint) bool {
	_, ok := hs[date.String()]
	return ok
}

func (hs HolidaySet) Len() int { return len(hs) }

// IsWorkdayWithHolidays checks if a date is a working day, considering holidays.
func (tp TimePoint) IsWorkdayWithHolidays(calendar HolidayCalendar) bool {
	if tp.IsWeekend() {
		return false
	}
	if calendar != nil && calendar.IsHoliday(tp) {
		return false
	}
	return true
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

// DaysBetween is the signed number of days from `from` to `to`.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func StartOfYear(year int) TimePoint { return NewTimePoint(year, time.January, 1) }
func EndOfYear(year int) TimePoint   { return NewTimePoint(year, time.December, 31) }
