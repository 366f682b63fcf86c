package generic

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is the inclusive window [Start, End] an entry covers.
//
// Examples:
//   - one day:  2025-01-01 .. 2025-01-01 (1 calendar day)
//   - one week: 2025-01-06 .. 2025-01-12 (7 calendar days, 5 working days)
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Validate reports ErrInvalidPeriod when End is before Start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether two inclusive periods intersect.
// Periods that only touch on a boundary date overlap.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// CalendarDays is the inclusive day count, 0 for a reversed period.
func (p Period) CalendarDays() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
