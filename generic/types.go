/*
Package generic provides the date and quantity primitives shared by the
actuals engine, its persistence layer and its HTTP surface.

KEY CONCEPTS:
  - TimePoint: a calendar date (no time-of-day, no zone semantics)
  - Period: an inclusive [Start, End] window with overlap semantics
  - Hours: a decimal quantity of logged effort
  - HolidaySet / HolidayCalendar: non-working dates

DESIGN PRINCIPLES:
  1. Precision: hours use decimal.Decimal so 0.1 + 0.2 sums stay exact
  2. Date-only: every boundary compares dates, never instants
  3. Totality: calculators return zero for reversed ranges instead of failing

SEE ALSO:
  - period.go: Period and overlap rule
  - errors.go: Sentinel errors
  - actuals/: The rules engine built on these types
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Logged effort
// =============================================================================

// Hours is a non-negative quantity of logged effort.
type Hours = decimal.Decimal

const (
	// HoursPerDayCeiling bounds a single calendar day. It is a sanity limit.
	HoursPerDayCeiling = 24
	// HoursPerManDay normalizes effort into man-days.
	HoursPerManDay = 8
)

func NewHours(value float64) Hours { return decimal.NewFromFloat(value) }

func NewHoursFromInt(value int) Hours { return decimal.NewFromInt(int64(value)) }

// ParseHours parses a decimal string such as "7.5".
func ParseHours(s string) (Hours, error) {
	return decimal.NewFromString(s)
}

// MustParseHours is ParseHours for literals in tests and fixtures.
func MustParseHours(s string) Hours {
	d, err := ParseHours(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ManDays converts hours into man-days (hours / 8).
func ManDays(h Hours) decimal.Decimal {
	return h.Div(decimal.NewFromInt(HoursPerManDay))
}

// SumHours adds every value in hs.
func SumHours(hs ...Hours) Hours {
	total := decimal.Zero
	for _, h := range hs {
		total = total.Add(h)
	}
	return total
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type EntryID string
