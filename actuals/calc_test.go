package actuals_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/actuals-engine/actuals"
	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(s string) generic.TimePoint { return generic.MustParseDate(s) }

func hours(s string) generic.Hours { return generic.MustParseHours(s) }

func entry(id, owner, project, start, end string) actuals.ActualEntry {
	return actuals.ActualEntry{
		ID:       generic.EntryID(id),
		OwnerID:  generic.OwnerID(owner),
		Category: actuals.CategoryProject,
		Project:  project,
		Start:    date(start),
		End:      date(end),
		Hours:    hours("8"),
	}
}

// =============================================================================
// WORKING DAYS
// =============================================================================

func TestCountWorkingDays_FullWeekIsFive(t *testing.T) {
	// Every Mon-Sun week of 2025 has five working days.
	monday := date("2025-01-06")
	for w := 0; w < 52; w++ {
		start := monday.AddDays(7 * w)
		end := start.AddDays(6)
		assert.Equal(t, 5, actuals.CountWorkingDays(start, end, nil), "week of %s", start)
	}
}

func TestCountWorkingDays_SingleDay(t *testing.T) {
	tests := []struct {
		day  string
		want int
	}{
		{"2025-01-06", 1}, // Monday
		{"2025-01-08", 1}, // Wednesday
		{"2025-01-10", 1}, // Friday
		{"2025-01-11", 0}, // Saturday
		{"2025-01-12", 0}, // Sunday
	}
	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			d := date(tt.day)
			assert.Equal(t, tt.want, actuals.CountWorkingDays(d, d, nil))
		})
	}
}

func TestCountWorkingDays_ReversedRangeIsZero(t *testing.T) {
	assert.Equal(t, 0, actuals.CountWorkingDays(date("2025-01-10"), date("2025-01-06"), nil))
}

func TestCountWorkingDays_ExcludesHolidays(t *testing.T) {
	// GIVEN: New Year's Day (Wednesday) is a holiday
	holidays := generic.NewHolidaySet(date("2025-01-01"))

	// WHEN: Counting Mon 2024-12-30 .. Fri 2025-01-03
	got := actuals.CountWorkingDays(date("2024-12-30"), date("2025-01-03"), holidays)

	// THEN: Four working days remain
	assert.Equal(t, 4, got)
}

func TestCountWorkingDays_HolidayOnWeekendCountsOnce(t *testing.T) {
	holidays := generic.NewHolidaySet(date("2025-01-11"))
	assert.Equal(t, 5, actuals.CountWorkingDays(date("2025-01-06"), date("2025-01-12"), holidays))
}

// =============================================================================
// CAPACITY BOUNDS
// =============================================================================

func TestRejectIfFuture(t *testing.T) {
	today := date("2025-03-10")

	assert.NoError(t, actuals.RejectIfFuture(today, today), "today is allowed")
	assert.NoError(t, actuals.RejectIfFuture(date("2025-03-09"), today))

	err := actuals.RejectIfFuture(date("2025-03-11"), today)
	var fe *actuals.FutureDateError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, date("2025-03-11"), fe.Date)
	assert.True(t, errors.Is(err, generic.ErrFutureDate))
}

func TestMaxAllowedHours_IsCalendarDaysTimes24(t *testing.T) {
	tests := []struct {
		start, end string
		want       int64
	}{
		{"2025-01-01", "2025-01-01", 24},
		{"2025-01-06", "2025-01-12", 168},
		{"2025-01-30", "2025-02-02", 96}, // crosses a month
		{"2024-02-28", "2024-03-01", 72}, // leap day
		{"2025-01-10", "2025-01-06", 0},  // reversed
	}
	for _, tt := range tests {
		t.Run(tt.start+"_"+tt.end, func(t *testing.T) {
			got := actuals.MaxAllowedHours(date(tt.start), date(tt.end))
			assert.True(t, got.Equal(generic.NewHoursFromInt(int(tt.want))), "got %s", got)
		})
	}
}

func TestCheckHoursBounds(t *testing.T) {
	d := date("2025-01-01")

	assert.NoError(t, actuals.CheckHoursBounds(d, d, hours("24")), "exactly the ceiling is allowed")
	assert.NoError(t, actuals.CheckHoursBounds(d, d, hours("0.5")))

	err := actuals.CheckHoursBounds(d, d, hours("25"))
	var he *actuals.HoursExceededError
	require.ErrorAs(t, err, &he)
	assert.True(t, he.MaxAllowed.Equal(hours("24")))
	assert.True(t, he.Entered.Equal(hours("25")))
	assert.ErrorIs(t, err, generic.ErrHoursExceeded)

	err = actuals.CheckHoursBounds(d, d, hours("0"))
	var ie *actuals.InvalidHoursError
	assert.ErrorAs(t, err, &ie)

	err = actuals.CheckHoursBounds(date("2025-01-02"), d, hours("1"))
	assert.ErrorIs(t, err, generic.ErrInvalidPeriod)
}

// =============================================================================
// OVERLAP
// =============================================================================

func TestFindOverlap_BoundaryTouchCounts(t *testing.T) {
	existing := []actuals.ActualEntry{entry("e-1", "u-1", "Apollo", "2024-01-01", "2024-01-10")}
	candidate := entry("", "u-1", "Apollo", "2024-01-10", "2024-01-15")

	hit := actuals.FindOverlap(existing, candidate)

	require.NotNil(t, hit)
	assert.Equal(t, generic.EntryID("e-1"), hit.ID)
}

func TestFindOverlap_DifferentProjectIsIgnored(t *testing.T) {
	existing := []actuals.ActualEntry{entry("e-1", "u-1", "Apollo", "2024-01-01", "2024-01-10")}
	candidate := entry("", "u-1", "Gemini", "2024-01-10", "2024-01-15")

	assert.Nil(t, actuals.FindOverlap(existing, candidate))
}

func TestFindOverlap_ScopedToOwnerAndExactProject(t *testing.T) {
	existing := []actuals.ActualEntry{
		entry("e-1", "u-2", "Apollo", "2024-01-01", "2024-01-31"),
		entry("e-2", "u-1", "apollo", "2024-01-01", "2024-01-31"),
	}
	candidate := entry("", "u-1", "Apollo", "2024-01-05", "2024-01-06")

	assert.Nil(t, actuals.FindOverlap(existing, candidate), "other owner and case-different project must not collide")
}

func TestFindOverlap_Cases(t *testing.T) {
	existing := []actuals.ActualEntry{entry("e-1", "u-1", "Apollo", "2024-01-10", "2024-01-20")}
	tests := []struct {
		name       string
		start, end string
		overlap    bool
	}{
		{"before", "2024-01-01", "2024-01-09", false},
		{"touch start", "2024-01-01", "2024-01-10", true},
		{"inside", "2024-01-12", "2024-01-13", true},
		{"covers", "2024-01-01", "2024-01-31", true},
		{"touch end", "2024-01-20", "2024-01-25", true},
		{"after", "2024-01-21", "2024-01-25", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hit := actuals.FindOverlap(existing, entry("", "u-1", "Apollo", tt.start, tt.end))
			assert.Equal(t, tt.overlap, hit != nil)
		})
	}
}

func TestFindOverlap_SkipsSelf(t *testing.T) {
	existing := []actuals.ActualEntry{entry("e-1", "u-1", "Apollo", "2024-01-10", "2024-01-20")}
	assert.Nil(t, actuals.FindOverlap(existing, existing[0]))
}

// =============================================================================
// LEAVE HOURS
// =============================================================================

func TestComputeLeaveHours(t *testing.T) {
	mon, fri := date("2025-01-06"), date("2025-01-10")

	assert.True(t, actuals.ComputeLeaveHours(mon, fri, actuals.LeaveAnnual).Equal(hours("40")))
	assert.True(t, actuals.ComputeLeaveHours(mon, fri, actuals.LeaveHalfDay).Equal(hours("20")))
	assert.True(t, actuals.ComputeLeaveHours(mon, fri, "Bereavement").Equal(hours("40")), "unknown leave types use 8h")
	assert.True(t, actuals.ComputeLeaveHours(date("2025-01-11"), date("2025-01-12"), actuals.LeaveSick).IsZero(), "weekend-only leave is zero")
}

func TestComputeLeaveHours_IgnoresHolidays(t *testing.T) {
	// New Year's Day still counts: holidays are not applied to leave.
	got := actuals.ComputeLeaveHours(date("2024-12-30"), date("2025-01-03"), actuals.LeaveAnnual)
	assert.True(t, got.Equal(hours("40")), "got %s", got)
}

// =============================================================================
// CATEGORY
// =============================================================================

func TestCategory_Rules(t *testing.T) {
	tests := []struct {
		category       actuals.Category
		editable       bool
		overlapChecked bool
	}{
		{actuals.CategoryProject, true, true},
		{actuals.CategoryOperations, true, true},
		{actuals.CategoryAdminOthers, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			assert.Equal(t, tt.editable, tt.category.HoursEditable())
			assert.Equal(t, tt.overlapChecked, tt.category.OverlapChecked())
		})
	}
	assert.Len(t, actuals.Categories(), len(tests), "every category must have a rules row")
}

func TestParseCategory(t *testing.T) {
	c, err := actuals.ParseCategory("Admin/Others")
	require.NoError(t, err)
	assert.Equal(t, actuals.CategoryAdminOthers, c)

	_, err = actuals.ParseCategory("Leave")
	assert.ErrorIs(t, err, generic.ErrUnknownCategory)
}
