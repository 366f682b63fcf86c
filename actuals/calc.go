package actuals

import (
	"github.com/shopspring/decimal"
	"github.com/warp/actuals-engine/generic"
)

// =============================================================================
// WORKING DAYS
// =============================================================================

// CountWorkingDays counts the days in [start, end] that are neither a
// weekend nor in holidays. A nil calendar means no holidays. A reversed
// range yields 0.
func CountWorkingDays(start, end generic.TimePoint, holidays generic.HolidayCalendar) int {
	count := 0
	for day := start; day.BeforeOrEqual(end); day = day.AddDays(1) {
		if day.IsWorkdayWithHolidays(holidays) {
			count++
		}
	}
	return count
}

// =============================================================================
// CAPACITY BOUNDS
// =============================================================================

// RejectIfFuture fails when date is after today. Both are compared as dates.
func RejectIfFuture(date, today generic.TimePoint) error {
	return rejectIfFuture("", date, today)
}

func rejectIfFuture(field string, date, today generic.TimePoint) error {
	if date.After(today) {
		return &FutureDateError{Field: field, Date: date, Today: today}
	}
	return nil
}

// MaxAllowedHours is the calendar ceiling: inclusive calendar days * 24.
// It catches typing mistakes (250 for 25), it does not model capacity.
func MaxAllowedHours(start, end generic.TimePoint) generic.Hours {
	days := generic.Period{Start: start, End: end}.CalendarDays()
	return decimal.NewFromInt(int64(days * generic.HoursPerDayCeiling))
}

// CheckHoursBounds rejects a reversed range, non-positive hours, and hours
// above MaxAllowedHours, in that order.
func CheckHoursBounds(start, end generic.TimePoint, hours generic.Hours) error {
	return checkHoursBounds("", start, end, hours)
}

func checkHoursBounds(project string, start, end generic.TimePoint, hours generic.Hours) error {
	if err := (generic.Period{Start: start, End: end}).Validate(); err != nil {
		return err
	}
	if !hours.IsPositive() {
		return &InvalidHoursError{Project: project, Entered: hours}
	}
	if ceiling := MaxAllowedHours(start, end); hours.GreaterThan(ceiling) {
		return &HoursExceededError{Project: project, MaxAllowed: ceiling, Entered: hours}
	}
	return nil
}

// =============================================================================
// OVERLAP
// =============================================================================

// FindOverlap returns the first existing entry that shares the candidate's
// owner and exact project string and whose inclusive window intersects
// the candidate's. Touching boundaries count. An entry with the candidate's
// own ID is skipped. Returns nil when nothing collides.
//
// Category exemption is the caller's decision (Category.OverlapChecked).
func FindOverlap(existing []ActualEntry, candidate ActualEntry) *ActualEntry {
	window := candidate.Period()
	for i := range existing {
		e := &existing[i]
		if e.OwnerID != candidate.OwnerID || e.Project != candidate.Project {
			continue
		}
		if candidate.ID != "" && e.ID == candidate.ID {
			continue
		}
		if e.Period().Overlaps(window) {
			return e
		}
	}
	return nil
}

// =============================================================================
// LEAVE HOURS
// =============================================================================

// Leave type keys carried in the Project field of CategoryAdminOthers entries.
const (
	LeaveAnnual  = "Annual Leave"
	LeaveSick    = "Sick Leave"
	LeaveHalfDay = "Half-Day Leave"
	LeaveUnpaid  = "Unpaid Leave"
)

// LeaveTypes lists the known leave keys.
func LeaveTypes() []string {
	return []string{LeaveAnnual, LeaveSick, LeaveHalfDay, LeaveUnpaid}
}

// HoursPerLeaveDay is 4 for a half-day leave and 8 for everything else.
func HoursPerLeaveDay(leaveType string) generic.Hours {
	if leaveType == LeaveHalfDay {
		return decimal.NewFromInt(4)
	}
	return decimal.NewFromInt(generic.HoursPerManDay)
}

// ComputeLeaveHours derives leave hours from working days in [start, end].
// Holidays are not applied.
func ComputeLeaveHours(start, end generic.TimePoint, leaveType string) generic.Hours {
	days := CountWorkingDays(start, end, nil)
	return decimal.NewFromInt(int64(days)).Mul(HoursPerLeaveDay(leaveType))
}
