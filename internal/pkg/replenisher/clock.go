package replenisher

import (
	"time"

	"github.com/markverse/replenish/app/models"
)

// Millisecond periods per recurrence unit. Month and year are fixed-duration
// approximations (30 and 365 days), not calendar-aware. The custom unit runs
// at second granularity for accelerated and administrative cadences.
const (
	DayMS    int64 = 86_400_000
	WeekMS   int64 = 604_800_000
	MonthMS  int64 = 2_592_000_000
	YearMS   int64 = 31_536_000_000
	CustomMS int64 = 1_000
)

// now is swapped out in tests.
var now = time.Now

// ToMilliseconds converts an (interval, unit) pair into the recurrence period
// in milliseconds. Unknown units yield 0; callers validate the unit first.
func ToMilliseconds(interval int, unit models.ReplenishmentUnit) int64 {
	var unitMS int64
	switch unit {
	case models.UnitDay:
		unitMS = DayMS
	case models.UnitWeek:
		unitMS = WeekMS
	case models.UnitMonth:
		unitMS = MonthMS
	case models.UnitYear:
		unitMS = YearMS
	case models.UnitCustom:
		unitMS = CustomMS
	default:
		return 0
	}
	return int64(interval) * unitMS
}

// NextDueInstant computes when the next occurrence is due, one period after
// the last successful payment. Without a prior payment it returns nil and the
// schedule engine derives the first occurrence from its own start anchor.
//
// A computed instant that already passed snaps forward to now+period: missed
// periods are skipped, never replayed as a catch-up burst, so at most one
// occurrence can ever be overdue.
func NextDueInstant(lastPaymentDate *time.Time, periodMS int64) *time.Time {
	if lastPaymentDate == nil {
		return nil
	}

	period := time.Duration(periodMS) * time.Millisecond
	next := lastPaymentDate.Add(period)
	if next.Before(now()) {
		next = now().Add(period)
	}
	return &next
}
