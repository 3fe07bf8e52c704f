package recurring

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/okazakov/bookbot/internal/domain"
)

// AdvanceDate computes the next due date after from under the template's
// frequency rule. It is a pure function: identical inputs always produce
// the identical date.
//
// The day-of-week and day-of-month constraints shape only dates computed
// here; the template's first run date (its start date) is never passed
// through this function.
func AdvanceDate(t *domain.RecurringTemplate, from civil.Date) (civil.Date, error) {
	switch t.Frequency {
	case domain.FreqDaily:
		return from.AddDays(t.Interval), nil

	case domain.FreqWeekly:
		next := from.AddDays(7 * t.Interval)
		if t.DayOfWeek != nil {
			next = snapToWeekday(next, *t.DayOfWeek)
		}
		return next, nil

	case domain.FreqMonthly:
		day := from.Day
		if t.DayOfMonth != nil {
			day = *t.DayOfMonth
		}
		return addMonthsClamped(from, t.Interval, day), nil

	case domain.FreqYearly:
		return addMonthsClamped(from, 12*t.Interval, from.Day), nil
	}

	// Creation validates the frequency, so this only fires on data
	// written by something other than this codebase.
	return civil.Date{}, &domain.ValidationError{Field: "frequency", Reason: "unknown frequency " + string(t.Frequency)}
}

// snapToWeekday moves d to the given weekday within its ISO week
// (Monday through Sunday).
func snapToWeekday(d civil.Date, w time.Weekday) civil.Date {
	return d.AddDays(isoIndex(w) - isoIndex(d.In(time.UTC).Weekday()))
}

// isoIndex maps time.Weekday (Sunday=0) onto ISO ordering (Monday=0,
// Sunday=6).
func isoIndex(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// addMonthsClamped adds months to d, landing on day clamped to the
// target month's length. Jan 31 plus one month is the last day of
// February, not a normalized date in March.
func addMonthsClamped(d civil.Date, months, day int) civil.Date {
	total := d.Year*12 + int(d.Month) - 1 + months
	year := total / 12
	month := time.Month(total%12 + 1)

	if dim := daysIn(year, month); day > dim {
		day = dim
	}
	return civil.Date{Year: year, Month: month, Day: day}
}

// daysIn returns the number of days in the given month. Day zero of the
// following month normalizes back to this month's last day.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
