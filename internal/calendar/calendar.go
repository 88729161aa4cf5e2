// Package calendar provides business-day arithmetic on UTC day-granular
// dates. A business day is a calendar day excluding Saturday and Sunday;
// holiday calendars come from the reference-data store and are not modeled
// here.
package calendar

import "time"

// DateFormat is the wire format for dates.
const DateFormat = "2006-01-02"

// Day truncates a timestamp to midnight UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsBusinessDay reports whether d falls on a weekday.
func IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevBusinessDay returns the last business day strictly before d.
func PrevBusinessDay(d time.Time) time.Time {
	d = Day(d).AddDate(0, 0, -1)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// SnapToBusinessDay returns d if it is a business day, otherwise the last
// business day before it.
func SnapToBusinessDay(d time.Time) time.Time {
	d = Day(d)
	for !IsBusinessDay(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// BusinessDays returns every business day in [from, to], inclusive.
func BusinessDays(from, to time.Time) []time.Time {
	var days []time.Time
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			days = append(days, d)
		}
	}
	return days
}

// BusinessDayIndex returns the 1-based index of x within the business days
// of [from, to], or 0 when x is not a business day of the window.
func BusinessDayIndex(from, to, x time.Time) int {
	idx := 0
	for d := Day(from); !d.After(Day(to)); d = d.AddDate(0, 0, 1) {
		if !IsBusinessDay(d) {
			continue
		}
		idx++
		if d.Equal(Day(x)) {
			return idx
		}
	}
	return 0
}

// LastBusinessDayOfPreviousYear returns the last business day of the year
// before the one containing d.
func LastBusinessDayOfPreviousYear(d time.Time) time.Time {
	firstOfYear := time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	return PrevBusinessDay(firstOfYear)
}

// LastBusinessDayOfPreviousQuarter returns the last business day before the
// calendar quarter containing d.
func LastBusinessDayOfPreviousQuarter(d time.Time) time.Time {
	quarterStartMonth := time.Month(((int(d.Month())-1)/3)*3 + 1)
	firstOfQuarter := time.Date(d.Year(), quarterStartMonth, 1, 0, 0, 0, 0, time.UTC)
	return PrevBusinessDay(firstOfQuarter)
}

// LastBusinessDayOfPreviousMonth returns the last business day before the
// calendar month containing d.
func LastBusinessDayOfPreviousMonth(d time.Time) time.Time {
	firstOfMonth := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	return PrevBusinessDay(firstOfMonth)
}

// MonthEnd returns the last calendar day of the month containing d.
func MonthEnd(d time.Time) time.Time {
	firstOfNext := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}
