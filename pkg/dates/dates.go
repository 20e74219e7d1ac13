// Package dates works with calendar dates stored as midnight UTC time.Time values,
// the shape Postgres DATE columns round-trip through pgx.
package dates

import "time"

// Layout is the wire format for calendar dates.
const Layout = "2006-01-02"

// Date truncates t to its calendar day in t's own location and returns it as midnight UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// New builds a calendar date.
func New(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day as observed in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(now.In(loc))
}

func AddDays(d time.Time, n int) time.Time {
	return Date(d).AddDate(0, 0, n)
}

// DaysBetween returns to - from in whole days.
func DaysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)).Hours() / 24)
}

func FirstOfMonth(d time.Time) time.Time {
	y, m, _ := d.Date()
	return New(y, m, 1)
}

// LastOfMonth returns the last calendar day of d's month.
func LastOfMonth(d time.Time) time.Time {
	return FirstOfMonth(d).AddDate(0, 1, -1)
}

// MonthRange returns the first and last day of the given month.
func MonthRange(year int, month time.Month) (time.Time, time.Time) {
	start := New(year, month, 1)
	return start, LastOfMonth(start)
}

// PreviousMonth returns the first and last day of the month before d's month.
func PreviousMonth(d time.Time) (time.Time, time.Time) {
	end := FirstOfMonth(d).AddDate(0, 0, -1)
	return FirstOfMonth(end), end
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, err
	}
	return Date(t), nil
}

func Format(d time.Time) string {
	return d.Format(Layout)
}

// Equal reports whether a and b fall on the same calendar day.
func Equal(a, b time.Time) bool {
	return Date(a).Equal(Date(b))
}
