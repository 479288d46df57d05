package domain

import "time"

// DateLayout is the calendar-date format used in paths, config, and the
// boundary index.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string as a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate renders a time as its UTC calendar date.
func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Midnight truncates t to its UTC calendar date.
func Midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// YesterdayUTC returns the UTC calendar date before now. The current day is
// treated as never complete: an intraday provider may still be accumulating
// it.
func YesterdayUTC(now time.Time) time.Time {
	return Midnight(now).AddDate(0, 0, -1)
}

// DateRange returns every UTC date in [start, end] ascending. Empty when
// start is after end.
func DateRange(start, end time.Time) []time.Time {
	start, end = Midnight(start), Midnight(end)
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// MaxDate returns the later of a and b.
func MaxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
