package meals

import (
	"fmt"
	"time"
)

// Dates in the meal plan are civil dates. They are carried as time.Time at
// midnight UTC so date arithmetic never crosses a DST boundary.

// Civil returns the calendar date of t in loc.
func Civil(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// FormatDate renders a civil date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(time.DateOnly)
}

// WeekStart returns the Monday of d's week.
func WeekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

// WeekKey returns the ISO week key of d, e.g. "2026-W07".
func WeekKey(d time.Time) string {
	year, week := WeekStart(d).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeekdayKey returns the weekday mapping key for d, "0" for Sunday.
func WeekdayKey(d time.Time) string {
	return fmt.Sprint(int(d.Weekday()))
}

// daysBetween is the signed number of days from a to b.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
