// Package timeutil provides timezone-aware calendar helpers for cohort time.
// Every cohort runs on local midnight in its own timezone, so day arithmetic
// here is done on calendar dates rather than on raw durations.
package timeutil

import (
	"fmt"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is used when a cohort does not declare one.
const DefaultTimezone = "Asia/Almaty"

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Clock abstracts the current time so scheduled sweeps can be replayed.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	T time.Time
}

// Now implements Clock.
func (c FixedClock) Now() time.Time { return c.T }

// LoadLocation resolves an IANA zone name, falling back to DefaultTimezone
// for an empty name.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

// StartOfDay returns local midnight of t in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween returns the signed number of calendar days from a to b,
// both read as dates in loc. It is stable across DST shifts.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	la, lb := a.In(loc), b.In(loc)
	da := time.Date(la.Year(), la.Month(), la.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(lb.Year(), lb.Month(), lb.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// AddDays returns local midnight of the date that is n days after t's date.
func AddDays(t time.Time, n int, loc *time.Location) time.Time {
	return StartOfDay(t, loc).AddDate(0, 0, n)
}

// FormatDate renders t's date in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
