package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// CronExpression is a parsed 5-field cron expression evaluated in a fixed
// location: minute hour day-of-month month day-of-week.
//
//   - "*/15 * * * *" every 15 minutes
//   - "0 2 * * *"    every day at 02:00
//   - "30 6 * * 1-5" weekdays at 06:30
type CronExpression struct {
	raw      string
	loc      *time.Location
	minutes  []int // 0-59
	hours    []int // 0-23
	days     []int // 1-31
	months   []int // 1-12
	weekdays []int // 0-6 (0 = Sunday)
}

// ParseCronExpression parses a cron expression evaluated in loc (UTC when nil).
// Fields support *, */n, n, n-m, n-m/s and n,m,o.
func ParseCronExpression(expr string, loc *time.Location) (*CronExpression, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("invalid cron expression %q: expected 5 fields, got %d", expr, len(fields))
	}
	if loc == nil {
		loc = time.UTC
	}

	ce := &CronExpression{raw: strings.Join(fields, " "), loc: loc}
	specs := []struct {
		name     string
		min, max int
		dst      *[]int
	}{
		{"minute", 0, 59, &ce.minutes},
		{"hour", 0, 23, &ce.hours},
		{"day", 1, 31, &ce.days},
		{"month", 1, 12, &ce.months},
		{"weekday", 0, 6, &ce.weekdays},
	}
	for i, spec := range specs {
		vals, err := parseField(fields[i], spec.min, spec.max)
		if err != nil {
			return nil, fmt.Errorf("invalid %s field: %w", spec.name, err)
		}
		*spec.dst = vals
	}
	return ce, nil
}

// DailyAt returns the schedule firing once a day at hour:minute in loc.
func DailyAt(hour, minute int, loc *time.Location) (*CronExpression, error) {
	return ParseCronExpression(fmt.Sprintf("%d %d * * *", minute, hour), loc)
}

// parseField expands one cron field into its sorted values.
func parseField(field string, min, max int) ([]int, error) {
	set := make(map[int]bool)
	for _, part := range strings.Split(field, ",") {
		if err := expandPart(strings.TrimSpace(part), min, max, set); err != nil {
			return nil, err
		}
	}
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func expandPart(part string, min, max int, set map[int]bool) error {
	if part == "" {
		return fmt.Errorf("empty value")
	}

	step := 1
	if base, s, ok := strings.Cut(part, "/"); ok {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid step value: %s", s)
		}
		step, part = n, base
	}

	start, end := min, max
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		lo, hi, _ := strings.Cut(part, "-")
		var err error
		if start, err = strconv.Atoi(lo); err != nil {
			return fmt.Errorf("invalid range start: %s", lo)
		}
		if end, err = strconv.Atoi(hi); err != nil {
			return fmt.Errorf("invalid range end: %s", hi)
		}
	default:
		v, err := strconv.Atoi(part)
		if err != nil {
			return fmt.Errorf("invalid value: %s", part)
		}
		start = v
		if step == 1 {
			end = v
		}
	}
	if start < min || end > max || start > end {
		return fmt.Errorf("value out of range [%d-%d]: %s", min, max, part)
	}
	for v := start; v <= end; v += step {
		set[v] = true
	}
	return nil
}

// String returns the normalized expression and its location.
func (ce *CronExpression) String() string {
	return ce.raw + " (" + ce.loc.String() + ")"
}

// Next returns the first matching minute strictly after the given time.
// DST gaps are skipped; the result is in the expression's location.
func (ce *CronExpression) Next(after time.Time) time.Time {
	t := after.In(ce.loc).Truncate(time.Minute).Add(time.Minute)

	// One year of minutes covers every valid expression.
	const maxIterations = 366 * 24 * 60
	for i := 0; i < maxIterations; i++ {
		if ce.matches(t) {
			return t
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}
}

func (ce *CronExpression) matches(t time.Time) bool {
	return contains(ce.minutes, t.Minute()) &&
		contains(ce.hours, t.Hour()) &&
		contains(ce.days, t.Day()) &&
		contains(ce.months, int(t.Month())) &&
		contains(ce.weekdays, int(t.Weekday()))
}

func contains(slice []int, val int) bool {
	i := sort.SearchInts(slice, val)
	return i < len(slice) && slice[i] == val
}
