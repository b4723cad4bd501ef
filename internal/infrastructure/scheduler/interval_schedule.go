package scheduler

import (
	"fmt"
	"time"
)

// IntervalSchedule fires every Interval, aligned to Anchor so restarts do not
// drift the cadence. A zero Anchor aligns to the Unix epoch.
type IntervalSchedule struct {
	Interval time.Duration
	Anchor   time.Time
}

// NewIntervalSchedule creates a new IntervalSchedule. Intervals under a
// second are raised to one second.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	if interval < time.Second {
		interval = time.Second
	}
	return &IntervalSchedule{Interval: interval}
}

// Next returns the first aligned instant strictly after t.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	anchor := s.Anchor
	if anchor.IsZero() {
		anchor = time.Unix(0, 0).In(t.Location())
	}
	if t.Before(anchor) {
		return anchor
	}
	elapsed := t.Sub(anchor)
	return anchor.Add((elapsed/s.Interval + 1) * s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}
