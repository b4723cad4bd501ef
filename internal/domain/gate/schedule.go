package gate

import (
	"fmt"
	"sort"
)

// Entry pairs a program day with the gate due on it.
type Entry struct {
	Day  int
	Gate Type
}

// Schedule maps program days to gates. Adding a gate day is a data change.
type Schedule struct {
	byDay map[int]Type
}

// DefaultSchedule returns the standard four-gate schedule.
func DefaultSchedule() Schedule {
	s, _ := NewSchedule(map[int]Type{
		1:  TypeBaseline,
		30: TypeSellableSkill,
		60: TypeMarketContact,
		90: TypeIncome,
	})
	return s
}

// NewSchedule validates and builds a Schedule. Each gate type may appear once
// and days must be positive.
func NewSchedule(days map[int]Type) (Schedule, error) {
	seen := make(map[Type]int, len(days))
	byDay := make(map[int]Type, len(days))
	for day, t := range days {
		if day < 1 {
			return Schedule{}, fmt.Errorf("gate %s: day %d must be positive", t, day)
		}
		if !t.IsValid() {
			return Schedule{}, fmt.Errorf("day %d: unknown gate type %q", day, t)
		}
		if prev, dup := seen[t]; dup {
			return Schedule{}, fmt.Errorf("gate %s scheduled on both day %d and day %d", t, prev, day)
		}
		seen[t] = day
		byDay[day] = t
	}
	return Schedule{byDay: byDay}, nil
}

// GateForDay returns the gate due on day, if any.
func (s Schedule) GateForDay(day int) (Type, bool) {
	t, ok := s.byDay[day]
	return t, ok
}

// DayOf returns the day a gate is scheduled on.
func (s Schedule) DayOf(t Type) (int, bool) {
	for d, g := range s.byDay {
		if g == t {
			return d, true
		}
	}
	return 0, false
}

// Entries returns the schedule ordered by day.
func (s Schedule) Entries() []Entry {
	out := make([]Entry, 0, len(s.byDay))
	for d, t := range s.byDay {
		out = append(out, Entry{Day: d, Gate: t})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Len returns the number of scheduled gates.
func (s Schedule) Len() int {
	return len(s.byDay)
}
