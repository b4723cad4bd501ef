// Package calendar computes program time for a cohort.
//
// Everything here is a pure function of a cohort's start date, its timezone
// and the instant being asked about. Nothing is persisted by this package;
// the cohort's stored day and phase are a cache of what these functions return.
package calendar

import (
	"sort"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ProgramLength is the number of program days in a cohort.
const ProgramLength = 90

// ══════════════════════════════════════════════════════════════════════════════
// PHASES
// ══════════════════════════════════════════════════════════════════════════════

// Phase is a named span of program days.
type Phase string

const (
	PhasePreCohort Phase = "PRE_COHORT"
	PhaseTraining  Phase = "TRAINING"
	PhaseMarket    Phase = "MARKET"
	PhaseIncome    Phase = "INCOME"
	PhaseExit      Phase = "EXIT"
)

// phaseBounds lists the first day of every phase after PRE_COHORT.
var phaseBounds = []struct {
	FirstDay int
	Phase    Phase
}{
	{1, PhaseTraining},
	{43, PhaseMarket},
	{70, PhaseIncome},
	{ProgramLength + 1, PhaseExit},
}

// IsValid reports whether p is a known phase.
func (p Phase) IsValid() bool {
	switch p {
	case PhasePreCohort, PhaseTraining, PhaseMarket, PhaseIncome, PhaseExit:
		return true
	}
	return false
}

// PhaseForDay maps a program day to its phase.
func PhaseForDay(day int) Phase {
	phase := PhasePreCohort
	for _, b := range phaseBounds {
		if day >= b.FirstDay {
			phase = b.Phase
		}
	}
	return phase
}

// ══════════════════════════════════════════════════════════════════════════════
// DAY ARITHMETIC
// ══════════════════════════════════════════════════════════════════════════════

// CurrentDay returns the 1-based program day at now. Before the start date
// the result is zero or negative and is returned as is: there is no day 0
// clamp, day 1 is the first program day.
func CurrentDay(startDate time.Time, loc *time.Location, now time.Time) int {
	return timeutil.DaysBetween(startDate, now, loc) + 1
}

// DateOfDay returns local midnight of the given program day.
func DateOfDay(startDate time.Time, loc *time.Location, day int) time.Time {
	return timeutil.AddDays(startDate, day-1, loc)
}

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONES
// ══════════════════════════════════════════════════════════════════════════════

// MilestoneKind classifies a milestone.
type MilestoneKind string

const (
	MilestoneApplicationOpens  MilestoneKind = "APPLICATION_OPENS"
	MilestoneApplicationCloses MilestoneKind = "APPLICATION_CLOSES"
	MilestoneOrientation       MilestoneKind = "ORIENTATION"
	MilestoneGate              MilestoneKind = "GATE"
	MilestonePhaseStart        MilestoneKind = "PHASE_START"
	MilestoneProgramEnd        MilestoneKind = "PROGRAM_END"
)

// Offsets of the pre-program milestones, as program days.
const (
	ApplicationOpensDay  = -28
	ApplicationClosesDay = -8
	OrientationDay       = -7
)

// Milestone is one dated checkpoint in a cohort calendar.
type Milestone struct {
	Kind  MilestoneKind `json:"kind"`
	Label string        `json:"label"`
	Day   int           `json:"day"`
	Date  time.Time     `json:"date"`
	Gate  gate.Type     `json:"gate,omitempty"`
	Phase Phase         `json:"phase,omitempty"`
}

// Milestones returns every milestone of a cohort ordered by day.
func Milestones(startDate time.Time, loc *time.Location, schedule gate.Schedule) []Milestone {
	at := func(day int) time.Time { return DateOfDay(startDate, loc, day) }

	ms := []Milestone{
		{Kind: MilestoneApplicationOpens, Label: "Application window opens", Day: ApplicationOpensDay, Date: at(ApplicationOpensDay)},
		{Kind: MilestoneApplicationCloses, Label: "Application window closes", Day: ApplicationClosesDay, Date: at(ApplicationClosesDay)},
		{Kind: MilestoneOrientation, Label: "Orientation", Day: OrientationDay, Date: at(OrientationDay)},
		{Kind: MilestoneProgramEnd, Label: "Program ends", Day: ProgramLength, Date: at(ProgramLength)},
	}
	for _, b := range phaseBounds {
		ms = append(ms, Milestone{
			Kind:  MilestonePhaseStart,
			Label: string(b.Phase) + " phase starts",
			Day:   b.FirstDay,
			Date:  at(b.FirstDay),
			Phase: b.Phase,
		})
	}
	for _, e := range schedule.Entries() {
		ms = append(ms, Milestone{
			Kind:  MilestoneGate,
			Label: string(e.Gate) + " gate",
			Day:   e.Day,
			Date:  at(e.Day),
			Gate:  e.Gate,
		})
	}

	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Day < ms[j].Day })
	return ms
}

// UpcomingGate is a gate due inside a look-ahead window.
type UpcomingGate struct {
	Gate      gate.Type `json:"gate"`
	Day       int       `json:"day"`
	Date      time.Time `json:"date"`
	DaysUntil int       `json:"days_until"`
}

// UpcomingGates returns the gates whose date falls in [today, today+windowDays].
func UpcomingGates(startDate time.Time, loc *time.Location, schedule gate.Schedule, now time.Time, windowDays int) []UpcomingGate {
	if windowDays < 0 {
		windowDays = 0
	}
	today := CurrentDay(startDate, loc, now)

	var out []UpcomingGate
	for _, e := range schedule.Entries() {
		until := e.Day - today
		if until < 0 || until > windowDays {
			continue
		}
		out = append(out, UpcomingGate{
			Gate:      e.Gate,
			Day:       e.Day,
			Date:      DateOfDay(startDate, loc, e.Day),
			DaysUntil: until,
		})
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is the full calendar view of a cohort at one instant.
type Snapshot struct {
	Day        int         `json:"day"`
	Phase      Phase       `json:"phase"`
	Today      time.Time   `json:"today"`
	Milestones []Milestone `json:"milestones"`
}

// Compute builds a Snapshot.
func Compute(startDate time.Time, loc *time.Location, schedule gate.Schedule, now time.Time) Snapshot {
	day := CurrentDay(startDate, loc, now)
	return Snapshot{
		Day:        day,
		Phase:      PhaseForDay(day),
		Today:      timeutil.StartOfDay(now, loc),
		Milestones: Milestones(startDate, loc, schedule),
	}
}
