package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/gate"
)

func almaty(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)
	return loc
}

func TestCurrentDay(t *testing.T) {
	loc := almaty(t)
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, loc)

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"start midnight", start, 1},
		{"start evening", start.Add(23*time.Hour + 59*time.Minute), 1},
		{"second day", start.Add(24 * time.Hour), 2},
		{"day before", start.Add(-time.Hour), 0},
		{"week before", start.AddDate(0, 0, -7), -6},
		{"day ninety", start.AddDate(0, 0, 89).Add(10 * time.Hour), 90},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CurrentDay(start, loc, tt.now))
		})
	}
}

func TestCurrentDayUsesCohortTimezone(t *testing.T) {
	loc := almaty(t)
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, loc)

	// 20:00 UTC on Jan 10 is already 01:00 on Jan 11 in Almaty.
	now := time.Date(2026, 1, 10, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, CurrentDay(start, loc, now))
}

func TestCurrentDayStableWithinDayAndMonotonic(t *testing.T) {
	loc := almaty(t)
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, loc)

	prev := CurrentDay(start, loc, start.AddDate(0, 0, -3))
	for h := -72; h < 24*100; h++ {
		now := start.Add(time.Duration(h) * time.Hour)
		day := CurrentDay(start, loc, now)
		assert.GreaterOrEqual(t, day, prev)
		assert.Equal(t, day, CurrentDay(start, loc, now.Add(-time.Duration(now.In(loc).Hour())*time.Hour)))
		prev = day
	}
}

func TestPhaseForDay(t *testing.T) {
	cases := map[int]Phase{
		-5: PhasePreCohort,
		0:  PhasePreCohort,
		1:  PhaseTraining,
		42: PhaseTraining,
		43: PhaseMarket,
		69: PhaseMarket,
		70: PhaseIncome,
		90: PhaseIncome,
		91: PhaseExit,
	}
	for day, want := range cases {
		assert.Equal(t, want, PhaseForDay(day), "day %d", day)
	}
}

func TestMilestones(t *testing.T) {
	loc := almaty(t)
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, loc)

	ms := Milestones(start, loc, gate.DefaultSchedule())

	var gates []Milestone
	for i, m := range ms {
		if i > 0 {
			assert.LessOrEqual(t, ms[i-1].Day, m.Day)
		}
		if m.Kind == MilestoneGate {
			gates = append(gates, m)
		}
	}
	require.Len(t, gates, 4)
	assert.Equal(t, start, gates[0].Date)
	assert.Equal(t, time.Date(2026, 2, 8, 0, 0, 0, 0, loc), gates[1].Date)
	assert.Equal(t, gate.TypeIncome, gates[3].Gate)

	assert.Equal(t, MilestoneApplicationOpens, ms[0].Kind)
	assert.Equal(t, start.AddDate(0, 0, -29), ms[0].Date)
}

func TestUpcomingGates(t *testing.T) {
	loc := almaty(t)
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, loc)
	now := start.AddDate(0, 0, 25).Add(15 * time.Hour) // day 26

	up := UpcomingGates(start, loc, gate.DefaultSchedule(), now, 7)
	require.Len(t, up, 1)
	assert.Equal(t, gate.TypeSellableSkill, up[0].Gate)
	assert.Equal(t, 4, up[0].DaysUntil)

	assert.Empty(t, UpcomingGates(start, loc, gate.DefaultSchedule(), now, 3))

	today := UpcomingGates(start, loc, gate.DefaultSchedule(), start.Add(time.Hour), 0)
	require.Len(t, today, 1)
	assert.Equal(t, 0, today[0].DaysUntil)
}

func TestCompute(t *testing.T) {
	loc := almaty(t)
	start := time.Date(2026, 1, 10, 0, 0, 0, 0, loc)

	snap := Compute(start, loc, gate.DefaultSchedule(), start.AddDate(0, 0, 50))
	assert.Equal(t, 51, snap.Day)
	assert.Equal(t, PhaseMarket, snap.Phase)
	assert.NotEmpty(t, snap.Milestones)
}
