package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

var now = time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)

// seedCohort creates a cohort whose day at now is day.
func seedCohort(t *testing.T, s *memory.Store, id string, day int) {
	t.Helper()
	c, err := cohort.NewCohort(cohort.NewCohortParams{
		ID:        id,
		Name:      "Cohort " + id,
		StartDate: now.AddDate(0, 0, -(day - 1)),
		Timezone:  "UTC",
	}, now.AddDate(0, 0, -(day - 1)))
	require.NoError(t, err)
	require.NoError(t, s.Cohorts().Create(context.Background(), c))
}

type mapCache struct {
	entries map[string]calendar.Snapshot
	gets    int
	getErr  error
}

func (m *mapCache) Get(_ context.Context, cohortID, date string) (calendar.Snapshot, bool, error) {
	m.gets++
	if m.getErr != nil {
		return calendar.Snapshot{}, false, m.getErr
	}
	snap, ok := m.entries[cohortID+"/"+date]
	return snap, ok, nil
}

func (m *mapCache) Put(_ context.Context, cohortID, date string, snap calendar.Snapshot) error {
	if m.entries == nil {
		m.entries = map[string]calendar.Snapshot{}
	}
	m.entries[cohortID+"/"+date] = snap
	return nil
}

func TestListCohortsRecomputesDay(t *testing.T) {
	s := memory.NewStore()
	seedCohort(t, s, "spring", 44)
	seedCohort(t, s, "old", 200)
	require.NoError(t, s.Cohorts().SetActive(context.Background(), "old", false, now))

	q := NewCohortQueries(s.Cohorts(), gate.Schedule{}, nil, timeutil.FixedClock{T: now}, nil)

	all, err := q.ListCohorts(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := q.ListCohorts(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 44, active[0].Day)
	assert.Equal(t, calendar.PhaseMarket, active[0].Phase)
	// Stored values are from creation, day 1.
	assert.Equal(t, 1, active[0].StoredDay)
	assert.Equal(t, "2026-04-07", active[0].StartDate)
}

func TestCalendarReadsThroughCache(t *testing.T) {
	s := memory.NewStore()
	seedCohort(t, s, "c1", 30)
	cache := &mapCache{}
	q := NewCohortQueries(s.Cohorts(), gate.Schedule{}, cache, timeutil.FixedClock{T: now}, nil)

	first, err := q.Calendar(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 30, first.Calendar.Day)
	assert.NotEmpty(t, first.Calendar.Milestones)
	require.Contains(t, cache.entries, "c1/2026-05-20")

	second, err := q.Calendar(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Calendar.Day, second.Calendar.Day)

	_, err = q.Calendar(context.Background(), "missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestCalendarSurvivesCacheErrors(t *testing.T) {
	s := memory.NewStore()
	seedCohort(t, s, "c1", 5)
	q := NewCohortQueries(s.Cohorts(), gate.Schedule{}, &mapCache{getErr: errors.New("timeout")}, timeutil.FixedClock{T: now}, nil)

	view, err := q.Calendar(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, view.Cached)
	assert.Equal(t, 5, view.Calendar.Day)
}

func TestUpcomingGates(t *testing.T) {
	s := memory.NewStore()
	seedCohort(t, s, "c1", 25)
	q := NewCohortQueries(s.Cohorts(), gate.Schedule{}, nil, timeutil.FixedClock{T: now}, nil)

	view, err := q.UpcomingGates(context.Background(), "c1", 7)
	require.NoError(t, err)
	assert.Equal(t, 25, view.Day)
	require.Len(t, view.Gates, 1)
	assert.Equal(t, gate.TypeSellableSkill, view.Gates[0].Gate)
	assert.Equal(t, 5, view.Gates[0].DaysUntil)

	view, err = q.UpcomingGates(context.Background(), "c1", 2)
	require.NoError(t, err)
	assert.Empty(t, view.Gates)
	assert.NotNil(t, view.Gates)

	_, err = q.UpcomingGates(context.Background(), "c1", -1)
	assert.True(t, shared.IsValidation(err))
	_, err = q.UpcomingGates(context.Background(), "c1", 365)
	assert.True(t, shared.IsValidation(err))
}

func record(t *testing.T, s *memory.Store, id, pid string, gt gate.Type, result gate.Result, day int) {
	t.Helper()
	ev, err := gate.NewEvaluation(id, gate.Key{ParticipantID: pid, CohortID: "c1", GateType: gt}, day,
		gate.Outcome{Result: result, Evidence: map[string]bool{"ok": result == gate.ResultPass}}, now.AddDate(0, 0, day-60))
	require.NoError(t, err)
	require.NoError(t, s.Gates().Record(context.Background(), ev))
}

func TestListGateResults(t *testing.T) {
	s := memory.NewStore()
	seedCohort(t, s, "c1", 60)
	record(t, s, "e1", "a", gate.TypeBaseline, gate.ResultPass, 1)
	record(t, s, "e2", "b", gate.TypeBaseline, gate.ResultInterventionRequired, 1)
	record(t, s, "e3", "a", gate.TypeSellableSkill, gate.ResultInterventionRequired, 30)
	require.NoError(t, s.Gates().Resolve(context.Background(), gate.Resolution{EvaluationID: "e3", ResolvedBy: "coach@example.org", ResolvedAt: now}))

	q := NewGateQueries(s.Cohorts(), s.Gates())

	view, err := q.ListResults(context.Background(), ListGateResultsQuery{CohortID: "c1"})
	require.NoError(t, err)
	require.Len(t, view.Evaluations, 3)
	assert.Equal(t, 1, view.Totals[gate.ResultPass])
	assert.Equal(t, 2, view.Totals[gate.ResultInterventionRequired])
	assert.Equal(t, 1, view.Unresolved)
	assert.Equal(t, 30, view.Evaluations[2].ProgramDay)
	require.NotNil(t, view.Evaluations[2].Resolution)
	assert.JSONEq(t, `{"ok":false}`, string(view.Evaluations[2].Evidence))

	view, err = q.ListResults(context.Background(), ListGateResultsQuery{CohortID: "c1", GateType: "BASELINE", Result: "PASS"})
	require.NoError(t, err)
	require.Len(t, view.Evaluations, 1)
	assert.Equal(t, "a", view.Evaluations[0].ParticipantID)

	_, err = q.ListResults(context.Background(), ListGateResultsQuery{CohortID: "c1", GateType: "DAY_45"})
	assert.True(t, shared.IsValidation(err))

	_, err = q.ListResults(context.Background(), ListGateResultsQuery{CohortID: "nope"})
	assert.True(t, shared.IsNotFound(err))
}

func transition(t *testing.T, s *memory.Store, id string, to participant.LifecycleState, at time.Time) {
	t.Helper()
	_, err := s.Participants().ApplyTransition(context.Background(), participant.TransitionRequest{
		ParticipantID: id,
		ToState:       to,
		Reason:        "test " + string(to),
		TriggeredBy:   "coach@example.org",
	}, "log-"+id+"-"+string(to), at)
	require.NoError(t, err)
}

func TestGetParticipant(t *testing.T) {
	s := memory.NewStore()
	seedCohort(t, s, "c1", 60)
	p, err := participant.New("p1", "u1", "c1", now.AddDate(0, -3, 0))
	require.NoError(t, err)
	require.NoError(t, s.Participants().Create(context.Background(), p))
	transition(t, s, "p1", participant.StateAtRisk, now.AddDate(0, 0, -10))
	transition(t, s, "p1", participant.StatePaused, now.AddDate(0, 0, -3))
	record(t, s, "e1", "p1", gate.TypeBaseline, gate.ResultPass, 1)

	q := NewParticipantQueries(s.Participants(), s.Gates(), s.Audit(), timeutil.FixedClock{T: now})
	view, err := q.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, participant.StatePaused, view.LifecycleState)
	require.NotNil(t, view.PausedAt)
	require.Len(t, view.History, 2)
	assert.Equal(t, participant.StateActive, view.History[0].FromState)
	assert.Equal(t, "coach@example.org", view.History[1].TriggeredBy)
	assert.ElementsMatch(t, []participant.LifecycleState{participant.StateActive, participant.StateAtRisk, participant.StateExited}, view.AllowedNext)
	assert.Len(t, view.Evaluations, 1)
	assert.Empty(t, view.Decisions)

	_, err = q.Get(context.Background(), "ghost")
	assert.True(t, shared.IsNotFound(err))
}

func TestListPaused(t *testing.T) {
	s := memory.NewStore()
	seedCohort(t, s, "c1", 60)
	seedCohort(t, s, "c2", 20)
	for _, tc := range []struct {
		id, cohort string
		pausedAgo  int
	}{{"recent", "c1", 1}, {"long", "c1", 12}, {"other", "c2", 4}} {
		p, err := participant.New(tc.id, "u-"+tc.id, tc.cohort, now.AddDate(0, -2, 0))
		require.NoError(t, err)
		require.NoError(t, s.Participants().Create(context.Background(), p))
		transition(t, s, tc.id, participant.StatePaused, now.AddDate(0, 0, -tc.pausedAgo))
	}

	q := NewParticipantQueries(s.Participants(), s.Gates(), s.Audit(), timeutil.FixedClock{T: now})

	all, err := q.ListPaused(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "long", all[0].ParticipantID)
	assert.Equal(t, 12, all[0].DaysPaused)

	c1, err := q.ListPaused(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, c1, 2)
}
