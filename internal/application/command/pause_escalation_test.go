package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/domain/signals"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/memory"
)

const oneDay = 24 * time.Hour

func TestLowMomentumPausesAndHumanReactivates(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 20)
	h.admit(t, "p1", "c1")
	h.signals.AddMomentum(memory.LedgerEntry{ParticipantID: "p1", Amount: 30, At: testNow.Add(-2 * oneDay)})
	h.signals.AddMomentum(memory.LedgerEntry{ParticipantID: "p1", Amount: 10, At: testNow.Add(-6 * oneDay)})
	// Outside the 7-day window.
	h.signals.AddMomentum(memory.LedgerEntry{ParticipantID: "p1", Amount: 500, At: testNow.Add(-9 * oneDay)})
	h.signals.AddMission(memory.MissionRecord{ParticipantID: "p1", AssignedAt: testNow.Add(-oneDay)})

	sum, err := h.pauses.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Checked)
	assert.Equal(t, 1, sum.PausedMomentum)
	assert.Zero(t, sum.PausedInactivity)

	p := h.get(t, "p1")
	assert.Equal(t, participant.StatePaused, p.LifecycleState)
	require.NotNil(t, p.PausedAt)
	assert.Contains(t, p.PauseReason, "momentum 40")
	assert.Contains(t, p.PauseReason, "threshold of 50")
	assert.Equal(t, 1, h.metrics.pauses[string(TriggerMomentum)])

	res, err := h.pauses.Reactivate(context.Background(), "p1", "coach@example.org", "back on track")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, participant.StatePaused, res.FromState)

	p = h.get(t, "p1")
	assert.Equal(t, participant.StateActive, p.LifecycleState)
	assert.Nil(t, p.PausedAt)
	assert.Empty(t, p.PauseReason)
	h.requireReplayMatches(t, "p1")
}

func TestInactivityPause(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 40)
	h.admit(t, "p1", "c1")
	h.signals.AddMomentum(memory.LedgerEntry{ParticipantID: "p1", Amount: 100, At: testNow.Add(-oneDay)})
	h.signals.AddMission(memory.MissionRecord{ParticipantID: "p1", AssignedAt: testNow.Add(-20 * oneDay)})

	sum, err := h.pauses.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PausedInactivity)
	assert.Contains(t, h.get(t, "p1").PauseReason, "14 days")
}

func TestCheckinCountsAsActivity(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 40)
	h.admit(t, "p1", "c1")
	h.signals.AddMomentum(memory.LedgerEntry{ParticipantID: "p1", Amount: 100, At: testNow.Add(-oneDay)})
	h.signals.AddBehavior(memory.BehaviorEntry{ParticipantID: "p1", Tag: signals.TagCheckin, At: testNow.Add(-3 * oneDay)})

	sum, err := h.pauses.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Paused())
	assert.Equal(t, participant.StateActive, h.get(t, "p1").LifecycleState)
}

func TestStaleInterventionPause(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 1)
	h.admit(t, "stale", "c1")
	h.admit(t, "resolved", "c1")

	_, err := h.gates.ExecuteNow(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, participant.StateAtRisk, h.get(t, "stale").LifecycleState)

	evs, err := h.store.Gates().ListByParticipant(context.Background(), "resolved")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	_, err = h.resolver.Handle(context.Background(), ResolveInterventionCommand{EvaluationID: evs[0].ID, Actor: "coach@example.org"})
	require.NoError(t, err)

	h.advance(8 * oneDay)
	h.engaged("stale")
	h.engaged("resolved")

	sum, err := h.pauses.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Checked)
	assert.Equal(t, 1, sum.PausedStaleGate)

	p := h.get(t, "stale")
	assert.Equal(t, participant.StatePaused, p.LifecycleState)
	assert.Contains(t, p.PauseReason, "BASELINE")
	log := h.history(t, "stale")
	assert.NotEmpty(t, log[len(log)-1].RelatedGateEvaluationID)

	assert.Equal(t, participant.StateAtRisk, h.get(t, "resolved").LifecycleState)
}

func TestPauseChecksShortCircuit(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 40)
	// Low momentum and inactive: only the first check counts.
	h.admit(t, "p1", "c1")

	sum, err := h.pauses.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sum.PausedMomentum)
	assert.Zero(t, sum.PausedInactivity)
	assert.Len(t, h.history(t, "p1"), 1)

	// Already paused: not checked again.
	sum, err = h.pauses.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Checked)
}

func TestPauseSkipsParticipantsWithoutCohort(t *testing.T) {
	h := newHarness(t)
	h.admit(t, "loose", "")

	sum, err := h.pauses.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Checked)
}

func TestReactivateRequiresHumanAndPaused(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 20)
	h.admitIn(t, "paused", "c1", participant.StatePaused)
	h.admit(t, "active", "c1")

	for _, actor := range []shared.Actor{shared.SystemActor, "", "  system "} {
		_, err := h.pauses.Reactivate(context.Background(), "paused", actor, "")
		assert.True(t, shared.IsPreconditionUnmet(err), "actor %q", actor)
	}
	assert.Equal(t, participant.StatePaused, h.get(t, "paused").LifecycleState)

	res, err := h.pauses.Reactivate(context.Background(), "active", "coach@example.org", "")
	assert.True(t, shared.IsPreconditionUnmet(err))
	assert.False(t, res.Success)

	_, err = h.pauses.Reactivate(context.Background(), "ghost", "coach@example.org", "")
	assert.True(t, shared.IsNotFound(err))
}
