package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

func TestAuthorityTransitionCommitsStateAndLog(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 10)
	h.admit(t, "p1", "c1")

	res, err := h.authority.Transition(context.Background(), participant.TransitionRequest{
		ParticipantID: "p1",
		ToState:       participant.StatePaused,
		Reason:        "on leave",
		TriggeredBy:   "coach@example.org",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, participant.StateActive, res.FromState)
	assert.Equal(t, participant.StatePaused, res.ToState)
	assert.NotEmpty(t, res.LogID)

	p := h.get(t, "p1")
	assert.Equal(t, participant.StatePaused, p.LifecycleState)
	require.NotNil(t, p.PausedAt)
	assert.Equal(t, "on leave", p.PauseReason)

	log := h.history(t, "p1")
	require.Len(t, log, 1)
	assert.Equal(t, res.LogID, log[0].ID)
	assert.Equal(t, shared.Actor("coach@example.org"), log[0].TriggeredBy)

	require.Len(t, h.events.ofType(shared.EventParticipantStateChanged), 1)
	assert.Equal(t, 1, h.metrics.transitions)
}

func TestAuthorityRejectsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 10)
	h.admitIn(t, "p1", "c1", participant.StatePaused)
	before := len(h.history(t, "p1"))

	res, err := h.authority.RequestTransition(context.Background(), participant.TransitionRequest{
		ParticipantID: "p1",
		ToState:       participant.StateGraduated,
		Reason:        "skip ahead",
		TriggeredBy:   shared.SystemActor,
	})
	require.Error(t, err)
	assert.True(t, shared.IsInvalidTransition(err))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Reason)

	assert.Equal(t, participant.StatePaused, h.get(t, "p1").LifecycleState)
	assert.Len(t, h.history(t, "p1"), before, "rejected transition must not be logged")
}

func TestAuthorityUnknownParticipant(t *testing.T) {
	h := newHarness(t)

	res, err := h.authority.Transition(context.Background(), participant.TransitionRequest{
		ParticipantID: "ghost",
		ToState:       participant.StateAtRisk,
		TriggeredBy:   shared.SystemActor,
	})
	assert.True(t, shared.IsNotFound(err))
	assert.False(t, res.Success)
}

func TestTerminalStatesHaveNoOutgoingTransitions(t *testing.T) {
	for _, terminal := range []participant.LifecycleState{participant.StateGraduated, participant.StateExited} {
		t.Run(string(terminal), func(t *testing.T) {
			h := newHarness(t)
			h.cohortAtDay(t, "c1", 95)
			h.admitIn(t, "p1", "c1", terminal)
			logged := len(h.history(t, "p1"))

			for _, to := range participant.AllStates {
				_, err := h.authority.Transition(context.Background(), participant.TransitionRequest{
					ParticipantID: "p1",
					ToState:       to,
					Reason:        "attempt",
					TriggeredBy:   "admin@example.org",
				})
				assert.Error(t, err, "%s -> %s", terminal, to)
			}
			assert.Len(t, h.history(t, "p1"), logged)
			h.requireReplayMatches(t, "p1")
		})
	}
}

func TestLogReplayMatchesStateAcrossTransitions(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 50)
	h.admit(t, "p1", "c1")

	steps := []participant.LifecycleState{
		participant.StateAtRisk,
		participant.StatePaused,
		participant.StateActive,
		participant.StatePaused,
		participant.StateAtRisk,
		participant.StateExited,
	}
	for _, to := range steps {
		_, err := h.authority.Transition(context.Background(), participant.TransitionRequest{
			ParticipantID: "p1",
			ToState:       to,
			Reason:        "step",
			TriggeredBy:   "coach@example.org",
		})
		require.NoError(t, err)
		h.requireReplayMatches(t, "p1")
	}
	assert.Len(t, h.history(t, "p1"), len(steps))
}
