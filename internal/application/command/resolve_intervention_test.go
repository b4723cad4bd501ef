package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

func TestResolveIntervention(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 30)
	h.admit(t, "p1", "c1")
	_, err := h.gates.ExecuteNow(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, participant.StateAtRisk, h.get(t, "p1").LifecycleState)

	evs, err := h.store.Gates().ListByParticipant(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, evs, 1)
	logged := len(h.history(t, "p1"))

	ev, err := h.resolver.Handle(context.Background(), ResolveInterventionCommand{
		EvaluationID: evs[0].ID,
		Actor:        "coach@example.org",
		Note:         "  paired with a mentor ",
	})
	require.NoError(t, err)
	require.True(t, ev.IsResolved())
	assert.Equal(t, "paired with a mentor", ev.Resolution.Note)
	assert.Equal(t, "coach@example.org", ev.Resolution.ResolvedBy)

	stored, err := h.store.Gates().GetByID(context.Background(), evs[0].ID)
	require.NoError(t, err)
	assert.True(t, stored.IsResolved())
	assert.Equal(t, gate.ResultInterventionRequired, stored.Result, "result is immutable")

	// Resolution does not move lifecycle state.
	assert.Equal(t, participant.StateAtRisk, h.get(t, "p1").LifecycleState)
	assert.Len(t, h.history(t, "p1"), logged)
	assert.Len(t, h.events.ofType(shared.EventInterventionResolved), 1)

	_, err = h.resolver.Handle(context.Background(), ResolveInterventionCommand{EvaluationID: evs[0].ID, Actor: "other@example.org"})
	assert.True(t, errors.Is(err, shared.ErrAlreadyResolved))
}

func TestResolveRejectsFailAndSystemActor(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 90)
	h.admit(t, "p1", "c1")
	recordEvaluation(t, h, "fail", "p1", "c1", gate.TypeIncome, gate.ResultFail)
	recordEvaluation(t, h, "iv", "p1", "c1", gate.TypeBaseline, gate.ResultInterventionRequired)

	_, err := h.resolver.Handle(context.Background(), ResolveInterventionCommand{EvaluationID: "fail", Actor: "coach@example.org"})
	assert.True(t, shared.IsPreconditionUnmet(err))

	_, err = h.resolver.Handle(context.Background(), ResolveInterventionCommand{EvaluationID: "iv", Actor: shared.SystemActor})
	assert.True(t, shared.IsPreconditionUnmet(err))

	_, err = h.resolver.Handle(context.Background(), ResolveInterventionCommand{EvaluationID: "nope", Actor: "coach@example.org"})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.resolver.Handle(context.Background(), ResolveInterventionCommand{Actor: "coach@example.org"})
	assert.True(t, shared.IsValidation(err))

	n, err := h.store.Gates().CountUnresolved(context.Background(), "p1", gate.ResultFail)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
