package command

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATE AUTHORITY
// The only writer of lifecycle state. Other handlers request transitions
// through it; the adjacency check and the atomic state+log write live in
// participant.Plan and StateStore.ApplyTransition.
// ══════════════════════════════════════════════════════════════════════════════

// StateAuthority executes lifecycle transitions.
type StateAuthority interface {
	// Transition validates and commits one transition. A rejected transition
	// returns a result with Success false and the classifying error.
	Transition(ctx context.Context, req participant.TransitionRequest) (TransitionResult, error)

	// RequestTransition is the entry point for other components. It behaves
	// exactly like Transition; policy hooks such as approval belong here.
	RequestTransition(ctx context.Context, req participant.TransitionRequest) (TransitionResult, error)
}

// TransitionResult reports the outcome of one transition.
type TransitionResult struct {
	Success       bool                       `json:"success"`
	ParticipantID string                     `json:"participant_id"`
	FromState     participant.LifecycleState `json:"from_state,omitempty"`
	ToState       participant.LifecycleState `json:"to_state"`
	LogID         string                     `json:"log_id,omitempty"`
	Reason        string                     `json:"reason,omitempty"`
}

// Authority implements StateAuthority over a participant.StateStore.
type Authority struct {
	store   participant.StateStore
	events  shared.EventPublisher
	metrics Metrics
	clock   timeutil.Clock
	logger  *slog.Logger
	newID   func() string
}

// NewAuthority creates the state authority. events, metrics and logger may be nil.
func NewAuthority(
	store participant.StateStore,
	events shared.EventPublisher,
	metrics Metrics,
	clock timeutil.Clock,
	logger *slog.Logger,
) *Authority {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &Authority{
		store:   store,
		events:  orNopPublisher(events),
		metrics: orNopMetrics(metrics),
		clock:   clock,
		logger:  orDefaultLogger(logger, "state_authority"),
		newID:   uuid.NewString,
	}
}

// Transition implements StateAuthority.
func (a *Authority) Transition(ctx context.Context, req participant.TransitionRequest) (TransitionResult, error) {
	result := TransitionResult{ParticipantID: req.ParticipantID, ToState: req.ToState}

	now := a.clock.Now().UTC()
	out, err := a.store.ApplyTransition(ctx, req, a.newID(), now)
	if err != nil {
		result.Reason = err.Error()
		level := slog.LevelWarn
		if shared.IsPersistence(err) {
			level = slog.LevelError
		}
		a.logger.Log(ctx, level, "transition rejected",
			"participant_id", req.ParticipantID,
			"to_state", req.ToState,
			"triggered_by", req.TriggeredBy,
			"error", err,
		)
		return result, err
	}

	entry := out.Entry
	result.Success = true
	result.FromState = entry.FromState
	result.LogID = entry.ID
	result.Reason = entry.Reason

	a.metrics.StateTransitioned(ctx, string(entry.FromState), string(entry.ToState))
	a.logger.Info("transition committed",
		"participant_id", entry.ParticipantID,
		"from", entry.FromState,
		"to", entry.ToState,
		"triggered_by", entry.TriggeredBy,
		"log_id", entry.ID,
	)

	// Published after commit; a failing subscriber cannot undo the transition.
	event := shared.NewParticipantStateChangedEvent(
		entry.ParticipantID,
		out.Participant.CohortID,
		string(entry.FromState),
		string(entry.ToState),
		entry.Reason,
		string(entry.TriggeredBy),
		entry.ID,
		now,
	)
	if err := a.events.Publish(event); err != nil {
		a.logger.Warn("publish state change", "participant_id", entry.ParticipantID, "error", err)
	}

	return result, nil
}

// RequestTransition implements StateAuthority.
func (a *Authority) RequestTransition(ctx context.Context, req participant.TransitionRequest) (TransitionResult, error) {
	return a.Transition(ctx, req)
}

var _ StateAuthority = (*Authority)(nil)
