package participant

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/audit"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// Participant is the role a user holds inside one cohort.
// PausedAt, PauseReason, GraduatedAt and ExitedAt are derived from the
// transition log and are never set directly.
type Participant struct {
	ID             string
	UserID         string
	CohortID       string
	LifecycleState LifecycleState
	PausedAt       *time.Time
	PauseReason    string
	GraduatedAt    *time.Time
	ExitedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// New admits a participant in the initial state.
func New(id, userID, cohortID string, now time.Time) (*Participant, error) {
	if _, err := shared.NewParticipantID(id); err != nil {
		return nil, err
	}
	return &Participant{
		ID:             id,
		UserID:         userID,
		CohortID:       cohortID,
		LifecycleState: InitialState,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// HasCohort reports whether the participant is attached to a cohort.
func (p *Participant) HasCohort() bool {
	return p.CohortID != ""
}

// TransitionLogEntry is one immutable row of the audit trail.
type TransitionLogEntry struct {
	ID                      string
	ParticipantID           string
	FromState               LifecycleState
	ToState                 LifecycleState
	Reason                  string
	TriggeredBy             shared.Actor
	RelatedGateEvaluationID string
	CreatedAt               time.Time
}

// TransitionRequest asks for one lifecycle change.
type TransitionRequest struct {
	ParticipantID       string
	ToState             LifecycleState
	Reason              string
	TriggeredBy         shared.Actor
	RelatedEvaluationID string

	// Decision is stored in the same unit of work as the transition, so a
	// terminal decision and its audit row commit or fail together.
	Decision *audit.DecisionRecord
}

// Validate checks the request independent of current state.
func (r TransitionRequest) Validate() error {
	if r.ParticipantID == "" {
		return shared.NewDomainError("participant", "Transition", shared.ErrInvalidID, "participant id is required")
	}
	if !r.ToState.IsValid() {
		return shared.NewDomainError("participant", "Transition", shared.ErrInvalidInput, fmt.Sprintf("unknown target state %q", r.ToState))
	}
	if strings.TrimSpace(string(r.TriggeredBy)) == "" {
		return shared.NewDomainError("participant", "Transition", shared.ErrInvalidInput, "triggeredBy is required")
	}
	if r.ToState == StatePaused && strings.TrimSpace(r.Reason) == "" {
		return shared.NewDomainError("participant", "Transition", shared.ErrInvalidInput, "a reason is required to pause")
	}
	if r.Decision != nil && !r.ToState.IsTerminal() {
		return shared.NewDomainError("participant", "Transition", shared.ErrInvalidInput,
			fmt.Sprintf("a decision record needs a terminal target, not %s", r.ToState))
	}
	return nil
}

// DecisionFor returns the decision record to store with entry. The record is
// bound to entry's participant and log id.
func (r TransitionRequest) DecisionFor(entry TransitionLogEntry) (audit.DecisionRecord, bool) {
	if r.Decision == nil {
		return audit.DecisionRecord{}, false
	}
	rec := *r.Decision
	rec.ParticipantID = entry.ParticipantID
	rec.TransitionLogID = entry.ID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = entry.CreatedAt
	}
	return rec, true
}

// Plan validates req against current and returns the participant as it will
// be after the transition plus the log entry to append. current is not modified.
// Storage implementations call Plan inside their unit of work so the check
// runs against the locked row.
func Plan(current *Participant, req TransitionRequest, logID string, now time.Time) (*Participant, TransitionLogEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, TransitionLogEntry{}, err
	}

	from := current.LifecycleState
	if from.IsTerminal() {
		return nil, TransitionLogEntry{}, shared.WrapError("participant", "Transition", shared.ErrInvalidTransition,
			fmt.Sprintf("%s is terminal", from), shared.ErrTerminalState)
	}
	if !from.CanTransitionTo(req.ToState) {
		return nil, TransitionLogEntry{}, shared.NewDomainError("participant", "Transition", shared.ErrInvalidTransition,
			fmt.Sprintf("%s -> %s is not allowed", from, req.ToState))
	}

	next := *current
	next.LifecycleState = req.ToState
	next.UpdatedAt = now

	if from == StatePaused {
		next.PausedAt = nil
		next.PauseReason = ""
	}
	switch req.ToState {
	case StatePaused:
		at := now
		next.PausedAt = &at
		next.PauseReason = req.Reason
	case StateGraduated:
		at := now
		next.GraduatedAt = &at
	case StateExited:
		at := now
		next.ExitedAt = &at
	}

	entry := TransitionLogEntry{
		ID:                      logID,
		ParticipantID:           current.ID,
		FromState:               from,
		ToState:                 req.ToState,
		Reason:                  req.Reason,
		TriggeredBy:             req.TriggeredBy,
		RelatedGateEvaluationID: req.RelatedEvaluationID,
		CreatedAt:               now,
	}
	return &next, entry, nil
}

// Replay folds a transition log, oldest first, into the state it implies.
// It returns an error if consecutive entries do not chain.
func Replay(entries []TransitionLogEntry) (LifecycleState, error) {
	state := InitialState
	for i, e := range entries {
		if e.FromState != state {
			return "", fmt.Errorf("log entry %d (%s): from %s, expected %s", i, e.ID, e.FromState, state)
		}
		state = e.ToState
	}
	return state, nil
}
