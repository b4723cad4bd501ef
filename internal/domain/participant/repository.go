package participant

import (
	"context"
	"time"
)

// Repository is the read side of participant storage plus admission.
// It deliberately has no method that sets LifecycleState.
type Repository interface {
	// Create admits a participant. Returns ErrAlreadyExists on duplicate ID.
	Create(ctx context.Context, p *Participant) error

	// GetByID returns ErrParticipantNotFound when absent.
	GetByID(ctx context.Context, id string) (*Participant, error)

	// ListByCohort returns cohort members in any of the given states.
	// No states means all states.
	ListByCohort(ctx context.Context, cohortID string, states ...LifecycleState) ([]*Participant, error)

	// ListByState returns participants across cohorts in any of the given states.
	ListByState(ctx context.Context, states ...LifecycleState) ([]*Participant, error)

	// History returns the transition log of a participant, oldest first.
	History(ctx context.Context, participantID string) ([]TransitionLogEntry, error)
}

// StateStore is the single writer of lifecycle state.
type StateStore interface {
	// ApplyTransition loads the participant under a lock, runs Plan, then
	// writes the new state and appends the log entry in one unit of work.
	// Either both become visible or neither does.
	ApplyTransition(ctx context.Context, req TransitionRequest, logID string, now time.Time) (Outcome, error)
}

// Outcome reports what ApplyTransition committed.
type Outcome struct {
	Participant *Participant
	Entry       TransitionLogEntry
}
