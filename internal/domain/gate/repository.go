package gate

import (
	"context"
	"time"
)

// Repository stores gate evaluations and their resolutions.
type Repository interface {
	// Record inserts a new evaluation. The store enforces uniqueness of
	// (participant, cohort, gate type); a conflict returns ErrDuplicateGate.
	Record(ctx context.Context, e *Evaluation) error

	// Exists reports whether an evaluation exists for the key.
	Exists(ctx context.Context, key Key) (bool, error)

	// GetByID returns ErrEvaluationNotFound when absent.
	GetByID(ctx context.Context, id string) (*Evaluation, error)

	// ListByParticipant returns every evaluation of a participant, oldest first.
	ListByParticipant(ctx context.Context, participantID string) ([]*Evaluation, error)

	// ListByCohort returns the evaluations of a cohort. An empty gate type
	// returns all gates.
	ListByCohort(ctx context.Context, cohortID string, gateType Type) ([]*Evaluation, error)

	// CountUnresolved counts a participant's unresolved evaluations with any
	// of the given results.
	CountUnresolved(ctx context.Context, participantID string, results ...Result) (int, error)

	// OldestUnresolvedBefore returns the oldest unresolved evaluation with the
	// given result evaluated at or before cutoff, or nil.
	OldestUnresolvedBefore(ctx context.Context, participantID string, result Result, cutoff time.Time) (*Evaluation, error)

	// Resolve appends a resolution. A second resolution for the same
	// evaluation returns ErrAlreadyResolved.
	Resolve(ctx context.Context, r Resolution) error
}
