package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements participant.Repository and
// participant.StateStore for PostgreSQL.
type ParticipantRepository struct {
	conn *Connection
}

// NewParticipantRepository creates a new ParticipantRepository.
func NewParticipantRepository(conn *Connection) *ParticipantRepository {
	return &ParticipantRepository{conn: conn}
}

const participantColumns = `id, user_id, cohort_id, lifecycle_state, paused_at, pause_reason,
	graduated_at, exited_at, created_at, updated_at`

// Create admits a participant.
func (r *ParticipantRepository) Create(ctx context.Context, p *participant.Participant) error {
	query := `
		INSERT INTO participants (` + participantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.conn.Exec(ctx, query,
		p.ID,
		p.UserID,
		nullableText(p.CohortID),
		string(p.LifecycleState),
		p.PausedAt,
		p.PauseReason,
		p.GraduatedAt,
		p.ExitedAt,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("participant", "Create", shared.ErrAlreadyExists, "participant already exists")
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrCohortNotFound
		}
		return shared.WrapError("participant", "Create", shared.ErrPersistenceFailure, "insert participant", err)
	}
	return nil
}

// GetByID returns a participant by ID.
func (r *ParticipantRepository) GetByID(ctx context.Context, id string) (*participant.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1`

	p, err := scanParticipant(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrParticipantNotFound
		}
		return nil, shared.WrapError("participant", "GetByID", shared.ErrPersistenceFailure, "select participant", err)
	}
	return p, nil
}

// ListByCohort returns cohort members in any of the given states.
func (r *ParticipantRepository) ListByCohort(ctx context.Context, cohortID string, states ...participant.LifecycleState) ([]*participant.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE cohort_id = $1 AND (cardinality($2::text[]) = 0 OR lifecycle_state = ANY($2))
		ORDER BY id
	`
	return r.list(ctx, "ListByCohort", query, cohortID, stateNames(states))
}

// ListByState returns participants across cohorts in any of the given states.
func (r *ParticipantRepository) ListByState(ctx context.Context, states ...participant.LifecycleState) ([]*participant.Participant, error) {
	query := `
		SELECT ` + participantColumns + `
		FROM participants
		WHERE cardinality($1::text[]) = 0 OR lifecycle_state = ANY($1)
		ORDER BY cohort_id NULLS LAST, id
	`
	return r.list(ctx, "ListByState", query, stateNames(states))
}

func (r *ParticipantRepository) list(ctx context.Context, op, query string, args ...any) ([]*participant.Participant, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("participant", op, shared.ErrPersistenceFailure, "query participants", err)
	}
	defer rows.Close()

	var out []*participant.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, shared.WrapError("participant", op, shared.ErrPersistenceFailure, "scan participant", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("participant", op, shared.ErrPersistenceFailure, "iterate participants", err)
	}
	return out, nil
}

// History returns the transition log of a participant, oldest first.
func (r *ParticipantRepository) History(ctx context.Context, participantID string) ([]participant.TransitionLogEntry, error) {
	query := `
		SELECT id::text, participant_id, from_state, to_state, reason, triggered_by,
			   related_gate_evaluation_id::text, created_at
		FROM state_transition_log
		WHERE participant_id = $1
		ORDER BY seq
	`

	rows, err := r.conn.Query(ctx, query, participantID)
	if err != nil {
		return nil, shared.WrapError("participant", "History", shared.ErrPersistenceFailure, "query log", err)
	}
	defer rows.Close()

	var out []participant.TransitionLogEntry
	for rows.Next() {
		var (
			e         participant.TransitionLogEntry
			from, to  string
			actor     string
			relatedID *string
		)
		if err := rows.Scan(&e.ID, &e.ParticipantID, &from, &to, &e.Reason, &actor, &relatedID, &e.CreatedAt); err != nil {
			return nil, shared.WrapError("participant", "History", shared.ErrPersistenceFailure, "scan log", err)
		}
		e.FromState = participant.LifecycleState(from)
		e.ToState = participant.LifecycleState(to)
		e.TriggeredBy = shared.Actor(actor)
		if relatedID != nil {
			e.RelatedGateEvaluationID = *relatedID
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("participant", "History", shared.ErrPersistenceFailure, "iterate log", err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// State Store
// ─────────────────────────────────────────────────────────────────────────────

// ApplyTransition locks the participant row, validates the transition
// against the locked state, then updates the row and appends the log entry
// and the request's decision record in the same transaction.
func (r *ParticipantRepository) ApplyTransition(ctx context.Context, req participant.TransitionRequest, logID string, now time.Time) (participant.Outcome, error) {
	var out participant.Outcome

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		lockQuery := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1 FOR UPDATE`

		current, err := scanParticipant(tx.QueryRow(ctx, lockQuery, req.ParticipantID))
		if err != nil {
			if IsNoRows(err) {
				return shared.ErrParticipantNotFound
			}
			return shared.WrapError("participant", "ApplyTransition", shared.ErrPersistenceFailure, "lock participant", err)
		}

		next, entry, err := participant.Plan(current, req, logID, now)
		if err != nil {
			return err
		}

		updateQuery := `
			UPDATE participants SET
				lifecycle_state = $1,
				paused_at = $2,
				pause_reason = $3,
				graduated_at = $4,
				exited_at = $5,
				updated_at = $6
			WHERE id = $7
		`
		if _, err := tx.Exec(ctx, updateQuery,
			string(next.LifecycleState),
			next.PausedAt,
			next.PauseReason,
			next.GraduatedAt,
			next.ExitedAt,
			next.UpdatedAt,
			next.ID,
		); err != nil {
			return shared.WrapError("participant", "ApplyTransition", shared.ErrPersistenceFailure, "update state", err)
		}

		insertQuery := `
			INSERT INTO state_transition_log (
				id, participant_id, from_state, to_state, reason, triggered_by,
				related_gate_evaluation_id, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		if _, err := tx.Exec(ctx, insertQuery,
			entry.ID,
			entry.ParticipantID,
			string(entry.FromState),
			string(entry.ToState),
			entry.Reason,
			string(entry.TriggeredBy),
			nullableText(entry.RelatedGateEvaluationID),
			entry.CreatedAt,
		); err != nil {
			return shared.WrapError("participant", "ApplyTransition", shared.ErrPersistenceFailure, "append log", err)
		}

		if rec, ok := req.DecisionFor(entry); ok {
			if err := insertDecision(ctx, tx, rec); err != nil {
				return shared.WrapError("participant", "ApplyTransition", shared.ErrPersistenceFailure, "append decision", err)
			}
		}

		out = participant.Outcome{Participant: next, Entry: entry}
		return nil
	})
	if err != nil {
		return participant.Outcome{}, asPersistence("ApplyTransition", err)
	}
	return out, nil
}

// asPersistence keeps domain errors as they are and classifies the rest
// (commit and rollback failures) as persistence failures.
func asPersistence(op string, err error) error {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.WrapError("participant", op, shared.ErrPersistenceFailure, "transaction failed", err)
}

func scanParticipant(row pgx.Row) (*participant.Participant, error) {
	var (
		p        participant.Participant
		cohortID *string
		state    string
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&cohortID,
		&state,
		&p.PausedAt,
		&p.PauseReason,
		&p.GraduatedAt,
		&p.ExitedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cohortID != nil {
		p.CohortID = *cohortID
	}
	p.LifecycleState = participant.LifecycleState(state)
	return &p, nil
}

func stateNames(states []participant.LifecycleState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ participant.Repository = (*ParticipantRepository)(nil)
	_ participant.StateStore = (*ParticipantRepository)(nil)
)
