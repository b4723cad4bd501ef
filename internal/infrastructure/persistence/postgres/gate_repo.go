package postgres

import (
	"context"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// GATE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// GateRepository implements gate.Repository for PostgreSQL.
type GateRepository struct {
	conn *Connection
}

// NewGateRepository creates a new GateRepository.
func NewGateRepository(conn *Connection) *GateRepository {
	return &GateRepository{conn: conn}
}

// Constraint backing gate idempotency.
const gateKeyConstraint = "uq_gate_evaluations_key"

// Evaluations are always read joined with their optional resolution.
const evaluationSelect = `
	SELECT e.id::text, e.participant_id, e.cohort_id, e.gate_type, e.result, e.program_day,
		   e.evaluation_data, e.evaluated_at,
		   r.resolved_by, r.note, r.resolved_at
	FROM gate_evaluations e
	LEFT JOIN gate_resolutions r ON r.evaluation_id = e.id
`

// Record inserts an evaluation. A second evaluation for the same key is
// rejected by the unique constraint and reported as ErrDuplicateGate.
func (r *GateRepository) Record(ctx context.Context, e *gate.Evaluation) error {
	query := `
		INSERT INTO gate_evaluations (
			id, participant_id, cohort_id, gate_type, result, program_day,
			evaluation_data, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	data := e.EvaluationData
	if len(data) == 0 {
		data = []byte("{}")
	}

	_, err := r.conn.Exec(ctx, query,
		e.ID,
		e.ParticipantID,
		e.CohortID,
		string(e.GateType),
		string(e.Result),
		e.ProgramDay,
		[]byte(data),
		e.EvaluatedAt,
	)
	if err != nil {
		if UniqueViolationConstraint(err) == gateKeyConstraint {
			return shared.ErrDuplicateGate
		}
		if IsForeignKeyViolation(err) {
			return shared.WrapError("gate", "Record", shared.ErrNotFound, "participant or cohort missing", err)
		}
		return shared.WrapError("gate", "Record", shared.ErrPersistenceFailure, "insert evaluation", err)
	}
	return nil
}

// Exists reports whether an evaluation exists for the key.
func (r *GateRepository) Exists(ctx context.Context, key gate.Key) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM gate_evaluations
			WHERE participant_id = $1 AND cohort_id = $2 AND gate_type = $3
		)
	`

	var exists bool
	if err := r.conn.QueryRow(ctx, query, key.ParticipantID, key.CohortID, string(key.GateType)).Scan(&exists); err != nil {
		return false, shared.WrapError("gate", "Exists", shared.ErrPersistenceFailure, "check evaluation", err)
	}
	return exists, nil
}

// GetByID returns an evaluation with its resolution, if any.
func (r *GateRepository) GetByID(ctx context.Context, id string) (*gate.Evaluation, error) {
	query := evaluationSelect + ` WHERE e.id::text = $1`

	e, err := scanEvaluation(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrEvaluationNotFound
		}
		return nil, shared.WrapError("gate", "GetByID", shared.ErrPersistenceFailure, "select evaluation", err)
	}
	return e, nil
}

// ListByParticipant returns a participant's evaluations, oldest first.
func (r *GateRepository) ListByParticipant(ctx context.Context, participantID string) ([]*gate.Evaluation, error) {
	query := evaluationSelect + `
		WHERE e.participant_id = $1
		ORDER BY e.evaluated_at, e.program_day
	`
	return r.list(ctx, "ListByParticipant", query, participantID)
}

// ListByCohort returns a cohort's evaluations, optionally for one gate.
func (r *GateRepository) ListByCohort(ctx context.Context, cohortID string, gateType gate.Type) ([]*gate.Evaluation, error) {
	query := evaluationSelect + `
		WHERE e.cohort_id = $1 AND ($2::text = '' OR e.gate_type = $2::text)
		ORDER BY e.program_day, e.participant_id
	`
	return r.list(ctx, "ListByCohort", query, cohortID, string(gateType))
}

func (r *GateRepository) list(ctx context.Context, op, query string, args ...any) ([]*gate.Evaluation, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.WrapError("gate", op, shared.ErrPersistenceFailure, "query evaluations", err)
	}
	defer rows.Close()

	var out []*gate.Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, shared.WrapError("gate", op, shared.ErrPersistenceFailure, "scan evaluation", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("gate", op, shared.ErrPersistenceFailure, "iterate evaluations", err)
	}
	return out, nil
}

// CountUnresolved counts unresolved evaluations with any of the results.
func (r *GateRepository) CountUnresolved(ctx context.Context, participantID string, results ...gate.Result) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM gate_evaluations e
		LEFT JOIN gate_resolutions r ON r.evaluation_id = e.id
		WHERE e.participant_id = $1
		  AND r.evaluation_id IS NULL
		  AND e.result = ANY($2::text[])
	`

	names := make([]string, len(results))
	for i, res := range results {
		names[i] = string(res)
	}

	var n int
	if err := r.conn.QueryRow(ctx, query, participantID, names).Scan(&n); err != nil {
		return 0, shared.WrapError("gate", "CountUnresolved", shared.ErrPersistenceFailure, "count evaluations", err)
	}
	return n, nil
}

// OldestUnresolvedBefore returns the oldest unresolved evaluation with the
// result evaluated at or before cutoff.
func (r *GateRepository) OldestUnresolvedBefore(ctx context.Context, participantID string, result gate.Result, cutoff time.Time) (*gate.Evaluation, error) {
	query := evaluationSelect + `
		WHERE e.participant_id = $1
		  AND e.result = $2
		  AND e.evaluated_at <= $3
		  AND r.evaluation_id IS NULL
		ORDER BY e.evaluated_at
		LIMIT 1
	`

	e, err := scanEvaluation(r.conn.QueryRow(ctx, query, participantID, string(result), cutoff))
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, shared.WrapError("gate", "OldestUnresolvedBefore", shared.ErrPersistenceFailure, "select evaluation", err)
	}
	return e, nil
}

// Resolve appends a resolution for an evaluation.
func (r *GateRepository) Resolve(ctx context.Context, res gate.Resolution) error {
	query := `
		INSERT INTO gate_resolutions (evaluation_id, resolved_by, note, resolved_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.conn.Exec(ctx, query, res.EvaluationID, res.ResolvedBy, res.Note, res.ResolvedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("gate", "Resolve", shared.ErrAlreadyResolved, "evaluation already resolved")
		}
		if IsForeignKeyViolation(err) {
			return shared.ErrEvaluationNotFound
		}
		return shared.WrapError("gate", "Resolve", shared.ErrPersistenceFailure, "insert resolution", err)
	}
	return nil
}

func scanEvaluation(row pgx.Row) (*gate.Evaluation, error) {
	var (
		e          gate.Evaluation
		gateType   string
		result     string
		data       []byte
		resolvedBy *string
		note       *string
		resolvedAt *time.Time
	)
	err := row.Scan(
		&e.ID,
		&e.ParticipantID,
		&e.CohortID,
		&gateType,
		&result,
		&e.ProgramDay,
		&data,
		&e.EvaluatedAt,
		&resolvedBy,
		&note,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	e.GateType = gate.Type(gateType)
	e.Result = gate.Result(result)
	e.EvaluationData = data

	if resolvedBy != nil && resolvedAt != nil {
		e.Resolution = &gate.Resolution{
			EvaluationID: e.ID,
			ResolvedBy:   *resolvedBy,
			ResolvedAt:   *resolvedAt,
		}
		if note != nil {
			e.Resolution.Note = *note
		}
	}
	return &e, nil
}

var _ gate.Repository = (*GateRepository)(nil)
