package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/command-centre/internal/domain/audit"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// AuditRepository implements audit.Repository for PostgreSQL.
type AuditRepository struct {
	conn *Connection
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// insertDecision writes rec inside tx. ParticipantRepository.ApplyTransition
// is the only writer.
func insertDecision(ctx context.Context, tx pgx.Tx, rec audit.DecisionRecord) error {
	query := `
		INSERT INTO decision_audit (
			id, participant_id, decision, actor, reason, snapshot,
			related_gate_evaluation_id, transition_log_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var snapshot []byte
	if len(rec.Snapshot) > 0 {
		snapshot = rec.Snapshot
	}

	_, err := tx.Exec(ctx, query,
		rec.ID,
		rec.ParticipantID,
		string(rec.Decision),
		rec.Actor,
		rec.Reason,
		snapshot,
		nullableText(rec.RelatedGateEvaluationID),
		nullableText(rec.TransitionLogID),
		rec.CreatedAt,
	)
	return err
}

// ListByParticipant returns a participant's decisions, oldest first.
func (r *AuditRepository) ListByParticipant(ctx context.Context, participantID string) ([]audit.DecisionRecord, error) {
	query := `
		SELECT id::text, participant_id, decision, actor, reason, snapshot,
			   related_gate_evaluation_id::text, transition_log_id::text, created_at
		FROM decision_audit
		WHERE participant_id = $1
		ORDER BY created_at
	`

	rows, err := r.conn.Query(ctx, query, participantID)
	if err != nil {
		return nil, shared.WrapError("audit", "ListByParticipant", shared.ErrPersistenceFailure, "query decisions", err)
	}
	defer rows.Close()

	var out []audit.DecisionRecord
	for rows.Next() {
		var (
			rec       audit.DecisionRecord
			decision  string
			snapshot  []byte
			relatedID *string
			logID     *string
		)
		if err := rows.Scan(&rec.ID, &rec.ParticipantID, &decision, &rec.Actor, &rec.Reason,
			&snapshot, &relatedID, &logID, &rec.CreatedAt); err != nil {
			return nil, shared.WrapError("audit", "ListByParticipant", shared.ErrPersistenceFailure, "scan decision", err)
		}
		rec.Decision = audit.Decision(decision)
		rec.Snapshot = snapshot
		if relatedID != nil {
			rec.RelatedGateEvaluationID = *relatedID
		}
		if logID != nil {
			rec.TransitionLogID = *logID
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.WrapError("audit", "ListByParticipant", shared.ErrPersistenceFailure, "iterate decisions", err)
	}
	return out, nil
}

var _ audit.Repository = (*AuditRepository)(nil)
