// Package audit holds the operational log of terminal decisions. It sits above
// the transition log: one record per graduation or exit, with who decided and why.
package audit

import (
	"context"
	"encoding/json"
	"time"
)

// Decision is a terminal lifecycle decision.
type Decision string

const (
	DecisionGraduated Decision = "GRADUATED"
	DecisionExited    Decision = "EXITED"
)

// DecisionRecord is an append-only audit row.
type DecisionRecord struct {
	ID                      string          `json:"id"`
	ParticipantID           string          `json:"participant_id"`
	Decision                Decision        `json:"decision"`
	Actor                   string          `json:"actor"`
	Reason                  string          `json:"reason"`
	Snapshot                json.RawMessage `json:"snapshot,omitempty"`
	RelatedGateEvaluationID string          `json:"related_gate_evaluation_id,omitempty"`
	TransitionLogID         string          `json:"transition_log_id"`
	CreatedAt               time.Time       `json:"created_at"`
}

// Repository reads decision records. Records are written by the state store
// together with the transition they explain.
type Repository interface {
	ListByParticipant(ctx context.Context, participantID string) ([]DecisionRecord, error)
}
