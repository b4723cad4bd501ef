// Package gate models calendar-anchored checkpoints and their evaluations.
//
// Evaluations are immutable once recorded. The only thing that can happen to
// an evaluation afterwards is an append-only Resolution, and only for
// INTERVENTION_REQUIRED results.
package gate

import (
	"encoding/json"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Type identifies a gate.
type Type string

const (
	TypeBaseline      Type = "BASELINE"
	TypeSellableSkill Type = "SELLABLE_SKILL"
	TypeMarketContact Type = "MARKET_CONTACT"
	TypeIncome        Type = "INCOME"
)

// IsValid reports whether t is a known gate type.
func (t Type) IsValid() bool {
	switch t {
	case TypeBaseline, TypeSellableSkill, TypeMarketContact, TypeIncome:
		return true
	}
	return false
}

// IsTerminal reports whether the gate decides graduation or exit.
// Its failure result is FAIL rather than INTERVENTION_REQUIRED.
func (t Type) IsTerminal() bool {
	return t == TypeIncome
}

// ParseType parses a gate type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown gate type %q", s)
	}
	return t, nil
}

// Result is the outcome of one evaluation.
type Result string

const (
	ResultPass                 Result = "PASS"
	ResultFail                 Result = "FAIL"
	ResultInterventionRequired Result = "INTERVENTION_REQUIRED"
	ResultPending              Result = "PENDING"
)

// IsValid reports whether r is a known result.
func (r Result) IsValid() bool {
	switch r {
	case ResultPass, ResultFail, ResultInterventionRequired, ResultPending:
		return true
	}
	return false
}

// IsBlocking reports whether an unresolved evaluation with this result
// stands in the way of graduation.
func (r Result) IsBlocking() bool {
	return r == ResultFail || r == ResultInterventionRequired
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// Evaluation is one participant measured against one gate.
// (ParticipantID, CohortID, GateType) is unique.
type Evaluation struct {
	ID             string          `json:"id"`
	ParticipantID  string          `json:"participant_id"`
	CohortID       string          `json:"cohort_id"`
	GateType       Type            `json:"gate_type"`
	Result         Result          `json:"result"`
	ProgramDay     int             `json:"program_day"`
	EvaluationData json.RawMessage `json:"evaluation_data"`
	EvaluatedAt    time.Time       `json:"evaluated_at"`

	// Populated from the resolutions table when read back.
	Resolution *Resolution `json:"resolution,omitempty"`
}

// IsResolved reports whether staff have resolved the evaluation.
func (e *Evaluation) IsResolved() bool {
	return e.Resolution != nil
}

// Key returns the idempotency key of the evaluation.
func (e *Evaluation) Key() Key {
	return Key{ParticipantID: e.ParticipantID, CohortID: e.CohortID, GateType: e.GateType}
}

// Key is the uniqueness key of an evaluation.
type Key struct {
	ParticipantID string
	CohortID      string
	GateType      Type
}

// String renders the key for logs and lock names.
func (k Key) String() string {
	return k.CohortID + "/" + k.ParticipantID + "/" + string(k.GateType)
}

// NewEvaluation builds an Evaluation from an Outcome, serializing its evidence.
func NewEvaluation(id string, key Key, day int, outcome Outcome, at time.Time) (*Evaluation, error) {
	data, err := json.Marshal(outcome.Evidence)
	if err != nil {
		return nil, fmt.Errorf("marshal evidence: %w", err)
	}
	return &Evaluation{
		ID:             id,
		ParticipantID:  key.ParticipantID,
		CohortID:       key.CohortID,
		GateType:       key.GateType,
		Result:         outcome.Result,
		ProgramDay:     day,
		EvaluationData: data,
		EvaluatedAt:    at,
	}, nil
}

// Resolution marks an INTERVENTION_REQUIRED evaluation as handled.
type Resolution struct {
	EvaluationID string    `json:"evaluation_id"`
	ResolvedBy   string    `json:"resolved_by"`
	Note         string    `json:"note"`
	ResolvedAt   time.Time `json:"resolved_at"`
}
