package query

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GATE RESULTS
// ══════════════════════════════════════════════════════════════════════════════

// ListGateResultsQuery selects evaluations of one cohort. An empty GateType
// lists every gate.
type ListGateResultsQuery struct {
	CohortID string
	GateType string
	Result   string
}

// Validate checks the filter values.
func (q ListGateResultsQuery) Validate() error {
	if q.CohortID == "" {
		return shared.NewDomainError("query", "ListGateResults", shared.ErrInvalidID, "cohort id is required")
	}
	if q.GateType != "" {
		if _, err := gate.ParseType(q.GateType); err != nil {
			return shared.WrapError("query", "ListGateResults", shared.ErrInvalidInput, err.Error(), err)
		}
	}
	if q.Result != "" && !gate.Result(q.Result).IsValid() {
		return shared.NewDomainError("query", "ListGateResults", shared.ErrInvalidInput, fmt.Sprintf("unknown result %q", q.Result))
	}
	return nil
}

// ResolutionDTO is the resolution of an intervention.
type ResolutionDTO struct {
	ResolvedBy string    `json:"resolved_by"`
	Note       string    `json:"note,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// EvaluationDTO is one gate evaluation with its evidence.
type EvaluationDTO struct {
	ID            string          `json:"id"`
	ParticipantID string          `json:"participant_id"`
	CohortID      string          `json:"cohort_id"`
	GateType      gate.Type       `json:"gate_type"`
	Result        gate.Result     `json:"result"`
	ProgramDay    int             `json:"program_day"`
	Evidence      json.RawMessage `json:"evidence"`
	EvaluatedAt   time.Time       `json:"evaluated_at"`
	Resolution    *ResolutionDTO  `json:"resolution,omitempty"`
}

// GateResultsView is a filtered listing plus per-result totals of the listing.
type GateResultsView struct {
	CohortID    string              `json:"cohort_id"`
	GateType    string              `json:"gate_type,omitempty"`
	Totals      map[gate.Result]int `json:"totals"`
	Unresolved  int                 `json:"unresolved_interventions"`
	Evaluations []EvaluationDTO     `json:"evaluations"`
}

// GateQueries lists gate evaluations.
type GateQueries struct {
	cohorts cohort.Repository
	gates   gate.Repository
}

// NewGateQueries creates GateQueries.
func NewGateQueries(cohorts cohort.Repository, gates gate.Repository) *GateQueries {
	return &GateQueries{cohorts: cohorts, gates: gates}
}

// ListResults returns the evaluations of a cohort ordered by program day.
func (q *GateQueries) ListResults(ctx context.Context, query ListGateResultsQuery) (*GateResultsView, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	if _, err := q.cohorts.GetByID(ctx, query.CohortID); err != nil {
		return nil, err
	}

	evs, err := q.gates.ListByCohort(ctx, query.CohortID, gate.Type(query.GateType))
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}

	view := &GateResultsView{
		CohortID:    query.CohortID,
		GateType:    query.GateType,
		Totals:      map[gate.Result]int{},
		Evaluations: make([]EvaluationDTO, 0, len(evs)),
	}
	for _, e := range evs {
		if query.Result != "" && e.Result != gate.Result(query.Result) {
			continue
		}
		view.Totals[e.Result]++
		if e.Result == gate.ResultInterventionRequired && !e.IsResolved() {
			view.Unresolved++
		}
		view.Evaluations = append(view.Evaluations, ToEvaluationDTO(e))
	}
	return view, nil
}

// ToEvaluationDTO converts a domain evaluation for the API.
func ToEvaluationDTO(e *gate.Evaluation) EvaluationDTO {
	dto := EvaluationDTO{
		ID:            e.ID,
		ParticipantID: e.ParticipantID,
		CohortID:      e.CohortID,
		GateType:      e.GateType,
		Result:        e.Result,
		ProgramDay:    e.ProgramDay,
		Evidence:      e.EvaluationData,
		EvaluatedAt:   e.EvaluatedAt,
	}
	if r := e.Resolution; r != nil {
		dto.Resolution = &ResolutionDTO{ResolvedBy: r.ResolvedBy, Note: r.Note, ResolvedAt: r.ResolvedAt}
	}
	return dto
}
