package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/audit"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

// TransitionDTO is one row of the transition log.
type TransitionDTO struct {
	ID                  string                     `json:"id"`
	FromState           participant.LifecycleState `json:"from_state"`
	ToState             participant.LifecycleState `json:"to_state"`
	Reason              string                     `json:"reason"`
	TriggeredBy         string                     `json:"triggered_by"`
	RelatedEvaluationID string                     `json:"related_gate_evaluation_id,omitempty"`
	At                  time.Time                  `json:"at"`
}

// ParticipantView is the current state of a participant with its full history.
type ParticipantView struct {
	ID             string                       `json:"id"`
	UserID         string                       `json:"user_id"`
	CohortID       string                       `json:"cohort_id,omitempty"`
	LifecycleState participant.LifecycleState   `json:"lifecycle_state"`
	PausedAt       *time.Time                   `json:"paused_at,omitempty"`
	PauseReason    string                       `json:"pause_reason,omitempty"`
	GraduatedAt    *time.Time                   `json:"graduated_at,omitempty"`
	ExitedAt       *time.Time                   `json:"exited_at,omitempty"`
	AllowedNext    []participant.LifecycleState `json:"allowed_next"`
	History        []TransitionDTO              `json:"history"`
	Evaluations    []EvaluationDTO              `json:"evaluations"`
	Decisions      []audit.DecisionRecord       `json:"decisions"`
}

// PausedDTO is one entry of the paused list.
type PausedDTO struct {
	ParticipantID string    `json:"participant_id"`
	CohortID      string    `json:"cohort_id,omitempty"`
	PausedAt      time.Time `json:"paused_at"`
	DaysPaused    int       `json:"days_paused"`
	Reason        string    `json:"reason"`
}

// ParticipantQueries answers participant questions.
type ParticipantQueries struct {
	participants participant.Repository
	gates        gate.Repository
	decisions    audit.Repository
	clock        timeutil.Clock
}

// NewParticipantQueries creates ParticipantQueries.
func NewParticipantQueries(participants participant.Repository, gates gate.Repository, decisions audit.Repository, clock timeutil.Clock) *ParticipantQueries {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &ParticipantQueries{participants: participants, gates: gates, decisions: decisions, clock: clock}
}

// Get returns a participant with transition history, gate evaluations and
// terminal decisions.
func (q *ParticipantQueries) Get(ctx context.Context, id string) (*ParticipantView, error) {
	if id == "" {
		return nil, shared.NewDomainError("query", "GetParticipant", shared.ErrInvalidID, "participant id is required")
	}
	p, err := q.participants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	log, err := q.participants.History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	evs, err := q.gates.ListByParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read evaluations: %w", err)
	}
	decisions, err := q.decisions.ListByParticipant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read decisions: %w", err)
	}

	view := &ParticipantView{
		ID:             p.ID,
		UserID:         p.UserID,
		CohortID:       p.CohortID,
		LifecycleState: p.LifecycleState,
		PausedAt:       p.PausedAt,
		PauseReason:    p.PauseReason,
		GraduatedAt:    p.GraduatedAt,
		ExitedAt:       p.ExitedAt,
		AllowedNext:    append([]participant.LifecycleState{}, participant.AllowedTransitions[p.LifecycleState]...),
		History:        make([]TransitionDTO, 0, len(log)),
		Evaluations:    make([]EvaluationDTO, 0, len(evs)),
		Decisions:      append([]audit.DecisionRecord{}, decisions...),
	}
	for _, e := range log {
		view.History = append(view.History, TransitionDTO{
			ID:                  e.ID,
			FromState:           e.FromState,
			ToState:             e.ToState,
			Reason:              e.Reason,
			TriggeredBy:         e.TriggeredBy.String(),
			RelatedEvaluationID: e.RelatedGateEvaluationID,
			At:                  e.CreatedAt,
		})
	}
	for _, e := range evs {
		view.Evaluations = append(view.Evaluations, ToEvaluationDTO(e))
	}
	return view, nil
}

// ListPaused returns paused participants, longest paused first. An empty
// cohortID lists every cohort.
func (q *ParticipantQueries) ListPaused(ctx context.Context, cohortID string) ([]PausedDTO, error) {
	var (
		ps  []*participant.Participant
		err error
	)
	if cohortID != "" {
		ps, err = q.participants.ListByCohort(ctx, cohortID, participant.StatePaused)
	} else {
		ps, err = q.participants.ListByState(ctx, participant.StatePaused)
	}
	if err != nil {
		return nil, fmt.Errorf("list paused: %w", err)
	}

	now := q.clock.Now()
	out := make([]PausedDTO, 0, len(ps))
	for _, p := range ps {
		dto := PausedDTO{ParticipantID: p.ID, CohortID: p.CohortID, Reason: p.PauseReason}
		if p.PausedAt != nil {
			dto.PausedAt = *p.PausedAt
			dto.DaysPaused = int(now.Sub(*p.PausedAt) / (24 * time.Hour))
		}
		out = append(out, dto)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].PausedAt.Before(out[j].PausedAt) })
	return out, nil
}
