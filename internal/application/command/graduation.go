package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/command-centre/internal/domain/audit"
	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/domain/signals"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRADUATION AUTHORITY
// Owns the two terminal decisions. Eligibility is always re-derived from the
// stores at call time. Every decision leaves a DecisionRecord next to the
// low-level transition log entry.
// ══════════════════════════════════════════════════════════════════════════════

// Eligibility is the result of an eligibility check. Reasons is empty when
// the participant may graduate.
type Eligibility struct {
	ParticipantID           string                     `json:"participant_id"`
	CohortID                string                     `json:"cohort_id,omitempty"`
	Eligible                bool                       `json:"eligible"`
	Reasons                 []string                   `json:"reasons"`
	Day                     int                        `json:"day"`
	State                   participant.LifecycleState `json:"state"`
	VerifiedIncomeRecords   int                        `json:"verified_income_records"`
	PositiveIncomeRecords   int                        `json:"positive_income_records"`
	VerifiedIncomeTotal     float64                    `json:"verified_income_total"`
	UnresolvedFails         int                        `json:"unresolved_fails"`
	UnresolvedInterventions int                        `json:"unresolved_interventions"`
	CheckedAt               time.Time                  `json:"checked_at"`
}

// Failure codes carried by DecisionResult.
const (
	CodePreconditionUnmet = "PRECONDITION_UNMET"
	CodeInvalidTransition = "INVALID_TRANSITION"
)

// DecisionResult reports a graduation or exit attempt.
type DecisionResult struct {
	Success       bool              `json:"success"`
	ParticipantID string            `json:"participant_id"`
	Decision      audit.Decision    `json:"decision"`
	Code          string            `json:"code,omitempty"`
	Reasons       []string          `json:"reasons,omitempty"`
	Transition    *TransitionResult `json:"transition,omitempty"`
	AuditID       string            `json:"audit_id,omitempty"`
}

// Err returns the failure as a classified error, or nil on success.
func (r DecisionResult) Err() error {
	if r.Success {
		return nil
	}
	kind := shared.ErrPreconditionUnmet
	if r.Code == CodeInvalidTransition {
		kind = shared.ErrInvalidTransition
	}
	return shared.NewDomainError("graduation", string(r.Decision), kind, strings.Join(r.Reasons, "; "))
}

func rejected(pid string, decision audit.Decision, code string, reasons ...string) DecisionResult {
	return DecisionResult{ParticipantID: pid, Decision: decision, Code: code, Reasons: reasons}
}

// GraduationAuthority decides graduation and exit.
type GraduationAuthority struct {
	participants participant.Repository
	cohorts      cohort.Repository
	gates        gate.Repository
	income       signals.IncomeReader
	authority    StateAuthority
	events       shared.EventPublisher
	clock        timeutil.Clock
	logger       *slog.Logger
	minDay       int
	newID        func() string
}

// GraduationDeps groups the collaborators of GraduationAuthority.
type GraduationDeps struct {
	Participants participant.Repository
	Cohorts      cohort.Repository
	Gates        gate.Repository
	Income       signals.IncomeReader
	Authority    StateAuthority
	Events       shared.EventPublisher
	Clock        timeutil.Clock
	Logger       *slog.Logger

	// MinProgramDay is the first day graduation is possible. Zero means
	// the end of the program.
	MinProgramDay int
}

// NewGraduationAuthority creates a GraduationAuthority.
func NewGraduationAuthority(d GraduationDeps) *GraduationAuthority {
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.MinProgramDay <= 0 {
		d.MinProgramDay = calendar.ProgramLength
	}
	return &GraduationAuthority{
		participants: d.Participants,
		cohorts:      d.Cohorts,
		gates:        d.Gates,
		income:       d.Income,
		authority:    d.Authority,
		events:       orNopPublisher(d.Events),
		clock:        d.Clock,
		logger:       orDefaultLogger(d.Logger, "graduation"),
		minDay:       d.MinProgramDay,
		newID:        uuid.NewString,
	}
}

// CheckEligibility re-derives graduation eligibility. It fails only when the
// participant is missing or a store cannot be read.
func (g *GraduationAuthority) CheckEligibility(ctx context.Context, participantID string) (*Eligibility, error) {
	p, err := g.participants.GetByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	return g.eligibility(ctx, p)
}

func (g *GraduationAuthority) eligibility(ctx context.Context, p *participant.Participant) (*Eligibility, error) {
	now := g.clock.Now()
	el := &Eligibility{
		ParticipantID: p.ID,
		CohortID:      p.CohortID,
		State:         p.LifecycleState,
		Reasons:       []string{},
		CheckedAt:     now.UTC(),
	}

	if p.HasCohort() {
		c, err := g.cohorts.GetByID(ctx, p.CohortID)
		if err != nil {
			return nil, err
		}
		el.Day = c.DayAt(now)
		if el.Day < g.minDay {
			el.Reasons = append(el.Reasons, fmt.Sprintf("program day %d is before day %d", el.Day, g.minDay))
		}
	} else {
		el.Reasons = append(el.Reasons, "participant is not attached to a cohort")
	}

	inc, err := g.income.VerifiedIncome(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("read verified income: %w", err)
	}
	el.VerifiedIncomeRecords = inc.Count
	el.PositiveIncomeRecords = inc.Positive
	el.VerifiedIncomeTotal = inc.Total
	if inc.Positive == 0 {
		el.Reasons = append(el.Reasons, "no verified income record with a positive amount")
	}

	if el.UnresolvedFails, err = g.gates.CountUnresolved(ctx, p.ID, gate.ResultFail); err != nil {
		return nil, fmt.Errorf("count failed gates: %w", err)
	}
	if el.UnresolvedInterventions, err = g.gates.CountUnresolved(ctx, p.ID, gate.ResultInterventionRequired); err != nil {
		return nil, fmt.Errorf("count interventions: %w", err)
	}
	if n := el.UnresolvedFails + el.UnresolvedInterventions; n > 0 {
		el.Reasons = append(el.Reasons, fmt.Sprintf("%d unresolved FAIL or INTERVENTION_REQUIRED gate evaluation(s)", n))
	}

	switch {
	case p.LifecycleState.IsTerminal():
		el.Reasons = append(el.Reasons, fmt.Sprintf("participant is already %s", p.LifecycleState))
	case p.LifecycleState == participant.StatePaused:
		el.Reasons = append(el.Reasons, "participant is PAUSED")
	}

	el.Eligible = len(el.Reasons) == 0
	return el, nil
}

// Graduate re-checks eligibility and, when it holds, moves the participant to
// GRADUATED and records the decision. Unmet preconditions are reported in the
// result, not as an error.
func (g *GraduationAuthority) Graduate(ctx context.Context, participantID string, actor shared.Actor) (DecisionResult, error) {
	if strings.TrimSpace(actor.String()) == "" {
		return rejected(participantID, audit.DecisionGraduated, CodePreconditionUnmet, "an actor is required"), nil
	}

	el, err := g.CheckEligibility(ctx, participantID)
	if err != nil {
		return DecisionResult{}, err
	}
	if !el.Eligible {
		g.logger.Info("graduation refused", "participant_id", participantID, "actor", actor, "reasons", el.Reasons)
		return rejected(participantID, audit.DecisionGraduated, CodePreconditionUnmet, el.Reasons...), nil
	}

	snapshot, err := json.Marshal(el)
	if err != nil {
		return DecisionResult{}, fmt.Errorf("marshal eligibility: %w", err)
	}
	return g.decide(ctx, decision{
		participantID: participantID,
		decision:      audit.DecisionGraduated,
		toState:       participant.StateGraduated,
		actor:         actor,
		reason:        fmt.Sprintf("graduation approved by %s", actor),
		snapshot:      snapshot,
	})
}

// Exit moves a non-terminal participant to EXITED and records the decision.
func (g *GraduationAuthority) Exit(ctx context.Context, participantID, reason string, actor shared.Actor) (DecisionResult, error) {
	if strings.TrimSpace(actor.String()) == "" {
		return rejected(participantID, audit.DecisionExited, CodePreconditionUnmet, "an actor is required"), nil
	}
	if strings.TrimSpace(reason) == "" {
		return rejected(participantID, audit.DecisionExited, CodePreconditionUnmet, "a reason is required"), nil
	}

	p, err := g.participants.GetByID(ctx, participantID)
	if err != nil {
		return DecisionResult{}, err
	}
	if p.LifecycleState.IsTerminal() {
		return rejected(participantID, audit.DecisionExited, CodePreconditionUnmet,
			fmt.Sprintf("participant is already %s", p.LifecycleState)), nil
	}

	snapshot, err := json.Marshal(map[string]any{"state": p.LifecycleState, "reason": reason})
	if err != nil {
		return DecisionResult{}, fmt.Errorf("marshal exit snapshot: %w", err)
	}
	return g.decide(ctx, decision{
		participantID: participantID,
		decision:      audit.DecisionExited,
		toState:       participant.StateExited,
		actor:         actor,
		reason:        reason,
		snapshot:      snapshot,
	})
}

// ConcludeFromGate applies the outcome of a terminal gate: PASS graduates and
// FAIL exits. The evaluation's evidence is the decision basis.
func (g *GraduationAuthority) ConcludeFromGate(ctx context.Context, ev *gate.Evaluation) (DecisionResult, error) {
	d := decision{
		participantID: ev.ParticipantID,
		actor:         shared.SystemActor,
		snapshot:      ev.EvaluationData,
		evaluationID:  ev.ID,
	}
	switch {
	case !ev.GateType.IsTerminal():
		return rejected(ev.ParticipantID, "", CodePreconditionUnmet,
			fmt.Sprintf("%s gate does not conclude the program", ev.GateType)), nil
	case ev.Result == gate.ResultPass:
		d.decision = audit.DecisionGraduated
		d.toState = participant.StateGraduated
		d.reason = fmt.Sprintf("%s gate passed on day %d", ev.GateType, ev.ProgramDay)
	case ev.Result == gate.ResultFail:
		d.decision = audit.DecisionExited
		d.toState = participant.StateExited
		d.reason = fmt.Sprintf("%s gate failed on day %d", ev.GateType, ev.ProgramDay)
	default:
		return rejected(ev.ParticipantID, "", CodePreconditionUnmet,
			fmt.Sprintf("%s result does not conclude the program", ev.Result)), nil
	}
	return g.decide(ctx, d)
}

// ListPendingGraduations returns the eligibility of every ACTIVE or AT_RISK
// cohort member who could graduate now. Participants whose check fails are
// logged and left out.
func (g *GraduationAuthority) ListPendingGraduations(ctx context.Context, cohortID string) ([]*Eligibility, error) {
	if _, err := g.cohorts.GetByID(ctx, cohortID); err != nil {
		return nil, err
	}
	members, err := g.participants.ListByCohort(ctx, cohortID, participant.StateActive, participant.StateAtRisk)
	if err != nil {
		return nil, err
	}

	pending := make([]*Eligibility, 0)
	for _, p := range members {
		el, err := g.eligibility(ctx, p)
		if err != nil {
			g.logger.Error("eligibility check failed", "participant_id", p.ID, "cohort_id", cohortID, "error", err)
			continue
		}
		if el.Eligible {
			pending = append(pending, el)
		}
	}
	return pending, nil
}

type decision struct {
	participantID string
	decision      audit.Decision
	toState       participant.LifecycleState
	actor         shared.Actor
	reason        string
	snapshot      json.RawMessage
	evaluationID  string
}

// decide requests the transition with its decision record attached; the
// store commits both or neither.
func (g *GraduationAuthority) decide(ctx context.Context, d decision) (DecisionResult, error) {
	now := g.clock.Now().UTC()
	rec := &audit.DecisionRecord{
		ID:                      g.newID(),
		ParticipantID:           d.participantID,
		Decision:                d.decision,
		Actor:                   d.actor.String(),
		Reason:                  d.reason,
		Snapshot:                d.snapshot,
		RelatedGateEvaluationID: d.evaluationID,
		CreatedAt:               now,
	}

	tr, err := g.authority.RequestTransition(ctx, participant.TransitionRequest{
		ParticipantID:       d.participantID,
		ToState:             d.toState,
		Reason:              d.reason,
		TriggeredBy:         d.actor,
		RelatedEvaluationID: d.evaluationID,
		Decision:            rec,
	})
	if err != nil {
		switch {
		case shared.IsInvalidTransition(err):
			res := rejected(d.participantID, d.decision, CodeInvalidTransition, tr.Reason)
			res.Transition = &tr
			return res, nil
		case shared.IsValidation(err):
			return rejected(d.participantID, d.decision, CodePreconditionUnmet, tr.Reason), nil
		}
		return DecisionResult{}, err
	}

	g.logger.Info("decision recorded",
		"participant_id", d.participantID,
		"decision", d.decision,
		"actor", d.actor,
		"audit_id", rec.ID,
		"log_id", tr.LogID,
	)
	if err := g.events.Publish(shared.NewGraduationDecidedEvent(d.participantID, string(d.decision), d.actor.String(), d.reason, now)); err != nil {
		g.logger.Warn("publish decision", "participant_id", d.participantID, "error", err)
	}
	return DecisionResult{
		Success:       true,
		ParticipantID: d.participantID,
		Decision:      d.decision,
		Transition:    &tr,
		AuditID:       rec.ID,
	}, nil
}
