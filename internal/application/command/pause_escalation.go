package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/domain/signals"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PAUSE ESCALATION
// Runs on its own cadence, independent of the gate calendar. Each ACTIVE or
// AT_RISK participant is paused for at most one reason per run: the first
// check that triggers.
// ══════════════════════════════════════════════════════════════════════════════

// PauseTrigger names the check that paused a participant.
type PauseTrigger string

const (
	TriggerMomentum   PauseTrigger = "momentum"
	TriggerInactivity PauseTrigger = "inactivity"
	TriggerStaleGate  PauseTrigger = "stale_gate"
)

// PauseThresholds parameterizes the checks.
type PauseThresholds struct {
	MomentumWindow         time.Duration
	MomentumThreshold      float64
	InactivityWindow       time.Duration
	StaleInterventionAfter time.Duration
}

// DefaultPauseThresholds returns the standard program thresholds.
func DefaultPauseThresholds() PauseThresholds {
	return PauseThresholds{
		MomentumWindow:         7 * 24 * time.Hour,
		MomentumThreshold:      50,
		InactivityWindow:       14 * 24 * time.Hour,
		StaleInterventionAfter: 7 * 24 * time.Hour,
	}
}

// PauseCheckSummary aggregates one pause run.
type PauseCheckSummary struct {
	Checked          int      `json:"checked"`
	PausedMomentum   int      `json:"paused_momentum"`
	PausedInactivity int      `json:"paused_inactivity"`
	PausedStaleGate  int      `json:"paused_stale_gate"`
	Errors           []string `json:"errors"`
}

// Paused returns the number of participants paused by the run.
func (s PauseCheckSummary) Paused() int {
	return s.PausedMomentum + s.PausedInactivity + s.PausedStaleGate
}

// PauseEscalationDeps groups the collaborators of PauseEscalation.
type PauseEscalationDeps struct {
	Participants participant.Repository
	Gates        gate.Repository
	Signals      signals.Readers
	Authority    StateAuthority
	Thresholds   PauseThresholds

	// Scheduled filters cohorts. Nil checks every cohort.
	Scheduled func(cohortID string) bool

	Metrics Metrics
	Clock   timeutil.Clock
	Logger  *slog.Logger
}

// PauseEscalation pauses disengaged participants and reactivates them on
// human request.
type PauseEscalation struct {
	participants participant.Repository
	gates        gate.Repository
	signals      signals.Readers
	authority    StateAuthority
	th           PauseThresholds
	scheduled    func(string) bool
	metrics      Metrics
	clock        timeutil.Clock
	logger       *slog.Logger
}

// NewPauseEscalation creates a PauseEscalation. Zero thresholds use the defaults.
func NewPauseEscalation(d PauseEscalationDeps) *PauseEscalation {
	if d.Thresholds == (PauseThresholds{}) {
		d.Thresholds = DefaultPauseThresholds()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Scheduled == nil {
		d.Scheduled = func(string) bool { return true }
	}
	return &PauseEscalation{
		participants: d.Participants,
		gates:        d.Gates,
		signals:      d.Signals,
		authority:    d.Authority,
		th:           d.Thresholds,
		scheduled:    d.Scheduled,
		metrics:      orNopMetrics(d.Metrics),
		clock:        d.Clock,
		logger:       orDefaultLogger(d.Logger, "pauses"),
	}
}

// Run checks every ACTIVE or AT_RISK participant attached to a cohort.
// It returns an error only when the participant list cannot be read.
func (pe *PauseEscalation) Run(ctx context.Context) (PauseCheckSummary, error) {
	summary := PauseCheckSummary{Errors: []string{}}

	candidates, err := pe.participants.ListByState(ctx, participant.StateActive, participant.StateAtRisk)
	if err != nil {
		return summary, fmt.Errorf("list participants: %w", err)
	}

	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !p.HasCohort() || !pe.scheduled(p.CohortID) {
			continue
		}
		summary.Checked++

		trigger, req, err := pe.check(ctx, p)
		if err != nil {
			pe.logger.Error("pause check failed", "participant_id", p.ID, "cohort_id", p.CohortID, "error", err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", p.ID, err))
			continue
		}
		if trigger == "" {
			continue
		}

		if _, err := pe.authority.RequestTransition(ctx, req); err != nil {
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: pause: %v", p.ID, err))
			continue
		}
		pe.metrics.PauseTriggered(ctx, string(trigger))
		switch trigger {
		case TriggerMomentum:
			summary.PausedMomentum++
		case TriggerInactivity:
			summary.PausedInactivity++
		case TriggerStaleGate:
			summary.PausedStaleGate++
		}
	}

	pe.logger.Info("pause check finished",
		"checked", summary.Checked,
		"paused_momentum", summary.PausedMomentum,
		"paused_inactivity", summary.PausedInactivity,
		"paused_stale_gate", summary.PausedStaleGate,
		"errors", len(summary.Errors),
	)
	return summary, nil
}

// check runs the three checks in order and returns the first that triggers.
// An empty trigger means the participant stays as is.
func (pe *PauseEscalation) check(ctx context.Context, p *participant.Participant) (PauseTrigger, participant.TransitionRequest, error) {
	now := pe.clock.Now()
	pause := func(reason, evaluationID string) participant.TransitionRequest {
		return participant.TransitionRequest{
			ParticipantID:       p.ID,
			ToState:             participant.StatePaused,
			Reason:              reason,
			TriggeredBy:         shared.SystemActor,
			RelatedEvaluationID: evaluationID,
		}
	}

	momentum, err := pe.signals.Ledger.SumMomentum(ctx, p.ID, signals.Trailing(now, pe.th.MomentumWindow))
	if err != nil {
		return "", participant.TransitionRequest{}, fmt.Errorf("sum momentum: %w", err)
	}
	if momentum < pe.th.MomentumThreshold {
		return TriggerMomentum, pause(fmt.Sprintf("momentum %.0f over the last %s is below the threshold of %.0f",
			momentum, windowLabel(pe.th.MomentumWindow), pe.th.MomentumThreshold), ""), nil
	}

	inactivity := signals.Trailing(now, pe.th.InactivityWindow)
	missions, err := pe.signals.Missions.CountAssignments(ctx, p.ID, "", inactivity)
	if err != nil {
		return "", participant.TransitionRequest{}, fmt.Errorf("count missions: %w", err)
	}
	checkins, err := pe.signals.Behavior.CountTagged(ctx, p.ID, signals.TagCheckin, inactivity)
	if err != nil {
		return "", participant.TransitionRequest{}, fmt.Errorf("count check-ins: %w", err)
	}
	if missions.Assigned == 0 && checkins == 0 {
		return TriggerInactivity, pause(fmt.Sprintf("no mission assignment or check-in in the last %s",
			windowLabel(pe.th.InactivityWindow)), ""), nil
	}

	stale, err := pe.gates.OldestUnresolvedBefore(ctx, p.ID, gate.ResultInterventionRequired, now.Add(-pe.th.StaleInterventionAfter))
	if err != nil {
		return "", participant.TransitionRequest{}, fmt.Errorf("find stale intervention: %w", err)
	}
	if stale != nil {
		return TriggerStaleGate, pause(fmt.Sprintf("%s gate intervention unresolved since %s",
			stale.GateType, stale.EvaluatedAt.UTC().Format(timeutil.DateLayout)), stale.ID), nil
	}

	return "", participant.TransitionRequest{}, nil
}

// Reactivate returns a PAUSED participant to ACTIVE. Only a named human may
// do so.
func (pe *PauseEscalation) Reactivate(ctx context.Context, participantID string, actor shared.Actor, reason string) (TransitionResult, error) {
	result := TransitionResult{ParticipantID: participantID, ToState: participant.StateActive}

	if !actor.IsHuman() {
		result.Reason = "reactivation requires a named human actor"
		return result, shared.NewDomainError("pauses", "Reactivate", shared.ErrPreconditionUnmet, result.Reason)
	}

	p, err := pe.participants.GetByID(ctx, participantID)
	if err != nil {
		result.Reason = err.Error()
		return result, err
	}
	if p.LifecycleState != participant.StatePaused {
		result.FromState = p.LifecycleState
		result.Reason = fmt.Sprintf("participant is %s, not PAUSED", p.LifecycleState)
		return result, shared.NewDomainError("pauses", "Reactivate", shared.ErrPreconditionUnmet, result.Reason)
	}

	if strings.TrimSpace(reason) == "" {
		reason = fmt.Sprintf("reactivated by %s", actor)
	}
	return pe.authority.RequestTransition(ctx, participant.TransitionRequest{
		ParticipantID: participantID,
		ToState:       participant.StateActive,
		Reason:        reason,
		TriggeredBy:   actor,
	})
}

func windowLabel(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
