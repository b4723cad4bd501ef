package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/domain/signals"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GATE ENFORCEMENT
// Once per program day per cohort: find the gate due today, evaluate every
// ACTIVE or AT_RISK member once, record the evaluation and request the
// transition it implies. Every run also re-applies side effects of earlier
// evaluations that never took hold. The scheduled and the manual entry
// points share runCohort.
// ══════════════════════════════════════════════════════════════════════════════

// GateRunSummary aggregates one cohort's gate run.
type GateRunSummary struct {
	CohortID     string    `json:"cohort_id"`
	Day          int       `json:"day"`
	GateType     gate.Type `json:"gate_type,omitempty"`
	Passed       int       `json:"passed"`
	Failed       int       `json:"failed"`
	Intervention int       `json:"intervention"`
	Skipped      int       `json:"skipped"`
	Recovered    int       `json:"recovered"`
	Errors       []string  `json:"errors"`
}

// Evaluated returns the number of evaluations recorded by the run.
func (s GateRunSummary) Evaluated() int {
	return s.Passed + s.Failed + s.Intervention
}

func (s *GateRunSummary) fail(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

// GateConcluder applies a terminal gate outcome.
type GateConcluder interface {
	ConcludeFromGate(ctx context.Context, ev *gate.Evaluation) (DecisionResult, error)
}

// GateRunnerDeps groups the collaborators of GateRunner.
type GateRunnerDeps struct {
	Cohorts      cohort.Repository
	Participants participant.Repository
	Gates        gate.Repository
	Signals      signals.Readers
	Authority    StateAuthority
	Concluder    GateConcluder
	Schedule     gate.Schedule
	Thresholds   gate.Thresholds

	// Lock is optional.
	Lock RunLocker

	// Scheduled filters cohorts for RunDaily. Nil runs every active cohort.
	Scheduled func(cohortID string) bool

	Events  shared.EventPublisher
	Metrics Metrics
	Clock   timeutil.Clock
	Logger  *slog.Logger
}

// GateRunner evaluates due gates.
type GateRunner struct {
	cohorts      cohort.Repository
	participants participant.Repository
	gates        gate.Repository
	signals      signals.Readers
	authority    StateAuthority
	concluder    GateConcluder
	schedule     gate.Schedule
	thresholds   gate.Thresholds
	lock         RunLocker
	scheduled    func(string) bool
	events       shared.EventPublisher
	metrics      Metrics
	clock        timeutil.Clock
	logger       *slog.Logger
	newID        func() string
}

// NewGateRunner creates a GateRunner. A zero Schedule uses the default gate days.
func NewGateRunner(d GateRunnerDeps) *GateRunner {
	if d.Schedule.Len() == 0 {
		d.Schedule = gate.DefaultSchedule()
	}
	if d.Thresholds == (gate.Thresholds{}) {
		d.Thresholds = gate.DefaultThresholds()
	}
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Scheduled == nil {
		d.Scheduled = func(string) bool { return true }
	}
	return &GateRunner{
		cohorts:      d.Cohorts,
		participants: d.Participants,
		gates:        d.Gates,
		signals:      d.Signals,
		authority:    d.Authority,
		concluder:    d.Concluder,
		schedule:     d.Schedule,
		thresholds:   d.Thresholds,
		lock:         d.Lock,
		scheduled:    d.Scheduled,
		events:       orNopPublisher(d.Events),
		metrics:      orNopMetrics(d.Metrics),
		clock:        d.Clock,
		logger:       orDefaultLogger(d.Logger, "gates"),
		newID:        uuid.NewString,
	}
}

// RunDaily runs every scheduled active cohort. It returns an error only when
// the cohort list cannot be read; per-cohort problems are in the summaries.
func (r *GateRunner) RunDaily(ctx context.Context) ([]GateRunSummary, error) {
	cohorts, err := r.cohorts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active cohorts: %w", err)
	}

	summaries := make([]GateRunSummary, 0, len(cohorts))
	for _, c := range cohorts {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}
		if !r.scheduled(c.ID) {
			r.logger.Debug("cohort excluded from scheduled run", "cohort_id", c.ID)
			continue
		}
		summaries = append(summaries, r.runCohort(ctx, c))
	}
	return summaries, nil
}

// ExecuteNow runs the gate due today for one cohort through the same path
// as RunDaily.
func (r *GateRunner) ExecuteNow(ctx context.Context, cohortID string) (GateRunSummary, error) {
	c, err := r.cohorts.GetByID(ctx, cohortID)
	if err != nil {
		return GateRunSummary{CohortID: cohortID, Errors: []string{}}, err
	}
	if !c.IsActive {
		return GateRunSummary{CohortID: cohortID, Errors: []string{}},
			shared.NewDomainError("gate", "ExecuteNow", shared.ErrPreconditionUnmet, "cohort is not active")
	}
	return r.runCohort(ctx, c), nil
}

func (r *GateRunner) runCohort(ctx context.Context, c *cohort.Cohort) GateRunSummary {
	start := time.Now()
	now := r.clock.Now()

	// The cached CurrentDay may be stale; a missed refresh must not skip a gate.
	day := c.DayAt(now)
	summary := GateRunSummary{CohortID: c.ID, Day: day, Errors: []string{}}

	gateType, due := r.schedule.GateForDay(day)
	log := r.logger.With("cohort_id", c.ID, "day", day)
	if due {
		summary.GateType = gateType
		log = log.With("gate_type", gateType)
	}

	if r.lock != nil {
		release, err := r.lock.Acquire(ctx, "gates:"+c.ID)
		switch {
		case err == nil:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("release run lock", "error", err)
				}
			}()
		case errors.Is(err, shared.ErrConcurrentModification):
			log.Info("gate run already in progress elsewhere")
			summary.fail("gate run for cohort %s already in progress", c.ID)
			return summary
		default:
			log.Warn("run lock unavailable, continuing without it", "error", err)
		}
	}

	members, err := r.participants.ListByCohort(ctx, c.ID, participant.StateActive, participant.StateAtRisk)
	if err != nil {
		log.Error("list participants", "error", err)
		summary.fail("list participants: %v", err)
		return summary
	}
	if len(members) == 0 {
		return summary
	}

	recorded, err := r.gates.ListByCohort(ctx, c.ID, "")
	if err != nil {
		log.Error("list evaluations", "error", err)
		summary.fail("list evaluations: %v", err)
		return summary
	}
	byParticipant := make(map[string][]*gate.Evaluation, len(members))
	for _, ev := range recorded {
		byParticipant[ev.ParticipantID] = append(byParticipant[ev.ParticipantID], ev)
	}

	for _, p := range members {
		if err := ctx.Err(); err != nil {
			summary.fail("run interrupted: %v", err)
			break
		}
		p = r.recoverSideEffects(ctx, log, p, byParticipant[p.ID], &summary)
		if due && !p.LifecycleState.IsTerminal() {
			r.evaluateParticipant(ctx, log, c, p, gateType, day, byParticipant[p.ID], &summary)
		}
	}

	log.Info("gate run finished",
		"passed", summary.Passed,
		"failed", summary.Failed,
		"intervention", summary.Intervention,
		"skipped", summary.Skipped,
		"recovered", summary.Recovered,
		"errors", len(summary.Errors),
		"duration", time.Since(start),
	)
	return summary
}

func (r *GateRunner) evaluateParticipant(
	ctx context.Context,
	log *slog.Logger,
	c *cohort.Cohort,
	p *participant.Participant,
	gateType gate.Type,
	day int,
	existing []*gate.Evaluation,
	summary *GateRunSummary,
) {
	log = log.With("participant_id", p.ID)
	key := gate.Key{ParticipantID: p.ID, CohortID: c.ID, GateType: gateType}

	for _, ev := range existing {
		if ev.Key() == key {
			summary.Skipped++
			return
		}
	}

	outcome, err := r.evaluate(ctx, p.ID, gateType)
	if err != nil {
		log.Error("gather evidence", "error", err)
		summary.fail("%s: gather evidence: %v", p.ID, err)
		return
	}

	now := r.clock.Now().UTC()
	ev, err := gate.NewEvaluation(r.newID(), key, day, outcome, now)
	if err != nil {
		summary.fail("%s: %v", p.ID, err)
		return
	}
	if err := r.gates.Record(ctx, ev); err != nil {
		if shared.IsAlreadyEvaluated(err) {
			// Lost a race with another run; the unique key decided.
			summary.Skipped++
			return
		}
		log.Error("record evaluation", "error", err)
		summary.fail("%s: record evaluation: %v", p.ID, err)
		return
	}

	switch ev.Result {
	case gate.ResultPass:
		summary.Passed++
	case gate.ResultFail:
		summary.Failed++
	case gate.ResultInterventionRequired:
		summary.Intervention++
	}
	r.metrics.GateEvaluated(ctx, string(gateType), string(ev.Result))
	if err := r.events.Publish(shared.NewGateEvaluatedEvent(ev.ID, p.ID, c.ID, string(gateType), string(ev.Result), now)); err != nil {
		log.Warn("publish gate evaluation", "error", err)
	}

	if err := r.applySideEffect(ctx, p, ev); err != nil {
		log.Error("gate side effect", "result", ev.Result, "error", err)
		summary.fail("%s: %v", p.ID, err)
	}
}

// recoverSideEffects re-applies the side effects of recorded evaluations
// whose transition never happened, e.g. after a failed write, and returns p
// as it stands afterwards.
func (r *GateRunner) recoverSideEffects(
	ctx context.Context,
	log *slog.Logger,
	p *participant.Participant,
	evaluations []*gate.Evaluation,
	summary *GateRunSummary,
) *participant.Participant {
	for _, ev := range evaluations {
		if p.LifecycleState.IsTerminal() {
			break
		}
		elog := log.With("participant_id", p.ID, "evaluation_id", ev.ID, "gate", ev.GateType)

		pending, err := r.sideEffectPending(ctx, p, ev)
		if err != nil {
			elog.Error("check pending side effect", "error", err)
			summary.fail("%s: check pending side effect: %v", p.ID, err)
			continue
		}
		if !pending {
			continue
		}
		if err := r.applySideEffect(ctx, p, ev); err != nil {
			elog.Error("re-apply gate side effect", "error", err)
			summary.fail("%s: %v", p.ID, err)
			continue
		}
		elog.Info("gate side effect re-applied")
		summary.Recovered++

		fresh, err := r.participants.GetByID(ctx, p.ID)
		if err != nil {
			summary.fail("%s: reload participant: %v", p.ID, err)
			continue
		}
		p = fresh
	}
	return p
}

// sideEffectPending reports whether ev still owes p a transition. p is
// ACTIVE or AT_RISK.
//
// A terminal PASS or FAIL always concludes the participant, so one still in
// the program is pending. An unresolved intervention is pending while p is
// ACTIVE and nothing has moved p since the evaluation; a later transition
// means someone already acted on it.
func (r *GateRunner) sideEffectPending(ctx context.Context, p *participant.Participant, ev *gate.Evaluation) (bool, error) {
	switch {
	case ev.Result == gate.ResultInterventionRequired:
		if ev.Resolution != nil || p.LifecycleState != participant.StateActive {
			return false, nil
		}
		entries, err := r.participants.History(ctx, p.ID)
		if err != nil {
			return false, err
		}
		for _, e := range entries {
			if e.RelatedGateEvaluationID == ev.ID || e.CreatedAt.After(ev.EvaluatedAt) {
				return false, nil
			}
		}
		return true, nil

	case ev.GateType.IsTerminal():
		return true, nil
	}
	return false, nil
}

// applySideEffect requests the transition implied by a recorded evaluation.
func (r *GateRunner) applySideEffect(ctx context.Context, p *participant.Participant, ev *gate.Evaluation) error {
	switch {
	case ev.Result == gate.ResultInterventionRequired:
		if p.LifecycleState == participant.StateAtRisk {
			return nil
		}
		_, err := r.authority.RequestTransition(ctx, participant.TransitionRequest{
			ParticipantID:       p.ID,
			ToState:             participant.StateAtRisk,
			Reason:              fmt.Sprintf("%s gate requires intervention", ev.GateType),
			TriggeredBy:         shared.SystemActor,
			RelatedEvaluationID: ev.ID,
		})
		return err

	case ev.GateType.IsTerminal():
		if r.concluder == nil {
			return fmt.Errorf("no graduation authority configured for %s gate", ev.GateType)
		}
		res, err := r.concluder.ConcludeFromGate(ctx, ev)
		if err != nil {
			return err
		}
		return res.Err()
	}
	return nil
}

// evaluate gathers the evidence for gateType and applies its rule.
func (r *GateRunner) evaluate(ctx context.Context, participantID string, gateType gate.Type) (gate.Outcome, error) {
	switch gateType {
	case gate.TypeBaseline:
		c, err := r.signals.Consents.Consents(ctx, participantID)
		if err != nil {
			return gate.Outcome{}, err
		}
		return gate.EvaluateBaseline(gate.BaselineEvidence{
			DailyAction:       c.DailyAction,
			WeeklyCheckin:     c.WeeklyCheckin,
			FailureAcceptance: c.FailureAcceptance,
			DataSharing:       c.DataSharing,
			ConsentsOnFile:    c.OnFile,
		}), nil

	case gate.TypeSellableSkill:
		missions, err := r.signals.Missions.CountAssignments(ctx, participantID, "", signals.Unbounded)
		if err != nil {
			return gate.Outcome{}, err
		}
		scores, err := r.signals.Skills.Scores(ctx, participantID)
		if err != nil {
			return gate.Outcome{}, err
		}
		return gate.EvaluateSellableSkill(gate.SellableSkillEvidence{
			AssignedMissions: missions.Assigned,
			VerifiedMissions: missions.Verified,
			TechnicalScore:   scores.Technical,
		}, r.thresholds), nil

	case gate.TypeMarketContact:
		missions, err := r.signals.Missions.CountAssignments(ctx, participantID, signals.CommercialDomain, signals.Unbounded)
		if err != nil {
			return gate.Outcome{}, err
		}
		outreach, err := r.signals.Behavior.CountTagged(ctx, participantID, signals.TagOutreach, signals.Unbounded)
		if err != nil {
			return gate.Outcome{}, err
		}
		return gate.EvaluateMarketContact(gate.MarketContactEvidence{
			VerifiedCommercialMissions: missions.Verified,
			OutreachLogs:               outreach,
		}, r.thresholds), nil

	case gate.TypeIncome:
		inc, err := r.signals.Income.VerifiedIncome(ctx, participantID)
		if err != nil {
			return gate.Outcome{}, err
		}
		fails, err := r.gates.CountUnresolved(ctx, participantID, gate.ResultFail)
		if err != nil {
			return gate.Outcome{}, err
		}
		return gate.EvaluateIncome(gate.IncomeEvidence{
			VerifiedIncomeRecords: inc.Count,
			PositiveIncomeRecords: inc.Positive,
			VerifiedIncomeTotal:   inc.Total,
			UnresolvedFails:       fails,
		}), nil
	}
	return gate.Outcome{}, fmt.Errorf("no rule for gate %s", gateType)
}
