package memory

import (
	"context"
	"sort"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/audit"
	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COHORTS
// ══════════════════════════════════════════════════════════════════════════════

// CohortRepository implements cohort.Repository.
type CohortRepository struct{ s *Store }

func (r *CohortRepository) Create(_ context.Context, c *cohort.Cohort) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cohorts[c.ID]; ok {
		return shared.NewDomainError("cohort", "Create", shared.ErrAlreadyExists, "cohort already exists")
	}
	cp := *c
	r.s.cohorts[c.ID] = &cp
	return nil
}

func (r *CohortRepository) GetByID(_ context.Context, id string) (*cohort.Cohort, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.cohorts[id]
	if !ok {
		return nil, shared.ErrCohortNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *CohortRepository) ListActive(_ context.Context) ([]*cohort.Cohort, error) {
	return r.list(true), nil
}

func (r *CohortRepository) ListAll(_ context.Context) ([]*cohort.Cohort, error) {
	return r.list(false), nil
}

func (r *CohortRepository) list(activeOnly bool) []*cohort.Cohort {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*cohort.Cohort
	for _, c := range r.s.cohorts {
		if activeOnly && !c.IsActive {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *CohortRepository) UpdateCalendar(_ context.Context, id string, day int, phase calendar.Phase, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cohorts[id]
	if !ok {
		return shared.ErrCohortNotFound
	}
	c.CurrentDay = day
	c.CurrentPhase = phase
	c.UpdatedAt = at
	return nil
}

func (r *CohortRepository) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.cohorts[id]
	if !ok {
		return shared.ErrCohortNotFound
	}
	c.IsActive = active
	c.UpdatedAt = at
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantRepository implements participant.Repository and participant.StateStore.
type ParticipantRepository struct{ s *Store }

func (r *ParticipantRepository) Create(_ context.Context, p *participant.Participant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.participants[p.ID]; ok {
		return shared.NewDomainError("participant", "Create", shared.ErrAlreadyExists, "participant already exists")
	}
	if p.HasCohort() {
		if _, ok := r.s.cohorts[p.CohortID]; !ok {
			return shared.ErrCohortNotFound
		}
	}
	r.s.participants[p.ID] = copyParticipant(p)
	return nil
}

func (r *ParticipantRepository) GetByID(_ context.Context, id string) (*participant.Participant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.participants[id]
	if !ok {
		return nil, shared.ErrParticipantNotFound
	}
	return copyParticipant(p), nil
}

func (r *ParticipantRepository) ListByCohort(_ context.Context, cohortID string, states ...participant.LifecycleState) ([]*participant.Participant, error) {
	return r.filter(func(p *participant.Participant) bool {
		return p.CohortID == cohortID && stateIn(p.LifecycleState, states)
	}), nil
}

func (r *ParticipantRepository) ListByState(_ context.Context, states ...participant.LifecycleState) ([]*participant.Participant, error) {
	return r.filter(func(p *participant.Participant) bool {
		return stateIn(p.LifecycleState, states)
	}), nil
}

func (r *ParticipantRepository) filter(keep func(*participant.Participant) bool) []*participant.Participant {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*participant.Participant
	for _, p := range r.s.participants {
		if keep(p) {
			out = append(out, copyParticipant(p))
		}
	}
	sortParticipants(out)
	return out
}

func stateIn(s participant.LifecycleState, states []participant.LifecycleState) bool {
	if len(states) == 0 {
		return true
	}
	for _, want := range states {
		if s == want {
			return true
		}
	}
	return false
}

func (r *ParticipantRepository) History(_ context.Context, participantID string) ([]participant.TransitionLogEntry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entries := r.s.transitions[participantID]
	out := make([]participant.TransitionLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// ApplyTransition validates and applies under the store lock, together with
// the decision record the request carries.
func (r *ParticipantRepository) ApplyTransition(_ context.Context, req participant.TransitionRequest, logID string, now time.Time) (participant.Outcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.participants[req.ParticipantID]
	if !ok {
		return participant.Outcome{}, shared.ErrParticipantNotFound
	}

	next, entry, err := participant.Plan(current, req, logID, now)
	if err != nil {
		return participant.Outcome{}, err
	}

	r.s.participants[next.ID] = next
	r.s.transitions[next.ID] = append(r.s.transitions[next.ID], entry)
	if rec, ok := req.DecisionFor(entry); ok {
		r.s.decisions[next.ID] = append(r.s.decisions[next.ID], rec)
	}
	return participant.Outcome{Participant: copyParticipant(next), Entry: entry}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GATE EVALUATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GateRepository implements gate.Repository.
type GateRepository struct{ s *Store }

func (r *GateRepository) Record(_ context.Context, e *gate.Evaluation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := e.Key()
	if _, ok := r.s.gateKeys[key]; ok {
		return shared.ErrDuplicateGate
	}
	if _, ok := r.s.evaluations[e.ID]; ok {
		return shared.NewDomainError("gate", "Record", shared.ErrAlreadyExists, "evaluation id already used")
	}
	cp := *e
	cp.Resolution = nil
	r.s.evaluations[e.ID] = &cp
	r.s.gateKeys[key] = e.ID
	return nil
}

func (r *GateRepository) Exists(_ context.Context, key gate.Key) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	_, ok := r.s.gateKeys[key]
	return ok, nil
}

func (r *GateRepository) GetByID(_ context.Context, id string) (*gate.Evaluation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.evaluations[id]
	if !ok {
		return nil, shared.ErrEvaluationNotFound
	}
	return r.withResolution(e), nil
}

// withResolution copies e and attaches its resolution. Callers hold the lock.
func (r *GateRepository) withResolution(e *gate.Evaluation) *gate.Evaluation {
	cp := *e
	if res, ok := r.s.resolutions[e.ID]; ok {
		res := res
		cp.Resolution = &res
	}
	return &cp
}

func (r *GateRepository) ListByParticipant(_ context.Context, participantID string) ([]*gate.Evaluation, error) {
	out := r.filter(func(e *gate.Evaluation) bool { return e.ParticipantID == participantID })
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EvaluatedAt.Equal(out[j].EvaluatedAt) {
			return out[i].EvaluatedAt.Before(out[j].EvaluatedAt)
		}
		return out[i].ProgramDay < out[j].ProgramDay
	})
	return out, nil
}

func (r *GateRepository) ListByCohort(_ context.Context, cohortID string, gateType gate.Type) ([]*gate.Evaluation, error) {
	out := r.filter(func(e *gate.Evaluation) bool {
		return e.CohortID == cohortID && (gateType == "" || e.GateType == gateType)
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ProgramDay != out[j].ProgramDay {
			return out[i].ProgramDay < out[j].ProgramDay
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	return out, nil
}

func (r *GateRepository) filter(keep func(*gate.Evaluation) bool) []*gate.Evaluation {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*gate.Evaluation
	for _, e := range r.s.evaluations {
		if keep(e) {
			out = append(out, r.withResolution(e))
		}
	}
	return out
}

func (r *GateRepository) CountUnresolved(_ context.Context, participantID string, results ...gate.Result) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, e := range r.s.evaluations {
		if e.ParticipantID != participantID || !resultIn(e.Result, results) {
			continue
		}
		if _, resolved := r.s.resolutions[e.ID]; !resolved {
			n++
		}
	}
	return n, nil
}

func resultIn(r gate.Result, results []gate.Result) bool {
	for _, want := range results {
		if r == want {
			return true
		}
	}
	return false
}

func (r *GateRepository) OldestUnresolvedBefore(_ context.Context, participantID string, result gate.Result, cutoff time.Time) (*gate.Evaluation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var oldest *gate.Evaluation
	for _, e := range r.s.evaluations {
		if e.ParticipantID != participantID || e.Result != result || e.EvaluatedAt.After(cutoff) {
			continue
		}
		if _, resolved := r.s.resolutions[e.ID]; resolved {
			continue
		}
		if oldest == nil || e.EvaluatedAt.Before(oldest.EvaluatedAt) {
			oldest = e
		}
	}
	if oldest == nil {
		return nil, nil
	}
	cp := *oldest
	return &cp, nil
}

func (r *GateRepository) Resolve(_ context.Context, res gate.Resolution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.evaluations[res.EvaluationID]; !ok {
		return shared.ErrEvaluationNotFound
	}
	if _, ok := r.s.resolutions[res.EvaluationID]; ok {
		return shared.NewDomainError("gate", "Resolve", shared.ErrAlreadyResolved, "evaluation already resolved")
	}
	r.s.resolutions[res.EvaluationID] = res
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DECISION AUDIT
// ══════════════════════════════════════════════════════════════════════════════

// AuditRepository implements audit.Repository.
type AuditRepository struct{ s *Store }

func (r *AuditRepository) ListByParticipant(_ context.Context, participantID string) ([]audit.DecisionRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	recs := r.s.decisions[participantID]
	out := make([]audit.DecisionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

var (
	_ cohort.Repository      = (*CohortRepository)(nil)
	_ participant.Repository = (*ParticipantRepository)(nil)
	_ participant.StateStore = (*ParticipantRepository)(nil)
	_ gate.Repository        = (*GateRepository)(nil)
	_ audit.Repository       = (*AuditRepository)(nil)
)
