// Package memory is an in-process implementation of every command centre
// repository. It backs DATABASE_IN_MEMORY deployments and the application
// tests, and enforces the same uniqueness and atomicity rules as PostgreSQL.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/audit"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/signals"
)

// Store holds all tables behind one lock so a transition and its log entry
// become visible together.
type Store struct {
	mu sync.RWMutex

	cohorts      map[string]*cohort.Cohort
	participants map[string]*participant.Participant
	transitions  map[string][]participant.TransitionLogEntry

	evaluations map[string]*gate.Evaluation
	gateKeys    map[gate.Key]string
	resolutions map[string]gate.Resolution

	decisions map[string][]audit.DecisionRecord

	missions []MissionRecord
	momentum []LedgerEntry
	income   []IncomeRecord
	behavior []BehaviorEntry
	scores   map[string]signals.SkillScores
	consents map[string]signals.Consents
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		cohorts:      make(map[string]*cohort.Cohort),
		participants: make(map[string]*participant.Participant),
		transitions:  make(map[string][]participant.TransitionLogEntry),
		evaluations:  make(map[string]*gate.Evaluation),
		gateKeys:     make(map[gate.Key]string),
		resolutions:  make(map[string]gate.Resolution),
		decisions:    make(map[string][]audit.DecisionRecord),
		scores:       make(map[string]signals.SkillScores),
		consents:     make(map[string]signals.Consents),
	}
}

// Cohorts returns the cohort repository view.
func (s *Store) Cohorts() *CohortRepository { return &CohortRepository{s: s} }

// Participants returns the participant repository and state store view.
func (s *Store) Participants() *ParticipantRepository { return &ParticipantRepository{s: s} }

// Gates returns the gate evaluation repository view.
func (s *Store) Gates() *GateRepository { return &GateRepository{s: s} }

// Audit returns the decision audit repository view.
func (s *Store) Audit() *AuditRepository { return &AuditRepository{s: s} }

// Signals returns the collaborator readers and their fixtures.
func (s *Store) Signals() *SignalStore { return &SignalStore{s: s} }

// Ping always succeeds; it lets the store stand in for a database in health checks.
func (s *Store) Ping() error { return nil }

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyParticipant(p *participant.Participant) *participant.Participant {
	cp := *p
	cp.PausedAt = copyTime(p.PausedAt)
	cp.GraduatedAt = copyTime(p.GraduatedAt)
	cp.ExitedAt = copyTime(p.ExitedAt)
	return &cp
}

func sortParticipants(ps []*participant.Participant) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].CohortID != ps[j].CohortID {
			return ps[i].CohortID < ps[j].CohortID
		}
		return ps[i].ID < ps[j].ID
	})
}
