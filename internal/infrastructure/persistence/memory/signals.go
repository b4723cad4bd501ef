package memory

import (
	"context"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/signals"
)

// MissionRecord is one mission assignment.
type MissionRecord struct {
	ParticipantID string
	Domain        string
	Verified      bool
	AssignedAt    time.Time
}

// LedgerEntry is one MOMENTUM ledger movement.
type LedgerEntry struct {
	ParticipantID string
	Amount        float64
	At            time.Time
}

// IncomeRecord is one income claim.
type IncomeRecord struct {
	ParticipantID string
	Amount        float64
	Verified      bool
}

// BehaviorEntry is one tagged behavioral log entry.
type BehaviorEntry struct {
	ParticipantID string
	Tag           string
	At            time.Time
}

// SignalStore implements every collaborator reader and exposes writers used
// to seed data.
type SignalStore struct{ s *Store }

// Readers bundles the store under every collaborator interface.
func (ss *SignalStore) Readers() signals.Readers {
	return signals.Readers{
		Missions: ss,
		Ledger:   ss,
		Income:   ss,
		Behavior: ss,
		Skills:   ss,
		Consents: ss,
	}
}

func inWindow(t time.Time, w signals.Window) bool {
	if !w.From.IsZero() && t.Before(w.From) {
		return false
	}
	if !w.To.IsZero() && !t.Before(w.To) {
		return false
	}
	return true
}

// AddMission records a mission assignment.
func (ss *SignalStore) AddMission(m MissionRecord) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	ss.s.missions = append(ss.s.missions, m)
}

// AddMomentum records a MOMENTUM ledger entry.
func (ss *SignalStore) AddMomentum(e LedgerEntry) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	ss.s.momentum = append(ss.s.momentum, e)
}

// AddIncome records an income claim.
func (ss *SignalStore) AddIncome(r IncomeRecord) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	ss.s.income = append(ss.s.income, r)
}

// AddBehavior records a tagged behavioral log entry.
func (ss *SignalStore) AddBehavior(e BehaviorEntry) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	ss.s.behavior = append(ss.s.behavior, e)
}

// SetScores replaces a participant's skill scores.
func (ss *SignalStore) SetScores(participantID string, sc signals.SkillScores) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	ss.s.scores[participantID] = sc
}

// SetConsents records onboarding consents. OnFile is always set.
func (ss *SignalStore) SetConsents(participantID string, c signals.Consents) {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	c.OnFile = true
	ss.s.consents[participantID] = c
}

func (ss *SignalStore) CountAssignments(_ context.Context, participantID, domain string, w signals.Window) (signals.MissionCounts, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()

	var c signals.MissionCounts
	for _, m := range ss.s.missions {
		if m.ParticipantID != participantID || !inWindow(m.AssignedAt, w) {
			continue
		}
		if domain != "" && m.Domain != domain {
			continue
		}
		c.Assigned++
		if m.Verified {
			c.Verified++
		}
	}
	return c, nil
}

func (ss *SignalStore) SumMomentum(_ context.Context, participantID string, w signals.Window) (float64, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()

	var sum float64
	for _, e := range ss.s.momentum {
		if e.ParticipantID == participantID && inWindow(e.At, w) {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (ss *SignalStore) VerifiedIncome(_ context.Context, participantID string) (signals.IncomeSummary, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()

	var sum signals.IncomeSummary
	for _, r := range ss.s.income {
		if r.ParticipantID == participantID && r.Verified {
			sum.Count++
			sum.Total += r.Amount
			if r.Amount > 0 {
				sum.Positive++
			}
		}
	}
	return sum, nil
}

func (ss *SignalStore) CountTagged(_ context.Context, participantID, tag string, w signals.Window) (int, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()

	n := 0
	for _, e := range ss.s.behavior {
		if e.ParticipantID == participantID && e.Tag == tag && inWindow(e.At, w) {
			n++
		}
	}
	return n, nil
}

func (ss *SignalStore) Scores(_ context.Context, participantID string) (signals.SkillScores, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	return ss.s.scores[participantID], nil
}

func (ss *SignalStore) Consents(_ context.Context, participantID string) (signals.Consents, error) {
	ss.s.mu.RLock()
	defer ss.s.mu.RUnlock()
	return ss.s.consents[participantID], nil
}
