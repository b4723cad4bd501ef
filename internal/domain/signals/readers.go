// Package signals declares the read-only views the command centre takes of
// collaborator subsystems: missions, momentum ledger, income verification,
// behavioral logs, skill scoring and onboarding consents.
package signals

import (
	"context"
	"time"
)

// Window is a half-open time range [From, To).
type Window struct {
	From time.Time
	To   time.Time
}

// Trailing returns the window of the last d ending at now.
func Trailing(now time.Time, d time.Duration) Window {
	return Window{From: now.Add(-d), To: now}
}

// Unbounded matches all time.
var Unbounded = Window{}

// IsUnbounded reports whether w has no limits.
func (w Window) IsUnbounded() bool {
	return w.From.IsZero() && w.To.IsZero()
}

// MissionCounts summarizes mission assignments.
type MissionCounts struct {
	Assigned int
	Verified int
}

// MissionReader reads the mission subsystem.
type MissionReader interface {
	// CountAssignments counts assignments created inside w. An empty domain
	// matches every skill domain.
	CountAssignments(ctx context.Context, participantID, domain string, w Window) (MissionCounts, error)
}

// LedgerReader reads the currency ledger.
type LedgerReader interface {
	// SumMomentum sums signed MOMENTUM entries inside w.
	SumMomentum(ctx context.Context, participantID string, w Window) (float64, error)
}

// IncomeSummary summarizes VERIFIED income records. Positive counts the
// records with an amount above zero; refunds and corrections are negative.
type IncomeSummary struct {
	Count    int
	Positive int
	Total    float64
}

// IncomeReader reads the income-verification subsystem.
type IncomeReader interface {
	VerifiedIncome(ctx context.Context, participantID string) (IncomeSummary, error)
}

// Behavioral log tags read by the rules.
const (
	TagOutreach = "outreach"
	TagCheckin  = "checkin"
)

// BehaviorLogReader reads the behavioral log.
type BehaviorLogReader interface {
	CountTagged(ctx context.Context, participantID, tag string, w Window) (int, error)
}

// SkillScores are the current scores of a participant.
type SkillScores struct {
	Technical  float64
	Soft       float64
	Commercial float64
}

// SkillReader reads the skill-scoring subsystem.
type SkillReader interface {
	// Scores returns zero scores for a participant with no record.
	Scores(ctx context.Context, participantID string) (SkillScores, error)
}

// Consents are the four onboarding commitments.
type Consents struct {
	DailyAction       bool
	WeeklyCheckin     bool
	FailureAcceptance bool
	DataSharing       bool
	OnFile            bool
}

// ConsentReader reads onboarding consents.
type ConsentReader interface {
	// Consents returns all-false with OnFile unset when nothing was recorded.
	Consents(ctx context.Context, participantID string) (Consents, error)
}

// CommercialDomain is the mission skill domain counted by the market-contact gate.
const CommercialDomain = "commercial"

// Readers bundles every collaborator view.
type Readers struct {
	Missions MissionReader
	Ledger   LedgerReader
	Income   IncomeReader
	Behavior BehaviorLogReader
	Skills   SkillReader
	Consents ConsentReader
}
