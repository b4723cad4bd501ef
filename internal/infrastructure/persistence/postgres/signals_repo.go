package postgres

import (
	"context"
	"errors"

	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/domain/signals"
	"github.com/alem-hub/command-centre/pkg/retry"

	"github.com/jackc/pgx/v5/pgconn"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLABORATOR SIGNAL READERS
// ══════════════════════════════════════════════════════════════════════════════

// SignalReader implements every signals reader over the collaborator tables.
// Reads are retried on transient connection errors.
type SignalReader struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewSignalReader creates a new SignalReader.
func NewSignalReader(conn *Connection) *SignalReader {
	return &SignalReader{
		conn:    conn,
		retrier: retry.DatabaseRetrier(isTransient),
	}
}

// Readers bundles the reader under every collaborator interface.
func (s *SignalReader) Readers() signals.Readers {
	return signals.Readers{
		Missions: s,
		Ledger:   s,
		Income:   s,
		Behavior: s,
		Skills:   s,
		Consents: s,
	}
}

// isTransient reports connection-level failures that never reached the server.
func isTransient(err error) bool {
	if errors.Is(err, ErrConnectionClosed) {
		return false
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// windowBounds maps an unbounded window to NULL bounds.
func windowBounds(w signals.Window) (from, to any) {
	if !w.From.IsZero() {
		from = w.From
	}
	if !w.To.IsZero() {
		to = w.To
	}
	return from, to
}

func (s *SignalReader) scanOne(ctx context.Context, op, query string, dest []any, args ...any) error {
	err := s.retrier.Do(ctx, func(ctx context.Context) error {
		return s.conn.QueryRow(ctx, query, args...).Scan(dest...)
	})
	if err != nil {
		return shared.WrapError("signals", op, shared.ErrPersistenceFailure, "read collaborator data", err)
	}
	return nil
}

// CountAssignments counts mission assignments in w, optionally for one domain.
func (s *SignalReader) CountAssignments(ctx context.Context, participantID, domain string, w signals.Window) (signals.MissionCounts, error) {
	query := `
		SELECT COUNT(*),
			   COUNT(*) FILTER (WHERE status = 'VERIFIED')
		FROM mission_assignments
		WHERE participant_id = $1
		  AND ($2::text = '' OR skill_domain = $2::text)
		  AND ($3::timestamptz IS NULL OR assigned_at >= $3::timestamptz)
		  AND ($4::timestamptz IS NULL OR assigned_at < $4::timestamptz)
	`

	from, to := windowBounds(w)
	var c signals.MissionCounts
	err := s.scanOne(ctx, "CountAssignments", query, []any{&c.Assigned, &c.Verified}, participantID, domain, from, to)
	return c, err
}

// SumMomentum sums MOMENTUM ledger entries in w.
func (s *SignalReader) SumMomentum(ctx context.Context, participantID string, w signals.Window) (float64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)::float8
		FROM momentum_ledger
		WHERE participant_id = $1
		  AND currency = 'MOMENTUM'
		  AND ($2::timestamptz IS NULL OR created_at >= $2::timestamptz)
		  AND ($3::timestamptz IS NULL OR created_at < $3::timestamptz)
	`

	from, to := windowBounds(w)
	var sum float64
	err := s.scanOne(ctx, "SumMomentum", query, []any{&sum}, participantID, from, to)
	return sum, err
}

// VerifiedIncome summarizes VERIFIED income records.
func (s *SignalReader) VerifiedIncome(ctx context.Context, participantID string) (signals.IncomeSummary, error) {
	query := `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE amount > 0), COALESCE(SUM(amount), 0)::float8
		FROM income_records
		WHERE participant_id = $1 AND status = 'VERIFIED'
	`

	var sum signals.IncomeSummary
	err := s.scanOne(ctx, "VerifiedIncome", query, []any{&sum.Count, &sum.Positive, &sum.Total}, participantID)
	return sum, err
}

// CountTagged counts behavioral log entries carrying tag in w.
func (s *SignalReader) CountTagged(ctx context.Context, participantID, tag string, w signals.Window) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM behavior_logs
		WHERE participant_id = $1
		  AND tag = $2
		  AND ($3::timestamptz IS NULL OR occurred_at >= $3::timestamptz)
		  AND ($4::timestamptz IS NULL OR occurred_at < $4::timestamptz)
	`

	from, to := windowBounds(w)
	var n int
	err := s.scanOne(ctx, "CountTagged", query, []any{&n}, participantID, tag, from, to)
	return n, err
}

// Scores returns the skill scores; a participant with no row scores zero.
func (s *SignalReader) Scores(ctx context.Context, participantID string) (signals.SkillScores, error) {
	query := `
		SELECT COALESCE(MAX(technical), 0)::float8,
			   COALESCE(MAX(soft), 0)::float8,
			   COALESCE(MAX(commercial), 0)::float8
		FROM skill_scores
		WHERE participant_id = $1
	`

	var sc signals.SkillScores
	err := s.scanOne(ctx, "Scores", query, []any{&sc.Technical, &sc.Soft, &sc.Commercial}, participantID)
	return sc, err
}

// Consents returns the onboarding consents.
func (s *SignalReader) Consents(ctx context.Context, participantID string) (signals.Consents, error) {
	query := `
		SELECT COUNT(*) > 0,
			   COALESCE(BOOL_OR(daily_action), FALSE),
			   COALESCE(BOOL_OR(weekly_checkin), FALSE),
			   COALESCE(BOOL_OR(failure_acceptance), FALSE),
			   COALESCE(BOOL_OR(data_sharing), FALSE)
		FROM participant_consents
		WHERE participant_id = $1
	`

	var c signals.Consents
	err := s.scanOne(ctx, "Consents", query,
		[]any{&c.OnFile, &c.DailyAction, &c.WeeklyCheckin, &c.FailureAcceptance, &c.DataSharing},
		participantID)
	return c, err
}

var (
	_ signals.MissionReader     = (*SignalReader)(nil)
	_ signals.LedgerReader      = (*SignalReader)(nil)
	_ signals.IncomeReader      = (*SignalReader)(nil)
	_ signals.BehaviorLogReader = (*SignalReader)(nil)
	_ signals.SkillReader       = (*SignalReader)(nil)
	_ signals.ConsentReader     = (*SignalReader)(nil)
)
