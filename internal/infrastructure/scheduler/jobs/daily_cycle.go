// Package jobs contains the scheduled sweeps of the command centre.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alem-hub/command-centre/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// DAILY CYCLE JOB
// Calendar refresh first, then the gate run. Gate days are recomputed from
// the start date, so a failed refresh does not stop the gate run.
// ══════════════════════════════════════════════════════════════════════════════

// CalendarRefresher is the refresh half of the cycle.
type CalendarRefresher interface {
	RefreshAll(ctx context.Context) ([]command.RefreshResult, error)
}

// GateRunner is the gate half of the cycle.
type GateRunner interface {
	RunDaily(ctx context.Context) ([]command.GateRunSummary, error)
}

// DailyCycleStats describes the last run.
type DailyCycleStats struct {
	StartedAt        time.Time `json:"started_at"`
	Duration         string    `json:"duration"`
	CohortsRefreshed int       `json:"cohorts_refreshed"`
	CohortsEvaluated int       `json:"cohorts_evaluated"`
	Passed           int       `json:"passed"`
	Failed           int       `json:"failed"`
	Intervention     int       `json:"intervention"`
	Skipped          int       `json:"skipped"`
	Recovered        int       `json:"recovered"`
	Errors           int       `json:"errors"`
}

// DailyCycleJob implements scheduler.Job.
type DailyCycleJob struct {
	refresher CalendarRefresher
	gates     GateRunner
	logger    *slog.Logger

	lastRunStats atomic.Value // DailyCycleStats
}

// NewDailyCycleJob creates the job.
func NewDailyCycleJob(refresher CalendarRefresher, gates GateRunner, logger *slog.Logger) *DailyCycleJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DailyCycleJob{
		refresher: refresher,
		gates:     gates,
		logger:    logger.With("job", "daily_cycle"),
	}
}

// Name implements scheduler.Job.
func (j *DailyCycleJob) Name() string { return "daily_cycle" }

// Description implements scheduler.Job.
func (j *DailyCycleJob) Description() string {
	return "Refreshes cohort calendars and evaluates the gates due today"
}

// Run implements scheduler.Job.
func (j *DailyCycleJob) Run(ctx context.Context) error {
	start := time.Now()
	stats := DailyCycleStats{StartedAt: start.UTC()}
	defer func() {
		stats.Duration = time.Since(start).String()
		j.lastRunStats.Store(stats)
	}()

	refreshed, err := j.refresher.RefreshAll(ctx)
	if err != nil {
		j.logger.Error("calendar refresh failed, continuing with gate run", "error", err)
	}
	stats.CohortsRefreshed = len(refreshed)

	if err := ctx.Err(); err != nil {
		return err
	}

	summaries, gateErr := j.gates.RunDaily(ctx)
	for _, s := range summaries {
		stats.Recovered += s.Recovered
		stats.Errors += len(s.Errors)
		if s.GateType == "" {
			continue
		}
		stats.CohortsEvaluated++
		stats.Passed += s.Passed
		stats.Failed += s.Failed
		stats.Intervention += s.Intervention
		stats.Skipped += s.Skipped
	}

	j.logger.Info("daily cycle finished",
		"cohorts_refreshed", stats.CohortsRefreshed,
		"cohorts_evaluated", stats.CohortsEvaluated,
		"passed", stats.Passed,
		"failed", stats.Failed,
		"intervention", stats.Intervention,
		"skipped", stats.Skipped,
		"recovered", stats.Recovered,
		"errors", stats.Errors,
	)

	switch {
	case gateErr != nil:
		return fmt.Errorf("gate run: %w", gateErr)
	case err != nil:
		return fmt.Errorf("calendar refresh: %w", err)
	}
	return nil
}

// LastRunStats returns the stats of the last run, if any.
func (j *DailyCycleJob) LastRunStats() (DailyCycleStats, bool) {
	s, ok := j.lastRunStats.Load().(DailyCycleStats)
	return s, ok
}
