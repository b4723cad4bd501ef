package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/alem-hub/command-centre/internal/application/command"
)

// PauseChecker runs one pause sweep.
type PauseChecker interface {
	Run(ctx context.Context) (command.PauseCheckSummary, error)
}

// PauseCheckJob implements scheduler.Job. The sweep only runs while enabled
// reports true, so the feature flag can be flipped without a restart.
type PauseCheckJob struct {
	checker PauseChecker
	enabled func() bool
	logger  *slog.Logger

	lastRunStats atomic.Value // command.PauseCheckSummary
}

// NewPauseCheckJob creates the job. A nil enabled means always on.
func NewPauseCheckJob(checker PauseChecker, enabled func() bool, logger *slog.Logger) *PauseCheckJob {
	if logger == nil {
		logger = slog.Default()
	}
	if enabled == nil {
		enabled = func() bool { return true }
	}
	return &PauseCheckJob{
		checker: checker,
		enabled: enabled,
		logger:  logger.With("job", "pause_check"),
	}
}

// Name implements scheduler.Job.
func (j *PauseCheckJob) Name() string { return "pause_check" }

// Description implements scheduler.Job.
func (j *PauseCheckJob) Description() string {
	return "Pauses participants with low momentum, no activity or stale interventions"
}

// Run implements scheduler.Job.
func (j *PauseCheckJob) Run(ctx context.Context) error {
	if !j.enabled() {
		j.logger.Debug("pause escalation disabled, skipping")
		return nil
	}

	start := time.Now()
	sum, err := j.checker.Run(ctx)
	j.lastRunStats.Store(sum)
	if err != nil {
		return err
	}
	j.logger.Info("pause check finished",
		"checked", sum.Checked,
		"paused", sum.Paused(),
		"errors", len(sum.Errors),
		"duration", time.Since(start).String(),
	)
	return nil
}

// LastRunStats returns the summary of the last run, if any.
func (j *PauseCheckJob) LastRunStats() (command.PauseCheckSummary, bool) {
	s, ok := j.lastRunStats.Load().(command.PauseCheckSummary)
	return s, ok
}
