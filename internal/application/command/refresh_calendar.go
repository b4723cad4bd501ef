package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR REFRESH
// Writes the denormalized day and phase onto each cohort. The values are a
// pure function of StartDate and the clock, so the refresh can run any
// number of times a day.
// ══════════════════════════════════════════════════════════════════════════════

// RefreshResult reports one cohort refresh.
type RefreshResult struct {
	CohortID string         `json:"cohort_id"`
	Updated  bool           `json:"updated"`
	Skipped  string         `json:"skipped,omitempty"`
	Day      int            `json:"day"`
	Phase    calendar.Phase `json:"phase"`
}

// CalendarRefresher refreshes cohort calendars.
type CalendarRefresher struct {
	cohorts  cohort.Repository
	schedule gate.Schedule
	cache    CalendarCache
	events   shared.EventPublisher
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewCalendarRefresher creates a CalendarRefresher. cache, events and logger may be nil.
func NewCalendarRefresher(
	cohorts cohort.Repository,
	schedule gate.Schedule,
	cache CalendarCache,
	events shared.EventPublisher,
	clock timeutil.Clock,
	logger *slog.Logger,
) *CalendarRefresher {
	if schedule.Len() == 0 {
		schedule = gate.DefaultSchedule()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &CalendarRefresher{
		cohorts:  cohorts,
		schedule: schedule,
		cache:    cache,
		events:   orNopPublisher(events),
		clock:    clock,
		logger:   orDefaultLogger(logger, "calendar"),
	}
}

// RefreshCohort recomputes and stores day and phase. A missing or inactive
// cohort is a no-op, reported through RefreshResult.Skipped.
func (r *CalendarRefresher) RefreshCohort(ctx context.Context, cohortID string) (RefreshResult, error) {
	c, err := r.cohorts.GetByID(ctx, cohortID)
	if err != nil {
		if shared.IsNotFound(err) {
			return RefreshResult{CohortID: cohortID, Skipped: "cohort not found"}, nil
		}
		return RefreshResult{CohortID: cohortID}, err
	}
	return r.refresh(ctx, c)
}

// RefreshAll refreshes every active cohort. Per-cohort failures are logged
// and counted; the returned error covers listing only.
func (r *CalendarRefresher) RefreshAll(ctx context.Context) ([]RefreshResult, error) {
	cohorts, err := r.cohorts.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active cohorts: %w", err)
	}

	results := make([]RefreshResult, 0, len(cohorts))
	failed := 0
	for _, c := range cohorts {
		res, err := r.refresh(ctx, c)
		if err != nil {
			failed++
			r.logger.Error("refresh failed", "cohort_id", c.ID, "error", err)
			continue
		}
		results = append(results, res)
	}
	r.logger.Info("calendar refresh finished", "refreshed", len(results), "failed", failed)
	return results, nil
}

func (r *CalendarRefresher) refresh(ctx context.Context, c *cohort.Cohort) (RefreshResult, error) {
	res := RefreshResult{CohortID: c.ID}
	if !c.IsActive {
		res.Skipped = "cohort is inactive"
		return res, nil
	}

	now := r.clock.Now()
	loc := c.Location()
	snap := calendar.Compute(c.StartDate, loc, r.schedule, now)
	res.Day, res.Phase = snap.Day, snap.Phase

	if err := r.cohorts.UpdateCalendar(ctx, c.ID, snap.Day, snap.Phase, now.UTC()); err != nil {
		return res, err
	}
	res.Updated = true

	if r.cache != nil {
		if err := r.cache.Put(ctx, c.ID, timeutil.FormatDate(now, loc), snap); err != nil {
			r.logger.Warn("calendar cache write failed", "cohort_id", c.ID, "error", err)
		}
	}

	if c.CurrentDay != snap.Day || c.CurrentPhase != snap.Phase {
		r.logger.Info("cohort calendar advanced",
			"cohort_id", c.ID,
			"day", snap.Day,
			"phase", snap.Phase,
		)
		if err := r.events.Publish(shared.NewCohortRefreshedEvent(c.ID, snap.Day, string(snap.Phase), now.UTC())); err != nil {
			r.logger.Warn("publish cohort refresh", "cohort_id", c.ID, "error", err)
		}
	}
	return res, nil
}
