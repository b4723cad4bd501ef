// Package query contains read operations (CQRS - Queries) behind the
// administrative surface. Nothing here changes state.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// MaxUpcomingWindow caps the look-ahead of UpcomingGates.
const MaxUpcomingWindow = calendar.ProgramLength

// CalendarCache is the read-through snapshot cache. Implementations key by
// cohort and local date, so a cached entry never outlives its day.
type CalendarCache interface {
	Get(ctx context.Context, cohortID, date string) (calendar.Snapshot, bool, error)
	Put(ctx context.Context, cohortID, date string, snap calendar.Snapshot) error
}

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// CohortDTO is a cohort as shown to operators. Day and Phase are recomputed;
// StoredDay and StoredPhase are what the last refresh wrote.
type CohortDTO struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	StartDate   string         `json:"start_date"`
	Timezone    string         `json:"timezone"`
	IsActive    bool           `json:"is_active"`
	Day         int            `json:"day"`
	Phase       calendar.Phase `json:"phase"`
	StoredDay   int            `json:"stored_day"`
	StoredPhase calendar.Phase `json:"stored_phase"`
	RefreshedAt time.Time      `json:"refreshed_at"`
}

// CalendarView is the full calendar of one cohort.
type CalendarView struct {
	Cohort   CohortDTO         `json:"cohort"`
	Calendar calendar.Snapshot `json:"calendar"`
	Cached   bool              `json:"cached"`
}

// UpcomingGatesView lists gates due inside a window.
type UpcomingGatesView struct {
	CohortID   string                  `json:"cohort_id"`
	Day        int                     `json:"day"`
	WindowDays int                     `json:"window_days"`
	Gates      []calendar.UpcomingGate `json:"gates"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// CohortQueries answers cohort and calendar questions.
type CohortQueries struct {
	cohorts  cohort.Repository
	schedule gate.Schedule
	cache    CalendarCache
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewCohortQueries creates CohortQueries. cache may be nil.
func NewCohortQueries(cohorts cohort.Repository, schedule gate.Schedule, cache CalendarCache, clock timeutil.Clock, logger *slog.Logger) *CohortQueries {
	if schedule.Len() == 0 {
		schedule = gate.DefaultSchedule()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CohortQueries{
		cohorts:  cohorts,
		schedule: schedule,
		cache:    cache,
		clock:    clock,
		logger:   logger.With("component", "cohort_queries"),
	}
}

// ListCohorts returns cohorts ordered by start date.
func (q *CohortQueries) ListCohorts(ctx context.Context, activeOnly bool) ([]CohortDTO, error) {
	var (
		cs  []*cohort.Cohort
		err error
	)
	if activeOnly {
		cs, err = q.cohorts.ListActive(ctx)
	} else {
		cs, err = q.cohorts.ListAll(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("list cohorts: %w", err)
	}

	now := q.clock.Now()
	out := make([]CohortDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCohortDTO(c, now))
	}
	return out, nil
}

// Calendar returns day, phase and every milestone of a cohort, reading
// through the cache when one is configured.
func (q *CohortQueries) Calendar(ctx context.Context, cohortID string) (*CalendarView, error) {
	c, err := q.cohorts.GetByID(ctx, cohortID)
	if err != nil {
		return nil, err
	}

	now := q.clock.Now()
	loc := c.Location()
	date := timeutil.FormatDate(now, loc)
	view := &CalendarView{Cohort: toCohortDTO(c, now)}

	if q.cache != nil {
		snap, ok, err := q.cache.Get(ctx, c.ID, date)
		switch {
		case err != nil:
			q.logger.Warn("calendar cache read failed", "cohort_id", c.ID, "error", err)
		case ok:
			view.Calendar, view.Cached = snap, true
			return view, nil
		}
	}

	view.Calendar = calendar.Compute(c.StartDate, loc, q.schedule, now)
	if q.cache != nil {
		if err := q.cache.Put(ctx, c.ID, date, view.Calendar); err != nil {
			q.logger.Warn("calendar cache write failed", "cohort_id", c.ID, "error", err)
		}
	}
	return view, nil
}

// UpcomingGates lists gates due within windowDays of today, inclusive.
func (q *CohortQueries) UpcomingGates(ctx context.Context, cohortID string, windowDays int) (*UpcomingGatesView, error) {
	if windowDays < 0 || windowDays > MaxUpcomingWindow {
		return nil, shared.NewDomainError("query", "UpcomingGates", shared.ErrInvalidInput,
			fmt.Sprintf("window must be between 0 and %d days", MaxUpcomingWindow))
	}
	c, err := q.cohorts.GetByID(ctx, cohortID)
	if err != nil {
		return nil, err
	}

	now := q.clock.Now()
	gates := calendar.UpcomingGates(c.StartDate, c.Location(), q.schedule, now, windowDays)
	if gates == nil {
		gates = []calendar.UpcomingGate{}
	}
	return &UpcomingGatesView{
		CohortID:   c.ID,
		Day:        c.DayAt(now),
		WindowDays: windowDays,
		Gates:      gates,
	}, nil
}

func toCohortDTO(c *cohort.Cohort, now time.Time) CohortDTO {
	day, phase := c.DayAndPhase(now)
	return CohortDTO{
		ID:          c.ID,
		Name:        c.Name,
		StartDate:   timeutil.FormatDate(c.StartDate, c.Location()),
		Timezone:    c.Timezone,
		IsActive:    c.IsActive,
		Day:         day,
		Phase:       phase,
		StoredDay:   c.CurrentDay,
		StoredPhase: c.CurrentPhase,
		RefreshedAt: c.UpdatedAt,
	}
}
