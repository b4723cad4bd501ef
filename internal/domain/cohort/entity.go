// Package cohort models a group of participants that share one start date and clock.
package cohort

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// Cohort is created by admissions and only ever mutated by the calendar refresh.
// CurrentDay and CurrentPhase are a cache; decisions recompute from StartDate.
type Cohort struct {
	ID           string
	Name         string
	StartDate    time.Time
	Timezone     string
	IsActive     bool
	CurrentDay   int
	CurrentPhase calendar.Phase
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewCohortParams holds the fields required to create a cohort.
type NewCohortParams struct {
	ID        string
	Name      string
	StartDate time.Time
	Timezone  string
}

// NewCohort validates params and normalizes the start date to local midnight.
func NewCohort(p NewCohortParams, now time.Time) (*Cohort, error) {
	if _, err := shared.NewCohortID(p.ID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, shared.NewDomainError("cohort", "Create", shared.ErrEmptyValue, "name is required")
	}
	loc, err := timeutil.LoadLocation(p.Timezone)
	if err != nil {
		return nil, shared.WrapError("cohort", "Create", shared.ErrInvalidInput, "unknown timezone", err)
	}

	c := &Cohort{
		ID:        p.ID,
		Name:      p.Name,
		StartDate: timeutil.StartOfDay(p.StartDate, loc),
		Timezone:  loc.String(),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.CurrentDay, c.CurrentPhase = c.DayAndPhase(now)
	return c, nil
}

// Location resolves the cohort timezone. Unknown zones fall back to UTC so a
// bad row cannot stop a sweep; NewCohort rejects them up front.
func (c *Cohort) Location() *time.Location {
	loc, err := timeutil.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DayAt recomputes the program day from StartDate.
func (c *Cohort) DayAt(now time.Time) int {
	return calendar.CurrentDay(c.StartDate, c.Location(), now)
}

// DayAndPhase recomputes day and phase from StartDate.
func (c *Cohort) DayAndPhase(now time.Time) (int, calendar.Phase) {
	day := c.DayAt(now)
	return day, calendar.PhaseForDay(day)
}

// IsStale reports whether the cached day/phase differ from the computed ones.
func (c *Cohort) IsStale(now time.Time) bool {
	day, phase := c.DayAndPhase(now)
	return day != c.CurrentDay || phase != c.CurrentPhase
}

// Repository persists cohorts.
type Repository interface {
	// Create inserts a cohort. Returns ErrAlreadyExists on duplicate ID.
	Create(ctx context.Context, c *Cohort) error

	// GetByID returns ErrCohortNotFound when absent.
	GetByID(ctx context.Context, id string) (*Cohort, error)

	// ListActive returns active cohorts ordered by start date.
	ListActive(ctx context.Context) ([]*Cohort, error)

	// ListAll returns every cohort ordered by start date.
	ListAll(ctx context.Context) ([]*Cohort, error)

	// UpdateCalendar stores the cached day and phase.
	UpdateCalendar(ctx context.Context, id string, day int, phase calendar.Phase, at time.Time) error

	// SetActive activates or deactivates a cohort. Cohorts are never deleted.
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}
