package cohort

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

func TestNewCohortNormalizesStart(t *testing.T) {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	c, err := NewCohort(NewCohortParams{
		ID:        "c-1",
		Name:      "Spring",
		StartDate: time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC),
		Timezone:  "Asia/Almaty",
	}, now)
	require.NoError(t, err)

	loc := c.Location()
	assert.Equal(t, 0, c.StartDate.In(loc).Hour())
	assert.Equal(t, 10, c.StartDate.In(loc).Day())
	assert.True(t, c.IsActive)
	assert.Equal(t, calendar.PhaseTraining, c.CurrentPhase)
	assert.False(t, c.IsStale(now))
	assert.True(t, c.IsStale(now.AddDate(0, 0, 1)))
}

func TestNewCohortValidation(t *testing.T) {
	now := time.Now()

	_, err := NewCohort(NewCohortParams{Name: "x", StartDate: now}, now)
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = NewCohort(NewCohortParams{ID: "c", StartDate: now}, now)
	assert.ErrorIs(t, err, shared.ErrEmptyValue)

	_, err = NewCohort(NewCohortParams{ID: "c", Name: "x", StartDate: now, Timezone: "Nowhere/Land"}, now)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
