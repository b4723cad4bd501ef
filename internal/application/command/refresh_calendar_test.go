package command

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

type snapshotCache struct {
	mu   sync.Mutex
	puts map[string]calendar.Snapshot
	err  error
}

func (c *snapshotCache) Put(_ context.Context, cohortID, date string, snap calendar.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.puts == nil {
		c.puts = map[string]calendar.Snapshot{}
	}
	c.puts[cohortID+"@"+date] = snap
	return nil
}

func TestRefreshCohortAdvancesDayAndPhase(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 42)
	h.advance(oneDay)

	cache := &snapshotCache{}
	r := NewCalendarRefresher(h.store.Cohorts(), gate.Schedule{}, cache, h.events, h.clock, quietLogger())

	res, err := r.RefreshCohort(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 43, res.Day)
	assert.Equal(t, calendar.PhaseMarket, res.Phase)

	c, err := h.store.Cohorts().GetByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 43, c.CurrentDay)
	assert.Equal(t, calendar.PhaseMarket, c.CurrentPhase)

	snap, ok := cache.puts["c1@2026-04-02"]
	require.True(t, ok, "cache keyed by local date: %v", cache.puts)
	assert.Equal(t, 43, snap.Day)
	assert.Len(t, h.events.ofType(shared.EventCohortRefreshed), 1)

	// Same day again: stored values unchanged, no second event.
	res, err = r.RefreshCohort(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 43, res.Day)
	assert.Len(t, h.events.ofType(shared.EventCohortRefreshed), 1)
}

func TestRefreshCohortSkips(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "off", 10)
	require.NoError(t, h.store.Cohorts().SetActive(context.Background(), "off", false, testNow))

	res, err := h.refresher.RefreshCohort(context.Background(), "off")
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.NotEmpty(t, res.Skipped)

	res, err = h.refresher.RefreshCohort(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, res.Updated)
	assert.Equal(t, "cohort not found", res.Skipped)
}

func TestRefreshCacheFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "c1", 5)
	h.advance(2 * oneDay)

	cache := &snapshotCache{err: errors.New("redis down")}
	r := NewCalendarRefresher(h.store.Cohorts(), gate.Schedule{}, cache, h.events, h.clock, quietLogger())

	res, err := r.RefreshCohort(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, res.Updated)
	assert.Equal(t, 7, res.Day)
}

func TestRefreshAllCoversActiveCohorts(t *testing.T) {
	h := newHarness(t)
	h.cohortAtDay(t, "a", 1)
	h.cohortAtDay(t, "b", 60)
	h.cohortAtDay(t, "off", 3)
	require.NoError(t, h.store.Cohorts().SetActive(context.Background(), "off", false, testNow))
	h.advance(oneDay)

	results, err := h.refresher.RefreshAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	days := map[string]int{}
	for _, r := range results {
		days[r.CohortID] = r.Day
	}
	assert.Equal(t, map[string]int{"a": 2, "b": 61}, days)
}
