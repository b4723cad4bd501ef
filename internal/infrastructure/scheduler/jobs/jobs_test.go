package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/application/command"
	"github.com/alem-hub/command-centre/internal/domain/gate"
)

type stubRefresher struct {
	calls int
	err   error
	order *[]string
}

func (s *stubRefresher) RefreshAll(context.Context) ([]command.RefreshResult, error) {
	s.calls++
	*s.order = append(*s.order, "refresh")
	if s.err != nil {
		return nil, s.err
	}
	return []command.RefreshResult{{CohortID: "c1", Updated: true}, {CohortID: "c2", Updated: true}}, nil
}

type stubGates struct {
	order *[]string
}

func (s *stubGates) RunDaily(context.Context) ([]command.GateRunSummary, error) {
	*s.order = append(*s.order, "gates")
	return []command.GateRunSummary{
		{CohortID: "c1", Day: 30, GateType: gate.TypeSellableSkill, Passed: 3, Intervention: 2},
		{CohortID: "c2", Day: 12, Recovered: 1},
	}, nil
}

func TestDailyCycleRefreshesBeforeGates(t *testing.T) {
	var order []string
	job := NewDailyCycleJob(&stubRefresher{order: &order}, &stubGates{order: &order}, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"refresh", "gates"}, order)

	stats, ok := job.LastRunStats()
	require.True(t, ok)
	assert.Equal(t, 2, stats.CohortsRefreshed)
	assert.Equal(t, 1, stats.CohortsEvaluated)
	assert.Equal(t, 3, stats.Passed)
	assert.Equal(t, 2, stats.Intervention)
	assert.Equal(t, 1, stats.Recovered, "recoveries count on days without a gate")
}

func TestDailyCycleRunsGatesWhenRefreshFails(t *testing.T) {
	var order []string
	job := NewDailyCycleJob(&stubRefresher{order: &order, err: errors.New("db down")}, &stubGates{order: &order}, nil)

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calendar refresh")
	assert.Equal(t, []string{"refresh", "gates"}, order)
}

type stubPauses struct{ calls int }

func (s *stubPauses) Run(context.Context) (command.PauseCheckSummary, error) {
	s.calls++
	return command.PauseCheckSummary{Checked: 4, PausedMomentum: 1}, nil
}

func TestPauseCheckHonorsFlag(t *testing.T) {
	checker := &stubPauses{}
	on := false
	job := NewPauseCheckJob(checker, func() bool { return on }, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Zero(t, checker.calls)
	_, ok := job.LastRunStats()
	assert.False(t, ok)

	on = true
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, checker.calls)
	sum, ok := job.LastRunStats()
	require.True(t, ok)
	assert.Equal(t, 1, sum.Paused())
}
