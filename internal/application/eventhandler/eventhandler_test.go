package eventhandler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/infrastructure/messaging"
)

var at = time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)

type invalidations struct {
	cohorts []string
	err     error
}

func (i *invalidations) Invalidate(_ context.Context, cohortID string) error {
	i.cohorts = append(i.cohorts, cohortID)
	return i.err
}

func syncBus(t *testing.T) *messaging.InMemoryEventBus {
	t.Helper()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestRegisterRoutesEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cache := &invalidations{}
	gates := NewOnGateEvaluatedHandler(logger)
	var fed []shared.EventType

	bus := syncBus(t)
	require.NoError(t, Register(bus, Set{
		Journal:         NewJournal(logger),
		CohortRefreshed: NewOnCohortRefreshedHandler(cache, time.Second, logger),
		GateEvaluated:   gates,
		Feeds: []shared.EventHandler{func(e shared.Event) error {
			fed = append(fed, e.EventType())
			return nil
		}},
	}))

	require.NoError(t, bus.Publish(shared.NewCohortRefreshedEvent("c1", 43, "MARKET", at)))
	require.NoError(t, bus.Publish(shared.NewGateEvaluatedEvent("e1", "p1", "c1", "BASELINE", "INTERVENTION_REQUIRED", at)))
	require.NoError(t, bus.Publish(shared.NewGateEvaluatedEvent("e2", "p2", "c1", "BASELINE", "PASS", at)))

	assert.Equal(t, []string{"c1"}, cache.cohorts)
	assert.Equal(t, map[gate.Result]int{gate.ResultInterventionRequired: 1, gate.ResultPass: 1}, gates.Tally("c1", gate.TypeBaseline))
	assert.Len(t, fed, 3)

	out := buf.String()
	assert.Contains(t, out, `"msg":"domain event"`)
	assert.Contains(t, out, `"msg":"intervention required"`)
	assert.Contains(t, out, `"evaluation_id":"e1"`)
}

func TestCohortRefreshedIgnoresCacheErrors(t *testing.T) {
	cache := &invalidations{err: errors.New("connection refused")}
	h := NewOnCohortRefreshedHandler(cache, 0, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	assert.NoError(t, h.Handle(shared.NewCohortRefreshedEvent("c9", 2, "TRAINING", at)))
	assert.Equal(t, []string{"c9"}, cache.cohorts)

	// Wrong event type is tolerated.
	assert.NoError(t, h.Handle(shared.NewGraduationDecidedEvent("p1", "GRADUATED", "SYSTEM", "passed", at)))
	assert.Len(t, cache.cohorts, 1)
}

func TestNilCacheIsNoop(t *testing.T) {
	h := NewOnCohortRefreshedHandler(nil, 0, nil)
	assert.NoError(t, h.Handle(shared.NewCohortRefreshedEvent("c1", 1, "TRAINING", at)))
}
