// Package command contains the write side of the command centre: the state
// authority, the calendar refresh, the gate run, pause escalation, graduation
// and intervention resolution.
package command

import (
	"context"
	"log/slog"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// Metrics receives the counters emitted by the handlers.
// *telemetry.Metrics satisfies it.
type Metrics interface {
	GateEvaluated(ctx context.Context, gateType, result string)
	StateTransitioned(ctx context.Context, from, to string)
	PauseTriggered(ctx context.Context, trigger string)
}

type nopMetrics struct{}

func (nopMetrics) GateEvaluated(context.Context, string, string)     {}
func (nopMetrics) StateTransitioned(context.Context, string, string) {}
func (nopMetrics) PauseTriggered(context.Context, string)            {}

// CalendarCache stores refreshed calendar snapshots. Writes are best effort.
type CalendarCache interface {
	Put(ctx context.Context, cohortID, date string, snap calendar.Snapshot) error
}

// RunLocker serializes overlapping runs for the same resource. An error
// matching shared.ErrConcurrentModification means another worker holds it.
type RunLocker interface {
	Acquire(ctx context.Context, resource string) (release func(context.Context) error, err error)
}

func orNopMetrics(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}

func orNopPublisher(p shared.EventPublisher) shared.EventPublisher {
	if p == nil {
		return shared.NopPublisher{}
	}
	return p
}

func orDefaultLogger(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", component)
}
