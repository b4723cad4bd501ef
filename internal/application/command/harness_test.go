package command

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []shared.Event
}

func (r *recorder) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) ofType(t shared.EventType) []shared.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []shared.Event
	for _, e := range r.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// counter is a Metrics fake.
type counter struct {
	mu          sync.Mutex
	gates       map[string]int
	transitions int
	pauses      map[string]int
}

func newCounter() *counter {
	return &counter{gates: map[string]int{}, pauses: map[string]int{}}
}

func (c *counter) GateEvaluated(_ context.Context, gateType, result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gates[gateType+"/"+result]++
}

func (c *counter) StateTransitioned(context.Context, string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions++
}

func (c *counter) PauseTriggered(_ context.Context, trigger string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauses[trigger]++
}

type harness struct {
	store      *memory.Store
	signals    *memory.SignalStore
	events     *recorder
	metrics    *counter
	clock      timeutil.FixedClock
	authority  *Authority
	graduation *GraduationAuthority
	gates      *GateRunner
	pauses     *PauseEscalation
	refresher  *CalendarRefresher
	resolver   *ResolveInterventionHandler
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   memory.NewStore(),
		events:  &recorder{},
		metrics: newCounter(),
		clock:   timeutil.FixedClock{T: testNow},
	}
	h.signals = h.store.Signals()
	h.wire()
	return h
}

// wire builds the handlers against the current clock.
func (h *harness) wire() {
	log := quietLogger()
	readers := h.signals.Readers()

	h.authority = NewAuthority(h.store.Participants(), h.events, h.metrics, h.clock, log)
	h.graduation = NewGraduationAuthority(GraduationDeps{
		Participants: h.store.Participants(),
		Cohorts:      h.store.Cohorts(),
		Gates:        h.store.Gates(),
		Income:       readers.Income,
		Authority:    h.authority,
		Events:       h.events,
		Clock:        h.clock,
		Logger:       log,
	})
	h.gates = NewGateRunner(GateRunnerDeps{
		Cohorts:      h.store.Cohorts(),
		Participants: h.store.Participants(),
		Gates:        h.store.Gates(),
		Signals:      readers,
		Authority:    h.authority,
		Concluder:    h.graduation,
		Events:       h.events,
		Metrics:      h.metrics,
		Clock:        h.clock,
		Logger:       log,
	})
	h.pauses = NewPauseEscalation(PauseEscalationDeps{
		Participants: h.store.Participants(),
		Gates:        h.store.Gates(),
		Signals:      readers,
		Authority:    h.authority,
		Metrics:      h.metrics,
		Clock:        h.clock,
		Logger:       log,
	})
	h.refresher = NewCalendarRefresher(h.store.Cohorts(), gate.Schedule{}, nil, h.events, h.clock, log)
	h.resolver = NewResolveInterventionHandler(h.store.Gates(), h.events, h.clock, log)
}

// advance moves the clock and rebuilds the handlers.
func (h *harness) advance(d time.Duration) {
	h.clock = timeutil.FixedClock{T: h.clock.T.Add(d)}
	h.wire()
}

// cohortAtDay creates an active UTC cohort whose program day at testNow is day.
func (h *harness) cohortAtDay(t *testing.T, id string, day int) *cohort.Cohort {
	t.Helper()
	c, err := cohort.NewCohort(cohort.NewCohortParams{
		ID:        id,
		Name:      "Cohort " + id,
		StartDate: testNow.AddDate(0, 0, -(day - 1)),
		Timezone:  "UTC",
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, h.store.Cohorts().Create(context.Background(), c))
	return c
}

func (h *harness) admit(t *testing.T, id, cohortID string) *participant.Participant {
	t.Helper()
	p, err := participant.New(id, "user-"+id, cohortID, testNow.AddDate(0, -4, 0))
	require.NoError(t, err)
	require.NoError(t, h.store.Participants().Create(context.Background(), p))
	return p
}

// admitIn admits a participant and moves it to state through the authority.
func (h *harness) admitIn(t *testing.T, id, cohortID string, state participant.LifecycleState) *participant.Participant {
	t.Helper()
	p := h.admit(t, id, cohortID)
	if state == participant.InitialState {
		return p
	}
	_, err := h.authority.Transition(context.Background(), participant.TransitionRequest{
		ParticipantID: id,
		ToState:       state,
		Reason:        "fixture",
		TriggeredBy:   "fixture@example.org",
	})
	require.NoError(t, err)
	return h.get(t, id)
}

func (h *harness) get(t *testing.T, id string) *participant.Participant {
	t.Helper()
	p, err := h.store.Participants().GetByID(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) history(t *testing.T, id string) []participant.TransitionLogEntry {
	t.Helper()
	entries, err := h.store.Participants().History(context.Background(), id)
	require.NoError(t, err)
	return entries
}

// requireReplayMatches checks that folding the log yields the cached state.
func (h *harness) requireReplayMatches(t *testing.T, id string) {
	t.Helper()
	state, err := participant.Replay(h.history(t, id))
	require.NoError(t, err)
	require.Equal(t, h.get(t, id).LifecycleState, state, "log replay of %s", id)
}

// engaged seeds enough activity that no pause check triggers.
func (h *harness) engaged(id string) {
	h.signals.AddMomentum(memory.LedgerEntry{ParticipantID: id, Amount: 80, At: h.clock.T.Add(-24 * time.Hour)})
	h.signals.AddMission(memory.MissionRecord{ParticipantID: id, Domain: "backend", AssignedAt: h.clock.T.Add(-48 * time.Hour)})
}
