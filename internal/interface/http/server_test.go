package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alem-hub/command-centre/internal/application/command"
	"github.com/alem-hub/command-centre/internal/application/query"
	"github.com/alem-hub/command-centre/internal/domain/cohort"
	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/participant"
	"github.com/alem-hub/command-centre/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/command-centre/internal/interface/http/handlers"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

const testKey = "s3cret-admin-key"

var testNow = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	} `json:"error"`
	Meta *ResponseMeta `json:"meta"`
}

type fixture struct {
	store   *memory.Store
	handler http.Handler
}

// newFixture serves cohort c1 on day 30 with participants p1 and p2.
func newFixture(t *testing.T, mutate func(*Config, *Dependencies)) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := timeutil.FixedClock{T: testNow}
	store := memory.NewStore()
	readers := store.Signals().Readers()

	c, err := cohort.NewCohort(cohort.NewCohortParams{
		ID: "c1", Name: "Spring", StartDate: testNow.AddDate(0, 0, -29), Timezone: "UTC",
	}, testNow)
	require.NoError(t, err)
	require.NoError(t, store.Cohorts().Create(context.Background(), c))
	for _, id := range []string{"p1", "p2"} {
		p, err := participant.New(id, "user-"+id, "c1", testNow.AddDate(0, -1, 0))
		require.NoError(t, err)
		require.NoError(t, store.Participants().Create(context.Background(), p))
	}

	authority := command.NewAuthority(store.Participants(), nil, nil, clock, log)
	graduation := command.NewGraduationAuthority(command.GraduationDeps{
		Participants: store.Participants(),
		Cohorts:      store.Cohorts(),
		Gates:        store.Gates(),
		Income:       readers.Income,
		Authority:    authority,
		Clock:        clock,
		Logger:       log,
	})
	runner := command.NewGateRunner(command.GateRunnerDeps{
		Cohorts:      store.Cohorts(),
		Participants: store.Participants(),
		Gates:        store.Gates(),
		Signals:      readers,
		Authority:    authority,
		Concluder:    graduation,
		Clock:        clock,
		Logger:       log,
	})
	pauses := command.NewPauseEscalation(command.PauseEscalationDeps{
		Participants: store.Participants(),
		Gates:        store.Gates(),
		Signals:      readers,
		Authority:    authority,
		Clock:        clock,
		Logger:       log,
	})

	hash, err := bcrypt.GenerateFromPassword([]byte(testKey), bcrypt.MinCost)
	require.NoError(t, err)
	auth, err := handlers.NewAPIKeyAuth([]string{string(hash)})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	deps := Dependencies{
		Cohorts:      query.NewCohortQueries(store.Cohorts(), gate.Schedule{}, nil, clock, log),
		Gates:        query.NewGateQueries(store.Cohorts(), store.Gates()),
		Participants: query.NewParticipantQueries(store.Participants(), store.Gates(), store.Audit(), clock),
		GateRunner:   runner,
		Refresher:    command.NewCalendarRefresher(store.Cohorts(), gate.Schedule{}, nil, nil, clock, log),
		Pauses:       pauses,
		Graduation:   graduation,
		Resolver:     command.NewResolveInterventionHandler(store.Gates(), nil, clock, log),
		Auth:         auth,
		Logger:       log,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	return &fixture{store: store, handler: NewServer(cfg, deps).Handler()}
}

func (f *fixture) do(t *testing.T, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func withKey(extra ...string) map[string]string {
	h := map[string]string{"X-API-Key": testKey}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec, env = f.do(t, http.MethodGet, "/ready", "", map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "req-42", env.Meta.RequestID)
}

func TestHealthReflectsCriticalChecks(t *testing.T) {
	checker := handlers.NewCompositeHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	checker.AddOptionalCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	f := newFixture(t, func(_ *Config, d *Dependencies) { d.HealthChecker = checker })
	rec, env := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "optional check must not fail health")

	var status handlers.HealthStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Checks["redis"].Healthy)

	checker.AddCheck("postgres", func(context.Context) error { return errors.New("down") })
	rec, env = f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Message, "postgres")

	rec, _ = f.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadEndpoints(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodGet, "/api/v1/cohorts?active=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta.TotalCount)
	assert.Equal(t, 1, *env.Meta.TotalCount)

	rec, env = f.do(t, http.MethodGet, "/api/v1/cohorts/c1/calendar", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"day":30`)

	rec, env = f.do(t, http.MethodGet, "/api/v1/cohorts/c1/upcoming-gates?window=30", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "MARKET_CONTACT")

	rec, env = f.do(t, http.MethodGet, "/api/v1/participants/paused", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	rec, env = f.do(t, http.MethodGet, "/api/v1/participants/p1/eligibility", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"eligible":false`)
}

func TestErrorMapping(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"unknown cohort", "/api/v1/cohorts/nope/calendar", http.StatusNotFound, "not_found"},
		{"unknown participant", "/api/v1/participants/ghost", http.StatusNotFound, "not_found"},
		{"window not a number", "/api/v1/cohorts/c1/upcoming-gates?window=soon", http.StatusBadRequest, "invalid_input"},
		{"window too wide", "/api/v1/cohorts/c1/upcoming-gates?window=365", http.StatusBadRequest, "invalid_input"},
		{"unknown gate type", "/api/v1/cohorts/c1/gates?gate=MYSTERY", http.StatusBadRequest, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := f.do(t, http.MethodGet, tt.path, "", nil)
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestWritesRequireAPIKey(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodPost, "/api/v1/cohorts/c1/gates/run", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "missing_api_key", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/cohorts/c1/gates/run", "", map[string]string{"X-API-Key": "guess"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", env.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/cohorts/c1/gates/run", "", map[string]string{"Authorization": "Bearer " + testKey})
	assert.Equal(t, http.StatusOK, rec.Code)

	ok, err := f.store.Gates().Exists(context.Background(), gate.Key{ParticipantID: "p1", CohortID: "c1", GateType: gate.TypeSellableSkill})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGateRunThenResolveIntervention(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodPost, "/api/v1/cohorts/c1/gates/run", "", withKey())
	require.Equal(t, http.StatusOK, rec.Code)
	var summary command.GateRunSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, gate.TypeSellableSkill, summary.GateType)
	assert.Equal(t, 2, summary.Intervention)

	rec, env = f.do(t, http.MethodGet, "/api/v1/cohorts/c1/gates?gate=sellable_skill&result=INTERVENTION_REQUIRED", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view query.GateResultsView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Evaluations, 2)
	assert.Equal(t, 2, view.Unresolved)

	rec, env = f.do(t, http.MethodGet, "/api/v1/participants/p1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"lifecycle_state":"AT_RISK"`)

	path := "/api/v1/evaluations/" + view.Evaluations[0].ID + "/resolve"

	rec, env = f.do(t, http.MethodPost, path, `{"note":"paired with mentor"}`, withKey())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_actor", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, path, `{"note":"paired with mentor"}`, withKey("X-Actor", "coach@example.org"))
	require.Equal(t, http.StatusOK, rec.Code, string(env.Data))
	var ev query.EvaluationDTO
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	require.NotNil(t, ev.Resolution)
	assert.Equal(t, "coach@example.org", ev.Resolution.ResolvedBy)

	rec, env = f.do(t, http.MethodPost, path, `{"actor":"coach@example.org"}`, withKey())
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_resolved", env.Error.Code)
}

func TestRejectedDecisionCarriesResult(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodPost, "/api/v1/participants/p1/graduate", `{"actor":"director@example.org"}`, withKey())
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "precondition_unmet", env.Error.Code)

	var res command.DecisionResult
	require.NoError(t, json.Unmarshal(env.Error.Result, &res))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Reasons)

	rec, env = f.do(t, http.MethodPost, "/api/v1/participants/p1/reactivate", `{"actor":"coach@example.org"}`, withKey())
	assert.Equal(t, http.StatusConflict, rec.Code, "p1 is not paused")
	assert.Equal(t, "precondition_unmet", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/api/v1/participants/p1/graduate", `{"actor":"SYSTEM"}`, withKey())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_actor", env.Error.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/participants/p1/graduate", `not json`, withKey())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExitEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	rec, env := f.do(t, http.MethodPost, "/api/v1/participants/p2/exit",
		`{"actor":"director@example.org","reason":"moved abroad"}`, withKey())
	require.Equal(t, http.StatusOK, rec.Code)
	var res command.DecisionResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.AuditID)

	p, err := f.store.Participants().GetByID(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, participant.StateExited, p.LifecycleState)

	rec, _ = f.do(t, http.MethodPost, "/api/v1/participants/ghost/exit",
		`{"actor":"director@example.org","reason":"x"}`, withKey())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config, _ *Dependencies) { c.RateLimitPerMinute = 2 })

	for i := 0; i < 2; i++ {
		rec, _ := f.do(t, http.MethodGet, "/live", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := f.do(t, http.MethodGet, "/live", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit_exceeded", env.Error.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestNotConfiguredDependency(t *testing.T) {
	f := newFixture(t, func(_ *Config, d *Dependencies) { d.Graduation = nil })

	rec, env := f.do(t, http.MethodGet, "/api/v1/cohorts/c1/pending-graduations", "", nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Equal(t, "not_implemented", env.Error.Code)
}
