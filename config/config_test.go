package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/command-centre/internal/domain/gate"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	t.Setenv("DATABASE_IN_MEMORY", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "command-centre", cfg.App.Name)
	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.PauseCheckInterval)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.True(t, cfg.Features.PauseEscalation)
	require.NotNil(t, cfg.Policy)

	s, err := cfg.Policy.Schedule()
	require.NoError(t, err)
	g, ok := s.GateForDay(90)
	require.True(t, ok)
	assert.Equal(t, gate.TypeIncome, g)
	assert.Equal(t, gate.DefaultThresholds(), cfg.Policy.GateThresholds())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/cc")
	t.Setenv("SCHEDULER_DAILY_HOUR", "5")
	t.Setenv("HTTP_API_KEY_HASHES", "a,b")
	t.Setenv("FEATURE_EXCLUDED_COHORTS", "pilot")
	t.Setenv("REDIS_DISABLED", "true")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scheduler.DailyHour)
	assert.Equal(t, []string{"a", "b"}, cfg.HTTP.APIKeyHashes)
	assert.False(t, cfg.Features.CohortScheduled("pilot"))
	assert.True(t, cfg.Features.CohortScheduled("spring"))
	assert.True(t, cfg.Redis.Disabled)
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("SCHEDULER_DAILY_HOUR", "25")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "HTTP_API_KEY_HASHES is required")
	assert.Contains(t, err.Error(), "SCHEDULER_DAILY_HOUR must be 0-23")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy([]byte(`
[[gates]]
day = 1
type = "BASELINE"

[[gates]]
day = 45
type = "MARKET_CONTACT"

[thresholds]
min_completion_rate = 0.6
min_technical_score = 40.0
min_commercial_missions = 2
min_outreach_logs = 4

[pause]
momentum_window_days = 7
momentum_threshold = 30.0
inactivity_window_days = 10
stale_intervention_days = 5

[graduation]
min_program_day = 90
`))
	require.NoError(t, err)

	s, err := p.Schedule()
	require.NoError(t, err)
	g, ok := s.GateForDay(45)
	require.True(t, ok)
	assert.Equal(t, gate.TypeMarketContact, g)
	assert.Equal(t, 10*24*time.Hour, p.Pause.InactivityWindow())
	assert.Equal(t, 0.6, p.GateThresholds().MinCompletionRate)
}

func TestParsePolicyRejectsInvalid(t *testing.T) {
	_, err := ParsePolicy([]byte(`
[[gates]]
day = 1
type = "BASELINE"

[[gates]]
day = 1
type = "INCOME"

[thresholds]
min_completion_rate = 1.5

[pause]
momentum_window_days = 0

[graduation]
min_program_day = 90
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two gates scheduled on day 1")
	assert.Contains(t, err.Error(), "min_completion_rate")
	assert.Contains(t, err.Error(), "pause windows")
}

func TestLoadPolicyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, defaultPolicy, 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Len(t, p.Gates, 4)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestFeatureFlagsLookup(t *testing.T) {
	ff := FeatureFlags{RunLock: true}

	on, err := ff.Lookup(FeatureRunLock)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = ff.Lookup("nope")
	var ffe *FeatureFlagError
	assert.ErrorAs(t, err, &ffe)
}
