package config

import (
	"fmt"
	"slices"
)

// FeatureFlags toggles optional behavior around the core sweeps.
// Format: FEATURE_<NAME>=true|false
type FeatureFlags struct {
	// Scheduled pause checks. Manual checks through the admin API still work.
	PauseEscalation bool `env:"PAUSE_ESCALATION" envDefault:"true"`

	// Staff may resolve INTERVENTION_REQUIRED evaluations.
	InterventionResolution bool `env:"INTERVENTION_RESOLUTION" envDefault:"true"`

	// Per-cohort Redis lock around gate runs.
	RunLock bool `env:"RUN_LOCK" envDefault:"true"`

	// Redis cache for calendar snapshots.
	CalendarCache bool `env:"CALENDAR_CACHE" envDefault:"true"`

	// Cohorts excluded from scheduled runs, comma separated.
	// Example: FEATURE_EXCLUDED_COHORTS=pilot-2025,staff-dryrun
	ExcludedCohorts []string `env:"EXCLUDED_COHORTS" envSeparator:","`
}

// Predefined feature flag names.
const (
	FeaturePauseEscalation        = "pause_escalation"
	FeatureInterventionResolution = "intervention_resolution"
	FeatureRunLock                = "run_lock"
	FeatureCalendarCache          = "calendar_cache"
)

// IsEnabled reports whether a named feature is on.
func (ff FeatureFlags) IsEnabled(name string) bool {
	switch name {
	case FeaturePauseEscalation:
		return ff.PauseEscalation
	case FeatureInterventionResolution:
		return ff.InterventionResolution
	case FeatureRunLock:
		return ff.RunLock
	case FeatureCalendarCache:
		return ff.CalendarCache
	default:
		return false
	}
}

// CohortScheduled reports whether scheduled jobs should touch a cohort.
func (ff FeatureFlags) CohortScheduled(cohortID string) bool {
	return !slices.Contains(ff.ExcludedCohorts, cohortID)
}

// All returns every flag and its value, for the startup log.
func (ff FeatureFlags) All() map[string]bool {
	return map[string]bool{
		FeaturePauseEscalation:        ff.PauseEscalation,
		FeatureInterventionResolution: ff.InterventionResolution,
		FeatureRunLock:                ff.RunLock,
		FeatureCalendarCache:          ff.CalendarCache,
	}
}

// FeatureFlagError is returned for unknown flag names.
type FeatureFlagError struct {
	Name string
}

func (e *FeatureFlagError) Error() string {
	return fmt.Sprintf("unknown feature flag: %s", e.Name)
}

// Lookup is IsEnabled with an error for unknown names.
func (ff FeatureFlags) Lookup(name string) (bool, error) {
	if _, ok := ff.All()[name]; !ok {
		return false, &FeatureFlagError{Name: name}
	}
	return ff.IsEnabled(name), nil
}
