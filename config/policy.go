package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/alem-hub/command-centre/internal/domain/gate"
)

//go:embed policy.toml
var defaultPolicy []byte

// Policy is the program rulebook: which gate falls on which day and the
// thresholds every rule compares against.
type Policy struct {
	Gates      []GateDay        `toml:"gates"`
	Thresholds ThresholdPolicy  `toml:"thresholds"`
	Pause      PausePolicy      `toml:"pause"`
	Graduation GraduationPolicy `toml:"graduation"`
}

// GateDay schedules one gate.
type GateDay struct {
	Day  int    `toml:"day"`
	Type string `toml:"type"`
}

// ThresholdPolicy holds gate thresholds.
type ThresholdPolicy struct {
	MinCompletionRate     float64 `toml:"min_completion_rate"`
	MinTechnicalScore     float64 `toml:"min_technical_score"`
	MinCommercialMissions int     `toml:"min_commercial_missions"`
	MinOutreachLogs       int     `toml:"min_outreach_logs"`
}

// PausePolicy holds pause escalation thresholds.
type PausePolicy struct {
	MomentumWindowDays    int     `toml:"momentum_window_days"`
	MomentumThreshold     float64 `toml:"momentum_threshold"`
	InactivityWindowDays  int     `toml:"inactivity_window_days"`
	StaleInterventionDays int     `toml:"stale_intervention_days"`
}

// GraduationPolicy holds graduation requirements.
type GraduationPolicy struct {
	MinProgramDay int `toml:"min_program_day"`
}

// LoadPolicy parses the policy at path, or the embedded default when path is empty.
func LoadPolicy(path string) (*Policy, error) {
	data := defaultPolicy
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		data = b
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes and validates a TOML policy.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks ranges and builds the schedule once to surface errors early.
func (p *Policy) Validate() error {
	var errs []string

	if len(p.Gates) == 0 {
		errs = append(errs, "at least one gate is required")
	}
	if _, err := p.Schedule(); err != nil {
		errs = append(errs, err.Error())
	}
	if p.Thresholds.MinCompletionRate < 0 || p.Thresholds.MinCompletionRate > 1 {
		errs = append(errs, "thresholds.min_completion_rate must be within [0, 1]")
	}
	if p.Thresholds.MinCommercialMissions < 0 || p.Thresholds.MinOutreachLogs < 0 {
		errs = append(errs, "thresholds counts cannot be negative")
	}
	if p.Pause.MomentumWindowDays < 1 || p.Pause.InactivityWindowDays < 1 || p.Pause.StaleInterventionDays < 1 {
		errs = append(errs, "pause windows must be at least one day")
	}
	if p.Graduation.MinProgramDay < 1 {
		errs = append(errs, "graduation.min_program_day must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("policy errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Schedule converts the gate list into a gate.Schedule.
func (p *Policy) Schedule() (gate.Schedule, error) {
	byDay := make(map[int]gate.Type, len(p.Gates))
	for _, g := range p.Gates {
		if _, dup := byDay[g.Day]; dup {
			return gate.Schedule{}, fmt.Errorf("two gates scheduled on day %d", g.Day)
		}
		byDay[g.Day] = gate.Type(g.Type)
	}
	return gate.NewSchedule(byDay)
}

// GateThresholds converts the threshold section for the gate rules.
func (p *Policy) GateThresholds() gate.Thresholds {
	return gate.Thresholds{
		MinCompletionRate:     p.Thresholds.MinCompletionRate,
		MinTechnicalScore:     p.Thresholds.MinTechnicalScore,
		MinCommercialMissions: p.Thresholds.MinCommercialMissions,
		MinOutreachLogs:       p.Thresholds.MinOutreachLogs,
	}
}

// MomentumWindow returns the trailing momentum window.
func (p PausePolicy) MomentumWindow() time.Duration {
	return days(p.MomentumWindowDays)
}

// InactivityWindow returns the trailing inactivity window.
func (p PausePolicy) InactivityWindow() time.Duration {
	return days(p.InactivityWindowDays)
}

// StaleInterventionAfter returns the age at which an intervention is stale.
func (p PausePolicy) StaleInterventionAfter() time.Duration {
	return days(p.StaleInterventionDays)
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
