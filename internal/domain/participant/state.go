// Package participant models a participant's lifecycle.
//
// The lifecycle state is a cache of the last entry in the participant's
// transition log. The only way to change it is StateStore.ApplyTransition,
// which validates against AllowedTransitions and writes the state and the
// log entry in one unit of work.
package participant

import "fmt"

// LifecycleState is the lifecycle position of a participant.
type LifecycleState string

const (
	StateActive    LifecycleState = "ACTIVE"
	StateAtRisk    LifecycleState = "AT_RISK"
	StatePaused    LifecycleState = "PAUSED"
	StateGraduated LifecycleState = "GRADUATED"
	StateExited    LifecycleState = "EXITED"
)

// InitialState is the state of a newly admitted participant.
const InitialState = StateActive

// AllowedTransitions is the adjacency table of the lifecycle.
// Terminal states have no entry.
var AllowedTransitions = map[LifecycleState][]LifecycleState{
	StateActive: {StateAtRisk, StatePaused, StateGraduated, StateExited},
	StateAtRisk: {StateActive, StatePaused, StateGraduated, StateExited},
	StatePaused: {StateActive, StateAtRisk, StateExited},
}

// AllStates lists every lifecycle state.
var AllStates = []LifecycleState{StateActive, StateAtRisk, StatePaused, StateGraduated, StateExited}

// IsValid reports whether s is a known state.
func (s LifecycleState) IsValid() bool {
	switch s {
	case StateActive, StateAtRisk, StatePaused, StateGraduated, StateExited:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s LifecycleState) IsTerminal() bool {
	return s == StateGraduated || s == StateExited
}

// IsEvaluable reports whether gates apply to a participant in s.
// Paused participants are handled by pause escalation instead.
func (s LifecycleState) IsEvaluable() bool {
	return s == StateActive || s == StateAtRisk
}

// CanTransitionTo reports whether s → to is in the adjacency table.
func (s LifecycleState) CanTransitionTo(to LifecycleState) bool {
	for _, allowed := range AllowedTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ParseState parses a state name.
func ParseState(v string) (LifecycleState, error) {
	s := LifecycleState(v)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown lifecycle state %q", v)
	}
	return s, nil
}
