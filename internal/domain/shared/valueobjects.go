package shared

import (
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// Identifiers
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantID identifies a participant enrolled in a cohort.
type ParticipantID string

// IsValid checks if the ParticipantID is non-empty.
func (p ParticipantID) IsValid() bool {
	return strings.TrimSpace(string(p)) != ""
}

// String returns the string representation.
func (p ParticipantID) String() string {
	return string(p)
}

// NewParticipantID creates a validated ParticipantID.
func NewParticipantID(id string) (ParticipantID, error) {
	pid := ParticipantID(strings.TrimSpace(id))
	if !pid.IsValid() {
		return "", ErrInvalidID
	}
	return pid, nil
}

// CohortID identifies a cohort.
type CohortID string

// IsValid checks if the CohortID is non-empty.
func (c CohortID) IsValid() bool {
	return strings.TrimSpace(string(c)) != ""
}

// String returns the string representation.
func (c CohortID) String() string {
	return string(c)
}

// NewCohortID creates a validated CohortID.
func NewCohortID(id string) (CohortID, error) {
	cid := CohortID(strings.TrimSpace(id))
	if !cid.IsValid() {
		return "", ErrInvalidID
	}
	return cid, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// Actor
// ══════════════════════════════════════════════════════════════════════════════

// Actor names who initiated a lifecycle decision.
// Automated decisions use SystemActor; everything else is a staff identifier.
type Actor string

// SystemActor is the actor recorded for scheduler-driven decisions.
const SystemActor Actor = "SYSTEM"

// String returns the string representation.
func (a Actor) String() string {
	return string(a)
}

// IsSystem reports whether the actor is the automated system.
func (a Actor) IsSystem() bool {
	return strings.EqualFold(strings.TrimSpace(string(a)), string(SystemActor))
}

// IsHuman reports whether the actor is a named staff member.
func (a Actor) IsHuman() bool {
	return strings.TrimSpace(string(a)) != "" && !a.IsSystem()
}
