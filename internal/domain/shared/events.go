package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Every lifecycle decision made by the command centre
// produces exactly one of these after the decision has been persisted.
const (
	// Participant events
	EventParticipantStateChanged EventType = "participant.state_changed"

	// Gate events
	EventGateEvaluated        EventType = "gate.evaluated"
	EventInterventionResolved EventType = "gate.intervention_resolved"

	// Cohort events
	EventCohortRefreshed EventType = "cohort.calendar_refreshed"

	// Graduation events
	EventGraduationDecided EventType = "graduation.decided"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Participant Events
// ═══════════════════════════════════════════════════════════════════════════

// ParticipantStateChangedEvent is emitted after a transition and its log row
// have been committed together.
type ParticipantStateChangedEvent struct {
	BaseEvent
	ParticipantID string `json:"participant_id"`
	CohortID      string `json:"cohort_id"`
	FromState     string `json:"from_state"`
	ToState       string `json:"to_state"`
	Reason        string `json:"reason"`
	Actor         string `json:"actor"`
	LogID         string `json:"log_id"`
}

// Payload implements Event interface.
func (e ParticipantStateChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"participant_id": e.ParticipantID,
		"cohort_id":      e.CohortID,
		"from_state":     e.FromState,
		"to_state":       e.ToState,
		"reason":         e.Reason,
		"actor":          e.Actor,
		"log_id":         e.LogID,
	}
}

// NewParticipantStateChangedEvent creates a new ParticipantStateChangedEvent.
func NewParticipantStateChangedEvent(participantID, cohortID, from, to, reason, actor, logID string, at time.Time) ParticipantStateChangedEvent {
	return ParticipantStateChangedEvent{
		BaseEvent:     NewBaseEvent(EventParticipantStateChanged, participantID, at),
		ParticipantID: participantID,
		CohortID:      cohortID,
		FromState:     from,
		ToState:       to,
		Reason:        reason,
		Actor:         actor,
		LogID:         logID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Gate Events
// ═══════════════════════════════════════════════════════════════════════════

// GateEvaluatedEvent is emitted once per persisted gate evaluation.
type GateEvaluatedEvent struct {
	BaseEvent
	EvaluationID  string `json:"evaluation_id"`
	ParticipantID string `json:"participant_id"`
	CohortID      string `json:"cohort_id"`
	GateType      string `json:"gate_type"`
	Result        string `json:"result"`
}

// Payload implements Event interface.
func (e GateEvaluatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"evaluation_id":  e.EvaluationID,
		"participant_id": e.ParticipantID,
		"cohort_id":      e.CohortID,
		"gate_type":      e.GateType,
		"result":         e.Result,
	}
}

// NewGateEvaluatedEvent creates a new GateEvaluatedEvent.
func NewGateEvaluatedEvent(evaluationID, participantID, cohortID, gateType, result string, at time.Time) GateEvaluatedEvent {
	return GateEvaluatedEvent{
		BaseEvent:     NewBaseEvent(EventGateEvaluated, participantID, at),
		EvaluationID:  evaluationID,
		ParticipantID: participantID,
		CohortID:      cohortID,
		GateType:      gateType,
		Result:        result,
	}
}

// InterventionResolvedEvent is emitted when staff close out an intervention.
type InterventionResolvedEvent struct {
	BaseEvent
	EvaluationID  string `json:"evaluation_id"`
	ParticipantID string `json:"participant_id"`
	ResolvedBy    string `json:"resolved_by"`
}

// Payload implements Event interface.
func (e InterventionResolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"evaluation_id":  e.EvaluationID,
		"participant_id": e.ParticipantID,
		"resolved_by":    e.ResolvedBy,
	}
}

// NewInterventionResolvedEvent creates a new InterventionResolvedEvent.
func NewInterventionResolvedEvent(evaluationID, participantID, resolvedBy string, at time.Time) InterventionResolvedEvent {
	return InterventionResolvedEvent{
		BaseEvent:     NewBaseEvent(EventInterventionResolved, participantID, at),
		EvaluationID:  evaluationID,
		ParticipantID: participantID,
		ResolvedBy:    resolvedBy,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Cohort Events
// ═══════════════════════════════════════════════════════════════════════════

// CohortRefreshedEvent is emitted when the stored day/phase of a cohort changes.
type CohortRefreshedEvent struct {
	BaseEvent
	CohortID string `json:"cohort_id"`
	Day      int    `json:"day"`
	Phase    string `json:"phase"`
}

// Payload implements Event interface.
func (e CohortRefreshedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"cohort_id": e.CohortID,
		"day":       e.Day,
		"phase":     e.Phase,
	}
}

// NewCohortRefreshedEvent creates a new CohortRefreshedEvent.
func NewCohortRefreshedEvent(cohortID string, day int, phase string, at time.Time) CohortRefreshedEvent {
	return CohortRefreshedEvent{
		BaseEvent: NewBaseEvent(EventCohortRefreshed, cohortID, at),
		CohortID:  cohortID,
		Day:       day,
		Phase:     phase,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Graduation Events
// ═══════════════════════════════════════════════════════════════════════════

// GraduationDecidedEvent is emitted for every terminal decision.
type GraduationDecidedEvent struct {
	BaseEvent
	ParticipantID string `json:"participant_id"`
	Decision      string `json:"decision"`
	Actor         string `json:"actor"`
	Reason        string `json:"reason"`
}

// Payload implements Event interface.
func (e GraduationDecidedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"participant_id": e.ParticipantID,
		"decision":       e.Decision,
		"actor":          e.Actor,
		"reason":         e.Reason,
	}
}

// NewGraduationDecidedEvent creates a new GraduationDecidedEvent.
func NewGraduationDecidedEvent(participantID, decision, actor, reason string, at time.Time) GraduationDecidedEvent {
	return GraduationDecidedEvent{
		BaseEvent:     NewBaseEvent(EventGraduationDecided, participantID, at),
		ParticipantID: participantID,
		Decision:      decision,
		Actor:         actor,
		Reason:        reason,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEventEnvelope serializes an event payload into an envelope.
func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     1,
		Payload:     payload,
	}, nil
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events. Useful for one-shot CLI runs.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
