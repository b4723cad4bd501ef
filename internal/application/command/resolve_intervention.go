package command

import (
	"context"
	"log/slog"
	"strings"

	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"
	"github.com/alem-hub/command-centre/pkg/timeutil"
)

// ResolveInterventionCommand marks an INTERVENTION_REQUIRED evaluation as
// handled by staff. FAIL evaluations cannot be resolved.
type ResolveInterventionCommand struct {
	EvaluationID string
	Actor        shared.Actor
	Note         string
}

// Validate validates the command.
func (c ResolveInterventionCommand) Validate() error {
	if strings.TrimSpace(c.EvaluationID) == "" {
		return shared.NewDomainError("gate", "Resolve", shared.ErrInvalidID, "evaluation id is required")
	}
	if !c.Actor.IsHuman() {
		return shared.NewDomainError("gate", "Resolve", shared.ErrPreconditionUnmet, "resolution requires a named human actor")
	}
	return nil
}

// ResolveInterventionHandler handles ResolveInterventionCommand. Resolving
// never changes lifecycle state; it only stops the evaluation from blocking
// graduation and from counting as a stale intervention.
type ResolveInterventionHandler struct {
	gates  gate.Repository
	events shared.EventPublisher
	clock  timeutil.Clock
	logger *slog.Logger
}

// NewResolveInterventionHandler creates a ResolveInterventionHandler.
func NewResolveInterventionHandler(gates gate.Repository, events shared.EventPublisher, clock timeutil.Clock, logger *slog.Logger) *ResolveInterventionHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &ResolveInterventionHandler{
		gates:  gates,
		events: orNopPublisher(events),
		clock:  clock,
		logger: orDefaultLogger(logger, "resolutions"),
	}
}

// Handle appends the resolution. A second resolution of the same evaluation
// returns an error matching shared.ErrAlreadyResolved.
func (h *ResolveInterventionHandler) Handle(ctx context.Context, cmd ResolveInterventionCommand) (*gate.Evaluation, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	ev, err := h.gates.GetByID(ctx, cmd.EvaluationID)
	if err != nil {
		return nil, err
	}
	if ev.Result != gate.ResultInterventionRequired {
		return nil, shared.ErrNotResolvable
	}
	if ev.IsResolved() {
		return nil, shared.NewDomainError("gate", "Resolve", shared.ErrAlreadyResolved, "evaluation already resolved")
	}

	res := gate.Resolution{
		EvaluationID: ev.ID,
		ResolvedBy:   cmd.Actor.String(),
		Note:         strings.TrimSpace(cmd.Note),
		ResolvedAt:   h.clock.Now().UTC(),
	}
	if err := h.gates.Resolve(ctx, res); err != nil {
		return nil, err
	}
	ev.Resolution = &res

	h.logger.Info("intervention resolved",
		"evaluation_id", ev.ID,
		"participant_id", ev.ParticipantID,
		"gate_type", ev.GateType,
		"resolved_by", res.ResolvedBy,
	)
	if err := h.events.Publish(shared.NewInterventionResolvedEvent(ev.ID, ev.ParticipantID, res.ResolvedBy, res.ResolvedAt)); err != nil {
		h.logger.Warn("publish resolution", "evaluation_id", ev.ID, "error", err)
	}
	return ev, nil
}
