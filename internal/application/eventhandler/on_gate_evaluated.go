package eventhandler

import (
	"log/slog"
	"sync"

	"github.com/alem-hub/command-centre/internal/domain/gate"
	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON GATE EVALUATED HANDLER
// Surfaces evaluations that need staff follow-up. Delivery of the follow-up
// itself belongs to the notification service, which reads the event feed.
// ═══════════════════════════════════════════════════════════════════════════

// OnGateEvaluatedHandler handles shared.EventGateEvaluated.
type OnGateEvaluatedHandler struct {
	logger *slog.Logger

	mu    sync.Mutex
	tally map[string]map[gate.Result]int
}

// NewOnGateEvaluatedHandler creates the handler.
func NewOnGateEvaluatedHandler(logger *slog.Logger) *OnGateEvaluatedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnGateEvaluatedHandler{
		logger: logger.With("handler", "on_gate_evaluated"),
		tally:  make(map[string]map[gate.Result]int),
	}
}

// Handle implements shared.EventHandler.
func (h *OnGateEvaluatedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.GateEvaluatedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", "event_type", event.EventType())
		return nil
	}

	result := gate.Result(ev.Result)
	key := ev.CohortID + "/" + ev.GateType

	h.mu.Lock()
	if h.tally[key] == nil {
		h.tally[key] = make(map[gate.Result]int)
	}
	h.tally[key][result]++
	h.mu.Unlock()

	switch result {
	case gate.ResultInterventionRequired:
		h.logger.Warn("intervention required",
			"participant_id", ev.ParticipantID,
			"cohort_id", ev.CohortID,
			"gate_type", ev.GateType,
			"evaluation_id", ev.EvaluationID,
		)
	case gate.ResultFail:
		h.logger.Warn("terminal gate failed",
			"participant_id", ev.ParticipantID,
			"cohort_id", ev.CohortID,
			"gate_type", ev.GateType,
			"evaluation_id", ev.EvaluationID,
		)
	}
	return nil
}

// Tally returns the results seen for one cohort gate since start.
func (h *OnGateEvaluatedHandler) Tally(cohortID string, gateType gate.Type) map[gate.Result]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[gate.Result]int)
	for r, n := range h.tally[cohortID+"/"+string(gateType)] {
		out[r] = n
	}
	return out
}
