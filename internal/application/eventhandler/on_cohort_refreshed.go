// Package eventhandler contains the domain event handlers.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON COHORT REFRESHED HANDLER
// Drops cached calendar snapshots once the stored day or phase of a cohort
// moves, so the next read recomputes from the start date.
// ═══════════════════════════════════════════════════════════════════════════

// CalendarInvalidator removes cached calendar snapshots of one cohort.
type CalendarInvalidator interface {
	Invalidate(ctx context.Context, cohortID string) error
}

// OnCohortRefreshedHandler handles shared.EventCohortRefreshed.
type OnCohortRefreshedHandler struct {
	cache   CalendarInvalidator
	timeout time.Duration
	logger  *slog.Logger
}

// NewOnCohortRefreshedHandler creates the handler. A zero timeout means 2s.
func NewOnCohortRefreshedHandler(cache CalendarInvalidator, timeout time.Duration, logger *slog.Logger) *OnCohortRefreshedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OnCohortRefreshedHandler{
		cache:   cache,
		timeout: timeout,
		logger:  logger.With("handler", "on_cohort_refreshed"),
	}
}

// Handle implements shared.EventHandler. Cache failures are logged, never
// returned: the cache key carries the local date, so a missed invalidation
// expires on its own.
func (h *OnCohortRefreshedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.CohortRefreshedEvent)
	if !ok {
		h.logger.Warn("received unexpected event", "event_type", event.EventType())
		return nil
	}
	if h.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx, ev.CohortID); err != nil {
		h.logger.Warn("calendar cache invalidation failed",
			"cohort_id", ev.CohortID,
			"day", ev.Day,
			"error", err,
		)
		return nil
	}
	h.logger.Debug("calendar cache invalidated", "cohort_id", ev.CohortID, "day", ev.Day, "phase", ev.Phase)
	return nil
}
