package eventhandler

import (
	"log/slog"

	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// Journal writes every domain event to the structured log. It is the
// operational audit stream; the durable audit is the transition log.
type Journal struct {
	logger *slog.Logger
}

// NewJournal creates a Journal.
func NewJournal(logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{logger: logger.With("handler", "journal")}
}

// Handle implements shared.EventHandler.
func (j *Journal) Handle(event shared.Event) error {
	attrs := make([]any, 0, 6)
	attrs = append(attrs,
		"event_type", event.EventType(),
		"aggregate_id", event.AggregateID(),
		"occurred_at", event.OccurredAt(),
	)
	payload := event.Payload()
	group := make([]any, 0, 2*len(payload))
	for k, v := range payload {
		group = append(group, k, v)
	}
	attrs = append(attrs, slog.Group("payload", group...))
	j.logger.Info("domain event", attrs...)
	return nil
}
