package eventhandler

import (
	"fmt"

	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// Set is the group of handlers wired onto the bus. Nil members are skipped.
type Set struct {
	Journal         *Journal
	CohortRefreshed *OnCohortRefreshedHandler
	GateEvaluated   *OnGateEvaluatedHandler

	// Feeds receive every event, e.g. the Redis pub/sub feed.
	Feeds []shared.EventHandler
}

// Register subscribes the handlers.
func Register(bus shared.EventSubscriber, set Set) error {
	if set.Journal != nil {
		if err := bus.SubscribeAll(set.Journal.Handle); err != nil {
			return fmt.Errorf("subscribe journal: %w", err)
		}
	}
	if set.CohortRefreshed != nil {
		if err := bus.Subscribe(shared.EventCohortRefreshed, set.CohortRefreshed.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", shared.EventCohortRefreshed, err)
		}
	}
	if set.GateEvaluated != nil {
		if err := bus.Subscribe(shared.EventGateEvaluated, set.GateEvaluated.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", shared.EventGateEvaluated, err)
		}
	}
	for i, feed := range set.Feeds {
		if err := bus.SubscribeAll(feed); err != nil {
			return fmt.Errorf("subscribe feed %d: %w", i, err)
		}
	}
	return nil
}
