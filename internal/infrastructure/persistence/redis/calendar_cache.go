package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alem-hub/command-centre/internal/domain/calendar"
	"github.com/alem-hub/command-centre/pkg/circuitbreaker"
)

// CalendarCache stores computed calendar snapshots per cohort. Entries are
// tagged with the date they were computed for so a snapshot never outlives
// its day. Calls go through a circuit breaker: when Redis keeps failing the
// cache fails fast and readers recompute.
type CalendarCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewCalendarCache creates a CalendarCache. A zero ttl uses TTLCalendarSnapshot.
func NewCalendarCache(cache *Cache, ttl time.Duration) *CalendarCache {
	if ttl <= 0 {
		ttl = TTLCalendarSnapshot
	}
	breaker := circuitbreaker.CacheBreaker("redis-calendar", countsAsOutage, func(name string, from, to circuitbreaker.State) {
		slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})
	return &CalendarCache{cache: cache, ttl: ttl, breaker: breaker}
}

// countsAsOutage excludes misses and bad payloads, which say nothing about
// the health of the server.
func countsAsOutage(err error) bool {
	return !errors.Is(err, ErrCacheMiss) && !errors.Is(err, ErrCacheSerialization)
}

// Breaker exposes the breaker state, e.g. for health output.
func (c *CalendarCache) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

type cachedSnapshot struct {
	Date     string            `json:"date"`
	Snapshot calendar.Snapshot `json:"snapshot"`
}

// Put stores snap for cohortID as computed on date (YYYY-MM-DD, cohort-local).
func (c *CalendarCache) Put(ctx context.Context, cohortID, date string, snap calendar.Snapshot) error {
	entry := cachedSnapshot{Date: date, Snapshot: snap}
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, CalendarKey(cohortID), entry, c.ttl)
	})
}

// Get returns the snapshot for cohortID computed on date (YYYY-MM-DD).
// A snapshot from another day is reported as a miss.
func (c *CalendarCache) Get(ctx context.Context, cohortID, date string) (calendar.Snapshot, bool, error) {
	var entry cachedSnapshot
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Get(ctx, CalendarKey(cohortID), &entry)
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return calendar.Snapshot{}, false, nil
		}
		return calendar.Snapshot{}, false, err
	}
	if entry.Date != date {
		return calendar.Snapshot{}, false, nil
	}
	return entry.Snapshot, true, nil
}

// Invalidate drops the snapshot of cohortID.
func (c *CalendarCache) Invalidate(ctx context.Context, cohortID string) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Delete(ctx, CalendarKey(cohortID))
	})
}
