package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/command-centre/internal/domain/shared"
)

// ErrLockHeld is returned when another holder owns the lock. It matches
// shared.ErrConcurrentModification so callers need not import this package.
var ErrLockHeld = fmt.Errorf("lock: held by another worker: %w", shared.ErrConcurrentModification)

// RunLock is a best-effort mutual exclusion over Redis. A lost lock only
// costs duplicated work: the database still rejects duplicate evaluations.
type RunLock struct {
	cache *Cache
	ttl   time.Duration
}

// NewRunLock creates a RunLock. A zero ttl uses TTLDistributedLock.
func NewRunLock(cache *Cache, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = TTLDistributedLock
	}
	return &RunLock{cache: cache, ttl: ttl}
}

// Acquire takes the lock named resource. The returned release func deletes
// the key only while this holder still owns it.
func (l *RunLock) Acquire(ctx context.Context, resource string) (func(context.Context) error, error) {
	key := LockKey(resource)
	token := uuid.NewString()

	ok, err := l.cache.SetNX(ctx, key, token, l.ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", resource, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	release := func(ctx context.Context) error {
		if _, err := l.cache.DeleteIfEquals(ctx, key, token); err != nil {
			return fmt.Errorf("release %s: %w", resource, err)
		}
		return nil
	}
	return release, nil
}
