package payments

import (
	"context"
	"time"

	pkgredis "github.com/freshkart/freshkart-backend/pkg/redis"
)

const defaultGuardTTL = 48 * time.Hour

// EventGuard is a redis fast-path that drops webhook redeliveries before
// they reach the database. It is advisory only: the reconciler's in-tx
// payment_status check remains the authority, so a lost redis key is safe.
type EventGuard struct {
	store pkgredis.IdempotencyStore
	ttl   time.Duration
}

// NewEventGuard builds the guard. A nil store disables deduplication and
// every event is treated as first delivery.
func NewEventGuard(store pkgredis.IdempotencyStore, ttl time.Duration) *EventGuard {
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	return &EventGuard{store: store, ttl: ttl}
}

// CheckAndMark claims the event id. It returns true when this is the first
// delivery. Redis errors degrade to "first delivery" so an outage never
// drops payments.
func (g *EventGuard) CheckAndMark(ctx context.Context, gateway, eventID string) (bool, error) {
	if g == nil || g.store == nil || eventID == "" {
		return true, nil
	}
	first, err := g.store.SetNX(ctx, g.key(gateway, eventID), "1", g.ttl)
	if err != nil {
		return true, err
	}
	return first, nil
}

// Release frees the claim so the gateway's retry can reprocess an event
// whose handling failed mid-flight.
func (g *EventGuard) Release(ctx context.Context, gateway, eventID string) error {
	if g == nil || g.store == nil || eventID == "" {
		return nil
	}
	return g.store.Del(ctx, g.key(gateway, eventID))
}

func (g *EventGuard) key(gateway, eventID string) string {
	return g.store.IdempotencyKey("webhook|"+gateway, eventID)
}
