// Package idempotency remembers which outbox events a consumer has already
// handled so redelivery after a crash or a failed MarkPublished is harmless.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Guard claims <consumer, event> pairs in Redis. A claim lives for ttl,
// which must outlast the relay's retry horizon.
type Guard struct {
	store Store
	ttl   time.Duration
	owner string
}

// NewGuard builds a guard; owner is written as the claim value so an operator
// can tell which worker handled an event.
func NewGuard(store Store, ttl time.Duration, owner string) (*Guard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if owner == "" {
		owner = "worker"
	}
	return &Guard{store: store, ttl: ttl, owner: owner}, nil
}

// Claim reports true when this call is the first to see the event.
func (g *Guard) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return false, err
	}
	return g.store.SetNX(ctx, key, g.owner, g.ttl)
}

// Release drops a claim so the event is handled again on the next delivery.
func (g *Guard) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := g.key(consumer, eventID)
	if err != nil {
		return err
	}
	return g.store.Del(ctx, key)
}

func (g *Guard) key(consumer string, eventID uuid.UUID) (string, error) {
	switch {
	case consumer == "":
		return "", errors.New("consumer name is required")
	case eventID == uuid.Nil:
		return "", errors.New("event id is required")
	}
	return g.store.IdempotencyKey("evt:"+consumer, eventID.String()), nil
}
