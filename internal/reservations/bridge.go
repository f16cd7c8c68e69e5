// Package reservations talks to the storefront's pre-checkout stock holds.
// Holds are owned by the storefront; this service only confirms or releases
// them once an order exists.
package reservations

import (
	"context"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

const defaultConfirmedTTL = 15 * time.Minute

// Bridge confirms or releases the stock hold of a storefront session.
type Bridge interface {
	Confirm(ctx context.Context, sessionID string) error
	Release(ctx context.Context, sessionID string) error
}

type holdStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	StockHoldKey(sessionID string) string
	StockHoldConfirmedKey(sessionID string) string
}

// RedisBridge keeps holds under pp:stock_hold:<session>.
type RedisBridge struct {
	store        holdStore
	confirmedTTL time.Duration
}

// NewRedisBridge builds the bridge. confirmedTTL bounds how long the
// confirmation marker outlives the hold.
func NewRedisBridge(store holdStore, confirmedTTL time.Duration) *RedisBridge {
	if confirmedTTL <= 0 {
		confirmedTTL = defaultConfirmedTTL
	}
	return &RedisBridge{store: store, confirmedTTL: confirmedTTL}
}

// Confirm marks the session as converted into an order and drops its hold.
func (b *RedisBridge) Confirm(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	if err := b.store.Set(ctx, b.store.StockHoldConfirmedKey(sessionID), time.Now().UTC().Format(time.RFC3339), b.confirmedTTL); err != nil {
		return failed(err, "confirm stock hold")
	}
	if err := b.store.Del(ctx, b.store.StockHoldKey(sessionID)); err != nil {
		return failed(err, "drop stock hold")
	}
	return nil
}

// Release drops the session's hold without confirming it.
func (b *RedisBridge) Release(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	if err := b.store.Del(ctx, b.store.StockHoldKey(sessionID)); err != nil {
		return failed(err, "release stock hold")
	}
	return nil
}

func failed(err error, message string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message).WithReason(pkgerrors.ReasonReservationFailed)
}
