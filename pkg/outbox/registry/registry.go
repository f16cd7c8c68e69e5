// Package registry decodes outbox rows back into their typed payloads.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/payloads"
)

// ErrUndecodable marks rows that will never decode, no matter how often they
// are retried.
var ErrUndecodable = errors.New("undecodable outbox event")

// Decoded is an outbox row with its envelope and typed payload.
type Decoded struct {
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type decodeFunc func(json.RawMessage) (any, error)

type schema struct {
	aggregate enums.OutboxAggregateType
	decode    decodeFunc
}

func decoderOf[T any]() decodeFunc {
	return func(raw json.RawMessage) (any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// EventRegistry knows the aggregate and payload shape of every event type.
type EventRegistry struct {
	schemas map[enums.OutboxEventType]schema
}

func NewEventRegistry() *EventRegistry {
	return &EventRegistry{schemas: map[enums.OutboxEventType]schema{
		enums.EventOrderPlaced:    {enums.AggregateOrder, decoderOf[payloads.OrderPlacedEvent]()},
		enums.EventOrderAdvanced:  {enums.AggregateOrder, decoderOf[payloads.OrderAdvancedEvent]()},
		enums.EventOrderCancelled: {enums.AggregateOrder, decoderOf[payloads.OrderCancelledEvent]()},
		enums.EventOrderModified:  {enums.AggregateOrder, decoderOf[payloads.OrderModifiedEvent]()},
		enums.EventPointsRedeemed: {enums.AggregateLoyaltyAccount, decoderOf[payloads.PointsRedeemedEvent]()},
	}}
}

func undecodable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUndecodable, fmt.Sprintf(format, args...))
}

// Resolve checks the row against its schema and decodes the payload. Every
// error it returns wraps ErrUndecodable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*Decoded, error) {
	sc, ok := r.schemas[event.EventType]
	switch {
	case !ok:
		return nil, undecodable("unsupported event type %q", event.EventType)
	case sc.aggregate != event.AggregateType:
		return nil, undecodable("%s belongs to %s, row says %s", event.EventType, sc.aggregate, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, undecodable("%s has no aggregate id", event.EventType)
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &env); err != nil {
		return nil, undecodable("envelope: %v", err)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, undecodable("%s envelope carries no data", event.EventType)
	}
	payload, err := sc.decode(env.Data)
	if err != nil {
		return nil, undecodable("%s payload: %v", event.EventType, err)
	}
	return &Decoded{Envelope: env, Payload: payload}, nil
}
