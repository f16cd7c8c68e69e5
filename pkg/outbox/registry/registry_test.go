package registry

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/payloads"
)

func envelopeFor(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	payload, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: uuid.NewString(), Data: raw})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

func TestResolveOrderPlaced(t *testing.T) {
	reg := NewEventRegistry()
	orderID := uuid.New()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       envelopeFor(t, payloads.OrderPlacedEvent{OrderID: orderID, OrderNumber: "PP250101001", Total: 10000}),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	placed, ok := resolved.Payload.(*payloads.OrderPlacedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if placed.OrderID != orderID || placed.Total != 10000 {
		t.Fatalf("unexpected payload %+v", placed)
	}
}

func TestResolveRejectsBadRows(t *testing.T) {
	reg := NewEventRegistry()
	cases := map[string]models.OutboxEvent{
		"unknown type": {
			EventType:     "order_teleported",
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateLoyaltyAccount,
			AggregateID:   uuid.New(),
		},
		"missing aggregate": {
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
		},
		"bad payload": {
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":{"total":"lots"}}`),
		},
		"null data": {
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":null}`),
		},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			if !errors.Is(err, ErrUndecodable) {
				t.Fatalf("expected undecodable error, got %v", err)
			}
		})
	}
}
