package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// OrderPlacedEvent is queued when an order becomes a real (non-draft) order
// for a registered customer. Loyalty accrual consumes it.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      uuid.UUID `json:"userId"`
	Total       int64     `json:"total"`
}

// OrderAdvancedEvent records a single forward status step.
type OrderAdvancedEvent struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	From        enums.OrderStatus `json:"from"`
	To          enums.OrderStatus `json:"to"`
}

// OrderCancelledEvent carries the restored stock for downstream consumers.
type OrderCancelledEvent struct {
	OrderID       uuid.UUID         `json:"orderId"`
	OrderNumber   string            `json:"orderNumber"`
	PreviousState enums.OrderStatus `json:"previousState"`
	Reason        string            `json:"reason"`
	CancelledAt   time.Time         `json:"cancelledAt"`
	RestoredUnits int               `json:"restoredUnits"`
}

// OrderModifiedEvent summarises an in-place item change.
type OrderModifiedEvent struct {
	OrderID           uuid.UUID `json:"orderId"`
	OrderNumber       string    `json:"orderNumber"`
	PreviousSubtotal  int64     `json:"previousSubtotal"`
	Subtotal          int64     `json:"subtotal"`
	Total             int64     `json:"total"`
	Reason            string    `json:"reason"`
	ModificationCount int       `json:"modificationCount"`
}

// PointsRedeemedEvent is queued when a customer converts points to a discount.
type PointsRedeemedEvent struct {
	UserID         uuid.UUID `json:"userId"`
	Points         int64     `json:"points"`
	DiscountAmount int64     `json:"discountAmount"`
	Reference      string    `json:"reference,omitempty"`
}
