package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// ItemInput is one requested line for a modification.
type ItemInput struct {
	ProductID   uuid.UUID  `json:"productId"`
	VariationID *uuid.UUID `json:"variationId,omitempty"`
	Quantity    int        `json:"quantity" validate:"min=1,max=999"`
}

// OrderItemView is the API shape of an order line.
type OrderItemView struct {
	ID          uuid.UUID  `json:"id"`
	ProductID   uuid.UUID  `json:"productId"`
	VariationID *uuid.UUID `json:"variationId,omitempty"`
	ProductName string     `json:"productName"`
	Price       int64      `json:"price"`
	Quantity    int        `json:"quantity"`
	LineTotal   int64      `json:"lineTotal"`
}

// OrderView is the API shape of an order.
type OrderView struct {
	ID                 uuid.UUID           `json:"id"`
	OrderNumber        string              `json:"orderNumber"`
	Status             enums.OrderStatus   `json:"status"`
	StatusLabel        string              `json:"statusLabel"`
	Subtotal           int64               `json:"subtotal"`
	DiscountAmount     int64               `json:"discountAmount"`
	Total              int64               `json:"total"`
	UserID             *uuid.UUID          `json:"userId,omitempty"`
	GuestEmail         *string             `json:"guestEmail,omitempty"`
	ContactPhone       string              `json:"contactPhone"`
	PickupDate         string              `json:"pickupDate"`
	PickupTime         string              `json:"pickupTime"`
	PaymentMethod      enums.PaymentMethod `json:"paymentMethod"`
	Notes              *string             `json:"notes,omitempty"`
	CancellationReason *string             `json:"cancellationReason,omitempty"`
	CancelledAt        *time.Time          `json:"cancelledAt,omitempty"`
	ModificationReason *string             `json:"modificationReason,omitempty"`
	ModifiedAt         *time.Time          `json:"modifiedAt,omitempty"`
	ModificationCount  int                 `json:"modificationCount"`
	Items              []OrderItemView     `json:"items"`
	CreatedAt          time.Time           `json:"createdAt"`
}

// OrderSummary is the list row for a customer's order history.
type OrderSummary struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber string            `json:"orderNumber"`
	Status      enums.OrderStatus `json:"status"`
	StatusLabel string            `json:"statusLabel"`
	Total       int64             `json:"total"`
	TotalItems  int               `json:"totalItems"`
	PickupDate  string            `json:"pickupDate"`
	PickupTime  string            `json:"pickupTime"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

// ToView maps a persisted order to its API shape.
func ToView(order models.Order) OrderView {
	items := make([]OrderItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemView{
			ID:          item.ID,
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			LineTotal:   item.LineTotal(),
		})
	}
	return OrderView{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		Status:             order.Status,
		StatusLabel:        order.Status.Label(),
		Subtotal:           order.Subtotal,
		DiscountAmount:     order.DiscountAmount,
		Total:              order.Total,
		UserID:             order.UserID,
		GuestEmail:         order.GuestEmail,
		ContactPhone:       order.ContactPhone,
		PickupDate:         order.PickupDate,
		PickupTime:         order.PickupTime,
		PaymentMethod:      order.PaymentMethod,
		Notes:              order.Notes,
		CancellationReason: order.CancellationReason,
		CancelledAt:        order.CancelledAt,
		ModificationReason: order.ModificationReason,
		ModifiedAt:         order.ModifiedAt,
		ModificationCount:  order.ModificationCount,
		Items:              items,
		CreatedAt:          order.CreatedAt,
	}
}

func toSummary(order models.Order) OrderSummary {
	units := 0
	for _, item := range order.Items {
		units += item.Quantity
	}
	return OrderSummary{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		StatusLabel: order.Status.Label(),
		Total:       order.Total,
		TotalItems:  units,
		PickupDate:  order.PickupDate,
		PickupTime:  order.PickupTime,
		CreatedAt:   order.CreatedAt,
	}
}
