package enums

import "slices"

// OrderStatus is the persisted lifecycle state of a pickup order.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusPending   OrderStatus = "PENDIENTE"
	OrderStatusPaid      OrderStatus = "PAGADO"
	OrderStatusPreparing OrderStatus = "PREPARANDO"
	OrderStatusReady     OrderStatus = "LISTO"
	OrderStatusPickedUp  OrderStatus = "RETIRADO"
	OrderStatusCancelled OrderStatus = "CANCELADO"
)

var orderStatuses = set[OrderStatus]{
	OrderStatusDraft,
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusPickedUp,
	OrderStatusCancelled,
}

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusDraft:     "Awaiting payment",
	OrderStatusPending:   "Pending",
	OrderStatusPaid:      "Paid",
	OrderStatusPreparing: "Being prepared",
	OrderStatusReady:     "Ready for pickup",
	OrderStatusPickedUp:  "Picked up",
	OrderStatusCancelled: "Cancelled",
}

// String implements fmt.Stringer.
func (s OrderStatus) String() string {
	return string(s)
}

// Label is the customer-facing name of the status.
func (s OrderStatus) Label() string {
	if label, ok := orderStatusLabels[s]; ok {
		return label
	}
	return string(s)
}

// IsTerminal reports whether no further transition leaves this status.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPickedUp || s == OrderStatusCancelled
}

func (s OrderStatus) IsValid() bool { return orderStatuses.has(s) }

func ParseOrderStatus(raw string) (OrderStatus, error) {
	return orderStatuses.parse("order status", raw)
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus { return slices.Clone(orderStatuses) }
