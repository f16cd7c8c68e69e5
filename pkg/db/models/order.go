package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// Order is the committed pickup order. Rows are never hard-deleted; a
// cancelled order keeps its items and carries the cancellation metadata.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        string              `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	Status             enums.OrderStatus   `gorm:"column:status;type:text;not null"`
	Subtotal           int64               `gorm:"column:subtotal;not null"`
	DiscountAmount     int64               `gorm:"column:discount_amount;not null;default:0"`
	Total              int64               `gorm:"column:total;not null"`
	UserID             *uuid.UUID          `gorm:"column:user_id;type:uuid;index"`
	GuestEmail         *string             `gorm:"column:guest_email"`
	GuestFirstName     *string             `gorm:"column:guest_first_name"`
	GuestLastName      *string             `gorm:"column:guest_last_name"`
	ContactPhone       string              `gorm:"column:contact_phone;not null"`
	PickupDate         string              `gorm:"column:pickup_date;not null"`
	PickupTime         string              `gorm:"column:pickup_time;not null"`
	PickupAt           time.Time           `gorm:"column:pickup_at;not null"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	SessionID          *string             `gorm:"column:session_id"`
	Notes              *string             `gorm:"column:notes"`
	CancellationReason *string             `gorm:"column:cancellation_reason"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	CancelledBy        *uuid.UUID          `gorm:"column:cancelled_by;type:uuid"`
	ModificationReason *string             `gorm:"column:modification_reason"`
	ModifiedAt         *time.Time          `gorm:"column:modified_at"`
	ModificationCount  int                 `gorm:"column:modification_count;not null;default:0"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IsGuest reports whether the order was placed without an account.
func (o Order) IsGuest() bool {
	return o.UserID == nil
}

// OrderItem is one line of an order with the price captured at commit time.
type OrderItem struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	VariationID *uuid.UUID `gorm:"column:variation_id;type:uuid"`
	ProductName string     `gorm:"column:product_name;not null"`
	Price       int64      `gorm:"column:price;not null"`
	Quantity    int        `gorm:"column:quantity;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// LineTotal is price times quantity in minor units.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}
