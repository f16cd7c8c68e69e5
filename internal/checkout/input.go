package checkout

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/internal/coupons"
	"github.com/angelmondragon/pastrypickup-backend/internal/notifications"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

// LineInput is one cart line as the storefront priced it.
type LineInput struct {
	ProductID   uuid.UUID
	VariationID *uuid.UUID
	CategoryID  *uuid.UUID
	Quantity    int
	UnitPrice   int64
}

// Guest is the contact bundle of a customer ordering without an account.
type Guest struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// CommitInput is the cart plus everything the customer declared at checkout.
// Exactly one of UserID and Guest identifies the customer.
type CommitInput struct {
	Items          []LineInput
	Subtotal       int64
	DiscountAmount int64
	Total          int64
	AppliedCoupons []coupons.AppliedCoupon
	PickupDate     string
	PickupTime     string
	ContactPhone   string
	PaymentMethod  enums.PaymentMethod
	SessionID      string
	IsDraft        bool
	Notes          string
	UserID         *uuid.UUID
	Guest          *Guest
}

func (in CommitInput) phone() string {
	if in.ContactPhone != "" {
		return in.ContactPhone
	}
	if in.Guest != nil {
		return in.Guest.Phone
	}
	return ""
}

func (in CommitInput) cartLines() []coupons.CartLine {
	lines := make([]coupons.CartLine, 0, len(in.Items))
	for _, item := range in.Items {
		lines = append(lines, coupons.CartLine{
			ProductID:  item.ProductID,
			CategoryID: item.CategoryID,
			Quantity:   item.Quantity,
			UnitPrice:  item.UnitPrice,
		})
	}
	return lines
}

// SideEffects reports the post-commit work. Failures here never undo the
// commit.
type SideEffects struct {
	ReservationConfirmed bool
	ReservationErr       error
	Notification         notifications.Result
	NotificationSent     bool
}

// CommitResult is the committed order plus its independently fallible side
// effects.
type CommitResult struct {
	Order       models.Order
	SideEffects SideEffects
}
