package coupons

import (
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

// AppliedCoupon is a coupon the storefront already resolved to a fixed
// discount for this cart.
type AppliedCoupon struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code"`
	DiscountAmount int64     `json:"discountAmount"`
}

// CartLine is the part of a cart line the validator may look at.
type CartLine struct {
	ProductID  uuid.UUID  `json:"productId"`
	CategoryID *uuid.UUID `json:"categoryId,omitempty"`
	Quantity   int        `json:"quantity"`
	UnitPrice  int64      `json:"unitPrice"`
}

// ValidateDiscount checks that the coupons add up to exactly the discount the
// client claims. Coupon rules (percentages, categories, expiry) were applied
// upstream and are not re-derived here.
func ValidateDiscount(lines []CartLine, applied []AppliedCoupon, claimed int64) error {
	if claimed < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount amount cannot be negative").
			WithReason(pkgerrors.ReasonInvalidDiscount)
	}

	seen := make(map[uuid.UUID]struct{}, len(applied))
	var sum int64
	for _, coupon := range applied {
		if coupon.ID == uuid.Nil || strings.TrimSpace(coupon.Code) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "coupon id and code are required").
				WithReason(pkgerrors.ReasonCouponCodeRequired)
		}
		if coupon.DiscountAmount < 0 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidDiscount,
				"coupon %s has a negative discount", coupon.Code)
		}
		if _, dup := seen[coupon.ID]; dup {
			return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonDuplicateCoupon,
				"coupon %s applied more than once", coupon.Code)
		}
		seen[coupon.ID] = struct{}{}
		sum += coupon.DiscountAmount
	}

	if sum != claimed {
		return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonDiscountMismatch,
			"coupons add up to %d but the order claims %d", sum, claimed).
			WithDetails(map[string]any{"expected": sum, "claimed": claimed})
	}
	return nil
}
