package errors

// Reason names a specific failure mode inside a Code. Callers branch on it
// when the Code alone is too coarse (e.g. telling a price drift apart from a
// stock shortage, both of which are conflicts).
type Reason string

const (
	ReasonEmptyOrder            Reason = "EMPTY_ORDER"
	ReasonInvalidQuantity       Reason = "INVALID_QUANTITY"
	ReasonPickupRequired        Reason = "PICKUP_REQUIRED"
	ReasonPickupInPast          Reason = "PICKUP_IN_PAST"
	ReasonPhoneRequired         Reason = "PHONE_REQUIRED"
	ReasonGuestContactRequired  Reason = "GUEST_CONTACT_REQUIRED"
	ReasonInvalidPaymentMethod  Reason = "INVALID_PAYMENT_METHOD"
	ReasonProductNotFound       Reason = "PRODUCT_NOT_FOUND"
	ReasonProductUnavailable    Reason = "PRODUCT_UNAVAILABLE"
	ReasonInsufficientStock     Reason = "INSUFFICIENT_STOCK"
	ReasonPriceMismatch         Reason = "PRICE_MISMATCH"
	ReasonSubtotalMismatch      Reason = "SUBTOTAL_MISMATCH"
	ReasonDiscountMismatch      Reason = "DISCOUNT_MISMATCH"
	ReasonTotalMismatch         Reason = "TOTAL_MISMATCH"
	ReasonInvalidDiscount       Reason = "INVALID_DISCOUNT"
	ReasonDuplicateCoupon       Reason = "DUPLICATE_COUPON"
	ReasonCouponCodeRequired    Reason = "COUPON_CODE_REQUIRED"
	ReasonCouponNotFound        Reason = "COUPON_NOT_FOUND"
	ReasonCouponLimitReached    Reason = "COUPON_LIMIT_REACHED"
	ReasonIDGenerationExhausted Reason = "ID_GENERATION_EXHAUSTED"
	ReasonInvalidTransition     Reason = "INVALID_TRANSITION"
	ReasonReasonRequired        Reason = "REASON_REQUIRED"
	ReasonCancelNotAllowed      Reason = "CANCEL_NOT_ALLOWED"
	ReasonOrderNotFound         Reason = "ORDER_NOT_FOUND"
	ReasonNotOrderOwner         Reason = "NOT_ORDER_OWNER"
	ReasonInvalidPoints         Reason = "INVALID_POINTS"
	ReasonInsufficientPoints    Reason = "INSUFFICIENT_POINTS"
	ReasonAlreadyAccrued        Reason = "ALREADY_ACCRUED"
	ReasonReservationFailed     Reason = "RESERVATION_FAILED"
	ReasonNotificationFailed    Reason = "NOTIFICATION_FAILED"
)
