package checkout

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/angelmondragon/pastrypickup-backend/internal/catalog"
	"github.com/angelmondragon/pastrypickup-backend/internal/coupons"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

const pickupLayout = "2006-01-02 15:04"

var emailCheck = validator.New()

// ValidateRequest runs the checks that need nothing but the input and the
// clock. It returns the pickup instant in the store timezone.
func ValidateRequest(in CommitInput, now time.Time, loc *time.Location) (time.Time, error) {
	if len(in.Items) == 0 {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item").WithReason(pkgerrors.ReasonEmptyOrder)
	}
	for _, item := range in.Items {
		if item.Quantity < 1 || item.Quantity > catalog.MaxLineQuantity {
			return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidQuantity,
				"quantity must be between 1 and %d", catalog.MaxLineQuantity).
				WithDetails(map[string]any{"productId": item.ProductID, "quantity": item.Quantity})
		}
	}

	pickupAt, err := parsePickup(in.PickupDate, in.PickupTime, loc)
	if err != nil {
		return time.Time{}, err
	}
	if !pickupAt.After(now) {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "pickup must be in the future").
			WithReason(pkgerrors.ReasonPickupInPast).
			WithDetails(map[string]any{"pickupDate": in.PickupDate, "pickupTime": in.PickupTime})
	}

	if strings.TrimSpace(in.phone()) == "" {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "contact phone required").WithReason(pkgerrors.ReasonPhoneRequired)
	}
	if err := validateCustomer(in); err != nil {
		return time.Time{}, err
	}
	if !in.PaymentMethod.IsValid() {
		return time.Time{}, pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidPaymentMethod,
			"invalid payment method %q", in.PaymentMethod)
	}
	return pickupAt, nil
}

func parsePickup(date, clock string, loc *time.Location) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if date == "" || clock == "" {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "pickup date and time required").WithReason(pkgerrors.ReasonPickupRequired)
	}
	if loc == nil {
		loc = time.UTC
	}
	at, err := time.ParseInLocation(pickupLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "pickup must be YYYY-MM-DD and HH:MM").
			WithReason(pkgerrors.ReasonPickupRequired)
	}
	return at, nil
}

func validateCustomer(in CommitInput) error {
	if in.UserID != nil && *in.UserID != uuid.Nil {
		return nil
	}
	guest := in.Guest
	if guest == nil || strings.TrimSpace(guest.FirstName) == "" || strings.TrimSpace(guest.LastName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "guest name and email required").WithReason(pkgerrors.ReasonGuestContactRequired)
	}
	if err := emailCheck.Var(strings.TrimSpace(guest.Email), "required,email"); err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "guest email is invalid").WithReason(pkgerrors.ReasonGuestContactRequired)
	}
	return nil
}

// ValidatePricing checks the cart against locked catalog rows: availability,
// stock, unit prices, then the declared totals. Drafts take no stock but
// still may not ask for more than is on hand.
func ValidatePricing(in CommitInput, products map[uuid.UUID]models.Product) error {
	demand := demandOf(in.Items)
	if err := catalog.EnsureSellable(products, demand); err != nil {
		return err
	}
	if err := catalog.EnsureStock(products, demand); err != nil {
		return err
	}

	for _, item := range in.Items {
		product := products[item.ProductID]
		if item.UnitPrice != product.Price {
			return pkgerrors.Newf(pkgerrors.CodeConflict, pkgerrors.ReasonPriceMismatch,
				"price of %s changed", product.Name).
				WithDetails(map[string]any{"productId": item.ProductID, "expected": product.Price, "received": item.UnitPrice})
		}
	}

	subtotal := lo.SumBy(in.Items, func(item LineInput) int64 { return products[item.ProductID].Price * int64(item.Quantity) })
	if subtotal != in.Subtotal {
		return pkgerrors.New(pkgerrors.CodeConflict, "subtotal does not match items").
			WithReason(pkgerrors.ReasonSubtotalMismatch).
			WithDetails(map[string]any{"expected": subtotal, "received": in.Subtotal})
	}
	if err := coupons.ValidateDiscount(in.cartLines(), in.AppliedCoupons, in.DiscountAmount); err != nil {
		return err
	}
	total := max(subtotal-in.DiscountAmount, 0)
	if total != in.Total {
		return pkgerrors.New(pkgerrors.CodeConflict, "total does not match subtotal minus discount").
			WithReason(pkgerrors.ReasonTotalMismatch).
			WithDetails(map[string]any{"expected": total, "received": in.Total})
	}
	return nil
}

func demandOf(items []LineInput) catalog.Demand {
	demand := catalog.Demand{}
	for _, item := range items {
		demand.Add(item.ProductID, item.Quantity)
	}
	return demand
}
