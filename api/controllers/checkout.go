package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/api/responses"
	"github.com/angelmondragon/pastrypickup-backend/api/validators"
	checkoutsvc "github.com/angelmondragon/pastrypickup-backend/internal/checkout"
	"github.com/angelmondragon/pastrypickup-backend/internal/coupons"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

// Checkout commits the storefront cart as an order. Signed-in customers are
// identified by their token; everyone else must send a guest block.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := optionalUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := payload.toInput()
		input.UserID = userID
		if userID != nil {
			input.Guest = nil
		}

		result, err := svc.Commit(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newCheckoutResponse(result))
	}
}

type checkoutRequest struct {
	Items          []checkoutItem      `json:"items" validate:"dive"`
	Subtotal       int64               `json:"subtotal" validate:"min=0"`
	DiscountAmount int64               `json:"discountAmount" validate:"min=0"`
	Total          int64               `json:"total"`
	AppliedCoupons []checkoutCoupon    `json:"appliedCoupons,omitempty" validate:"dive"`
	PickupDate     string              `json:"pickupDate"`
	PickupTime     string              `json:"pickupTime"`
	ContactPhone   string              `json:"contactPhone,omitempty" validate:"max=32"`
	PaymentMethod  enums.PaymentMethod `json:"paymentMethod"`
	SessionID      string              `json:"sessionId,omitempty" validate:"max=128"`
	IsDraft        bool                `json:"isDraft,omitempty"`
	Notes          string              `json:"notes,omitempty" validate:"max=500"`
	Guest          *checkoutGuest      `json:"guest,omitempty"`
}

type checkoutItem struct {
	ProductID   uuid.UUID  `json:"productId"`
	VariationID *uuid.UUID `json:"variationId,omitempty"`
	CategoryID  *uuid.UUID `json:"categoryId,omitempty"`
	Quantity    int        `json:"quantity" validate:"min=1,max=999"`
	UnitPrice   int64      `json:"unitPrice" validate:"min=0"`
}

type checkoutCoupon struct {
	ID             uuid.UUID `json:"id"`
	Code           string    `json:"code" validate:"max=64"`
	DiscountAmount int64     `json:"discountAmount" validate:"min=0"`
}

type checkoutGuest struct {
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Email     string `json:"email" validate:"max=254"`
	Phone     string `json:"phone,omitempty" validate:"max=32"`
}

func (p checkoutRequest) toInput() checkoutsvc.CommitInput {
	items := make([]checkoutsvc.LineInput, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, checkoutsvc.LineInput{
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			CategoryID:  item.CategoryID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	applied := make([]coupons.AppliedCoupon, 0, len(p.AppliedCoupons))
	for _, c := range p.AppliedCoupons {
		applied = append(applied, coupons.AppliedCoupon{ID: c.ID, Code: c.Code, DiscountAmount: c.DiscountAmount})
	}
	input := checkoutsvc.CommitInput{
		Items:          items,
		Subtotal:       p.Subtotal,
		DiscountAmount: p.DiscountAmount,
		Total:          p.Total,
		AppliedCoupons: applied,
		PickupDate:     validators.SanitizeString(p.PickupDate, 10),
		PickupTime:     validators.SanitizeString(p.PickupTime, 5),
		ContactPhone:   validators.SanitizeString(p.ContactPhone, 32),
		PaymentMethod:  p.PaymentMethod,
		SessionID:      validators.SanitizeString(p.SessionID, 128),
		IsDraft:        p.IsDraft,
		Notes:          validators.SanitizeString(p.Notes, 500),
	}
	if p.Guest != nil {
		input.Guest = &checkoutsvc.Guest{
			FirstName: validators.SanitizeString(p.Guest.FirstName, 100),
			LastName:  validators.SanitizeString(p.Guest.LastName, 100),
			Email:     validators.SanitizeString(p.Guest.Email, 254),
			Phone:     validators.SanitizeString(p.Guest.Phone, 32),
		}
	}
	return input
}

type checkoutResponse struct {
	Order       orders.OrderView `json:"order"`
	SideEffects *sideEffectsView `json:"sideEffects,omitempty"`
}

type sideEffectsView struct {
	ReservationConfirmed bool              `json:"reservationConfirmed"`
	Notifications        map[string]string `json:"notifications"`
}

func newCheckoutResponse(result *checkoutsvc.CommitResult) checkoutResponse {
	resp := checkoutResponse{Order: orders.ToView(result.Order)}
	if result.Order.Status == enums.OrderStatusDraft {
		return resp
	}
	resp.SideEffects = newSideEffectsView(result.SideEffects)
	return resp
}

func newSideEffectsView(effects checkoutsvc.SideEffects) *sideEffectsView {
	view := &sideEffectsView{
		ReservationConfirmed: effects.ReservationConfirmed,
		Notifications:        map[string]string{},
	}
	if !effects.NotificationSent {
		view.Notifications["email"] = "skipped"
		view.Notifications["whatsapp"] = "skipped"
		return view
	}
	view.Notifications["email"] = channelStatus(effects.Notification.Email)
	view.Notifications["whatsapp"] = channelStatus(effects.Notification.WhatsApp)
	return view
}

func channelStatus(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}
