package visibility

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

// OrderVisibilityInput drives the shared visibility check for order reads.
type OrderVisibilityInput struct {
	Order      *models.Order
	ViewerID   uuid.UUID
	Staff      bool
	GuestEmail string
}

// EnsureOrderVisible reports a hidden order as missing so lookups never
// confirm that someone else's order exists.
func EnsureOrderVisible(input OrderVisibilityInput) error {
	order := input.Order
	if order == nil {
		return notFound()
	}
	if input.Staff {
		return nil
	}
	if input.ViewerID != uuid.Nil && order.UserID != nil && *order.UserID == input.ViewerID {
		return nil
	}
	email := normalizeEmail(input.GuestEmail)
	if order.IsGuest() && order.GuestEmail != nil && email != "" && normalizeEmail(*order.GuestEmail) == email {
		return nil
	}
	return notFound()
}

func notFound() error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithReason(pkgerrors.ReasonOrderNotFound)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
