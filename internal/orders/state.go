package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
)

// Event is a lifecycle request applied to an order.
type Event string

const (
	EventAdvance Event = "advance"
	EventCancel  Event = "cancel"
	EventModify  Event = "modify"
)

// Actor is whoever asks for a lifecycle change.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// SystemActor is used by background jobs.
func SystemActor() Actor {
	return Actor{Role: enums.RoleSystem}
}

func (a Actor) isStaff() bool {
	return a.Role.IsStaff()
}

func (a Actor) ref() *uuid.UUID {
	if a.UserID == uuid.Nil {
		return nil
	}
	id := a.UserID
	return &id
}

var advanceChain = map[enums.OrderStatus]enums.OrderStatus{
	enums.OrderStatusDraft:     enums.OrderStatusPending,
	enums.OrderStatusPending:   enums.OrderStatusPaid,
	enums.OrderStatusPaid:      enums.OrderStatusPreparing,
	enums.OrderStatusPreparing: enums.OrderStatusReady,
	enums.OrderStatusReady:     enums.OrderStatusPickedUp,
}

// Transition returns the status an order moves to when event is applied by
// actor. Every status and event pair yields either a status or an error.
func Transition(from enums.OrderStatus, event Event, actor Actor) (enums.OrderStatus, error) {
	switch event {
	case EventAdvance:
		if !actor.isStaff() {
			return "", pkgerrors.New(pkgerrors.CodeForbidden, "only staff may advance orders")
		}
		next, ok := advanceChain[from]
		if !ok {
			return "", invalidTransition(from, event)
		}
		return next, nil
	case EventCancel:
		switch from {
		case enums.OrderStatusPending, enums.OrderStatusPreparing:
			return enums.OrderStatusCancelled, nil
		case enums.OrderStatusPaid, enums.OrderStatusReady:
			if actor.isStaff() {
				return enums.OrderStatusCancelled, nil
			}
			return "", pkgerrors.Newf(pkgerrors.CodeForbidden, pkgerrors.ReasonCancelNotAllowed,
				"orders in status %s can only be cancelled by the store", from.Label())
		default:
			return "", invalidTransition(from, event)
		}
	case EventModify:
		if from == enums.OrderStatusPending {
			return from, nil
		}
		return "", invalidTransition(from, event)
	default:
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "", "unknown order event %q", event)
	}
}

func invalidTransition(from enums.OrderStatus, event Event) error {
	return pkgerrors.Newf(pkgerrors.CodeStateConflict, pkgerrors.ReasonInvalidTransition,
		"cannot %s an order in status %s", event, from).
		WithDetails(map[string]any{"status": from, "event": event})
}
