package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/internal/catalog"
	"github.com/angelmondragon/pastrypickup-backend/internal/coupons"
	"github.com/angelmondragon/pastrypickup-backend/internal/notifications"
	"github.com/angelmondragon/pastrypickup-backend/internal/ordernumber"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/internal/reservations"
	"github.com/angelmondragon/pastrypickup-backend/internal/users"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/metrics"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Tx           txRunner
	Orders       orders.Repository
	Catalog      catalog.Repository
	Coupons      coupons.UsageRepository
	Users        *users.Repository
	Numbers      *ordernumber.Generator
	Outbox       outbox.Emitter
	Reservations reservations.Bridge
	Notifier     notifications.Dispatcher
	Location     *time.Location
	Clock        func() time.Time
	Logger       *logger.Logger
	Metrics      *metrics.OrderMetrics
}

// Service turns a priced cart into a committed order.
type Service interface {
	Commit(ctx context.Context, input CommitInput) (*CommitResult, error)
	// AfterPlaced runs the post-commit side effects for an order that just
	// became real. Checkout calls it itself; lifecycle calls it when a draft
	// is confirmed.
	AfterPlaced(ctx context.Context, order models.Order, sessionID string) SideEffects
}

type service struct {
	tx           txRunner
	orders       orders.Repository
	catalog      catalog.Repository
	coupons      coupons.UsageRepository
	users        *users.Repository
	numbers      *ordernumber.Generator
	outbox       outbox.Emitter
	reservations reservations.Bridge
	notifier     notifications.Dispatcher
	loc          *time.Location
	now          func() time.Time
	logg         *logger.Logger
	metrics      *metrics.OrderMetrics
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if params.Coupons == nil {
		return nil, fmt.Errorf("coupon usage repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Numbers == nil {
		return nil, fmt.Errorf("order number generator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation bridge required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:           params.Tx,
		orders:       params.Orders,
		catalog:      params.Catalog,
		coupons:      params.Coupons,
		users:        params.Users,
		numbers:      params.Numbers,
		outbox:       params.Outbox,
		reservations: params.Reservations,
		notifier:     params.Notifier,
		loc:          loc,
		now:          now,
		logg:         logg,
		metrics:      params.Metrics,
	}, nil
}

// Commit validates the cart and writes the order, its items, stock
// decrements, coupon usages and the order_placed event in one transaction.
// The stock hold confirmation and the customer notification run afterwards
// and are reported in the result instead of failing the call.
func (s *service) Commit(ctx context.Context, input CommitInput) (*CommitResult, error) {
	order, err := s.commit(ctx, input)
	if err != nil {
		s.metrics.IncCommit(orders.Outcome(err))
		return nil, err
	}
	result := &CommitResult{Order: *order}
	if order.Status == enums.OrderStatusDraft {
		s.metrics.IncCommit("draft")
		return result, nil
	}
	s.metrics.IncCommit("committed")
	result.SideEffects = s.AfterPlaced(ctx, *order, input.SessionID)
	return result, nil
}

func (s *service) commit(ctx context.Context, input CommitInput) (*models.Order, error) {
	pickupAt, err := ValidateRequest(input, s.now(), s.loc)
	if err != nil {
		return nil, err
	}

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.orders.WithTx(tx)
		products := s.catalog.WithTx(tx)

		demand := demandOf(input.Items)
		locked, err := products.LockProducts(ctx, demand.ProductIDs())
		if err != nil {
			return err
		}
		if err := ValidatePricing(input, locked); err != nil {
			return err
		}

		number, err := s.numbers.Generate(ctx, ordersRepo.NumberExists)
		if err != nil {
			return err
		}

		order := buildOrder(input, number, pickupAt)
		if err := ordersRepo.Create(ctx, &order); err != nil {
			return err
		}
		items := buildItems(order.ID, input.Items, locked)
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return err
		}
		order.Items = items

		if !input.IsDraft {
			if err := catalog.Apply(ctx, products, demand); err != nil {
				return err
			}
		}
		if err := s.coupons.WithTx(tx).Record(ctx, order.ID, order.UserID, input.AppliedCoupons); err != nil {
			return err
		}
		if order.UserID != nil {
			if _, err := s.users.WithTx(tx).BackfillPhone(ctx, *order.UserID, order.ContactPhone); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "backfill phone")
			}
			if !input.IsDraft {
				if err := s.emitPlaced(ctx, tx, order); err != nil {
					return err
				}
			}
		}
		created = &order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderNumber(s.logg.WithOrderID(ctx, created.ID.String()), created.OrderNumber)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"status": created.Status,
		"total":  created.Total,
		"guest":  created.IsGuest(),
	}), "order committed")
	return created, nil
}

func (s *service) emitPlaced(ctx context.Context, tx *gorm.DB, order models.Order) error {
	userID := *order.UserID
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: &userID, Role: string(enums.RoleCustomer)},
		Data: payloads.OrderPlacedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      userID,
			Total:       order.Total,
		},
	})
}

func (s *service) AfterPlaced(ctx context.Context, order models.Order, sessionID string) SideEffects {
	var effects SideEffects
	logCtx := s.logg.WithOrderNumber(s.logg.WithOrderID(ctx, order.ID.String()), order.OrderNumber)

	if sessionID = strings.TrimSpace(sessionID); sessionID == "" && order.SessionID != nil {
		sessionID = *order.SessionID
	}
	if err := s.reservations.Confirm(ctx, sessionID); err != nil {
		effects.ReservationErr = err
		s.metrics.IncSideEffectFailure("reservation")
		s.logg.Warn(s.logg.WithField(logCtx, "session_id", sessionID), fmt.Sprintf("stock hold confirmation failed: %v", err))
	} else {
		effects.ReservationConfirmed = sessionID != ""
	}

	var user *models.User
	if order.UserID != nil {
		found, err := s.users.FindByID(ctx, *order.UserID)
		if err != nil {
			s.logg.Warn(logCtx, fmt.Sprintf("load customer for notification: %v", err))
		} else {
			user = found
		}
	}
	effects.Notification = s.notifier.NotifyOrderConfirmation(ctx, notifications.Snapshot(order, user))
	effects.NotificationSent = true
	for _, channel := range effects.Notification.Failed() {
		s.metrics.IncSideEffectFailure("notification_" + string(channel))
		s.logg.Warn(s.logg.WithField(logCtx, "channel", string(channel)), "order confirmation not delivered")
	}
	return effects
}

func buildOrder(input CommitInput, number string, pickupAt time.Time) models.Order {
	status := enums.OrderStatusPending
	if input.IsDraft {
		status = enums.OrderStatusDraft
	}
	order := models.Order{
		OrderNumber:    number,
		Status:         status,
		Subtotal:       input.Subtotal,
		DiscountAmount: input.DiscountAmount,
		Total:          input.Total,
		ContactPhone:   strings.TrimSpace(input.phone()),
		PickupDate:     strings.TrimSpace(input.PickupDate),
		PickupTime:     strings.TrimSpace(input.PickupTime),
		PickupAt:       pickupAt.UTC(),
		PaymentMethod:  input.PaymentMethod,
		SessionID:      optional(input.SessionID),
		Notes:          optional(input.Notes),
	}
	if input.UserID != nil && *input.UserID != uuid.Nil {
		id := *input.UserID
		order.UserID = &id
		return order
	}
	order.GuestEmail = optional(strings.ToLower(input.Guest.Email))
	order.GuestFirstName = optional(input.Guest.FirstName)
	order.GuestLastName = optional(input.Guest.LastName)
	return order
}

func buildItems(orderID uuid.UUID, lines []LineInput, products map[uuid.UUID]models.Product) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product := products[line.ProductID]
		items = append(items, models.OrderItem{
			OrderID:     orderID,
			ProductID:   line.ProductID,
			VariationID: line.VariationID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    line.Quantity,
		})
	}
	return items
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
