package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/internal/catalog"
	"github.com/angelmondragon/pastrypickup-backend/internal/coupons"
	"github.com/angelmondragon/pastrypickup-backend/internal/ordernumber"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/metrics"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/pastrypickup-backend/pkg/pagination"
	"github.com/angelmondragon/pastrypickup-backend/pkg/visibility"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PlacedHook runs after a draft order has been confirmed and committed.
type PlacedHook func(ctx context.Context, order models.Order)

// ServiceParams groups dependencies for the order lifecycle service.
type ServiceParams struct {
	Tx       txRunner
	Orders   Repository
	Catalog  catalog.Repository
	Coupons  coupons.UsageRepository
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics
	Clock    func() time.Time
	OnPlaced PlacedHook
}

// Service drives orders through their lifecycle after commit.
type Service interface {
	Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Order, error)
	GetByNumber(ctx context.Context, number string, actor Actor, guestEmail string) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	Advance(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error)
	Modify(ctx context.Context, orderID uuid.UUID, items []ItemInput, reason string, actor Actor) (*models.Order, error)
}

type service struct {
	tx       txRunner
	orders   Repository
	catalog  catalog.Repository
	coupons  coupons.UsageRepository
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.OrderMetrics
	now      func() time.Time
	onPlaced PlacedHook
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
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
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &service{
		tx:       params.Tx,
		orders:   params.Orders,
		catalog:  params.Catalog,
		coupons:  params.Coupons,
		outbox:   params.Outbox,
		logg:     logg,
		metrics:  params.Metrics,
		now:      now,
		onPlaced: params.OnPlaced,
	}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, actor Actor) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ensureVisible(order, actor, ""); err != nil {
		return nil, err
	}
	return order, nil
}

// GetByNumber lets a caller whose commit timed out find out whether it
// landed. Guests prove ownership with the email used at checkout.
func (s *service) GetByNumber(ctx context.Context, number string, actor Actor, guestEmail string) (*models.Order, error) {
	number = strings.ToUpper(strings.TrimSpace(number))
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	if !ordernumber.Valid(number) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found").WithReason(pkgerrors.ReasonOrderNotFound)
	}
	order, err := s.orders.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if err := ensureVisible(order, actor, guestEmail); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.orders.ListByUser(ctx, userID, params)
}

// Advance moves the order one step forward. Confirming a draft takes its
// stock under lock and queues order_placed.
func (s *service) Advance(ctx context.Context, orderID uuid.UUID, actor Actor) (*models.Order, error) {
	var (
		order  *models.Order
		placed bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		current, err := orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		from := current.Status
		next, err := Transition(from, EventAdvance, actor)
		if err != nil {
			return err
		}

		if from == enums.OrderStatusDraft {
			if err := s.takeStock(ctx, tx, current.Items); err != nil {
				return err
			}
		}
		if err := orders.Update(ctx, current.ID, map[string]any{"status": next}); err != nil {
			return err
		}
		current.Status = next

		placed = from == enums.OrderStatusDraft
		if placed && !current.IsGuest() {
			if err := s.outbox.Emit(ctx, tx, orderPlacedEvent(*current, actor)); err != nil {
				return err
			}
		}
		order = current
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderAdvanced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         actorRef(actor),
			Data: payloads.OrderAdvancedEvent{
				OrderID:     current.ID,
				OrderNumber: current.OrderNumber,
				From:        from,
				To:          next,
			},
		})
	})
	s.observe("advance", err)
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithOrderNumber(s.logg.WithOrderID(ctx, order.ID.String()), order.OrderNumber)
	s.logg.Info(s.logg.WithField(logCtx, "status", order.Status), "order advanced")
	if placed && s.onPlaced != nil {
		s.onPlaced(ctx, *order)
	}
	return order, nil
}

func (s *service) takeStock(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	demand := catalog.Demand{}
	for _, item := range items {
		demand.Add(item.ProductID, item.Quantity)
	}
	products := s.catalog.WithTx(tx)
	locked, err := products.LockProducts(ctx, demand.ProductIDs())
	if err != nil {
		return err
	}
	if err := catalog.EnsureSellable(locked, demand); err != nil {
		return err
	}
	if err := catalog.EnsureStock(locked, demand); err != nil {
		return err
	}
	return catalog.Apply(ctx, products, demand)
}

// Cancel restores every unit the order holds, voids its coupon usages and
// records who cancelled it and why.
func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, reason string, actor Actor) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		err := pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required").WithReason(pkgerrors.ReasonReasonRequired)
		s.observe("cancel", err)
		return nil, err
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		current, err := orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorize(*current, actor); err != nil {
			return err
		}
		from := current.Status
		next, err := Transition(from, EventCancel, actor)
		if err != nil {
			return err
		}

		released := catalog.Demand{}
		units := 0
		for _, item := range current.Items {
			released.Add(item.ProductID, -item.Quantity)
			units += item.Quantity
		}
		products := s.catalog.WithTx(tx)
		if _, err := products.LockProducts(ctx, released.ProductIDs()); err != nil {
			return err
		}
		if err := catalog.Apply(ctx, products, released); err != nil {
			return err
		}

		at := s.now().UTC()
		if _, err := s.coupons.WithTx(tx).VoidByOrder(ctx, current.ID, at); err != nil {
			return err
		}

		updates := map[string]any{
			"status":              next,
			"cancellation_reason": reason,
			"cancelled_at":        at,
			"cancelled_by":        actor.ref(),
		}
		if err := orders.Update(ctx, current.ID, updates); err != nil {
			return err
		}
		current.Status = next
		current.CancellationReason = &reason
		current.CancelledAt = &at
		current.CancelledBy = actor.ref()
		order = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         actorRef(actor),
			OccurredAt:    at,
			Data: payloads.OrderCancelledEvent{
				OrderID:       current.ID,
				OrderNumber:   current.OrderNumber,
				PreviousState: from,
				Reason:        reason,
				CancelledAt:   at,
				RestoredUnits: units,
			},
		})
	})
	s.observe("cancel", err)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithOrderNumber(s.logg.WithOrderID(ctx, order.ID.String()), order.OrderNumber)
	s.logg.Info(logCtx, "order cancelled")
	return order, nil
}

type lineKey struct {
	product   uuid.UUID
	variation uuid.UUID
}

func keyOf(productID uuid.UUID, variationID *uuid.UUID) lineKey {
	key := lineKey{product: productID}
	if variationID != nil {
		key.variation = *variationID
	}
	return key
}

// Modify replaces the items of a pending order. Stock moves by the net
// change per product; retained lines keep the price captured at commit.
func (s *service) Modify(ctx context.Context, orderID uuid.UUID, items []ItemInput, reason string, actor Actor) (*models.Order, error) {
	if err := validateModification(items, reason); err != nil {
		s.observe("modify", err)
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		orders := s.orders.WithTx(tx)
		current, err := orders.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := authorize(*current, actor); err != nil {
			return err
		}
		if _, err := Transition(current.Status, EventModify, actor); err != nil {
			return err
		}

		previous := make(map[lineKey]models.OrderItem, len(current.Items))
		delta := catalog.Demand{}
		for _, item := range current.Items {
			key := keyOf(item.ProductID, item.VariationID)
			if existing, ok := previous[key]; ok {
				item.Quantity += existing.Quantity
			}
			previous[key] = item
			delta.Add(item.ProductID, -item.Quantity)
		}

		requested := mergeInputs(items)
		added := catalog.Demand{}
		for _, line := range requested {
			key := keyOf(line.ProductID, line.VariationID)
			delta.Add(line.ProductID, line.Quantity)
			if _, ok := previous[key]; !ok {
				added.Add(line.ProductID, line.Quantity)
			}
		}

		products := s.catalog.WithTx(tx)
		locked, err := products.LockProducts(ctx, delta.ProductIDs())
		if err != nil {
			return err
		}
		if err := catalog.EnsureSellable(locked, added); err != nil {
			return err
		}
		increased := catalog.Demand{}
		for id, qty := range delta {
			if qty > 0 {
				increased.Add(id, qty)
			}
		}
		if err := catalog.EnsureSellable(locked, increased); err != nil {
			return err
		}
		if err := catalog.EnsureStock(locked, increased); err != nil {
			return err
		}
		if err := catalog.Apply(ctx, products, delta); err != nil {
			return err
		}

		replacement := make([]models.OrderItem, 0, len(requested))
		for _, line := range requested {
			item := models.OrderItem{
				ProductID:   line.ProductID,
				VariationID: line.VariationID,
				Quantity:    line.Quantity,
			}
			if kept, ok := previous[keyOf(line.ProductID, line.VariationID)]; ok {
				item.ProductName = kept.ProductName
				item.Price = kept.Price
			} else {
				product := locked[line.ProductID]
				item.ProductName = product.Name
				item.Price = product.Price
			}
			replacement = append(replacement, item)
		}
		if err := orders.ReplaceItems(ctx, current.ID, replacement); err != nil {
			return err
		}

		previousSubtotal := current.Subtotal
		subtotal := lo.SumBy(replacement, func(item models.OrderItem) int64 { return item.LineTotal() })
		total := max(subtotal-current.DiscountAmount, 0)
		at := s.now().UTC()
		count := current.ModificationCount + 1
		updates := map[string]any{
			"subtotal":            subtotal,
			"total":               total,
			"modification_reason": reason,
			"modified_at":         at,
			"modification_count":  count,
		}
		if err := orders.Update(ctx, current.ID, updates); err != nil {
			return err
		}
		current.Items = replacement
		current.Subtotal = subtotal
		current.Total = total
		current.ModificationReason = &reason
		current.ModifiedAt = &at
		current.ModificationCount = count
		order = current

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderModified,
			AggregateType: enums.AggregateOrder,
			AggregateID:   current.ID,
			Actor:         actorRef(actor),
			OccurredAt:    at,
			Data: payloads.OrderModifiedEvent{
				OrderID:           current.ID,
				OrderNumber:       current.OrderNumber,
				PreviousSubtotal:  previousSubtotal,
				Subtotal:          subtotal,
				Total:             total,
				Reason:            reason,
				ModificationCount: count,
			},
		})
	})
	s.observe("modify", err)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithOrderNumber(s.logg.WithOrderID(ctx, order.ID.String()), order.OrderNumber)
	s.logg.Info(s.logg.WithField(logCtx, "modification_count", order.ModificationCount), "order modified")
	return order, nil
}

func validateModification(items []ItemInput, reason string) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item").WithReason(pkgerrors.ReasonEmptyOrder)
	}
	for _, item := range items {
		if item.Quantity < 1 || item.Quantity > catalog.MaxLineQuantity {
			return pkgerrors.Newf(pkgerrors.CodeValidation, pkgerrors.ReasonInvalidQuantity,
				"quantity must be between 1 and %d", catalog.MaxLineQuantity).WithDetails(map[string]any{"productId": item.ProductID, "quantity": item.Quantity})
		}
	}
	if strings.TrimSpace(reason) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "modification reason required").WithReason(pkgerrors.ReasonReasonRequired)
	}
	return nil
}

// mergeInputs folds repeated (product, variation) lines into one, keeping
// first-seen order.
func mergeInputs(items []ItemInput) []ItemInput {
	index := make(map[lineKey]int, len(items))
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		key := keyOf(item.ProductID, item.VariationID)
		if i, ok := index[key]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func authorize(order models.Order, actor Actor) error {
	if actor.isStaff() {
		return nil
	}
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if order.UserID == nil || *order.UserID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user").WithReason(pkgerrors.ReasonNotOrderOwner)
	}
	return nil
}

func ensureVisible(order *models.Order, actor Actor, guestEmail string) error {
	return visibility.EnsureOrderVisible(visibility.OrderVisibilityInput{
		Order:      order,
		ViewerID:   actor.UserID,
		Staff:      actor.isStaff(),
		GuestEmail: guestEmail,
	})
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.ref(), Role: string(actor.Role)}
}

func orderPlacedEvent(order models.Order, actor Actor) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actor),
		Data: payloads.OrderPlacedEvent{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			UserID:      *order.UserID,
			Total:       order.Total,
		},
	}
}

func (s *service) observe(operation string, err error) {
	s.metrics.IncLifecycle(operation, Outcome(err))
}

// Outcome is the metrics label for an operation result.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if reason := pkgerrors.ReasonOf(err); reason != "" {
		return string(reason)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return string(typed.Code())
	}
	return "error"
}
