package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pastrypickup-backend/internal/catalog"
	"github.com/angelmondragon/pastrypickup-backend/internal/coupons"
	"github.com/angelmondragon/pastrypickup-backend/internal/notifications"
	"github.com/angelmondragon/pastrypickup-backend/internal/ordernumber"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/internal/users"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/dbtest"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
)

type stubBridge struct {
	confirmed []string
	err       error
}

func (b *stubBridge) Confirm(_ context.Context, sessionID string) error {
	b.confirmed = append(b.confirmed, sessionID)
	return b.err
}

func (b *stubBridge) Release(context.Context, string) error { return nil }

type stubDispatcher struct {
	sent   []notifications.OrderSnapshot
	result notifications.Result
}

func (d *stubDispatcher) NotifyOrderConfirmation(_ context.Context, snap notifications.OrderSnapshot) notifications.Result {
	d.sent = append(d.sent, snap)
	return d.result
}

type commitFixture struct {
	conn     *gorm.DB
	svc      Service
	bridge   *stubBridge
	notifier *stubDispatcher
}

func newCommitFixture(t *testing.T, suffixes ...int) *commitFixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	f := &commitFixture{conn: conn, bridge: &stubBridge{}, notifier: &stubDispatcher{}}

	next := 0
	intn := func(int) int {
		if len(suffixes) == 0 {
			next++
			return next % 1000
		}
		v := suffixes[min(next, len(suffixes)-1)]
		next++
		return v
	}
	svc, err := NewService(ServiceParams{
		Tx:           client,
		Orders:       orders.NewRepository(conn),
		Catalog:      catalog.NewRepository(conn),
		Coupons:      coupons.NewUsageRepository(conn),
		Users:        users.NewRepository(conn),
		Numbers:      ordernumber.NewGenerator("PP", santiago, ordernumber.WithClock(func() time.Time { return now }), ordernumber.WithRandom(intn)),
		Outbox:       outbox.NewService(outbox.NewRepository(conn), nil),
		Reservations: f.bridge,
		Notifier:     f.notifier,
		Location:     santiago,
		Clock:        func() time.Time { return now },
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *commitFixture) count(t *testing.T, model any, query string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.conn.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func cartFor(user *models.User, lines ...LineInput) CommitInput {
	var subtotal int64
	for _, line := range lines {
		subtotal += line.UnitPrice * int64(line.Quantity)
	}
	in := CommitInput{
		Items:         lines,
		Subtotal:      subtotal,
		Total:         subtotal,
		PickupDate:    "2025-03-12",
		PickupTime:    "09:00",
		ContactPhone:  "+56912345678",
		PaymentMethod: enums.PaymentMethodCard,
		SessionID:     "sess-1",
	}
	if user != nil {
		id := user.ID
		in.UserID = &id
	} else {
		in.Guest = &Guest{FirstName: "Ana", LastName: "Rojas", Email: "Ana@Example.com"}
	}
	return in
}

func lineOf(product models.Product, qty int) LineInput {
	return LineInput{ProductID: product.ID, Quantity: qty, UnitPrice: product.Price}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestCommitPlacesUserOrder(t *testing.T) {
	f := newCommitFixture(t)
	user := dbtest.SeedUser(t, f.conn, "ana@example.com")
	bread := dbtest.SeedProduct(t, f.conn, "Marraqueta", 1200, 10)
	cake := dbtest.SeedProduct(t, f.conn, "Kuchen de manzana", 9000, 2)
	coupon := dbtest.SeedCoupon(t, f.conn, "OTONO", nil)

	in := cartFor(&user, lineOf(bread, 4), lineOf(cake, 1))
	in.AppliedCoupons = []coupons.AppliedCoupon{{ID: coupon.ID, Code: coupon.Code, DiscountAmount: 1000}}
	in.DiscountAmount = 1000
	in.Total = in.Subtotal - 1000

	res, err := f.svc.Commit(context.Background(), in)
	require.NoError(t, err)
	order := res.Order
	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.True(t, ordernumber.Valid(order.OrderNumber))
	require.Equal(t, int64(13800), order.Subtotal)
	require.Equal(t, int64(12800), order.Total)
	require.Len(t, order.Items, 2)

	require.Equal(t, 6, dbtest.Stock(t, f.conn, bread.ID))
	require.Equal(t, 1, dbtest.Stock(t, f.conn, cake.ID))
	require.Equal(t, int64(1), f.count(t, &models.CouponUsage{}, "order_id = ?", order.ID))
	require.Equal(t, int64(1), f.count(t, &models.OutboxEvent{}, "event_type = ?", enums.EventOrderPlaced))

	var stored models.User
	require.NoError(t, f.conn.First(&stored, "id = ?", user.ID).Error)
	require.NotNil(t, stored.Phone)
	require.Equal(t, "+56912345678", *stored.Phone)

	require.Equal(t, []string{"sess-1"}, f.bridge.confirmed)
	require.True(t, res.SideEffects.ReservationConfirmed)
	require.True(t, res.SideEffects.NotificationSent)
	require.Len(t, f.notifier.sent, 1)
	require.Equal(t, "ana@example.com", f.notifier.sent[0].Email)
	require.Equal(t, order.OrderNumber, f.notifier.sent[0].OrderNumber)
}

func TestCommitGuestOrderSkipsLoyaltyEvent(t *testing.T) {
	f := newCommitFixture(t)
	product := dbtest.SeedProduct(t, f.conn, "Empanada de pino", 2500, 5)

	res, err := f.svc.Commit(context.Background(), cartFor(nil, lineOf(product, 2)))
	require.NoError(t, err)
	require.True(t, res.Order.IsGuest())
	require.Equal(t, "ana@example.com", *res.Order.GuestEmail)
	require.Equal(t, 3, dbtest.Stock(t, f.conn, product.ID))
	require.Zero(t, f.count(t, &models.OutboxEvent{}, ""))
	require.Len(t, f.notifier.sent, 1)
}

func TestCommitDraftTakesNoStockAndSendsNothing(t *testing.T) {
	f := newCommitFixture(t)
	user := dbtest.SeedUser(t, f.conn, "draft@example.com")
	product := dbtest.SeedProduct(t, f.conn, "Torta de chocolate", 22000, 4)

	in := cartFor(&user, lineOf(product, 3))
	in.IsDraft = true
	in.PaymentMethod = enums.PaymentMethodWebpay
	res, err := f.svc.Commit(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusDraft, res.Order.Status)
	require.Equal(t, 4, dbtest.Stock(t, f.conn, product.ID))
	require.Zero(t, f.count(t, &models.OutboxEvent{}, ""))
	require.Empty(t, f.bridge.confirmed)
	require.Empty(t, f.notifier.sent)
}

func TestCommitDraftStillNeedsStock(t *testing.T) {
	f := newCommitFixture(t)
	user := dbtest.SeedUser(t, f.conn, "draft-short@example.com")
	product := dbtest.SeedProduct(t, f.conn, "Torta de chocolate", 22000, 1)

	in := cartFor(&user, lineOf(product, 3))
	in.IsDraft = true
	_, err := f.svc.Commit(context.Background(), in)
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonInsufficientStock))
	require.Equal(t, 1, dbtest.Stock(t, f.conn, product.ID))
	require.Zero(t, f.count(t, &models.Order{}, ""))
}

func TestCommitRejectsOverflowingQuantities(t *testing.T) {
	f := newCommitFixture(t)
	user := dbtest.SeedUser(t, f.conn, "overflow@example.com")
	product := dbtest.SeedProduct(t, f.conn, "Hallulla", 300, 5)

	_, err := f.svc.Commit(context.Background(), cartFor(&user, lineOf(product, 1<<62), lineOf(product, 1<<62)))
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonInvalidQuantity))
	require.Equal(t, 5, dbtest.Stock(t, f.conn, product.ID))
	require.Zero(t, f.count(t, &models.Order{}, ""))
}

func TestCommitRollsBackOnInsufficientStock(t *testing.T) {
	f := newCommitFixture(t)
	user := dbtest.SeedUser(t, f.conn, "stock@example.com")
	plenty := dbtest.SeedProduct(t, f.conn, "Hallulla", 300, 50)
	scarce := dbtest.SeedProduct(t, f.conn, "Pie de limón", 12000, 1)

	_, err := f.svc.Commit(context.Background(), cartFor(&user, lineOf(plenty, 5), lineOf(scarce, 2)))
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonInsufficientStock))
	require.Equal(t, 50, dbtest.Stock(t, f.conn, plenty.ID))
	require.Equal(t, 1, dbtest.Stock(t, f.conn, scarce.ID))
	require.Zero(t, f.count(t, &models.Order{}, ""))
	require.Empty(t, f.notifier.sent)
}

func TestCommitRejectsStalePrice(t *testing.T) {
	f := newCommitFixture(t)
	user := dbtest.SeedUser(t, f.conn, "price@example.com")
	product := dbtest.SeedProduct(t, f.conn, "Brazo de reina", 8000, 3)

	line := lineOf(product, 1)
	line.UnitPrice = 7500
	_, err := f.svc.Commit(context.Background(), cartFor(&user, line))
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonPriceMismatch))
	require.Equal(t, 3, dbtest.Stock(t, f.conn, product.ID))
}

func TestCommitRollsBackWhenCouponExhausted(t *testing.T) {
	f := newCommitFixture(t)
	user := dbtest.SeedUser(t, f.conn, "coupon@example.com")
	product := dbtest.SeedProduct(t, f.conn, "Queque", 4000, 4)
	limit := 0
	coupon := dbtest.SeedCoupon(t, f.conn, "AGOTADO", &limit)

	in := cartFor(&user, lineOf(product, 1))
	in.AppliedCoupons = []coupons.AppliedCoupon{{ID: coupon.ID, Code: coupon.Code, DiscountAmount: 500}}
	in.DiscountAmount = 500
	in.Total = 3500

	_, err := f.svc.Commit(context.Background(), in)
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonCouponLimitReached))
	require.Equal(t, 4, dbtest.Stock(t, f.conn, product.ID))
	require.Zero(t, f.count(t, &models.Order{}, ""))
	require.Zero(t, f.count(t, &models.CouponUsage{}, ""))
}

func TestCommitRetriesTakenOrderNumber(t *testing.T) {
	f := newCommitFixture(t, 7, 7, 8)
	user := dbtest.SeedUser(t, f.conn, "numbers@example.com")
	product := dbtest.SeedProduct(t, f.conn, "Dobladita", 250, 10)

	first, err := f.svc.Commit(context.Background(), cartFor(&user, lineOf(product, 1)))
	require.NoError(t, err)
	second, err := f.svc.Commit(context.Background(), cartFor(&user, lineOf(product, 1)))
	require.NoError(t, err)
	require.Equal(t, "PP250310007", first.Order.OrderNumber)
	require.Equal(t, "PP250310008", second.Order.OrderNumber)
}

func TestCommitSurvivesSideEffectFailures(t *testing.T) {
	f := newCommitFixture(t)
	f.bridge.err = errors.New("redis down")
	f.notifier.result = notifications.Result{Email: errors.New("smtp down"), WhatsApp: errors.New("api down")}
	user := dbtest.SeedUser(t, f.conn, "effects@example.com")
	product := dbtest.SeedProduct(t, f.conn, "Chilenito", 700, 6)

	res, err := f.svc.Commit(context.Background(), cartFor(&user, lineOf(product, 2)))
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusPending, res.Order.Status)
	require.Error(t, res.SideEffects.ReservationErr)
	require.False(t, res.SideEffects.ReservationConfirmed)
	require.Len(t, res.SideEffects.Notification.Failed(), 2)
	require.Equal(t, 4, dbtest.Stock(t, f.conn, product.ID))
	require.Equal(t, int64(1), f.count(t, &models.Order{}, ""))
}

func TestCommitKeepsRequestValidationOrder(t *testing.T) {
	f := newCommitFixture(t)
	in := cartFor(nil)
	in.PickupDate = ""
	_, err := f.svc.Commit(context.Background(), in)
	require.True(t, pkgerrors.Is(err, pkgerrors.ReasonEmptyOrder))
}

func TestAfterPlacedFallsBackToStoredSession(t *testing.T) {
	f := newCommitFixture(t)
	session := "sess-stored"
	order := models.Order{ID: uuid.New(), OrderNumber: "PP250310001", SessionID: &session, ContactPhone: "+56900000000"}

	effects := f.svc.AfterPlaced(context.Background(), order, "")
	require.True(t, effects.ReservationConfirmed)
	require.Equal(t, []string{"sess-stored"}, f.bridge.confirmed)
	require.Len(t, f.notifier.sent, 1)
}
