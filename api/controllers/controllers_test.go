package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/api/middleware"
	checkoutsvc "github.com/angelmondragon/pastrypickup-backend/internal/checkout"
	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/internal/notifications"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pastrypickup-backend/pkg/errors"
	"github.com/angelmondragon/pastrypickup-backend/pkg/pagination"
)

type stubCheckout struct {
	commit func(ctx context.Context, input checkoutsvc.CommitInput) (*checkoutsvc.CommitResult, error)
}

func (s stubCheckout) Commit(ctx context.Context, input checkoutsvc.CommitInput) (*checkoutsvc.CommitResult, error) {
	return s.commit(ctx, input)
}

func (s stubCheckout) AfterPlaced(context.Context, models.Order, string) checkoutsvc.SideEffects {
	return checkoutsvc.SideEffects{}
}

type stubOrders struct {
	get      func(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.Order, error)
	byNumber func(ctx context.Context, number string, actor orders.Actor, email string) (*models.Order, error)
	list     func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*orders.OrderList, error)
	advance  func(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.Order, error)
	cancel   func(ctx context.Context, id uuid.UUID, reason string, actor orders.Actor) (*models.Order, error)
	modify   func(ctx context.Context, id uuid.UUID, items []orders.ItemInput, reason string, actor orders.Actor) (*models.Order, error)
}

func (s stubOrders) Get(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.get(ctx, id, actor)
}

func (s stubOrders) GetByNumber(ctx context.Context, number string, actor orders.Actor, email string) (*models.Order, error) {
	return s.byNumber(ctx, number, actor, email)
}

func (s stubOrders) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*orders.OrderList, error) {
	return s.list(ctx, userID, params)
}

func (s stubOrders) Advance(ctx context.Context, id uuid.UUID, actor orders.Actor) (*models.Order, error) {
	return s.advance(ctx, id, actor)
}

func (s stubOrders) Cancel(ctx context.Context, id uuid.UUID, reason string, actor orders.Actor) (*models.Order, error) {
	return s.cancel(ctx, id, reason, actor)
}

func (s stubOrders) Modify(ctx context.Context, id uuid.UUID, items []orders.ItemInput, reason string, actor orders.Actor) (*models.Order, error) {
	return s.modify(ctx, id, items, reason, actor)
}

type stubLoyalty struct {
	loyalty.Service
	redeem  func(ctx context.Context, userID uuid.UUID, points int64, reference string) (*loyalty.Redemption, error)
	account func(ctx context.Context, userID uuid.UUID) (*loyalty.Account, error)
}

func (s stubLoyalty) Redeem(ctx context.Context, userID uuid.UUID, points int64, reference string) (*loyalty.Redemption, error) {
	return s.redeem(ctx, userID, points, reference)
}

func (s stubLoyalty) GetAccount(ctx context.Context, userID uuid.UUID) (*loyalty.Account, error) {
	return s.account(ctx, userID)
}

func asUser(r *http.Request, userID uuid.UUID, role enums.Role) *http.Request {
	ctx := middleware.WithUserID(r.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return r.WithContext(ctx)
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func decodeError(t *testing.T, body []byte) (string, string) {
	t.Helper()
	var payload struct {
		Error struct {
			Code   string `json:"code"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return payload.Error.Code, payload.Error.Reason
}

const guestCheckoutBody = `{
	"items":[{"productId":"6f1c2d4e-0000-4000-8000-000000000001","quantity":2,"unitPrice":4500}],
	"subtotal":9000,"discountAmount":0,"total":9000,
	"pickupDate":"2025-03-12","pickupTime":"10:30","paymentMethod":"EFECTIVO",
	"guest":{"firstName":"Ana","lastName":"Rojas","email":"ana@example.com","phone":"+56911112222"}
}`

func TestCheckoutGuestCommit(t *testing.T) {
	var captured checkoutsvc.CommitInput
	svc := stubCheckout{commit: func(_ context.Context, input checkoutsvc.CommitInput) (*checkoutsvc.CommitResult, error) {
		captured = input
		return &checkoutsvc.CommitResult{
			Order: models.Order{ID: uuid.New(), OrderNumber: "PP250310001", Status: enums.OrderStatusPending, Total: 9000},
			SideEffects: checkoutsvc.SideEffects{
				ReservationConfirmed: true,
				NotificationSent:     true,
				Notification:         notifications.Result{WhatsApp: errors.New("provider down")},
			},
		}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(guestCheckoutBody))
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if captured.UserID != nil || captured.Guest == nil || captured.Guest.Email != "ana@example.com" {
		t.Fatalf("expected guest input, got %+v", captured)
	}
	if len(captured.Items) != 1 || captured.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items %+v", captured.Items)
	}
	var body struct {
		Data checkoutResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Order.OrderNumber != "PP250310001" {
		t.Fatalf("unexpected order %+v", body.Data.Order)
	}
	if body.Data.SideEffects == nil || body.Data.SideEffects.Notifications["whatsapp"] != "failed" || body.Data.SideEffects.Notifications["email"] != "sent" {
		t.Fatalf("unexpected side effects %+v", body.Data.SideEffects)
	}
}

func TestCheckoutRejectsOversizedQuantityAtTheEdge(t *testing.T) {
	called := false
	svc := stubCheckout{commit: func(context.Context, checkoutsvc.CommitInput) (*checkoutsvc.CommitResult, error) {
		called = true
		return nil, errors.New("unexpected commit")
	}}
	body := strings.Replace(guestCheckoutBody, `"quantity":2`, `"quantity":4611686018427387904`, 1)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", resp.Code, resp.Body.String())
	}
	if called {
		t.Fatal("commit must not run for an oversized quantity")
	}
}

func TestCheckoutSignedInCustomerIgnoresGuestBlock(t *testing.T) {
	userID := uuid.New()
	var captured checkoutsvc.CommitInput
	svc := stubCheckout{commit: func(_ context.Context, input checkoutsvc.CommitInput) (*checkoutsvc.CommitResult, error) {
		captured = input
		return &checkoutsvc.CommitResult{Order: models.Order{ID: uuid.New(), Status: enums.OrderStatusDraft}}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(guestCheckoutBody))
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, asUser(req, userID, enums.RoleCustomer))

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	if captured.UserID == nil || *captured.UserID != userID || captured.Guest != nil {
		t.Fatalf("expected user input, got %+v", captured)
	}
	if strings.Contains(resp.Body.String(), "sideEffects") {
		t.Fatalf("drafts report no side effects: %s", resp.Body.String())
	}
}

func TestCheckoutSurfacesReason(t *testing.T) {
	svc := stubCheckout{commit: func(context.Context, checkoutsvc.CommitInput) (*checkoutsvc.CommitResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "not enough stock").WithReason(pkgerrors.ReasonInsufficientStock)
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(guestCheckoutBody))
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code, reason := decodeError(t, resp.Body.Bytes()); code != string(pkgerrors.CodeConflict) || reason != string(pkgerrors.ReasonInsufficientStock) {
		t.Fatalf("unexpected error %s/%s", code, reason)
	}
}

func TestCheckoutRejectsUnknownFields(t *testing.T) {
	svc := stubCheckout{commit: func(context.Context, checkoutsvc.CommitInput) (*checkoutsvc.CommitResult, error) {
		t.Fatal("service should not be called")
		return nil, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"cartId":"x"}`))
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrderByNumberPassesGuestEmail(t *testing.T) {
	var gotNumber, gotEmail string
	svc := stubOrders{byNumber: func(_ context.Context, number string, actor orders.Actor, email string) (*models.Order, error) {
		gotNumber, gotEmail = number, email
		if actor.UserID != uuid.Nil {
			t.Fatalf("expected anonymous actor")
		}
		return &models.Order{ID: uuid.New(), OrderNumber: number, Status: enums.OrderStatusPending}, nil
	}}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/by-number/pp250310001?email=ana@example.com", nil)
	req = withURLParam(req, "number", "pp250310001")
	resp := httptest.NewRecorder()
	OrderByNumber(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if gotNumber != "PP250310001" || gotEmail != "ana@example.com" {
		t.Fatalf("unexpected lookup %q %q", gotNumber, gotEmail)
	}
}

func TestOrderDetailRejectsBadID(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/orders/nope", nil), "orderId", "nope")
	resp := httptest.NewRecorder()
	OrderDetail(stubOrders{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestOrdersListRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	OrdersList(stubOrders{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestOrderCancelForwardsReasonAndActor(t *testing.T) {
	userID, orderID := uuid.New(), uuid.New()
	var gotReason string
	var gotActor orders.Actor
	svc := stubOrders{cancel: func(_ context.Context, id uuid.UUID, reason string, actor orders.Actor) (*models.Order, error) {
		if id != orderID {
			t.Fatalf("unexpected order %s", id)
		}
		gotReason, gotActor = reason, actor
		return &models.Order{ID: id, Status: enums.OrderStatusCancelled}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/orders/x/cancel", strings.NewReader(`{"reason":"  customer called  "}`))
	req = withURLParam(asUser(req, userID, enums.RoleAdmin), "orderId", orderID.String())
	resp := httptest.NewRecorder()
	OrderCancel(svc, nil).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if gotReason != "customer called" || gotActor.UserID != userID || gotActor.Role != enums.RoleAdmin {
		t.Fatalf("unexpected call reason=%q actor=%+v", gotReason, gotActor)
	}
}

func TestLoyaltyRedeem(t *testing.T) {
	userID := uuid.New()
	svc := stubLoyalty{redeem: func(_ context.Context, id uuid.UUID, points int64, _ string) (*loyalty.Redemption, error) {
		if id != userID || points != 30 {
			t.Fatalf("unexpected redeem %s %d", id, points)
		}
		return &loyalty.Redemption{
			Points:         30,
			DiscountAmount: 3000,
			Account:        models.LoyaltyPoints{UserID: id, AvailablePoints: 20},
			Transaction:    models.PointTransaction{ID: uuid.New(), Points: -30, Type: enums.PointsRedeemedDiscount},
		}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/loyalty/redeem", strings.NewReader(`{"points":30}`))
	resp := httptest.NewRecorder()
	LoyaltyRedeem(svc, nil).ServeHTTP(resp, asUser(req, userID, enums.RoleCustomer))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	var body struct {
		Data redeemResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.DiscountAmount != 3000 || body.Data.Balance != 20 || body.Data.Transaction.Points != -30 {
		t.Fatalf("unexpected response %+v", body.Data)
	}
}

func TestLoyaltyRedeemInsufficientPoints(t *testing.T) {
	svc := stubLoyalty{redeem: func(context.Context, uuid.UUID, int64, string) (*loyalty.Redemption, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "not enough points").WithReason(pkgerrors.ReasonInsufficientPoints)
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/loyalty/redeem", strings.NewReader(`{"points":50}`))
	resp := httptest.NewRecorder()
	LoyaltyRedeem(svc, nil).ServeHTTP(resp, asUser(req, uuid.New(), enums.RoleCustomer))

	if _, reason := decodeError(t, resp.Body.Bytes()); reason != string(pkgerrors.ReasonInsufficientPoints) {
		t.Fatalf("unexpected reason %q", reason)
	}
}

func TestLoyaltyAccountRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	LoyaltyAccount(stubLoyalty{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/loyalty", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
