package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/payouts"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type stubCheckout struct {
	checkout func(ctx context.Context, userID uuid.UUID) (*checkout.Result, error)
}

func (s *stubCheckout) Checkout(ctx context.Context, userID uuid.UUID) (*checkout.Result, error) {
	return s.checkout(ctx, userID)
}

type stubPayments struct {
	confirm func(ctx context.Context, input payments.ConfirmInput, actorID *uuid.UUID) (*payments.Confirmation, error)
}

func (s *stubPayments) Confirm(ctx context.Context, input payments.ConfirmInput, actorID *uuid.UUID) (*payments.Confirmation, error) {
	return s.confirm(ctx, input, actorID)
}

type stubFulfillment struct {
	ship    func(ctx context.Context, supplierID, orderID uuid.UUID, input fulfillment.ShipInput) (*internalorders.OrderView, error)
	deliver func(ctx context.Context, supplierID, orderID uuid.UUID) (*fulfillment.DeliveryResult, error)
}

func (s *stubFulfillment) Ship(ctx context.Context, supplierID, orderID uuid.UUID, input fulfillment.ShipInput) (*internalorders.OrderView, error) {
	return s.ship(ctx, supplierID, orderID, input)
}

func (s *stubFulfillment) Deliver(ctx context.Context, supplierID, orderID uuid.UUID) (*fulfillment.DeliveryResult, error) {
	return s.deliver(ctx, supplierID, orderID)
}

type stubOrders struct {
	internalorders.Service
	listSupplier func(ctx context.Context, supplierID uuid.UUID, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error)
}

func (s *stubOrders) ListForSupplier(ctx context.Context, supplierID uuid.UUID, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error) {
	return s.listSupplier(ctx, supplierID, filters, params)
}

type stubReturns struct {
	returns.Service
	verify func(ctx context.Context, supplierID, returnID uuid.UUID, input returns.VerifyInput) (*returns.ReturnView, error)
	list   func(ctx context.Context, filters returns.ListFilters, params pagination.Params) (*returns.ReturnList, error)
}

func (s *stubReturns) Verify(ctx context.Context, supplierID, returnID uuid.UUID, input returns.VerifyInput) (*returns.ReturnView, error) {
	return s.verify(ctx, supplierID, returnID, input)
}

func (s *stubReturns) List(ctx context.Context, filters returns.ListFilters, params pagination.Params) (*returns.ReturnList, error) {
	return s.list(ctx, filters, params)
}

type stubPayouts struct {
	issue        func(ctx context.Context, adminID uuid.UUID, input payouts.IssueInput) (*payouts.PayoutView, error)
	updateStatus func(ctx context.Context, adminID, payoutID uuid.UUID, status string) (*payouts.PayoutView, error)
	list         func(ctx context.Context, filters payouts.ListFilters, params pagination.Params) (*payouts.PayoutList, error)
	balance      func(ctx context.Context, supplierID uuid.UUID) (*ledger.Balance, error)
	history      func(ctx context.Context, supplierID uuid.UUID) ([]models.SupplierLedgerEvent, error)
	approve      func(ctx context.Context, adminID, supplierID uuid.UUID) (*ledger.Balance, error)
}

func (s *stubPayouts) Issue(ctx context.Context, adminID uuid.UUID, input payouts.IssueInput) (*payouts.PayoutView, error) {
	return s.issue(ctx, adminID, input)
}

func (s *stubPayouts) UpdateStatus(ctx context.Context, adminID, payoutID uuid.UUID, status string) (*payouts.PayoutView, error) {
	return s.updateStatus(ctx, adminID, payoutID, status)
}

func (s *stubPayouts) List(ctx context.Context, filters payouts.ListFilters, params pagination.Params) (*payouts.PayoutList, error) {
	return s.list(ctx, filters, params)
}

func (s *stubPayouts) Balance(ctx context.Context, supplierID uuid.UUID) (*ledger.Balance, error) {
	return s.balance(ctx, supplierID)
}

func (s *stubPayouts) History(ctx context.Context, supplierID uuid.UUID) ([]models.SupplierLedgerEvent, error) {
	return s.history(ctx, supplierID)
}

func (s *stubPayouts) ApproveSupplier(ctx context.Context, adminID, supplierID uuid.UUID) (*ledger.Balance, error) {
	return s.approve(ctx, adminID, supplierID)
}

func asUser(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), middleware.Actor{UserID: userID, Role: enums.RoleUser}))
}

func asSupplier(req *http.Request, supplierID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), middleware.Actor{UserID: uuid.New(), Role: enums.RoleSupplier, SupplierID: &supplierID}))
}

func asAdmin(req *http.Request, adminID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithActor(req.Context(), middleware.Actor{UserID: adminID, Role: enums.RoleAdmin}))
}

func withParam(req *http.Request, key, value string) *http.Request {
	rc := chi.RouteContext(req.Context())
	if rc == nil {
		rc = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}
	rc.URLParams.Add(key, value)
	return req
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	envelope := struct {
		Data any `json:"data"`
	}{Data: dest}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func decodeErrorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return payload.Error.Code
}
