package controllers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/payouts"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}

	resp := httptest.NewRecorder()
	ok := map[string]Pinger{"db": pingFunc(func(context.Context) error { return nil })}
	HealthReady(cfg, nil, ok).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("X-Bazaar-Env") != "test" {
		t.Fatalf("expected env header")
	}

	resp = httptest.NewRecorder()
	down := map[string]Pinger{"redis": pingFunc(func(context.Context) error { return errors.New("refused") })}
	HealthReady(cfg, nil, down).ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 got %d", resp.Code)
	}
}

func TestCheckoutCreated(t *testing.T) {
	userID := uuid.New()
	svc := &stubCheckout{
		checkout: func(ctx context.Context, gotUser uuid.UUID) (*checkout.Result, error) {
			if gotUser != userID {
				t.Fatalf("unexpected user %s", gotUser)
			}
			return &checkout.Result{OrderID: uuid.New(), GatewayOrderRef: "order_1", AmountCents: 7000, Currency: "INR"}, nil
		},
	}

	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil), userID))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
	var result checkout.Result
	decodeData(t, resp, &result)
	if result.GatewayOrderRef != "order_1" || result.AmountCents != 7000 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCheckoutMapsEmptyCart(t *testing.T) {
	svc := &stubCheckout{
		checkout: func(ctx context.Context, userID uuid.UUID) (*checkout.Result, error) {
			return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
		},
	}
	resp := httptest.NewRecorder()
	Checkout(svc, nil).ServeHTTP(resp, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil), uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeEmptyCart) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestCheckoutRequiresUser(t *testing.T) {
	resp := httptest.NewRecorder()
	Checkout(&stubCheckout{}, nil).ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestVerifyPaymentPassesActor(t *testing.T) {
	userID := uuid.New()
	svc := &stubPayments{
		confirm: func(ctx context.Context, input payments.ConfirmInput, actorID *uuid.UUID) (*payments.Confirmation, error) {
			if actorID == nil || *actorID != userID {
				t.Fatalf("expected actor %s", userID)
			}
			return &payments.Confirmation{Status: enums.OrderStatusPaid}, nil
		},
	}

	body := `{"gatewayOrderRef":"order_1","gatewayPaymentRef":"pay_1","signature":"abc"}`
	resp := httptest.NewRecorder()
	VerifyPayment(svc, nil).ServeHTTP(resp, asUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders/verify", strings.NewReader(body)), userID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestVerifyPaymentRequiresFields(t *testing.T) {
	resp := httptest.NewRecorder()
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/orders/verify", strings.NewReader(`{"gatewayOrderRef":"order_1"}`)), uuid.New())
	VerifyPayment(&stubPayments{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestShipOrderRequiresTracking(t *testing.T) {
	orderID := uuid.New()
	req := asSupplier(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"carrier":"DHL"}`)), uuid.New())
	req = withParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	ShipOrder(&stubFulfillment{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestShipOrderPassesSupplier(t *testing.T) {
	supplierID := uuid.New()
	orderID := uuid.New()
	svc := &stubFulfillment{
		ship: func(ctx context.Context, gotSupplier, gotOrder uuid.UUID, input fulfillment.ShipInput) (*internalorders.OrderView, error) {
			if gotSupplier != supplierID || gotOrder != orderID {
				t.Fatalf("unexpected ids")
			}
			if input.TrackingNumber != "TRK1" || input.Carrier != "DHL" {
				t.Fatalf("unexpected input %+v", input)
			}
			return &internalorders.OrderView{ID: orderID, Status: enums.OrderStatusShipped}, nil
		},
	}

	req := asSupplier(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"trackingNumber":" TRK1 ","carrier":"DHL"}`)), supplierID)
	req = withParam(req, "orderId", orderID.String())
	resp := httptest.NewRecorder()
	ShipOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestShipOrderRejectsPlainUser(t *testing.T) {
	req := asUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"trackingNumber":"T","carrier":"C"}`)), uuid.New())
	req = withParam(req, "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	ShipOrder(&stubFulfillment{}, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestDeliverOrderMapsInvalidTransition(t *testing.T) {
	svc := &stubFulfillment{
		deliver: func(ctx context.Context, supplierID, orderID uuid.UUID) (*fulfillment.DeliveryResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidTransition, "order already delivered")
		},
	}
	req := withParam(asSupplier(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()), "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	DeliverOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := decodeErrorCode(t, resp); code != string(pkgerrors.CodeInvalidTransition) {
		t.Fatalf("unexpected code %s", code)
	}
}

func TestDeliverOrderReturnsAccrual(t *testing.T) {
	svc := &stubFulfillment{
		deliver: func(ctx context.Context, supplierID, orderID uuid.UUID) (*fulfillment.DeliveryResult, error) {
			return &fulfillment.DeliveryResult{Order: internalorders.OrderView{ID: orderID}, AccruedCents: 1800}, nil
		},
	}
	req := withParam(asSupplier(httptest.NewRequest(http.MethodPost, "/", nil), uuid.New()), "orderId", uuid.NewString())
	resp := httptest.NewRecorder()
	DeliverOrder(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var result fulfillment.DeliveryResult
	decodeData(t, resp, &result)
	if result.AccruedCents != 1800 {
		t.Fatalf("unexpected accrual %d", result.AccruedCents)
	}
}

func TestSupplierOrdersUsesCallerSupplier(t *testing.T) {
	supplierID := uuid.New()
	svc := &stubOrders{
		listSupplier: func(ctx context.Context, gotSupplier uuid.UUID, filters internalorders.ListFilters, params pagination.Params) (*internalorders.OrderList, error) {
			if gotSupplier != supplierID {
				t.Fatalf("unexpected supplier %s", gotSupplier)
			}
			if filters.Status == nil || *filters.Status != enums.OrderStatusShipped {
				t.Fatalf("expected shipped filter")
			}
			return &internalorders.OrderList{}, nil
		},
	}
	req := asSupplier(httptest.NewRequest(http.MethodGet, "/api/v1/supplier/orders?status=SHIPPED", nil), supplierID)
	resp := httptest.NewRecorder()
	SupplierOrders(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestVerifyReturnMapsAlreadyVerified(t *testing.T) {
	returnID := uuid.New()
	svc := &stubReturns{
		verify: func(ctx context.Context, supplierID, gotReturn uuid.UUID, input returns.VerifyInput) (*returns.ReturnView, error) {
			if gotReturn != returnID {
				t.Fatalf("unexpected return id")
			}
			return nil, pkgerrors.New(pkgerrors.CodeAlreadyVerified, "return already verified")
		},
	}
	req := withParam(asSupplier(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"isFaulty":true}`)), uuid.New()), "returnId", returnID.String())
	resp := httptest.NewRecorder()
	VerifyReturn(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
}

func TestVerifyReturnPassesSupplierDecision(t *testing.T) {
	var got *bool
	svc := &stubReturns{
		verify: func(ctx context.Context, supplierID, returnID uuid.UUID, input returns.VerifyInput) (*returns.ReturnView, error) {
			got = input.IsFaulty
			return &returns.ReturnView{ID: returnID, Status: enums.ReturnStatusRejected}, nil
		},
	}
	req := withParam(asSupplier(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"isFaulty":false}`)), uuid.New()), "returnId", uuid.NewString())
	resp := httptest.NewRecorder()
	VerifyReturn(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", resp.Code, resp.Body.String())
	}
	if got == nil || *got {
		t.Fatalf("expected explicit false decision, got %v", got)
	}
}

func TestVerifyReturnRequiresDecision(t *testing.T) {
	svc := &stubReturns{
		verify: func(ctx context.Context, supplierID, returnID uuid.UUID, input returns.VerifyInput) (*returns.ReturnView, error) {
			t.Fatalf("service must not be called without a decision")
			return nil, nil
		},
	}
	for _, body := range []string{``, `{}`, `{"isFaulty":"yes"}`} {
		req := withParam(asSupplier(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.New()), "returnId", uuid.NewString())
		resp := httptest.NewRecorder()
		VerifyReturn(svc, nil).ServeHTTP(resp, req)
		if resp.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400 got %d", body, resp.Code)
		}
	}
}

func TestAdminReturnsStatusFilter(t *testing.T) {
	svc := &stubReturns{
		list: func(ctx context.Context, filters returns.ListFilters, params pagination.Params) (*returns.ReturnList, error) {
			if filters.Status == nil || *filters.Status != enums.ReturnStatusApproved {
				t.Fatalf("expected approved filter")
			}
			return &returns.ReturnList{}, nil
		},
	}
	resp := httptest.NewRecorder()
	AdminReturns(svc, nil).ServeHTTP(resp, asAdmin(httptest.NewRequest(http.MethodGet, "/?status=approved", nil), uuid.New()))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	AdminReturns(svc, nil).ServeHTTP(resp, asAdmin(httptest.NewRequest(http.MethodGet, "/?status=lost", nil), uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIssuePayout(t *testing.T) {
	adminID := uuid.New()
	supplierID := uuid.New()
	svc := &stubPayouts{
		issue: func(ctx context.Context, gotAdmin uuid.UUID, input payouts.IssueInput) (*payouts.PayoutView, error) {
			if gotAdmin != adminID {
				t.Fatalf("unexpected admin")
			}
			if input.SupplierID != supplierID || input.AmountCents != 3000 {
				t.Fatalf("unexpected input %+v", input)
			}
			return &payouts.PayoutView{SupplierID: supplierID, AmountCents: 3000, Status: enums.PayoutStatusPending}, nil
		},
	}
	body := `{"supplierId":"` + supplierID.String() + `","amountCents":3000}`
	resp := httptest.NewRecorder()
	IssuePayout(svc, nil).ServeHTTP(resp, asAdmin(httptest.NewRequest(http.MethodPost, "/api/v1/admin/payouts", strings.NewReader(body)), adminID))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d", resp.Code)
	}
}

func TestIssuePayoutRejectsNonPositiveAmount(t *testing.T) {
	body := `{"supplierId":"` + uuid.NewString() + `","amountCents":0}`
	resp := httptest.NewRecorder()
	IssuePayout(&stubPayouts{}, nil).ServeHTTP(resp, asAdmin(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestIssuePayoutOverdrawIsValidation(t *testing.T) {
	svc := &stubPayouts{
		issue: func(ctx context.Context, adminID uuid.UUID, input payouts.IssueInput) (*payouts.PayoutView, error) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount exceeds pending payout")
		},
	}
	body := `{"supplierId":"` + uuid.NewString() + `","amountCents":999999}`
	resp := httptest.NewRecorder()
	IssuePayout(svc, nil).ServeHTTP(resp, asAdmin(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestUpdatePayoutStatus(t *testing.T) {
	payoutID := uuid.New()
	svc := &stubPayouts{
		updateStatus: func(ctx context.Context, adminID, gotPayout uuid.UUID, status string) (*payouts.PayoutView, error) {
			if gotPayout != payoutID || status != "COMPLETED" {
				t.Fatalf("unexpected update %s %s", gotPayout, status)
			}
			return &payouts.PayoutView{ID: payoutID, Status: enums.PayoutStatusCompleted}, nil
		},
	}
	req := asAdmin(httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"COMPLETED"}`)), uuid.New())
	req = withParam(req, "payoutId", payoutID.String())
	resp := httptest.NewRecorder()
	UpdatePayoutStatus(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminPayoutsFilters(t *testing.T) {
	supplierID := uuid.New()
	svc := &stubPayouts{
		list: func(ctx context.Context, filters payouts.ListFilters, params pagination.Params) (*payouts.PayoutList, error) {
			if filters.SupplierID == nil || *filters.SupplierID != supplierID {
				t.Fatalf("expected supplier filter")
			}
			if filters.Status == nil || *filters.Status != enums.PayoutStatusFailed {
				t.Fatalf("expected failed filter")
			}
			return &payouts.PayoutList{}, nil
		},
	}
	req := asAdmin(httptest.NewRequest(http.MethodGet, "/?supplierId="+supplierID.String()+"&status=failed", nil), uuid.New())
	resp := httptest.NewRecorder()
	AdminPayouts(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestSupplierBalanceAndLedger(t *testing.T) {
	supplierID := uuid.New()
	svc := &stubPayouts{
		balance: func(ctx context.Context, gotSupplier uuid.UUID) (*ledger.Balance, error) {
			return &ledger.Balance{SupplierID: gotSupplier, PendingPayoutCents: 5000}, nil
		},
		history: func(ctx context.Context, gotSupplier uuid.UUID) ([]models.SupplierLedgerEvent, error) {
			return []models.SupplierLedgerEvent{{SupplierID: gotSupplier, Type: enums.LedgerEventPayoutAccrued, PayoutDeltaCents: 5000}}, nil
		},
	}

	resp := httptest.NewRecorder()
	SupplierBalance(svc, nil).ServeHTTP(resp, asSupplier(httptest.NewRequest(http.MethodGet, "/", nil), supplierID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var balance ledger.Balance
	decodeData(t, resp, &balance)
	if balance.SupplierID != supplierID || balance.PendingPayoutCents != 5000 {
		t.Fatalf("unexpected balance %+v", balance)
	}

	resp = httptest.NewRecorder()
	SupplierLedger(svc, nil).ServeHTTP(resp, asSupplier(httptest.NewRequest(http.MethodGet, "/", nil), supplierID))
	var events []ledgerEventResponse
	decodeData(t, resp, &events)
	if len(events) != 1 || events[0].PayoutDeltaCents != 5000 {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestAdminSupplierBalanceNotFound(t *testing.T) {
	svc := &stubPayouts{
		balance: func(ctx context.Context, supplierID uuid.UUID) (*ledger.Balance, error) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
		},
	}
	req := withParam(asAdmin(httptest.NewRequest(http.MethodGet, "/", nil), uuid.New()), "supplierId", uuid.NewString())
	resp := httptest.NewRecorder()
	AdminSupplierBalance(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestApproveSupplierPassesPathAndActor(t *testing.T) {
	admin := uuid.New()
	supplierID := uuid.New()
	svc := &stubPayouts{
		approve: func(ctx context.Context, adminID, id uuid.UUID) (*ledger.Balance, error) {
			if adminID != admin || id != supplierID {
				t.Fatalf("unexpected ids admin=%s supplier=%s", adminID, id)
			}
			return &ledger.Balance{SupplierID: id, IsApproved: true}, nil
		},
	}
	req := withParam(asAdmin(httptest.NewRequest(http.MethodPatch, "/", nil), admin), "supplierId", supplierID.String())
	resp := httptest.NewRecorder()
	ApproveSupplier(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var balance ledger.Balance
	decodeData(t, resp, &balance)
	if !balance.IsApproved || balance.SupplierID != supplierID {
		t.Fatalf("unexpected balance %+v", balance)
	}
}

func TestApproveSupplierRejectsBadID(t *testing.T) {
	svc := &stubPayouts{
		approve: func(ctx context.Context, adminID, id uuid.UUID) (*ledger.Balance, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	req := withParam(asAdmin(httptest.NewRequest(http.MethodPatch, "/", nil), uuid.New()), "supplierId", "not-a-uuid")
	resp := httptest.NewRecorder()
	ApproveSupplier(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
