package returns

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

var defaultOptions = Options{
	EligibleStatus:      enums.OrderStatusPaid,
	FaultyChargeCents:   2000,
	StandardChargeCents: 1000,
}

func decision(faulty bool) VerifyInput {
	return VerifyInput{IsFaulty: &faulty}
}

func newService(t *testing.T, conn *gorm.DB, opts Options) Service {
	t.Helper()
	svc, err := NewService(dbpkg.Wrap(conn), NewRepository(conn), orders.NewRepository(conn), outbox.NewService(outbox.NewRepository(conn), nil), opts, nil)
	require.NoError(t, err)
	return svc
}

func TestRequestChargesByReason(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, defaultOptions)
	ctx := context.Background()
	user := uuid.New()

	supplier := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 1500, 5)

	cases := []struct {
		reason string
		faulty bool
		charge int64
	}{
		{reason: "FAULTY_PRODUCT", faulty: true, charge: 2000},
		{reason: "damaged_product", faulty: true, charge: 2000},
		{reason: "CHANGED_MIND", faulty: false, charge: 1000},
		{reason: "WRONG_SIZE", faulty: false, charge: 1000},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			order := dbtest.Order(t, conn, user, enums.OrderStatusPaid, dbtest.Item(p, 1, "10", 150))
			view, err := svc.Request(ctx, user, order.ID, RequestInput{Reason: tc.reason})
			require.NoError(t, err)
			assert.Equal(t, tc.faulty, view.IsFaulty)
			assert.Equal(t, tc.charge, view.ReturnChargeCents)
			assert.Equal(t, enums.ReturnStatusPending, view.Status)
		})
	}

	var events int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventReturnRequested).Count(&events).Error)
	assert.Equal(t, int64(len(cases)), events)
}

func TestRequestGuards(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, defaultOptions)
	ctx := context.Background()
	user := uuid.New()

	supplier := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 1500, 5)
	paid := dbtest.Order(t, conn, user, enums.OrderStatusPaid, dbtest.Item(p, 1, "10", 150))
	delivered := dbtest.Order(t, conn, user, enums.OrderStatusDelivered, dbtest.Item(p, 1, "10", 150))

	_, err := svc.Request(ctx, user, paid.ID, RequestInput{Reason: "NOT_A_REASON"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Request(ctx, uuid.New(), paid.ID, RequestInput{Reason: "OTHER"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	_, err = svc.Request(ctx, user, delivered.ID, RequestInput{Reason: "OTHER"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotEligible))

	_, err = svc.Request(ctx, user, uuid.New(), RequestInput{Reason: "OTHER"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.Request(ctx, user, paid.ID, RequestInput{Reason: "OTHER"})
	require.NoError(t, err)
	_, err = svc.Request(ctx, user, paid.ID, RequestInput{Reason: "FAULTY_PRODUCT"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeDuplicate))
}

func TestRequestHonoursConfiguredStatus(t *testing.T) {
	conn := dbtest.Open(t)
	opts := defaultOptions
	opts.EligibleStatus = enums.OrderStatusDelivered
	svc := newService(t, conn, opts)
	ctx := context.Background()
	user := uuid.New()

	supplier := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 1500, 5)
	paid := dbtest.Order(t, conn, user, enums.OrderStatusPaid, dbtest.Item(p, 1, "10", 150))
	delivered := dbtest.Order(t, conn, user, enums.OrderStatusDelivered, dbtest.Item(p, 1, "10", 150))

	_, err := svc.Request(ctx, user, paid.ID, RequestInput{Reason: "OTHER"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotEligible))
	_, err = svc.Request(ctx, user, delivered.ID, RequestInput{Reason: "OTHER"})
	assert.NoError(t, err)
}

func TestVerifyFaultyApprovesFullPrice(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, defaultOptions)
	ctx := context.Background()
	user := uuid.New()

	supplier := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 1500, 5)
	order := dbtest.Order(t, conn, user, enums.OrderStatusPaid, dbtest.Item(p, 2, "10", 300))
	requested, err := svc.Request(ctx, user, order.ID, RequestInput{Reason: "FAULTY_PRODUCT"})
	require.NoError(t, err)

	view, err := svc.Verify(ctx, supplier.ID, requested.ID, decision(true))
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusApproved, view.Status)
	require.NotNil(t, view.RefundAmountCents)
	assert.Equal(t, int64(1500), *view.RefundAmountCents)
	require.NotNil(t, view.FaultyVerified)
	assert.True(t, *view.FaultyVerified)

	_, err = svc.Verify(ctx, supplier.ID, requested.ID, decision(false))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeAlreadyVerified))

	var stored models.ReturnRequest
	require.NoError(t, conn.First(&stored, "id = ?", requested.ID).Error)
	require.NotNil(t, stored.SupplierID)
	assert.Equal(t, supplier.ID, *stored.SupplierID)
	assert.NotNil(t, stored.VerifiedAt)
}

func TestVerifyNonFaultyDeductsCharge(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, defaultOptions)
	ctx := context.Background()
	user := uuid.New()

	supplier := dbtest.Supplier(t, conn, "10")
	other := dbtest.Supplier(t, conn, "10")
	cheap := dbtest.Product(t, conn, supplier.ID, 600, 5)
	foreign := dbtest.Product(t, conn, other.ID, 9000, 5)

	order := dbtest.Order(t, conn, user, enums.OrderStatusPaid, dbtest.Item(cheap, 1, "10", 60), dbtest.Item(foreign, 1, "10", 900))
	requested, err := svc.Request(ctx, user, order.ID, RequestInput{Reason: "CHANGED_MIND"})
	require.NoError(t, err)

	_, err = svc.Verify(ctx, dbtest.Supplier(t, conn, "10").ID, requested.ID, decision(false))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeForbidden))

	view, err := svc.Verify(ctx, supplier.ID, requested.ID, decision(false))
	require.NoError(t, err)
	assert.Equal(t, enums.ReturnStatusRejected, view.Status)
	require.NotNil(t, view.RefundAmountCents)
	assert.Equal(t, int64(0), *view.RefundAmountCents, "refund is clamped at zero")

	_, err = svc.Verify(ctx, supplier.ID, uuid.New(), decision(false))
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestVerifyFollowsSupplierDecisionOverClaim(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, defaultOptions)
	ctx := context.Background()
	user := uuid.New()

	supplier := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 3500, 5)

	cases := []struct {
		name   string
		reason string
		faulty bool
		status enums.ReturnStatus
		refund int64
	}{
		// faulty claim carries the 2000 charge, inspection finds nothing wrong
		{name: "claimed faulty, found fine", reason: "FAULTY_PRODUCT", faulty: false, status: enums.ReturnStatusRejected, refund: 1500},
		{name: "changed mind, found faulty", reason: "CHANGED_MIND", faulty: true, status: enums.ReturnStatusApproved, refund: 3500},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := dbtest.Order(t, conn, user, enums.OrderStatusPaid, dbtest.Item(p, 1, "10", 350))
			requested, err := svc.Request(ctx, user, order.ID, RequestInput{Reason: tc.reason})
			require.NoError(t, err)

			view, err := svc.Verify(ctx, supplier.ID, requested.ID, decision(tc.faulty))
			require.NoError(t, err)
			assert.Equal(t, tc.status, view.Status)
			require.NotNil(t, view.FaultyVerified)
			assert.Equal(t, tc.faulty, *view.FaultyVerified)
			require.NotNil(t, view.RefundAmountCents)
			assert.Equal(t, tc.refund, *view.RefundAmountCents)
		})
	}
}

func TestVerifyRequiresDecision(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, defaultOptions)
	_, err := svc.Verify(context.Background(), uuid.New(), uuid.New(), VerifyInput{})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestRefund(t *testing.T) {
	assert.Equal(t, int64(1500), Refund(1500, 2000, true))
	assert.Equal(t, int64(500), Refund(1500, 1000, false))
	assert.Equal(t, int64(0), Refund(800, 1000, false))
}

func TestListings(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn, defaultOptions)
	ctx := context.Background()
	alice := uuid.New()
	bob := uuid.New()

	s1 := dbtest.Supplier(t, conn, "10")
	s2 := dbtest.Supplier(t, conn, "10")
	p1 := dbtest.Product(t, conn, s1.ID, 1000, 5)
	p2 := dbtest.Product(t, conn, s2.ID, 1000, 5)

	o1 := dbtest.Order(t, conn, alice, enums.OrderStatusPaid, dbtest.Item(p1, 1, "10", 100))
	o2 := dbtest.Order(t, conn, bob, enums.OrderStatusPaid, dbtest.Item(p2, 1, "10", 100))
	_, err := svc.Request(ctx, alice, o1.ID, RequestInput{Reason: "OTHER"})
	require.NoError(t, err)
	r2, err := svc.Request(ctx, bob, o2.ID, RequestInput{Reason: "FAULTY_PRODUCT"})
	require.NoError(t, err)
	_, err = svc.Verify(ctx, s2.ID, r2.ID, decision(true))
	require.NoError(t, err)

	mine, err := svc.ListForUser(ctx, alice, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, mine.Items, 1)
	assert.Equal(t, o1.ID, mine.Items[0].OrderID)

	supplierView, err := svc.ListForSupplier(ctx, s2.ID, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, supplierView.Items, 1)
	assert.Equal(t, r2.ID, supplierView.Items[0].ID)

	all, err := svc.List(ctx, ListFilters{}, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	approved := enums.ReturnStatusApproved
	filtered, err := svc.List(ctx, ListFilters{Status: &approved}, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, filtered.Items, 1)
	assert.Equal(t, r2.ID, filtered.Items[0].ID)

	_, err = svc.ListForUser(ctx, alice, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))
}

func TestNewServiceValidatesOptions(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewService(dbpkg.Wrap(conn), NewRepository(conn), orders.NewRepository(conn), outbox.NewService(outbox.NewRepository(conn), nil), Options{EligibleStatus: "LOST"}, nil)
	assert.Error(t, err)
	_, err = NewService(nil, nil, nil, nil, defaultOptions, nil)
	assert.Error(t, err)
}
