package fulfillment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
)

func newService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)
	svc, err := NewService(dbpkg.Wrap(conn), orders.NewRepository(conn), ledgerSvc, outbox.NewService(outbox.NewRepository(conn), nil), nil, nil)
	require.NoError(t, err)
	return svc
}

func TestShipStampsShipment(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)

	supplier := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 1000, 10)
	order := dbtest.Order(t, conn, uuid.New(), enums.OrderStatusPaid, dbtest.Item(p, 1, "10", 100))

	view, err := svc.Ship(context.Background(), supplier.ID, order.ID, ShipInput{TrackingNumber: "TRK1", Carrier: "BlueDart"})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusShipped, view.Status)

	reloaded := dbtest.ReloadOrder(t, conn, order.ID)
	require.NotNil(t, reloaded.TrackingNumber)
	assert.Equal(t, "TRK1", *reloaded.TrackingNumber)
	require.NotNil(t, reloaded.Carrier)
	assert.Equal(t, "BlueDart", *reloaded.Carrier)
	assert.NotNil(t, reloaded.ShippedAt)
}

func TestShipGuards(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)
	ctx := context.Background()

	supplier := dbtest.Supplier(t, conn, "10")
	other := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 1000, 10)
	pending := dbtest.Order(t, conn, uuid.New(), enums.OrderStatusPending, dbtest.Item(p, 1, "10", 100))
	paid := dbtest.Order(t, conn, uuid.New(), enums.OrderStatusPaid, dbtest.Item(p, 1, "10", 100))
	input := ShipInput{TrackingNumber: "TRK", Carrier: "DHL"}

	_, err := svc.Ship(ctx, supplier.ID, paid.ID, ShipInput{Carrier: "DHL"})
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	_, err = svc.Ship(ctx, other.ID, paid.ID, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotEligible))

	_, err = svc.Ship(ctx, supplier.ID, pending.ID, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, enums.OrderStatusPending, dbtest.ReloadOrder(t, conn, pending.ID).Status)

	_, err = svc.Ship(ctx, supplier.ID, uuid.New(), input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = svc.Ship(ctx, supplier.ID, paid.ID, input)
	require.NoError(t, err)
	_, err = svc.Ship(ctx, supplier.ID, paid.ID, input)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition), "shipping twice is rejected")
}

func TestDeliverAccruesNetOnce(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)
	ctx := context.Background()

	supplier := dbtest.Supplier(t, conn, "10")
	p1 := dbtest.Product(t, conn, supplier.ID, 1000, 10)
	p2 := dbtest.Product(t, conn, supplier.ID, 500, 10)
	order := dbtest.Order(t, conn, uuid.New(), enums.OrderStatusShipped,
		dbtest.Item(p1, 2, "10", 200),
		dbtest.Item(p2, 1, "10", 50),
	)

	res, err := svc.Deliver(ctx, supplier.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2250), res.AccruedCents)
	assert.Equal(t, enums.OrderStatusDelivered, res.Order.Status)
	assert.Equal(t, int64(2250), dbtest.ReloadSupplier(t, conn, supplier.ID).PendingPayoutCents)
	assert.NotNil(t, dbtest.ReloadOrder(t, conn, order.ID).DeliveredAt)

	_, err = svc.Deliver(ctx, supplier.ID, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))
	assert.Equal(t, int64(2250), dbtest.ReloadSupplier(t, conn, supplier.ID).PendingPayoutCents)
}

func TestDeliverMultiSupplierOrder(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)
	ctx := context.Background()

	s1 := dbtest.Supplier(t, conn, "10")
	s2 := dbtest.Supplier(t, conn, "20")
	p1 := dbtest.Product(t, conn, s1.ID, 1000, 10)
	p2 := dbtest.Product(t, conn, s2.ID, 3000, 10)
	order := dbtest.Order(t, conn, uuid.New(), enums.OrderStatusShipped,
		dbtest.Item(p1, 1, "10", 100),
		dbtest.Item(p2, 1, "20", 600),
	)

	first, err := svc.Deliver(ctx, s1.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(900), first.AccruedCents)

	second, err := svc.Deliver(ctx, s2.ID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2400), second.AccruedCents)
	assert.Equal(t, enums.OrderStatusDelivered, second.Order.Status)

	assert.Equal(t, int64(900), dbtest.ReloadSupplier(t, conn, s1.ID).PendingPayoutCents)
	assert.Equal(t, int64(2400), dbtest.ReloadSupplier(t, conn, s2.ID).PendingPayoutCents)

	_, err = svc.Deliver(ctx, s2.ID, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))

	var delivered int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderDelivered).Count(&delivered).Error)
	assert.Equal(t, int64(2), delivered)
}

func TestDeliverRequiresShipment(t *testing.T) {
	conn := dbtest.Open(t)
	svc := newService(t, conn)

	supplier := dbtest.Supplier(t, conn, "10")
	p := dbtest.Product(t, conn, supplier.ID, 1000, 10)
	order := dbtest.Order(t, conn, uuid.New(), enums.OrderStatusPaid, dbtest.Item(p, 1, "10", 100))

	_, err := svc.Deliver(context.Background(), supplier.ID, order.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeInvalidTransition))
	assert.Zero(t, dbtest.ReloadSupplier(t, conn, supplier.ID).PendingPayoutCents)
}

func TestNetFor(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	items := []models.OrderItem{
		{SupplierID: a, UnitPriceCents: 1000, Quantity: 2, CommissionCents: 200},
		{SupplierID: b, UnitPriceCents: 700, Quantity: 1, CommissionCents: 70},
		{SupplierID: a, UnitPriceCents: 100, Quantity: 1, CommissionCents: 10},
	}
	assert.Equal(t, int64(1890), NetFor(items, a))
	assert.Equal(t, int64(630), NetFor(items, b))
	assert.Zero(t, NetFor(items, uuid.New()))
}
