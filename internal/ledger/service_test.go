package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

func newLedger(t *testing.T) (*gorm.DB, Service) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)
	return conn, svc
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil)
	require.Error(t, err)
}

func TestCreditSalesAppliesDeltasOncePerOrder(t *testing.T) {
	conn, svc := newLedger(t)
	ctx := context.Background()
	s1 := dbtest.Supplier(t, conn, "10")
	s2 := dbtest.Supplier(t, conn, "20")
	orderID := uuid.New()

	credits := []SaleCredit{
		{SupplierID: s1.ID, SalesCents: 2000, CommissionCents: 200},
		{SupplierID: s2.ID, SalesCents: 500, CommissionCents: 100},
	}
	require.NoError(t, svc.CreditSales(ctx, orderID, credits))

	got1 := dbtest.ReloadSupplier(t, conn, s1.ID)
	assert.Equal(t, int64(2000), got1.TotalSalesCents)
	assert.Equal(t, int64(200), got1.TotalCommissionCents)
	assert.Equal(t, int64(0), got1.PendingPayoutCents)

	err := svc.CreditSales(ctx, orderID, credits[:1])
	assert.ErrorIs(t, err, ErrAlreadyApplied)

	got1 = dbtest.ReloadSupplier(t, conn, s1.ID)
	assert.Equal(t, int64(2000), got1.TotalSalesCents, "second credit must not move balances")
}

func TestReverseSalesMirrorsCredits(t *testing.T) {
	conn, svc := newLedger(t)
	ctx := context.Background()
	s1 := dbtest.Supplier(t, conn, "10")
	orderID := uuid.New()

	require.NoError(t, svc.CreditSales(ctx, orderID, []SaleCredit{{SupplierID: s1.ID, SalesCents: 2000, CommissionCents: 200}}))
	require.NoError(t, svc.CreditSales(ctx, uuid.New(), []SaleCredit{{SupplierID: s1.ID, SalesCents: 700, CommissionCents: 70}}))

	require.NoError(t, svc.ReverseSales(ctx, orderID))

	got := dbtest.ReloadSupplier(t, conn, s1.ID)
	assert.Equal(t, int64(700), got.TotalSalesCents)
	assert.Equal(t, int64(70), got.TotalCommissionCents)

	require.NoError(t, svc.ReverseSales(ctx, uuid.New()), "orders without credits reverse to a no-op")
}

func TestAccruePayoutOncePerOrderSupplier(t *testing.T) {
	conn, svc := newLedger(t)
	ctx := context.Background()
	s1 := dbtest.Supplier(t, conn, "10")
	s2 := dbtest.Supplier(t, conn, "20")
	orderID := uuid.New()

	require.NoError(t, svc.AccruePayout(ctx, orderID, s1.ID, 1800))
	require.NoError(t, svc.AccruePayout(ctx, orderID, s2.ID, 400))
	assert.ErrorIs(t, svc.AccruePayout(ctx, orderID, s1.ID, 1800), ErrAlreadyApplied)

	assert.Equal(t, int64(1800), dbtest.ReloadSupplier(t, conn, s1.ID).PendingPayoutCents)
	assert.Equal(t, int64(400), dbtest.ReloadSupplier(t, conn, s2.ID).PendingPayoutCents)
}

func TestAccruePayoutUnknownSupplier(t *testing.T) {
	_, svc := newLedger(t)
	err := svc.AccruePayout(context.Background(), uuid.New(), uuid.New(), 100)
	assert.ErrorIs(t, err, ErrSupplierNotFound)
}

func TestDebitPayoutGuardsBalance(t *testing.T) {
	conn, svc := newLedger(t)
	ctx := context.Background()
	s1 := dbtest.Supplier(t, conn, "10")
	require.NoError(t, svc.AccruePayout(ctx, uuid.New(), s1.ID, 1800))

	err := svc.DebitPayout(ctx, s1.ID, uuid.New(), 1801)
	assert.ErrorIs(t, err, ErrInsufficientPending)
	assert.Equal(t, int64(1800), dbtest.ReloadSupplier(t, conn, s1.ID).PendingPayoutCents)

	require.NoError(t, svc.DebitPayout(ctx, s1.ID, uuid.New(), 1800))
	got := dbtest.ReloadSupplier(t, conn, s1.ID)
	assert.Equal(t, int64(0), got.PendingPayoutCents)
	require.NotNil(t, got.LastPayoutAt)

	assert.Error(t, svc.DebitPayout(ctx, s1.ID, uuid.New(), 0))
}

func TestConcurrentAccrualsSumExactly(t *testing.T) {
	conn, svc := newLedger(t)
	client := dbpkg.Wrap(conn)
	ctx := context.Background()
	s1 := dbtest.Supplier(t, conn, "10")

	const deliveries = 40
	var wg sync.WaitGroup
	errs := make(chan error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- client.WithTx(ctx, func(tx *gorm.DB) error {
				return svc.WithTx(tx).AccruePayout(ctx, uuid.New(), s1.ID, 45)
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(deliveries*45), dbtest.ReloadSupplier(t, conn, s1.ID).PendingPayoutCents)
}

func TestBalanceAndHistory(t *testing.T) {
	conn, svc := newLedger(t)
	ctx := context.Background()
	s1 := dbtest.Supplier(t, conn, "10")
	orderID := uuid.New()
	require.NoError(t, svc.CreditSales(ctx, orderID, []SaleCredit{{SupplierID: s1.ID, SalesCents: 2000, CommissionCents: 200}}))
	require.NoError(t, svc.AccruePayout(ctx, orderID, s1.ID, 1800))

	balance, err := svc.BalanceForUser(ctx, s1.UserID)
	require.NoError(t, err)
	assert.Equal(t, s1.ID, balance.SupplierID)
	assert.Equal(t, int64(1800), balance.PendingPayoutCents)

	_, err = svc.Balance(ctx, uuid.New())
	assert.True(t, errors.Is(err, ErrSupplierNotFound))

	history, err := svc.History(ctx, s1.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	types := []enums.LedgerEventType{history[0].Type, history[1].Type}
	assert.ElementsMatch(t, []enums.LedgerEventType{enums.LedgerEventSaleCredited, enums.LedgerEventPayoutAccrued}, types)

	var events []models.SupplierLedgerEvent
	require.NoError(t, conn.Where("supplier_id = ?", s1.ID).Find(&events).Error)
	assert.Len(t, events, 2)
}
