package ledger

import (
	"context"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Delta is a signed change applied to a supplier's running balances in one statement.
type Delta struct {
	SalesCents      int64
	CommissionCents int64
	PayoutCents     int64
}

func (d Delta) isZero() bool {
	return d.SalesCents == 0 && d.CommissionCents == 0 && d.PayoutCents == 0
}

// Repository manages supplier balance rows and their ledger events.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindSupplier(ctx context.Context, supplierID uuid.UUID) (*models.Supplier, error)
	FindSupplierByUserID(ctx context.Context, userID uuid.UUID) (*models.Supplier, error)
	ApplyDelta(ctx context.Context, supplierID uuid.UUID, delta Delta) (bool, error)
	DebitPendingPayout(ctx context.Context, supplierID uuid.UUID, amountCents int64, at time.Time) (bool, error)
	InsertEvent(ctx context.Context, event *models.SupplierLedgerEvent) error
	ListOrderEvents(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) ([]models.SupplierLedgerEvent, error)
	ListSupplierEvents(ctx context.Context, supplierID uuid.UUID, limit int) ([]models.SupplierLedgerEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindSupplier(ctx context.Context, supplierID uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).First(&supplier, "id = ?", supplierID).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

func (r *repository) FindSupplierByUserID(ctx context.Context, userID uuid.UUID) (*models.Supplier, error) {
	var supplier models.Supplier
	if err := r.db.WithContext(ctx).First(&supplier, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &supplier, nil
}

// ApplyDelta adds delta to the supplier's balances as col = col + ?. It reports false
// when no supplier row matched.
func (r *repository) ApplyDelta(ctx context.Context, supplierID uuid.UUID, delta Delta) (bool, error) {
	if delta.isZero() {
		return true, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Supplier{}).
		Where("id = ?", supplierID).
		Updates(map[string]any{
			"total_sales_cents":      gorm.Expr("total_sales_cents + ?", delta.SalesCents),
			"total_commission_cents": gorm.Expr("total_commission_cents + ?", delta.CommissionCents),
			"pending_payout_cents":   gorm.Expr("pending_payout_cents + ?", delta.PayoutCents),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// DebitPendingPayout decrements pending payout only while the balance covers the amount.
// It reports false when the balance was insufficient (or the supplier is missing).
func (r *repository) DebitPendingPayout(ctx context.Context, supplierID uuid.UUID, amountCents int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Supplier{}).
		Where("id = ? AND pending_payout_cents >= ?", supplierID, amountCents).
		Updates(map[string]any{
			"pending_payout_cents": gorm.Expr("pending_payout_cents - ?", amountCents),
			"last_payout_at":       at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) InsertEvent(ctx context.Context, event *models.SupplierLedgerEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListOrderEvents(ctx context.Context, orderID uuid.UUID, eventType enums.LedgerEventType) ([]models.SupplierLedgerEvent, error) {
	var events []models.SupplierLedgerEvent
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND type = ?", orderID, eventType).
		Order("created_at ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListSupplierEvents(ctx context.Context, supplierID uuid.UUID, limit int) ([]models.SupplierLedgerEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []models.SupplierLedgerEvent
	if err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
