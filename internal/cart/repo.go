package cart

import (
	"context"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Line is a cart item joined with the product price and the owning supplier's rate.
type Line struct {
	CartItemID     uuid.UUID
	ProductID      uuid.UUID
	SupplierID     uuid.UUID
	Quantity       int
	Size           *string
	UnitPriceCents int64
	CommissionRate decimal.Decimal
	StockQuantity  int
}

// Repository exposes persistence operations for cart items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Lines(ctx context.Context, userID uuid.UUID) ([]Line, error)
	AddItem(ctx context.Context, item *models.CartItem) error
	Clear(ctx context.Context, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Lines(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	var lines []Line
	err := r.db.WithContext(ctx).
		Table("cart_items AS ci").
		Select(`ci.id AS cart_item_id,
			ci.product_id,
			p.supplier_id,
			ci.quantity,
			ci.size,
			p.price_cents AS unit_price_cents,
			s.commission_rate,
			p.stock_quantity`).
		Joins("JOIN products p ON p.id = ci.product_id").
		Joins("JOIN suppliers s ON s.id = p.supplier_id").
		Where("ci.user_id = ?", userID).
		Order("ci.created_at ASC").
		Scan(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) AddItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// Clear removes every cart item of the user and reports how many were deleted.
func (r *repository) Clear(ctx context.Context, userID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.CartItem{})
	return res.RowsAffected, res.Error
}
