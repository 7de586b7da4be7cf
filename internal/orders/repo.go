package orders

import (
	"context"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByGatewayRef(ctx context.Context, gatewayOrderRef string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Order, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Order, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status *enums.OrderStatus
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// itemsByID gives preloaded items a stable order, so "first item" means the same row
// on every read.
func itemsByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", itemsByID).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByGatewayRef(ctx context.Context, gatewayOrderRef string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", itemsByID).
		Where("gateway_order_ref = ?", gatewayOrderRef).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Order, error) {
	scope, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	err = r.db.WithContext(ctx).
		Preload("Items", itemsByID).
		Where("user_id = ?", userID).
		Scopes(filters.apply, scope).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListBySupplier returns orders holding at least one item of the supplier. Items of
// other suppliers are left out of the preload.
func (r *repository) ListBySupplier(ctx context.Context, supplierID uuid.UUID, filters ListFilters, params pagination.Params) ([]models.Order, error) {
	scope, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}
	owned := r.db.Model(&models.OrderItem{}).Select("order_id").Where("supplier_id = ?", supplierID)

	var orders []models.Order
	err = r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return itemsByID(db).Where("supplier_id = ?", supplierID)
		}).
		Where("id IN (?)", owned).
		Scopes(filters.apply, scope).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// TransitionStatus moves the order from one status to another only if it is still in
// the expected status. It reports false when another writer got there first.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	values := map[string]any{"status": to}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (f ListFilters) apply(q *gorm.DB) *gorm.DB {
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	return q
}
