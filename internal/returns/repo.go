package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository persists return requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ReturnRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.ReturnRequest, error)
	MarkVerified(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error)
}

// ListFilters narrows the admin listing.
type ListFilters struct {
	Status *enums.ReturnStatus
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ReturnRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("order_id = ?", orderID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error) {
	return r.list(ctx, params, func(q *gorm.DB) *gorm.DB {
		return q.Where("user_id = ?", userID)
	})
}

// ListBySupplier returns requests raised on orders that hold at least one of the
// supplier's items, verified or not.
func (r *repository) ListBySupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) ([]models.ReturnRequest, error) {
	owned := r.db.Model(&models.OrderItem{}).Select("order_id").Where("supplier_id = ?", supplierID)
	return r.list(ctx, params, func(q *gorm.DB) *gorm.DB {
		return q.Where("order_id IN (?)", owned)
	})
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.ReturnRequest, error) {
	return r.list(ctx, params, func(q *gorm.DB) *gorm.DB {
		if filters.Status != nil {
			q = q.Where("status = ?", *filters.Status)
		}
		return q
	})
}

// MarkVerified applies updates only while the request is still PENDING.
func (r *repository) MarkVerified(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, enums.ReturnStatusPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) list(ctx context.Context, params pagination.Params, filter func(*gorm.DB) *gorm.DB) ([]models.ReturnRequest, error) {
	scope, err := pagination.Scope(params)
	if err != nil {
		return nil, err
	}
	var rows []models.ReturnRequest
	if err := r.db.WithContext(ctx).Scopes(filter, scope).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
