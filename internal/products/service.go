package product

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stock reserves and restores product quantities.
type Stock interface {
	WithTx(tx *gorm.DB) Stock
	Reserve(ctx context.Context, productID uuid.UUID, qty int) error
	Restore(ctx context.Context, productID uuid.UUID, qty int) error
}

type stock struct {
	repo Repository
	logg *logger.Logger
}

// NewStock builds the stock collaborator.
func NewStock(repo Repository, logg *logger.Logger) (Stock, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &stock{repo: repo, logg: logg}, nil
}

func (s *stock) WithTx(tx *gorm.DB) Stock {
	return &stock{repo: s.repo.WithTx(tx), logg: s.logg}
}

// Reserve decrements stock by qty and fails with CONFLICT when too little is left.
func (s *stock) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	ok, err := s.repo.DecrementStock(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve stock")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
			WithDetails(map[string]any{"productId": productID, "requested": qty})
	}
	return nil
}

// Restore puts qty units back. A product that no longer exists is logged and skipped.
func (s *stock) Restore(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	ok, err := s.repo.IncrementStock(ctx, productID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "restore stock")
	}
	if !ok {
		s.logg.Warn(s.logg.WithField(ctx, "product_id", productID.String()), "stock restore skipped for missing product")
	}
	return nil
}
