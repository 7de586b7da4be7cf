package cart

import (
	"context"
	"fmt"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service is the cart surface the order lifecycle depends on.
type Service interface {
	Lines(ctx context.Context, userID uuid.UUID) ([]Line, error)
	Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService builds the cart service.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) Lines(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	lines, err := s.repo.Lines(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return lines, nil
}

// Clear empties the user's cart inside tx. An already empty cart is not an error.
func (s *service) Clear(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	removed, err := s.repo.WithTx(tx).Clear(ctx, userID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	if removed == 0 {
		s.logg.Debug(s.logg.WithUserID(ctx, userID.String()), "cart already empty")
	}
	return nil
}
