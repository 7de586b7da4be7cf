package orders

import (
	"context"
	"fmt"

	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
)

// Service exposes the read side of orders for buyers and suppliers.
type Service interface {
	GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderView, error)
	ListForUser(ctx context.Context, userID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error)
	ListForSupplier(ctx context.Context, supplierID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error)
}

type service struct {
	repo Repository
}

// NewService builds the order read service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetForUser(ctx context.Context, userID, orderID uuid.UUID) (*OrderView, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := LoadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	view := ToView(*order)
	return &view, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByUser(ctx, userID, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	list := toList(rows, params)
	return &list, nil
}

func (s *service) ListForSupplier(ctx context.Context, supplierID uuid.UUID, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing")
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBySupplier(ctx, supplierID, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	list := toList(rows, params)
	return &list, nil
}

// LoadOrder fetches an order with its items and maps a missing row to NOT_FOUND.
func LoadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

func validateParams(params pagination.Params) error {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return nil
}
