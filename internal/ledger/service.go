package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrSupplierNotFound is returned when a delta targets an unknown supplier.
	ErrSupplierNotFound = errors.New("supplier not found")
	// ErrAlreadyApplied is returned when an order-keyed entry already exists for the supplier.
	ErrAlreadyApplied = errors.New("ledger entry already applied")
	// ErrInsufficientPending is returned when a debit exceeds the pending payout.
	ErrInsufficientPending = errors.New("amount exceeds pending payout")
)

// SaleCredit is one supplier's share of a paid order.
type SaleCredit struct {
	SupplierID      uuid.UUID
	SalesCents      int64
	CommissionCents int64
}

// Balance is the read view of a supplier's running totals.
type Balance struct {
	SupplierID           uuid.UUID  `json:"supplierId"`
	IsApproved           bool       `json:"isApproved"`
	TotalSalesCents      int64      `json:"totalSalesCents"`
	TotalCommissionCents int64      `json:"totalCommissionCents"`
	PendingPayoutCents   int64      `json:"pendingPayoutCents"`
	LastPayoutAt         *time.Time `json:"lastPayoutAt,omitempty"`
}

// Service is the only path through which supplier balances change. Every method
// issues atomic deltas and records a ledger event in the caller's transaction.
type Service interface {
	WithTx(tx *gorm.DB) Service
	CreditSales(ctx context.Context, orderID uuid.UUID, credits []SaleCredit) error
	ReverseSales(ctx context.Context, orderID uuid.UUID) error
	AccruePayout(ctx context.Context, orderID, supplierID uuid.UUID, amountCents int64) error
	DebitPayout(ctx context.Context, supplierID, payoutID uuid.UUID, amountCents int64) error
	Balance(ctx context.Context, supplierID uuid.UUID) (*Balance, error)
	BalanceForUser(ctx context.Context, userID uuid.UUID) (*Balance, error)
	History(ctx context.Context, supplierID uuid.UUID, limit int) ([]models.SupplierLedgerEvent, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	return &service{repo: s.repo.WithTx(tx), now: s.now}
}

func (s *service) CreditSales(ctx context.Context, orderID uuid.UUID, credits []SaleCredit) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id is required")
	}
	for _, credit := range credits {
		if credit.SalesCents < 0 || credit.CommissionCents < 0 {
			return fmt.Errorf("sale credit for supplier %s must not be negative", credit.SupplierID)
		}
		delta := Delta{SalesCents: credit.SalesCents, CommissionCents: credit.CommissionCents}
		if err := s.apply(ctx, credit.SupplierID, &orderID, nil, enums.LedgerEventSaleCredited, delta); err != nil {
			return err
		}
	}
	return nil
}

// ReverseSales undoes exactly the amounts credited for orderID. Orders that were never
// credited are a no-op.
func (s *service) ReverseSales(ctx context.Context, orderID uuid.UUID) error {
	credited, err := s.repo.ListOrderEvents(ctx, orderID, enums.LedgerEventSaleCredited)
	if err != nil {
		return fmt.Errorf("list sale credits: %w", err)
	}
	for _, event := range credited {
		delta := Delta{SalesCents: -event.SalesDeltaCents, CommissionCents: -event.CommissionDeltaCents}
		if err := s.apply(ctx, event.SupplierID, &orderID, nil, enums.LedgerEventSaleReversed, delta); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) AccruePayout(ctx context.Context, orderID, supplierID uuid.UUID, amountCents int64) error {
	if orderID == uuid.Nil {
		return fmt.Errorf("order id is required")
	}
	if amountCents < 0 {
		return fmt.Errorf("payout accrual must not be negative")
	}
	return s.apply(ctx, supplierID, &orderID, nil, enums.LedgerEventPayoutAccrued, Delta{PayoutCents: amountCents})
}

func (s *service) DebitPayout(ctx context.Context, supplierID, payoutID uuid.UUID, amountCents int64) error {
	if amountCents <= 0 {
		return fmt.Errorf("payout amount must be positive")
	}
	ok, err := s.repo.DebitPendingPayout(ctx, supplierID, amountCents, s.now().UTC())
	if err != nil {
		return fmt.Errorf("debit pending payout: %w", err)
	}
	if !ok {
		return ErrInsufficientPending
	}
	event := &models.SupplierLedgerEvent{
		SupplierID:       supplierID,
		PayoutID:         &payoutID,
		Type:             enums.LedgerEventPayoutIssued,
		PayoutDeltaCents: -amountCents,
	}
	if err := s.repo.InsertEvent(ctx, event); err != nil {
		return fmt.Errorf("record payout event: %w", err)
	}
	return nil
}

func (s *service) Balance(ctx context.Context, supplierID uuid.UUID) (*Balance, error) {
	supplier, err := s.repo.FindSupplier(ctx, supplierID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, ErrSupplierNotFound
		}
		return nil, err
	}
	return balanceFrom(supplier), nil
}

func (s *service) BalanceForUser(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	supplier, err := s.repo.FindSupplierByUserID(ctx, userID)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, ErrSupplierNotFound
		}
		return nil, err
	}
	return balanceFrom(supplier), nil
}

func (s *service) History(ctx context.Context, supplierID uuid.UUID, limit int) ([]models.SupplierLedgerEvent, error) {
	return s.repo.ListSupplierEvents(ctx, supplierID, limit)
}

// apply records the event first so the (order, supplier, type) unique index rejects a
// second application before any balance moves.
func (s *service) apply(ctx context.Context, supplierID uuid.UUID, orderID, payoutID *uuid.UUID, eventType enums.LedgerEventType, delta Delta) error {
	event := &models.SupplierLedgerEvent{
		SupplierID:           supplierID,
		OrderID:              orderID,
		PayoutID:             payoutID,
		Type:                 eventType,
		SalesDeltaCents:      delta.SalesCents,
		CommissionDeltaCents: delta.CommissionCents,
		PayoutDeltaCents:     delta.PayoutCents,
	}
	if err := s.repo.InsertEvent(ctx, event); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return ErrAlreadyApplied
		}
		return fmt.Errorf("record %s event: %w", eventType, err)
	}

	ok, err := s.repo.ApplyDelta(ctx, supplierID, delta)
	if err != nil {
		return fmt.Errorf("apply %s delta: %w", eventType, err)
	}
	if !ok {
		return ErrSupplierNotFound
	}
	return nil
}

func balanceFrom(supplier *models.Supplier) *Balance {
	return &Balance{
		SupplierID:           supplier.ID,
		IsApproved:           supplier.IsApproved,
		TotalSalesCents:      supplier.TotalSalesCents,
		TotalCommissionCents: supplier.TotalCommissionCents,
		PendingPayoutCents:   supplier.PendingPayoutCents,
		LastPayoutAt:         supplier.LastPayoutAt,
	}
}
