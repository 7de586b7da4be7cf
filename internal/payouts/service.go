package payouts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

const historyLimit = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service disburses pending supplier balances and exposes balance views.
type Service interface {
	Issue(ctx context.Context, adminID uuid.UUID, input IssueInput) (*PayoutView, error)
	UpdateStatus(ctx context.Context, adminID, payoutID uuid.UUID, status string) (*PayoutView, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*PayoutList, error)
	Balance(ctx context.Context, supplierID uuid.UUID) (*ledger.Balance, error)
	History(ctx context.Context, supplierID uuid.UUID) ([]models.SupplierLedgerEvent, error)
	ApproveSupplier(ctx context.Context, adminID, supplierID uuid.UUID) (*ledger.Balance, error)
}

type service struct {
	tx      txRunner
	repo    Repository
	ledger  ledger.Service
	outbox  outboxPublisher
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewService(tx txRunner, repo Repository, ledgerSvc ledger.Service, publisher outboxPublisher, m *metrics.OrderMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("payouts repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:      tx,
		repo:    repo,
		ledger:  ledgerSvc,
		outbox:  publisher,
		metrics: m,
		logg:    logg,
		now:     time.Now,
	}, nil
}

// Issue debits the supplier's pending payout and records a PENDING payout. The debit
// is a single conditional statement, so an amount above the pending balance leaves
// the balance untouched. Only approved suppliers are paid out.
func (s *service) Issue(ctx context.Context, adminID uuid.UUID, input IssueInput) (*PayoutView, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	ctx = s.logg.WithSupplierID(s.logg.WithUserID(ctx, adminID.String()), input.SupplierID.String())

	payout := models.Payout{
		SupplierID:  input.SupplierID,
		AmountCents: input.AmountCents,
		Description: trimmed(input.Description),
		Status:      enums.PayoutStatusPending,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerTx := s.ledger.WithTx(tx)
		balance, err := ledgerTx.Balance(ctx, input.SupplierID)
		if err != nil {
			return mapLedgerError(err)
		}
		if !balance.IsApproved {
			return pkgerrors.New(pkgerrors.CodeNotEligible, "supplier is not approved")
		}
		if err := s.repo.WithTx(tx).Create(ctx, &payout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payout")
		}
		if err := ledgerTx.DebitPayout(ctx, input.SupplierID, payout.ID, input.AmountCents); err != nil {
			return mapLedgerError(err)
		}
		return s.emit(ctx, tx, enums.EventPayoutIssued, payout.ID, adminID, payloads.PayoutIssuedEvent{
			PayoutID:    payout.ID,
			SupplierID:  payout.SupplierID,
			AmountCents: payout.AmountCents,
			IssuedAt:    s.now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddLedgerCents(string(enums.LedgerEventPayoutIssued), payout.AmountCents)
	s.logg.Info(s.logg.WithField(ctx, "payout_id", payout.ID.String()), "payout issued")
	view := ToView(payout)
	return &view, nil
}

// UpdateStatus records the disbursement outcome. It has no effect on balances.
func (s *service) UpdateStatus(ctx context.Context, adminID, payoutID uuid.UUID, status string) (*PayoutView, error) {
	next, err := enums.ParsePayoutStatus(strings.ToUpper(strings.TrimSpace(status)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payout status").
			WithDetails(map[string]any{"status": status})
	}
	ctx = s.logg.WithField(s.logg.WithUserID(ctx, adminID.String()), "payout_id", payoutID.String())

	var payout *models.Payout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.UpdateStatus(ctx, payoutID, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update payout status")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		payout, err = repo.FindByID(ctx, payoutID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payout")
		}
		return s.emit(ctx, tx, enums.EventPayoutStatusUpdated, payout.ID, adminID, payloads.PayoutStatusUpdatedEvent{
			PayoutID:   payout.ID,
			SupplierID: payout.SupplierID,
			Status:     next,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "status", string(next)), "payout status updated")
	view := ToView(*payout)
	return &view, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*PayoutList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payout status")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payouts")
	}
	list := toList(rows, params)
	return &list, nil
}

func (s *service) Balance(ctx context.Context, supplierID uuid.UUID) (*ledger.Balance, error) {
	balance, err := s.ledger.Balance(ctx, supplierID)
	if err != nil {
		return nil, mapLedgerError(err)
	}
	return balance, nil
}

// ApproveSupplier marks the supplier approved. Approving twice is a no-op.
func (s *service) ApproveSupplier(ctx context.Context, adminID, supplierID uuid.UUID) (*ledger.Balance, error) {
	ctx = s.logg.WithSupplierID(s.logg.WithUserID(ctx, adminID.String()), supplierID.String())

	var balance *ledger.Balance
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).ApproveSupplier(ctx, supplierID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "approve supplier")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
		}
		balance, err = s.ledger.WithTx(tx).Balance(ctx, supplierID)
		if err != nil {
			return mapLedgerError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "supplier approved")
	return balance, nil
}

func (s *service) History(ctx context.Context, supplierID uuid.UUID) ([]models.SupplierLedgerEvent, error) {
	events, err := s.ledger.History(ctx, supplierID, historyLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load ledger history")
	}
	return events, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payoutID, adminID uuid.UUID, data any) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Actor:         &outbox.ActorRef{UserID: adminID, Role: enums.RoleAdmin.String()},
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}

func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrSupplierNotFound), dbpkg.IsNotFound(err):
		return pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
	case errors.Is(err, ledger.ErrInsufficientPending):
		return pkgerrors.New(pkgerrors.CodeValidation, "amount exceeds pending payout")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "supplier ledger")
	}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}
