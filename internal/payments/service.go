package payments

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/gateway"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const claimScope = "payment-confirmation"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// deliveryGuard deduplicates redelivered confirmations before they reach the database.
type deliveryGuard interface {
	Claim(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

// ConfirmInput is the payload the gateway (or the paying client) presents.
type ConfirmInput struct {
	GatewayOrderRef   string `json:"gatewayOrderRef" validate:"required"`
	GatewayPaymentRef string `json:"gatewayPaymentRef" validate:"required"`
	Signature         string `json:"signature" validate:"required"`
}

// Confirmation reports the order state after a confirmation attempt.
type Confirmation struct {
	OrderID          uuid.UUID         `json:"orderId"`
	Status           enums.OrderStatus `json:"status"`
	AlreadyProcessed bool              `json:"alreadyProcessed"`
}

// Service confirms gateway payments.
type Service interface {
	// Confirm verifies the signature and moves the order PENDING -> PAID exactly once.
	// actorID is nil for gateway webhooks and the calling user otherwise.
	Confirm(ctx context.Context, input ConfirmInput, actorID *uuid.UUID) (*Confirmation, error)
}

type service struct {
	tx         txRunner
	ordersRepo orders.Repository
	ledger     ledger.Service
	cart       cart.Service
	outbox     outboxPublisher
	guard      deliveryGuard
	secret     string
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the payment confirmation handler. guard and m may be nil.
func NewService(
	tx txRunner,
	ordersRepo orders.Repository,
	ledgerSvc ledger.Service,
	cartSvc cart.Service,
	publisher outboxPublisher,
	guard deliveryGuard,
	secret string,
	m *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if cartSvc == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("gateway secret required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:         tx,
		ordersRepo: ordersRepo,
		ledger:     ledgerSvc,
		cart:       cartSvc,
		outbox:     publisher,
		guard:      guard,
		secret:     secret,
		metrics:    m,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) Confirm(ctx context.Context, input ConfirmInput, actorID *uuid.UUID) (*Confirmation, error) {
	if strings.TrimSpace(input.GatewayOrderRef) == "" || strings.TrimSpace(input.GatewayPaymentRef) == "" || strings.TrimSpace(input.Signature) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gatewayOrderRef, gatewayPaymentRef and signature are required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"gateway_order_ref":   input.GatewayOrderRef,
		"gateway_payment_ref": input.GatewayPaymentRef,
	})
	if !gateway.VerifySignature(s.secret, input.GatewayOrderRef, input.GatewayPaymentRef, input.Signature) {
		s.logg.Warn(ctx, "payment signature mismatch")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidSignature, "payment signature mismatch")
	}

	claimed := s.claim(ctx, input.GatewayPaymentRef)
	if !claimed {
		settledResult, err := s.current(ctx, input.GatewayOrderRef, actorID)
		if err != nil || settledResult != nil {
			return settledResult, err
		}
		// the claim holder has not committed; the status CAS below decides the winner
	}

	var result *Confirmation
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.confirmTx(ctx, tx, input, actorID)
		return err
	})
	if err != nil {
		if claimed {
			s.release(ctx, input.GatewayPaymentRef)
		}
		return nil, err
	}
	if !result.AlreadyProcessed {
		s.metrics.ObserveTransition(string(enums.OrderStatusPending), string(orders.EventPay), string(enums.OrderStatusPaid))
		s.logg.Info(s.logg.WithOrderID(ctx, result.OrderID.String()), "payment confirmed")
	}
	return result, nil
}

func (s *service) confirmTx(ctx context.Context, tx *gorm.DB, input ConfirmInput, actorID *uuid.UUID) (*Confirmation, error) {
	repo := s.ordersRepo.WithTx(tx)
	order, err := findByRef(ctx, repo, input.GatewayOrderRef)
	if err != nil {
		return nil, err
	}
	if actorID != nil && order.UserID != *actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	// a lost CAS means a concurrent delivery moved the order; the fresh status decides
	for attempt := 0; attempt < 2; attempt++ {
		if done, res, err := settled(order); done {
			return res, err
		}

		transition, err := orders.Next(order.Status, orders.EventPay)
		if err != nil {
			return nil, err
		}
		paidAt := s.now().UTC()
		ok, err := repo.TransitionStatus(ctx, order.ID, transition.From, transition.To, map[string]any{
			"gateway_payment_ref": input.GatewayPaymentRef,
			"paid_at":             paidAt,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
		}
		if ok {
			if err := s.applyEffects(ctx, tx, order, transition, input.GatewayPaymentRef, paidAt); err != nil {
				return nil, err
			}
			return &Confirmation{OrderID: order.ID, Status: transition.To}, nil
		}

		if order, err = orders.LoadOrder(ctx, repo, order.ID); err != nil {
			return nil, err
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "order changed concurrently")
}

func (s *service) applyEffects(ctx context.Context, tx *gorm.DB, order *models.Order, transition orders.Transition, paymentRef string, paidAt time.Time) error {
	credits := CreditsFor(order.Items)
	if transition.Effects.Has(orders.EffectCreditSales) {
		if err := s.ledger.WithTx(tx).CreditSales(ctx, order.ID, credits); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit supplier sales")
		}
		for _, credit := range credits {
			s.metrics.AddLedgerCents(string(enums.LedgerEventSaleCredited), credit.SalesCents)
		}
	}
	if transition.Effects.Has(orders.EffectClearCart) {
		if err := s.cart.Clear(ctx, tx, order.UserID); err != nil {
			return err
		}
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Data: payloads.OrderPaidEvent{
			OrderID:           order.ID,
			UserID:            order.UserID,
			GatewayPaymentRef: paymentRef,
			TotalCents:        order.TotalCents,
			Credits:           toPayload(credits),
			PaidAt:            paidAt,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order paid")
	}
	return nil
}

// current answers a redelivery that lost the Redis claim with the order's present state.
// It returns nil when the order is still PENDING so the caller confirms through the
// database guard instead of reporting a payment that has not been recorded.
func (s *service) current(ctx context.Context, gatewayOrderRef string, actorID *uuid.UUID) (*Confirmation, error) {
	order, err := findByRef(ctx, s.ordersRepo, gatewayOrderRef)
	if err != nil {
		return nil, err
	}
	if actorID != nil && order.UserID != *actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "order is cancelled")
	}
	if order.Status == enums.OrderStatusPending {
		s.logg.Info(ctx, "payment claim held elsewhere but order still pending")
		return nil, nil
	}
	s.logg.Info(ctx, "duplicate payment confirmation ignored")
	return &Confirmation{OrderID: order.ID, Status: order.Status, AlreadyProcessed: true}, nil
}

func (s *service) claim(ctx context.Context, paymentRef string) bool {
	if s.guard == nil {
		return true
	}
	first, err := s.guard.Claim(ctx, claimScope, paymentRef)
	if err != nil {
		s.logg.Warn(ctx, fmt.Sprintf("payment claim unavailable, falling back to database guard: %v", err))
		return true
	}
	return first
}

func (s *service) release(ctx context.Context, paymentRef string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, claimScope, paymentRef); err != nil {
		s.logg.Error(ctx, "release payment claim", err)
	}
}

// settled reports whether the order needs no transition, with the answer to return.
func settled(order *models.Order) (bool, *Confirmation, error) {
	switch order.Status {
	case enums.OrderStatusCancelled:
		return true, nil, pkgerrors.New(pkgerrors.CodeAlreadyFinalized, "order is cancelled")
	case enums.OrderStatusPaid, enums.OrderStatusShipped, enums.OrderStatusDelivered:
		return true, &Confirmation{OrderID: order.ID, Status: order.Status, AlreadyProcessed: true}, nil
	}
	return false, nil, nil
}

func findByRef(ctx context.Context, repo orders.Repository, ref string) (*models.Order, error) {
	order, err := repo.FindByGatewayRef(ctx, ref)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	return order, nil
}

// CreditsFor sums line totals and commission per supplier, in supplier id order.
func CreditsFor(items []models.OrderItem) []ledger.SaleCredit {
	bySupplier := make(map[uuid.UUID]*ledger.SaleCredit)
	for _, item := range items {
		credit, ok := bySupplier[item.SupplierID]
		if !ok {
			credit = &ledger.SaleCredit{SupplierID: item.SupplierID}
			bySupplier[item.SupplierID] = credit
		}
		credit.SalesCents += item.LineTotalCents()
		credit.CommissionCents += item.CommissionCents
	}
	out := make([]ledger.SaleCredit, 0, len(bySupplier))
	for _, credit := range bySupplier {
		out = append(out, *credit)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SupplierID.String() < out[j].SupplierID.String()
	})
	return out
}

func toPayload(credits []ledger.SaleCredit) []payloads.SupplierCredit {
	out := make([]payloads.SupplierCredit, 0, len(credits))
	for _, c := range credits {
		out = append(out, payloads.SupplierCredit{
			SupplierID:      c.SupplierID,
			SalesCents:      c.SalesCents,
			CommissionCents: c.CommissionCents,
		})
	}
	return out
}
