package cancellation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

const (
	DefaultReason = "User requested cancellation"
	ExpiryReason  = "Payment not received in time"

	maxReasonLength = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service cancels orders on behalf of their owners and expires stale unpaid ones.
type Service interface {
	Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*orders.OrderView, error)
	// Expire cancels a PENDING order that never got paid. It reports false when the
	// order left PENDING before the expiry could apply.
	Expire(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type service struct {
	tx         txRunner
	ordersRepo orders.Repository
	stock      product.Stock
	ledger     ledger.Service
	outbox     outboxPublisher
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(
	tx txRunner,
	ordersRepo orders.Repository,
	stock product.Stock,
	ledgerSvc ledger.Service,
	publisher outboxPublisher,
	m *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock service required")
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
		tx:         tx,
		ordersRepo: ordersRepo,
		stock:      stock,
		ledger:     ledgerSvc,
		outbox:     publisher,
		metrics:    m,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) Cancel(ctx context.Context, userID, orderID uuid.UUID, reason string) (*orders.OrderView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = DefaultReason
	}
	if len(reason) > maxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", maxReasonLength))
	}
	ctx = s.logg.WithOrderID(s.logg.WithUserID(ctx, userID.String()), orderID.String())

	var (
		view       orders.OrderView
		transition orders.Transition
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		order, err := orders.LoadOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		switch order.Status {
		case enums.OrderStatusShipped, enums.OrderStatusDelivered, enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeNotEligible, fmt.Sprintf("order in status %s cannot be cancelled", order.Status)).
				WithDetails(map[string]any{"status": order.Status})
		}
		transition, err = orders.Next(order.Status, orders.EventCancel)
		if err != nil {
			return err
		}

		actor := &outbox.ActorRef{UserID: userID, Role: enums.RoleUser.String()}
		applied, err := s.cancel(ctx, tx, order, transition, reason, enums.EventOrderCancelled, actor)
		if err != nil {
			return err
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeNotEligible, "order status changed concurrently")
		}

		updated, err := orders.LoadOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		view = orders.ToView(*updated)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(transition.From), string(orders.EventCancel), string(transition.To))
	s.logg.Info(ctx, "order cancelled")
	return &view, nil
}

func (s *service) Expire(ctx context.Context, orderID uuid.UUID) (bool, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := orders.LoadOrder(ctx, s.ordersRepo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusPending {
			return nil
		}
		transition, err := orders.Next(order.Status, orders.EventExpire)
		if err != nil {
			return err
		}
		applied, err = s.cancel(ctx, tx, order, transition, ExpiryReason, enums.EventOrderExpired, nil)
		return err
	})
	if err != nil {
		return false, err
	}
	if applied {
		s.metrics.ObserveTransition(string(enums.OrderStatusPending), string(orders.EventExpire), string(enums.OrderStatusCancelled))
		s.logg.Info(ctx, "stale order expired")
	}
	return applied, nil
}

// cancel runs the CAS and every effect the transition carries. It returns false
// without side effects when the order was moved by someone else first.
func (s *service) cancel(
	ctx context.Context,
	tx *gorm.DB,
	order *models.Order,
	transition orders.Transition,
	reason string,
	eventType enums.OutboxEventType,
	actor *outbox.ActorRef,
) (bool, error) {
	cancelledAt := s.now().UTC()
	ok, err := s.ordersRepo.WithTx(tx).TransitionStatus(ctx, order.ID, transition.From, transition.To, map[string]any{
		"cancellation_reason": reason,
		"cancelled_at":        cancelledAt,
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel order")
	}
	if !ok {
		return false, nil
	}

	if transition.Effects.Has(orders.EffectRestoreStock) {
		stock := s.stock.WithTx(tx)
		for _, item := range order.Items {
			if err := stock.Restore(ctx, item.ProductID, item.Quantity); err != nil {
				return false, err
			}
		}
	}
	reversed := transition.Effects.Has(orders.EffectReverseSales)
	if reversed {
		if err := s.ledger.WithTx(tx).ReverseSales(ctx, order.ID); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reverse supplier sales")
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		Data: payloads.OrderCancelledEvent{
			OrderID:        order.ID,
			UserID:         order.UserID,
			PreviousStatus: transition.From,
			Reason:         reason,
			SalesReversed:  reversed,
			CancelledAt:    cancelledAt,
		},
	}); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order cancelled")
	}
	return true, nil
}
