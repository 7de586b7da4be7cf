package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ShipInput carries the shipment details a supplier records.
type ShipInput struct {
	TrackingNumber string `json:"trackingNumber" validate:"required"`
	Carrier        string `json:"carrier" validate:"required"`
}

// DeliveryResult is the order after delivery plus what the supplier accrued.
type DeliveryResult struct {
	Order        orders.OrderView `json:"order"`
	AccruedCents int64            `json:"accruedCents"`
}

// Service drives supplier-side fulfillment transitions.
type Service interface {
	Ship(ctx context.Context, supplierID, orderID uuid.UUID, input ShipInput) (*orders.OrderView, error)
	Deliver(ctx context.Context, supplierID, orderID uuid.UUID) (*DeliveryResult, error)
}

type service struct {
	tx         txRunner
	ordersRepo orders.Repository
	ledger     ledger.Service
	outbox     outboxPublisher
	metrics    *metrics.OrderMetrics
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(tx txRunner, ordersRepo orders.Repository, ledgerSvc ledger.Service, publisher outboxPublisher, m *metrics.OrderMetrics, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
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
		ledger:     ledgerSvc,
		outbox:     publisher,
		metrics:    m,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) Ship(ctx context.Context, supplierID, orderID uuid.UUID, input ShipInput) (*orders.OrderView, error) {
	tracking := strings.TrimSpace(input.TrackingNumber)
	carrier := strings.TrimSpace(input.Carrier)
	if tracking == "" || carrier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number and carrier are required")
	}
	ctx = s.actorContext(ctx, supplierID, orderID)

	var view orders.OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		order, err := s.ownedOrder(ctx, repo, supplierID, orderID)
		if err != nil {
			return err
		}
		transition, err := orders.Next(order.Status, orders.EventShip)
		if err != nil {
			return err
		}

		shippedAt := s.now().UTC()
		updates := map[string]any{}
		if transition.Effects.Has(orders.EffectStampShipment) {
			updates["tracking_number"] = tracking
			updates["carrier"] = carrier
			updates["shipped_at"] = shippedAt
		}
		if err := applyTransition(ctx, repo, order, transition, updates); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderShipped,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         supplierActor(supplierID),
			Data: payloads.OrderShippedEvent{
				OrderID:        order.ID,
				UserID:         order.UserID,
				SupplierID:     supplierID,
				TrackingNumber: tracking,
				Carrier:        carrier,
				ShippedAt:      shippedAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order shipped")
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

	s.metrics.ObserveTransition(string(enums.OrderStatusPaid), string(orders.EventShip), string(enums.OrderStatusShipped))
	s.logg.Info(ctx, "order shipped")
	return &view, nil
}

// Deliver marks the order DELIVERED and accrues the acting supplier's net share to its
// pending payout. On a multi-supplier order the later suppliers hit the DELIVERED
// self-loop, which only accrues.
func (s *service) Deliver(ctx context.Context, supplierID, orderID uuid.UUID) (*DeliveryResult, error) {
	ctx = s.actorContext(ctx, supplierID, orderID)

	var (
		result     DeliveryResult
		transition orders.Transition
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.ordersRepo.WithTx(tx)
		order, err := s.ownedOrder(ctx, repo, supplierID, orderID)
		if err != nil {
			return err
		}
		transition, err = orders.Next(order.Status, orders.EventDeliver)
		if err != nil {
			return err
		}

		deliveredAt := s.now().UTC()
		if !transition.SelfLoop() {
			if err := applyTransition(ctx, repo, order, transition, map[string]any{"delivered_at": deliveredAt}); err != nil {
				return err
			}
		} else if order.DeliveredAt != nil {
			deliveredAt = *order.DeliveredAt
		}

		var accrued int64
		if transition.Effects.Has(orders.EffectAccruePayout) {
			accrued = NetFor(order.Items, supplierID)
			if err := s.ledger.WithTx(tx).AccruePayout(ctx, order.ID, supplierID, accrued); err != nil {
				switch {
				case errors.Is(err, ledger.ErrAlreadyApplied):
					return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order already delivered by supplier").
						WithDetails(map[string]any{"from": order.Status, "event": orders.EventDeliver})
				case errors.Is(err, ledger.ErrSupplierNotFound):
					return pkgerrors.New(pkgerrors.CodeNotFound, "supplier not found")
				default:
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "accrue payout")
				}
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderDelivered,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         supplierActor(supplierID),
			Data: payloads.OrderDeliveredEvent{
				OrderID:      order.ID,
				UserID:       order.UserID,
				SupplierID:   supplierID,
				AccruedCents: accrued,
				DeliveredAt:  deliveredAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order delivered")
		}

		updated, err := orders.LoadOrder(ctx, repo, order.ID)
		if err != nil {
			return err
		}
		result = DeliveryResult{Order: orders.ToView(*updated), AccruedCents: accrued}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(transition.From), string(orders.EventDeliver), string(transition.To))
	s.metrics.AddLedgerCents(string(enums.LedgerEventPayoutAccrued), result.AccruedCents)
	s.logg.Info(s.logg.WithField(ctx, "accrued_cents", result.AccruedCents), "order delivered")
	return &result, nil
}

// ownedOrder loads the order and requires the supplier to own at least one item.
func (s *service) ownedOrder(ctx context.Context, repo orders.Repository, supplierID, orderID uuid.UUID) (*models.Order, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier identity missing")
	}
	order, err := orders.LoadOrder(ctx, repo, orderID)
	if err != nil {
		return nil, err
	}
	if !order.HasSupplier(supplierID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotEligible, "supplier has no items in this order")
	}
	return order, nil
}

func (s *service) actorContext(ctx context.Context, supplierID, orderID uuid.UUID) context.Context {
	ctx = s.logg.WithSupplierID(ctx, supplierID.String())
	return s.logg.WithOrderID(ctx, orderID.String())
}

// applyTransition performs the CAS for transition. Losing the race means another
// request already moved the order, which is reported as an invalid transition.
func applyTransition(ctx context.Context, repo orders.Repository, order *models.Order, transition orders.Transition, updates map[string]any) error {
	ok, err := repo.TransitionStatus(ctx, order.ID, transition.From, transition.To, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "order status changed concurrently").
			WithDetails(map[string]any{"from": transition.From, "event": transition.Event})
	}
	return nil
}

// NetFor sums price*qty - commission over the supplier's items.
func NetFor(items []models.OrderItem, supplierID uuid.UUID) int64 {
	var net int64
	for _, item := range items {
		if item.SupplierID == supplierID {
			net += item.NetCents()
		}
	}
	return net
}

func supplierActor(supplierID uuid.UUID) *outbox.ActorRef {
	id := supplierID
	return &outbox.ActorRef{SupplierID: &id, Role: enums.RoleSupplier.String()}
}
