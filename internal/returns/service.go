package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Options holds the return policy.
type Options struct {
	EligibleStatus      enums.OrderStatus
	FaultyChargeCents   int64
	StandardChargeCents int64
}

// Service raises and adjudicates return requests.
type Service interface {
	Request(ctx context.Context, userID, orderID uuid.UUID, input RequestInput) (*ReturnView, error)
	Verify(ctx context.Context, supplierID, returnID uuid.UUID, input VerifyInput) (*ReturnView, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ReturnList, error)
	ListForSupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*ReturnList, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*ReturnList, error)
}

type service struct {
	tx         txRunner
	repo       Repository
	ordersRepo orders.Repository
	outbox     outboxPublisher
	opts       Options
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(tx txRunner, repo Repository, ordersRepo orders.Repository, publisher outboxPublisher, opts Options, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if opts.EligibleStatus == "" {
		opts.EligibleStatus = enums.OrderStatusPaid
	}
	if !opts.EligibleStatus.IsValid() {
		return nil, fmt.Errorf("invalid returnable status %q", opts.EligibleStatus)
	}
	if opts.FaultyChargeCents < 0 || opts.StandardChargeCents < 0 {
		return nil, fmt.Errorf("return charges must not be negative")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:         tx,
		repo:       repo,
		ordersRepo: ordersRepo,
		outbox:     publisher,
		opts:       opts,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) Request(ctx context.Context, userID, orderID uuid.UUID, input RequestInput) (*ReturnView, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	reason, err := enums.ParseReturnReason(strings.ToUpper(strings.TrimSpace(input.Reason)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return reason").
			WithDetails(map[string]any{"reason": input.Reason})
	}
	ctx = s.logg.WithOrderID(s.logg.WithUserID(ctx, userID.String()), orderID.String())

	isFaulty := reason.IsFaultClaim()
	charge := s.opts.StandardChargeCents
	if isFaulty {
		charge = s.opts.FaultyChargeCents
	}

	request := models.ReturnRequest{
		OrderID:           orderID,
		UserID:            userID,
		Reason:            reason,
		Description:       trimmed(input.Description),
		IsFaulty:          isFaulty,
		ReturnChargeCents: charge,
		Status:            enums.ReturnStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := orders.LoadOrder(ctx, s.ordersRepo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if order.Status != s.opts.EligibleStatus {
			return pkgerrors.New(pkgerrors.CodeNotEligible, fmt.Sprintf("only %s orders can be returned", s.opts.EligibleStatus)).
				WithDetails(map[string]any{"status": order.Status})
		}

		repo := s.repo.WithTx(tx)
		exists, err := repo.ExistsForOrder(ctx, orderID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check existing return")
		}
		if exists {
			return duplicateReturn(orderID)
		}
		if err := repo.Create(ctx, &request); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return duplicateReturn(orderID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create return")
		}

		return s.emit(ctx, tx, enums.EventReturnRequested, request.ID, &outbox.ActorRef{UserID: userID, Role: enums.RoleUser.String()},
			payloads.ReturnRequestedEvent{
				ReturnID:          request.ID,
				OrderID:           orderID,
				UserID:            userID,
				Reason:            reason,
				IsFaulty:          isFaulty,
				ReturnChargeCents: charge,
			})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "return_id", request.ID.String()), "return requested")
	view := ToView(request)
	return &view, nil
}

// Verify settles a PENDING request with the supplier's inspection result. The
// buyer's reason code only sets the charge; approval and the refund follow the
// supplier's decision. The refund is based on the unit price of the supplier's
// first item in the order and never goes below zero.
func (s *service) Verify(ctx context.Context, supplierID, returnID uuid.UUID, input VerifyInput) (*ReturnView, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing")
	}
	if input.IsFaulty == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "isFaulty is required").
			WithDetails(map[string]any{"field": "isFaulty"})
	}
	faulty := *input.IsFaulty
	ctx = s.logg.WithField(s.logg.WithSupplierID(ctx, supplierID.String()), "return_id", returnID.String())

	var request *models.ReturnRequest
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		request, err = s.load(ctx, repo, returnID)
		if err != nil {
			return err
		}
		order, err := orders.LoadOrder(ctx, s.ordersRepo.WithTx(tx), request.OrderID)
		if err != nil {
			return err
		}
		item := firstItemOf(order.Items, supplierID)
		if item == nil {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items from this supplier")
		}
		if request.Status != enums.ReturnStatusPending {
			return alreadyVerified(request)
		}

		status := enums.ReturnStatusRejected
		if faulty {
			status = enums.ReturnStatusApproved
		}
		refund := Refund(item.UnitPriceCents, request.ReturnChargeCents, faulty)
		verifiedAt := s.now().UTC()

		ok, err := repo.MarkVerified(ctx, request.ID, map[string]any{
			"status":              status,
			"faulty_verified":     faulty,
			"refund_amount_cents": refund,
			"supplier_id":         supplierID,
			"verified_at":         verifiedAt,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify return")
		}
		if !ok {
			return alreadyVerified(request)
		}
		request.Status = status
		request.FaultyVerified = &faulty
		request.RefundAmountCents = &refund
		request.SupplierID = &supplierID
		request.VerifiedAt = &verifiedAt

		sid := supplierID
		return s.emit(ctx, tx, enums.EventReturnVerified, request.ID, &outbox.ActorRef{UserID: order.UserID, SupplierID: &sid, Role: enums.RoleSupplier.String()},
			payloads.ReturnVerifiedEvent{
				ReturnID:          request.ID,
				OrderID:           request.OrderID,
				SupplierID:        supplierID,
				Status:            status,
				FaultyVerified:    faulty,
				RefundAmountCents: refund,
			})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "status", string(request.Status)), "return verified")
	view := ToView(*request)
	return &view, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ReturnList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.page(params, func() ([]models.ReturnRequest, error) {
		return s.repo.ListByUser(ctx, userID, params)
	})
}

func (s *service) ListForSupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*ReturnList, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "supplier context missing")
	}
	return s.page(params, func() ([]models.ReturnRequest, error) {
		return s.repo.ListBySupplier(ctx, supplierID, params)
	})
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*ReturnList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return status")
	}
	return s.page(params, func() ([]models.ReturnRequest, error) {
		return s.repo.List(ctx, filters, params)
	})
}

// Refund is the amount owed to the buyer for a verified return.
func Refund(itemPriceCents, chargeCents int64, faulty bool) int64 {
	if faulty {
		return itemPriceCents
	}
	if refund := itemPriceCents - chargeCents; refund > 0 {
		return refund
	}
	return 0
}

func (s *service) page(params pagination.Params, fetch func() ([]models.ReturnRequest, error)) (*ReturnList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := fetch()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list returns")
	}
	list := toList(rows, params)
	return &list, nil
}

func (s *service) load(ctx context.Context, repo Repository, id uuid.UUID) (*models.ReturnRequest, error) {
	request, err := repo.FindByID(ctx, id)
	if err != nil {
		if dbpkg.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load return")
	}
	return request, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, id uuid.UUID, actor *outbox.ActorRef, data any) error {
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateReturn,
		AggregateID:   id,
		Actor:         actor,
		Data:          data,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit "+string(eventType))
	}
	return nil
}

func firstItemOf(items []models.OrderItem, supplierID uuid.UUID) *models.OrderItem {
	for i := range items {
		if items[i].SupplierID == supplierID {
			return &items[i]
		}
	}
	return nil
}

func duplicateReturn(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeDuplicate, "a return already exists for this order").
		WithDetails(map[string]any{"orderId": orderID})
}

func alreadyVerified(request *models.ReturnRequest) error {
	return pkgerrors.New(pkgerrors.CodeAlreadyVerified, "return has already been verified").
		WithDetails(map[string]any{"status": request.Status})
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
