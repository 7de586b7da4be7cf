package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/commission"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	dbpkg "github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/gateway"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Result is what the client needs to open the gateway's payment flow.
type Result struct {
	OrderID         uuid.UUID `json:"orderId"`
	GatewayOrderRef string    `json:"gatewayOrderRef"`
	AmountCents     int64     `json:"amount"`
	Currency        string    `json:"currency"`
	TotalCents      int64     `json:"totalCents"`
	CommissionCents int64     `json:"commissionCents"`
}

// Options carries the commercial settings applied to every checkout.
type Options struct {
	ShippingChargeCents int64
	Currency            string
}

// Service turns a cart into a PENDING order backed by a gateway transaction.
type Service interface {
	Checkout(ctx context.Context, userID uuid.UUID) (*Result, error)
}

type service struct {
	tx         txRunner
	cart       cart.Service
	ordersRepo orders.Repository
	stock      product.Stock
	gateway    gateway.Creator
	outbox     outboxPublisher
	calc       commission.Calculator
	opts       Options
	logg       *logger.Logger
	now        func() time.Time
}

// NewService builds the checkout service.
func NewService(
	tx txRunner,
	cartSvc cart.Service,
	ordersRepo orders.Repository,
	stock product.Stock,
	gw gateway.Creator,
	publisher outboxPublisher,
	calc commission.Calculator,
	opts Options,
	logg *logger.Logger,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartSvc == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock service required")
	}
	if gw == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if opts.ShippingChargeCents < 0 {
		return nil, fmt.Errorf("shipping charge must not be negative")
	}
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = "INR"
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:         tx,
		cart:       cartSvc,
		ordersRepo: ordersRepo,
		stock:      stock,
		gateway:    gw,
		outbox:     publisher,
		calc:       calc,
		opts:       opts,
		logg:       logg,
		now:        time.Now,
	}, nil
}

func (s *service) Checkout(ctx context.Context, userID uuid.UUID) (*Result, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	ctx = s.logg.WithUserID(ctx, userID.String())

	lines, err := s.cart.Lines(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	order, err := s.buildOrder(userID, lines)
	if err != nil {
		return nil, err
	}

	receipt := fmt.Sprintf("receipt_order_%d", s.now().UnixMilli())
	txn, err := s.gateway.CreateTransaction(ctx, order.TotalCents, order.Currency, receipt)
	if err != nil {
		s.logg.Error(ctx, "gateway transaction failed", err)
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment transaction")
	}
	order.GatewayOrderRef = txn.ID

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.persist(ctx, tx, order)
	}); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderID(ctx, order.ID.String()), "order created")

	return &Result{
		OrderID:         order.ID,
		GatewayOrderRef: order.GatewayOrderRef,
		AmountCents:     order.TotalCents,
		Currency:        order.Currency,
		TotalCents:      order.TotalCents,
		CommissionCents: order.CommissionCents,
	}, nil
}

// buildOrder freezes prices and commission for every cart line. Lines whose stock is
// already short fail here, before any money is requested from the gateway.
func (s *service) buildOrder(userID uuid.UUID, lines []cart.Line) (*models.Order, error) {
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        enums.OrderStatusPending,
		ShippingCents: s.opts.ShippingChargeCents,
		Currency:      strings.ToUpper(s.opts.Currency),
		Items:         make([]models.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart quantity must be positive").
				WithDetails(map[string]any{"productId": line.ProductID})
		}
		if line.StockQuantity < line.Quantity {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "insufficient stock").
				WithDetails(map[string]any{"productId": line.ProductID, "requested": line.Quantity, "available": line.StockQuantity})
		}
		split, err := s.calc.Split(line.UnitPriceCents, line.Quantity, line.CommissionRate)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cart line")
		}
		order.Items = append(order.Items, models.OrderItem{
			OrderID:         order.ID,
			ProductID:       line.ProductID,
			SupplierID:      line.SupplierID,
			Quantity:        line.Quantity,
			UnitPriceCents:  line.UnitPriceCents,
			Size:            line.Size,
			CommissionRate:  split.Rate,
			CommissionCents: split.CommissionCents,
		})
		order.SubtotalCents += split.LineTotalCents
		order.CommissionCents += split.CommissionCents
	}
	order.TotalCents = order.SubtotalCents + order.ShippingCents
	return order, nil
}

func (s *service) persist(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if err := s.ordersRepo.WithTx(tx).Create(ctx, order); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "gateway order reference already used")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}

	stock := s.stock.WithTx(tx)
	for _, item := range order.Items {
		if err := stock.Reserve(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: order.UserID, Role: enums.RoleUser.String()},
		Data: payloads.OrderCreatedEvent{
			OrderID:         order.ID,
			UserID:          order.UserID,
			SupplierIDs:     supplierIDs(order.Items),
			GatewayOrderRef: order.GatewayOrderRef,
			TotalCents:      order.TotalCents,
			CommissionCents: order.CommissionCents,
			Currency:        order.Currency,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit order created")
	}
	return nil
}

func supplierIDs(items []models.OrderItem) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.SupplierID]; ok {
			continue
		}
		seen[item.SupplierID] = struct{}{}
		ids = append(ids, item.SupplierID)
	}
	return ids
}
