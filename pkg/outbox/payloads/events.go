package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once checkout has persisted a PENDING order.
type OrderCreatedEvent struct {
	OrderID         uuid.UUID   `json:"order_id"`
	UserID          uuid.UUID   `json:"user_id"`
	SupplierIDs     []uuid.UUID `json:"supplier_ids"`
	GatewayOrderRef string      `json:"gateway_order_ref"`
	TotalCents      int64       `json:"total_cents"`
	CommissionCents int64       `json:"commission_cents"`
	Currency        string      `json:"currency"`
}

// SupplierCredit is one supplier's share of a paid order.
type SupplierCredit struct {
	SupplierID      uuid.UUID `json:"supplier_id"`
	SalesCents      int64     `json:"sales_cents"`
	CommissionCents int64     `json:"commission_cents"`
}

// OrderPaidEvent carries the per-supplier credits applied at confirmation.
type OrderPaidEvent struct {
	OrderID           uuid.UUID        `json:"order_id"`
	UserID            uuid.UUID        `json:"user_id"`
	GatewayPaymentRef string           `json:"gateway_payment_ref"`
	TotalCents        int64            `json:"total_cents"`
	Credits           []SupplierCredit `json:"credits"`
	PaidAt            time.Time        `json:"paid_at"`
}

type OrderShippedEvent struct {
	OrderID        uuid.UUID `json:"order_id"`
	UserID         uuid.UUID `json:"user_id"`
	SupplierID     uuid.UUID `json:"supplier_id"`
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	ShippedAt      time.Time `json:"shipped_at"`
}

// OrderDeliveredEvent records the payout accrued to the delivering supplier.
type OrderDeliveredEvent struct {
	OrderID      uuid.UUID `json:"order_id"`
	UserID       uuid.UUID `json:"user_id"`
	SupplierID   uuid.UUID `json:"supplier_id"`
	AccruedCents int64     `json:"accrued_cents"`
	DeliveredAt  time.Time `json:"delivered_at"`
}

// OrderCancelledEvent covers user cancellations and expiry of stale PENDING orders.
type OrderCancelledEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	UserID         uuid.UUID         `json:"user_id"`
	PreviousStatus enums.OrderStatus `json:"previous_status"`
	Reason         string            `json:"reason"`
	SalesReversed  bool              `json:"sales_reversed"`
	CancelledAt    time.Time         `json:"cancelled_at"`
}

type ReturnRequestedEvent struct {
	ReturnID          uuid.UUID          `json:"return_id"`
	OrderID           uuid.UUID          `json:"order_id"`
	UserID            uuid.UUID          `json:"user_id"`
	Reason            enums.ReturnReason `json:"reason"`
	IsFaulty          bool               `json:"is_faulty"`
	ReturnChargeCents int64              `json:"return_charge_cents"`
}

type ReturnVerifiedEvent struct {
	ReturnID          uuid.UUID          `json:"return_id"`
	OrderID           uuid.UUID          `json:"order_id"`
	SupplierID        uuid.UUID          `json:"supplier_id"`
	Status            enums.ReturnStatus `json:"status"`
	FaultyVerified    bool               `json:"faulty_verified"`
	RefundAmountCents int64              `json:"refund_amount_cents"`
}

type PayoutIssuedEvent struct {
	PayoutID    uuid.UUID `json:"payout_id"`
	SupplierID  uuid.UUID `json:"supplier_id"`
	AmountCents int64     `json:"amount_cents"`
	IssuedAt    time.Time `json:"issued_at"`
}

type PayoutStatusUpdatedEvent struct {
	PayoutID   uuid.UUID          `json:"payout_id"`
	SupplierID uuid.UUID          `json:"supplier_id"`
	Status     enums.PayoutStatus `json:"status"`
}
