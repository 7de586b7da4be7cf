package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Order is one checkout attempt. Rows are never deleted.
type Order struct {
	ID                 uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	Status             enums.OrderStatus `gorm:"column:status;type:order_status_enum;not null;default:'PENDING'"`
	SubtotalCents      int64             `gorm:"column:subtotal_cents;not null"`
	ShippingCents      int64             `gorm:"column:shipping_cents;not null"`
	TotalCents         int64             `gorm:"column:total_cents;not null"`
	CommissionCents    int64             `gorm:"column:commission_cents;not null"`
	Currency           string            `gorm:"column:currency;not null"`
	GatewayOrderRef    string            `gorm:"column:gateway_order_ref;not null;uniqueIndex"`
	GatewayPaymentRef  *string           `gorm:"column:gateway_payment_ref"`
	TrackingNumber     *string           `gorm:"column:tracking_number"`
	Carrier            *string           `gorm:"column:carrier"`
	CancellationReason *string           `gorm:"column:cancellation_reason"`
	Items              []OrderItem       `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time         `gorm:"column:updated_at;autoUpdateTime"`
	PaidAt             *time.Time        `gorm:"column:paid_at"`
	ShippedAt          *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt        *time.Time        `gorm:"column:delivered_at"`
	CancelledAt        *time.Time        `gorm:"column:cancelled_at"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

// HasSupplier reports whether any item of the order belongs to supplierID.
func (o *Order) HasSupplier(supplierID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.SupplierID == supplierID {
			return true
		}
	}
	return false
}
