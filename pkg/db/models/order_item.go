package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem is one (order, product, supplier) line with its price frozen at purchase.
type OrderItem struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID       uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	SupplierID      uuid.UUID       `gorm:"column:supplier_id;type:uuid;not null;index"`
	Quantity        int             `gorm:"column:quantity;not null"`
	UnitPriceCents  int64           `gorm:"column:unit_price_cents;not null"`
	Size            *string         `gorm:"column:size"`
	CommissionRate  decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	CommissionCents int64           `gorm:"column:commission_cents;not null"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}

// LineTotalCents is unit price times quantity.
func (i OrderItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.Quantity)
}

// NetCents is what the supplier earns on the line once the platform commission is taken.
func (i OrderItem) NetCents() int64 {
	return i.LineTotalCents() - i.CommissionCents
}
