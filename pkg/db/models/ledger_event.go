package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// SupplierLedgerEvent records one immutable balance delta applied to a supplier.
type SupplierLedgerEvent struct {
	ID                   uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SupplierID           uuid.UUID             `gorm:"column:supplier_id;type:uuid;not null"`
	OrderID              *uuid.UUID            `gorm:"column:order_id;type:uuid"`
	PayoutID             *uuid.UUID            `gorm:"column:payout_id;type:uuid"`
	Type                 enums.LedgerEventType `gorm:"column:type;type:ledger_event_type_enum;not null"`
	SalesDeltaCents      int64                 `gorm:"column:sales_delta_cents;not null;default:0"`
	CommissionDeltaCents int64                 `gorm:"column:commission_delta_cents;not null;default:0"`
	PayoutDeltaCents     int64                 `gorm:"column:payout_delta_cents;not null;default:0"`
	CreatedAt            time.Time             `gorm:"column:created_at;autoCreateTime"`
}

func (SupplierLedgerEvent) TableName() string {
	return "supplier_ledger_events"
}

func (e *SupplierLedgerEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
