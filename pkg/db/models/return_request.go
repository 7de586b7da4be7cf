package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ReturnRequest is the single return allowed per order.
type ReturnRequest struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID          `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	UserID            uuid.UUID          `gorm:"column:user_id;type:uuid;not null"`
	SupplierID        *uuid.UUID         `gorm:"column:supplier_id;type:uuid"`
	Reason            enums.ReturnReason `gorm:"column:reason;type:return_reason_enum;not null"`
	Description       *string            `gorm:"column:description"`
	IsFaulty          bool               `gorm:"column:is_faulty;not null"`
	ReturnChargeCents int64              `gorm:"column:return_charge_cents;not null"`
	Status            enums.ReturnStatus `gorm:"column:status;type:return_status_enum;not null;default:'PENDING'"`
	FaultyVerified    *bool              `gorm:"column:faulty_verified"`
	RefundAmountCents *int64             `gorm:"column:refund_amount_cents"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
	VerifiedAt        *time.Time         `gorm:"column:verified_at"`
}

func (ReturnRequest) TableName() string {
	return "returns"
}

func (r *ReturnRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
