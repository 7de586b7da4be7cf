package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Payout is a disbursement instruction. The supplier balance was already debited when
// the row was created; status changes carry no balance effect.
type Payout struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SupplierID  uuid.UUID          `gorm:"column:supplier_id;type:uuid;not null;index"`
	AmountCents int64              `gorm:"column:amount_cents;not null"`
	Description *string            `gorm:"column:description"`
	Status      enums.PayoutStatus `gorm:"column:status;type:payout_status_enum;not null;default:'PENDING'"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Payout) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
