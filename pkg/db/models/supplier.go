package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Supplier is an onboarded seller and the holder of the running balances. Balance
// columns are only ever changed through atomic deltas in the ledger store.
type Supplier struct {
	ID                   uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID       `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Name                 string          `gorm:"column:name;not null"`
	IsApproved           bool            `gorm:"column:is_approved;not null;default:false"`
	CommissionRate       decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,2);not null;default:10"`
	TotalSalesCents      int64           `gorm:"column:total_sales_cents;not null;default:0"`
	TotalCommissionCents int64           `gorm:"column:total_commission_cents;not null;default:0"`
	PendingPayoutCents   int64           `gorm:"column:pending_payout_cents;not null;default:0"`
	LastPayoutAt         *time.Time      `gorm:"column:last_payout_at"`
	CreatedAt            time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Supplier) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
