package payouts

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// IssueInput is the admin request to disburse part of a supplier's pending payout.
type IssueInput struct {
	SupplierID  uuid.UUID `json:"supplierId" validate:"required"`
	AmountCents int64     `json:"amountCents" validate:"gt=0"`
	Description *string   `json:"description,omitempty" validate:"omitempty,max=500"`
}

type UpdateStatusInput struct {
	Status string `json:"status" validate:"required"`
}

type PayoutView struct {
	ID          uuid.UUID          `json:"id"`
	SupplierID  uuid.UUID          `json:"supplierId"`
	AmountCents int64              `json:"amountCents"`
	Description *string            `json:"description,omitempty"`
	Status      enums.PayoutStatus `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

type PayoutList = pagination.Page[PayoutView]

func ToView(p models.Payout) PayoutView {
	return PayoutView{
		ID:          p.ID,
		SupplierID:  p.SupplierID,
		AmountCents: p.AmountCents,
		Description: p.Description,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toList(rows []models.Payout, params pagination.Params) PayoutList {
	page := pagination.Build(rows, params, func(p models.Payout) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	views := make([]PayoutView, 0, len(page.Items))
	for _, row := range page.Items {
		views = append(views, ToView(row))
	}
	return PayoutList{Items: views, NextCursor: page.NextCursor}
}
