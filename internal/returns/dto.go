package returns

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// RequestInput is the body of a return request.
type RequestInput struct {
	Reason      string  `json:"reason" validate:"required"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// VerifyInput is the supplier's inspection result.
type VerifyInput struct {
	IsFaulty *bool `json:"isFaulty" validate:"required"`
}

type ReturnView struct {
	ID                uuid.UUID          `json:"id"`
	OrderID           uuid.UUID          `json:"orderId"`
	UserID            uuid.UUID          `json:"userId"`
	SupplierID        *uuid.UUID         `json:"supplierId,omitempty"`
	Reason            enums.ReturnReason `json:"reason"`
	Description       *string            `json:"description,omitempty"`
	IsFaulty          bool               `json:"isFaulty"`
	ReturnChargeCents int64              `json:"returnChargeCents"`
	Status            enums.ReturnStatus `json:"status"`
	FaultyVerified    *bool              `json:"faultyVerified,omitempty"`
	RefundAmountCents *int64             `json:"refundAmountCents,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	VerifiedAt        *time.Time         `json:"verifiedAt,omitempty"`
}

type ReturnList = pagination.Page[ReturnView]

func ToView(r models.ReturnRequest) ReturnView {
	return ReturnView{
		ID:                r.ID,
		OrderID:           r.OrderID,
		UserID:            r.UserID,
		SupplierID:        r.SupplierID,
		Reason:            r.Reason,
		Description:       r.Description,
		IsFaulty:          r.IsFaulty,
		ReturnChargeCents: r.ReturnChargeCents,
		Status:            r.Status,
		FaultyVerified:    r.FaultyVerified,
		RefundAmountCents: r.RefundAmountCents,
		CreatedAt:         r.CreatedAt,
		VerifiedAt:        r.VerifiedAt,
	}
}

func toList(rows []models.ReturnRequest, params pagination.Params) ReturnList {
	page := pagination.Build(rows, params, func(r models.ReturnRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	views := make([]ReturnView, 0, len(page.Items))
	for _, row := range page.Items {
		views = append(views, ToView(row))
	}
	return ReturnList{Items: views, NextCursor: page.NextCursor}
}
