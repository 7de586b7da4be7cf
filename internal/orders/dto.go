package orders

import (
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
)

// ItemView is an order line as returned to clients.
type ItemView struct {
	ID              uuid.UUID `json:"id"`
	ProductID       uuid.UUID `json:"productId"`
	SupplierID      uuid.UUID `json:"supplierId"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unitPriceCents"`
	Size            *string   `json:"size,omitempty"`
	CommissionRate  string    `json:"commissionRate"`
	CommissionCents int64     `json:"commissionCents"`
	LineTotalCents  int64     `json:"lineTotalCents"`
}

// OrderView is the client-facing shape of an order.
type OrderView struct {
	ID                 uuid.UUID         `json:"id"`
	UserID             uuid.UUID         `json:"userId"`
	Status             enums.OrderStatus `json:"status"`
	SubtotalCents      int64             `json:"subtotalCents"`
	ShippingCents      int64             `json:"shippingCents"`
	TotalCents         int64             `json:"totalCents"`
	CommissionCents    int64             `json:"commissionCents"`
	Currency           string            `json:"currency"`
	GatewayOrderRef    string            `json:"gatewayOrderRef"`
	GatewayPaymentRef  *string           `json:"gatewayPaymentRef,omitempty"`
	TrackingNumber     *string           `json:"trackingNumber,omitempty"`
	Carrier            *string           `json:"carrier,omitempty"`
	CancellationReason *string           `json:"cancellationReason,omitempty"`
	Items              []ItemView        `json:"items"`
	CreatedAt          time.Time         `json:"createdAt"`
	PaidAt             *time.Time        `json:"paidAt,omitempty"`
	ShippedAt          *time.Time        `json:"shippedAt,omitempty"`
	DeliveredAt        *time.Time        `json:"deliveredAt,omitempty"`
	CancelledAt        *time.Time        `json:"cancelledAt,omitempty"`
}

// OrderList is a page of orders.
type OrderList = pagination.Page[OrderView]

// ToView maps the persisted order onto its client view.
func ToView(order models.Order) OrderView {
	items := make([]ItemView, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ItemView{
			ID:              item.ID,
			ProductID:       item.ProductID,
			SupplierID:      item.SupplierID,
			Quantity:        item.Quantity,
			UnitPriceCents:  item.UnitPriceCents,
			Size:            item.Size,
			CommissionRate:  item.CommissionRate.StringFixed(2),
			CommissionCents: item.CommissionCents,
			LineTotalCents:  item.LineTotalCents(),
		})
	}
	return OrderView{
		ID:                 order.ID,
		UserID:             order.UserID,
		Status:             order.Status,
		SubtotalCents:      order.SubtotalCents,
		ShippingCents:      order.ShippingCents,
		TotalCents:         order.TotalCents,
		CommissionCents:    order.CommissionCents,
		Currency:           order.Currency,
		GatewayOrderRef:    order.GatewayOrderRef,
		GatewayPaymentRef:  order.GatewayPaymentRef,
		TrackingNumber:     order.TrackingNumber,
		Carrier:            order.Carrier,
		CancellationReason: order.CancellationReason,
		Items:              items,
		CreatedAt:          order.CreatedAt,
		PaidAt:             order.PaidAt,
		ShippedAt:          order.ShippedAt,
		DeliveredAt:        order.DeliveredAt,
		CancelledAt:        order.CancelledAt,
	}
}

func toList(rows []models.Order, params pagination.Params) OrderList {
	page := pagination.Build(rows, params, func(o models.Order) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	views := make([]OrderView, 0, len(page.Items))
	for _, order := range page.Items {
		views = append(views, ToView(order))
	}
	return OrderList{Items: views, NextCursor: page.NextCursor}
}
