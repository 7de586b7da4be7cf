package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	ordercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	internalorders "github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payouts"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const maxShipFieldLength = 128

// SupplierOrders lists orders carrying at least one of the caller's items.
func SupplierOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		supplierID, err := middleware.RequireSupplierID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := ordercontrollers.ParseListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.ListForSupplier(r.Context(), supplierID, filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ShipOrder records tracking details and moves a PAID order to SHIPPED.
func ShipOrder(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		supplierID, orderID, err := supplierOrderParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload fulfillment.ShipInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		payload.TrackingNumber = validators.SanitizeString(payload.TrackingNumber, maxShipFieldLength)
		payload.Carrier = validators.SanitizeString(payload.Carrier, maxShipFieldLength)

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		view, err := svc.Ship(ctx, supplierID, orderID, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// DeliverOrder moves a SHIPPED order to DELIVERED and accrues the caller's payout.
func DeliverOrder(svc fulfillment.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "fulfillment service unavailable"))
			return
		}

		supplierID, orderID, err := supplierOrderParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		result, err := svc.Deliver(ctx, supplierID, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SupplierBalance returns the caller's running totals.
func SupplierBalance(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		supplierID, err := middleware.RequireSupplierID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// SupplierPayouts lists payouts issued to the caller.
func SupplierPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		supplierID, err := middleware.RequireSupplierID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), payouts.ListFilters{SupplierID: &supplierID}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type ledgerEventResponse struct {
	ID                   uuid.UUID             `json:"id"`
	Type                 enums.LedgerEventType `json:"type"`
	OrderID              *uuid.UUID            `json:"orderId,omitempty"`
	PayoutID             *uuid.UUID            `json:"payoutId,omitempty"`
	SalesDeltaCents      int64                 `json:"salesDeltaCents"`
	CommissionDeltaCents int64                 `json:"commissionDeltaCents"`
	PayoutDeltaCents     int64                 `json:"payoutDeltaCents"`
	CreatedAt            time.Time             `json:"createdAt"`
}

// SupplierLedger returns the caller's most recent balance movements.
func SupplierLedger(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		supplierID, err := middleware.RequireSupplierID(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		events, err := svc.History(r.Context(), supplierID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newLedgerEventResponses(events))
	}
}

func newLedgerEventResponses(events []models.SupplierLedgerEvent) []ledgerEventResponse {
	out := make([]ledgerEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, ledgerEventResponse{
			ID:                   e.ID,
			Type:                 e.Type,
			OrderID:              e.OrderID,
			PayoutID:             e.PayoutID,
			SalesDeltaCents:      e.SalesDeltaCents,
			CommissionDeltaCents: e.CommissionDeltaCents,
			PayoutDeltaCents:     e.PayoutDeltaCents,
			CreatedAt:            e.CreatedAt,
		})
	}
	return out
}

func supplierOrderParams(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	supplierID, err := middleware.RequireSupplierID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	orderID, err := validators.ParseUUIDParam(r, "orderId")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return supplierID, orderID, nil
}
