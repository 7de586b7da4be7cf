package webhooks

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

const (
	signatureHeader = "X-Gateway-Signature"
	maxPayloadBytes = 64 << 10
)

type paymentWebhookPayload struct {
	GatewayOrderRef   string `json:"gatewayOrderRef"`
	GatewayPaymentRef string `json:"gatewayPaymentRef"`
	Signature         string `json:"signature"`
}

// PaymentWebhook handles gateway payment callbacks. The signature may arrive in the
// body or in the X-Gateway-Signature header. Redeliveries return 200.
func PaymentWebhook(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var payload paymentWebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload"))
			return
		}
		if payload.Signature == "" {
			payload.Signature = r.Header.Get(signatureHeader)
		}

		input := payments.ConfirmInput{
			GatewayOrderRef:   payload.GatewayOrderRef,
			GatewayPaymentRef: payload.GatewayPaymentRef,
			Signature:         payload.Signature,
		}

		confirmation, err := svc.Confirm(ctx, input, nil)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil && confirmation.AlreadyProcessed {
			logg.Info(ctx, "payment webhook redelivered")
		}
		responses.WriteSuccess(w, confirmation)
	}
}
