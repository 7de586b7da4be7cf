package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/bazaar-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/cancellation"
	checkoutsvc "github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/payouts"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

// Cache is the Redis surface the HTTP layer needs: replay records for
// Idempotency-Key, the webhook limiter and the readiness ping.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfValue(ctx context.Context, key, value string) (bool, error)
	IdempotencyKey(scope, id string) string
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Services bundles the domain services behind the HTTP surface.
type Services struct {
	Checkout     checkoutsvc.Service
	Payments     payments.Service
	Orders       orders.Service
	Cancellation cancellation.Service
	Fulfillment  fulfillment.Service
	Returns      returns.Service
	Payouts      payouts.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	cache Cache,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	readiness := map[string]controllers.Pinger{}
	if dbP != nil {
		readiness["postgres"] = dbP
	}
	if cache != nil {
		readiness["redis"] = cache
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Handle("/metrics", promhttp.Handler())

	webhookPolicy := middleware.RateLimitPolicy{
		Name:   "payments-webhook",
		Limit:  cfg.Eventing.WebhookRateLimit,
		Window: cfg.Eventing.WebhookRateWindow,
	}
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, cache, logg)).
			Post("/payments", webhookcontrollers.PaymentWebhook(svcs.Payments, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(cache, cfg.Eventing.RequestIdempotencyTTL, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleUser))

			r.Post("/checkout", controllers.Checkout(svcs.Checkout, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Post("/verify", controllers.VerifyPayment(svcs.Payments, logg))
				r.Get("/", ordercontrollers.List(svcs.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(svcs.Orders, logg))
				r.Post("/{orderId}/cancel", ordercontrollers.Cancel(svcs.Cancellation, logg))
				r.Post("/{orderId}/returns", ordercontrollers.RequestReturn(svcs.Returns, logg))
			})
			r.Get("/returns", controllers.UserReturns(svcs.Returns, logg))
		})

		r.Route("/supplier", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleSupplier))

			r.Get("/orders", controllers.SupplierOrders(svcs.Orders, logg))
			r.Post("/orders/{orderId}/ship", controllers.ShipOrder(svcs.Fulfillment, logg))
			r.Post("/orders/{orderId}/deliver", controllers.DeliverOrder(svcs.Fulfillment, logg))
			r.Get("/returns", controllers.SupplierReturns(svcs.Returns, logg))
			r.Post("/returns/{returnId}/verify", controllers.VerifyReturn(svcs.Returns, logg))
			r.Get("/balance", controllers.SupplierBalance(svcs.Payouts, logg))
			r.Get("/ledger", controllers.SupplierLedger(svcs.Payouts, logg))
			r.Get("/payouts", controllers.SupplierPayouts(svcs.Payouts, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.RoleAdmin))

			r.Get("/returns", controllers.AdminReturns(svcs.Returns, logg))
			r.Get("/suppliers/{supplierId}/balance", controllers.AdminSupplierBalance(svcs.Payouts, logg))
			r.Patch("/suppliers/{supplierId}/approve", controllers.ApproveSupplier(svcs.Payouts, logg))
			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", controllers.AdminPayouts(svcs.Payouts, logg))
				r.Post("/", controllers.IssuePayout(svcs.Payouts, logg))
				r.Patch("/{payoutId}/status", controllers.UpdatePayoutStatus(svcs.Payouts, logg))
			})
		})
	})

	return r
}
