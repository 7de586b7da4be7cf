package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/api/routes"
	"github.com/angelmondragon/bazaar-backend/internal/cancellation"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/checkout"
	"github.com/angelmondragon/bazaar-backend/internal/commission"
	"github.com/angelmondragon/bazaar-backend/internal/fulfillment"
	"github.com/angelmondragon/bazaar-backend/internal/ledger"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	"github.com/angelmondragon/bazaar-backend/internal/payments"
	"github.com/angelmondragon/bazaar-backend/internal/payouts"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/returns"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/gateway"
	"github.com/angelmondragon/bazaar-backend/pkg/instance"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/migrate"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bazaar-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Env:         cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	services, err := buildServices(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (routes.Services, error) {
	conn := dbClient.DB()
	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)

	gw, err := gateway.NewClient(cfg.Gateway.KeyID, cfg.Gateway.KeySecret,
		gateway.WithBaseURL(cfg.Gateway.BaseURL),
		gateway.WithTimeout(cfg.Gateway.Timeout),
	)
	if err != nil {
		return routes.Services{}, err
	}

	defaultRate, err := decimal.NewFromString(strings.TrimSpace(cfg.Marketplace.DefaultCommissionRate))
	if err != nil {
		return routes.Services{}, err
	}

	ordersRepo := orders.NewRepository(conn)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	cartSvc, err := cart.NewService(cart.NewRepository(conn), logg)
	if err != nil {
		return routes.Services{}, err
	}
	stock, err := product.NewStock(product.NewRepository(conn), logg)
	if err != nil {
		return routes.Services{}, err
	}
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	if err != nil {
		return routes.Services{}, err
	}
	ordersSvc, err := orders.NewService(ordersRepo)
	if err != nil {
		return routes.Services{}, err
	}
	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL)
	if err != nil {
		return routes.Services{}, err
	}

	checkoutSvc, err := checkout.NewService(
		dbClient,
		cartSvc,
		ordersRepo,
		stock,
		gw,
		emitter,
		commission.NewCalculator(defaultRate),
		checkout.Options{
			ShippingChargeCents: cfg.Marketplace.ShippingChargeCents,
			Currency:            cfg.Gateway.Currency,
		},
		logg,
	)
	if err != nil {
		return routes.Services{}, err
	}
	paymentsSvc, err := payments.NewService(dbClient, ordersRepo, ledgerSvc, cartSvc, emitter, guard, gw.KeySecret(), orderMetrics, logg)
	if err != nil {
		return routes.Services{}, err
	}
	fulfillmentSvc, err := fulfillment.NewService(dbClient, ordersRepo, ledgerSvc, emitter, orderMetrics, logg)
	if err != nil {
		return routes.Services{}, err
	}
	cancellationSvc, err := cancellation.NewService(dbClient, ordersRepo, stock, ledgerSvc, emitter, orderMetrics, logg)
	if err != nil {
		return routes.Services{}, err
	}
	eligible, err := enums.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(cfg.Marketplace.ReturnEligibleStatus)))
	if err != nil {
		return routes.Services{}, err
	}
	returnsSvc, err := returns.NewService(dbClient, returns.NewRepository(conn), ordersRepo, emitter, returns.Options{
		EligibleStatus:      eligible,
		FaultyChargeCents:   cfg.Marketplace.FaultyReturnChargeCents,
		StandardChargeCents: cfg.Marketplace.StandardReturnChargeCents,
	}, logg)
	if err != nil {
		return routes.Services{}, err
	}
	payoutsSvc, err := payouts.NewService(dbClient, payouts.NewRepository(conn), ledgerSvc, emitter, orderMetrics, logg)
	if err != nil {
		return routes.Services{}, err
	}

	return routes.Services{
		Checkout:     checkoutSvc,
		Payments:     paymentsSvc,
		Orders:       ordersSvc,
		Cancellation: cancellationSvc,
		Fulfillment:  fulfillmentSvc,
		Returns:      returnsSvc,
		Payouts:      payoutsSvc,
	}, nil
}
