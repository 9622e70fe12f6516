package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltride/ebike-backend/api/routes"
	"github.com/voltride/ebike-backend/internal/cart"
	"github.com/voltride/ebike-backend/internal/catalog"
	"github.com/voltride/ebike-backend/internal/checkout"
	"github.com/voltride/ebike-backend/internal/inventory"
	"github.com/voltride/ebike-backend/internal/orders"
	"github.com/voltride/ebike-backend/internal/payments"
	"github.com/voltride/ebike-backend/internal/shipping"
	payoswebhook "github.com/voltride/ebike-backend/internal/webhooks/payos"
	"github.com/voltride/ebike-backend/pkg/config"
	"github.com/voltride/ebike-backend/pkg/db"
	"github.com/voltride/ebike-backend/pkg/enums"
	"github.com/voltride/ebike-backend/pkg/logger"
	"github.com/voltride/ebike-backend/pkg/maps"
	"github.com/voltride/ebike-backend/pkg/metrics"
	"github.com/voltride/ebike-backend/pkg/migrate"
	"github.com/voltride/ebike-backend/pkg/outbox"
	"github.com/voltride/ebike-backend/pkg/payos"
	"github.com/voltride/ebike-backend/pkg/redis"
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
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
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

	commerceMetrics := metrics.NewCommerceMetrics(prometheus.DefaultRegisterer)

	conn := dbClient.DB()
	catalogRepo := catalog.NewRepository(conn)
	ledger := inventory.NewLedger(conn)
	cartRepo := cart.NewRepository(conn)
	ordersRepo := orders.NewRepository(conn)
	paymentsRepo := payments.NewRepository(conn)
	outboxSvc := outbox.NewService(outbox.NewRepository(conn), logg)

	inventoryService, err := inventory.NewService(conn, ledger, dbClient)
	requireResource(logg, "inventory service", err)

	shippingService, err := shipping.NewService(shipping.NewRepository(conn), dbClient, shipping.FallbackRate{
		PerKm:           cfg.Shipping.FeePerKm,
		MinFee:          cfg.Shipping.MinFee,
		RoundDistanceUp: cfg.Shipping.RoundDistanceUp,
	})
	requireResource(logg, "shipping service", err)

	cartService, err := cart.NewService(cartRepo, catalogRepo, catalogRepo, ledger)
	requireResource(logg, "cart service", err)

	gateway, err := buildGateway(cfg.PayOS)
	requireResource(logg, "payos client", err)
	var sessions orders.SessionCloser
	if gateway == nil {
		logg.Warn(context.Background(), "payos credentials missing; payment links disabled")
	} else {
		sessions = payments.SessionCloser{Gateway: gateway}
	}

	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxSvc, ledger, paymentsRepo, sessions, logg)
	requireResource(logg, "orders service", err)

	paidStatus, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(cfg.Payments.PaidOrderStatus)))
	requireResource(logg, "paid order status", err)

	paymentsService, err := payments.NewService(paymentsRepo, ordersRepo, ordersService, gateway, dbClient, outboxSvc, logg, payments.Options{
		MinAmount:       cfg.PayOS.MinAmount,
		ReturnURL:       cfg.PayOS.ReturnURL,
		CancelURL:       cfg.PayOS.CancelURL,
		PaidOrderStatus: paidStatus,
	})
	requireResource(logg, "payments service", err)

	checkoutParams := checkout.ServiceParams{
		TxRunner:         dbClient,
		Carts:            cartRepo,
		Catalog:          catalogRepo,
		Stock:            ledger,
		Shipping:         shippingService,
		Orders:           ordersRepo,
		Payments:         paymentsRepo,
		Outbox:           outboxSvc,
		Metrics:          commerceMetrics,
		Logger:           logg,
		AutoPaymentLinks: cfg.Checkout.AutoCreatePaymentLinks,
	}
	if gateway != nil {
		checkoutParams.PaymentLinks = paymentsService
	}
	if strings.TrimSpace(cfg.GoogleMaps.APIKey) != "" {
		mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey,
			maps.WithRegion(cfg.GoogleMaps.Region),
			maps.WithTimeout(cfg.GoogleMaps.GeocodeTimeout),
		)
		requireResource(logg, "google maps client", err)
		checkoutParams.Geocoder = mapsClient
	}
	checkoutService, err := checkout.NewService(checkoutParams)
	requireResource(logg, "checkout service", err)

	svcs := routes.Services{
		Cart:      cartService,
		Checkout:  checkoutService,
		Orders:    ordersService,
		Payments:  paymentsService,
		Shipping:  shippingService,
		Inventory: inventoryService,
		Catalog:   catalogRepo,
	}
	if cfg.PayOS.Enabled() {
		guard, err := payoswebhook.NewIdempotencyGuard(redisClient, cfg.Payments.WebhookGuardTTL, "payos_webhook")
		requireResource(logg, "payos webhook guard", err)
		webhookService, err := payoswebhook.NewService(payoswebhook.ServiceParams{
			Payments:         paymentsService,
			Audit:            payoswebhook.NewAuditRepository(conn),
			Guard:            guard,
			Metrics:          commerceMetrics,
			Logger:           logg,
			ChecksumKey:      cfg.PayOS.ChecksumKey,
			AllowSandboxTest: cfg.FeatureFlags.AllowSandboxWebhook,
		})
		requireResource(logg, "payos webhook service", err)
		svcs.PayOS = webhookService
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, dbClient, redisClient, prometheus.DefaultGatherer, svcs),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}

// buildGateway returns nil when PayOS is not configured.
func buildGateway(cfg config.PayOSConfig) (payments.Gateway, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	client, err := payos.NewClient(payos.Credentials{
		ClientID:    cfg.ClientID,
		APIKey:      cfg.APIKey,
		ChecksumKey: cfg.ChecksumKey,
	}, payos.WithBaseURL(cfg.BaseURL), payos.WithTimeout(cfg.Timeout), payos.WithResponseVerification(true))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func requireResource(logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to build "+resource, err)
	os.Exit(1)
}
