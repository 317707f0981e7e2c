package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/farmcart/farmcart-backend/api/routes"
	"github.com/farmcart/farmcart-backend/internal/delivery"
	"github.com/farmcart/farmcart-backend/internal/inventory"
	"github.com/farmcart/farmcart-backend/internal/orders"
	"github.com/farmcart/farmcart-backend/internal/payments"
	"github.com/farmcart/farmcart-backend/internal/refunds"
	"github.com/farmcart/farmcart-backend/internal/settlement"
	"github.com/farmcart/farmcart-backend/pkg/config"
	"github.com/farmcart/farmcart-backend/pkg/db"
	"github.com/farmcart/farmcart-backend/pkg/identity"
	"github.com/farmcart/farmcart-backend/pkg/kakaopay"
	"github.com/farmcart/farmcart-backend/pkg/logger"
	"github.com/farmcart/farmcart-backend/pkg/metrics"
	"github.com/farmcart/farmcart-backend/pkg/migrate"
	"github.com/farmcart/farmcart-backend/pkg/naverpay"
	"github.com/farmcart/farmcart-backend/pkg/outbox"
	"github.com/farmcart/farmcart-backend/pkg/redis"
	"github.com/farmcart/farmcart-backend/pkg/tosspay"
	"github.com/farmcart/farmcart-backend/pkg/tracking"
)

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

	resolver, err := identity.NewJWTResolver(cfg.Identity)
	if err != nil {
		logg.Error(context.Background(), "failed to create identity resolver", err)
		os.Exit(1)
	}

	promRegistry := prometheus.NewRegistry()
	providerMetrics := metrics.NewProviderMetrics(promRegistry)
	settlementMetrics := metrics.NewSettlementMetrics(promRegistry)

	registry, err := payments.NewRegistry(buildProviders(cfg, logg)...)
	if err != nil {
		logg.Error(context.Background(), "failed to build payment provider registry", err)
		os.Exit(1)
	}

	tracker, err := tracking.NewClient(cfg.Tracking.APIKey,
		tracking.WithBaseURL(cfg.Tracking.BaseURL),
		tracking.WithTimeout(cfg.Providers.HTTPTimeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking client", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	sessionsRepo := payments.NewRepository(dbClient.DB())
	shipmentsRepo := delivery.NewRepository(dbClient.DB())
	inventorySvc := inventory.NewService()
	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ordersSvc, err := orders.NewService(ordersRepo, dbClient, outboxSvc, sessionsRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	settlementSvc, err := settlement.NewService(
		ordersRepo, ordersSvc, sessionsRepo, registry, inventorySvc,
		dbClient, outboxSvc, cfg.Providers.ReturnBaseURL,
		settlement.Options{
			ProviderMetrics:   providerMetrics,
			SettlementMetrics: settlementMetrics,
			Logger:            logg,
		})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
		os.Exit(1)
	}

	refundsSvc, err := refunds.NewService(
		ordersRepo, ordersSvc, sessionsRepo, registry, inventorySvc,
		dbClient, outboxSvc,
		refunds.Options{
			SettlementMetrics: settlementMetrics,
			Logger:            logg,
		})
	if err != nil {
		logg.Error(context.Background(), "failed to create refunds service", err)
		os.Exit(1)
	}

	deliverySvc, err := delivery.NewService(
		shipmentsRepo, ordersSvc, tracker, dbClient, outboxSvc,
		delivery.Options{
			Guard:  redisClient,
			Logger: logg,
		})
	if err != nil {
		logg.Error(context.Background(), "failed to create delivery service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":       cfg.App.Env,
		"addr":      addr,
		"providers": registry.Names(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:     cfg,
			Logger:     logg,
			DB:         dbClient,
			Redis:      redisClient,
			Resolver:   resolver,
			Registry:   promRegistry,
			Orders:     ordersSvc,
			Settlement: settlementSvc,
			Refunds:    refundsSvc,
			Delivery:   deliverySvc,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

// buildProviders registers an adapter for every gateway with credentials
// configured. A storefront can run with a subset; prepare calls for the
// missing ones fail with a validation error instead of boot failing.
func buildProviders(cfg *config.Config, logg *logger.Logger) []payments.Provider {
	providers := []payments.Provider{}

	if cfg.Kakao.AdminKey != "" {
		client, err := kakaopay.NewClient(cfg.Kakao.AdminKey, cfg.Kakao.CID,
			kakaopay.WithBaseURL(cfg.Kakao.BaseURL),
			kakaopay.WithTimeout(cfg.Providers.HTTPTimeout),
		)
		if err != nil {
			logg.Warn(context.Background(), "skipping kakaopay: "+err.Error())
		} else {
			providers = append(providers, payments.NewKakaoAdapter(client))
		}
	} else {
		logg.Warn(context.Background(), "kakaopay credentials not configured, provider disabled")
	}

	if cfg.Toss.SecretKey != "" {
		client, err := tosspay.NewClient(cfg.Toss.SecretKey,
			tosspay.WithBaseURL(cfg.Toss.BaseURL),
			tosspay.WithTimeout(cfg.Providers.HTTPTimeout),
		)
		if err != nil {
			logg.Warn(context.Background(), "skipping tosspay: "+err.Error())
		} else {
			providers = append(providers, payments.NewTossAdapter(client))
		}
	} else {
		logg.Warn(context.Background(), "tosspay credentials not configured, provider disabled")
	}

	if cfg.Naver.ClientID != "" {
		client, err := naverpay.NewClient(cfg.Naver.ClientID, cfg.Naver.ClientSecret, cfg.Naver.ChainID, cfg.Naver.PartnerID,
			naverpay.WithBaseURL(cfg.Naver.BaseURL),
			naverpay.WithTimeout(cfg.Providers.HTTPTimeout),
		)
		if err != nil {
			logg.Warn(context.Background(), "skipping naverpay: "+err.Error())
		} else {
			providers = append(providers, payments.NewNaverAdapter(client))
		}
	} else {
		logg.Warn(context.Background(), "naverpay credentials not configured, provider disabled")
	}

	return providers
}
