package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/pastrypickup-backend/api/routes"
	"github.com/angelmondragon/pastrypickup-backend/internal/catalog"
	"github.com/angelmondragon/pastrypickup-backend/internal/checkout"
	"github.com/angelmondragon/pastrypickup-backend/internal/coupons"
	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/internal/notifications"
	"github.com/angelmondragon/pastrypickup-backend/internal/ordernumber"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/internal/reservations"
	"github.com/angelmondragon/pastrypickup-backend/internal/users"
	"github.com/angelmondragon/pastrypickup-backend/pkg/config"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/instance"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/metrics"
	"github.com/angelmondragon/pastrypickup-backend/pkg/migrate"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
	"github.com/angelmondragon/pastrypickup-backend/pkg/pubsub"
	"github.com/angelmondragon/pastrypickup-backend/pkg/redis"
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	notifier := notifications.Dispatcher(notifications.NewLogDispatcher(logg))
	if cfg.PubSub.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub, logg)
		requireResource(ctx, logg, "pubsub", err)
		defer func() {
			if err := psClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing pubsub", err)
			}
		}()
		notifier, err = notifications.NewPubSubDispatcher(psClient.EmailPublisher(), psClient.WhatsAppPublisher(), logg)
		requireResource(ctx, logg, "notification dispatcher", err)
	}

	loc, err := cfg.Store.Location()
	requireResource(ctx, logg, "store timezone", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	gdb := dbClient.DB()
	ordersRepo := orders.NewRepository(gdb)
	catalogRepo := catalog.NewRepository(gdb)
	couponRepo := coupons.NewUsageRepository(gdb)
	emitter := outbox.NewService(outbox.NewRepository(gdb), logg)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:           dbClient,
		Orders:       ordersRepo,
		Catalog:      catalogRepo,
		Coupons:      couponRepo,
		Users:        users.NewRepository(gdb),
		Numbers:      ordernumber.NewGenerator(cfg.Store.OrderNumberPrefix, loc, ordernumber.WithAttempts(cfg.Checkout.OrderNumberAttempts)),
		Outbox:       emitter,
		Reservations: reservations.NewRedisBridge(redisClient, cfg.Checkout.StockHoldTTL),
		Notifier:     notifier,
		Location:     loc,
		Logger:       logg,
		Metrics:      orderMetrics,
	})
	requireResource(ctx, logg, "checkout service", err)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Tx:      dbClient,
		Orders:  ordersRepo,
		Catalog: catalogRepo,
		Coupons: couponRepo,
		Outbox:  emitter,
		Logger:  logg,
		Metrics: orderMetrics,
		OnPlaced: func(ctx context.Context, order models.Order) {
			checkoutService.AfterPlaced(ctx, order, "")
		},
	})
	requireResource(ctx, logg, "orders service", err)

	tiers, err := loyalty.TierTableFromConfig(cfg.Loyalty)
	requireResource(ctx, logg, "loyalty tiers", err)

	loyaltyService, err := loyalty.NewService(loyalty.ServiceParams{
		Tx:     dbClient,
		Repo:   loyalty.NewRepository(gdb),
		Orders: ordersRepo,
		Outbox: emitter,
		Tiers:  tiers,
		Rates: loyalty.Rates{
			PointsDivisor:  cfg.Loyalty.PointsDivisor,
			RedemptionRate: cfg.Loyalty.RedemptionRate,
		},
		Logger:  logg,
		Metrics: orderMetrics,
	})
	requireResource(ctx, logg, "loyalty service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	serverCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Checkout: checkoutService,
			Orders:   ordersService,
			Loyalty:  loyaltyService,
			Metrics:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(serverCtx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(serverCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(serverCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(serverCtx, "graceful shutdown failed", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
