package main

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/internal/orders"
	"github.com/angelmondragon/pastrypickup-backend/internal/worker"
	"github.com/angelmondragon/pastrypickup-backend/pkg/config"
	"github.com/angelmondragon/pastrypickup-backend/pkg/db"
	"github.com/angelmondragon/pastrypickup-backend/pkg/instance"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
	"github.com/angelmondragon/pastrypickup-backend/pkg/metrics"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/pastrypickup-backend/pkg/outbox/registry"
	"github.com/angelmondragon/pastrypickup-backend/pkg/redis"
)

const lockName = "worker"

// ServiceParams carry the resources the worker jobs are built from.
type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
}

// NewService assembles the outbox relay, reconciliation and retention jobs
// behind a single redis lock.
func NewService(params ServiceParams) (*worker.Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	cfg, logg := params.Config, params.Logger

	gdb := params.DB.DB()
	outboxRepo := outbox.NewRepository(gdb)
	loyaltyRepo := loyalty.NewRepository(gdb)
	orderMetrics := metrics.NewOrderMetrics(params.Registerer)

	tiers, err := loyalty.TierTableFromConfig(cfg.Loyalty)
	if err != nil {
		return nil, fmt.Errorf("loyalty tiers: %w", err)
	}
	loyaltyService, err := loyalty.NewService(loyalty.ServiceParams{
		Tx:     params.DB,
		Repo:   loyaltyRepo,
		Orders: orders.NewRepository(gdb),
		Outbox: outbox.NewService(outboxRepo, logg),
		Tiers:  tiers,
		Rates: loyalty.Rates{
			PointsDivisor:  cfg.Loyalty.PointsDivisor,
			RedemptionRate: cfg.Loyalty.RedemptionRate,
		},
		Logger:  logg,
		Metrics: orderMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("loyalty service: %w", err)
	}

	guard, err := idempotency.NewGuard(params.Redis, cfg.Eventing.OutboxIdempotencyTTL, instance.GetID())
	if err != nil {
		return nil, fmt.Errorf("idempotency guard: %w", err)
	}

	relay, err := worker.NewOutboxRelayJob(worker.OutboxRelayJobParams{
		Logger:      logg,
		Repository:  outboxRepo,
		Registry:    registry.NewEventRegistry(),
		Loyalty:     loyaltyService,
		Guard:       guard,
		BatchSize:   cfg.Outbox.BatchSize,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox relay job: %w", err)
	}

	reconcile, err := worker.NewLoyaltyReconcileJob(worker.LoyaltyReconcileJobParams{
		Logger:    logg,
		Accounts:  loyaltyRepo,
		Ledger:    loyaltyService,
		BatchSize: cfg.Loyalty.ReconcileBatchSize,
		Heal:      cfg.Worker.ReconcileHeal,
	})
	if err != nil {
		return nil, fmt.Errorf("loyalty reconcile job: %w", err)
	}

	retention, err := worker.NewOutboxRetentionJob(logg, outboxRepo, cfg.Outbox.Retention)
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	schedule := &worker.Schedule{}
	err = multierr.Combine(
		schedule.Add(relay, 0),
		schedule.Add(reconcile, cfg.Worker.ReconcileEach),
		schedule.Add(retention, cfg.Worker.RetentionEach),
	)
	if err != nil {
		return nil, fmt.Errorf("worker schedule: %w", err)
	}

	lock, err := worker.NewRedisLock(params.Redis, params.Redis.LockKey(lockName), cfg.Worker.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("worker lock: %w", err)
	}

	return worker.NewService(worker.ServiceParams{
		Logger:   logg,
		Schedule: schedule,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(params.Registerer),
		Interval: cfg.Worker.Interval,
	})
}
