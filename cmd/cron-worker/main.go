package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mfeldmann/storehaus-backend/internal/audit"
	"github.com/mfeldmann/storehaus-backend/internal/cart"
	"github.com/mfeldmann/storehaus-backend/internal/cron"
	"github.com/mfeldmann/storehaus-backend/internal/inventory"
	"github.com/mfeldmann/storehaus-backend/internal/promotions"
	"github.com/mfeldmann/storehaus-backend/internal/reservation"
	"github.com/mfeldmann/storehaus-backend/pkg/config"
	"github.com/mfeldmann/storehaus-backend/pkg/db"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
	"github.com/mfeldmann/storehaus-backend/pkg/metrics"
	"github.com/mfeldmann/storehaus-backend/pkg/migrate"
	"github.com/mfeldmann/storehaus-backend/pkg/redis"
)

const lockKeyFormat = "storehaus:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	recorder, err := audit.NewRecorder(audit.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create audit recorder", err)
		os.Exit(1)
	}

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	inventoryService, err := inventory.NewService(inventoryRepo, recorder, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create cart service", err)
		os.Exit(1)
	}

	reservationMetrics := metrics.NewReservationMetrics(prometheus.DefaultRegisterer)
	reservationService, err := reservation.NewService(reservation.Options{
		Repo:          reservation.NewRepository(dbClient.DB()),
		InventoryRepo: inventoryRepo,
		Carts:         cartService,
		Recorder:      recorder,
		Tx:            dbClient,
		Logger:        logg,
		Metrics:       reservationMetrics,
		TTL:           cfg.Checkout.ReservationTTL,
		SweepRetries:  cfg.Cron.SweepRetries,
		SweepBackoff:  cfg.Cron.SweepBackoff,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation service", err)
		os.Exit(1)
	}

	promotionsService, err := promotions.NewService(promotions.NewRepository(dbClient.DB()), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create promotions service", err)
		os.Exit(1)
	}

	expiryJob, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:       logg,
		Reservations: reservationService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation expiry job", err)
		os.Exit(1)
	}
	activationJob, err := cron.NewCampaignActivationJob(cron.CampaignActivationJobParams{
		Logger:     logg,
		Promotions: promotionsService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create campaign activation job", err)
		os.Exit(1)
	}
	cartJob, err := cron.NewCartCleanupJob(cron.CartCleanupJobParams{
		Logger: logg,
		Carts:  cartService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cart cleanup job", err)
		os.Exit(1)
	}
	receiptJob, err := cron.NewInboundReceiptJob(cron.InboundReceiptJobParams{
		Logger:    logg,
		Shipments: inventoryRepo,
		Inventory: inventoryService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create inbound receipt job", err)
		os.Exit(1)
	}

	cronMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(expiryJob, activationJob, cartJob, receiptJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  cronMetrics,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
