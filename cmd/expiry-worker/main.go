package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/db"
	"github.com/hackgods/doctor-slot-booking/internal/logging"
	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/realtime"
	redisclient "github.com/hackgods/doctor-slot-booking/internal/redis"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "expiry-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("expiry worker starting up")

	if cfg.StorageDriver != config.StoragePostgres {
		logger.Fatal().Msg("expiry worker requires STORAGE_DRIVER=postgres")
	}

	metrics.Register()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 4)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: 4,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing redis")
		}
	}()
	logger.Info().Msg("connected to Redis")

	// Events go through the shared channel so every api instance relays them.
	hub := realtime.NewHub(&logger)
	notifier := realtime.NewRedisBridge(rdb, cfg.RealtimeChannel, hub, &logger)

	repo := appointment.NewPgRepository(pgPool)
	lockStore := redisclient.NewSlotLockStore(rdb)
	ledger := appointment.NewLedger(repo, lockStore)
	locks := slotlock.NewManager(lockStore, ledger, notifier, cfg.LockTTL, &logger)
	templates := schedule.NewService(schedule.NewPgTemplateRepository(pgPool), notifier, cfg.Location, &logger)
	gateway := payment.FromConfig(cfg.Payment)
	svc := appointment.NewService(repo, templates, locks, gateway, notifier, cfg, &logger)

	// Run once at startup
	runOnce(rootCtx, svc, &logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, &logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger *zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	released, err := svc.ExpireLapsedHolds(runCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error().Err(err).Msg("expiry run error")
		return
	}
	logger.Info().Int("released", released).Dur("took", time.Since(start)).Msg("expiry run complete")
}
