package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/api"
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

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("", "info")
		boot.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel)
	logger.Info().
		Str("env", cfg.Env).
		Str("http_port", cfg.HTTPPort).
		Str("storage", cfg.StorageDriver).
		Str("gateway", cfg.Payment.Gateway).
		Msg("api-server starting up")

	metrics.Register()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]api.HealthCheck{}
	var critical []string

	var (
		repo      appointment.Repository
		templates schedule.TemplateRepository
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, 0)
		cancelPg()
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection error")
		}
		defer pgPool.Close()
		logger.Info().Msg("connected to Postgres")

		if err := db.Migrate(rootCtx, pgPool); err != nil {
			logger.Fatal().Err(err).Msg("schema migration failed")
		}

		repo = appointment.NewPgRepository(pgPool)
		templates = schedule.NewPgTemplateRepository(pgPool)
		checks["postgres"] = func(ctx context.Context) error { return pgPool.Ping(ctx) }
		critical = append(critical, "postgres")
	default:
		repo = appointment.NewMemoryRepository()
		templates = schedule.NewMemoryTemplateRepository()
		logger.Warn().Msg("using in-memory storage, data is lost on restart")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error().Err(err).Msg("error closing redis")
			}
		}()
		logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	hub := realtime.NewHub(&logger)
	var notifier realtime.Notifier = hub
	var lockStore slotlock.Store
	if rdb != nil {
		bridge := realtime.NewRedisBridge(rdb, cfg.RealtimeChannel, hub, &logger)
		go func() {
			if err := bridge.Run(rootCtx, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("realtime bridge stopped")
			}
		}()
		notifier = bridge
		lockStore = redisclient.NewSlotLockStore(rdb)
	} else {
		mem := slotlock.NewMemoryStore()
		lockStore = mem
		go sweepLocks(rootCtx, mem, cfg.WorkerInterval, &logger)
	}

	if cfg.Payment.Gateway == config.GatewayFake && cfg.IsProduction() {
		logger.Warn().Msg("fake payment gateway enabled in production")
	}
	gateway := payment.FromConfig(cfg.Payment)

	ledger := appointment.NewLedger(repo, lockStore)
	locks := slotlock.NewManager(lockStore, ledger, notifier, cfg.LockTTL, &logger)
	scheduleSvc := schedule.NewService(templates, notifier, cfg.Location, &logger)
	apptSvc := appointment.NewService(repo, scheduleSvc, locks, gateway, notifier, cfg, &logger)

	// Without postgres there is no expiry-worker process to release lapsed holds.
	if cfg.StorageDriver == config.StorageMemory {
		go expireHolds(rootCtx, apptSvc, cfg.WorkerInterval, &logger)
	}

	router := api.NewRouter(api.RouterConfig{
		Schedule:      scheduleSvc,
		Appointments:  apptSvc,
		Ledger:        ledger,
		Locks:         locks,
		Hub:           hub,
		Checks:        checks,
		Critical:      critical,
		Logger:        &logger,
		LockRateLimit: cfg.LockRateLimit,
		Env:           cfg.Env,
		Version:       version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("http server failed")
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
		os.Exit(1)
	}

	logger.Info().Msg("api-server stopped")
}

func sweepLocks(ctx context.Context, store *slotlock.MemoryStore, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.Sweep(); n > 0 {
				logger.Debug().Int("count", n).Msg("expired slot locks swept")
			}
		}
	}
}

func expireHolds(ctx context.Context, svc *appointment.Service, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.ExpireLapsedHolds(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("hold expiry failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("released", n).Msg("lapsed holds released")
			}
		}
	}
}
