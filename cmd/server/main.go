package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/hoplink/hoplink/config"
	appmodel "github.com/hoplink/hoplink/internal/app/model"
	apprepository "github.com/hoplink/hoplink/internal/app/repository"
	appserver "github.com/hoplink/hoplink/internal/app/server"
	appservice "github.com/hoplink/hoplink/internal/app/service"
	"github.com/hoplink/hoplink/internal/infra/logger"
	infraNATS "github.com/hoplink/hoplink/internal/infra/nats"
	infraPostgres "github.com/hoplink/hoplink/internal/infra/postgres"
	infraPrometheus "github.com/hoplink/hoplink/internal/infra/prometheus"
	infraRedis "github.com/hoplink/hoplink/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.String("nats_host", cfg.NATS.Host),
		zap.String("canonical_host", cfg.App.CanonicalHost),
		zap.Duration("dedup_window", cfg.App.DedupWindowDuration()),
		zap.Duration("sweep_interval", cfg.App.SweepIntervalDuration()),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.Link{},
		&appmodel.ClickEvent{},
		&appmodel.OwnerUsage{},
	); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	// Repositories.
	linkRepo := apprepository.NewLinkRepository(gormDB)
	eventRepo := apprepository.NewClickEventRepository(gormDB)
	statsRepo := apprepository.NewStatsRepository(pool)
	usageRepo := apprepository.NewUsageRepository(gormDB)

	// Negative-lookup guard, seeded with the live identifier namespace.
	identifiers, err := linkRepo.Identifiers(ctx)
	if err != nil {
		log.Fatal("Failed to load identifier namespace", zap.Error(err))
	}
	filter := appservice.NewIdentifierFilter(uint(len(identifiers)) * 2)
	filter.Seed(identifiers)
	log.Info("Identifier filter seeded", zap.Int("identifiers", len(identifiers)))

	// Click pipeline.
	recorder := appservice.NewEventRecorder(
		log,
		appservice.NewRedisDeduper(redisClient),
		appservice.NewJetStreamPublisher(js),
		cfg.App.DedupWindowDuration(),
	)

	synchronizer := appservice.NewSynchronizer(
		log, linkRepo, eventRepo, statsRepo, usageRepo,
		appservice.NewRedisMonthMarker(redisClient),
		appservice.SynchronizerConfig{
			Retention: time.Duration(cfg.App.RetentionDays) * 24 * time.Hour,
			BatchSize: cfg.App.SweepBatchSize,
		},
	)

	reconcilePool := appservice.NewReconcilePool(log, synchronizer, cfg.App.ReconcileWorkers, cfg.App.QueueSize)
	synchronizer.AttachQueue(reconcilePool)
	reconcilePool.Start()
	defer reconcilePool.Stop()

	consumer := appservice.NewClickConsumer(js, log, eventRepo, reconcilePool)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start click consumer", zap.Error(err))
	}

	sweeper := appservice.NewSweeper(log, synchronizer, cfg.App.SweepIntervalDuration())
	sweeper.Start()
	defer sweeper.Stop()

	// Resolution pipeline.
	resolver := appservice.NewRedirectService(appservice.RedirectDeps{
		Logger:        log,
		Links:         linkRepo,
		Recorder:      recorder,
		Filter:        filter,
		LookupTimeout: cfg.App.LookupTimeoutDuration(),
	})

	linkService := appservice.NewLinkService(linkRepo, eventRepo, filter)

	srv := appserver.New(appserver.Dependencies{
		Logger:        log,
		Redis:         redisClient,
		Resolver:      resolver,
		Links:         linkService,
		Synchronizer:  synchronizer,
		CanonicalHost: cfg.App.CanonicalHost,
	})

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	log.Info("Starting HTTP server", zap.String("addr", addr))
	if err := srv.Listen(addr); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
