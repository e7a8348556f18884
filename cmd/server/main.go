package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sifan077/PowerLink/config"
	appmodel "github.com/sifan077/PowerLink/internal/app/model"
	apprepository "github.com/sifan077/PowerLink/internal/app/repository"
	appserver "github.com/sifan077/PowerLink/internal/app/server"
	appservice "github.com/sifan077/PowerLink/internal/app/service"
	"github.com/sifan077/PowerLink/internal/infra/logger"
	infraNATS "github.com/sifan077/PowerLink/internal/infra/nats"
	infraPostgres "github.com/sifan077/PowerLink/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/PowerLink/internal/infra/prometheus"
	infraRedis "github.com/sifan077/PowerLink/internal/infra/redis"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.Must(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
		ServiceName: "powerlink",
	})
	defer func() { _ = logger.Sync(log) }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("environment", cfg.App.Environment),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("clicks_async", cfg.Clicks.Async),
		zap.Bool("cleanup_enabled", cfg.Cleanup.Enabled),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.Migrate(ctx, gormDB, &appmodel.Link{}, &appmodel.ClickEvent{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	var (
		redisClient *goredis.Client
		jobLock     appservice.JobLock
	)
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		jobLock = infraRedis.NewLocker(redisClient)
		log.Info("Connected to Redis successfully")
	} else {
		log.Info("Redis disabled: creation rate limiting and cleanup locking are off")
	}

	registry := infraPrometheus.NewRegistry()
	metrics := infraPrometheus.NewMetrics(registry)

	if cfg.Prometheus.Enabled {
		promServer := infraPrometheus.NewServer(cfg.Prometheus, registry)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	clickRepo := apprepository.NewClickEventRepository(gormDB)

	codes := appservice.NewCodeGenerator(linkRepo, appservice.CodeGeneratorConfig{
		Length:      cfg.App.CodeLength,
		MaxAttempts: cfg.App.MaxCodeAttempts,
	}, metrics, log)
	if err := codes.Warm(ctx); err != nil {
		// The unique index still guards correctness; only the pre-check is cold.
		log.Warn("Failed to warm short code filter", zap.Error(err))
	}

	var (
		sink         appservice.ClickSink = clickRepo
		consumer     *appservice.ClickConsumer
		natsConn     *nats.Conn
		consumerStop context.CancelFunc = func() {}
	)
	if cfg.Clicks.Async {
		var js nats.JetStreamContext
		natsConn, js, err = infraNATS.Connect(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		if err := appservice.EnsureClickStream(js); err != nil {
			log.Fatal("Failed to set up click stream", zap.Error(err))
		}
		log.Info("Connected to NATS successfully", zap.String("url", infraNATS.URL(cfg.NATS)))

		var consumerCtx context.Context
		consumerCtx, consumerStop = context.WithCancel(context.Background())
		consumer = appservice.NewClickConsumer(js, clickRepo, metrics, log)
		if err := consumer.Start(consumerCtx); err != nil {
			log.Fatal("Failed to start click consumer", zap.Error(err))
		}
		sink = appservice.NewClickPublisher(js)
	}

	recorder := appservice.NewClickRecorder(linkRepo, sink, appservice.ClickRecorderConfig{
		TrustProxy: cfg.App.TrustProxy,
		Workers:    cfg.Clicks.Workers,
		QueueSize:  cfg.Clicks.QueueSize,
	}, metrics, log)
	analytics := appservice.NewAnalyticsAggregator(linkRepo, clickRepo)
	linkService := appservice.NewLinkService(linkRepo, codes, analytics, metrics, log)
	redirects := appservice.NewRedirectService(linkRepo, recorder, metrics, log)

	var cleanup *appservice.CleanupJob
	if cfg.Cleanup.Enabled {
		cleanup, err = appservice.NewCleanupJob(linkRepo, jobLock, appservice.CleanupJobConfig{
			Schedule: cfg.Cleanup.Schedule,
			LockTTL:  cfg.Cleanup.LockTTL,
		}, log)
		if err != nil {
			log.Fatal("Invalid cleanup schedule", zap.Error(err), zap.String("schedule", cfg.Cleanup.Schedule))
		}
		cleanup.Start()
		log.Info("Cleanup job scheduled", zap.String("schedule", cfg.Cleanup.Schedule))
	}

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		Config:    *cfg,
		Postgres:  pool,
		Redis:     redisClient,
		Links:     linkService,
		Redirects: redirects,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Listen(fmt.Sprintf(":%d", cfg.App.Port))
	}()
	log.Info("PowerLink listening", zap.Int("port", cfg.App.Port))

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error("Fiber server exited", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down HTTP server", zap.Error(err))
	}
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Warn("Pending click events were not flushed", zap.Error(err))
	}
	if cleanup != nil {
		cleanup.Stop(shutdownCtx)
	}
	consumerStop()
	if consumer != nil {
		select {
		case <-consumer.Done():
		case <-shutdownCtx.Done():
			log.Warn("Click consumer did not stop in time")
		}
	}
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			log.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
	log.Info("PowerLink stopped")
}
