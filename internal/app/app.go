package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/payment-bridge/internal/api"
	"github.com/ayo6706/payment-bridge/internal/api/handler"
	"github.com/ayo6706/payment-bridge/internal/api/middleware"
	"github.com/ayo6706/payment-bridge/internal/config"
	"github.com/ayo6706/payment-bridge/internal/db"
	"github.com/ayo6706/payment-bridge/internal/events"
	"github.com/ayo6706/payment-bridge/internal/gateway"
	"github.com/ayo6706/payment-bridge/internal/idempotency"
	"github.com/ayo6706/payment-bridge/internal/idgen"
	"github.com/ayo6706/payment-bridge/internal/observability"
	"github.com/ayo6706/payment-bridge/internal/repository"
	"github.com/ayo6706/payment-bridge/internal/service"
	"github.com/ayo6706/payment-bridge/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Run bootstraps storage, the gateway client and the HTTP server, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := handler.NewHealthHandler()

	repo, closeRepo, err := openRepository(ctx, cfg, logger, health)
	if err != nil {
		return err
	}
	defer closeRepo()

	pool, err := worker.NewGatewayPool(newGatewayClient(cfg, logger), cfg.GatewayMaxConcurrency, logger)
	if err != nil {
		return fmt.Errorf("start gateway pool: %w", err)
	}
	defer pool.Release()

	publisher, err := newPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("init event publisher: %w", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close failed", zap.Error(err))
		}
	}()

	var idemStore middleware.IdempotencyStore
	if cfg.RedisURL != "" {
		redisClient, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		idemStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
		health.WithCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		logger.Info("REDIS_URL not set, Idempotency-Key replay disabled")
	}

	policy, err := service.ParseTerminalPolicy(cfg.TerminalPolicy)
	if err != nil {
		return err
	}

	txSvc := service.NewTransactionService(repo, pool, idgen.New(), publisher, logger,
		service.WithGatewayName(cfg.GatewayName),
		service.WithTerminalPolicy(policy),
		service.WithGatewayTimeout(cfg.GatewayTimeout),
	)
	webhookSvc := service.NewWebhookService(repo, publisher, policy, cfg.WebhookHMACKey, logger)
	if !webhookSvc.SignatureRequired() {
		logger.Warn("WEBHOOK_HMAC_KEY not set, webhook signatures are not verified")
	}

	var stopSweeper func()
	if cfg.StalePendingAfter > 0 {
		sweeper := worker.NewStaleSweeper(txSvc, cfg.StalePendingAfter).WithInterval(cfg.SweepInterval)
		stopSweeper = sweeper.Run(ctx)
		logger.Info("stale sweeper started", zap.Duration("interval", cfg.SweepInterval), zap.Duration("older_than", cfg.StalePendingAfter))
	}

	router := api.NewRouter(cfg, logger, txSvc, webhookSvc, idemStore, health)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GatewayTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting",
			zap.String("port", cfg.HTTPPort),
			zap.String("storage", cfg.StorageDriver),
			zap.String("gateway", cfg.GatewayMode),
		)
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	}

	if stopSweeper != nil {
		logger.Info("stopping stale sweeper")
		stopSweeper()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

// Migrate applies the Postgres schema migrations and exits.
func Migrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required to run migrations")
	}
	return db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath)
}

func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger, health *handler.HealthHandler) (repository.TransactionRepository, func(), error) {
	noop := func() {}

	switch cfg.StorageDriver {
	case config.StoragePostgres:
		if cfg.AutoMigrate {
			if err := db.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
				return nil, noop, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, noop, fmt.Errorf("connect database: %w", err)
		}
		health.WithCheck("postgres", pool.Ping)
		return repository.NewPostgresRepository(pool, logger), pool.Close, nil

	case config.StorageSQLite:
		repo, err := repository.OpenSQLiteRepository(cfg.StoragePath, logger)
		if err != nil {
			return nil, noop, fmt.Errorf("open sqlite: %w", err)
		}
		health.WithCheck("sqlite", repo.Ping)
		return repo, func() {
			if err := repo.Close(); err != nil {
				logger.Warn("sqlite close failed", zap.Error(err))
			}
		}, nil

	case config.StorageMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, 10*time.Second)
		if err != nil {
			return nil, noop, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		}
		repo := repository.NewMongoRepository(database, logger)
		if err := repo.EnsureIndexes(ctx); err != nil {
			disconnect()
			return nil, noop, fmt.Errorf("ensure mongo indexes: %w", err)
		}
		health.WithCheck("mongo", func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		})
		return repo, disconnect, nil

	default:
		var repo *repository.MemoryRepository
		if cfg.StoragePath != "" {
			var err error
			repo, err = repository.OpenFileRepository(cfg.StoragePath, logger)
			if err != nil {
				return nil, noop, fmt.Errorf("open file store: %w", err)
			}
		} else {
			repo = repository.NewMemoryRepository(logger)
		}
		health.WithNote("storage", func() string {
			if repo.Degraded() {
				return "degraded"
			}
			return "ok"
		})
		return repo, noop, nil
	}
}

func newGatewayClient(cfg *config.Config, logger *zap.Logger) gateway.Client {
	if cfg.GatewayMode == config.GatewayModePayraizen {
		return gateway.NewPayraizenClient(gateway.Config{
			BaseURL:    cfg.GatewayBaseURL,
			Token:      cfg.GatewayToken,
			MerchantID: cfg.GatewayMID,
			Timeout:    cfg.GatewayTimeout,
		}, logger)
	}
	logger.Warn("using mock gateway, no orders reach the partner")
	return gateway.NewMockClient()
}

func newPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	if cfg.KafkaBrokers == "" {
		return events.NoopPublisher{}, nil
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
