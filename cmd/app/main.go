package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"study-bot/internal/cache"
	"study-bot/internal/config"
	"study-bot/internal/convo"
	"study-bot/internal/httpserver"
	"study-bot/internal/logging"
	"study-bot/internal/metrics"
	"study-bot/internal/nlu"
	"study-bot/internal/repo"
	"study-bot/internal/wa"
	"study-bot/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting study-bot", "env", cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	// A missing DATABASE_URL leaves the store inert so the HTTP surface can
	// still come up; a configured URL that fails to connect is fatal.
	var repository repo.Repository
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, store disabled")
	} else {
		repository, err = repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
		if err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
		defer repository.Close()

		if err := repository.RunMigrations(ctx, migrations.Files); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		logger.Info("database migrated")

		if err := repository.SyncGeminiKeys(ctx, cfg.GeminiAPIKeys); err != nil {
			return fmt.Errorf("sync gemini keys: %w", err)
		}
	}

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed", "error", err)
	}

	nluClient := nlu.New(repository, logger, metricRegistry, nlu.Config{
		Model:    cfg.GeminiModel,
		Timeout:  cfg.GeminiTimeout,
		Cooldown: cfg.GeminiCooldown,
	})

	deps := httpserver.Dependencies{Redis: redisClient}
	if repository != nil {
		deps.Materials = repository
		deps.Users = repository
	}

	// The chat bot needs both a store and a device store path.
	var waClient *wa.Client
	switch {
	case repository == nil:
		logger.Warn("chat bot disabled, no store configured")
	case cfg.WhatsAppStorePath == "":
		logger.Warn("WA_STORE_PATH not set, chat bot disabled")
	default:
		waClient, err = wa.New(ctx, wa.Config{
			StorePath: cfg.WhatsAppStorePath,
			LogLevel:  cfg.WhatsAppLogLevel,
			Metrics:   metricRegistry,
		}, logger)
		if err != nil {
			return fmt.Errorf("init whatsapp client: %w", err)
		}
		defer waClient.Close()

		engine := convo.New(repository, nluClient, waClient, redisClient,
			convo.NewSessionStore(), metricRegistry, logger, convo.Config{})
		waClient.SetMessageProcessor(engine)

		waCtx, waCancel := context.WithCancel(ctx)
		defer waCancel()
		go func() {
			if err := waClient.Start(waCtx); err != nil {
				logger.Error("whatsapp client stopped", "error", err)
				stop()
			}
		}()
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, deps, cfg.PublicBasePath, cfg.AdminToken)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
