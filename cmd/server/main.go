// Command server runs the backtest task orchestrator: the HTTP façade,
// the task scheduler's poll loop, and (optionally) the Redis changefeed
// relay, all sharing one PostgreSQL connection pool.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"backtest-orchestrator/config"
	"backtest-orchestrator/internal/api"
	"backtest-orchestrator/internal/changefeed"
	"backtest-orchestrator/internal/configstore"
	"backtest-orchestrator/internal/database"
	"backtest-orchestrator/internal/exchange"
	"backtest-orchestrator/internal/klinefetcher"
	"backtest-orchestrator/internal/klinestore"
	"backtest-orchestrator/internal/logging"
	"backtest-orchestrator/internal/scheduler"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.Logging.Level,
		Output:      cfg.Logging.Output,
		Component:   "orchestrator",
		IncludeFile: cfg.Logging.IncludeFile,
		JSONFormat:  cfg.Logging.JSONFormat,
	})
	logging.SetDefault(logger)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	db, err := database.NewDB(database.Config{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	if err := db.RunMigrations(migrateCtx); err != nil {
		migrateCancel()
		log.Fatalf("Failed to run migrations: %v", err)
	}
	migrateCancel()

	kStore := klinestore.New(db.Pool, logger)
	cStore := configstore.New(db.Pool, logger)
	fetcher := klinefetcher.New(kStore, klinefetcher.Config{
		BaseURL:        cfg.Fetcher.BaseURL,
		RequestsDelay:  cfg.Fetcher.RequestsDelay,
		ColdStartSlack: cfg.Fetcher.ColdStartSlack,
	}, logger)
	symbolsClient := exchange.NewSymbolsClient(cfg.Fetcher.BaseURL)

	feed := changefeed.New(logger)
	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		relay := changefeed.NewRedisRelay(redisClient, cfg.Redis.Channel, feed, logger)
		feed.SetRelay(relay)
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("changefeed redis relay stopped", "error", err)
			}
		}()
		logger.Info("Redis changefeed relay enabled", "address", cfg.Redis.Address, "channel", cfg.Redis.Channel)
	}

	sched := scheduler.New(cStore, kStore, fetcher, feed, scheduler.Config{
		MaxThreads: cfg.Scheduler.MaxThreads,
		PollEvery:  cfg.Scheduler.PollEvery,
	}, logger)
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("task scheduler stopped", "error", err)
		}
	}()

	server := api.NewServer(api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, db, cStore, feed, symbolsClient, logger, version)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	logger.Info("Backtest orchestrator started",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"max_threads", cfg.Scheduler.MaxThreads,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}

	stop()
}
