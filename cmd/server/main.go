package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bitmark-inc/exitwithstatus"
	"github.com/bitmark-inc/logger"
	"github.com/go-redis/redis/v8"

	"github.com/gravitas-games/citybuilder/internal/config"
	"github.com/gravitas-games/citybuilder/internal/depot"
	"github.com/gravitas-games/citybuilder/internal/production"
	"github.com/gravitas-games/citybuilder/internal/server"
	"github.com/gravitas-games/citybuilder/internal/snapshot"
)

func main() {
	// ensure exit handler is first
	defer exitwithstatus.Handler()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./configs/server.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		exitwithstatus.Message("failed to load configuration: %s\n", err)
	}

	if err := os.MkdirAll(cfg.Logging.Directory, 0o700); err != nil {
		exitwithstatus.Message("failed to create log directory: %s\n", err)
	}
	if err := logger.Initialise(logger.Configuration{
		Directory: cfg.Logging.Directory,
		File:      cfg.Logging.File,
		Size:      cfg.Logging.Size,
		Count:     cfg.Logging.Count,
		Console:   cfg.Logging.Console,
		Levels:    cfg.Logging.Levels,
	}); err != nil {
		exitwithstatus.Message("failed to initialise logger: %s\n", err)
	}
	defer logger.Finalise()

	log := logger.New("main")
	log.Infof("configuration loaded from %s", configPath)

	if err := run(cfg, log); err != nil {
		log.Criticalf("%s", err)
		exitwithstatus.Message("error: %s\n", err)
	}
	log.Info("server stopped")
}

func run(cfg *config.Config, log *logger.L) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := connectRedis(ctx, cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	backend, err := snapshot.Open(cfg.Persistence, redisClient)
	if err != nil {
		return fmt.Errorf("failed to open persistence: %w", err)
	}
	if backend != nil {
		defer backend.Close()
		log.Infof("persisting storages to %s backend", cfg.Persistence.Backend)
	}

	bus := production.NewSimpleEventBus()
	world, err := depot.NewWorld(cfg.Depot, bus)
	if err != nil {
		return fmt.Errorf("failed to build depot: %w", err)
	}
	d := depot.New(world, backend, cfg.Server.TickRate, time.Duration(cfg.Persistence.AutosaveSeconds)*time.Second)

	depotErr := make(chan error, 1)
	go func() { depotErr <- d.Run(ctx) }()

	validator, err := server.NewJWTValidator(ctx, cfg, redisClient)
	if err != nil {
		cancel()
		<-d.Done()
		return fmt.Errorf("failed to initialize JWT validator: %w", err)
	}

	srv := server.New(cfg, d, validator, server.NewSession(bus))

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Start(addr); err != nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case runErr = <-errChan:
		log.Errorf("server error: %s", runErr)
	case runErr = <-depotErr:
		log.Errorf("depot stopped: %s", runErr)
	case sig := <-sigChan:
		log.Infof("received signal %v, shutting down", sig)
	}

	// Graceful shutdown: connections first so their deliveries are released
	// before the depot saves
	if err := srv.Shutdown(); err != nil {
		log.Errorf("error during shutdown: %s", err)
	}
	cancel()
	select {
	case err := <-depotErr:
		if err != nil && runErr == nil {
			runErr = fmt.Errorf("depot shutdown: %w", err)
		}
	case <-d.Done():
	}
	return runErr
}

// connectRedis returns a client when Redis answers, nil otherwise. Without
// Redis the blacklist check is skipped.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.L) *redis.Client {
	if cfg.Address == "" {
		log.Warn("no redis address configured")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warnf("failed to connect to redis at %s: %s", cfg.Address, err)
		client.Close()
		return nil
	}
	log.Infof("connected to redis at %s", cfg.Address)
	return client
}
