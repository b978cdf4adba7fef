package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/cache"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/config"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/events"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/flags"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/metrics"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/server"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/storage"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/stream"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/swapengine"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	// Get the project root directory (where go.mod is)
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main is the entry point for the API server
// It initializes all dependencies and starts the HTTP server with graceful shutdown
func main() {
	bootLogger := logrus.New()

	// load .env BEFORE anything reads os.Getenv
	loadEnv(bootLogger)

	// Load and validate configuration from environment variables
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		bootLogger.WithError(err).Fatal("invalid configuration")
	}
	logger := cfg.NewLogger()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown (Ctrl+C, SIGTERM)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	rt, err := swapengine.NewRuntime(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build runtime")
	}

	bus := events.NewBus(logger, 1000)
	defer func() {
		logger.WithFields(logrus.Fields(bus.Stats())).Info("stopping event bus")
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = bus.Shutdown(sctx)
	}()

	// Prometheus series are derived from bus events
	var gatherer prometheus.Gatherer
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m, err := metrics.New(reg)
		if err != nil {
			logger.WithError(err).Fatal("failed to register metrics")
		}
		sub := m.Attach(bus)
		defer sub.Unsubscribe()
		gatherer = reg
	}

	// Redis backs recent swaps, operator flags and the cross-process event
	// channel. Without it the server runs on in-memory flags only.
	var (
		swapCache storage.SwapCache
		flagStore flags.Manager = flags.NewMemoryStore()
	)
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to connect to Redis")
		}
		swapCache = rc

		fs, err := flags.NewStore(rc.Client(), logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to create flags store")
		}
		flagStore = fs

		bridge := cache.NewPubSubBridge(rc.Client(), bus, logger)
		go func() {
			if err := bridge.Forward(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("event forwarding stopped")
			}
		}()
		go func() {
			if err := bridge.Listen(ctx, bus); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Warn("event listening stopped")
			}
		}()
	} else {
		logger.Warn("REDIS_ADDR not set, recent swaps and shared flags disabled")
	}

	// ClickHouse keeps the full swap history (optional)
	var (
		history   server.SwapHistory
		swapStore storage.SwapStore
	)
	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			logger.WithError(err).Warn("clickhouse unavailable, swap history disabled")
		} else {
			history = ch
			swapStore = ch
		}
	}

	recorder := cache.NewRecorder(swapCache, swapStore)
	defer func() {
		_ = recorder.Close()
	}()

	engine, err := rt.NewEngine(cfg, swapengine.EngineDeps{
		Recorder:  recorder,
		Publisher: bus,
		Flags:     flagStore,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create swap engine")
	}

	// Keep watched pools and prices warm for cached reads
	snapshots := stream.NewSnapshotStore()
	refresher, err := stream.NewRefresher(stream.RefresherConfig{
		Pools:       rt.Pools,
		Prices:      rt.Prices,
		Tokens:      rt.Tokens,
		Store:       snapshots,
		Publisher:   bus,
		Logger:      logger,
		PoolIDs:     cfg.PoolIDs,
		Interval:    cfg.RefreshInterval,
		MaxParallel: cfg.RefreshParallelism,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create refresher")
	}
	go func() {
		if err := refresher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("refresher stopped")
		}
	}()

	// Create handlers with all dependencies injected
	h := &server.Handlers{
		Engine:        engine,
		Tokens:        rt.Tokens,
		Snapshots:     snapshots,
		Prices:        rt.Prices,
		Cache:         swapCache,
		History:       history,
		Flags:         flagStore,
		Metrics:       gatherer,
		DefaultPoolID: cfg.DefaultPoolID,
		DevMode:       cfg.DevMode,
		Logger:        logger,
	}

	// Create HTTP server with configuration and handlers
	srv, err := server.NewServer(server.ServerDeps{
		Handlers: h,
		Config: server.ServerConfig{
			Addr:    cfg.APIAddr, // Server bind address (e.g., ":8090")
			DevMode: cfg.DevMode, // Development mode flag
			APIKey:  cfg.APIKey,  // Optional API key for authentication

			RateLimit: cfg.APIRateLimit,
			RateBurst: cfg.APIRateBurst,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	// Setup graceful shutdown in a separate goroutine
	go func() {
		<-sigCh // Wait for shutdown signal
		logger.Info("shutting down")
		cancel()                               // Cancel context to stop ongoing operations
		_ = srv.Shutdown(context.Background()) // Gracefully shutdown HTTP server
	}()

	// Start the HTTP server
	logger.WithField("addr", cfg.APIAddr).Info("api server starting")
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	// Wait for server to be fully shut down
	wctx, wcancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer wcancel()
	if err := srv.WaitClosed(wctx); err != nil {
		logger.WithError(err).Warn("shutdown did not complete")
	}
}
