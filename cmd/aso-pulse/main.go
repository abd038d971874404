package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/orbitlab/aso-pulse/internal/config"
	"github.com/orbitlab/aso-pulse/internal/database"
	"github.com/orbitlab/aso-pulse/internal/dispatch"
	"github.com/orbitlab/aso-pulse/internal/httpserver"
	"github.com/orbitlab/aso-pulse/internal/ingest"
	"github.com/orbitlab/aso-pulse/internal/metrics"
	"github.com/orbitlab/aso-pulse/internal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use logger yet, fall back to panic
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("starting aso-pulse",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("metrics_source", cfg.Upstream.Source),
	)

	m := metrics.NewMetrics("aso_pulse")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL. Org/app admin falls back to in-memory
	// repositories when PostgreSQL is unreachable.
	db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Warn("PostgreSQL not available, using in-memory storage", zap.Error(err))
		db = nil
	} else {
		defer db.Close()
	}

	// Initialize Redis. Without it the snapshot cache is disabled and
	// every overview query hits the upstream source.
	redis, err := database.NewRedisDB(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis not available, snapshot caching disabled", zap.Error(err))
		redis = nil
	} else {
		defer redis.Close()
	}

	// Initialize the metrics source. Unlike the stores above this one is
	// required: without raw metrics there is nothing to serve.
	var source ingest.MetricsSource
	switch cfg.Upstream.Source {
	case "clickhouse":
		ch, err := ingest.NewClickHouseSource(ctx, ingest.ClickHouseConfig{
			Addr:     cfg.Warehouse.Addr,
			Database: cfg.Warehouse.Database,
			Username: cfg.Warehouse.Username,
			Password: cfg.Warehouse.Password,
			Table:    cfg.Warehouse.Table,
		}, logger, m)
		if err != nil {
			logger.Fatal("failed to connect to ClickHouse warehouse", zap.Error(err))
		}
		defer ch.Close()
		source = ch
	default:
		source = ingest.NewHTTPSource(
			&http.Client{Timeout: cfg.Upstream.Timeout},
			cfg.Upstream.BaseURL,
			cfg.Upstream.APIKey,
			logger,
			m,
		)
	}

	// Background intelligence dispatcher
	dispatcher := dispatch.New(logger, m, cfg.Dispatch.DebounceWindow)
	defer dispatcher.Close()

	// Build dependencies
	deps := &httpserver.Dependencies{
		DB:         db,
		Redis:      redis,
		Config:     cfg,
		Logger:     logger,
		Metrics:    m,
		Source:     source,
		Dispatcher: dispatcher,
	}

	handler := httpserver.NewServer(deps)

	// Apply middleware chain (order matters: outermost first)
	// Recovery -> Logging -> RateLimit -> Auth -> Handler
	recoveryMW := middleware.NewRecoveryMiddleware(logger)
	loggingMW := middleware.NewLoggingMiddleware(logger, m)
	rateLimitMW := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)
	authMW := middleware.NewAuthMiddleware(cfg.Auth, logger)

	finalHandler := recoveryMW.Handler(
		loggingMW.Handler(
			rateLimitMW.Handler(
				authMW.Handler(handler),
			),
		),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           finalHandler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Start rate limiter cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rateLimitMW.CleanupIPLimiters()
			case <-ctx.Done():
				return
			}
		}
	}()

	// Periodically export connection pool stats
	if db != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					st := db.Stats()
					m.UpdateDBStats(int(st.IdleConns()), int(st.AcquiredConns()), int(st.TotalConns()))
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Cancel main context to stop background goroutines
	cancel()

	logger.Info("server stopped")
}
