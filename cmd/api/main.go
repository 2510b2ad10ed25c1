package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/propmap/propmap/internal/adapters/http"
	natsadapter "github.com/propmap/propmap/internal/adapters/nats"
	"github.com/propmap/propmap/internal/adapters/postgres"
	"github.com/propmap/propmap/internal/adapters/valkey"
	"github.com/propmap/propmap/internal/cluster"
	"github.com/propmap/propmap/internal/core/ports"
	"github.com/propmap/propmap/internal/core/usecases"
	"github.com/propmap/propmap/internal/pkg/config"
	"github.com/propmap/propmap/internal/pkg/logging"
	"github.com/propmap/propmap/internal/pkg/metrics"
	"github.com/propmap/propmap/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("propmap-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format, "service", cfg.Telemetry.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			logger.Warn("telemetry init failed", "error", err)
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	// Database
	db, err := postgres.New(ctx, cfg.Database.DSN(),
		postgres.WithMaxConns(cfg.Database.MaxConns),
		postgres.WithMinConns(cfg.Database.MinConns),
		postgres.WithMaxConnIdleTime(time.Duration(cfg.Database.MaxConnIdle)*time.Second),
		postgres.WithApplicationName(cfg.Telemetry.ServiceName),
	)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Cache is optional; without it every index build reads Postgres.
	var pointCache ports.CacheService
	cache, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		logger.Warn("valkey unavailable", "error", err)
	} else {
		pointCache = cache
		defer cache.Close()
	}

	listings := postgres.NewListingRepo(db)
	clusters := usecases.NewClusterService(listings, pointCache, usecases.ClusterServiceOptions{
		Cluster: cluster.Options{
			Radius:    cfg.Cluster.Radius,
			MaxZoom:   cfg.Cluster.MaxZoom,
			MinPoints: cfg.Cluster.MinPoints,
			Extent:    cfg.Cluster.Extent,
			NodeSize:  cfg.Cluster.NodeSize,
		},
		MaxIndexes: cfg.Cluster.MaxIndexes,
		PointsTTL:  cfg.Valkey.PointsTTL,
		Logger:     logger,
	})

	// Change events drop stale indexes. Without NATS indexes still follow
	// the data version, read once per process.
	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		logger.Warn("nats unavailable, listings.changed ignored", "error", err)
	} else {
		defer sub.Close()
		watchListings(ctx, sub, clusters, logger)
	}

	deps := &http.Dependencies{
		Clusters: clusters,
		Listings: listings,
		Sessions: http.SessionSettings{
			Debounce:    time.Duration(cfg.Session.DebounceMS) * time.Millisecond,
			IdleTimeout: time.Duration(cfg.Session.IdleTimeout) * time.Second,
		},
		DB:     db,
		Cache:  cache,
		Logger: logger,
	}
	if sub != nil {
		deps.NATS = sub.Conn()
	}

	go reportPoolStats(ctx, db)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "PropMap API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000, http://localhost:5173",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, If-None-Match",
		ExposeHeaders:    "ETag, Link, X-Cluster-Zoom",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logger.Info("API server starting", "addr", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func watchListings(ctx context.Context, events ports.EventSubscriber, clusters *usecases.ClusterService, logger *slog.Logger) {
	if err := events.SubscribeListingsChanged(ctx, clusters.HandleListingsChanged); err != nil {
		logger.Warn("subscribe listings.changed", "error", err)
	}
}

func reportPoolStats(ctx context.Context, db *postgres.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(db.Stat())
		case <-ctx.Done():
			return
		}
	}
}
