package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/lvasseur/ski-catalog-scraper/internal/api"
	"github.com/lvasseur/ski-catalog-scraper/internal/catalog"
	"github.com/lvasseur/ski-catalog-scraper/internal/config"
	"github.com/lvasseur/ski-catalog-scraper/internal/storage"
)

func main() {
	// Setup logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog over the newest export
	catalogSvc, err := catalog.NewService(cfg.Export.Dir, logger)
	if err != nil {
		logger.Error("failed to load catalog", "error", err, "dir", cfg.Export.Dir)
		os.Exit(1)
	}

	// Optional database: run history and the outbox relay
	var (
		runs  api.RunLister
		relay *storage.Relay
	)
	if cfg.Database.Enabled {
		db, err := storage.New(ctx, cfg.Database.ConnString())
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		runs = storage.NewRunRepository(db)

		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}

		relay = storage.NewRelay(db, redisClient, logger, storage.RelayConfig{
			PollInterval: 5 * time.Second,
			BatchSize:    100,
		})
		go func() {
			if err := relay.Start(ctx); err != nil && err != context.Canceled {
				logger.Error("relay stopped with error", "error", err)
			}
		}()
	}

	// Initialize API handlers
	handlers := api.NewHandlers(catalogSvc, runs, cfg.Export.Dir, logger)

	// Setup Chi router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		path, loaded, count := catalogSvc.Dataset()
		health := map[string]interface{}{
			"status": "ok",
			"dataset": map[string]interface{}{
				"loaded_from": filepath.Base(path),
				"loaded_at":   loaded,
				"records":     count,
			},
		}

		status := http.StatusOK
		if relay != nil {
			pendingCount, _ := relay.GetPendingCount(context.Background())
			deadLetterCount, _ := relay.GetDeadLetterCount(context.Background())

			health["outbox"] = map[string]interface{}{
				"pending":     pendingCount,
				"dead_letter": deadLetterCount,
			}
			if pendingCount > 1000 {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetterCount > 100 {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	// Metrics
	r.Handle("/metrics", promhttp.Handler())

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/records", func(r chi.Router) {
			r.Get("/", handlers.ListRecords)
			r.Get("/export", handlers.ExportRecords)
		})
		r.Get("/brands", handlers.GetBrands)
		r.Get("/stats", handlers.GetStats)
		r.Route("/exports", func(r chi.Router) {
			r.Get("/", handlers.ListExports)
			r.Post("/reload", handlers.ReloadDataset)
		})
		r.Get("/runs", handlers.ListRuns)
	})

	// Start server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	_, _, records := catalogSvc.Dataset()
	logger.Info("server starting", "addr", server.Addr, "records", records)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
