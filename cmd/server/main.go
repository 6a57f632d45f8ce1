package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"dataset-engine/internal/analysis"
	"dataset-engine/internal/api"
	redisCache "dataset-engine/internal/cache/redis"
	"dataset-engine/internal/config"
	"dataset-engine/internal/datasource"
	"dataset-engine/internal/logger"
	"dataset-engine/internal/metrics"
	"dataset-engine/internal/models"
	"dataset-engine/internal/state"
	"dataset-engine/internal/storage/sqlite"
	"dataset-engine/internal/trainer"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	metrics.Init()

	// Initialize Services
	defaults := models.DefaultConfig()
	defaults.RandomSeed = cfg.Preprocessing.RandomSeed
	defaults.TrainSplit = cfg.Preprocessing.TrainSplit
	defaults.ValidationSplit = cfg.Preprocessing.ValidationSplit
	defaults.TestSplit = cfg.Preprocessing.TestSplit

	var opts []state.Option
	if cfg.Storage.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			logger.Fatal("Failed to create storage directory", zap.Error(err))
		}
		sqliteClient, err := sqlite.NewClient(cfg.Storage.Path)
		if err != nil {
			logger.Fatal("Failed to initialize SQLite", zap.Error(err))
		}
		defer sqliteClient.Close()
		if err := sqliteClient.InitSchema(); err != nil {
			logger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		opts = append(opts, state.WithPersister(sqliteClient))
	}

	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.TTLSec) * time.Second
		cacheClient, err := redisCache.NewClient(cfg.Cache.Host, cfg.Cache.Port, cfg.Cache.Password, cfg.Cache.DB, ttl)
		if err != nil {
			logger.Warn("Redis unavailable, result cache disabled", zap.Error(err))
		} else {
			defer cacheClient.Close()
			opts = append(opts, state.WithCache(cacheClient))
		}
	}

	store := state.NewStore(defaults, opts...)
	csvService := analysis.NewCSVService()

	retry := trainer.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Trainer.MaxAttempts
	trainerService := trainer.NewService(trainer.Config{
		BaseURL: cfg.Trainer.BaseURL,
		Timeout: time.Duration(cfg.Trainer.TimeoutSec) * time.Second,
		Retry:   retry,
	})

	// Initialize Handler
	handler := api.NewHandler(store, csvService, trainerService)
	handler.MaxFileSize = cfg.Server.BodyLimit
	handler.MaxTableRows = cfg.Postgres.MaxRows
	handler.DefaultSource = datasource.Config{
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		DBName:   cfg.Postgres.DBName,
		SSLMode:  cfg.Postgres.SSLMode,
	}

	// Router Setup
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS - Allow frontend
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Dataset Engine is Running"))
	})
	r.Handle("/metrics", metrics.Handler())

	handler.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Starting dataset engine",
			zap.String("addr", addr),
			zap.Strings("cors_origins", cfg.Server.AllowedOrigins),
			zap.Bool("storage", cfg.Storage.Enabled),
			zap.Bool("cache", cfg.Cache.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
