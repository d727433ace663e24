package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/otcheredev/ris-db-connector/internal/adapters"
	"github.com/otcheredev/ris-db-connector/internal/cache"
	"github.com/otcheredev/ris-db-connector/internal/config"
	"github.com/otcheredev/ris-db-connector/internal/database"
	"github.com/otcheredev/ris-db-connector/internal/handlers"
	"github.com/otcheredev/ris-db-connector/internal/metrics"
	"github.com/otcheredev/ris-db-connector/internal/middleware"
	"github.com/otcheredev/ris-db-connector/internal/repository"
	"github.com/otcheredev/ris-db-connector/internal/services"
	"github.com/otcheredev/ris-db-connector/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the manifest server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(envFile)
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load when present")
	return cmd
}

func runServer(envFile string) error {
	// Load configuration
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	log.Info().Msg("Starting DB Connector")

	// Audit database
	var auditStore repository.AuditStore = repository.NopAuditStore{}
	var auditReader handlers.AuditReader
	if cfg.Database.Enabled {
		dbConfig := database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			LogLevel: cfg.Database.LogLevel,
		}
		if err := database.Connect(dbConfig); err != nil {
			return err
		}
		defer database.Close()

		auditRepo := repository.NewAuditRepository()
		auditStore = auditRepo
		auditReader = auditRepo
	} else {
		log.Info().Msg("Audit trail disabled")
	}

	// Initialize cache
	manifestCache, err := newCache(cfg)
	if err != nil {
		return err
	}
	defer manifestCache.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	// Archives
	adapterFactory := adapters.NewAdapterFactory()
	defer adapterFactory.CloseAll()

	registry := services.NewArchiveRegistry(adapterFactory, m)
	if err := registry.LoadDir(context.Background(), cfg.Archives.Dir); err != nil {
		if registry.Len() == 0 {
			return err
		}
		log.Warn().Err(err).Msg("Some archives failed to load")
	}
	if cfg.Archives.Default != "" {
		if err := registry.SetDefault(cfg.Archives.Default); err != nil {
			return err
		}
	}

	// Initialize services
	manifestService := services.NewManifestService(
		registry,
		auditStore,
		manifestCache,
		cfg.Cache.ManifestTTL,
		services.WithManifestObserver(m),
		services.WithBaseURL(cfg.Archives.WadoBaseURL),
	)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(registry, cfg.Database.Enabled)
	manifestHandler := handlers.NewManifestHandler(manifestService)
	archiveHandler := handlers.NewArchiveHandler(registry, auditReader)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(chimiddleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   []string{"Content-Length", "Content-Type", handlers.PartialHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handlers.Mount(r, healthHandler, manifestHandler, archiveHandler)

	// Metrics endpoint
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	// Create server
	addr := cfg.Addr()
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Int("archives", registry.Len()).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return err
	}

	log.Info().Msg("Server stopped")
	return nil
}

type closableCache interface {
	cache.Cache
	Close() error
}

func newCache(cfg *config.Config) (closableCache, error) {
	if cfg.Cache.Enabled && cfg.Cache.Type == "redis" {
		rc, err := cache.NewRedisCache(cache.RedisOptions{
			Addr:      cfg.RedisAddr(),
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Namespace: cfg.Redis.Namespace,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("addr", cfg.RedisAddr()).Msg("Redis cache initialized")
		return rc, nil
	}

	// stored manifests need somewhere to live even with caching disabled
	mc := cache.NewMemoryCache(cache.WithMaxEntries(cfg.Cache.MaxEntries))
	log.Info().Bool("enabled", cfg.Cache.Enabled).Msg("Memory cache initialized")
	return mc, nil
}
