// Package main provides the entrypoint for the zenithpw API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/api"
	"github.com/zenithpw/zenithpw/internal/api/handler"
	"github.com/zenithpw/zenithpw/internal/api/middleware"
	"github.com/zenithpw/zenithpw/internal/apikey"
	"github.com/zenithpw/zenithpw/internal/config"
	"github.com/zenithpw/zenithpw/internal/database"
	"github.com/zenithpw/zenithpw/internal/history"
	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/meteo/openmeteo"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/prediction/modelproc"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
	"github.com/zenithpw/zenithpw/internal/station"
	"github.com/zenithpw/zenithpw/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "zenithpw-api: %v\n", err)
		os.Exit(1)
	}
	serviceName := cfg.ServiceName

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting zenithpw API")

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryCfg := cfg.Telemetry
	telemetryCfg.ServiceName = serviceName
	telemetryCfg.ServiceVersion = Version
	telemetryCfg.Environment = cfg.Environment

	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics(nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	registry := resilience.NewRegistry()

	// Storage for API keys and request history
	var (
		keys     apikey.Repository
		requests history.Repository
		db       handler.Pinger
	)
	switch cfg.Storage.Backend {
	case config.StoragePostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if cfg.Database.EnsureSchema {
			if err := database.EnsureSchema(ctx, pool); err != nil {
				log.Fatal().Err(err).Msg("failed to apply database schema")
			}
		}

		keys = apikey.NewPostgresRepository(pool)
		requests = history.NewPostgresRepository(pool)
		db = pool
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	default:
		keys = apikey.NewInMemoryRepository(cfg.Storage.SeedAPIKeys...)
		requests = history.NewInMemoryRepository()
		log.Warn().
			Int("seed_keys", len(cfg.Storage.SeedAPIKeys)).
			Msg("using in-memory storage, keys and history are lost on restart")
	}

	// Meteorology: Open-Meteo with synthetic fallback
	generator := meteo.NewGenerator(nil)
	meteoClient := openmeteo.NewClient(openmeteo.ClientConfig{
		BaseURL: cfg.Meteo.BaseURL,
		HTTPClient: resilience.NewClient(resilience.ClientConfig{
			Name:       openmeteo.ProviderName,
			Timeout:    cfg.Meteo.Timeout,
			MaxRetries: cfg.Meteo.MaxRetries,
			UserAgent:  serviceName + "/" + Version,
			Registry:   registry,
			Logger:     log,
		}),
		Logger: log,
	})
	gateway := meteo.NewGateway(meteo.GatewayConfig{
		Provider:    meteoClient,
		Enabled:     cfg.Meteo.Enabled,
		Timeout:     cfg.Meteo.Timeout,
		MinInterval: cfg.Meteo.MinInterval,
		Generator:   generator,
		Logger:      log,
	})
	log.Info().Bool("live", gateway.Enabled()).Msg("meteo gateway initialized")

	// Trained model process
	runner := modelproc.New(modelproc.Config{
		Command:      cfg.Model.Command,
		Args:         cfg.Model.Args(),
		ArtifactPath: cfg.Model.ArtifactPath,
		Dir:          cfg.Model.Dir,
		TempDir:      cfg.Model.TempDir,
		Timeout:      cfg.Model.Timeout,
		WaitDelay:    cfg.Model.WaitDelay,
		Logger:       log,
	})
	if !runner.Available() {
		log.Warn().
			Str("artifact", cfg.Model.ArtifactPath).
			Msg("trained model not found, predictions will use the fallback estimator")
	}

	predictions := prediction.NewService(prediction.ServiceConfig{
		Runner:        runner,
		Weather:       gateway,
		EnrichWeather: cfg.Meteo.EnrichFeatures,
		Breaker: resilience.BreakerConfig{
			Name:         prediction.BreakerName,
			Cooldown:     cfg.Model.BreakerCooldown,
			MinRequests:  cfg.Model.BreakerMinRequests,
			FailureRatio: cfg.Model.BreakerFailureRatio,
		},
		Registry: registry,
		Logger:   log,
	})
	log.Info().Bool("model_available", predictions.ModelAvailable()).Msg("prediction service initialized")

	// Station metadata resolves RINEX uploads to known positions
	var stations *station.Directory
	if list, err := station.LoadFile(cfg.Worker.StationsFile); err != nil {
		log.Warn().
			Err(err).
			Str("path", cfg.Worker.StationsFile).
			Msg("station metadata unavailable, uploads rely on form or synthetic coordinates")
	} else {
		stations = station.NewDirectory(list)
		log.Info().Int("stations", stations.Len()).Msg("station metadata loaded")
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:               Version,
		BuildTime:             BuildTime,
		ServiceName:           serviceName,
		Logger:                log,
		Metrics:               metrics,
		RequireTLS:            cfg.Server.RequireTLS,
		RateLimitPerMinute:    cfg.Server.RateLimit,
		KeyRateLimitPerMinute: cfg.Server.KeyRateLimit,
		MaxUploadBytes:        cfg.Server.MaxUploadBytes,
		Predictions:           predictions,
		APIKeys:               keys,
		History:               requests,
		Stations:              stations,
		Weather:               gateway,
		Synthetic:             generator,
		Database:              db,
		Registry:              registry,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
