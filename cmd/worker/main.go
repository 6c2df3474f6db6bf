// Package main provides the entrypoint for the zenithpw dataset worker.
//
// Without a Pub/Sub project the worker runs one collection over the configured
// station range and exits. With one it consumes collection jobs until stopped.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/config"
	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/meteo/openmeteo"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/prediction/modelproc"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
	"github.com/zenithpw/zenithpw/internal/station"
	"github.com/zenithpw/zenithpw/internal/telemetry"
	"github.com/zenithpw/zenithpw/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const (
	serviceName = "zenithpw-worker"

	// archiveProvider names the observation archive in the health registry.
	archiveProvider = "cddis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}

	log := zerolog.New(os.Stdout).
		Level(cfg.Level()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting zenithpw worker")

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	stations, err := station.LoadFile(cfg.Worker.StationsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Worker.StationsFile).Msg("failed to load station metadata")
	}
	log.Info().Int("stations", len(stations)).Msg("station metadata loaded")

	registry := resilience.NewRegistry()
	userAgent := serviceName + "/" + Version

	archive := resilience.NewClient(resilience.ClientConfig{
		Name:       archiveProvider,
		Timeout:    cfg.Worker.ArchiveTimeout,
		MaxRetries: 2,
		UserAgent:  userAgent,
		Registry:   registry,
		Logger:     log,
	})

	gateway := meteo.NewGateway(meteo.GatewayConfig{
		Provider: openmeteo.NewClient(openmeteo.ClientConfig{
			BaseURL: cfg.Meteo.BaseURL,
			HTTPClient: resilience.NewClient(resilience.ClientConfig{
				Name:       openmeteo.ProviderName,
				Timeout:    cfg.Meteo.Timeout,
				MaxRetries: cfg.Meteo.MaxRetries,
				UserAgent:  userAgent,
				Registry:   registry,
				Logger:     log,
			}),
			Logger: log,
		}),
		Enabled:     cfg.Meteo.Enabled,
		Timeout:     cfg.Meteo.Timeout,
		MinInterval: cfg.Worker.WeatherInterval,
		Logger:      log,
	})

	predictions := prediction.NewService(prediction.ServiceConfig{
		Runner: modelproc.New(modelproc.Config{
			Command:      cfg.Model.Command,
			Args:         cfg.Model.Args(),
			ArtifactPath: cfg.Model.ArtifactPath,
			Dir:          cfg.Model.Dir,
			TempDir:      cfg.Model.TempDir,
			Timeout:      cfg.Model.Timeout,
			WaitDelay:    cfg.Model.WaitDelay,
			Logger:       log,
		}),
		Breaker: resilience.BreakerConfig{
			Name:         prediction.BreakerName,
			Cooldown:     cfg.Model.BreakerCooldown,
			MinRequests:  cfg.Model.BreakerMinRequests,
			FailureRatio: cfg.Model.BreakerFailureRatio,
		},
		Registry: registry,
		Logger:   log,
	})

	collector, err := worker.NewCollector(worker.CollectorJobConfig{
		Config: worker.CollectorConfig{
			StartIndex:     cfg.Worker.StartIndex,
			EndIndex:       cfg.Worker.EndIndex,
			Days:           cfg.Worker.Days,
			Concurrency:    cfg.Worker.Concurrency,
			ArchiveURL:     cfg.Worker.ArchiveURL,
			ArchiveTimeout: cfg.Worker.ArchiveTimeout,
		},
		Stations:  stations,
		Archive:   archive,
		Weather:   gateway,
		Predictor: predictions,
		Logger:    log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create collector")
	}

	jobs := worker.NewJobHandler(collector, worker.FileSink{Path: cfg.Worker.OutputFile}, log)

	if !cfg.Worker.PubSubEnabled() {
		log.Info().
			Str("output", cfg.Worker.OutputFile).
			Int("days", cfg.Worker.Days).
			Msg("running single collection")
		if err := jobs.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("dataset collection failed")
			os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
		}
		log.Info().Msg("dataset written")
		return
	}

	subscriber, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.Worker.ProjectID,
		SubscriptionName: cfg.Worker.Subscription,
		Jobs:             jobs,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer func() {
		if err := subscriber.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close pubsub client")
		}
	}()

	// Worker also exposes a health endpoint for Cloud Run
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      healthMux(collector, registry),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if err := subscriber.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("pubsub receive stopped")
	}

	log.Info().Msg("shutting down worker")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}

func healthMux(collector *worker.Collector, registry *resilience.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		providers := make(map[string]string)
		for _, h := range registry.All() {
			providers[h.Name] = h.Status()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"version":   Version,
			"collector": collector.MetricsSnapshot(),
			"providers": providers,
		})
	})
	return mux
}
