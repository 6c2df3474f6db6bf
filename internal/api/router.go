// Package api provides the HTTP API for zenithpw.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/api/handler"
	"github.com/zenithpw/zenithpw/internal/api/middleware"
	"github.com/zenithpw/zenithpw/internal/api/response"
	"github.com/zenithpw/zenithpw/internal/apikey"
	"github.com/zenithpw/zenithpw/internal/history"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
	"github.com/zenithpw/zenithpw/internal/rinex"
)

// Router defaults.
const (
	DefaultRateLimitPerMinute    = 60
	DefaultKeyRateLimitPerMinute = 30
	DefaultMaxUploadBytes        = 50 << 20

	// maxJSONBytes bounds JSON request bodies.
	maxJSONBytes = 1 << 20
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	ServiceName string
	Logger      zerolog.Logger
	Metrics     *middleware.Metrics

	RequireTLS            bool
	RateLimitPerMinute    int
	KeyRateLimitPerMinute int
	MaxUploadBytes        int64

	Predictions *prediction.Service
	APIKeys     apikey.Repository
	History     history.Repository

	// Stations resolves RINEX uploads to known receiver positions. Optional.
	Stations handler.StationLookup

	// Weather serves includeMeteoData uploads; Synthetic serves the rest.
	Weather   prediction.WeatherSource
	Synthetic handler.SyntheticWeather
	Rand      rinex.Rand

	// Database is pinged by the readiness check. Nil for in-memory storage.
	Database handler.Pinger
	Registry *resilience.Registry
	Clock    clockwork.Clock
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "zenithpw-api"
	}
	perIP := orDefault(cfg.RateLimitPerMinute, DefaultRateLimitPerMinute)
	perKey := orDefault(cfg.KeyRateLimitPerMinute, DefaultKeyRateLimitPerMinute)
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "route not found")
	})

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Database:  cfg.Database,
		Registry:  cfg.Registry,
		Model:     cfg.Predictions,
		Clock:     cfg.Clock,
	})
	predictionHandler := handler.NewPredictionHandler(cfg.Predictions, cfg.History, cfg.Clock, cfg.Logger)
	rinexHandler := handler.NewRinexHandler(handler.RinexConfig{
		Predictor: cfg.Predictions,
		Stations:  cfg.Stations,
		Weather:   cfg.Weather,
		Synthetic: cfg.Synthetic,
		History:   cfg.History,
		Rand:      cfg.Rand,
		Clock:     cfg.Clock,
		Logger:    cfg.Logger,
	})
	historyHandler := handler.NewHistoryHandler(cfg.History, cfg.Logger)

	ipRateLimit := middleware.RateLimitByIP(middleware.PerMinute(perIP))
	keyRateLimit := middleware.RateLimitByAPIKey(middleware.PerMinute(perKey))
	consumeKey := middleware.APIKey(cfg.APIKeys, middleware.ConsumeKey, cfg.Logger)
	verifyKey := middleware.APIKey(cfg.APIKeys, middleware.VerifyKey, cfg.Logger)
	jsonBody := chimiddleware.RequestSize(maxJSONBytes)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(ipRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		// Prediction endpoints - every call consumes API-key quota
		r.Route("/predictions", func(r chi.Router) {
			r.Use(ipRateLimit)

			r.Group(func(r chi.Router) {
				r.Use(jsonBody, middleware.RequireJSON, consumeKey, keyRateLimit)
				r.Post("/features", predictionHandler.Features)
				r.Post("/interpolation", predictionHandler.Interpolation)
				r.Post("/error", predictionHandler.ErrorAnalysis)
			})

			r.With(
				chimiddleware.RequestSize(maxUpload),
				middleware.RequireMultipart,
				consumeKey,
				keyRateLimit,
			).Post("/rinex", rinexHandler.Upload)
		})

		// History reads do not count against the key
		r.With(ipRateLimit, jsonBody, middleware.RequireJSON, verifyKey, keyRateLimit).
			Post("/history", historyHandler.List)
	})

	return r
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
