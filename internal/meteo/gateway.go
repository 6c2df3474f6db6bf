package meteo

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/zenithpw/zenithpw/internal/meteo"

// GatewayConfig configures the meteorology gateway.
type GatewayConfig struct {
	// Provider is the live hourly data source. Nil means synthetic only.
	Provider HourlyProvider

	// Enabled turns live lookups on. When false every fetch is synthetic.
	Enabled bool

	// Timeout bounds a single live lookup, including the rate-limit wait
	// (default: 10 seconds).
	Timeout time.Duration

	// MinInterval spaces out live lookups (default: none).
	MinInterval time.Duration

	// Generator supplies synthetic conditions (default: NewGenerator(nil)).
	Generator *Generator

	// Meter records fetch outcomes. Defaults to the global meter provider.
	Meter metric.Meter

	Logger zerolog.Logger
}

// Gateway resolves conditions for a location and instant, preferring live data
// and falling back to synthetic values on any failure.
type Gateway struct {
	provider  HourlyProvider
	enabled   bool
	timeout   time.Duration
	limiter   *RateLimiter
	generator *Generator
	fetches   metric.Int64Counter
	logger    zerolog.Logger
}

// NewGateway creates a Gateway.
func NewGateway(cfg GatewayConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	generator := cfg.Generator
	if generator == nil {
		generator = NewGenerator(nil)
	}

	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	fetches, err := meter.Int64Counter(
		"meteo.gateway.fetch.total",
		metric.WithDescription("Meteorology lookups by resolved source"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		cfg.Logger.Warn().Err(err).Msg("failed to create meteo gateway counter")
	}

	return &Gateway{
		provider:  cfg.Provider,
		enabled:   cfg.Enabled && cfg.Provider != nil,
		timeout:   timeout,
		limiter:   NewRateLimiter(cfg.MinInterval),
		generator: generator,
		fetches:   fetches,
		logger:    cfg.Logger,
	}
}

// Enabled reports whether live lookups are attempted.
func (g *Gateway) Enabled() bool {
	return g.enabled
}

// Fetch returns conditions for the UTC hour of at. It never fails: a disabled
// gateway, a rate-limit wait error, a provider error, a timeout or a missing hour
// all resolve to synthetic conditions.
func (g *Gateway) Fetch(ctx context.Context, lat, lon float64, at time.Time) Conditions {
	if !g.enabled {
		return g.synthetic(ctx, lat, lon, at, "disabled")
	}

	// The timeout covers the limiter wait as well as the lookup.
	fetchCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(fetchCtx); err != nil {
		g.logger.Warn().Err(err).Msg("meteo rate limiter wait failed, using synthetic data")
		return g.synthetic(ctx, lat, lon, at, "rate_limited")
	}

	series, err := g.provider.GetHourly(fetchCtx, lat, lon, at)
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("provider", g.provider.Name()).
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("weather API failed, using synthetic data")
		return g.synthetic(ctx, lat, lon, at, "provider_error")
	}

	cond, ok := series.At(hourPrefix(at))
	if !ok {
		g.logger.Debug().
			Str("hour", hourPrefix(at)).
			Msg("requested hour missing from provider response, using synthetic data")
		return g.synthetic(ctx, lat, lon, at, "hour_missing")
	}

	cond.Source = Source(g.provider.Name())
	g.record(ctx, cond.Source, "ok")
	return cond
}

func (g *Gateway) synthetic(ctx context.Context, lat, lon float64, at time.Time, reason string) Conditions {
	g.record(ctx, SourceSynthetic, reason)
	return g.generator.Generate(lat, lon, at)
}

func (g *Gateway) record(ctx context.Context, source Source, reason string) {
	if g.fetches == nil {
		return
	}
	g.fetches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", string(source)),
		attribute.String("reason", reason),
	))
}
