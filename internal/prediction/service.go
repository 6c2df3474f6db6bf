package prediction

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
)

const meterName = "github.com/zenithpw/zenithpw/internal/prediction"

// BreakerName is the registry name of the model dispatch breaker.
const BreakerName = "model"

// Fallback reasons that are not tied to a dispatch outcome.
const (
	reasonUnavailable = "Model prediction unavailable"
	reasonCircuitOpen = "Model circuit open"
)

// WeatherSource resolves surface meteorology. *meteo.Gateway satisfies it.
type WeatherSource interface {
	Fetch(ctx context.Context, lat, lon float64, at time.Time) meteo.Conditions
}

// ServiceConfig holds configuration for the prediction service.
type ServiceConfig struct {
	// Runner executes the trained model. Nil means always fall back.
	Runner ModelRunner

	// Weather fills meteorology fields the caller left out when EnrichWeather is set.
	Weather       WeatherSource
	EnrichWeather bool

	// Clock supplies "now" for timestamp defaults (default: real clock).
	Clock clockwork.Clock

	// Breaker configures the model dispatch circuit breaker.
	Breaker resilience.BreakerConfig

	// Registry exposes the breaker on the status endpoint when set.
	Registry *resilience.Registry

	// Meter records dispatch outcomes. Defaults to the global meter provider.
	Meter metric.Meter

	Logger zerolog.Logger
}

// Service produces PW predictions. It only ever returns *ValidationError;
// every infrastructure failure degrades to the fallback estimator.
type Service struct {
	runner     ModelRunner
	weather    WeatherSource
	enrich     bool
	normalizer *Normalizer
	breaker    *gobreaker.CircuitBreaker[Outcome]
	registry   *resilience.Registry
	outcomes   metric.Int64Counter
	duration   metric.Float64Histogram
	logger     zerolog.Logger
}

// NewService creates a prediction service.
func NewService(cfg ServiceConfig) *Service {
	breakerCfg := cfg.Breaker
	if breakerCfg.Name == "" {
		breakerCfg.Name = BreakerName
	}
	if breakerCfg.OnStateChange == nil {
		logger := cfg.Logger
		breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("model circuit breaker state changed")
		}
	}
	breaker := resilience.NewBreaker[Outcome](breakerCfg)
	if cfg.Registry != nil {
		cfg.Registry.Register(breakerCfg.Name, breaker)
	}

	s := &Service{
		runner:     cfg.Runner,
		weather:    cfg.Weather,
		enrich:     cfg.EnrichWeather,
		normalizer: NewNormalizer(cfg.Clock),
		breaker:    breaker,
		registry:   cfg.Registry,
		logger:     cfg.Logger,
	}
	s.initMetrics(cfg.Meter)
	return s
}

func (s *Service) initMetrics(meter metric.Meter) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var err error
	s.outcomes, err = meter.Int64Counter(
		"prediction.model.outcome.total",
		metric.WithDescription("Model dispatch outcomes by terminal state"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create prediction outcome counter")
	}

	s.duration, err = meter.Float64Histogram(
		"prediction.model.duration",
		metric.WithDescription("Duration of model dispatches in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to create prediction duration histogram")
	}
}

// ModelAvailable reports whether the trained model artifact is installed.
func (s *Service) ModelAvailable() bool {
	return s.runner != nil && s.runner.Available()
}

// BreakerState returns the model dispatch breaker state.
func (s *Service) BreakerState() gobreaker.State {
	return s.breaker.State()
}

// Predict validates raw input in whichever mode it was supplied and predicts.
// It is the mode-agnostic library entry point; the HTTP handlers call the
// mode-specific methods because each route fixes its mode and echoes the input.
func (s *Service) Predict(ctx context.Context, raw map[string]any) (Result, error) {
	if s.normalizer.Detect(raw) == ModeSpatial {
		p, err := s.PredictSpatial(ctx, raw)
		return p.Result, err
	}
	p, err := s.PredictFromFeatures(ctx, raw)
	return p.Result, err
}

// PredictFromFeatures validates a feature-mode request and predicts.
func (s *Service) PredictFromFeatures(ctx context.Context, raw map[string]any) (FeaturePrediction, error) {
	in, err := s.normalizer.Features(raw)
	if err != nil {
		return FeaturePrediction{}, err
	}

	if s.enrich && s.weather != nil && !in.Supplied.Complete() {
		in = s.enrichWeather(ctx, in)
	}

	return FeaturePrediction{Input: in, Result: s.PredictObservation(ctx, in)}, nil
}

// PredictObservation predicts from an already-normalized feature record.
func (s *Service) PredictObservation(ctx context.Context, in Input) Result {
	return s.dispatch(ctx, in, FallbackForZWD(in.ZWDObservation))
}

// PredictSpatial validates a coordinate-only request and predicts.
func (s *Service) PredictSpatial(ctx context.Context, raw map[string]any) (SpatialPrediction, error) {
	in, err := s.normalizer.Spatial(raw)
	if err != nil {
		return SpatialPrediction{}, err
	}
	return s.predictSpatial(ctx, in), nil
}

// PredictFromCoordinates validates a typed coordinate pair and predicts.
func (s *Service) PredictFromCoordinates(ctx context.Context, lat, lon float64) (SpatialPrediction, error) {
	in, err := s.normalizer.Coordinates(lat, lon)
	if err != nil {
		return SpatialPrediction{}, err
	}
	return s.predictSpatial(ctx, in), nil
}

// AnalyzeError compares estimated PW against the interpolated value at a location.
func (s *Service) AnalyzeError(ctx context.Context, lat, lon, estimated float64) (ErrorAnalysis, SpatialPrediction, error) {
	if math.IsNaN(estimated) || math.IsInf(estimated, 0) {
		verr := &ValidationError{}
		verr.add("estimatedPW", CodeType, "estimatedPW must be numeric")
		return ErrorAnalysis{}, SpatialPrediction{}, verr
	}

	p, err := s.PredictFromCoordinates(ctx, lat, lon)
	if err != nil {
		return ErrorAnalysis{}, SpatialPrediction{}, err
	}
	return Analyze(estimated, p.Result.PredictedPW), p, nil
}

// AnalyzeErrorFromRaw validates a raw error-analysis request and analyzes it.
func (s *Service) AnalyzeErrorFromRaw(ctx context.Context, raw map[string]any) (ErrorAnalysis, SpatialPrediction, error) {
	in, err := s.normalizer.Analysis(raw)
	if err != nil {
		return ErrorAnalysis{}, SpatialPrediction{}, err
	}
	return s.AnalyzeError(ctx, in.Latitude, in.Longitude, in.EstimatedPW)
}

func (s *Service) predictSpatial(ctx context.Context, in SpatialInput) SpatialPrediction {
	return SpatialPrediction{
		Input:  in,
		Result: s.dispatch(ctx, in, FallbackForCoordinates(in.Latitude, in.Longitude)),
	}
}

func (s *Service) enrichWeather(ctx context.Context, in Input) Input {
	cond := s.weather.Fetch(ctx, in.StationLatitude, in.StationLongitude, time.Unix(in.Timestamp, 0))
	if !in.Supplied.Temperature {
		in.Temperature = cond.Temperature
	}
	if !in.Supplied.Pressure {
		in.Pressure = cond.Pressure
	}
	if !in.Supplied.Humidity {
		in.Humidity = cond.Humidity
	}

	s.logger.Debug().
		Str("station_id", in.StationID).
		Str("source", string(cond.Source)).
		Msg("filled missing meteorology")
	return in
}

// errDispatchFailed marks non-success outcomes as breaker failures.
var errDispatchFailed = errors.New("model dispatch failed")

// dispatch runs the model on payload and collapses every non-success path to fb.
func (s *Service) dispatch(ctx context.Context, payload any, fb Result) Result {
	if !s.ModelAvailable() {
		s.record(ctx, "unavailable", 0)
		return fb
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode model payload")
		s.record(ctx, "encode_failed", 0)
		return fallbackWithReason(fb, reasonUnavailable)
	}

	start := time.Now()
	outcome, err := s.breaker.Execute(func() (Outcome, error) {
		o := s.runner.Run(ctx, body)
		if o.Kind != OutcomeSucceeded {
			return o, errDispatchFailed
		}
		return o, nil
	})
	elapsed := time.Since(start)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		s.logger.Warn().Msg("model circuit open, using fallback")
		s.record(ctx, "circuit_open", 0)
		return fallbackWithReason(fb, reasonCircuitOpen)
	}

	s.record(ctx, outcome.Kind.String(), elapsed)

	if outcome.Kind != OutcomeSucceeded {
		s.logFailure(outcome, elapsed)
		if s.registry != nil {
			s.registry.RecordFailure(BreakerName, errors.New(outcome.Reason()))
		}
		return fallbackWithReason(fb, outcome.Reason())
	}

	if s.registry != nil {
		s.registry.RecordSuccess(BreakerName)
	}
	return fromReply(outcome.Reply)
}

func (s *Service) logFailure(o Outcome, elapsed time.Duration) {
	event := s.logger.Warn().
		Str("outcome", o.Kind.String()).
		Dur("elapsed", elapsed)

	switch o.Kind {
	case OutcomeProcessFailed:
		event = event.Int("exit_code", o.ExitCode).Str("stderr", truncate(o.Stderr, 512))
	case OutcomeParseFailed:
		event = event.Str("stdout", truncate(o.Raw, 512))
	}
	event.Msg("model dispatch failed, using fallback")
}

func (s *Service) record(ctx context.Context, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if s.outcomes != nil {
		s.outcomes.Add(ctx, 1, attrs)
	}
	if s.duration != nil && elapsed > 0 {
		s.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// fromReply maps a successful reply to a Result. A reply that reports one of the
// fallback methods keeps it; any other method becomes the model variant.
func fromReply(r Reply) Result {
	method := Method(r.Method)
	if method.IsFallback() {
		return Result{
			PredictedPW: r.PredictedPW,
			Uncertainty: r.Uncertainty,
			Method:      method,
			Note:        r.Note,
		}
	}
	return Result{
		PredictedPW:  r.PredictedPW,
		Uncertainty:  r.Uncertainty,
		Method:       MethodModel,
		ModelVariant: r.Method,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
