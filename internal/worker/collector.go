package worker

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/rinex"
	"github.com/zenithpw/zenithpw/internal/station"
)

// Downloader fetches archive files. *resilience.Client satisfies it.
type Downloader interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Predictor produces a PW estimate for a normalized observation.
// *prediction.Service satisfies it.
type Predictor interface {
	PredictObservation(ctx context.Context, in prediction.Input) prediction.Result
}

// Collector builds a training dataset by combining archived GNSS observations,
// surface meteorology and a PW estimate per station and day.
type Collector struct {
	config    CollectorConfig
	stations  []station.Station
	archive   *ArchiveTemplate
	download  Downloader
	weather   prediction.WeatherSource
	predictor Predictor
	clock     clockwork.Clock
	rng       rinex.Rand
	logger    zerolog.Logger

	metrics *CollectorMetrics
}

// CollectorMetrics tracks collector statistics across runs.
type CollectorMetrics struct {
	mu sync.RWMutex

	TotalRuns      int64
	RowsCollected  int64
	DaysSkipped    int64
	SyntheticZWD   int64
	LastRunAt      time.Time
	LastRunElapsed time.Duration
	TotalDuration  time.Duration
}

// CollectorJobConfig holds configuration for creating a Collector.
type CollectorJobConfig struct {
	Config    CollectorConfig
	Stations  []station.Station
	Archive   Downloader
	Weather   prediction.WeatherSource
	Predictor Predictor

	// Clock supplies "today" (default: real clock).
	Clock clockwork.Clock

	// Rand drives synthetic observation values (default: math/rand/v2).
	Rand rinex.Rand

	Logger zerolog.Logger
}

// NewCollector creates a dataset collector.
func NewCollector(cfg CollectorJobConfig) (*Collector, error) {
	if cfg.Archive == nil {
		return nil, errors.New("collector requires an archive downloader")
	}
	if cfg.Weather == nil {
		return nil, errors.New("collector requires a weather source")
	}
	if cfg.Predictor == nil {
		return nil, errors.New("collector requires a predictor")
	}

	config := cfg.Config
	def := DefaultCollectorConfig()
	if config.Days <= 0 {
		config.Days = def.Days
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.ArchiveURL == "" {
		config.ArchiveURL = def.ArchiveURL
	}
	if config.ArchiveTimeout <= 0 {
		config.ArchiveTimeout = def.ArchiveTimeout
	}

	archive, err := ParseArchiveTemplate(config.ArchiveURL)
	if err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Collector{
		config:    config,
		stations:  slices.Clone(cfg.Stations),
		archive:   archive,
		download:  cfg.Archive,
		weather:   cfg.Weather,
		predictor: cfg.Predictor,
		clock:     clock,
		rng:       cfg.Rand,
		logger:    cfg.Logger,
		metrics:   &CollectorMetrics{},
	}, nil
}

// Row is one dataset record.
type Row struct {
	Input         prediction.Input
	WeatherSource meteo.Source
	SyntheticZWD  bool
	Observations  int
	Prediction    prediction.Result
}

// Result contains the outcome of a collection run.
type Result struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Stations  int
	Attempted int
	Collected int
	Skipped   int
	Rows      []Row
	Errors    []CollectError
}

// CollectError records a station-day that was skipped.
type CollectError struct {
	StationID string
	Date      string
	Error     string
}

type stationResult struct {
	rows   []Row
	errors []CollectError
}

// Run collects every selected station and day. Download failures skip the day;
// the only error returned is context cancellation, alongside the partial result.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	return c.run(ctx, c.config.Select(c.stations), c.config.Days)
}

// RunStations collects the given stations for the configured number of days.
func (c *Collector) RunStations(ctx context.Context, stations []station.Station, days int) (*Result, error) {
	if days <= 0 {
		days = c.config.Days
	}
	return c.run(ctx, stations, days)
}

func (c *Collector) run(ctx context.Context, stations []station.Station, days int) (*Result, error) {
	startTime := c.clock.Now()
	result := &Result{
		StartTime: startTime,
		Stations:  len(stations),
		Attempted: len(stations) * days,
	}

	c.logger.Info().
		Int("stations", len(stations)).
		Int("days", days).
		Int("concurrency", c.config.Concurrency).
		Msg("starting dataset collection")

	today := startTime.UTC()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.config.Concurrency)

	for _, st := range stations {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sr, err := c.collectStation(gctx, st, today, days)
			mu.Lock()
			result.Rows = append(result.Rows, sr.rows...)
			result.Errors = append(result.Errors, sr.errors...)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	slices.SortFunc(result.Rows, func(a, b Row) int {
		if n := cmp.Compare(a.Input.StationID, b.Input.StationID); n != 0 {
			return n
		}
		return cmp.Compare(b.Input.Timestamp, a.Input.Timestamp)
	})

	result.Collected = len(result.Rows)
	result.Skipped = len(result.Errors)
	result.EndTime = c.clock.Now()
	result.Duration = result.EndTime.Sub(startTime)

	c.updateMetrics(result)

	c.logger.Info().
		Dur("duration", result.Duration).
		Int("collected", result.Collected).
		Int("skipped", result.Skipped).
		Msg("dataset collection completed")

	return result, err
}

func (c *Collector) collectStation(ctx context.Context, st station.Station, today time.Time, days int) (stationResult, error) {
	var sr stationResult
	logger := c.logger.With().Str("station_id", st.ID).Logger()

	for offset := range days {
		if err := ctx.Err(); err != nil {
			return sr, err
		}

		at := today.AddDate(0, 0, -offset)
		row, err := c.collectDay(ctx, st, at)
		if err != nil {
			logger.Warn().Err(err).Str("date", at.Format(time.DateOnly)).Msg("skipping station day")
			sr.errors = append(sr.errors, CollectError{
				StationID: st.ID,
				Date:      at.Format(time.DateOnly),
				Error:     err.Error(),
			})
			continue
		}
		sr.rows = append(sr.rows, row)
	}

	logger.Debug().Int("rows", len(sr.rows)).Msg("station completed")
	return sr, nil
}

func (c *Collector) collectDay(ctx context.Context, st station.Station, at time.Time) (Row, error) {
	url, err := c.archive.URL(st.ID, at)
	if err != nil {
		return Row{}, err
	}

	dlCtx, cancel := context.WithTimeout(ctx, c.config.ArchiveTimeout)
	body, err := c.download.Get(dlCtx, url)
	cancel()
	if err != nil {
		return Row{}, fmt.Errorf("downloading %s: %w", FileName(url), err)
	}

	content, err := rinex.Open(bytes.NewReader(body), FileName(url))
	if err != nil {
		return Row{}, err
	}
	summary := rinex.Extract(content, c.rng)
	_ = content.Close()

	cond := c.weather.Fetch(ctx, st.Latitude, st.Longitude, at)

	in := ObservationInput(st, at, summary, cond)
	return Row{
		Input:         in,
		WeatherSource: cond.Source,
		SyntheticZWD:  summary.Synthetic,
		Observations:  summary.TotalObservations,
		Prediction:    c.predictor.PredictObservation(ctx, in),
	}, nil
}

// ObservationInput assembles a feature record for a station at a UTC instant.
func ObservationInput(st station.Station, at time.Time, s rinex.Summary, cond meteo.Conditions) prediction.Input {
	return prediction.NewObservation(st.Site(), at, prediction.Observation{
		ZWD:                s.ZWDObservation,
		SatelliteAzimuth:   s.SatelliteAzimuth,
		SatelliteElevation: s.SatelliteElevation,
	}, cond)
}

func (c *Collector) updateMetrics(result *Result) {
	c.metrics.mu.Lock()
	defer c.metrics.mu.Unlock()

	c.metrics.TotalRuns++
	c.metrics.RowsCollected += int64(result.Collected)
	c.metrics.DaysSkipped += int64(result.Skipped)
	for _, r := range result.Rows {
		if r.SyntheticZWD {
			c.metrics.SyntheticZWD++
		}
	}
	c.metrics.LastRunAt = result.EndTime
	c.metrics.LastRunElapsed = result.Duration
	c.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (c *Collector) GetMetrics() CollectorMetrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	return CollectorMetrics{
		TotalRuns:      c.metrics.TotalRuns,
		RowsCollected:  c.metrics.RowsCollected,
		DaysSkipped:    c.metrics.DaysSkipped,
		SyntheticZWD:   c.metrics.SyntheticZWD,
		LastRunAt:      c.metrics.LastRunAt,
		LastRunElapsed: c.metrics.LastRunElapsed,
		TotalDuration:  c.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (c *Collector) MetricsSnapshot() map[string]any {
	m := c.GetMetrics()
	return map[string]any{
		"total_runs":       m.TotalRuns,
		"rows_collected":   m.RowsCollected,
		"days_skipped":     m.DaysSkipped,
		"synthetic_zwd":    m.SyntheticZWD,
		"last_run_at":      m.LastRunAt,
		"last_run_elapsed": m.LastRunElapsed.String(),
		"total_duration":   m.TotalDuration.String(),
	}
}

// Stations returns the full configured station list.
func (c *Collector) Stations() []station.Station {
	return slices.Clone(c.stations)
}

// StationsByID returns the configured stations matching ids, in id order,
// plus the ids that were not found.
func (c *Collector) StationsByID(ids []string) (found []station.Station, missing []string) {
	for _, id := range ids {
		i := slices.IndexFunc(c.stations, func(s station.Station) bool {
			return strings.EqualFold(s.ID, id)
		})
		if i < 0 {
			missing = append(missing, id)
			continue
		}
		found = append(found, c.stations[i])
	}
	return found, missing
}
