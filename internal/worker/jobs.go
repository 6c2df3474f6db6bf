package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Job types accepted by the worker.
const (
	JobCollectDataset = "collect_dataset"
	JobHealthCheck    = "health_check"
)

var (
	// ErrUnknownJob is returned for job types the worker does not handle.
	// Such messages are acknowledged so they are not redelivered.
	ErrUnknownJob = errors.New("unknown job type")

	// ErrMalformedJob is returned when a job message cannot be decoded.
	ErrMalformedJob = errors.New("malformed job message")
)

// JobMessage is the payload of a worker job.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Stations restricts collection to these station IDs. Empty uses the configured range.
	Stations []string `json:"stations,omitempty"`

	// Days overrides the configured days per station.
	Days int `json:"days,omitempty"`
}

// JobHandler executes decoded job messages against the collector.
type JobHandler struct {
	collector *Collector
	sink      DatasetSink
	logger    zerolog.Logger
}

// NewJobHandler creates a job handler. A nil sink discards collected rows.
func NewJobHandler(collector *Collector, sink DatasetSink, logger zerolog.Logger) *JobHandler {
	return &JobHandler{collector: collector, sink: sink, logger: logger}
}

// Handle decodes and runs a single job.
func (h *JobHandler) Handle(ctx context.Context, data []byte) error {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}

	switch msg.JobType {
	case JobCollectDataset:
		return h.collectDataset(ctx, msg)
	case JobHealthCheck:
		return h.healthCheck(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJob, msg.JobType)
	}
}

// RunOnce collects the configured station range and writes it to the sink,
// as a collect_dataset job without overrides would.
func (h *JobHandler) RunOnce(ctx context.Context) error {
	return h.collectDataset(ctx, JobMessage{JobType: JobCollectDataset})
}

func (h *JobHandler) collectDataset(ctx context.Context, msg JobMessage) error {
	var (
		result *Result
		err    error
	)
	if len(msg.Stations) > 0 {
		stations, missing := h.collector.StationsByID(msg.Stations)
		if len(missing) > 0 {
			h.logger.Warn().
				Str("missing", strings.Join(missing, ",")).
				Msg("requested stations not in metadata")
		}
		result, err = h.collector.RunStations(ctx, stations, msg.Days)
	} else if msg.Days > 0 {
		result, err = h.collector.RunStations(ctx, h.collector.config.Select(h.collector.stations), msg.Days)
	} else {
		result, err = h.collector.Run(ctx)
	}
	if err != nil {
		return fmt.Errorf("collecting dataset: %w", err)
	}

	if result.Attempted > 0 && result.Collected == 0 {
		return fmt.Errorf("no rows collected: %d/%d station days skipped", result.Skipped, result.Attempted)
	}

	if h.sink != nil {
		if err := h.sink.Write(ctx, result.Rows); err != nil {
			return fmt.Errorf("writing dataset: %w", err)
		}
	}

	h.logger.Info().
		Int("collected", result.Collected).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("dataset collection job completed")
	return nil
}

// healthCheck collects one day for the first selected station to verify
// archive and weather connectivity.
func (h *JobHandler) healthCheck(ctx context.Context) error {
	h.logger.Debug().Msg("running health check")

	stations := h.collector.config.Select(h.collector.stations)
	if len(stations) == 0 {
		return errors.New("health check failed: no stations configured")
	}

	result, err := h.collector.RunStations(ctx, stations[:1], 1)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result.Collected == 0 {
		return fmt.Errorf("health check failed: %d errors", result.Skipped)
	}

	h.logger.Debug().Msg("health check passed")
	return nil
}
