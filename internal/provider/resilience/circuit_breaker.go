// Package resilience wraps calls to external dependencies (weather providers,
// observation archives, the model process) with circuit breakers, timeouts and retries.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the breaker in logs and the health registry.
	Name string

	// MaxRequests allowed while half-open. Default: 1
	MaxRequests uint32

	// Interval clears closed-state counts cyclically. Zero never clears.
	Interval time.Duration

	// Cooldown is how long the breaker stays open before probing. Default: 30s
	Cooldown time.Duration

	// MinRequests and FailureRatio drive the default trip rule. Defaults: 5, 0.5
	MinRequests  uint32
	FailureRatio float64

	// IsSuccessful overrides which errors count as failures.
	IsSuccessful func(err error) bool

	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the breaker defaults used by providers.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Cooldown:     30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// TripAfter trips once at least minRequests were made and the failure ratio reaches ratio.
func TripAfter(minRequests uint32, ratio float64) func(gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests < minRequests || counts.Requests == 0 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
	}
}

// NewBreaker builds a typed circuit breaker from cfg, filling zero fields with defaults.
func NewBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	def := DefaultBreakerConfig(cfg.Name)
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = def.MaxRequests
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = def.MinRequests
	}
	if cfg.FailureRatio == 0 {
		cfg.FailureRatio = def.FailureRatio
	}

	settings := gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Cooldown,
		ReadyToTrip:  TripAfter(cfg.MinRequests, cfg.FailureRatio),
		IsSuccessful: cfg.IsSuccessful,
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}

	return gobreaker.NewCircuitBreaker[T](settings)
}
