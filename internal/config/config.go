// Package config loads process configuration from the environment.
//
// Values are resolved in priority order: OS environment, then a .env file in
// the working directory, then struct defaults. Sub-components receive only the
// section they need.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/database"
	"github.com/zenithpw/zenithpw/internal/telemetry"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config is the top-level configuration shared by the API and the worker.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development" validate:"oneof=development test staging production"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"zenithpw-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`

	Server    ServerConfig
	Database  database.Config
	Telemetry telemetry.Config
	Model     ModelConfig
	Meteo     MeteoConfig
	Storage   StorageConfig
	Worker    WorkerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"45s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequireTLS      bool          `envconfig:"REQUIRE_TLS" default:"false"`

	// RateLimit is requests per minute per client IP on prediction routes.
	RateLimit int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"60" validate:"min=1"`

	// KeyRateLimit is requests per minute per API key on prediction routes.
	KeyRateLimit int `envconfig:"KEY_RATE_LIMIT_PER_MINUTE" default:"30" validate:"min=1"`

	// MaxUploadBytes caps RINEX uploads.
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"52428800" validate:"min=1"`
}

// ModelConfig configures the external model process.
type ModelConfig struct {
	Command      string        `envconfig:"MODEL_COMMAND" default:"python3"`
	Script       string        `envconfig:"MODEL_SCRIPT" default:"model/prediction.py"`
	ArtifactPath string        `envconfig:"MODEL_ARTIFACT_PATH" default:"model/physics_informed_xgb.pkl"`
	Dir          string        `envconfig:"MODEL_DIR"`
	TempDir      string        `envconfig:"MODEL_TEMP_DIR"`
	Timeout      time.Duration `envconfig:"MODEL_TIMEOUT" default:"30s" validate:"min=1ms"`
	WaitDelay    time.Duration `envconfig:"MODEL_WAIT_DELAY" default:"2s"`

	// Breaker trips after BreakerMinRequests dispatches with BreakerFailureRatio failures.
	BreakerMinRequests  uint32        `envconfig:"MODEL_BREAKER_MIN_REQUESTS" default:"5" validate:"min=1"`
	BreakerFailureRatio float64       `envconfig:"MODEL_BREAKER_FAILURE_RATIO" default:"0.5" validate:"gt=0,lte=1"`
	BreakerCooldown     time.Duration `envconfig:"MODEL_BREAKER_COOLDOWN" default:"30s"`
}

// Args returns the arguments that precede the input file path.
func (c ModelConfig) Args() []string {
	if c.Script == "" {
		return nil
	}
	return []string{c.Script}
}

// MeteoConfig configures the meteorology gateway.
type MeteoConfig struct {
	Enabled     bool          `envconfig:"METEO_ENABLED" default:"true"`
	BaseURL     string        `envconfig:"METEO_BASE_URL" default:"https://api.open-meteo.com/v1/forecast" validate:"omitempty,url"`
	Timeout     time.Duration `envconfig:"METEO_TIMEOUT" default:"10s" validate:"min=1ms"`
	MinInterval time.Duration `envconfig:"METEO_MIN_INTERVAL" default:"0s"`
	MaxRetries  uint64        `envconfig:"METEO_MAX_RETRIES" default:"2"`

	// EnrichFeatures fills missing temperature, pressure and humidity on
	// feature-mode requests from the gateway instead of the fixed defaults.
	EnrichFeatures bool `envconfig:"METEO_ENRICH_FEATURES" default:"false"`
}

// StorageConfig selects where API keys and history live.
type StorageConfig struct {
	Backend string `envconfig:"STORAGE_BACKEND" default:"memory" validate:"oneof=memory postgres"`

	// SeedAPIKeys are registered in the in-memory key store at startup.
	SeedAPIKeys []string `envconfig:"SEED_API_KEYS"`
}

// WorkerConfig configures the dataset collector.
type WorkerConfig struct {
	ProjectID    string `envconfig:"PUBSUB_PROJECT_ID"`
	Subscription string `envconfig:"PUBSUB_SUBSCRIPTION" default:"zenithpw-worker"`

	StationsFile string `envconfig:"COLLECTOR_STATIONS_FILE" default:"data/stations.json"`
	StartIndex   int    `envconfig:"COLLECTOR_START_INDEX" default:"0" validate:"min=0"`
	EndIndex     int    `envconfig:"COLLECTOR_END_INDEX" default:"0" validate:"min=0"`
	Days         int    `envconfig:"COLLECTOR_DAYS" default:"7" validate:"min=1,max=366"`
	Concurrency  int    `envconfig:"COLLECTOR_CONCURRENCY" default:"4" validate:"min=1,max=64"`
	OutputFile   string `envconfig:"COLLECTOR_OUTPUT_FILE" default:"gnss_dataset.csv"`

	// ArchiveURL is a text/template rendered per station and day.
	ArchiveURL     string        `envconfig:"COLLECTOR_ARCHIVE_URL" default:"https://cddis.nasa.gov/archive/gps/data/daily/{{.Year}}/{{.DOY}}/{{.YY}}o/{{.Station}}{{.DOY}}0.{{.YY}}o.gz"`
	ArchiveTimeout time.Duration `envconfig:"COLLECTOR_ARCHIVE_TIMEOUT" default:"30s"`

	// WeatherInterval spaces out live weather lookups made by the collector.
	WeatherInterval time.Duration `envconfig:"COLLECTOR_WEATHER_INTERVAL" default:"1s"`
}

// PubSubEnabled reports whether the worker should consume jobs from Pub/Sub.
func (c WorkerConfig) PubSubEnabled() bool {
	return c.ProjectID != ""
}

// Level returns the zerolog level for LogLevel, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// IsProduction reports whether the service runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ErrorType classifies configuration failures.
type ErrorType string

const (
	ErrParsing    ErrorType = "parsing"
	ErrValidation ErrorType = "validation"
)

// Error is returned by Load.
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Load reads configuration from the environment and validates it.
// A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &Error{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, &Error{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if cfg.Worker.EndIndex != 0 && cfg.Worker.EndIndex < cfg.Worker.StartIndex {
		return nil, &Error{
			Type:    ErrValidation,
			Message: fmt.Sprintf("COLLECTOR_END_INDEX %d is before COLLECTOR_START_INDEX %d", cfg.Worker.EndIndex, cfg.Worker.StartIndex),
		}
	}

	return &cfg, nil
}
