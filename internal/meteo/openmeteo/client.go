// Package openmeteo implements meteo.HourlyProvider against the Open-Meteo forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
)

const (
	// ProviderName identifies this provider.
	ProviderName = string(meteo.SourceOpenMeteo)

	// DefaultBaseURL is the Open-Meteo forecast endpoint.
	DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

	hourlyVariables = "temperature_2m,relative_humidity_2m,surface_pressure"
)

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL overrides the forecast endpoint.
	BaseURL string

	// HTTPClient is the resilient client to use. If nil, one is created with defaults.
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client is an Open-Meteo API client. No API key is required.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetHourly fetches the hourly series for the UTC date of day.
func (c *Client) GetHourly(ctx context.Context, lat, lon float64, day time.Time) (*meteo.HourlySeries, error) {
	date := day.UTC().Format(time.DateOnly)

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("hourly", hourlyVariables)
	q.Set("start_date", date)
	q.Set("end_date", date)

	body, err := c.httpClient.Get(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetching hourly forecast: %w", err)
	}

	var resp forecastResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	c.logger.Debug().
		Str("date", date).
		Int("hours", len(resp.Hourly.Time)).
		Msg("fetched open-meteo hourly series")

	return resp.toSeries(), nil
}

type forecastResponse struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Hourly    struct {
		Time               []string   `json:"time"`
		Temperature2m      []*float64 `json:"temperature_2m"`
		RelativeHumidity2m []*float64 `json:"relative_humidity_2m"`
		SurfacePressure    []*float64 `json:"surface_pressure"`
	} `json:"hourly"`
}

// toSeries drops hours with any null value so the gateway treats them as missing.
func (r *forecastResponse) toSeries() *meteo.HourlySeries {
	h := r.Hourly
	n := min(len(h.Time), len(h.Temperature2m), len(h.RelativeHumidity2m), len(h.SurfacePressure))

	series := &meteo.HourlySeries{
		Time:        make([]string, 0, n),
		Temperature: make([]float64, 0, n),
		Pressure:    make([]float64, 0, n),
		Humidity:    make([]float64, 0, n),
	}
	for i := 0; i < n; i++ {
		if h.Temperature2m[i] == nil || h.RelativeHumidity2m[i] == nil || h.SurfacePressure[i] == nil {
			continue
		}
		series.Time = append(series.Time, h.Time[i])
		series.Temperature = append(series.Temperature, *h.Temperature2m[i])
		series.Humidity = append(series.Humidity, *h.RelativeHumidity2m[i])
		series.Pressure = append(series.Pressure, *h.SurfacePressure[i])
	}
	return series
}
