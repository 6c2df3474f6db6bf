// Package meteo supplies surface meteorology (temperature, pressure, humidity)
// for a location and instant, from a live provider or a synthetic generator.
package meteo

import (
	"context"
	"time"
)

// Source identifies where Conditions came from.
type Source string

const (
	SourceOpenMeteo Source = "open-meteo"
	SourceSynthetic Source = "synthetic"
)

// Conditions is a single meteorology observation.
type Conditions struct {
	// Temperature in degrees Celsius.
	Temperature float64 `json:"temperature"`

	// Pressure in hPa.
	Pressure float64 `json:"pressure"`

	// Humidity is relative humidity in percent.
	Humidity float64 `json:"humidity"`

	Source Source `json:"source"`
}

// HourlySeries holds parallel hourly arrays for a single day, keyed by the
// provider's local-time strings ("2024-03-15T12:00").
type HourlySeries struct {
	Time        []string
	Temperature []float64
	Pressure    []float64
	Humidity    []float64
}

// At returns the conditions for the first entry whose time starts with prefix.
func (s *HourlySeries) At(prefix string) (Conditions, bool) {
	if s == nil {
		return Conditions{}, false
	}
	for i, t := range s.Time {
		if len(t) < len(prefix) || t[:len(prefix)] != prefix {
			continue
		}
		if i >= len(s.Temperature) || i >= len(s.Pressure) || i >= len(s.Humidity) {
			return Conditions{}, false
		}
		return Conditions{
			Temperature: s.Temperature[i],
			Pressure:    s.Pressure[i],
			Humidity:    s.Humidity[i],
		}, true
	}
	return Conditions{}, false
}

// HourlyProvider fetches one UTC day of hourly meteorology.
type HourlyProvider interface {
	// GetHourly fetches the hourly series for the UTC date of day.
	GetHourly(ctx context.Context, lat, lon float64, day time.Time) (*HourlySeries, error)

	// Name returns the provider name for logging.
	Name() string
}

// hourPrefix is the series key prefix selecting the UTC hour of t.
func hourPrefix(t time.Time) string {
	return t.UTC().Format("2006-01-02T15") + ":"
}
