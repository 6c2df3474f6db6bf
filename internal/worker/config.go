// Package worker provides background dataset collection for zenithpw.
package worker

import (
	"time"

	"github.com/zenithpw/zenithpw/internal/station"
)

// CollectorConfig holds configuration for the dataset collector.
type CollectorConfig struct {
	// StartIndex and EndIndex select stations[StartIndex:EndIndex] from the
	// sorted station list. EndIndex 0 means through the last station.
	StartIndex int
	EndIndex   int

	// Days is how many days back from today are collected per station.
	// Default: 7
	Days int

	// Concurrency is the number of stations processed at once.
	// Default: 4
	Concurrency int

	// ArchiveURL is the observation archive URL template. See ParseArchiveTemplate.
	ArchiveURL string

	// ArchiveTimeout bounds a single archive download.
	// Default: 30 seconds
	ArchiveTimeout time.Duration
}

// DefaultCollectorConfig returns the default collector configuration.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Days:           7,
		Concurrency:    4,
		ArchiveURL:     DefaultArchiveURL,
		ArchiveTimeout: 30 * time.Second,
	}
}

// Select returns the configured slice of stations, clamped to the list bounds.
func (c CollectorConfig) Select(stations []station.Station) []station.Station {
	start := max(c.StartIndex, 0)
	end := len(stations)
	if c.EndIndex > 0 && c.EndIndex < end {
		end = c.EndIndex
	}
	if start >= end {
		return nil
	}
	return stations[start:end]
}
