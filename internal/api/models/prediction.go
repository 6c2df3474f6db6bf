package models

import (
	"github.com/zenithpw/zenithpw/internal/history"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/rinex"
)

// FeaturesRequest is the body of POST /v1/predictions/features.
// InputData is kept loosely typed; the prediction normalizer validates it.
type FeaturesRequest struct {
	APIKey    string         `json:"apiKey,omitempty"`
	InputData map[string]any `json:"inputData"`
}

// FeaturesResponse is returned by POST /v1/predictions/features.
type FeaturesResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	Input       prediction.Input  `json:"input"`
	Prediction  prediction.Result `json:"prediction"`
	ProcessedAt Timestamp         `json:"processedAt"`
}

// InterpolationResponse is returned by POST /v1/predictions/interpolation.
type InterpolationResponse struct {
	Success     bool                    `json:"success"`
	Message     string                  `json:"message"`
	Coordinates prediction.SpatialInput `json:"coordinates"`
	Prediction  prediction.Result       `json:"prediction"`
	ProcessedAt Timestamp               `json:"processedAt"`
}

// ErrorAnalysisResponse is returned by POST /v1/predictions/error.
type ErrorAnalysisResponse struct {
	Success     bool                     `json:"success"`
	Message     string                   `json:"message"`
	Analysis    prediction.ErrorAnalysis `json:"analysis"`
	Prediction  prediction.Result        `json:"prediction"`
	ProcessedAt Timestamp                `json:"processedAt"`
}

// ExtractedData is what a RINEX upload resolved to before prediction.
type ExtractedData struct {
	prediction.Input
	TotalObservations int    `json:"totalObservations"`
	SyntheticZWD      bool   `json:"syntheticZwd"`
	StationSource     string `json:"stationSource"`
	WeatherSource     string `json:"weatherSource"`
}

// NewExtractedData merges the prediction input with the extractor summary.
func NewExtractedData(in prediction.Input, sum rinex.Summary, stationSource, weatherSource string) ExtractedData {
	return ExtractedData{
		Input:             in,
		TotalObservations: sum.TotalObservations,
		SyntheticZWD:      sum.Synthetic,
		StationSource:     stationSource,
		WeatherSource:     weatherSource,
	}
}

// FileInfo describes an uploaded RINEX file.
type FileInfo struct {
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	StationID    string    `json:"stationId"`
	ProcessedAt  Timestamp `json:"processedAt"`
}

// RinexResponse is returned by POST /v1/predictions/rinex.
type RinexResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	ExtractedData ExtractedData     `json:"extractedData"`
	Prediction    prediction.Result `json:"prediction"`
	FileInfo      FileInfo          `json:"fileInfo"`
	ProcessedAt   Timestamp         `json:"processedAt"`
}

// HistoryResponse is returned by POST /v1/history.
type HistoryResponse struct {
	Success bool             `json:"success"`
	APIKey  string           `json:"apiKey"`
	History []*history.Entry `json:"history"`
}
