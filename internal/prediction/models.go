// Package prediction estimates precipitable water (PW) from GNSS zenith wet delay
// observations or from bare coordinates, using a trained model when one is installed
// and a deterministic analytic fallback otherwise.
package prediction

import "strings"

// Method identifies how a PredictionResult was produced.
type Method string

const (
	// MethodModel means the trained regressor produced the estimate.
	MethodModel Method = "model"

	// MethodFallbackFormula is the coordinate-based fallback.
	MethodFallbackFormula Method = "fallback_formula"

	// MethodFallbackConversion is the ZWD-based fallback.
	MethodFallbackConversion Method = "fallback_conversion"
)

// IsFallback reports whether the method is one of the fallback tags.
func (m Method) IsFallback() bool {
	return strings.HasPrefix(string(m), "fallback_")
}

// Mode is the input shape a request was supplied in.
type Mode string

const (
	ModeFeature Mode = "feature"
	ModeSpatial Mode = "spatial"
)

// Default values applied to optional feature fields.
const (
	DefaultStationElevation   = 0.0
	DefaultSatelliteAzimuth   = 180.0
	DefaultSatelliteElevation = 45.0
	DefaultTemperature        = 25.0
	DefaultPressure           = 1013.0
	DefaultHumidity           = 60.0
)

// Input is the canonical feature-mode record handed to the model.
type Input struct {
	StationID          string  `json:"stationId"`
	StationLatitude    float64 `json:"stationLatitude"`
	StationLongitude   float64 `json:"stationLongitude"`
	StationElevation   float64 `json:"stationElevation"`
	ZWDObservation     float64 `json:"zwdObservation"`
	SatelliteAzimuth   float64 `json:"satelliteAzimuth"`
	SatelliteElevation float64 `json:"satelliteElevation"`
	Temperature        float64 `json:"temperature"`
	Pressure           float64 `json:"pressure"`
	Humidity           float64 `json:"humidity"`
	Year               int     `json:"year"`
	Month              int     `json:"month"`
	Day                int     `json:"day"`
	Hour               int     `json:"hour"`
	Minute             int     `json:"minute"`
	Second             int     `json:"second"`
	Timestamp          int64   `json:"timestamp"`
	DateString         string  `json:"dateString"`

	// Supplied records which meteorology fields came from the caller
	// rather than from defaults.
	Supplied Supplied `json:"-"`
}

// Supplied flags optional meteorology fields that were present in the raw request.
type Supplied struct {
	Temperature bool
	Pressure    bool
	Humidity    bool
}

// Complete reports whether every meteorology field was supplied.
func (s Supplied) Complete() bool {
	return s.Temperature && s.Pressure && s.Humidity
}

// SpatialInput is the narrower coordinate-only record used for spatial interpolation.
type SpatialInput struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// AnalysisInput is a validated error-analysis request.
type AnalysisInput struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	EstimatedPW float64 `json:"estimatedPW"`
}

// Result is the outcome of a prediction, model-derived or fallback.
type Result struct {
	PredictedPW  float64 `json:"predicted_pw"`
	Uncertainty  float64 `json:"uncertainty"`
	Method       Method  `json:"method"`
	Note         string  `json:"note,omitempty"`
	ModelVariant string  `json:"model_variant,omitempty"`
}

// FeaturePrediction pairs a normalized feature record with its result,
// so callers can persist both.
type FeaturePrediction struct {
	Input  Input
	Result Result
}

// SpatialPrediction pairs a coordinate record with its result.
type SpatialPrediction struct {
	Input  SpatialInput
	Result Result
}

// Site locates an observing receiver.
type Site struct {
	ID        string
	Latitude  float64
	Longitude float64
	Elevation float64
}
