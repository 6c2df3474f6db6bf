package prediction

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// RequiredFeatureFields lists the feature-mode fields that must be present,
// in the order they are reported when missing.
var RequiredFeatureFields = []string{
	"stationId",
	"year",
	"month",
	"day",
	"hour",
	"minute",
	"second",
	"stationLatitude",
	"stationLongitude",
	"zwdObservation",
}

// Normalizer validates and coerces raw key-value requests into canonical records.
type Normalizer struct {
	clock clockwork.Clock
}

// NewNormalizer creates a Normalizer. A nil clock uses real time.
func NewNormalizer(clock clockwork.Clock) *Normalizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Normalizer{clock: clock}
}

// Detect returns ModeSpatial when both latitude and longitude are present,
// ModeFeature otherwise.
func (n *Normalizer) Detect(raw map[string]any) Mode {
	if hasKey(raw, "latitude") && hasKey(raw, "longitude") {
		return ModeSpatial
	}
	return ModeFeature
}

// Features validates a feature-mode request and applies defaults for optional fields.
func (n *Normalizer) Features(raw map[string]any) (Input, error) {
	verr := &ValidationError{}
	for _, field := range RequiredFeatureFields {
		if !hasKey(raw, field) {
			verr.add(field, CodeRequired, field+" is required")
		}
	}
	if err := verr.orNil(); err != nil {
		return Input{}, err
	}

	in := Input{
		StationID: strings.TrimSpace(fmt.Sprint(raw["stationId"])),
		Year:      requiredInt(verr, raw, "year"),
		Month:     requiredInt(verr, raw, "month"),
		Day:       requiredInt(verr, raw, "day"),
		Hour:      requiredInt(verr, raw, "hour"),
		Minute:    requiredInt(verr, raw, "minute"),
		Second:    requiredInt(verr, raw, "second"),
	}
	in.StationLatitude = requiredFloat(verr, raw, "stationLatitude")
	in.StationLongitude = requiredFloat(verr, raw, "stationLongitude")
	in.ZWDObservation = requiredFloat(verr, raw, "zwdObservation")

	in.StationElevation, _ = optionalFloat(verr, raw, "stationElevation", DefaultStationElevation)
	in.SatelliteAzimuth, _ = optionalFloat(verr, raw, "satelliteAzimuth", DefaultSatelliteAzimuth)
	in.SatelliteElevation, _ = optionalFloat(verr, raw, "satelliteElevation", DefaultSatelliteElevation)
	in.Temperature, in.Supplied.Temperature = optionalFloat(verr, raw, "temperature", DefaultTemperature)
	in.Pressure, in.Supplied.Pressure = optionalFloat(verr, raw, "pressure", DefaultPressure)
	in.Humidity, in.Supplied.Humidity = optionalFloat(verr, raw, "humidity", DefaultHumidity)

	now := n.clock.Now().UTC()
	in.Timestamp = now.Unix()
	if hasKey(raw, "timestamp") {
		ts, ok := toInt(raw["timestamp"])
		if !ok {
			verr.add("timestamp", CodeType, "timestamp must be an integer")
		}
		in.Timestamp = ts
	}
	in.DateString = now.Format(time.RFC3339Nano)
	if hasKey(raw, "dateString") {
		in.DateString = strings.TrimSpace(fmt.Sprint(raw["dateString"]))
	}

	checkRange(verr, "stationLatitude", in.StationLatitude, -90, 90)
	checkRange(verr, "stationLongitude", in.StationLongitude, -180, 180)

	if err := verr.orNil(); err != nil {
		return Input{}, err
	}
	return in, nil
}

// Spatial validates a coordinate-only request. Values must be JSON numbers;
// numeric-looking strings are rejected.
func (n *Normalizer) Spatial(raw map[string]any) (SpatialInput, error) {
	verr := &ValidationError{}
	for _, field := range []string{"latitude", "longitude"} {
		if !hasKey(raw, field) {
			verr.add(field, CodeRequired, field+" is required")
		}
	}
	if err := verr.orNil(); err != nil {
		return SpatialInput{}, err
	}

	lat, latOK := strictNumber(raw["latitude"])
	lon, lonOK := strictNumber(raw["longitude"])
	if !latOK {
		verr.add("latitude", CodeType, "latitude must be a number")
	}
	if !lonOK {
		verr.add("longitude", CodeType, "longitude must be a number")
	}
	if err := verr.orNil(); err != nil {
		return SpatialInput{}, err
	}

	return n.Coordinates(lat, lon)
}

// Coordinates validates a typed coordinate pair.
func (n *Normalizer) Coordinates(lat, lon float64) (SpatialInput, error) {
	verr := &ValidationError{}
	checkRange(verr, "latitude", lat, -90, 90)
	checkRange(verr, "longitude", lon, -180, 180)
	if err := verr.orNil(); err != nil {
		return SpatialInput{}, err
	}
	return SpatialInput{Latitude: lat, Longitude: lon}, nil
}

// Analysis validates an error-analysis request. Numeric strings are accepted
// for all three fields.
func (n *Normalizer) Analysis(raw map[string]any) (AnalysisInput, error) {
	verr := &ValidationError{}
	for _, field := range []string{"latitude", "longitude", "estimatedPW"} {
		if !hasKey(raw, field) {
			verr.add(field, CodeRequired, field+" is required")
		}
	}
	if err := verr.orNil(); err != nil {
		return AnalysisInput{}, err
	}

	in := AnalysisInput{
		Latitude:    requiredFloat(verr, raw, "latitude"),
		Longitude:   requiredFloat(verr, raw, "longitude"),
		EstimatedPW: requiredFloat(verr, raw, "estimatedPW"),
	}
	checkRange(verr, "latitude", in.Latitude, -90, 90)
	checkRange(verr, "longitude", in.Longitude, -180, 180)

	if err := verr.orNil(); err != nil {
		return AnalysisInput{}, err
	}
	return in, nil
}

func checkRange(verr *ValidationError, field string, v, lo, hi float64) {
	if math.IsNaN(v) || v < lo || v > hi {
		verr.add(field, CodeRange, fmt.Sprintf("%s must be between %g and %g", field, lo, hi))
	}
}

func requiredFloat(verr *ValidationError, raw map[string]any, field string) float64 {
	v, ok := toFloat(raw[field])
	if !ok {
		verr.add(field, CodeType, field+" must be numeric")
	}
	return v
}

func requiredInt(verr *ValidationError, raw map[string]any, field string) int {
	v, ok := toInt(raw[field])
	if !ok {
		verr.add(field, CodeType, field+" must be an integer")
	}
	return int(v)
}

// optionalFloat returns the coerced value and true when the field was supplied,
// or the default and false when it was absent.
func optionalFloat(verr *ValidationError, raw map[string]any, field string, def float64) (float64, bool) {
	if !hasKey(raw, field) {
		return def, false
	}
	v, ok := toFloat(raw[field])
	if !ok {
		verr.add(field, CodeType, field+" must be numeric")
		return def, false
	}
	return v, true
}

// hasKey reports whether the field is present with a usable value.
// Null and blank strings count as absent.
func hasKey(raw map[string]any, field string) bool {
	v, ok := raw[field]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

// toFloat coerces numbers and numeric strings. Non-finite values are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// toInt coerces integral numbers and integer strings.
func toInt(v any) (int64, bool) {
	f, ok := toFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// strictNumber accepts only numeric types, never strings.
func strictNumber(v any) (float64, bool) {
	if _, isStr := v.(string); isStr {
		return 0, false
	}
	return toFloat(v)
}
