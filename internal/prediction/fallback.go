package prediction

import (
	"math"
	"strconv"
)

// Fallback coefficients.
const (
	spatialLatCoefficient = 0.05
	spatialLonCoefficient = 0.005
	spatialIntercept      = 1.5
	spatialUncertainty    = 0.3

	// zwdToPW is the standard ZWD to PW conversion factor.
	zwdToPW               = 0.16
	conversionUncertainty = 0.15

	// defaultZWD is used when the ZWD observation is missing or unusable.
	defaultZWD = 15.0
)

// Fallback notes.
const (
	noteFormula    = "using fallback formula"
	noteConversion = "using ZWD * 0.16 conversion"
)

// FallbackForCoordinates estimates PW from a coordinate pair alone.
func FallbackForCoordinates(lat, lon float64) Result {
	pw := math.Abs(lat)*spatialLatCoefficient + math.Abs(lon)*spatialLonCoefficient + spatialIntercept
	return Result{
		PredictedPW: round4(pw),
		Uncertainty: spatialUncertainty,
		Method:      MethodFallbackFormula,
		Note:        "Model prediction unavailable, " + noteFormula,
	}
}

// FallbackForZWD converts a zenith wet delay observation to PW.
func FallbackForZWD(zwd float64) Result {
	if math.IsNaN(zwd) || math.IsInf(zwd, 0) {
		zwd = defaultZWD
	}
	return Result{
		PredictedPW: round4(zwd * zwdToPW),
		Uncertainty: conversionUncertainty,
		Method:      MethodFallbackConversion,
		Note:        "Model prediction unavailable, " + noteConversion,
	}
}

// FallbackFromRaw dispatches on key presence the same way the normalizer does:
// latitude+longitude selects the spatial formula, anything else the ZWD conversion.
// It never fails; unusable values fall back to 0 for coordinates and 15 for ZWD.
// Callers holding only an unvalidated payload use it; the Service builds its
// fallback from the normalized record instead.
func FallbackFromRaw(raw map[string]any) Result {
	if hasKey(raw, "latitude") && hasKey(raw, "longitude") {
		lat, _ := toFloat(raw["latitude"])
		lon, _ := toFloat(raw["longitude"])
		return FallbackForCoordinates(lat, lon)
	}

	zwd, ok := toFloat(raw["zwdObservation"])
	if !ok {
		zwd = defaultZWD
	}
	return FallbackForZWD(zwd)
}

// fallbackWithReason tags the fallback note with why the model was skipped.
func fallbackWithReason(r Result, reason string) Result {
	switch r.Method {
	case MethodFallbackFormula:
		r.Note = reason + ", " + noteFormula
	case MethodFallbackConversion:
		r.Note = reason + ", " + noteConversion
	}
	return r
}

// round4 rounds to four decimals through a fixed-point decimal rendering,
// matching how the estimate is displayed.
func round4(v float64) float64 {
	return roundTo(v, 4)
}

func roundTo(v float64, places int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return out
}
