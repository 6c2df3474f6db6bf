package prediction

import (
	"math"
	"strconv"
)

// Interpretation thresholds on relative error, in percent.
const (
	excellentBelow = 2.0
	goodBelow      = 5.0
	fairBelow      = 10.0
)

// Interpretations of an error analysis.
const (
	InterpretationExcellent   = "Excellent estimate! Very close to interpolated value."
	InterpretationGood        = "Good estimate. Reasonably close to interpolated value."
	InterpretationFair        = "Fair estimate. Some deviation from interpolated value."
	InterpretationSignificant = "Significant deviation. Consider recalibrating your estimation."
)

// ErrorAnalysis compares a caller's PW estimate with the interpolated value.
type ErrorAnalysis struct {
	EstimatedPW    float64 `json:"estimatedPW"`
	InterpolatedPW float64 `json:"interpolatedPW"`

	// AbsoluteError is |estimated - interpolated| with four decimals.
	AbsoluteError string `json:"absoluteError"`

	// RelativeError is the absolute error as a percentage of the interpolated
	// value, with two decimals. "Infinity" when the interpolated value is zero.
	RelativeError string `json:"relativeError"`

	Interpretation string `json:"interpretation"`
}

// Analyze computes the error analysis. The interpretation is chosen from the
// rounded relative error, so 1.996% reads as "2.00" and is rated Good.
func Analyze(estimated, interpolated float64) ErrorAnalysis {
	abs := math.Abs(estimated - interpolated)

	var rel float64
	switch {
	case interpolated != 0:
		rel = abs / math.Abs(interpolated) * 100
	case abs == 0:
		rel = 0
	default:
		rel = math.Inf(1)
	}

	relText := "Infinity"
	if !math.IsInf(rel, 0) {
		relText = strconv.FormatFloat(rel, 'f', 2, 64)
		rel = roundTo(rel, 2)
	}

	return ErrorAnalysis{
		EstimatedPW:    estimated,
		InterpolatedPW: interpolated,
		AbsoluteError:  strconv.FormatFloat(abs, 'f', 4, 64),
		RelativeError:  relText,
		Interpretation: interpret(rel),
	}
}

func interpret(relative float64) string {
	switch {
	case relative < excellentBelow:
		return InterpretationExcellent
	case relative < goodBelow:
		return InterpretationGood
	case relative < fairBelow:
		return InterpretationFair
	default:
		return InterpretationSignificant
	}
}
