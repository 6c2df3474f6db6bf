package meteo

import (
	"math"
	"math/rand/v2"
	"strconv"
	"time"
)

// Synthetic generation constants.
const (
	syntheticBaseTemp       = 25.0
	syntheticLatLapse       = 0.6
	syntheticSeasonalAmp    = 10.0
	syntheticTempJitter     = 4.0
	syntheticBasePressure   = 1013.0
	syntheticPressureJitter = 10.0
	syntheticBaseHumidity   = 60.0
	syntheticHumidityJitter = 15.0
)

// Generator produces plausible weather when no live data is available.
type Generator struct {
	// uniform returns a value in [0, 1).
	uniform func() float64
}

// NewGenerator creates a Generator. A nil uniform source uses math/rand/v2.
func NewGenerator(uniform func() float64) *Generator {
	if uniform == nil {
		uniform = rand.Float64
	}
	return &Generator{uniform: uniform}
}

// Generate returns synthetic conditions for a location and instant.
// Temperature falls with latitude and follows a sinusoidal seasonal cycle.
func (g *Generator) Generate(lat, lon float64, at time.Time) Conditions {
	month0 := int(at.UTC().Month()) - 1

	base := syntheticBaseTemp - math.Abs(lat)*syntheticLatLapse
	seasonal := math.Sin(float64(month0-3)*math.Pi/6) * syntheticSeasonalAmp

	return Conditions{
		Temperature: round1(base + seasonal + g.jitter(syntheticTempJitter)),
		Pressure:    round1(syntheticBasePressure + g.jitter(syntheticPressureJitter)),
		Humidity:    math.Floor(syntheticBaseHumidity + g.jitter(syntheticHumidityJitter)),
		Source:      SourceSynthetic,
	}
}

// jitter returns a uniform value in [-span, span).
func (g *Generator) jitter(span float64) float64 {
	return g.uniform()*2*span - span
}

func round1(v float64) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 1, 64), 64)
	if err != nil {
		return v
	}
	return out
}
