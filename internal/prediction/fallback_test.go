package prediction_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zenithpw/zenithpw/internal/prediction"
)

func TestFallbackForCoordinates(t *testing.T) {
	got := prediction.FallbackForCoordinates(34.0522, -118.2437)

	// 1.70261 + 0.5912185 + 1.5
	assert.Equal(t, 3.7938, got.PredictedPW)
	assert.Equal(t, 0.3, got.Uncertainty)
	assert.Equal(t, prediction.MethodFallbackFormula, got.Method)
	assert.Equal(t, "Model prediction unavailable, using fallback formula", got.Note)
}

func TestFallbackForZWD(t *testing.T) {
	got := prediction.FallbackForZWD(15.23)

	assert.Equal(t, 2.4368, got.PredictedPW)
	assert.Equal(t, 0.15, got.Uncertainty)
	assert.Equal(t, prediction.MethodFallbackConversion, got.Method)
	assert.Equal(t, "Model prediction unavailable, using ZWD * 0.16 conversion", got.Note)
}

func TestFallbackFromRaw(t *testing.T) {
	tests := []struct {
		name   string
		raw    map[string]any
		pw     float64
		method prediction.Method
	}{
		{"spatial", map[string]any{"latitude": 28.6139, "longitude": 77.2090}, 3.3167, prediction.MethodFallbackFormula},
		{"feature", map[string]any{"zwdObservation": 15.23}, 2.4368, prediction.MethodFallbackConversion},
		{"feature numeric string", map[string]any{"zwdObservation": "10"}, 1.6, prediction.MethodFallbackConversion},
		{"missing zwd defaults to 15", map[string]any{}, 2.4, prediction.MethodFallbackConversion},
		{"garbage zwd defaults to 15", map[string]any{"zwdObservation": "n/a"}, 2.4, prediction.MethodFallbackConversion},
		{"only latitude is feature mode", map[string]any{"latitude": 10.0, "zwdObservation": 20.0}, 3.2, prediction.MethodFallbackConversion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := prediction.FallbackFromRaw(tt.raw)
			assert.Equal(t, tt.pw, got.PredictedPW)
			assert.Equal(t, tt.method, got.Method)
		})
	}
}

func TestFallback_Idempotent(t *testing.T) {
	raw := map[string]any{"latitude": -33.8688, "longitude": 151.2093}
	assert.Equal(t, prediction.FallbackFromRaw(raw), prediction.FallbackFromRaw(raw))
	assert.Equal(t, prediction.FallbackForZWD(7.77), prediction.FallbackForZWD(7.77))
}

func TestMethod_IsFallback(t *testing.T) {
	assert.True(t, prediction.MethodFallbackFormula.IsFallback())
	assert.True(t, prediction.MethodFallbackConversion.IsFallback())
	assert.False(t, prediction.MethodModel.IsFallback())
}
