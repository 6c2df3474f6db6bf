package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithpw/zenithpw/internal/api"
	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/apikey"
	"github.com/zenithpw/zenithpw/internal/history"
	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
	"github.com/zenithpw/zenithpw/internal/station"
)

const testKey = "test-key"

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type fixedRand struct {
	f float64
	n int
}

func (r fixedRand) Float64() float64 { return r.f }
func (r fixedRand) IntN(int) int     { return r.n }

type testEnv struct {
	router  http.Handler
	keys    *apikey.InMemoryRepository
	history *history.InMemoryRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zerolog.New(io.Discard)
	clock := clockwork.NewFakeClockAt(testNow)
	registry := resilience.NewRegistry()

	env := &testEnv{
		keys:    apikey.NewInMemoryRepository(testKey),
		history: history.NewInMemoryRepository(),
	}

	predictions := prediction.NewService(prediction.ServiceConfig{
		Clock:    clock,
		Registry: registry,
		Logger:   logger,
	})

	env.router = api.NewRouter(api.RouterConfig{
		Version:     "test",
		BuildTime:   "2024-01-01T00:00:00Z",
		Logger:      logger,
		Predictions: predictions,
		APIKeys:     env.keys,
		History:     env.history,
		Stations: station.NewDirectory([]station.Station{
			{ID: "ABMF", Latitude: 16.262, Longitude: -61.528, Height: -25.6},
		}),
		Synthetic: meteo.NewGenerator(func() float64 { return 0.5 }),
		Rand:      fixedRand{f: 0.5, n: 42},
		Registry:  registry,
		Clock:     clock,
	})
	return env
}

func (e *testEnv) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) postRinex(t *testing.T, filename, content string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("rinexFile", filename)
		require.NoError(t, err)
		_, err = io.WriteString(part, content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/rinex", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func featureInput() map[string]any {
	return map[string]any{
		"stationId":        "ABMF",
		"year":             2024,
		"month":            3,
		"day":              15,
		"hour":             12,
		"minute":           0,
		"second":           0,
		"stationLatitude":  16.262,
		"stationLongitude": -61.528,
		"zwdObservation":   13.13,
	}
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var problem models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
	return problem
}

const rinexHeader = `     3.04           OBSERVATION DATA    M                   RINEX VERSION / TYPE
ABMF                                                        MARKER NAME
                                                            END OF HEADER
`

func rinexRecord(value string) string {
	return value + strings.Repeat(" ", 50) + "x\n"
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
	assert.True(t, time.Time(health.Time).Equal(testNow))
}

func TestRouter_ReadinessCheck(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var health models.Health
	err := json.Unmarshal(w.Body.Bytes(), &health)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, health.Status)
}

func TestRouter_SystemStatus(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	err := json.Unmarshal(w.Body.Bytes(), &status)
	require.NoError(t, err)

	assert.Equal(t, models.HealthStatusOK, status.Status)
	assert.False(t, status.Model.Available)
	assert.Equal(t, "closed", status.Model.Breaker)
	assert.Empty(t, status.Subsystems)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, prediction.BreakerName, status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusOK, status.Providers[0].Status)
}

func TestRouter_Features(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/v1/predictions/features", map[string]any{
		"apiKey":    testKey,
		"inputData": featureInput(),
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.FeaturesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, "Features processed successfully", resp.Message)
	assert.Equal(t, "ABMF", resp.Input.StationID)
	assert.Equal(t, prediction.DefaultTemperature, resp.Input.Temperature)
	assert.Equal(t, testNow.Unix(), resp.Input.Timestamp)
	assert.Equal(t, 2.1008, resp.Prediction.PredictedPW)
	assert.Equal(t, 0.15, resp.Prediction.Uncertainty)
	assert.Equal(t, prediction.MethodFallbackConversion, resp.Prediction.Method)
	assert.Equal(t, "Model prediction unavailable, using ZWD * 0.16 conversion", resp.Prediction.Note)
}

func TestRouter_Features_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	input := featureInput()
	delete(input, "year")
	delete(input, "zwdObservation")

	w := env.postJSON(t, "/v1/predictions/features", map[string]any{
		"apiKey":    testKey,
		"inputData": input,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	problem := decodeProblem(t, w)
	assert.Equal(t, models.ProblemTypeValidation, problem.Type)
	assert.Equal(t, "Missing required fields: year, zwdObservation", problem.Detail)
	require.Len(t, problem.Errors, 2)
	assert.Equal(t, "year", problem.Errors[0].Field)
	assert.Equal(t, prediction.CodeRequired, problem.Errors[0].Code)
}

func TestRouter_Interpolation(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/v1/predictions/interpolation", map[string]any{
		"apiKey":    testKey,
		"latitude":  28.6139,
		"longitude": 77.209,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.InterpolationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, 28.6139, resp.Coordinates.Latitude)
	assert.Equal(t, 77.209, resp.Coordinates.Longitude)
	assert.Equal(t, 3.3167, resp.Prediction.PredictedPW)
	assert.Equal(t, 0.3, resp.Prediction.Uncertainty)
	assert.Equal(t, prediction.MethodFallbackFormula, resp.Prediction.Method)
}

func TestRouter_Interpolation_RejectsStrings(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/v1/predictions/interpolation", map[string]any{
		"apiKey":    testKey,
		"latitude":  "28.6",
		"longitude": 77.2,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decodeProblem(t, w)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "latitude", problem.Errors[0].Field)
	assert.Equal(t, prediction.CodeType, problem.Errors[0].Code)
}

func TestRouter_ErrorAnalysis(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/v1/predictions/error", map[string]any{
		"apiKey":      testKey,
		"latitude":    28.6139,
		"longitude":   77.209,
		"estimatedPW": 2.5,
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.ErrorAnalysisResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, 2.5, resp.Analysis.EstimatedPW)
	assert.Equal(t, 3.3167, resp.Analysis.InterpolatedPW)
	assert.Equal(t, "0.8167", resp.Analysis.AbsoluteError)
	assert.Equal(t, "24.62", resp.Analysis.RelativeError)
	assert.Equal(t, prediction.InterpretationSignificant, resp.Analysis.Interpretation)
	assert.Equal(t, prediction.MethodFallbackFormula, resp.Prediction.Method)
}

func TestRouter_Rinex_DirectoryStation(t *testing.T) {
	env := newTestEnv(t)

	content := rinexHeader +
		rinexRecord("    12.5000000") +
		rinexRecord("    13.7600000")

	w := env.postRinex(t, "ABMF0750.24o", content, map[string]string{"apiKey": testKey})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.RinexResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, "ABMF0750.24o", resp.FileInfo.OriginalName)
	assert.Equal(t, "ABMF0750", resp.FileInfo.StationID)

	data := resp.ExtractedData
	assert.Equal(t, "directory", data.StationSource)
	assert.Equal(t, 16.262, data.StationLatitude)
	assert.Equal(t, -25.6, data.StationElevation)
	assert.Equal(t, 13.13, data.ZWDObservation)
	assert.Equal(t, 2, data.TotalObservations)
	assert.False(t, data.SyntheticZWD)
	assert.Equal(t, 42.0, data.SatelliteAzimuth)
	assert.Equal(t, string(meteo.SourceSynthetic), data.WeatherSource)
	assert.Equal(t, 1013.0, data.Pressure)
	assert.Equal(t, 60.0, data.Humidity)
	assert.Equal(t, 2024, data.Year)
	assert.Equal(t, 3, data.Month)

	assert.Equal(t, 2.1008, resp.Prediction.PredictedPW)
	assert.Equal(t, prediction.MethodFallbackConversion, resp.Prediction.Method)
}

func TestRouter_Rinex_MissingFile(t *testing.T) {
	env := newTestEnv(t)

	w := env.postRinex(t, "", "", map[string]string{"apiKey": testKey})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, "No file uploaded", problem.Detail)
}

func TestRouter_Rinex_RequiresMultipart(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/v1/predictions/rinex", map[string]any{"apiKey": testKey})

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_History(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/v1/predictions/interpolation", map[string]any{
		"apiKey":    testKey,
		"latitude":  28.6139,
		"longitude": 77.209,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.postJSON(t, "/v1/history", map[string]any{"apiKey": testKey})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.True(t, resp.Success)
	assert.Equal(t, testKey, resp.APIKey)
	require.Len(t, resp.History, 1)
	assert.Equal(t, history.KindInterpolation, resp.History[0].Kind)
	assert.JSONEq(t, `{"latitude":28.6139,"longitude":77.209}`, string(resp.History[0].Input))
}

func TestRouter_History_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/v1/history", map[string]any{"apiKey": testKey})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"history":[]`)
}

func TestRouter_PredictionsConsumeKeyQuota(t *testing.T) {
	env := newTestEnv(t)

	for range 2 {
		w := env.postJSON(t, "/v1/predictions/interpolation", map[string]any{
			"apiKey":    testKey,
			"latitude":  10,
			"longitude": 10,
		})
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := env.postJSON(t, "/v1/history", map[string]any{"apiKey": testKey})
	require.Equal(t, http.StatusOK, w.Code)

	key, err := env.keys.Consume(t.Context(), testKey)
	require.NoError(t, err)
	assert.Equal(t, int64(3), key.Count)
}

func TestRouter_APIKeyRejections(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       map[string]any
		wantStatus int
		wantType   string
	}{
		{
			name:       "features without key",
			path:       "/v1/predictions/features",
			body:       map[string]any{"inputData": featureInput()},
			wantStatus: http.StatusUnauthorized,
			wantType:   models.ProblemTypeUnauthorized,
		},
		{
			name:       "interpolation with unknown key",
			path:       "/v1/predictions/interpolation",
			body:       map[string]any{"apiKey": "nope", "latitude": 1, "longitude": 2},
			wantStatus: http.StatusForbidden,
			wantType:   models.ProblemTypeForbidden,
		},
		{
			name:       "history without key",
			path:       "/v1/history",
			body:       map[string]any{},
			wantStatus: http.StatusUnauthorized,
			wantType:   models.ProblemTypeUnauthorized,
		},
		{
			name:       "history with unknown key",
			path:       "/v1/history",
			body:       map[string]any{"apiKey": "nope"},
			wantStatus: http.StatusForbidden,
			wantType:   models.ProblemTypeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.postJSON(t, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			problem := decodeProblem(t, w)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, tt.path, problem.Instance)
		})
	}
}

func TestRouter_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/features", strings.NewReader(`{"apiKey":"test-key","inputData":`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testKey)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, "invalid JSON body", problem.Detail)
}

func TestRouter_RequestIDPropagation(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "req_custom123")
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, "req_custom123", w.Header().Get("X-Request-Id"))
}

func TestRouter_SecurityHeaders(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/unknown", http.NoBody)
	w := httptest.NewRecorder()

	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	problem := decodeProblem(t, w)
	assert.Equal(t, models.ProblemTypeNotFound, problem.Type)
}
