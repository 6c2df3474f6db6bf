package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithpw/zenithpw/internal/api/handler"
	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubModel struct {
	available bool
	state     gobreaker.State
}

func (m stubModel) ModelAvailable() bool          { return m.available }
func (m stubModel) BreakerState() gobreaker.State { return m.state }

type stubBreaker struct{ state gobreaker.State }

func (b stubBreaker) State() gobreaker.State   { return b.state }
func (b stubBreaker) Counts() gobreaker.Counts { return gobreaker.Counts{} }

func TestOpsHandler_HealthCheck(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{
		Version:   "1.2.3",
		BuildTime: "2024-01-01T00:00:00Z",
		Clock:     clockwork.NewFakeClockAt(testNow),
	})

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "1.2.3", health.Details["version"])
}

func TestOpsHandler_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name       string
		db         handler.Pinger
		wantStatus int
		wantHealth models.HealthStatus
	}{
		{name: "no database", db: nil, wantStatus: http.StatusOK, wantHealth: models.HealthStatusOK},
		{name: "database up", db: stubPinger{}, wantStatus: http.StatusOK, wantHealth: models.HealthStatusOK},
		{name: "database down", db: stubPinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantHealth: models.HealthStatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handler.NewOpsHandler(handler.OpsConfig{Database: tt.db})

			w := httptest.NewRecorder()
			h.ReadinessCheck(w, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))

			assert.Equal(t, tt.wantStatus, w.Code)
			var health models.Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
			assert.Equal(t, tt.wantHealth, health.Status)
		})
	}
}

func TestOpsHandler_SystemStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("open-meteo", stubBreaker{state: gobreaker.StateHalfOpen})
	registry.Register("model", stubBreaker{state: gobreaker.StateClosed})
	registry.RecordFailure("open-meteo", errors.New("upstream 502"))

	h := handler.NewOpsHandler(handler.OpsConfig{
		Database: stubPinger{},
		Registry: registry,
		Model:    stubModel{available: true, state: gobreaker.StateClosed},
		Clock:    clockwork.NewFakeClockAt(testNow),
	})

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	require.Equal(t, http.StatusOK, w.Code)
	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	assert.True(t, status.Model.Available)
	assert.Equal(t, "closed", status.Model.Breaker)

	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "postgres", status.Subsystems[0].Name)
	assert.Equal(t, models.HealthStatusOK, status.Subsystems[0].Status)

	require.Len(t, status.Providers, 2)
	assert.Equal(t, "model", status.Providers[0].Provider)
	assert.Equal(t, models.HealthStatusOK, status.Providers[0].Status)
	assert.Equal(t, "open-meteo", status.Providers[1].Provider)
	assert.Equal(t, models.HealthStatusDegraded, status.Providers[1].Status)
	require.NotNil(t, status.Providers[1].Message)
	assert.Equal(t, "upstream 502", *status.Providers[1].Message)
	assert.NotNil(t, status.Providers[1].LastFailureAt)
}

func TestOpsHandler_SystemStatus_DatabaseDown(t *testing.T) {
	h := handler.NewOpsHandler(handler.OpsConfig{
		Database: stubPinger{err: errors.New("timeout")},
	})

	w := httptest.NewRecorder()
	h.SystemStatus(w, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))

	assert.Equal(t, models.HealthStatusDegraded, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, models.HealthStatusFail, status.Subsystems[0].Status)
	require.NotNil(t, status.Subsystems[0].Detail)
	assert.Equal(t, "timeout", *status.Subsystems[0].Detail)
}
