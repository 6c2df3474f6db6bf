package resilience_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithpw/zenithpw/internal/provider/resilience"
)

func fastConfig(name string) resilience.ClientConfig {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Timeout = 2 * time.Second
	cfg.InitialInterval = 5 * time.Millisecond
	cfg.MaxInterval = 20 * time.Millisecond
	cfg.Breaker.MinRequests = 100
	return cfg
}

func TestClient_Get(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"agent":"` + r.Header.Get("User-Agent") + `"}`))
	}))
	defer server.Close()

	cfg := fastConfig("test")
	cfg.UserAgent = "zenithpw-test"
	client := resilience.NewClient(cfg)

	body, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)

	assert.JSONEq(t, `{"agent":"zenithpw-test"}`, string(body))
}

func TestClient_RetryOn5xx(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := fastConfig("test-retry")
	cfg.MaxRetries = 5
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig("test-exhaust")
	cfg.MaxRetries = 2
	client := resilience.NewClient(cfg)

	_, err := client.Get(context.Background(), server.URL)
	require.Error(t, err)

	var statusErr *resilience.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.ErrorIs(t, err, resilience.ErrUnexpectedStatus)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_4xxNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := fastConfig("test-4xx")
	cfg.MaxRetries = 3
	client := resilience.NewClient(cfg)

	_, err := client.Get(context.Background(), server.URL)

	var statusErr *resilience.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_CircuitBreakerTrips(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig("test-trip")
	cfg.MaxRetries = 0
	cfg.Breaker = resilience.BreakerConfig{
		Name:        "test-trip",
		Cooldown:    time.Minute,
		MinRequests: 3,
	}
	client := resilience.NewClient(cfg)

	for i := 0; i < 3; i++ {
		_, _ = client.Get(context.Background(), server.URL)
	}
	assert.Equal(t, gobreaker.StateOpen, client.State())

	before := attempts.Load()
	_, err := client.Get(context.Background(), server.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, before, attempts.Load(), "open circuit must not reach the server")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	cfg := fastConfig("test-timeout")
	cfg.Timeout = 50 * time.Millisecond
	client := resilience.NewClient(cfg)

	_, err := client.Get(context.Background(), server.URL)
	assert.Error(t, err)
}

func TestClient_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := resilience.NewClient(fastConfig("test-cancel"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Get(ctx, server.URL)
	assert.Error(t, err)
}

func TestTripAfter(t *testing.T) {
	trip := resilience.TripAfter(5, 0.5)

	tests := []struct {
		name   string
		counts gobreaker.Counts
		want   bool
	}{
		{"no requests", gobreaker.Counts{}, false},
		{"not enough requests", gobreaker.Counts{Requests: 4, TotalFailures: 4}, false},
		{"low failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 4}, false},
		{"high failure rate", gobreaker.Counts{Requests: 10, TotalFailures: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trip(tt.counts))
		})
	}
}

func TestNewBreaker_Defaults(t *testing.T) {
	cb := resilience.NewBreaker[int](resilience.BreakerConfig{Name: "model"})

	assert.Equal(t, "model", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestStatusError(t *testing.T) {
	err := &resilience.StatusError{StatusCode: http.StatusBadGateway}
	assert.Equal(t, "unexpected status code: 502", err.Error())
	assert.ErrorIs(t, err, resilience.ErrUnexpectedStatus)

	serverErr := &resilience.ServerError{StatusCode: http.StatusInternalServerError}
	assert.Contains(t, serverErr.Error(), "Internal Server Error")
}
