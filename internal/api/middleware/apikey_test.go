package middleware_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenithpw/zenithpw/internal/api/middleware"
	"github.com/zenithpw/zenithpw/internal/apikey"
)

type brokenKeyStore struct{}

func (brokenKeyStore) Consume(context.Context, string) (*apikey.Key, error) {
	return nil, errors.New("connection refused")
}

func (brokenKeyStore) Exists(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

// captureHandler records the key and body the wrapped handler saw.
type captureHandler struct {
	key  string
	body string
}

func (c *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.key = middleware.GetAPIKey(r.Context())
	b, _ := io.ReadAll(r.Body)
	c.body = string(b)
	w.WriteHeader(http.StatusOK)
}

func TestAPIKey_FromHeaderConsumesQuota(t *testing.T) {
	repo := apikey.NewInMemoryRepository("secret")
	next := &captureHandler{}
	handler := middleware.APIKey(repo, middleware.ConsumeKey, zerolog.Nop())(next)

	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/interpolation", strings.NewReader(`{"latitude":1}`))
	req.Header.Set(middleware.APIKeyHeader, "secret")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret", next.key)

	k, err := repo.Consume(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(2), k.Count)
}

func TestAPIKey_FromJSONBodyLeavesBodyReadable(t *testing.T) {
	repo := apikey.NewInMemoryRepository("secret")
	next := &captureHandler{}
	handler := middleware.APIKey(repo, middleware.ConsumeKey, zerolog.Nop())(next)

	body := `{"apiKey":"secret","latitude":28.6,"longitude":77.2}`
	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/interpolation", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "secret", next.key)
	assert.Equal(t, body, next.body)
}

func TestAPIKey_FromMultipartForm(t *testing.T) {
	repo := apikey.NewInMemoryRepository("secret")
	var seenFile string
	handler := middleware.APIKey(repo, middleware.ConsumeKey, zerolog.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, header, err := r.FormFile("rinexFile")
			require.NoError(t, err)
			seenFile = header.Filename
			w.WriteHeader(http.StatusOK)
		}),
	)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("apiKey", "secret"))
	part, err := mw.CreateFormFile("rinexFile", "ABMF0750.24o")
	require.NoError(t, err)
	_, _ = part.Write([]byte("header only"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/rinex", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ABMF0750.24o", seenFile)
}

func TestAPIKey_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		repo   apikey.Repository
		header string
		body   string
		want   int
		detail string
	}{
		{"missing", apikey.NewInMemoryRepository("secret"), "", `{"latitude":1}`, http.StatusUnauthorized, "API key required"},
		{"blank body field", apikey.NewInMemoryRepository("secret"), "", `{"apiKey":"  "}`, http.StatusUnauthorized, "API key required"},
		{"non-string body field", apikey.NewInMemoryRepository("secret"), "", `{"apiKey":42}`, http.StatusUnauthorized, "API key required"},
		{"unknown", apikey.NewInMemoryRepository("secret"), "nope", `{}`, http.StatusForbidden, "Invalid API key"},
		{"store down", brokenKeyStore{}, "secret", `{}`, http.StatusServiceUnavailable, "API key store unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := middleware.APIKey(tt.repo, middleware.ConsumeKey, zerolog.Nop())(&captureHandler{})

			req := httptest.NewRequest(http.MethodPost, "/v1/predictions/features", strings.NewReader(tt.body))
			if tt.header != "" {
				req.Header.Set(middleware.APIKeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.detail)
		})
	}
}

func TestAPIKey_VerifyDoesNotConsume(t *testing.T) {
	repo := apikey.NewInMemoryRepository("secret")
	handler := middleware.APIKey(repo, middleware.VerifyKey, zerolog.Nop())(&captureHandler{})

	req := httptest.NewRequest(http.MethodPost, "/v1/history", strings.NewReader(`{"apiKey":"secret"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	k, err := repo.Consume(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, int64(1), k.Count)

	req = httptest.NewRequest(http.MethodPost, "/v1/history", strings.NewReader(`{"apiKey":"other"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAPIKey_BodyTooLarge(t *testing.T) {
	repo := apikey.NewInMemoryRepository("secret")
	handler := chimiddleware.RequestSize(16)(
		middleware.APIKey(repo, middleware.ConsumeKey, zerolog.Nop())(&captureHandler{}),
	)

	req := httptest.NewRequest(http.MethodPost, "/v1/predictions/features",
		strings.NewReader(`{"apiKey":"secret","inputData":{"stationId":"ABMF"}}`))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
