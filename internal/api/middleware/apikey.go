package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/apikey"
)

// APIKeyHeader is the request header that may carry the API key.
const APIKeyHeader = "X-Api-Key"

// multipartMemory is how much of a multipart body is held in memory before
// spilling file parts to disk.
const multipartMemory = 8 << 20

// APIKeyMode selects whether a request counts against the key's usage.
type APIKeyMode int

const (
	// ConsumeKey increments the usage count on every request.
	ConsumeKey APIKeyMode = iota

	// VerifyKey only checks that the key was issued.
	VerifyKey
)

type apiKeyCtxKey struct{}

// APIKey resolves the caller's key from the X-Api-Key header, the JSON body
// field "apiKey" or the multipart form field "apiKey", in that order.
// A missing key is rejected with 401, an unknown key with 403. The body is
// left readable for the handler.
func APIKey(repo apikey.Repository, mode APIKeyMode, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := extractAPIKey(r)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeProblem(w, r, models.NewPayloadTooLarge(GetRequestID(r.Context()), "request body too large"))
					return
				}
				writeProblem(w, r, models.NewBadRequest(GetRequestID(r.Context()), "malformed request body", nil))
				return
			}
			if key == "" {
				writeProblem(w, r, models.NewUnauthorized(GetRequestID(r.Context()), "API key required"))
				return
			}

			switch err := checkAPIKey(r.Context(), repo, mode, key); {
			case err == nil:
			case errors.Is(err, apikey.ErrKeyNotFound):
				writeProblem(w, r, models.NewForbidden(GetRequestID(r.Context()), "Invalid API key"))
				return
			default:
				log.Error().
					Err(err).
					Str("request_id", GetRequestID(r.Context())).
					Msg("api key lookup failed")
				writeProblem(w, r, models.NewServiceUnavailable(GetRequestID(r.Context()), "API key store unavailable"))
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyCtxKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func checkAPIKey(ctx context.Context, repo apikey.Repository, mode APIKeyMode, key string) error {
	if mode == VerifyKey {
		ok, err := repo.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return apikey.ErrKeyNotFound
		}
		return nil
	}
	_, err := repo.Consume(ctx, key)
	return err
}

// GetAPIKey returns the API key accepted for this request, or "".
func GetAPIKey(ctx context.Context) string {
	if key, ok := ctx.Value(apiKeyCtxKey{}).(string); ok {
		return key
	}
	return ""
}

func extractAPIKey(r *http.Request) (string, error) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		return key, nil
	}
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return "", err
		}
		return strings.TrimSpace(r.FormValue("apiKey")), nil
	case "", "application/json":
		return peekJSONKey(r)
	default:
		return "", nil
	}
}

// peekJSONKey reads the apiKey field and restores the body. A body that is
// not a JSON object yields no key; the handler reports the decode error.
func peekJSONKey(r *http.Request) (string, error) {
	body, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var envelope struct {
		APIKey any `json:"apiKey"`
	}
	if json.Unmarshal(body, &envelope) != nil {
		return "", nil
	}
	key, _ := envelope.APIKey.(string)
	return strings.TrimSpace(key), nil
}

// writeProblem is implemented here to avoid an import cycle with the response package.
func writeProblem(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}
