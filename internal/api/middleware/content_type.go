package middleware

import (
	"mime"
	"net/http"

	"github.com/zenithpw/zenithpw/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only set if not already set (allows handlers to override)
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects POST, PUT and PATCH bodies declared as anything other
// than application/json. A missing Content-Type is accepted.
func RequireJSON(next http.Handler) http.Handler {
	return requireMediaType("application/json", next)
}

// RequireMultipart rejects POST bodies that are not multipart/form-data.
func RequireMultipart(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if r.Method == http.MethodPost && mediaType != "multipart/form-data" {
			writeProblem(w, r, models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be multipart/form-data"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireMediaType(want string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			contentType := r.Header.Get("Content-Type")
			if contentType != "" {
				mediaType, _, err := mime.ParseMediaType(contentType)
				if err != nil || mediaType != want {
					writeProblem(w, r, models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be "+want))
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
