// Package handler provides HTTP handlers for the zenithpw API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/api/middleware"
	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/api/response"
	"github.com/zenithpw/zenithpw/internal/history"
	"github.com/zenithpw/zenithpw/internal/prediction"
)

// decodeJSON decodes the request body keeping numbers as json.Number, so the
// prediction normalizer sees the caller's original representation.
// It writes the error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	err := dec.Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &tooLarge):
		response.PayloadTooLarge(w, r, "request body too large")
	case errors.As(err, &typeErr) && typeErr.Field != "":
		response.BadRequest(w, r, "invalid JSON body", []models.FieldError{{
			Field:   typeErr.Field,
			Message: typeErr.Field + " has the wrong type",
			Code:    prediction.CodeType,
		}})
	default:
		response.BadRequest(w, r, "invalid JSON body", nil)
	}
	return false
}

// writePredictionError maps a prediction error to a problem response.
// Only validation errors are expected; anything else is a 500.
func writePredictionError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *prediction.ValidationError
	if !errors.As(err, &verr) {
		response.InternalError(w, r, "prediction failed")
		return
	}

	fields := make([]models.FieldError, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, models.FieldError{Field: f.Field, Message: f.Message, Code: f.Code})
	}
	response.BadRequest(w, r, verr.Error(), fields)
}

// historyRecorder persists request history. A failed write is logged and
// never fails the request.
type historyRecorder struct {
	repo   history.Repository
	logger zerolog.Logger
}

func (h historyRecorder) record(ctx context.Context, kind history.Kind, input, output any, now time.Time) {
	if h.repo == nil {
		return
	}
	apiKey := middleware.GetAPIKey(ctx)

	entry, err := history.NewEntry(apiKey, kind, input, output, now)
	if err == nil {
		err = h.repo.Record(ctx, entry)
	}
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("kind", string(kind)).
			Str("request_id", middleware.GetRequestID(ctx)).
			Msg("failed to record history")
	}
}
