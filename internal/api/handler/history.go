package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/api/middleware"
	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/api/response"
	"github.com/zenithpw/zenithpw/internal/history"
)

// HistoryHandler serves an API key's request history.
type HistoryHandler struct {
	repo   history.Repository
	logger zerolog.Logger
}

// NewHistoryHandler creates a HistoryHandler.
func NewHistoryHandler(repo history.Repository, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{repo: repo, logger: logger}
}

// List handles POST /v1/history. The key is resolved by the APIKey middleware.
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	apiKey := middleware.GetAPIKey(r.Context())

	entries, err := h.repo.ListByAPIKey(r.Context(), apiKey)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Msg("failed to list history")
		response.InternalError(w, r, "Error fetching history")
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}

	response.JSON(w, r, http.StatusOK, models.HistoryResponse{
		Success: true,
		APIKey:  apiKey,
		History: entries,
	})
}
