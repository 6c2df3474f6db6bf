package handler

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/api/response"
	"github.com/zenithpw/zenithpw/internal/history"
	"github.com/zenithpw/zenithpw/internal/prediction"
)

// Predictor is the prediction surface the handlers need. *prediction.Service satisfies it.
type Predictor interface {
	PredictFromFeatures(ctx context.Context, raw map[string]any) (prediction.FeaturePrediction, error)
	PredictSpatial(ctx context.Context, raw map[string]any) (prediction.SpatialPrediction, error)
	AnalyzeErrorFromRaw(ctx context.Context, raw map[string]any) (prediction.ErrorAnalysis, prediction.SpatialPrediction, error)
	PredictObservation(ctx context.Context, in prediction.Input) prediction.Result
}

// PredictionHandler handles the JSON prediction endpoints.
type PredictionHandler struct {
	predictor Predictor
	history   historyRecorder
	clock     clockwork.Clock
}

// NewPredictionHandler creates a PredictionHandler. History may be nil.
func NewPredictionHandler(predictor Predictor, repo history.Repository, clock clockwork.Clock, logger zerolog.Logger) *PredictionHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &PredictionHandler{
		predictor: predictor,
		history:   historyRecorder{repo: repo, logger: logger},
		clock:     clock,
	}
}

// Features handles POST /v1/predictions/features.
func (h *PredictionHandler) Features(w http.ResponseWriter, r *http.Request) {
	var req models.FeaturesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.InputData == nil {
		req.InputData = map[string]any{}
	}

	p, err := h.predictor.PredictFromFeatures(r.Context(), req.InputData)
	if err != nil {
		writePredictionError(w, r, err)
		return
	}

	now := h.clock.Now()
	h.history.record(r.Context(), history.KindFeatures, p.Input, p.Result, now)

	response.JSON(w, r, http.StatusOK, models.FeaturesResponse{
		Success:     true,
		Message:     "Features processed successfully",
		Input:       p.Input,
		Prediction:  p.Result,
		ProcessedAt: models.Timestamp(now),
	})
}

// Interpolation handles POST /v1/predictions/interpolation.
func (h *PredictionHandler) Interpolation(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if !decodeJSON(w, r, &raw) {
		return
	}
	delete(raw, "apiKey")

	p, err := h.predictor.PredictSpatial(r.Context(), raw)
	if err != nil {
		writePredictionError(w, r, err)
		return
	}

	now := h.clock.Now()
	h.history.record(r.Context(), history.KindInterpolation, p.Input, p.Result, now)

	response.JSON(w, r, http.StatusOK, models.InterpolationResponse{
		Success:     true,
		Message:     "Interpolation completed successfully",
		Coordinates: p.Input,
		Prediction:  p.Result,
		ProcessedAt: models.Timestamp(now),
	})
}

// ErrorAnalysis handles POST /v1/predictions/error.
func (h *PredictionHandler) ErrorAnalysis(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if !decodeJSON(w, r, &raw) {
		return
	}
	delete(raw, "apiKey")

	analysis, p, err := h.predictor.AnalyzeErrorFromRaw(r.Context(), raw)
	if err != nil {
		writePredictionError(w, r, err)
		return
	}

	now := h.clock.Now()
	h.history.record(r.Context(), history.KindError, p.Input, analysis, now)

	response.JSON(w, r, http.StatusOK, models.ErrorAnalysisResponse{
		Success:     true,
		Message:     "Error analysis completed successfully",
		Analysis:    analysis,
		Prediction:  p.Result,
		ProcessedAt: models.Timestamp(now),
	})
}
