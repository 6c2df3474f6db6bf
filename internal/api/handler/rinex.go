package handler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/zenithpw/zenithpw/internal/api/middleware"
	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/api/response"
	"github.com/zenithpw/zenithpw/internal/history"
	"github.com/zenithpw/zenithpw/internal/meteo"
	"github.com/zenithpw/zenithpw/internal/prediction"
	"github.com/zenithpw/zenithpw/internal/rinex"
	"github.com/zenithpw/zenithpw/internal/station"
)

// Where a RINEX upload's receiver position came from.
const (
	StationSourceDirectory = "directory"
	StationSourceForm      = "form"
	StationSourceSynthetic = "synthetic"
)

// rinexMemory is how much of the upload is buffered in memory.
const rinexMemory = 8 << 20

// ObservationPredictor predicts from an assembled feature record.
type ObservationPredictor interface {
	PredictObservation(ctx context.Context, in prediction.Input) prediction.Result
}

// StationLookup resolves a station ID to its position. *station.Directory satisfies it.
type StationLookup interface {
	Lookup(id string) (station.Station, bool)
}

// SyntheticWeather generates conditions without a network call. *meteo.Generator satisfies it.
type SyntheticWeather interface {
	Generate(lat, lon float64, at time.Time) meteo.Conditions
}

// RinexConfig holds the dependencies of the RINEX upload handler.
type RinexConfig struct {
	Predictor ObservationPredictor

	// Stations is optional; unknown stations use form coordinates or synthetic ones.
	Stations StationLookup

	// Weather is used when the caller sets includeMeteoData, Synthetic otherwise.
	Weather   prediction.WeatherSource
	Synthetic SyntheticWeather

	History history.Repository
	Rand    rinex.Rand
	Clock   clockwork.Clock
	Logger  zerolog.Logger
}

// RinexHandler handles RINEX observation uploads.
type RinexHandler struct {
	predictor ObservationPredictor
	stations  StationLookup
	weather   prediction.WeatherSource
	synthetic SyntheticWeather
	history   historyRecorder
	rng       rinex.Rand
	clock     clockwork.Clock
	logger    zerolog.Logger
}

// NewRinexHandler creates a RinexHandler.
func NewRinexHandler(cfg RinexConfig) *RinexHandler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	synthetic := cfg.Synthetic
	if synthetic == nil {
		synthetic = meteo.NewGenerator(nil)
	}
	return &RinexHandler{
		predictor: cfg.Predictor,
		stations:  cfg.Stations,
		weather:   cfg.Weather,
		synthetic: synthetic,
		history:   historyRecorder{repo: cfg.History, logger: cfg.Logger},
		rng:       cfg.Rand,
		clock:     clock,
		logger:    cfg.Logger,
	}
}

// Upload handles POST /v1/predictions/rinex (multipart: rinexFile, apiKey,
// includeMeteoData and optional stationLatitude, stationLongitude, stationElevation).
func (h *RinexHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(rinexMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				response.PayloadTooLarge(w, r, "upload too large")
				return
			}
			response.BadRequest(w, r, "malformed multipart body", nil)
			return
		}
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("rinexFile")
	if err != nil {
		response.BadRequest(w, r, "No file uploaded", []models.FieldError{{
			Field:   "rinexFile",
			Message: "rinexFile is required",
			Code:    prediction.CodeRequired,
		}})
		return
	}
	defer file.Close()

	site, stationSource, fieldErrs := h.resolveSite(r, rinex.StationID(header.Filename))
	if len(fieldErrs) > 0 {
		response.BadRequest(w, r, "invalid station coordinates", fieldErrs)
		return
	}

	summary := h.extract(r.Context(), file, header)

	now := h.clock.Now().UTC()
	at := now.Truncate(time.Second)

	var cond meteo.Conditions
	if includeMeteo(r.FormValue("includeMeteoData")) && h.weather != nil {
		cond = h.weather.Fetch(r.Context(), site.Latitude, site.Longitude, at)
	} else {
		cond = h.synthetic.Generate(site.Latitude, site.Longitude, at)
	}

	in := prediction.NewObservation(site, at, prediction.Observation{
		ZWD:                summary.ZWDObservation,
		SatelliteAzimuth:   summary.SatelliteAzimuth,
		SatelliteElevation: summary.SatelliteElevation,
	}, cond)
	result := h.predictor.PredictObservation(r.Context(), in)

	extracted := models.NewExtractedData(in, summary, stationSource, string(cond.Source))
	h.history.record(r.Context(), history.KindRinex, extracted, result, now)

	h.logger.Info().
		Str("request_id", middleware.GetRequestID(r.Context())).
		Str("station_id", site.ID).
		Str("station_source", stationSource).
		Int("observations", summary.TotalObservations).
		Bool("synthetic_zwd", summary.Synthetic).
		Str("method", string(result.Method)).
		Msg("rinex upload processed")

	response.JSON(w, r, http.StatusOK, models.RinexResponse{
		Success:       true,
		Message:       "RINEX file processed successfully",
		ExtractedData: extracted,
		Prediction:    result,
		FileInfo: models.FileInfo{
			OriginalName: header.Filename,
			Size:         header.Size,
			StationID:    site.ID,
			ProcessedAt:  models.Timestamp(now),
		},
		ProcessedAt: models.Timestamp(now),
	})
}

// extract never fails: an unreadable archive is treated as an empty file,
// which yields a synthetic ZWD.
func (h *RinexHandler) extract(ctx context.Context, file multipart.File, header *multipart.FileHeader) rinex.Summary {
	content, err := rinex.Open(file, header.Filename)
	if err != nil {
		h.logger.Warn().
			Err(err).
			Str("request_id", middleware.GetRequestID(ctx)).
			Str("file", header.Filename).
			Msg("unreadable rinex upload, using synthetic observation")
		return rinex.Extract(strings.NewReader(""), h.rng)
	}
	defer content.Close()
	return rinex.Extract(content, h.rng)
}

// resolveSite looks the station up in the directory, then falls back to
// coordinates posted with the form, then to a random position.
func (h *RinexHandler) resolveSite(r *http.Request, stationID string) (prediction.Site, string, []models.FieldError) {
	if h.stations != nil {
		if st, ok := h.stations.Lookup(stationID); ok {
			site := st.Site()
			site.ID = stationID
			return site, StationSourceDirectory, nil
		}
	}

	latText := strings.TrimSpace(r.FormValue("stationLatitude"))
	lonText := strings.TrimSpace(r.FormValue("stationLongitude"))
	if latText != "" || lonText != "" {
		var errs []models.FieldError
		lat := formCoordinate(&errs, "stationLatitude", latText, -90, 90)
		lon := formCoordinate(&errs, "stationLongitude", lonText, -180, 180)
		elev := 0.0
		if text := strings.TrimSpace(r.FormValue("stationElevation")); text != "" {
			elev = formCoordinate(&errs, "stationElevation", text, -1000, 10000)
		}
		if len(errs) > 0 {
			return prediction.Site{}, "", errs
		}
		return prediction.Site{ID: stationID, Latitude: lat, Longitude: lon, Elevation: elev}, StationSourceForm, nil
	}

	return h.syntheticSite(stationID), StationSourceSynthetic, nil
}

func (h *RinexHandler) syntheticSite(stationID string) prediction.Site {
	uniform := rand.Float64
	if h.rng != nil {
		uniform = h.rng.Float64
	}
	return prediction.Site{
		ID:        stationID,
		Latitude:  roundPlaces(uniform()*180-90, 6),
		Longitude: roundPlaces(uniform()*360-180, 6),
		Elevation: roundPlaces(uniform()*1000, 2),
	}
}

func formCoordinate(errs *[]models.FieldError, field, text string, lo, hi float64) float64 {
	if text == "" {
		*errs = append(*errs, models.FieldError{Field: field, Message: field + " is required", Code: prediction.CodeRequired})
		return 0
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		*errs = append(*errs, models.FieldError{Field: field, Message: field + " must be numeric", Code: prediction.CodeType})
		return 0
	}
	if math.IsNaN(v) || v < lo || v > hi {
		*errs = append(*errs, models.FieldError{
			Field:   field,
			Message: fmt.Sprintf("%s must be between %g and %g", field, lo, hi),
			Code:    prediction.CodeRange,
		})
	}
	return v
}

func includeMeteo(value string) bool {
	ok, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && ok
}

func roundPlaces(v float64, places int) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', places, 64), 64)
	if err != nil {
		return v
	}
	return out
}
