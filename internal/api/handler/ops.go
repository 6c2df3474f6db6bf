package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker/v2"

	"github.com/zenithpw/zenithpw/internal/api/models"
	"github.com/zenithpw/zenithpw/internal/api/response"
	"github.com/zenithpw/zenithpw/internal/provider/resilience"
)

const readyTimeout = 2 * time.Second

// Pinger checks a backing store. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelState reports on the trained model. *prediction.Service satisfies it.
type ModelState interface {
	ModelAvailable() bool
	BreakerState() gobreaker.State
}

// OpsConfig holds the dependencies of the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Database is nil when running on in-memory storage.
	Database Pinger

	Registry *resilience.Registry
	Model    ModelState
	Clock    clockwork.Clock
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Clock.Now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. It fails when the database is
// configured and unreachable.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Clock.Now()),
	}

	if err := h.pingDatabase(r.Context()); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]any{"database": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - model, storage and provider status.
// An unavailable model is not a degradation; predictions fall back.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.cfg.Clock.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.cfg.Model != nil {
		status.Model = models.ModelStatus{
			Available: h.cfg.Model.ModelAvailable(),
			Breaker:   h.cfg.Model.BreakerState().String(),
		}
	}

	if h.cfg.Database != nil {
		db := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
		if err := h.pingDatabase(r.Context()); err != nil {
			detail := err.Error()
			db.Status = models.HealthStatusFail
			db.Detail = &detail
			status.Status = models.HealthStatusDegraded
		}
		status.Subsystems = append(status.Subsystems, db)
	}

	if h.cfg.Registry != nil {
		for _, dep := range h.cfg.Registry.All() {
			p := providerStatus(dep)
			if p.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
			}
			status.Providers = append(status.Providers, p)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingDatabase(ctx context.Context) error {
	if h.cfg.Database == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	return h.cfg.Database.Ping(ctx)
}

func providerStatus(dep resilience.Health) models.ProviderStatus {
	p := models.ProviderStatus{Provider: dep.Name}
	switch {
	case dep.Healthy():
		p.Status = models.HealthStatusOK
	case dep.Degraded():
		p.Status = models.HealthStatusDegraded
	default:
		p.Status = models.HealthStatusFail
	}
	if dep.LastSuccessAt != nil {
		ts := models.Timestamp(*dep.LastSuccessAt)
		p.LastSuccessAt = &ts
	}
	if dep.LastFailureAt != nil {
		ts := models.Timestamp(*dep.LastFailureAt)
		p.LastFailureAt = &ts
	}
	if dep.LastError != "" {
		msg := dep.LastError
		p.Message = &msg
	}
	return p
}
