package handlers

import (
	"net/http"
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
}

// ModelStatus reports circuit state per model tier.
type ModelStatus interface {
	Status() map[string]string
}

// HealthHandler handles liveness, ping and store health endpoints.
type HealthHandler struct {
	datasets services.DatasetService
	models   ModelStatus
	version  string
	env      string
	logger   *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. models may be nil.
func NewHealthHandler(datasets services.DatasetService, models ModelStatus, version, env string, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{datasets: datasets, models: models, version: version, env: env, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Live)
	mux.HandleFunc("GET /ping", h.Ping)
	mux.HandleFunc("GET /api/health", h.Health)
}

// Live handles GET /health. It answers as long as the process serves HTTP.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.version,
		Service:     "ekaya-analyst",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.env,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

// Health handles GET /api/health.
// Reports store connectivity, per-table row counts and model circuit state.
// An unreachable store answers 503; an open circuit only degrades the report.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	report := h.datasets.Health(r.Context())
	if h.models != nil {
		report.Models = h.models.Status()
		for _, state := range report.Models {
			if state != "closed" && report.Status == "healthy" {
				report.Status = "degraded"
			}
		}
	}

	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, report); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
