package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/logging"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

// ReloadResponse reports the schema that replaced the previous one.
type ReloadResponse struct {
	Tables    int   `json:"tables"`
	TotalRows int64 `json:"totalRows"`
}

// DatasetHandler serves read-only dataset introspection and schema reload.
// None of its routes run generated SQL.
type DatasetHandler struct {
	datasets services.DatasetService
	logger   *zap.Logger
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(datasets services.DatasetService, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{datasets: datasets, logger: logger.Named("dataset-handler")}
}

// RegisterRoutes registers the dataset routes on the given mux.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/stats", h.Stats)
	mux.HandleFunc("GET /api/datasets-info", h.Info)
	mux.HandleFunc("POST /api/schema/reload", h.Reload)
}

// Stats handles GET /api/stats.
func (h *DatasetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.datasets.Stats()); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Info handles GET /api/datasets-info.
func (h *DatasetHandler) Info(w http.ResponseWriter, r *http.Request) {
	if err := WriteJSON(w, http.StatusOK, h.datasets.Info()); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Reload handles POST /api/schema/reload.
// Sessions already running keep the schema they started with.
func (h *DatasetHandler) Reload(w http.ResponseWriter, r *http.Request) {
	desc, err := h.datasets.Reload(r.Context())
	if err != nil {
		h.logger.Error("Schema reload failed", zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "schema_reload_failed", logging.SanitizeError(err)); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	resp := ReloadResponse{Tables: desc.TableCount(), TotalRows: desc.TotalRows()}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
