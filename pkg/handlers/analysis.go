package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-analyst/pkg/models"
	"github.com/ekaya-inc/ekaya-analyst/pkg/services"
)

// AnalyzeRequest is the inbound analysis command.
type AnalyzeRequest struct {
	Query    string `json:"query"`
	DataFile string `json:"dataFile,omitempty"`
}

// unencodableResult replaces a terminal event whose payload cannot be encoded,
// so the stream still ends with exactly one terminal frame.
var unencodableResult = models.FailedEvent{Code: "internal", Message: "Analysis result could not be encoded"}

// AnalysisHandler serves the streaming analysis endpoint and its
// non-streaming test variant.
type AnalysisHandler struct {
	analysis services.AnalysisService
	logger   *zap.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(analysis services.AnalysisService, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, logger: logger.Named("analysis-handler")}
}

// RegisterRoutes registers the analysis routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze", h.Analyze)
	mux.HandleFunc("POST /api/test-query", h.TestQuery)
}

// parseQuestion decodes and checks the request. On failure it has already
// written a 400 response.
func (h *AnalysisHandler) parseQuestion(w http.ResponseWriter, r *http.Request) (models.Question, bool) {
	var req AnalyzeRequest
	if !decodeBody(w, r, &req, h.logger) {
		return models.Question{}, false
	}
	if strings.TrimSpace(req.Query) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "missing_query", "Query is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return models.Question{}, false
	}
	return models.Question{Text: req.Query, DataFile: req.DataFile}, true
}

// Analyze handles POST /api/analyze.
// The response is a Server-Sent Events stream with one frame per event. The
// stream ends after the terminal frame. A client disconnect cancels the
// session and nothing further is written.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	question, ok := h.parseQuestion(w, r)
	if !ok {
		return
	}

	stream, err := startSSE(w)
	if err != nil {
		h.logger.Error("SSE not supported")
		if err := ErrorResponse(w, http.StatusInternalServerError, "sse_unsupported", "SSE not supported"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	ctx := r.Context()
	eventChan := make(chan models.StreamEvent, 16)

	go func() {
		defer close(eventChan)
		if err := h.analysis.Analyze(ctx, question, eventChan); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("Analysis session error", zap.Error(err))
		}
	}()

	for event := range eventChan {
		if ctx.Err() != nil {
			continue
		}
		err := stream.send(event)
		if errors.Is(err, errEncode) && event.Terminal() {
			h.logger.Error("Failed to encode terminal event", zap.Error(err))
			err = stream.send(unencodableResult)
		}
		if err != nil {
			h.logger.Debug("Stopped streaming to client", zap.Error(err))
			continue
		}
		if event.Terminal() {
			break
		}
	}
}

// TestQuery handles POST /api/test-query.
// It runs the same pipeline and returns only the terminal event as JSON.
func (h *AnalysisHandler) TestQuery(w http.ResponseWriter, r *http.Request) {
	question, ok := h.parseQuestion(w, r)
	if !ok {
		return
	}

	event, err := h.analysis.Ask(r.Context(), question)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		h.logger.Error("Test query failed", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal", "Analysis did not produce a result"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	status := http.StatusOK
	if failed, ok := event.(models.FailedEvent); ok {
		status = failureStatus(failed.Code)
	}
	if err := WriteJSON(w, status, event); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
		if errors.Is(err, errEncode) {
			if err := ErrorResponse(w, http.StatusInternalServerError, unencodableResult.Code, unencodableResult.Message); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
		}
	}
}

// failureStatus maps a failed event's code to an HTTP status.
func failureStatus(code string) int {
	switch code {
	case services.CodeInvalidQuestion:
		return http.StatusBadRequest
	case services.CodeSchemaUnavailable, "generation_unavailable":
		return http.StatusServiceUnavailable
	case services.CodeSessionTimeout, "execution_timeout":
		return http.StatusGatewayTimeout
	case "internal":
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}
