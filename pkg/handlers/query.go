package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/logging"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/prompts"
)

// maxQuestionLength bounds the accepted question size. Longer questions are
// almost certainly paste accidents, not analytics questions.
const maxQuestionLength = 2000

// QueryPipeline is the handler's view of the question pipeline.
type QueryPipeline interface {
	Submit(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error)
	Trail(correlationID uuid.UUID) (*models.AuditRecord, error)
}

// RegistryReloader swaps in a freshly validated registry snapshot.
type RegistryReloader interface {
	Reload() error
}

// QueryRequest is the POST /v1/query payload. Clarifications carry prior
// question/answer turns when the caller answers a clarification question.
type QueryRequest struct {
	Question       string                      `json:"question"`
	Clarifications []prompts.ClarificationTurn `json:"clarifications,omitempty"`
}

// QueryHandler serves the question pipeline over HTTP.
type QueryHandler struct {
	pipeline QueryPipeline
	reloader RegistryReloader
	logger   *zap.Logger
}

// NewQueryHandler creates a QueryHandler.
func NewQueryHandler(pipeline QueryPipeline, reloader RegistryReloader, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{
		pipeline: pipeline,
		reloader: reloader,
		logger:   logger.Named("handlers"),
	}
}

// RegisterRoutes registers the query routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/query", h.Query)
	mux.HandleFunc("GET /v1/audit/{id}", h.AuditTrail)
	mux.HandleFunc("POST /v1/registry/reload", h.ReloadRegistry)
}

// Query handles POST /v1/query: runs the full pipeline for one question.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "request body is not valid JSON")
		return
	}
	if req.Question == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "question is required")
		return
	}
	if len(req.Question) > maxQuestionLength {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "question is too long")
		return
	}

	answer, err := h.pipeline.Submit(r.Context(), req.Question, req.Clarifications)
	if err != nil {
		h.writePipelineError(w, r, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, answer); err != nil {
		h.logger.Error("failed to encode answer", zap.Error(err))
	}
}

// AuditTrail handles GET /v1/audit/{id}: returns the full ordered trail.
func (h *QueryHandler) AuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "id is not a valid correlation id")
		return
	}

	trail, err := h.pipeline.Trail(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", "no audit trail for that correlation id")
			return
		}
		h.logger.Error("audit trail lookup failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to load audit trail")
		return
	}

	if err := WriteJSON(w, http.StatusOK, trail); err != nil {
		h.logger.Error("failed to encode audit trail", zap.Error(err))
	}
}

// ReloadRegistry handles POST /v1/registry/reload: builds and validates a new
// snapshot from the registry files and swaps it in. In-flight requests keep
// the snapshot they started with.
func (h *QueryHandler) ReloadRegistry(w http.ResponseWriter, r *http.Request) {
	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("registry reload rejected", zap.Error(err))
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "invalid_registry", logging.SanitizeError(err))
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// writePipelineError maps the error taxonomy onto HTTP statuses.
func (h *QueryHandler) writePipelineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		// Client went away; 499-style response, though it will rarely be seen.
		_ = ErrorResponse(w, http.StatusBadRequest, "cancelled", "request was cancelled")
	case errors.Is(err, apperrors.ErrReasoningService):
		_ = ErrorResponse(w, http.StatusBadGateway, "reasoning_unavailable", "the reasoning service failed to produce a usable intent")
	case errors.Is(err, apperrors.ErrResourceLimit):
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "resource_limit", logging.SanitizeError(err))
	case errors.Is(err, apperrors.ErrExecution):
		h.logger.Error("warehouse execution failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "execution_failed", "the warehouse query failed")
	default:
		h.logger.Error("pipeline failed", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "the question could not be processed")
	}
}
