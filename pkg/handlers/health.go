package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/config"
)

const serviceName = "claimsight-engine"

// PingResponse reports which build of the engine is answering.
type PingResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

// HealthHandler serves the liveness endpoints.
type HealthHandler struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, logger: logger.Named("handlers")}
}

// RegisterRoutes registers the health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health is the load balancer probe: a bare 200 "ok".
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ping reports build and environment details for operators.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	response := PingResponse{
		Status:      "ok",
		Service:     serviceName,
		Version:     h.cfg.Version,
		Environment: h.cfg.Env,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("failed to encode ping response", zap.Error(err))
	}
}
