package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/config"
)

func healthMux() *http.ServeMux {
	cfg := &config.Config{Env: "test", Version: "1.2.3"}
	mux := http.NewServeMux()
	NewHealthHandler(cfg, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	healthMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestPing(t *testing.T) {
	rec := httptest.NewRecorder()
	healthMux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var response PingResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "claimsight-engine", response.Service)
	assert.Equal(t, "1.2.3", response.Version)
	assert.Equal(t, "test", response.Environment)
}
