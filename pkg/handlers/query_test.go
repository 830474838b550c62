package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/prompts"
)

// mockPipeline is a configurable QueryPipeline.
type mockPipeline struct {
	SubmitFunc func(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error)
	TrailFunc  func(correlationID uuid.UUID) (*models.AuditRecord, error)
}

func (m *mockPipeline) Submit(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, question, clarifications)
	}
	return &models.Answer{CorrelationID: uuid.New(), Summary: "ok"}, nil
}

func (m *mockPipeline) Trail(correlationID uuid.UUID) (*models.AuditRecord, error) {
	if m.TrailFunc != nil {
		return m.TrailFunc(correlationID)
	}
	return nil, apperrors.ErrNotFound
}

type mockReloader struct {
	ReloadFunc  func() error
	ReloadCalls int
}

func (m *mockReloader) Reload() error {
	m.ReloadCalls++
	if m.ReloadFunc != nil {
		return m.ReloadFunc()
	}
	return nil
}

func newTestMux(pipeline QueryPipeline, reloader RegistryReloader) *http.ServeMux {
	mux := http.NewServeMux()
	NewQueryHandler(pipeline, reloader, zap.NewNop()).RegisterRoutes(mux)
	return mux
}

func postQuery(t *testing.T, mux *http.ServeMux, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
	return payload
}

func TestQueryReturnsAnswer(t *testing.T) {
	id := uuid.New()
	pipeline := &mockPipeline{
		SubmitFunc: func(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
			assert.Equal(t, "total claims in July", question)
			return &models.Answer{CorrelationID: id, Summary: "The total is 1234."}, nil
		},
	}
	mux := newTestMux(pipeline, &mockReloader{})

	rec := postQuery(t, mux, `{"question": "total claims in July"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var answer models.Answer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&answer))
	assert.Equal(t, id, answer.CorrelationID)
	assert.Equal(t, "The total is 1234.", answer.Summary)
}

func TestQueryRejectedAnswerIsStillOK(t *testing.T) {
	pipeline := &mockPipeline{
		SubmitFunc: func(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
			return &models.Answer{
				CorrelationID:          uuid.New(),
				Summary:                "The question was rejected: no date range.",
				Rejected:               true,
				ClarificationQuestions: []string{"Which date range should the query cover?"},
			}, nil
		},
	}
	mux := newTestMux(pipeline, &mockReloader{})

	rec := postQuery(t, mux, `{"question": "total claims"}`)
	require.Equal(t, http.StatusOK, rec.Code, "rejections are answers, not transport errors")

	var answer models.Answer
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&answer))
	assert.True(t, answer.Rejected)
	assert.NotEmpty(t, answer.ClarificationQuestions)
}

func TestQueryThreadsClarifications(t *testing.T) {
	var seen []prompts.ClarificationTurn
	pipeline := &mockPipeline{
		SubmitFunc: func(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
			seen = clarifications
			return &models.Answer{CorrelationID: uuid.New()}, nil
		},
	}
	mux := newTestMux(pipeline, &mockReloader{})

	body := `{"question": "total claims", "clarifications": [{"question": "Which date range?", "answer": "July 2026"}]}`
	rec := postQuery(t, mux, body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, seen, 1)
	assert.Equal(t, "July 2026", seen[0].Answer)
}

func TestQueryBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"empty question", `{"question": ""}`},
		{"too long", `{"question": "` + strings.Repeat("x", maxQuestionLength+1) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			submitted := false
			pipeline := &mockPipeline{
				SubmitFunc: func(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
					submitted = true
					return nil, nil
				},
			}
			mux := newTestMux(pipeline, &mockReloader{})

			rec := postQuery(t, mux, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", decodeError(t, rec)["error"])
			assert.False(t, submitted, "invalid requests never reach the pipeline")
		})
	}
}

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"reasoning failure", apperrors.ErrReasoningService, http.StatusBadGateway, "reasoning_unavailable"},
		{"resource limit", apperrors.ErrResourceLimit, http.StatusUnprocessableEntity, "resource_limit"},
		{"execution failure", apperrors.ErrExecution, http.StatusBadGateway, "execution_failed"},
		{"unknown failure", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline := &mockPipeline{
				SubmitFunc: func(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
					return nil, tt.err
				},
			}
			mux := newTestMux(pipeline, &mockReloader{})

			rec := postQuery(t, mux, `{"question": "q"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec)["error"])
		})
	}
}

func TestQueryExecutionErrorHidesDetail(t *testing.T) {
	pipeline := &mockPipeline{
		SubmitFunc: func(ctx context.Context, question string, clarifications []prompts.ClarificationTurn) (*models.Answer, error) {
			return nil, errors.New(`execution: connect to host=10.0.0.5 user=claimsight failed`)
		},
	}
	mux := newTestMux(pipeline, &mockReloader{})

	rec := postQuery(t, mux, `{"question": "q"}`)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5", "internal detail never reaches the caller")
}

func TestAuditTrailFound(t *testing.T) {
	id := uuid.New()
	pipeline := &mockPipeline{
		TrailFunc: func(correlationID uuid.UUID) (*models.AuditRecord, error) {
			assert.Equal(t, id, correlationID)
			return &models.AuditRecord{
				CorrelationID: id,
				Question:      "total claims in July",
				Events: []models.AuditEvent{
					{Seq: 0, Stage: models.StageReceived, Hash: "abc"},
				},
			}, nil
		},
	}
	mux := newTestMux(pipeline, &mockReloader{})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/"+id.String(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var trail models.AuditRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&trail))
	assert.Equal(t, id, trail.CorrelationID)
	require.Len(t, trail.Events, 1)
}

func TestAuditTrailBadID(t *testing.T) {
	mux := newTestMux(&mockPipeline{}, &mockReloader{})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditTrailNotFound(t *testing.T) {
	mux := newTestMux(&mockPipeline{}, &mockReloader{})

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec)["error"])
}

func TestReloadRegistrySuccess(t *testing.T) {
	reloader := &mockReloader{}
	mux := newTestMux(&mockPipeline{}, reloader)

	req := httptest.NewRequest(http.MethodPost, "/v1/registry/reload", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, reloader.ReloadCalls)
}

func TestReloadRegistryRejectsInvalidFiles(t *testing.T) {
	reloader := &mockReloader{
		ReloadFunc: func() error {
			return errors.New(`duplicate table "claims"`)
		},
	}
	mux := newTestMux(&mockPipeline{}, reloader)

	req := httptest.NewRequest(http.MethodPost, "/v1/registry/reload", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "invalid_registry", decodeError(t, rec)["error"])
}
