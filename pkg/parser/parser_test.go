package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/llm"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
	"github.com/claimsight-ai/claimsight-engine/pkg/prompts"
	"github.com/claimsight-ai/claimsight-engine/pkg/registry"
)

const validIntentJSON = `{
	"tables": ["claims"],
	"metrics": [{"table": "claims", "column": "claim_amount", "aggregate": "sum"}],
	"filters": [{"table": "claims", "column": "service_date", "operator": "between", "values": ["2026-07-01", "2026-08-01"]}],
	"rationale": "sum of claim amounts in July",
	"confidence": 0.9
}`

func testSnapshot(t *testing.T) *registry.Snapshot {
	t.Helper()
	schema := &models.SchemaDescriptor{
		Tables: []models.TableDescriptor{{
			Name: "claims",
			Columns: []models.ColumnDescriptor{
				{Name: "claim_amount", SemanticType: models.SemanticTypeMetric},
				{Name: "service_date", SemanticType: models.SemanticTypeTimestamp},
			},
		}},
	}
	snap, err := registry.Build(schema, nil)
	require.NoError(t, err)
	return snap
}

func TestParseValidResponse(t *testing.T) {
	mock := llm.NewMockReasoningClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: validIntentJSON}, nil
	}

	p := New(mock, zap.NewNop())
	intent, err := p.Parse(context.Background(), "total claim amount in July", testSnapshot(t), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"claims"}, intent.Tables)
	assert.Equal(t, models.AggSum, intent.Metrics[0].Aggregate)
	assert.Equal(t, 1, mock.CompleteCalls)
}

func TestParseStripsThinkTags(t *testing.T) {
	mock := llm.NewMockReasoningClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: "<think>reasoning here</think>\n" + validIntentJSON}, nil
	}

	p := New(mock, zap.NewNop())
	_, err := p.Parse(context.Background(), "q", testSnapshot(t), nil)
	require.NoError(t, err)
}

func TestParseEmptyQuestion(t *testing.T) {
	p := New(llm.NewMockReasoningClient(), zap.NewNop())
	_, err := p.Parse(context.Background(), "", testSnapshot(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrReasoningService)
}

func TestParseMalformedGetsStrictRetry(t *testing.T) {
	mock := llm.NewMockReasoningClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
		if mock.CompleteCalls == 1 {
			return &llm.CompletionResult{Content: "I think you want the total claim amount."}, nil
		}
		return &llm.CompletionResult{Content: validIntentJSON}, nil
	}

	p := New(mock, zap.NewNop())
	intent, err := p.Parse(context.Background(), "q", testSnapshot(t), nil)
	require.NoError(t, err)
	assert.NotNil(t, intent)
	require.Equal(t, 2, mock.CompleteCalls)
	// The retry prompt embeds the failure and demands bare JSON.
	assert.Contains(t, mock.Prompts[1], "could not be parsed")
}

func TestParseSecondFailureIsReasoningError(t *testing.T) {
	mock := llm.NewMockReasoningClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: "not json"}, nil
	}

	p := New(mock, zap.NewNop())
	_, err := p.Parse(context.Background(), "q", testSnapshot(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrReasoningService)
	assert.Equal(t, 2, mock.CompleteCalls, "exactly one bounded retry")
}

func TestParseTransportErrorRetriesSamePrompt(t *testing.T) {
	mock := llm.NewMockReasoningClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
		if mock.CompleteCalls == 1 {
			return nil, errors.New("connection refused")
		}
		return &llm.CompletionResult{Content: validIntentJSON}, nil
	}

	p := New(mock, zap.NewNop())
	_, err := p.Parse(context.Background(), "q", testSnapshot(t), nil)
	require.NoError(t, err)
	require.Equal(t, 2, mock.CompleteCalls)
	assert.Equal(t, mock.Prompts[0], mock.Prompts[1], "transport failures reuse the original prompt")
}

func TestParseShapeChecks(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"confidence out of range", `{"metrics": [], "rationale": "r", "confidence": 1.5}`},
		{"missing rationale", `{"metrics": [], "rationale": "", "confidence": 0.5}`},
		{"unknown aggregate", `{"metrics": [{"table": "claims", "column": "claim_amount", "aggregate": "median"}], "rationale": "r", "confidence": 0.5}`},
		{"unknown operator", `{"metrics": [], "filters": [{"table": "claims", "column": "claim_amount", "operator": "like", "values": ["x"]}], "rationale": "r", "confidence": 0.5}`},
		{"between needs two values", `{"metrics": [], "filters": [{"table": "claims", "column": "service_date", "operator": "between", "values": ["2026-07-01"]}], "rationale": "r", "confidence": 0.5}`},
		{"incomplete comparison window", `{"metrics": [], "comparison": {"current": {"column": "service_date", "start": "2026-08-01", "end": ""}, "baseline": {"column": "service_date", "start": "2026-07-01", "end": "2026-08-01"}}, "rationale": "r", "confidence": 0.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := llm.NewMockReasoningClient()
			mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
				return &llm.CompletionResult{Content: tt.content}, nil
			}

			p := New(mock, zap.NewNop())
			_, err := p.Parse(context.Background(), "q", testSnapshot(t), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrReasoningService)
		})
	}
}

func TestParseThreadsClarificationTurns(t *testing.T) {
	mock := llm.NewMockReasoningClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
		return &llm.CompletionResult{Content: validIntentJSON}, nil
	}

	turns := []prompts.ClarificationTurn{
		{Question: "Which date range should the query cover?", Answer: "July 2026"},
	}

	p := New(mock, zap.NewNop())
	_, err := p.Parse(context.Background(), "total claims", testSnapshot(t), turns)
	require.NoError(t, err)
	assert.Contains(t, mock.Prompts[0], "Which date range should the query cover?")
	assert.Contains(t, mock.Prompts[0], "July 2026")
}

func TestParseCancellationShortCircuits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := llm.NewMockReasoningClient()
	mock.CompleteFunc = func(ctx context.Context, prompt, systemMessage string, temperature float64) (*llm.CompletionResult, error) {
		cancel()
		return nil, ctx.Err()
	}

	p := New(mock, zap.NewNop())
	_, err := p.Parse(ctx, "q", testSnapshot(t), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, mock.CompleteCalls, "no retry after cancellation")
}
