package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "bare object",
			response: `{"confidence": 0.9}`,
			want:     `{"confidence": 0.9}`,
		},
		{
			name:     "think tags stripped",
			response: "<think>the user wants a sum</think>\n{\"a\": 1}",
			want:     `{"a": 1}`,
		},
		{
			name:     "markdown fence",
			response: "```json\n{\"a\": 1}\n```",
			want:     `{"a": 1}`,
		},
		{
			name:     "surrounding prose",
			response: "Here is the intent you asked for: {\"a\": 1}. Let me know!",
			want:     `{"a": 1}`,
		},
		{
			name:     "nested braces",
			response: `{"outer": {"inner": [1, 2]}}`,
			want:     `{"outer": {"inner": [1, 2]}}`,
		},
		{
			name:     "braces inside strings",
			response: `{"note": "a { tricky } value"}`,
			want:     `{"note": "a { tricky } value"}`,
		},
		{
			name:     "array response",
			response: `[{"a": 1}, {"a": 2}]`,
			want:     `[{"a": 1}, {"a": 2}]`,
		},
		{
			name:     "no json at all",
			response: "I cannot answer that question.",
			wantErr:  true,
		},
		{
			name:     "unbalanced braces",
			response: `{"a": 1`,
			wantErr:  true,
		},
		{
			name:     "empty response",
			response: "",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}

	got, err := ParseJSONResponse[payload]("<think>hmm</think>{\"confidence\": 0.8, \"rationale\": \"r\"}")
	require.NoError(t, err)
	assert.Equal(t, payload{Confidence: 0.8, Rationale: "r"}, got)

	_, err = ParseJSONResponse[payload](`{"confidence": "not a number"}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}
