package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckParameterForInjection(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		wantSQLi bool
	}{
		{"classic tautology", "' OR '1'='1", true},
		{"union select", "1 UNION SELECT password FROM users", true},
		{"comment terminator", "admin'--", true},
		{"plain procedure name", "Virtual Consultation", false},
		{"date string", "2026-07-01", false},
		{"state code", "CA", false},
		{"apostrophe in a name", "O'Brien", false},
		{"non-string value", float64(250.5), false},
		{"nil value", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CheckParameterForInjection(0, tt.value)
			if tt.wantSQLi {
				require.NotNil(t, result)
				assert.True(t, result.IsSQLi)
				assert.NotEmpty(t, result.Fingerprint)
			} else {
				assert.Nil(t, result)
			}
		})
	}
}

func TestCheckAllParameters(t *testing.T) {
	params := []any{"Virtual Consultation", "' OR '1'='1", float64(100), "1; DROP TABLE claims--"}
	results := CheckAllParameters(params)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].ParamIndex)
	assert.Equal(t, 3, results[1].ParamIndex)
}

func TestCheckAllParametersClean(t *testing.T) {
	assert.Empty(t, CheckAllParameters([]any{"CA", "2026-07-01", float64(1)}))
	assert.Empty(t, CheckAllParameters(nil))
}
