// Package sql provides dialect helpers and parameter safety checks for
// compiled query plans.
package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on a
// parameter value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	ParamIndex  int    // Position of the parameter that failed the check
	ParamValue  any    // The value that was checked
}

// CheckParameterForInjection uses libinjection to detect SQL injection
// patterns in a parameter value. Plan parameters originate from the reasoning
// service's extraction and are untrusted even though they are always bound,
// never interpolated.
//
// Only string values are checked - numbers, booleans, and other types cannot
// contain SQL injection patterns and return nil.
func CheckParameterForInjection(index int, value any) *InjectionCheckResult {
	strValue, ok := value.(string)
	if !ok {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(strValue)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			ParamIndex:  index,
			ParamValue:  value,
		}
	}

	return nil
}

// CheckAllParameters validates every parameter value for SQL injection
// attempts. Returns one result per flagged parameter; an empty slice means
// all parameters are clean.
func CheckAllParameters(params []any) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for i, value := range params {
		if result := CheckParameterForInjection(i, value); result != nil {
			results = append(results, result)
		}
	}
	return results
}
