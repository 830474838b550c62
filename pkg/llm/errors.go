package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies a reasoning-service failure.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeMalformed ErrorType = "malformed" // response could not be parsed into an intent
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a structured reasoning-service error with classification.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface so the retry
// package can check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured reasoning-service error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// ClassifyError categorizes an error from a provider SDK into a structured
// Error so callers get consistent retry behavior across providers.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	statusCode := 0
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
			statusCode = code
			break
		}
	}

	// Authentication errors (not retryable)
	if strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") {
		e := NewError(ErrorTypeAuth, "authentication failed", false, err)
		e.StatusCode = statusCode
		return e
	}

	// Model not found (not retryable without config change)
	if strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")) {
		e := NewError(ErrorTypeModel, "model not found", false, err)
		e.StatusCode = statusCode
		return e
	}

	// Endpoint not found (not retryable without config change)
	if strings.Contains(errStr, "404") {
		e := NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
		e.StatusCode = statusCode
		return e
	}

	// Connection errors (retryable)
	if strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") {
		e := NewError(ErrorTypeEndpoint, "connection failed", true, err)
		e.StatusCode = statusCode
		return e
	}

	// Timeout and deadline exceeded (retryable)
	if strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "deadline exceeded") {
		e := NewError(ErrorTypeEndpoint, "request timeout", true, err)
		e.StatusCode = statusCode
		return e
	}

	// Rate limiting (retryable after backoff)
	if strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") {
		e := NewError(ErrorTypeUnknown, "rate limited", true, err)
		e.StatusCode = statusCode
		return e
	}

	// 5xx server errors (retryable)
	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		e := NewError(ErrorTypeEndpoint, "server error", true, err)
		e.StatusCode = statusCode
		return e
	}

	e := NewError(ErrorTypeUnknown, "reasoning service error", false, err)
	e.StatusCode = statusCode
	return e
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
