package apperrors

import "errors"

var (
	// ErrNotFound indicates a requested record (e.g. an audit trail) does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidationRejected indicates an intent failed a blocking business rule or
	// the implicit completeness rule. Never retried automatically; the caller is
	// expected to answer the attached clarification questions and resubmit.
	ErrValidationRejected = errors.New("intent rejected by validation")

	// ErrReasoningService indicates the external reasoning service was unavailable
	// or returned output that could not be parsed after the bounded retry.
	ErrReasoningService = errors.New("reasoning service failed")

	// ErrExecution indicates the warehouse failed after retries were exhausted.
	ErrExecution = errors.New("query execution failed")

	// ErrResourceLimit indicates a row/byte ceiling or timeout was hit. A partial
	// result accompanies this error; it is not fatal to the request.
	ErrResourceLimit = errors.New("resource limit exceeded")

	// ErrConfiguration indicates a bad schema or rule definition. Rejected at load
	// time; the process refuses to serve traffic until the registry is fixed.
	ErrConfiguration = errors.New("invalid configuration")
)
