package errors

import (
	"errors"
	"fmt"
)

// Domain error taxonomy. Recoverable conditions are sentinel errors callers
// branch on with errors.Is; configuration errors abort the operation.
var (
	// ErrDataNotAvailable means no samples exist for the requested window.
	// Callers render an explicit "no data" marker, never zero.
	ErrDataNotAvailable = errors.New("data not available")

	// ErrUnsupportedConversion means no aggregation rule is registered for
	// the requested (source, target, option) triple. Configuration error.
	ErrUnsupportedConversion = errors.New("unsupported unit conversion")

	// ErrUnsupportedTimeResolution is a client-facing validation error.
	ErrUnsupportedTimeResolution = errors.New("unsupported time resolution")

	// ErrTimeRangeTooLarge rejects a query window before execution.
	ErrTimeRangeTooLarge = errors.New("time range exceeds policy limit")
)

// ProviderErrorKind classifies failures of external provider connections.
type ProviderErrorKind string

const (
	ProviderAuth           ProviderErrorKind = "auth"
	ProviderValidate       ProviderErrorKind = "validate"
	ProviderUnknownRequest ProviderErrorKind = "unknown_request"
	ProviderTransient      ProviderErrorKind = "transient"
)

// ProviderError wraps a failure from an external provider connection.
// Transient errors are retried a fixed number of times at the collection
// boundary before being surfaced.
type ProviderError struct {
	Kind ProviderErrorKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the error should be retried by the collection
// orchestrator's fixed retry policy.
func (e *ProviderError) Retryable() bool { return e.Kind == ProviderTransient }

// NewProviderError wraps err with a provider error classification.
func NewProviderError(kind ProviderErrorKind, err error) *ProviderError {
	return &ProviderError{Kind: kind, Err: err}
}

// HTTP error type strings for the JSON error body.
const (
	HttpInternalError         = "internal_error"
	HttpInvalidRequestError   = "invalid_request"
	HttpNoDataError           = "no_data"
	HttpUnsupportedConversion = "unsupported_conversion"
	HttpRangeTooLargeError    = "time_range_too_large"
	HttpProviderError         = "provider_error"
	HttpConflictError         = "conflict"
)

// ErrorResponse is the error response body for API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
