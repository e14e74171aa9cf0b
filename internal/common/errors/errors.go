// Package errors provides the standardized error taxonomy shared by the HTTP and Zeebe boundaries.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Startup errors: the process must not serve traffic when one of these occurs.
const (
	ErrCodeSchemaLoadFailed ErrorCode = "SCHEMA_LOAD_FAILED"
	ErrCodeModelLoadFailed  ErrorCode = "MODEL_LOAD_FAILED"
)

// Client input errors, recoverable per request.
const (
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeMissingField   ErrorCode = "MISSING_FIELD"
	ErrCodeInvalidValue   ErrorCode = "INVALID_VALUE"
)

// Server-side failures, reported generically.
const (
	ErrCodeEncodingFailed ErrorCode = "ENCODING_FAILED"
	ErrCodeScoringFailed  ErrorCode = "SCORING_FAILED"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Fields    []string               `json:"fields,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. Error Constructors
// ==========================

// NewSchemaLoadError reports a missing, unreadable or malformed training schema artifact.
func NewSchemaLoadError(path string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchemaLoadFailed,
		Message:   "Training schema could not be loaded",
		Details:   fmt.Sprintf("path: %s, error: %s", path, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewModelLoadError reports a model artifact that cannot be used for scoring.
func NewModelLoadError(path string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeModelLoadFailed,
		Message:   "Model artifact could not be loaded",
		Details:   fmt.Sprintf("path: %s, error: %s", path, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewInvalidRequestError creates a non-retryable error for request bodies that are not a flat JSON object.
func NewInvalidRequestError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidRequest,
		Message:   "Request body must be a JSON object of primitive values",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingFieldError lists every required numeric field absent from a record.
func NewMissingFieldError(fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingField,
		Message:   "Missing required numeric fields",
		Fields:    append([]string(nil), fields...),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidValueError lists every required numeric field that could not be coerced to a number.
func NewInvalidValueError(fields []string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidValue,
		Message:   "Numeric fields could not be converted",
		Fields:    append([]string(nil), fields...),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewEncodingFailedError signals a schema/record mismatch bug inside the encoder.
func NewEncodingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeEncodingFailed,
		Message:   "Feature encoding failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewScoringFailedError wraps a failure inside the model call.
func NewScoringFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScoringFailed,
		Message:   "Prediction failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Classification
// ==========================

// AsStandard extracts a *StandardError from err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func hasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

func IsMissingField(err error) bool { return hasCode(err, ErrCodeMissingField) }

func IsInvalidValue(err error) bool { return hasCode(err, ErrCodeInvalidValue) }

func IsScoringFailed(err error) bool { return hasCode(err, ErrCodeScoringFailed) }

// IsClientError reports whether the error was caused by the caller's input.
func IsClientError(err error) bool {
	stdErr, ok := AsStandard(err)
	if !ok {
		return false
	}
	switch stdErr.Code {
	case ErrCodeInvalidRequest, ErrCodeMissingField, ErrCodeInvalidValue:
		return true
	}
	return false
}

// HTTPStatus maps an error code to the status the HTTP boundary answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeMissingField, ErrCodeInvalidValue:
		return http.StatusBadRequest
	case ErrCodeSchemaLoadFailed, ErrCodeModelLoadFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetRetryCount returns the recommended job retry count for the Zeebe boundary.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeScoringFailed:
		return 3
	default:
		return 0 // input and configuration errors never heal on retry
	}
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeInvalidRequest, ErrCodeMissingField, ErrCodeInvalidValue:
		return "VALIDATION"
	case ErrCodeSchemaLoadFailed, ErrCodeModelLoadFailed:
		return "STARTUP"
	case ErrCodeEncodingFailed, ErrCodeScoringFailed:
		return "INFERENCE"
	default:
		return "OTHER"
	}
}
