package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Dumbledore error code.
type ErrorCode string

const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"    // 400
	ErrNotFound          ErrorCode = "NOT_FOUND"          // 404
	ErrSourceUnavailable ErrorCode = "SOURCE_UNAVAILABLE" // 503
	ErrModelUnavailable  ErrorCode = "MODEL_UNAVAILABLE"  // 503
	ErrStoreError        ErrorCode = "STORE_ERROR"        // 500
	ErrLLMError          ErrorCode = "LLM_ERROR"          // 502
	ErrInternal          ErrorCode = "INTERNAL"           // 500
)

// AppError represents a structured error with code, status, and details.
type AppError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AppError {
	return &AppError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing note or conversation.
func NewNotFound(identifier string) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewSourceUnavailable creates a 503 error for an unreachable sync source.
// The failing source aborts; other sources are unaffected.
func NewSourceUnavailable(source string, err error) *AppError {
	msg := fmt.Sprintf("source %q unavailable", source)
	details := map[string]any{"source": source}
	if err != nil {
		msg = fmt.Sprintf("source %q unavailable: %v", source, err)
		details["cause"] = err.Error()
	}
	return &AppError{
		Code:    ErrSourceUnavailable,
		Status:  503,
		Message: msg,
		Details: details,
	}
}

// NewModelUnavailable creates a 503 error for an embedding model failure.
// Operations requiring embeddings fail fast; no partial vectors are stored.
func NewModelUnavailable(model string, err error) *AppError {
	msg := fmt.Sprintf("embedding model %q unavailable", model)
	details := map[string]any{"model": model}
	if err != nil {
		msg = fmt.Sprintf("embedding model %q unavailable: %v", model, err)
		details["cause"] = err.Error()
	}
	return &AppError{
		Code:    ErrModelUnavailable,
		Status:  503,
		Message: msg,
		Details: details,
	}
}

// NewStoreError creates a 500 error for vector or metadata store I/O failures.
func NewStoreError(err error) *AppError {
	msg := "store error"
	if err != nil {
		msg = fmt.Sprintf("store error: %v", err)
	}
	return &AppError{
		Code:    ErrStoreError,
		Status:  500,
		Message: msg,
	}
}

// NewLLMError creates a 502 error for an external LLM call failure.
// Fatal to the current turn only, not to the session.
func NewLLMError(err error) *AppError {
	msg := "llm call failed"
	if err != nil {
		msg = fmt.Sprintf("llm call failed: %v", err)
	}
	return &AppError{
		Code:    ErrLLMError,
		Status:  502,
		Message: msg,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
// The message stays generic; the original error lands in Details for logging.
func NewInternal(err error) *AppError {
	details := map[string]any{}
	if err != nil {
		details["internal_error"] = err.Error()
	}
	return &AppError{
		Code:    ErrInternal,
		Status:  500,
		Message: "an internal error occurred",
		Details: details,
	}
}

// Is checks if an error is an AppError with the given code.
// Wrapped AppErrors are unwrapped.
func Is(err error, code ErrorCode) bool {
	var aErr *AppError
	if stderrors.As(err, &aErr) {
		return aErr.Code == code
	}
	return false
}
