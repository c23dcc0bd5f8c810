package errors

import "fmt"

// Error codes
const (
	CodeAppError   = "APP_ERROR"
	CodeValidation = "VALIDATION_ERROR"
	CodeStore      = "STORE_ERROR"
	CodeSnapshot   = "SNAPSHOT_ERROR"
	CodeCache      = "CACHE_ERROR"
	CodeLLM        = "LLM_ERROR"
	CodeConflict   = "CONFLICT_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// HTTPStatus is promoted to every typed error, so callers can match them all with
// errors.As on an interface.
func (e *AppError) HTTPStatus() int {
	if e.StatusCode == 0 {
		return 500
	}
	return e.StatusCode
}

func (e *AppError) ErrorCode() string {
	return e.Code
}

// StatusCoder is implemented by every error in this package.
type StatusCoder interface {
	error
	HTTPStatus() int
	ErrorCode() string
}

func NewAppError(message, code string, statusCode int, context map[string]any) *AppError {
	return &AppError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

type ValidationError struct {
	*AppError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

// StoreError wraps a failed intent store operation.
type StoreError struct {
	*AppError
	Operation string
}

func NewStoreError(message, operation string, cause error) *StoreError {
	return &StoreError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeStore,
			StatusCode: 500,
			Context:    map[string]any{"operation": operation},
			Cause:      cause,
		},
		Operation: operation,
	}
}

// NotFoundError reports a missing intent, keyword or snapshot.
type NotFoundError struct {
	*AppError
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		AppError: &AppError{
			Message:    fmt.Sprintf("%s %q not found", resource, id),
			Code:       CodeNotFound,
			StatusCode: 404,
			Context:    map[string]any{"resource": resource, "id": id},
		},
		Resource: resource,
		ID:       id,
	}
}

// SnapshotError is returned when a snapshot cannot be built or installed.
// Problems lists every validation failure found in the source content.
type SnapshotError struct {
	*AppError
	Problems []string
}

func NewSnapshotError(message string, problems []string, cause error) *SnapshotError {
	return &SnapshotError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeSnapshot,
			StatusCode: 500,
			Context:    map[string]any{"problems": problems},
			Cause:      cause,
		},
		Problems: problems,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

// LLMError wraps a failed completion. Callers degrade to the fallback response.
type LLMError struct {
	*AppError
	Provider string
}

func NewLLMError(message, provider string, statusCode int, cause error) *LLMError {
	return &LLMError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeLLM,
			StatusCode: statusCode,
			Context:    map[string]any{"provider": provider},
			Cause:      cause,
		},
		Provider: provider,
	}
}

// ConflictError rejects a keyword write that would duplicate another intent's key.
type ConflictError struct {
	*AppError
	Key            string
	ExistingIntent string
}

func NewConflictError(message, key, existingIntent string) *ConflictError {
	return &ConflictError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeConflict,
			StatusCode: 409,
			Context: map[string]any{
				"key":            key,
				"existingIntent": existingIntent,
			},
		},
		Key:            key,
		ExistingIntent: existingIntent,
	}
}
