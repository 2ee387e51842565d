package errors

import (
	"errors"
	"fmt"
)

// ErrorType categorizes errors by the stage of the pipeline that produced them.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNormalization ErrorType = "normalization"
	ErrorTypeScoring       ErrorType = "scoring"
	ErrorTypePersistence   ErrorType = "persistence"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeCancelled     ErrorType = "cancelled"
)

// Error codes surfaced in API responses and logs.
const (
	CodeInsufficientText  = "INSUFFICIENT_TEXT"
	CodeInvalidBatch      = "INVALID_BATCH"
	CodeScoringOverflow   = "SCORING_OVERFLOW"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeBatchCancelled    = "BATCH_CANCELLED"
)

// AppError is a structured application error.
type AppError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(typ ErrorType, code, message string, cause error) *AppError {
	return &AppError{
		Type:    typ,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewInsufficientText reports a document too short to normalize.
// Recovered per candidate; never aborts the batch.
func NewInsufficientText(message string) *AppError {
	return newAppError(ErrorTypeNormalization, CodeInsufficientText, message, nil)
}

// NewInvalidBatch reports a batch that fails validation before any
// processing starts. Fatal to the call, nothing is persisted.
func NewInvalidBatch(message string) *AppError {
	return newAppError(ErrorTypeValidation, CodeInvalidBatch, message, nil)
}

// NewScoringOverflow reports a sub-score outside [0,100]. Should be
// unreachable; treated as a per-candidate failure and logged as a bug.
func NewScoringOverflow(message string) *AppError {
	return newAppError(ErrorTypeScoring, CodeScoringOverflow, message, nil)
}

// NewPersistence wraps a store write failure. The ranking pass is
// considered not committed and is safe to retry.
func NewPersistence(message string, cause error) *AppError {
	return newAppError(ErrorTypePersistence, CodePersistenceFailed, message, cause)
}

func NewNotFound(message string) *AppError {
	return newAppError(ErrorTypeNotFound, CodeNotFound, message, nil)
}

func NewCancelled(message string) *AppError {
	return newAppError(ErrorTypeCancelled, CodeBatchCancelled, message, nil)
}

// AsAppError unwraps err to an *AppError when one is in the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}
