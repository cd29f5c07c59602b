package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced to API callers.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeNotFound              = "NOT_FOUND"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeConflict              = "CONFLICT"
	CodeInternal              = "INTERNAL_ERROR"
	CodeInvalidCycleState     = "INVALID_CYCLE_STATE"
	CodeMalformedHierarchy    = "MALFORMED_HIERARCHY"
	CodeReconciliationFailure = "RECONCILIATION_FAILURE"
	CodeEmptyEvaluationTypes  = "EMPTY_EVALUATION_TYPES"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// Wrap attaches a cause to a DomainError so errors.Is keeps working on the result.
func Wrap(de *DomainError, cause error) *DomainError {
	de.Err = cause
	return de
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewInvalidCycleState rejects a lifecycle operation requested from a forbidden status.
func NewInvalidCycleState(message string, details map[string]any, cause error) error {
	return Wrap(NewDomainError(CodeInvalidCycleState, message, http.StatusConflict, details), cause)
}

// NewMalformedHierarchy reports an org hierarchy that cannot be derived from.
func NewMalformedHierarchy(message string, details map[string]any, cause error) error {
	return Wrap(NewDomainError(CodeMalformedHierarchy, message, http.StatusUnprocessableEntity, details), cause)
}

// NewEmptyEvaluationTypes rejects a cycle configured without evaluation types.
func NewEmptyEvaluationTypes(details map[string]any, cause error) error {
	return Wrap(NewDomainError(CodeEmptyEvaluationTypes, "cycle has no evaluation types", http.StatusUnprocessableEntity, details), cause)
}

// NewReconciliationFailure reports a rolled back evaluation replacement.
func NewReconciliationFailure(details map[string]any, cause error) error {
	return Wrap(NewDomainError(CodeReconciliationFailure, "evaluation reconciliation failed", http.StatusInternalServerError, details), cause)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &DomainError{
			Code:       CodeNotFound,
			Message:    "resource not found",
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{},
			Err:        err,
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
