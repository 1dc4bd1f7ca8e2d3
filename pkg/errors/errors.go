package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Enrollment and certificate workflow errors.
var (
	ErrWorkshopFull      = New("WORKSHOP_FULL", http.StatusConflict, "workshop has no available seats")
	ErrWorkshopNotOpen   = New("WORKSHOP_NOT_OPEN", http.StatusConflict, "workshop is not open for enrollment")
	ErrNotEnrolled       = New("NOT_ENROLLED", http.StatusConflict, "no active enrollment for this workshop")
	ErrNotFinalized      = New("WORKSHOP_NOT_FINALIZED", http.StatusConflict, "workshop has not been finalized")
	ErrSurveyNotRequired = New("SURVEY_NOT_REQUIRED", http.StatusConflict, "workshop does not collect a survey")
	ErrNoSurveyTemplate  = New("NO_SURVEY_TEMPLATE", http.StatusNotFound, "no active survey template applies")
	ErrAlreadyResponded  = New("ALREADY_RESPONDED", http.StatusConflict, "survey already submitted for this workshop")
	ErrNotEligible       = New("NOT_ELIGIBLE", http.StatusConflict, "enrollment does not qualify for a certificate")
	ErrTryAgain          = New("TRY_AGAIN", http.StatusConflict, "could not complete the request, please retry")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
