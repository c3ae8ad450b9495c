// Package domainerrors defines the error codes services return to transport
// layers. Stores return sentinel errors (pkg/platform/sentinel); services
// translate those into coded errors from this package, and handlers map codes
// to HTTP status via pkg/platform/httputil.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error identifier. It is rendered as the
// "error" field of API error responses.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"

	// Registration and settlement outcomes.
	CodeNotEligible          Code = "not_eligible"
	CodeAlreadyRegistered    Code = "already_registered"
	CodeCapacityExceeded     Code = "capacity_exceeded"
	CodeAlreadyPaid          Code = "already_paid"
	CodeAlreadyCancelled     Code = "already_cancelled"
	CodeTooLate              Code = "too_late"
	CodeInvalidSignature     Code = "invalid_signature"
	CodeConfigurationMissing Code = "configuration_missing"
)

// Error carries a Code, a client-safe message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error. The cause stays
// reachable through errors.Is / errors.As but is never shown to clients.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// GetCode returns the outermost code in the chain, or CodeInternal when err
// carries none.
func GetCode(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in the chain has code.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code == code
}

// Is is an alias of HasCode that reads better in assertions.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// ToHTTPStatus maps a code onto the status the API returns for it.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput,
		CodeAlreadyRegistered, CodeCapacityExceeded, CodeAlreadyPaid,
		CodeAlreadyCancelled, CodeTooLate, CodeInvalidSignature:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeNotEligible:
		return http.StatusNotFound
	case CodeConflict, CodeInvariantViolation:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
