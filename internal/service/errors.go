package service

import (
	"errors"
	"net/http"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrAuthentication      = errors.New("authentication failed")
	ErrForbidden           = errors.New("forbidden")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrUpstream marks a non-2xx answer relayed from the agent service with its own status.
	ErrUpstream = errors.New("upstream error")
)

// Error is a client-facing failure: the message and status are safe to return over HTTP.
type Error struct {
	Kind    error
	Status  int
	Message string
	Details []string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind error, status int, msg string) *Error {
	return &Error{Kind: kind, Status: status, Message: msg}
}

func validationError(msg string, fields ...string) *Error {
	e := newError(ErrValidation, http.StatusBadRequest, msg)
	e.Details = fields
	return e
}

// ValidationError is exported for the HTTP layer to report request binding failures.
func ValidationError(msg string, fields ...string) *Error {
	return validationError(msg, fields...)
}

func conflictError(msg string) *Error {
	return newError(ErrConflict, http.StatusBadRequest, msg)
}

func notFoundError(msg string) *Error {
	return newError(ErrNotFound, http.StatusNotFound, msg)
}

// NotFoundError is exported for unmatched routes.
func NotFoundError(msg string) *Error {
	return notFoundError(msg)
}

// UnauthenticatedError reports a missing or unusable credential.
func UnauthenticatedError(msg string) *Error {
	return newError(ErrUnauthenticated, http.StatusUnauthorized, msg)
}

func authenticationError(msg string) *Error {
	return newError(ErrAuthentication, http.StatusUnauthorized, msg)
}

func forbiddenError(msg string) *Error {
	return newError(ErrForbidden, http.StatusForbidden, msg)
}

func upstreamUnavailableError(msg string, cause error) *Error {
	e := newError(ErrUpstreamUnavailable, http.StatusBadGateway, msg)
	e.cause = cause
	return e
}

// TooManyRequestsError reports a client over its request budget.
func TooManyRequestsError(msg string) *Error {
	return newError(ErrRateLimited, http.StatusTooManyRequests, msg)
}

func upstreamError(status int, msg string) *Error {
	return newError(ErrUpstream, status, msg)
}
