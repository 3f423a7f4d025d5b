package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrCode is a typed error code for consistent client-side error handling.
type ErrCode string

const (
	ErrCodeUnauthorized ErrCode = "UNAUTHORIZED"
	ErrCodeForbidden    ErrCode = "FORBIDDEN"
	ErrCodeNotFound     ErrCode = "NOT_FOUND"
	ErrCodeConflict     ErrCode = "CONFLICT"
	ErrCodeValidation   ErrCode = "VALIDATION_ERROR"
	ErrCodeServer       ErrCode = "SERVER_ERROR"
)

// APIError is a non-2xx reply from the content service. Detail carries the
// server's human-readable message when the body could be decoded.
type APIError struct {
	Status int
	Code   ErrCode
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("content service: %s (%d): %s", e.Code, e.Status, e.Detail)
	}
	return fmt.Sprintf("content service: %s (%d)", e.Code, e.Status)
}

func codeForStatus(status int) ErrCode {
	switch status {
	case http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case http.StatusForbidden:
		return ErrCodeForbidden
	case http.StatusNotFound:
		return ErrCodeNotFound
	case http.StatusConflict:
		return ErrCodeConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrCodeValidation
	default:
		return ErrCodeServer
	}
}

func is(err error, code ErrCode) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// IsUnauthorized reports whether err is a 401 from the content service.
func IsUnauthorized(err error) bool { return is(err, ErrCodeUnauthorized) }

// IsForbidden reports whether err is a 403 from the content service.
func IsForbidden(err error) bool { return is(err, ErrCodeForbidden) }

// IsNotFound reports whether err is a 404 from the content service.
func IsNotFound(err error) bool { return is(err, ErrCodeNotFound) }

// IsConflict reports whether err is a 409 from the content service,
// e.g. test attempts exhausted.
func IsConflict(err error) bool { return is(err, ErrCodeConflict) }
