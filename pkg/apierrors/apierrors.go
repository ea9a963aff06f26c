// Package apierrors defines the gateway error taxonomy shared by every
// transport. Handlers return *APIError values (or wrap them); anything else
// that escapes a handler is normalized to an internal error with a
// correlation id before it reaches the wire.
package apierrors

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/google/uuid"
)

// Source points at the part of the request that caused an error.
type Source struct {
	Pointer   string `json:"pointer,omitempty"`
	Parameter string `json:"parameter,omitempty"`
}

type APIError struct {
	Status int     `json:"-"`
	Code   string  `json:"code"`
	Title  string  `json:"title"`
	Detail string  `json:"detail,omitempty"`
	ID     string  `json:"id,omitempty"`
	Src    *Source `json:"source,omitempty"`
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return e.Title
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

func (e *APIError) WithPointer(pointer string) *APIError {
	dup := *e
	dup.Src = &Source{Pointer: pointer}
	return &dup
}

func (e *APIError) WithParameter(param string) *APIError {
	dup := *e
	dup.Src = &Source{Parameter: param}
	return &dup
}

func (e *APIError) WithDetail(format string, args ...any) *APIError {
	dup := *e
	dup.Detail = fmt.Sprintf(format, args...)
	return &dup
}

func Unauthenticated(detail string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Code: "unauthenticated", Title: "Unauthenticated", Detail: detail}
}

func Forbidden(detail string) *APIError {
	return &APIError{Status: http.StatusForbidden, Code: "forbidden", Title: "Forbidden", Detail: detail}
}

func NotFound(detail string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: "not_found", Title: "Not Found", Detail: detail}
}

func BadRequest(detail string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "bad_request", Title: "Bad Request", Detail: detail}
}

func Unprocessable(detail string) *APIError {
	return &APIError{Status: http.StatusUnprocessableEntity, Code: "unprocessable_entity", Title: "Unprocessable Entity", Detail: detail}
}

func Conflict(detail string) *APIError {
	return &APIError{Status: http.StatusConflict, Code: "conflict", Title: "Conflict", Detail: detail}
}

func TooManyRequests(detail string) *APIError {
	return &APIError{Status: http.StatusTooManyRequests, Code: "rate_limit_exceeded", Title: "Too Many Requests", Detail: detail}
}

// Internal allocates a correlation id, logs the underlying cause server-side,
// and returns an error safe to render to the caller. The cause never leaves
// the process.
func Internal(cause error) *APIError {
	id := uuid.NewString()
	if cause != nil {
		log.Printf("internal error [%s]: %v", id, cause)
	}
	return &APIError{
		Status: http.StatusInternalServerError,
		Code:   "internal_server_error",
		Title:  "Internal Server Error",
		Detail: "an unexpected error occurred",
		ID:     id,
	}
}

// From normalizes any error into the taxonomy. Recognized *APIError values
// pass through; everything else becomes an internal error.
func From(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal(err)
}
