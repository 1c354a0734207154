// Package apperr defines the service error taxonomy and its mapping onto
// HTTP responses.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Kind classifies an error for clients and for status code mapping.
type Kind string

const (
	Validation         Kind = "validation_error"
	Authentication     Kind = "authentication_error"
	Authorization      Kind = "authorization_error"
	NotFound           Kind = "not_found"
	Conflict           Kind = "conflict"
	DocumentProcessing Kind = "document_processing_error"
	FileUpload         Kind = "file_upload_error"
	RateLimit          Kind = "rate_limit_error"
	Database           Kind = "database_error"
	Configuration      Kind = "configuration_error"
	LLM                Kind = "llm_error"
	ExternalService    Kind = "external_service_error"
	Internal           Kind = "internal_error"
)

var statusByKind = map[Kind]int{
	Validation:         http.StatusBadRequest,
	Authentication:     http.StatusUnauthorized,
	Authorization:      http.StatusForbidden,
	NotFound:           http.StatusNotFound,
	Conflict:           http.StatusConflict,
	DocumentProcessing: http.StatusUnprocessableEntity,
	FileUpload:         http.StatusBadRequest,
	RateLimit:          http.StatusTooManyRequests,
	Database:           http.StatusInternalServerError,
	Configuration:      http.StatusInternalServerError,
	LLM:                http.StatusBadGateway,
	ExternalService:    http.StatusBadGateway,
	Internal:           http.StatusInternalServerError,
}

// Status returns the HTTP status for a kind.
func (k Kind) Status() int {
	if s, ok := statusByKind[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Error is a classified error with an optional cause and details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail returns e with key set in its details.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err, keeping it as the cause.
func Wrap(err error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// RetryableError indicates a transient upstream failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable reports whether err or anything it wraps is a RetryableError.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Body is the JSON error envelope returned to clients.
type Body struct {
	Error     BodyError `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

type BodyError struct {
	Type    Kind           `json:"type"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Write renders err as the JSON error envelope. Unclassified errors are
// reported as internal errors without leaking their text.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	body := Body{RequestID: middleware.GetReqID(r.Context())}
	var e *Error
	if errors.As(err, &e) {
		body.Error = BodyError{Type: e.Kind, Message: e.Message, Details: e.Details}
	} else {
		body.Error = BodyError{Type: Internal, Message: "internal server error"}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.Error.Type.Status())
	json.NewEncoder(w).Encode(body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
