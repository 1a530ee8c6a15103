// Package errors maps domain errors onto HTTP error responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/3leaps/gocrack/pkg/coordinator"
	"github.com/3leaps/gocrack/pkg/directory"
	"github.com/3leaps/gocrack/pkg/partition"
	"github.com/3leaps/gocrack/pkg/taskstore"
)

// Error codes used in the HTTP error envelope.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeNotAssigned        = "NOT_ASSIGNED"
	CodeInvalidRange       = "INVALID_RANGE"
	CodeInvalidHash        = "INVALID_HASH"
	CodeInvalidPayload     = "INVALID_PAYLOAD"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// HTTPError is the body of an error response.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON envelope written for every error.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// AppError carries an HTTP status and error code alongside the cause.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails attaches diagnostic details to the error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// NewNotFound creates a 404 error.
func NewNotFound(message string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: message}
}

// NewInvalidPayload creates a 400 error for a request body that cannot be used.
func NewInvalidPayload(message string, err error) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeInvalidPayload, Message: message, Err: err}
}

// NewMethodNotAllowed creates a 405 error.
func NewMethodNotAllowed(method string) *AppError {
	return &AppError{Status: http.StatusMethodNotAllowed, Code: CodeMethodNotAllowed, Message: fmt.Sprintf("method %s not allowed", method)}
}

// NewServiceUnavailable creates a 503 error.
func NewServiceUnavailable(message string) *AppError {
	return &AppError{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: message}
}

// WrapInternal wraps an unexpected error as a 500.
func WrapInternal(err error, message string) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: message, Err: err}
}

// FromError classifies err into an AppError.
//
// Domain sentinels are mapped to their HTTP status; anything unknown is an
// internal error.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var tooLarge *http.MaxBytesError
	switch {
	case stderrors.As(err, &tooLarge):
		return &AppError{Status: http.StatusRequestEntityTooLarge, Code: CodeInvalidPayload, Message: "request body too large", Err: err}
	case stderrors.Is(err, taskstore.ErrNotFound), stderrors.Is(err, directory.ErrNotFound):
		return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: err.Error(), Err: err}
	case stderrors.Is(err, taskstore.ErrNotAssigned):
		return &AppError{Status: http.StatusConflict, Code: CodeNotAssigned, Message: err.Error(), Err: err}
	case stderrors.Is(err, partition.ErrInvalidRange):
		return &AppError{Status: http.StatusBadRequest, Code: CodeInvalidRange, Message: err.Error(), Err: err}
	case stderrors.Is(err, coordinator.ErrInvalidHash):
		return &AppError{Status: http.StatusBadRequest, Code: CodeInvalidHash, Message: err.Error(), Err: err}
	case stderrors.Is(err, coordinator.ErrEmptyPayload), stderrors.Is(err, coordinator.ErrInvalidMinion):
		return &AppError{Status: http.StatusBadRequest, Code: CodeInvalidPayload, Message: err.Error(), Err: err}
	default:
		return WrapInternal(err, "internal server error")
	}
}

// RespondWithError writes err as a JSON error envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := FromError(err)

	var requestID string
	if r != nil {
		requestID = RequestIDFromContext(r.Context())
	}
	WriteEnvelope(w, appErr.Status, HTTPError{
		Code:      appErr.Code,
		Message:   appErr.Message,
		RequestID: requestID,
		Details:   appErr.Details,
	})
}

// WriteEnvelope writes an error envelope with the given status.
func WriteEnvelope(w http.ResponseWriter, status int, body HTTPError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: body})
}

type requestIDKey struct{}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
