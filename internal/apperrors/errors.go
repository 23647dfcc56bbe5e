// Package apperrors defines the client-facing error taxonomy. Every error that
// reaches a caller carries a stable Kind and a message that is safe to show.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind is a stable, machine-checkable error class.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindBadRequest        Kind = "bad_request"
	KindUpstreamFetch     Kind = "upstream_fetch_failed"
	KindInference         Kind = "inference_failed"
	KindMalformedResponse Kind = "malformed_response"
	KindStorageFault      Kind = "storage_fault"
	KindInternal          Kind = "internal_error"
)

// Error pairs a Kind and a public message with the internal cause.
// Err is never rendered to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *Error by kind so sentinels below work with errors.Is.
// A malformed response is also an inference failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindInference && e.Kind == KindMalformedResponse
}

// Sentinels for errors.Is checks.
var (
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrBadRequest        = &Error{Kind: KindBadRequest}
	ErrUpstreamFetch     = &Error{Kind: KindUpstreamFetch}
	ErrInference         = &Error{Kind: KindInference}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
	ErrStorageFault      = &Error{Kind: KindStorageFault}
)

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthorized(err error) *Error {
	return New(KindUnauthorized, "invalid or missing credentials", err)
}

func UpstreamFetch(err error) *Error {
	return New(KindUpstreamFetch, "failed to download image", err)
}

func Inference(err error) *Error {
	return New(KindInference, "inference provider request failed", err)
}

func MalformedResponse(err error) *Error {
	return New(KindMalformedResponse, "inference provider returned a malformed response", err)
}

func StorageFault(err error) *Error {
	return New(KindStorageFault, "stored history record is corrupted", err)
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// PublicMessage returns the caller-safe message for err.
func PublicMessage(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return "internal server error"
}

// HTTPStatus maps err to the status code returned to callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindBadRequest, KindUpstreamFetch:
		return http.StatusBadRequest
	case KindInference, KindMalformedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
