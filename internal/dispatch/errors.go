package dispatch

import "net/http"

// Kind classifies a request failure. Every kind maps to a wire code shared
// by both channels and to an HTTP status for the REST adapter.
type Kind int

const (
	// Request errors: the session continues.
	KindEmptyText Kind = iota
	KindTextTooLong
	KindInvalidRequest
	KindUnknownModel
	KindModelNotReady

	// Resource errors: reported without invoking the engine.
	KindConnectionLimit
	KindTimeout

	// Engine failure: logged internally, surfaced as INTERNAL_ERROR only.
	KindInference

	// Server defects.
	KindInternal
)

// Code returns the wire error code. Engine failures deliberately collapse to
// INTERNAL_ERROR so no engine-internal detail reaches the caller.
func (k Kind) Code() string {
	switch k {
	case KindEmptyText:
		return "EMPTY_TEXT"
	case KindTextTooLong:
		return "TEXT_TOO_LONG"
	case KindInvalidRequest:
		return "INVALID_REQUEST"
	case KindUnknownModel:
		return "UNKNOWN_MODEL"
	case KindModelNotReady:
		return "MODEL_NOT_READY"
	case KindConnectionLimit:
		return "CONNECTION_LIMIT_EXCEEDED"
	case KindTimeout:
		return "TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus returns the status the REST adapter responds with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindEmptyText, KindTextTooLong, KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnknownModel:
		return http.StatusNotFound
	case KindModelNotReady, KindConnectionLimit:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is the structured error returned through the same path a success
// response takes, keeping both channels symmetric.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func newErrorf(kind Kind, message, detail string) *Error {
	return &Error{Kind: kind, Message: message, Detail: detail}
}
