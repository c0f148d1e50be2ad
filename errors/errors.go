// Package errors defines the canonical error taxonomy shared by the
// request pipeline and the event stream, and the HTTP/gRPC status
// mapping that produces it.
package errors

import (
	"errors"
	"fmt"
)

// Kind is a canonical, public error category. Callers should switch on
// Kind rather than string-matching error messages.
type Kind string

// Public kinds, surfaced across package boundaries.
const (
	KindServerUnavailable       Kind = "server_unavailable"
	KindServerError             Kind = "server_error"
	KindBadRequest              Kind = "bad_request"
	KindUnauthorized            Kind = "unauthorized"
	KindInsufficientPermissions Kind = "insufficient_permissions"
	KindNotFound                Kind = "not_found"
	KindResourceAlreadyExists   Kind = "resource_already_exists"
	KindUnknown                 Kind = "unknown_error"
	KindLoggedOut               Kind = "logged_out"
)

// internal kinds, collapsed to a public Kind before ever leaving this
// module's boundary (see collapse below). tooManyRequests never
// surfaces at all: the pipeline retries it internally.
const (
	kindForbidden          Kind = "forbidden"
	kindConflict           Kind = "conflict"
	kindTooManyRequests    Kind = "too_many_requests"
	kindInternalServer     Kind = "internal_server_error"
	kindServiceUnavailable Kind = "service_unavailable"
	kindGatewayTimeout     Kind = "gateway_timeout"
)

// APIError is the concrete error type returned by the pipeline and the
// stream. It carries the mapped Kind plus whatever context the server
// supplied.
type APIError struct {
	Kind       Kind
	Message    string
	HelpURL    string
	RetryAfter int // seconds; only meaningful for the internal too-many-requests kind
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Is allows errors.Is(err, &APIError{Kind: KindNotFound}) style checks
// that compare only on Kind.
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an APIError of the given kind.
func New(kind Kind, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}

// fromHTTPStatus maps an HTTP status code to an internal Kind;
// retryAfterSeconds is not used.
func fromHTTPStatus(status int, retryAfterSeconds int) Kind {
	switch status {
	case 400:
		return KindBadRequest
	case 401:
		return KindUnauthorized
	case 403:
		return kindForbidden
	case 404:
		return KindNotFound
	case 409:
		return kindConflict
	case 429:
		return kindTooManyRequests
	case 500:
		return kindInternalServer
	case 503:
		return kindServiceUnavailable
	case 504:
		return kindGatewayTimeout
	default:
		return KindUnknown
	}
}

// collapse maps an internal Kind to the public Kind a caller should
// see. tooManyRequests has no public form: callers of FromHTTPStatus
// that receive a 429 are expected to retry, never to surface it.
func collapse(k Kind) Kind {
	switch k {
	case kindForbidden:
		return KindInsufficientPermissions
	case kindConflict:
		return KindResourceAlreadyExists
	case kindInternalServer, kindServiceUnavailable, kindGatewayTimeout:
		return KindServerError
	default:
		return k
	}
}

// FromHTTPStatus maps an HTTP status code to a public-facing APIError.
// retryAfterSeconds is only meaningful when status is 429 and is
// otherwise ignored.
func FromHTTPStatus(status int, message, helpURL string, retryAfterSeconds int) *APIError {
	internal := fromHTTPStatus(status, retryAfterSeconds)
	return &APIError{
		Kind:       collapse(internal),
		Message:    message,
		HelpURL:    helpURL,
		RetryAfter: retryAfterSeconds,
	}
}

// IsTooManyRequests reports whether status is the HTTP rate-limit
// status; the pipeline uses this directly rather than going through
// the public Kind, since 429 is handled internally and never
// collapsed into an APIError returned to a caller.
func IsTooManyRequests(status int) bool {
	return status == 429
}

// streamCodeTable maps the dual HTTP/gRPC codes the event stream's
// error envelope may carry to an internal Kind. Codes 1, 4, and 504
// are session-timeout signals, not errors — FromStreamCode reports
// them as a nil error with ok=false so the stream can treat them as
// "restart silently."
var streamCodeTable = map[int]Kind{
	3: KindBadRequest, 9: KindBadRequest, 11: KindBadRequest, 400: KindBadRequest,
	16: KindUnauthorized, 401: KindUnauthorized,
	7: kindForbidden, 403: kindForbidden,
	5: KindNotFound, 404: KindNotFound,
	2: kindInternalServer, 13: kindInternalServer, 15: kindInternalServer, 500: kindInternalServer,
	14: kindServiceUnavailable, 503: kindServiceUnavailable,
}

var streamSessionTimeoutCodes = map[int]bool{
	1: true, 4: true, 504: true,
}

// FromStreamCode maps a stream error envelope's numeric code to a
// public APIError. ok is false when the code signals a benign session
// timeout that should trigger a silent reconnect rather than an
// onError callback.
func FromStreamCode(code int, message, helpURL string) (apiErr *APIError, ok bool) {
	if streamSessionTimeoutCodes[code] {
		return nil, false
	}
	internal, known := streamCodeTable[code]
	if !known {
		internal = KindUnknown
	}
	return &APIError{Kind: collapse(internal), Message: message, HelpURL: helpURL}, true
}

// LoggedOut is the sentinel APIError an Authenticator returns when
// auto-refresh has been disabled (after logout, or before first login).
var LoggedOut = &APIError{Kind: KindLoggedOut, Message: "authenticator is logged out"}

// ServerUnavailable is returned when a transport-level failure (not an
// HTTP status) prevents a unary request from completing.
func ServerUnavailable(cause error) *APIError {
	msg := "server unavailable"
	if cause != nil {
		msg = fmt.Sprintf("server unavailable: %v", cause)
	}
	return &APIError{Kind: KindServerUnavailable, Message: msg}
}

// Unknown wraps an arbitrary cause (decode failure, unusable response)
// into the catch-all public kind.
func Unknown(cause error) *APIError {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &APIError{Kind: KindUnknown, Message: msg}
}
