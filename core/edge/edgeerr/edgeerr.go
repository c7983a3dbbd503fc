// Package edgeerr defines the typed failures produced by edge components.
// Components return *Error values; the dispatcher maps them to HTTP status
// codes exactly once.
package edgeerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind tags an Error with its taxonomy variant.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidRequest
	KindNotFound
	KindFileNotFound
	KindNoRouteMatched
	KindMethodNotAllowed
	KindRateLimited
	KindUpstream
)

var kindNames = map[Kind]string{
	KindInternal:         "Internal",
	KindInvalidRequest:   "InvalidRequest",
	KindNotFound:         "NotFound",
	KindFileNotFound:     "FileNotFound",
	KindNoRouteMatched:   "NoRouteMatched",
	KindMethodNotAllowed: "MethodNotAllowed",
	KindRateLimited:      "RateLimited",
	KindUpstream:         "UpstreamError",
}

var kindCodes = map[Kind]string{
	KindInternal:         "INTERNAL_ERROR",
	KindInvalidRequest:   "INVALID_REQUEST",
	KindNotFound:         "PACK_NOT_FOUND",
	KindFileNotFound:     "FILE_NOT_FOUND",
	KindNoRouteMatched:   "ROUTE_NOT_FOUND",
	KindMethodNotAllowed: "METHOD_NOT_ALLOWED",
	KindRateLimited:      "RATE_LIMITED",
	KindUpstream:         "UPSTREAM_ERROR",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Code is the stable machine-readable code returned to clients.
func (k Kind) Code() string {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return kindCodes[KindInternal]
}

// Status maps the kind to its HTTP status.
func (k Kind) Status() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindNotFound, KindFileNotFound, KindNoRouteMatched:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Exposed reports whether the message and context may be shown to clients.
// Upstream and internal failures are answered with a generic body.
func (k Kind) Exposed() bool {
	return k != KindInternal && k != KindUpstream
}

// Error is a tagged failure. Code, Message and Context are client-safe;
// Cause is for server logs only. An empty Code means Kind.Code().
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Context map[string]any
	Cause   error
}

// ClientCode is the machine-readable code shown to clients.
func (e *Error) ClientCode() string {
	if e == nil {
		return KindInternal.Code()
	}
	if e.Code != "" && e.Kind.Exposed() {
		return e.Code
	}
	return e.Kind.Code()
}

// WithCode returns a copy carrying a more specific client code.
func (e *Error) WithCode(code string) *Error {
	out := *e
	out.Code = code
	return &out
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error of the same kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

// With returns a copy carrying an extra client-safe context entry.
func (e *Error) With(key string, value any) *Error {
	out := *e
	out.Context = make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		out.Context[k] = v
	}
	out.Context[key] = value
	return &out
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidRequest   = &Error{Kind: KindInvalidRequest}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrFileNotFound     = &Error{Kind: KindFileNotFound}
	ErrNoRouteMatched   = &Error{Kind: KindNoRouteMatched}
	ErrMethodNotAllowed = &Error{Kind: KindMethodNotAllowed}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrUpstream         = &Error{Kind: KindUpstream}
	ErrInternal         = &Error{Kind: KindInternal}
)

// InvalidRequest reports a malformed client request.
func InvalidRequest(msg string) *Error {
	return &Error{Kind: KindInvalidRequest, Message: msg}
}

// NotFound reports a missing resource, a pack unless a code says otherwise.
func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// FileNotFound reports a pack without the requested file or any fallback.
func FileNotFound(msg string) *Error {
	return &Error{Kind: KindFileNotFound, Message: msg}
}

// NoRouteMatched reports a path that no route accepts.
func NoRouteMatched(path string) *Error {
	return &Error{
		Kind:    KindNoRouteMatched,
		Message: "The requested resource was not found",
		Context: map[string]any{"path": path},
	}
}

// MethodNotAllowed reports a matched route that does not accept method.
func MethodNotAllowed(method string, allowed []string) *Error {
	return &Error{
		Kind:    KindMethodNotAllowed,
		Message: fmt.Sprintf("Method %s is not allowed for this resource", method),
		Context: map[string]any{"allowed": allowed},
	}
}

// RateLimited reports a request rejected by the rate limiter.
func RateLimited() *Error {
	return &Error{Kind: KindRateLimited, Message: "Too many requests, slow down"}
}

// Upstream wraps a failed call to an external collaborator.
func Upstream(msg string, cause error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Cause: cause}
}

// Internal wraps any failure that has no more specific kind.
func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "An unexpected error occurred", Cause: cause}
}

// From returns err as an *Error, wrapping untyped errors as Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e
	}
	return Internal(err)
}

// KindOf returns the kind of err, KindInternal for untyped errors.
func KindOf(err error) Kind {
	return From(err).Kind
}
