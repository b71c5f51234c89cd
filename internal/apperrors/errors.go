// Package apperrors defines the error taxonomy shared by the service, the
// reconciler and the participant client.
package apperrors

import (
	"errors"
	"net/http"
)

// Kind classifies an error by how the caller is expected to recover from it.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not-found"
	KindAuth         Kind = "auth"
	KindConflict     Kind = "conflict"
	KindPhaseClosed  Kind = "phase-closed"
	KindConnectivity Kind = "connectivity"
	KindRateLimited  Kind = "rate-limited"
	// KindInternal is a server-side fault. Repeating the request won't help.
	KindInternal Kind = "internal"
)

// Machine-readable reasons carried in API responses.
const (
	ReasonInvalidName    = "invalid-name"
	ReasonInvalidCode    = "invalid-code"
	ReasonDuplicateName  = "duplicate-name"
	ReasonAnswerLocked   = "answer-locked"
	ReasonStaleVersion   = "stale-version"
	ReasonInvalidSecret  = "invalid-secret"
	ReasonInvalidToken   = "invalid-token"
	ReasonInvalidRequest = "invalid-request"
)

// MetaParticipantID is the metadata key naming the participant a conflict refers to.
const MetaParticipantID = "participantId"

// Error is the domain error type.
type Error struct {
	Kind     Kind
	Reason   string            // optional finer-grained code
	Message  string            // user-facing text
	Metadata map[string]string // extra context (e.g. conflicting participant id)
	Cause    error
}

// Sentinels for errors.Is checks by kind.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrAuth         = &Error{Kind: KindAuth}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrPhaseClosed  = &Error{Kind: KindPhaseClosed}
	ErrConnectivity = &Error{Kind: KindConnectivity}
	ErrRateLimited  = &Error{Kind: KindRateLimited}
	ErrInternal     = &Error{Kind: KindInternal}
)

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by kind, and by reason when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Code returns the reason when set, otherwise the kind.
func (e *Error) Code() string {
	if e.Reason != "" {
		return e.Reason
	}
	return string(e.Kind)
}

// Validation reports malformed input; reason says which rule failed.
func Validation(reason, message string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Message: message}
}

// NotFound reports a participant or resource that does not exist.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Auth reports a wrong access code, admin secret or token.
func Auth(reason, message string) *Error {
	return &Error{Kind: KindAuth, Reason: reason, Message: message}
}

// Conflict reports a write that clashes with stored state, such as a taken
// name or a locked-in answer.
func Conflict(reason, message string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Message: message}
}

// PhaseClosed reports a write the current event status does not accept.
func PhaseClosed(message string) *Error {
	return &Error{Kind: KindPhaseClosed, Message: message}
}

// RateLimited reports a caller that has used up its attempts for now.
func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

// Connectivity wraps a transport or storage failure that is worth retrying.
func Connectivity(message string, cause error) *Error {
	return &Error{Kind: KindConnectivity, Message: message, Cause: cause}
}

// Internal wraps a server-side failure the caller should not retry.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// WithMetadata returns a copy of e carrying the given key/value.
func (e *Error) WithMetadata(key, value string) *Error {
	cp := *e
	cp.Metadata = make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		cp.Metadata[k] = v
	}
	cp.Metadata[key] = value
	return &cp
}

// As extracts the domain error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not a domain error.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Retryable reports whether err is a transient failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrConnectivity)
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindConflict, KindPhaseClosed:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindConnectivity:
		return http.StatusServiceUnavailable
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTP rebuilds a domain error from an API error response. Only gateway
// and availability statuses come back as connectivity; any other unmapped
// status is internal and not retried.
func FromHTTP(status int, code, message string) *Error {
	var kind Kind
	switch status {
	case http.StatusBadRequest:
		kind = KindValidation
	case http.StatusNotFound:
		kind = KindNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusConflict:
		kind = KindConflict
		if code == string(KindPhaseClosed) {
			kind = KindPhaseClosed
		}
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		kind = KindConnectivity
	default:
		kind = KindInternal
	}
	e := &Error{Kind: kind, Message: message}
	if code != string(kind) {
		e.Reason = code
	}
	return e
}
