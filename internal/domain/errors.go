package domain

import (
	"errors"
	"fmt"
	"log/slog"
)

// Kind classifies errors surfaced to callers.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindAuthorization     Kind = "authorization"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindTurnLimitExceeded Kind = "turn_limit_exceeded"
	KindUpstream          Kind = "upstream"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
)

// Error is the error type returned by the application layer. Error()
// is safe to show to users; the wrapped Err only reaches the logs.
type Error struct {
	Kind    Kind
	Message string
	// Status and Body are set for upstream errors that carried an HTTP
	// response.
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUpstream:
		if e.Status != 0 {
			body := e.Body
			if body == "" {
				body = "unknown error"
			}
			return fmt.Sprintf("upstream returned error (%d): %s", e.Status, body)
		}
		return "upstream request failed: " + e.Message
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// LogValue adds the wrapped cause, which Error() leaves out.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("kind", string(e.Kind)),
		slog.String("message", e.Error()),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("cause", e.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func NewConfigurationError(msg string) *Error {
	return &Error{Kind: KindConfiguration, Message: msg}
}

func NewAuthorizationError(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

func NewQuotaExceededError(limit int) *Error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: fmt.Sprintf("daily usage limit reached (%d per day)", limit),
	}
}

func NewTurnLimitExceededError(max int) *Error {
	return &Error{
		Kind:    KindTurnLimitExceeded,
		Message: fmt.Sprintf("a session supports at most %d turns, start a new session to continue", max),
	}
}

func NewUpstreamStatusError(status int, body string) *Error {
	return &Error{Kind: KindUpstream, Status: status, Body: body}
}

// NewUpstreamTransportError hides err from users behind a fixed message.
func NewUpstreamTransportError(err error) *Error {
	return &Error{Kind: KindUpstream, Message: "could not reach the model provider", Err: err}
}

// NewUpstreamError reports a failure the provider described itself, or a
// response that could not be used.
func NewUpstreamError(msg string) *Error {
	return &Error{Kind: KindUpstream, Message: msg}
}

func NewInvalidInputError(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func NewNotFoundError(what string, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", what, id)}
}

// ParseWarning describes a stream frame that could not be decoded. It is
// logged and skipped, never returned to callers.
type ParseWarning struct {
	Frame string
	Err   error
}

func (w *ParseWarning) Error() string {
	return fmt.Sprintf("skipping malformed frame %q: %v", w.Frame, w.Err)
}

func (w *ParseWarning) Unwrap() error {
	return w.Err
}
