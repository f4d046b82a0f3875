// Package apperr carries the HTTP-facing classification of service errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/opd/opd/internal/platform/db"
	"github.com/opd/opd/internal/platform/validate"
)

type Kind int

const (
	KindInvalid Kind = iota + 1
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
)

func (k Kind) Status() int {
	switch k {
	case KindInvalid:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// Error is a failure whose message is safe to show to the caller.
type Error struct {
	Kind    Kind
	Message string
	Err     error
	// RetryAfter is sent as the Retry-After header when set.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

func Unauthorized(msg string) error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func TooManyRequests(msg string, retryAfter time.Duration) error {
	return &Error{Kind: KindTooManyRequests, Message: msg, RetryAfter: retryAfter}
}

// RetryAfter reports the back-off carried by err, if any.
func RetryAfter(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// Wrap attaches cause to a classified error.
func Wrap(kind Kind, msg string, cause error) error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Status resolves err to an HTTP status and a caller-safe message. Anything
// unclassified is a 500 with a generic message.
func Status(err error) (int, string) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind.Status(), ae.Message
	}
	var ve *validate.Error
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Error()
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "resource not found"
	case errors.Is(err, db.ErrDuplicateKey):
		return http.StatusConflict, "resource already exists"
	case errors.Is(err, db.ErrForeignKey):
		return http.StatusConflict, "resource is referenced by other records"
	}
	return http.StatusInternalServerError, "internal server error"
}
