package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies ledger errors into the stable categories the API exposes.
type Kind int

const (
	Validation Kind = iota
	QuotaExceeded
	NotFound
	Conflict
	Permission
	Internal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "VALIDATION_ERROR"
	case QuotaExceeded:
		return "QUOTA_EXCEEDED"
	case NotFound:
		return "NOT_FOUND"
	case Conflict:
		return "CONFLICT"
	case Permission:
		return "PERMISSION_DENIED"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus maps an error kind to the status code handlers respond with.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case QuotaExceeded:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case Permission:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes two apperr.Errors match when their kinds match, so callers can
// test against a bare sentinel like apperr.New(apperr.Conflict, "").
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or Internal for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
