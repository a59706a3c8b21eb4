package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline errors so callers can map them to retry policy
// and HTTP status codes without string matching.
type Kind int

const (
	KindValidation Kind = iota
	KindConfiguration
	KindConflict
	KindNotFound
	KindRemoteService
	KindReconciliation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConfiguration:
		return "configuration"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindRemoteService:
		return "remote_service"
	case KindReconciliation:
		return "reconciliation"
	default:
		return "unknown"
	}
}

// Error is a classified pipeline error. Use the constructors below; match
// with errors.As plus Error.Kind, or the IsX helpers.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func RemoteService(msg string, err error) *Error {
	return &Error{Kind: KindRemoteService, Msg: msg, Err: err}
}

func Reconciliation(msg string, err error) *Error {
	return &Error{Kind: KindReconciliation, Msg: msg, Err: err}
}

func is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func IsValidation(err error) bool { return is(err, KindValidation) }

func IsConfiguration(err error) bool { return is(err, KindConfiguration) }

func IsConflict(err error) bool { return is(err, KindConflict) }

func IsNotFound(err error) bool { return is(err, KindNotFound) }

func IsRemoteService(err error) bool { return is(err, KindRemoteService) }

func IsReconciliation(err error) bool { return is(err, KindReconciliation) }
