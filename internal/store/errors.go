package store

import "errors"

// Kind discriminates the reason a repository or component call failed, so
// callers can decide retry/surface/escalate behavior without inspecting
// error strings.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindNotFound
	KindIntegrationDisabled
	KindLockTimeout
	KindTransientUpstream
	KindPermanentUpstream
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindIntegrationDisabled:
		return "integration_disabled"
	case KindLockTimeout:
		return "lock_timeout"
	case KindTransientUpstream:
		return "transient_upstream"
	case KindPermanentUpstream:
		return "permanent_upstream"
	case KindInternal:
		return "internal"
	default:
		return "none"
	}
}

// Error wraps an underlying cause with a Kind so callers can type-switch on
// behavior (retry on transient, surface on validation) instead of string
// matching.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func ErrValidation(message string, cause error) *Error {
	return newErr(KindValidation, message, cause)
}

func ErrNotFound(message string, cause error) *Error {
	return newErr(KindNotFound, message, cause)
}

func ErrIntegrationDisabled(message string, cause error) *Error {
	return newErr(KindIntegrationDisabled, message, cause)
}

func ErrLockTimeout(message string, cause error) *Error {
	return newErr(KindLockTimeout, message, cause)
}

func ErrTransientUpstream(message string, cause error) *Error {
	return newErr(KindTransientUpstream, message, cause)
}

func ErrPermanentUpstream(message string, cause error) *Error {
	return newErr(KindPermanentUpstream, message, cause)
}

func ErrInternal(message string, cause error) *Error {
	return newErr(KindInternal, message, cause)
}

// KindOf returns the Kind of err, or KindNone if err is nil or not a *Error.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsRetryable reports whether the error's Kind indicates the caller should
// retry the operation (transient upstream failure or lock contention).
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransientUpstream, KindLockTimeout:
		return true
	default:
		return false
	}
}
