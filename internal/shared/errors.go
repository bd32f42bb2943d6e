package shared

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared by every layer of the study pipeline.
var (
	// ErrNotFound indicates that a study, sample or post does not exist
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates that a plan, config value or request is malformed
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates a missing or wrong webhook secret or chat id
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict indicates that the request conflicts with current state,
	// e.g. a study is already running
	ErrConflict = errors.New("conflict")

	// ErrRateLimited indicates that an upstream API kept answering 429
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrDependencyFailure indicates that Reddit, the database or Telegram failed
	ErrDependencyFailure = errors.New("dependency failure")

	// ErrInternal indicates a bug or an unexpected state
	ErrInternal = errors.New("internal error")
)

// Kind is a coarse error category used to pick log levels and HTTP status codes.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindUnauthorized
	KindConflict
	KindRateLimited
	KindTimeout
	KindDependencyFailure
	KindInternal
	KindCanceled
)

var kindNames = map[Kind]string{
	KindNotFound:          "NotFound",
	KindValidation:        "Validation",
	KindUnauthorized:      "Unauthorized",
	KindConflict:          "Conflict",
	KindRateLimited:       "RateLimited",
	KindTimeout:           "Timeout",
	KindDependencyFailure: "DependencyFailure",
	KindInternal:          "Internal",
	KindCanceled:          "Canceled",
}

// String returns the string representation of the Kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// classification order: the first match wins for joined or doubly marked errors
var kindOrder = []struct {
	kind Kind
	err  error
}{
	{KindNotFound, ErrNotFound},
	{KindValidation, ErrValidation},
	{KindUnauthorized, ErrUnauthorized},
	{KindConflict, ErrConflict},
	{KindRateLimited, ErrRateLimited},
	{KindDependencyFailure, ErrDependencyFailure},
	{KindInternal, ErrInternal},
}

// KindOf classifies err. Cancellation wins over timeouts, and both win over
// sentinel matches. Unrecognized errors yield KindUnknown.
//
//	switch shared.KindOf(err) {
//	case shared.KindNotFound:
//	    return http.StatusNotFound
//	case shared.KindValidation:
//	    return http.StatusBadRequest
//	default:
//	    return http.StatusInternalServerError
//	}
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case IsCanceled(err):
		return KindCanceled
	case IsTimeout(err):
		return KindTimeout
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// SentinelOf returns the sentinel error for kind, or nil for KindUnknown and KindCanceled.
func SentinelOf(kind Kind) error {
	if kind == KindTimeout {
		return ErrTimeout
	}
	for _, k := range kindOrder {
		if k.kind == kind {
			return k.err
		}
	}
	return nil
}

// MarkKind wraps err with the sentinel for kind so that KindOf reports kind
// while errors.Is still matches err. A nil err yields the bare sentinel.
// Marking with the kind the error already has is a no-op.
//
//	if errors.Is(err, sql.ErrNoRows) {
//	    return shared.MarkKind(err, shared.KindNotFound)
//	}
func MarkKind(err error, kind Kind) error {
	sentinel := SentinelOf(kind)
	if err == nil {
		return sentinel
	}
	if sentinel == nil || KindOf(err) == kind {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Wrap adds context to err, formatting as "context: err". Nil stays nil.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	if context == "" {
		return err
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Wrapf is Wrap with a formatted context.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Validationf builds a validation error with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// IsCanceled reports whether err stems from a cancelled context.
func IsCanceled(err error) bool {
	return err != nil && errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err is a deadline, an ErrTimeout or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsRateLimited reports whether err is a rate limit error.
func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }

// IsDependencyFailure reports whether err is an upstream failure.
func IsDependencyFailure(err error) bool { return errors.Is(err, ErrDependencyFailure) }
