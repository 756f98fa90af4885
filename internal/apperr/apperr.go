// Package apperr classifies failures of a monitoring cycle.
//
// Three kinds exist:
//   - Validation: bad key fields, malformed records, bad configuration.
//     Rejected before any diffing; aborts that source's cycle only.
//   - Storage: I/O failures while saving, reading or pruning snapshots.
//     Fatal for the current cycle of one source, never for the process.
//   - Notification: a single channel failed to deliver. Logged by the
//     dispatcher, never propagated.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error.
type Kind string

const (
	// KindValidation marks input rejected before detection.
	KindValidation Kind = "VALIDATION"

	// KindStorage marks snapshot store failures.
	KindStorage Kind = "STORAGE"

	// KindNotification marks a failed notification channel.
	KindNotification Kind = "NOTIFICATION"
)

// Error is a classified failure with the operation and source it belongs to.
type Error struct {
	Kind Kind

	// Op names the failed operation, e.g. "store.save".
	Op string

	// Source is the monitored source name, when known.
	Source string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Source != "" {
		msg += fmt.Sprintf(" (source=%s)", e.Source)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a validation error.
func Validation(op, source, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Source: source, Err: fmt.Errorf(format, args...)}
}

// Storage wraps err as a storage error. Returns nil if err is nil.
func Storage(op, source string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindStorage, Op: op, Source: source, Err: err}
}

// Notification wraps err as a notification error for a channel.
// Returns nil if err is nil.
func Notification(channel, source string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindNotification, Op: "notify." + channel, Source: source, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return KindOf(err) == KindValidation }

// IsStorage reports whether err is a storage error.
func IsStorage(err error) bool { return KindOf(err) == KindStorage }

// IsNotification reports whether err is a notification error.
func IsNotification(err error) bool { return KindOf(err) == KindNotification }
