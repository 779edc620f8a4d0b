package tapedb

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the taxonomy from spec §7. Match with [errors.Is].
var (
	// ErrConfigurationInconsistent indicates the codec pair was supplied
	// incompletely (one hook but not the other) or the configured filename
	// is reserved (ends in "~"). Fatal at construction.
	ErrConfigurationInconsistent = errors.New("tapedb: configuration inconsistent")

	// ErrCodecNotInvertible indicates decode(encode(x)) != x for at least
	// one string in the verification sample. Fatal at construction.
	ErrCodecNotInvertible = errors.New("tapedb: codec not invertible")

	// ErrCorruptionThresholdExceeded indicates a fold aborted because the
	// ratio of corrupt to total records exceeded the configured threshold.
	// The caller retains the empty state; the log is untouched.
	ErrCorruptionThresholdExceeded = errors.New("tapedb: corruption threshold exceeded")

	// ErrOpenFailure indicates the log could not be opened for append.
	// Load fails and no descriptor is installed.
	ErrOpenFailure = errors.New("tapedb: open failure")

	// ErrClosed indicates an operation was attempted on a closed
	// Controller.
	ErrClosed = errors.New("tapedb: closed")

	// ErrReservedFilename indicates a configured filename ends in "~",
	// which would collide with the backup-file convention (spec §3). It is
	// always returned together with ErrConfigurationInconsistent.
	ErrReservedFilename = errors.New("tapedb: filename must not end in '~'")
)

// Error is the uniform error type returned by tapedb's public API. It
// carries the record ID (when known) and the operation that failed,
// following the context-carrying error pattern from the teacher codebase.
type Error struct {
	// ID is the document ID associated with the failure, if known.
	ID string

	// Op names the operation that failed (e.g. "load", "append", "compact").
	Op string

	// Err is the underlying cause, matched via [errors.Is]/[errors.As].
	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	msg := e.Op
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}

		msg += e.Err.Error()
	}

	if e.ID != "" {
		msg += fmt.Sprintf(" (id=%s)", e.ID)
	}

	return msg
}

// Unwrap supports errors.Is/errors.As against the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// wrap attaches operation and optional id context to err. Returns nil if
// err is nil.
func wrap(err error, op string, id string) error {
	if err == nil {
		return nil
	}

	var existing *Error

	if errors.As(err, &existing) {
		return &Error{Op: op, ID: existing.idOr(id), Err: existing.Err}
	}

	return &Error{Op: op, ID: id, Err: err}
}

func (e *Error) idOr(fallback string) string {
	if e.ID != "" {
		return e.ID
	}

	return fallback
}
