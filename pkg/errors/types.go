// SPDX-FileCopyrightText: 2026 PADME Production Controller Contributors
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the structured error taxonomy shared by every
// component of the production controller: Catalog, CeAdapter,
// StorageAdapter and CredentialManager all surface typed errors rather
// than raising process-level failures.
package errors

import (
	"fmt"
	"time"
)

// Kind is the closed set of error kinds the controller dispatches on.
type Kind string

const (
	// Transient indicates the caller should retry with the same budget.
	Transient Kind = "TRANSIENT"

	// Permanent indicates retrying will not help; give up.
	Permanent Kind = "PERMANENT"

	// Timeout indicates the call exceeded its deadline; retried like Transient.
	Timeout Kind = "TIMEOUT"

	// Unavailable indicates the Catalog's backing store is unreachable
	// after its bounded reconnection budget has been exhausted.
	Unavailable Kind = "UNAVAILABLE"

	// Conflict indicates a uniqueness violation (e.g. production name exists).
	Conflict Kind = "CONFLICT"
)

// PadmeError is the structured error type returned by adapter and catalog
// operations throughout the controller.
type PadmeError struct {
	Kind      Kind
	Op        string // operation that failed, e.g. "ceadapter.submit"
	Message   string
	Timestamp time.Time
	Cause     error
}

// Error implements the error interface.
func (e *PadmeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *PadmeError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *PadmeError with the same Kind.
func (e *PadmeError) Is(target error) bool {
	t, ok := target.(*PadmeError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Retryable reports whether the operation that produced this error should
// be retried by the caller with its existing budget.
func (e *PadmeError) Retryable() bool {
	return e.Kind == Transient || e.Kind == Timeout
}

// New creates a PadmeError of the given kind.
func New(kind Kind, op, message string) *PadmeError {
	return &PadmeError{Kind: kind, Op: op, Message: message, Timestamp: time.Now()}
}

// Wrap creates a PadmeError of the given kind around a cause.
func Wrap(kind Kind, op, message string, cause error) *PadmeError {
	return &PadmeError{Kind: kind, Op: op, Message: message, Timestamp: time.Now(), Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *PadmeError,
// defaulting to Permanent for anything unrecognized.
func KindOf(err error) Kind {
	var pe *PadmeError
	if as(err, &pe) {
		return pe.Kind
	}
	return Permanent
}

// as is a tiny indirection over errors.As kept local so this package does
// not need to alias the standard library under a different name at every
// call site.
func as(err error, target **PadmeError) bool {
	for err != nil {
		if pe, ok := err.(*PadmeError); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
