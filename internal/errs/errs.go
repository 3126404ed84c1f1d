// Package errs implements the error taxonomy of the vault: a small set of
// plain struct error types that callers distinguish with a type assertion
// (AsConstraint, AsNotFound, AsInvalidState) rather than errors.As, since none
// of them wrap an inner error.
package errs

import "fmt"

// TypeError reports that an argument's shape or type was invalid.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string { return e.Msg }

func NewTypeError(format string, args ...any) error {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}

// ConstraintError reports a uniqueness violation, either on the record's _id
// or on a blinded attribute marked unique. Existing carries the record that
// already occupies the constrained slot, when known.
type ConstraintError struct {
	Msg      string
	Existing map[string]any
}

func (e *ConstraintError) Error() string { return e.Msg }

func NewConstraintError(msg string, existing map[string]any) error {
	return &ConstraintError{Msg: msg, Existing: existing}
}

// DuplicateError is the transport-level translation of a ConstraintError.
type DuplicateError struct {
	Msg string
}

func (e *DuplicateError) Error() string { return e.Msg }

func NewDuplicateError(msg string) error {
	return &DuplicateError{Msg: msg}
}

// InvalidStateError reports that a sequence-gated update could not proceed
// because the caller's sequence did not match, or the target did not exist.
type InvalidStateError struct {
	Msg      string
	Expected int64
	Actual   int64
	HasSeqs  bool
}

func (e *InvalidStateError) Error() string { return e.Msg }

func NewInvalidStateError(msg string) error {
	return &InvalidStateError{Msg: msg}
}

func NewInvalidStateErrorWithSeq(msg string, expected, actual int64) error {
	return &InvalidStateError{Msg: msg, Expected: expected, Actual: actual, HasSeqs: true}
}

// NotFoundError reports that a requested record does not exist.
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

func NewNotFoundError(msg string) error {
	return &NotFoundError{Msg: msg}
}

// AsConstraint reports whether err is a *ConstraintError and returns it.
func AsConstraint(err error) (*ConstraintError, bool) {
	ce, ok := err.(*ConstraintError)
	return ce, ok
}

// AsNotFound reports whether err is a *NotFoundError.
func AsNotFound(err error) (*NotFoundError, bool) {
	nf, ok := err.(*NotFoundError)
	return nf, ok
}

// AsInvalidState reports whether err is an *InvalidStateError.
func AsInvalidState(err error) (*InvalidStateError, bool) {
	is, ok := err.(*InvalidStateError)
	return is, ok
}
