// Package repoerr defines the error kinds raised while resolving and planning repository queries.
package repoerr

import (
	"errors"
	"fmt"
)

// Sentinel errors for the kinds of failures the planner can report.
// Use errors.Is against these to classify an error returned by the repository.
var (
	// ErrInvalidArgument is returned for malformed input, such as a filter key that
	// does not split into exactly two ":"-separated segments, or an input value that
	// is neither a descriptor nor a mapping.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBadMethodCall is returned when a filter names an operator that does not exist.
	ErrBadMethodCall = errors.New("bad method call")

	// ErrUnknownField is returned when a field is not mapped on the entity it is resolved against.
	ErrUnknownField = errors.New("unknown field")

	// ErrUnknownAssociation is returned when a relation path names an association that is not mapped.
	ErrUnknownAssociation = errors.New("unknown association")

	// ErrUnknownAlias is returned when an identifier is qualified with an alias that is not part of the query.
	ErrUnknownAlias = errors.New("unknown alias")
)

// Error carries a kind (one of the sentinels above) and a human readable message.
type Error struct {
	Kind    error
	Message string
	Err     error
}

// Error returns the error string.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument returns an ErrInvalidArgument error.
func InvalidArgument(format string, args ...any) error {
	return newError(ErrInvalidArgument, format, args...)
}

// BadMethodCall returns an ErrBadMethodCall error.
func BadMethodCall(format string, args ...any) error {
	return newError(ErrBadMethodCall, format, args...)
}

// UnknownField returns an ErrUnknownField error for field on entity.
func UnknownField(entity, field string) error {
	return newError(ErrUnknownField, "entity %s has no field %q", entity, field)
}

// UnknownAssociation returns an ErrUnknownAssociation error for association on entity.
func UnknownAssociation(entity, association string) error {
	return newError(ErrUnknownAssociation, "entity %s has no association %q", entity, association)
}

// UnknownAlias returns an ErrUnknownAlias error.
func UnknownAlias(alias string) error {
	return newError(ErrUnknownAlias, "alias %q is not defined in the query", alias)
}

// Wrap attaches a kind to an existing error.
func Wrap(kind error, err error, format string, args ...any) error {
	e := newError(kind, format, args...)
	e.Err = err
	return e
}

// IsInvalidArgument reports whether err is an ErrInvalidArgument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsBadMethodCall reports whether err is an ErrBadMethodCall.
func IsBadMethodCall(err error) bool {
	return errors.Is(err, ErrBadMethodCall)
}
