package core

import (
	"github.com/pkg/errors"
)

// ErrorNotFound reports a well-formed absence: the server answered with
// an empty or sentinel body. Distinct from a transport failure.
type ErrorNotFound struct {
}

func (e ErrorNotFound) Error() string {
	return "Not Found"
}

func NewErrorNotFound() ErrorNotFound {
	return ErrorNotFound{}
}

// IsNotFound reports whether err (or its cause chain) is an absence.
func IsNotFound(err error) bool {
	var target ErrorNotFound
	return errors.As(err, &target)
}

// ErrorHostUnresolved reports that host resolution produced an empty
// host. The network call must not be attempted.
type ErrorHostUnresolved struct {
}

func (e ErrorHostUnresolved) Error() string {
	return "Host Unresolved"
}

func NewErrorHostUnresolved() ErrorHostUnresolved {
	return ErrorHostUnresolved{}
}

// ErrorSessionRequired reports an operation attempted before the client
// had a home host or signing key.
type ErrorSessionRequired struct {
}

func (e ErrorSessionRequired) Error() string {
	return "Session Required"
}

func NewErrorSessionRequired() ErrorSessionRequired {
	return ErrorSessionRequired{}
}
