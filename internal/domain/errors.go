package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint rejected the write.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidArgument indicates the caller supplied input that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict indicates a concurrent writer won a race the caller cannot recover from.
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized indicates a presented credential could not be verified.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoActor is returned when a request carries neither an authenticated
	// identity nor a session token.
	ErrNoActor = fmt.Errorf("%w: session token or authenticated customer required", ErrInvalidArgument)
)

// InvalidArgument wraps ErrInvalidArgument with a human readable reason.
func InvalidArgument(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the missing resource and its id.
func NotFound(resource, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, resource, id)
}
