package prompts

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers records that are absent and records the requester
	// may not see. Callers cannot tell the two apart.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a name is already taken within an
	// owner's scope.
	ErrConflict = errors.New("conflict")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")

	// ErrVersionConflict is returned when another writer claimed the same
	// version number. The operation may be retried.
	ErrVersionConflict = fmt.Errorf("%w: version number already taken", ErrConflict)
)

func notFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
