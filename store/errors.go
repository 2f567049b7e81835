package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no task exists at the given key.
	ErrNotFound = errors.New("tasktable: task not found")

	// ErrAlreadyExists is returned when creating a task whose row key is taken.
	ErrAlreadyExists = errors.New("tasktable: task already exists")

	// ErrConcurrentModification is returned when optimistic lock fails (version mismatch).
	ErrConcurrentModification = errors.New("tasktable: task was modified concurrently")

	// ErrMissingCredential is returned when the storage connection string is not set.
	ErrMissingCredential = errors.New("tasktable: storage connection string is not set")

	// ErrWeakVersion is returned by ParseVersion for weak entity tags.
	ErrWeakVersion = errors.New("tasktable: weak entity tag cannot match")

	// ErrInvalidConnection wraps connection string parse failures.
	ErrInvalidConnection = errors.New("tasktable: invalid storage connection string")
)

// Kind classifies a store failure.
type Kind int

const (
	// KindInfrastructure covers connectivity, permission, configuration
	// and any other unclassified failure.
	KindInfrastructure Kind = iota

	// KindNotFound means no row exists at the requested key.
	KindNotFound

	// KindConflict means the write lost against existing state.
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "infrastructure"
	}
}

// KindOf classifies err. It must be called with a non-nil error.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrConcurrentModification):
		return KindConflict
	default:
		return KindInfrastructure
	}
}

func invalidConnection(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConnection, fmt.Sprintf(format, args...))
}
