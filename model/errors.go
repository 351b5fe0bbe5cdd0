package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jacentio/vellum/schema"
)

var (
	// ErrPreconditionMissing is a client-side usage error: a
	// concurrency-guarded operation was attempted without a held
	// concurrency token and without force. It is never sent to the store.
	ErrPreconditionMissing = errors.New("vellum: operation requires a concurrency token (read the entity first, or force)")

	// ErrEntityDeleted is returned when operating on an entity that has
	// already been deleted. Deletion is terminal.
	ErrEntityDeleted = errors.New("vellum: entity is deleted")

	// ErrNoClient is returned when a collection is bound without a store
	// client and none is registered for its container.
	ErrNoClient = errors.New("vellum: no store client for collection")
)

// ValidationError reports that whole-object validation of the serialized
// document failed. It carries every violated constraint and is raised
// before any network call.
type ValidationError struct {
	// Container identifies the collection being validated against.
	Container string

	// Violations are the violated constraints.
	Violations []schema.Violation
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.String()
	}
	return fmt.Sprintf("vellum: validation failed for %q: %s", e.Container, strings.Join(msgs, "; "))
}

// RetriesExhaustedError reports that the atomic retry budget was consumed
// without a successful write. It wraps the last conflict, so
// errors.Is(err, store.ErrConflict) still holds.
type RetriesExhaustedError struct {
	// Attempts is the number of write attempts made.
	Attempts int

	// Err is the last conflict error.
	Err error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("vellum: conflict retry budget exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }
