package store

import "errors"

var (
	// ErrNotFound is returned when the requested id has no document in the
	// partition.
	ErrNotFound = errors.New("vellum: document not found")

	// ErrConflict is returned when an insert collides with an existing id,
	// or when a conditional write's expected etag no longer matches the
	// stored document.
	ErrConflict = errors.New("vellum: document version conflict")

	// ErrUnsupported is returned by drivers for boundary operations the
	// underlying store cannot express.
	ErrUnsupported = errors.New("vellum: operation not supported by driver")
)
