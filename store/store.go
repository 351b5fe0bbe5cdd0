// Package store defines the boundary between vellum and a partitioned
// document store that supports atomic single-document conditional writes.
package store

import (
	"context"
	"time"
)

// Document is the flat wire representation of a stored item. Its keys are
// the schema's field names after codec serialization, plus the metadata
// fields below.
type Document map[string]any

// Store-assigned metadata fields present on every wire document. Both
// FieldETag and FieldTimestamp are ignored on write and populated by the
// store on response.
const (
	FieldID        = "id"
	FieldETag      = "_etag"
	FieldTimestamp = "_ts"
)

// Metadata carries the store-assigned state of a document version.
type Metadata struct {
	// ETag is the opaque concurrency token for the current version.
	ETag string

	// LastModified is the store-assigned modification time. On the wire it
	// travels as seconds since epoch in FieldTimestamp.
	LastModified time.Time
}

// RequestOptions is forwarded verbatim to the store-level request.
// Cancellation and timeout semantics come from the context, not from here.
type RequestOptions struct {
	// ConsistentRead requests a strongly consistent read where the driver
	// distinguishes consistency levels.
	ConsistentRead bool
}

// Client is the conditional-write primitive vellum builds on. An empty
// expected etag makes ConditionalReplace and ConditionalDelete
// unconditional (the document must still exist).
type Client interface {
	// ReadByID fetches a document by partition key and id.
	// Returns ErrNotFound if no document exists.
	ReadByID(ctx context.Context, container string, partitionKey any, id string, opts RequestOptions) (Document, Metadata, error)

	// Insert stores a new document. Returns ErrConflict if a document with
	// the same id already exists.
	Insert(ctx context.Context, container string, doc Document, opts RequestOptions) (Document, Metadata, error)

	// ConditionalReplace replaces an existing document. With a non-empty
	// expectedETag the write succeeds only if the stored etag matches;
	// a mismatch returns ErrConflict, a missing document ErrNotFound.
	ConditionalReplace(ctx context.Context, container string, partitionKey any, id string, doc Document, expectedETag string, opts RequestOptions) (Document, Metadata, error)

	// ConditionalDelete removes a document under the same etag discipline
	// as ConditionalReplace.
	ConditionalDelete(ctx context.Context, container string, partitionKey any, id string, expectedETag string, opts RequestOptions) error

	// Upsert stores a document unconditionally, replacing any existing one.
	Upsert(ctx context.Context, container string, doc Document, opts RequestOptions) (Document, Metadata, error)
}

// Query is a parameterized statement scoped to one partition.
type Query struct {
	// Statement is the driver-native query text with positional parameters.
	Statement string

	// Parameters are bound positionally.
	Parameters []any

	// PartitionKey scopes the query to a single partition. Drivers whose
	// query language carries the partition predicate in the statement may
	// ignore it.
	PartitionKey any

	// ContinuationToken resumes a previously interrupted cursor.
	ContinuationToken string
}

// Cursor is a forward-only, resumable iterator over raw documents.
type Cursor interface {
	// Next advances to the next document, fetching further pages as
	// needed. It returns false when the cursor is exhausted or failed.
	Next(ctx context.Context) bool

	// Document returns the current raw document.
	Document() Document

	// Metadata returns the current document's store metadata.
	Metadata() Metadata

	// Token returns a continuation token for resuming after the current
	// position.
	Token() string

	// Err reports the error that stopped iteration, if any.
	Err() error

	// Close releases cursor resources.
	Close() error
}

// Querier is implemented by drivers that support parameterized queries.
type Querier interface {
	Query(ctx context.Context, container string, q Query, opts RequestOptions) (Cursor, error)
}
