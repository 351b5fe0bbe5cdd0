package model

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jacentio/vellum/schema"
	"github.com/jacentio/vellum/store"
)

// Collection is the mutation engine for one schema: it validates and
// serializes entities through the schema's codecs and persists them with
// the store's conditional-write primitive.
type Collection struct {
	schema *schema.Schema
	client store.Client
	hooks  Hooks
	logger *slog.Logger
}

// Option configures a Collection.
type Option func(*Collection)

// WithHooks installs lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(c *Collection) { c.hooks = h }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// NewCollection binds a schema to a store client. A nil client is resolved
// through the default registry; ErrNoClient if nothing is registered.
// Schemas carrying a configuration error are rejected here, before first
// use.
func NewCollection(s *schema.Schema, client store.Client, opts ...Option) (*Collection, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}
	// Surface validation-document problems at bind time too.
	if _, err := s.Validator(); err != nil {
		return nil, err
	}

	c := &Collection{schema: s, client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		cl, ok := DefaultRegistry().Resolve(s.ContainerID())
		if !ok {
			return nil, ErrNoClient
		}
		c.client = cl
	}
	return c, nil
}

// SaveOptions configures a single mutation.
type SaveOptions struct {
	// SkipValidation bypasses whole-object validation.
	SkipValidation bool

	// Force drops the concurrency precondition: create becomes an upsert,
	// update an unconditional replace, delete an unconditional delete.
	Force bool

	// Request is forwarded verbatim to the store-level request.
	Request store.RequestOptions
}

// Schema returns the bound schema.
func (c *Collection) Schema() *schema.Schema { return c.schema }

// NewEntity creates a never-persisted entity bound to this collection's
// schema.
func (c *Collection) NewEntity(props map[string]any) *Entity {
	return NewEntity(c.schema, props)
}

// Read fetches an entity by partition key and id. Returns
// store.ErrNotFound if no document exists.
func (c *Collection) Read(ctx context.Context, partitionKey any, id string, opts store.RequestOptions) (*Entity, error) {
	doc, meta, err := c.client.ReadByID(ctx, c.schema.ContainerID(), partitionKey, id, opts)
	if err != nil {
		return nil, err
	}
	return Rehydrate(c.schema, doc, meta), nil
}

// Validate runs whole-object validation against the serialized form of
// the entity's current properties. It has no side effect on the entity.
func (c *Collection) Validate(e *Entity) error {
	return c.validateDoc(c.schema.Serialize(e.props))
}

func (c *Collection) validateDoc(doc store.Document) error {
	v, err := c.schema.Validator()
	if err != nil {
		return err
	}
	if violations := v.Validate(doc); len(violations) > 0 {
		return &ValidationError{Container: c.schema.ContainerID(), Violations: violations}
	}
	return nil
}

// Create persists a never-persisted entity. An id is generated when the
// caller supplied none. Fails with store.ErrConflict if the id already
// exists, unless forced into an upsert.
func (c *Collection) Create(ctx context.Context, e *Entity, opts SaveOptions) error {
	if err := c.usable(e); err != nil {
		return err
	}
	if err := runHook(ctx, c.hooks.BeforeCreate, e); err != nil {
		return err
	}
	if err := runHook(ctx, c.hooks.BeforePersist, e); err != nil {
		return err
	}

	if e.ID() == "" {
		e.SetID(uuid.NewString())
	}
	doc := c.schema.Serialize(e.props)
	if !opts.SkipValidation {
		if err := c.validateDoc(doc); err != nil {
			return err
		}
	}

	var (
		stored store.Document
		meta   store.Metadata
		err    error
	)
	if opts.Force {
		stored, meta, err = c.client.Upsert(ctx, c.schema.ContainerID(), doc, opts.Request)
	} else {
		stored, meta, err = c.client.Insert(ctx, c.schema.ContainerID(), doc, opts.Request)
	}
	if err != nil {
		return err
	}
	e.bindStored(stored, meta)

	if err := runHook(ctx, c.hooks.AfterPersist, e); err != nil {
		return err
	}
	return runHook(ctx, c.hooks.AfterCreate, e)
}

// Update replaces the stored document, using the held concurrency token
// as precondition. Without a token, or with Force, the replace is
// unconditional. A stale token fails with store.ErrConflict; a missing
// document with store.ErrNotFound.
func (c *Collection) Update(ctx context.Context, e *Entity, opts SaveOptions) error {
	if err := c.usable(e); err != nil {
		return err
	}
	if err := runHook(ctx, c.hooks.BeforeUpdate, e); err != nil {
		return err
	}
	if err := runHook(ctx, c.hooks.BeforePersist, e); err != nil {
		return err
	}

	doc := c.schema.Serialize(e.props)
	if !opts.SkipValidation {
		if err := c.validateDoc(doc); err != nil {
			return err
		}
	}
	pk, err := c.partitionKeyOf(doc)
	if err != nil {
		return err
	}

	expected := e.etag
	if opts.Force {
		expected = ""
	}
	stored, meta, err := c.client.ConditionalReplace(ctx, c.schema.ContainerID(), pk, e.ID(), doc, expected, opts.Request)
	if err != nil {
		return err
	}
	e.bindStored(stored, meta)

	if err := runHook(ctx, c.hooks.AfterPersist, e); err != nil {
		return err
	}
	return runHook(ctx, c.hooks.AfterUpdate, e)
}

// Delete removes the stored document. A concurrency token is required
// unless forced; the missing-token case is a client-side usage error and
// never reaches the store. Deletion is terminal for the entity.
func (c *Collection) Delete(ctx context.Context, e *Entity, opts SaveOptions) error {
	if err := c.usable(e); err != nil {
		return err
	}
	if e.etag == "" && !opts.Force {
		return ErrPreconditionMissing
	}
	if err := runHook(ctx, c.hooks.BeforeDelete, e); err != nil {
		return err
	}

	doc := c.schema.Serialize(e.props)
	pk, err := c.partitionKeyOf(doc)
	if err != nil {
		return err
	}
	expected := e.etag
	if opts.Force {
		expected = ""
	}
	if err := c.client.ConditionalDelete(ctx, c.schema.ContainerID(), pk, e.ID(), expected, opts.Request); err != nil {
		return err
	}
	e.deleted = true

	return runHook(ctx, c.hooks.AfterDelete, e)
}

// Save dispatches to Create for never-persisted entities and Update
// otherwise. This is the common-case entry point.
func (c *Collection) Save(ctx context.Context, e *Entity, opts SaveOptions) error {
	if err := c.usable(e); err != nil {
		return err
	}
	if e.etag == "" {
		return c.Create(ctx, e, opts)
	}
	return c.Update(ctx, e, opts)
}

// Query runs a parameterized query against this collection, if the driver
// supports one.
func (c *Collection) Query(ctx context.Context, q store.Query, opts store.RequestOptions) (store.Cursor, error) {
	querier, ok := c.client.(store.Querier)
	if !ok {
		return nil, store.ErrUnsupported
	}
	return querier.Query(ctx, c.schema.ContainerID(), q, opts)
}

func (c *Collection) usable(e *Entity) error {
	if e == nil {
		return errors.New("vellum: nil entity")
	}
	if e.deleted {
		return ErrEntityDeleted
	}
	return nil
}

// partitionKeyOf extracts the partition key from a serialized document.
// A missing value is a validation-class failure raised before any
// network call.
func (c *Collection) partitionKeyOf(doc store.Document) (any, error) {
	pk, ok := c.schema.PartitionKeyValue(doc)
	if !ok {
		return nil, &ValidationError{
			Container: c.schema.ContainerID(),
			Violations: []schema.Violation{{
				Path:    c.schema.PartitionKeyPath(),
				Message: "missing partition key value",
			}},
		}
	}
	return pk, nil
}
