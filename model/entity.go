package model

import (
	"time"

	"github.com/jacentio/vellum/schema"
	"github.com/jacentio/vellum/store"
)

// Entity is an application object bound to a schema: mutable properties
// plus store-assigned metadata. An entity with a concurrency token
// represents the store's state at some past instant; that belief goes
// stale the moment any other writer succeeds.
//
// Entities are not safe for concurrent mutation; the layer assumes a
// single writer per in-process entity value.
type Entity struct {
	schema       *schema.Schema
	props        map[string]any
	etag         string
	lastModified time.Time
	deleted      bool
}

// NewEntity creates a never-persisted entity with the given properties.
// The property map is copied at the top level.
func NewEntity(s *schema.Schema, props map[string]any) *Entity {
	e := &Entity{schema: s, props: make(map[string]any, len(props))}
	for k, v := range props {
		e.props[k] = v
	}
	return e
}

// Rehydrate builds a persisted entity from a raw store document and its
// metadata, running the schema's codecs. Use it for documents obtained
// outside the collection's own reads (query cursors, change feeds).
func Rehydrate(s *schema.Schema, doc store.Document, meta store.Metadata) *Entity {
	return &Entity{
		schema:       s,
		props:        s.Deserialize(doc),
		etag:         meta.ETag,
		lastModified: meta.LastModified,
	}
}

// Schema returns the schema the entity is bound to.
func (e *Entity) Schema() *schema.Schema { return e.schema }

// ID returns the entity id, or "" if unset.
func (e *Entity) ID() string {
	id, _ := e.props[store.FieldID].(string)
	return id
}

// SetID sets the entity id.
func (e *Entity) SetID(id string) { e.props[store.FieldID] = id }

// Get returns a property value.
func (e *Entity) Get(name string) (any, bool) {
	v, ok := e.props[name]
	return v, ok
}

// Set assigns a property value.
func (e *Entity) Set(name string, value any) { e.props[name] = value }

// Unset removes a property.
func (e *Entity) Unset(name string) { delete(e.props, name) }

// Properties returns the live property map. Mutating it between reads and
// writes is the intended usage; sharing it across goroutines is not.
func (e *Entity) Properties() map[string]any { return e.props }

// ETag returns the held concurrency token, or "" for a never-persisted
// entity.
func (e *Entity) ETag() string { return e.etag }

// LastModified returns the store-assigned modification time. The bool is
// false for a never-persisted entity.
func (e *Entity) LastModified() (time.Time, bool) {
	return e.lastModified, !e.lastModified.IsZero()
}

// IsPersisted reports whether the entity holds a concurrency token.
func (e *Entity) IsPersisted() bool { return e.etag != "" }

// IsDeleted reports whether the entity has been deleted. Deleted entities
// reject further operations.
func (e *Entity) IsDeleted() bool { return e.deleted }

// bindStored replaces properties and metadata from a store response after
// a successful write or read.
func (e *Entity) bindStored(doc store.Document, meta store.Metadata) {
	e.props = e.schema.Deserialize(doc)
	e.etag = meta.ETag
	e.lastModified = meta.LastModified
}

// adopt copies another entity's state into e, so callers holding e observe
// freshly read state across retries.
func (e *Entity) adopt(other *Entity) {
	e.props = make(map[string]any, len(other.props))
	for k, v := range other.props {
		e.props[k] = v
	}
	e.etag = other.etag
	e.lastModified = other.lastModified
	e.deleted = false
}
