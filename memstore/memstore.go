// Package memstore is an in-memory store.Client with real etag semantics.
// It backs the test suites and works as a lightweight driver for
// application tests.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jacentio/vellum/store"
)

type record struct {
	doc  store.Document
	etag string
	ts   time.Time
}

// Store holds documents per container, keyed by id. Conditional writes
// behave exactly like a real store: inserts collide on existing ids and
// etag mismatches fail.
type Store struct {
	mu         sync.RWMutex
	containers map[string]map[string]record
	defs       map[string]store.ContainerDefinition
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		containers: make(map[string]map[string]record),
		defs:       make(map[string]store.ContainerDefinition),
	}
}

var _ store.Client = (*Store)(nil)
var _ store.Provisioner = (*Store)(nil)

// ReadByID implements store.Client.
func (s *Store) ReadByID(ctx context.Context, container string, partitionKey any, id string, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.containers[container][id]
	if !ok {
		return nil, store.Metadata{}, store.ErrNotFound
	}
	return rec.snapshot()
}

// Insert implements store.Client.
func (s *Store) Insert(ctx context.Context, container string, doc store.Document, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	id, err := documentID(doc)
	if err != nil {
		return nil, store.Metadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.container(container)
	if _, exists := items[id]; exists {
		return nil, store.Metadata{}, store.ErrConflict
	}
	return s.put(items, id, doc)
}

// ConditionalReplace implements store.Client.
func (s *Store) ConditionalReplace(ctx context.Context, container string, partitionKey any, id string, doc store.Document, expectedETag string, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.container(container)
	current, exists := items[id]
	if !exists {
		return nil, store.Metadata{}, store.ErrNotFound
	}
	if expectedETag != "" && current.etag != expectedETag {
		return nil, store.Metadata{}, store.ErrConflict
	}
	return s.put(items, id, doc)
}

// ConditionalDelete implements store.Client.
func (s *Store) ConditionalDelete(ctx context.Context, container string, partitionKey any, id string, expectedETag string, opts store.RequestOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.container(container)
	current, exists := items[id]
	if !exists {
		return store.ErrNotFound
	}
	if expectedETag != "" && current.etag != expectedETag {
		return store.ErrConflict
	}
	delete(items, id)
	return nil
}

// Upsert implements store.Client.
func (s *Store) Upsert(ctx context.Context, container string, doc store.Document, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	id, err := documentID(doc)
	if err != nil {
		return nil, store.Metadata{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(s.container(container), id, doc)
}

// CreateIfNotExists implements store.Provisioner.
func (s *Store) CreateIfNotExists(ctx context.Context, def store.ContainerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.ID]; !ok {
		s.defs[def.ID] = def
	}
	return nil
}

// Replace implements store.Provisioner.
func (s *Store) Replace(ctx context.Context, def store.ContainerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.ID] = def
	return nil
}

// Delete implements store.Provisioner.
func (s *Store) Delete(ctx context.Context, containerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.defs, containerID)
	delete(s.containers, containerID)
	return nil
}

// Definition returns the provisioned definition for a container.
func (s *Store) Definition(containerID string) (store.ContainerDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[containerID]
	return def, ok
}

// Len returns the number of documents in a container.
func (s *Store) Len(containerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.containers[containerID])
}

func (s *Store) container(id string) map[string]record {
	items, ok := s.containers[id]
	if !ok {
		items = make(map[string]record)
		s.containers[id] = items
	}
	return items
}

// put stores a copy of doc under a fresh etag and returns the stored
// representation. Callers hold the write lock.
func (s *Store) put(items map[string]record, id string, doc store.Document) (store.Document, store.Metadata, error) {
	rec := record{
		doc:  copyDocument(doc),
		etag: uuid.NewString(),
		ts:   time.Now().Truncate(time.Second),
	}
	items[id] = rec
	return rec.snapshot()
}

func (r record) snapshot() (store.Document, store.Metadata, error) {
	doc := copyDocument(r.doc)
	doc[store.FieldETag] = r.etag
	doc[store.FieldTimestamp] = r.ts.Unix()
	return doc, store.Metadata{ETag: r.etag, LastModified: r.ts}, nil
}

func documentID(doc store.Document) (string, error) {
	id, ok := doc[store.FieldID].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("vellum: document missing string %q field", store.FieldID)
	}
	return id, nil
}

// copyDocument deep-copies the JSON-shaped parts of a document so stored
// state cannot alias caller maps.
func copyDocument(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		if k == store.FieldETag || k == store.FieldTimestamp {
			continue
		}
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = copyValue(e)
		}
		return m
	case []any:
		l := make([]any, len(t))
		for i, e := range t {
			l[i] = copyValue(e)
		}
		return l
	default:
		return v
	}
}
