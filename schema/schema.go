// Package schema describes typed collections: field declarations, per-field
// transforms, partition key, and container-level policies. Schemas are
// immutable; every builder method returns a new value, so concurrently-held
// references never observe mutation.
package schema

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jacentio/vellum/internal/paths"
	"github.com/jacentio/vellum/store"
)

// Schema is an immutable description of one collection. Build it once at
// startup and share it by reference.
type Schema struct {
	containerID      string
	fields           []Field
	index            map[string]int
	partitionKeyPath string
	includedPaths    []string
	excludedPaths    []string
	uniqueKeys       [][]string
	defaultTTL       int32
	conflictPolicy   map[string]any
	geospatial       map[string]any
	throughput       int32

	err       error
	validator *validatorState
}

// New creates a schema for the given container. Every schema carries an
// implicit required string "id" field, and partitions by "/id" until
// PartitionKey says otherwise.
func New(containerID string) *Schema {
	s := &Schema{
		containerID:      containerID,
		partitionKeyPath: "/" + store.FieldID,
		index:            map[string]int{store.FieldID: 0},
		validator:        &validatorState{},
		fields: []Field{{
			Name:       store.FieldID,
			Kind:       Scalar,
			Required:   true,
			Validation: map[string]any{"type": "string"},
		}},
	}
	if containerID == "" {
		s.err = fmt.Errorf("schema: empty container id")
	}
	return s
}

// clone produces the next schema value for a functional update.
func (s *Schema) clone() *Schema {
	c := *s
	c.fields = slices.Clone(s.fields)
	c.includedPaths = slices.Clone(s.includedPaths)
	c.excludedPaths = slices.Clone(s.excludedPaths)
	c.uniqueKeys = slices.Clone(s.uniqueKeys)
	c.index = make(map[string]int, len(s.index))
	for k, v := range s.index {
		c.index[k] = v
	}
	c.validator = &validatorState{}
	return &c
}

// fail records the first configuration error; later errors are dropped so
// the reported failure points at the original misuse.
func (s *Schema) fail(format string, args ...any) *Schema {
	if s.err == nil {
		s.err = fmt.Errorf(format, args...)
	}
	return s
}

// Err returns the first configuration error recorded while building.
// Binding a schema to a collection fails while Err is non-nil.
func (s *Schema) Err() error { return s.err }

// Field returns a schema with f added. Declaring "id" again replaces the
// implicit declaration but keeps it required; other duplicates are
// configuration errors.
func (s *Schema) Field(f Field) *Schema {
	c := s.clone()
	if f.Name == "" {
		return c.fail("schema: field with empty name")
	}
	if i, ok := c.index[f.Name]; ok {
		if f.Name != store.FieldID {
			return c.fail("schema: duplicate field %q", f.Name)
		}
		f.Required = true
		c.fields[i] = f
		return c
	}
	c.index[f.Name] = len(c.fields)
	c.fields = append(c.fields, f)
	return c
}

// PartitionKey returns a schema partitioned by the given property path.
// Exactly one path is supported; the path must resolve to a declared field
// consistently with its kind.
func (s *Schema) PartitionKey(path string) *Schema {
	c := s.clone()
	segs, err := paths.Normalize(path)
	if err != nil {
		return c.fail("schema: partition key: %v", err)
	}
	for _, seg := range segs {
		if seg == "?" || seg == "*" || seg == "[]" {
			return c.fail("schema: partition key %q must not contain wildcards", path)
		}
	}
	if err := paths.Validate(path, c.pathKinds()); err != nil {
		return c.fail("schema: partition key: %v", err)
	}
	c.partitionKeyPath = "/" + strings.Join(segs, "/")
	return c
}

// TTL returns a schema whose container expires items after the given
// number of seconds. Zero disables expiry.
func (s *Schema) TTL(seconds int32) *Schema {
	c := s.clone()
	if seconds < 0 {
		return c.fail("schema: negative ttl %d", seconds)
	}
	c.defaultTTL = seconds
	return c
}

// AddIndex returns a schema that indexes the path variants derived from
// the given property path.
func (s *Schema) AddIndex(path string) *Schema {
	c := s.clone()
	variants, err := paths.Expand(path, c.pathKinds())
	if err != nil {
		return c.fail("schema: index: %v", err)
	}
	for _, v := range variants {
		c.excludedPaths = remove(c.excludedPaths, v)
		if !slices.Contains(c.includedPaths, v) {
			c.includedPaths = append(c.includedPaths, v)
		}
	}
	return c
}

// RemoveFromIndex returns a schema that excludes the path variants derived
// from the given property path.
func (s *Schema) RemoveFromIndex(path string) *Schema {
	c := s.clone()
	variants, err := paths.Expand(path, c.pathKinds())
	if err != nil {
		return c.fail("schema: index: %v", err)
	}
	for _, v := range variants {
		c.includedPaths = remove(c.includedPaths, v)
		if !slices.Contains(c.excludedPaths, v) {
			c.excludedPaths = append(c.excludedPaths, v)
		}
	}
	return c
}

// Unique returns a schema with an additional unique key constraint over
// the given property paths, enforced per partition by the store.
func (s *Schema) Unique(keyPaths ...string) *Schema {
	c := s.clone()
	if len(keyPaths) == 0 {
		return c.fail("schema: unique constraint with no paths")
	}
	key := make([]string, 0, len(keyPaths))
	for _, p := range keyPaths {
		if err := paths.Validate(p, c.pathKinds()); err != nil {
			return c.fail("schema: unique: %v", err)
		}
		segs, _ := paths.Normalize(p)
		key = append(key, "/"+strings.Join(segs, "/"))
	}
	c.uniqueKeys = append(c.uniqueKeys, key)
	return c
}

// ConflictResolution returns a schema carrying the given conflict
// resolution policy blob, passed through to provisioning.
func (s *Schema) ConflictResolution(policy map[string]any) *Schema {
	c := s.clone()
	c.conflictPolicy = policy
	return c
}

// Geospatial returns a schema carrying the given geospatial configuration
// blob, passed through to provisioning.
func (s *Schema) Geospatial(cfg map[string]any) *Schema {
	c := s.clone()
	c.geospatial = cfg
	return c
}

// Throughput returns a schema requesting the given provisioned capacity.
// Zero requests on-demand capacity.
func (s *Schema) Throughput(units int32) *Schema {
	c := s.clone()
	if units < 0 {
		return c.fail("schema: negative throughput %d", units)
	}
	c.throughput = units
	return c
}

// ContainerID returns the physical collection identifier.
func (s *Schema) ContainerID() string { return s.containerID }

// PartitionKeyPath returns the partition key property path ("/org_id").
func (s *Schema) PartitionKeyPath() string { return s.partitionKeyPath }

// PartitionKeyField returns the top-level field the partition key path
// addresses.
func (s *Schema) PartitionKeyField() string {
	name, _ := paths.First(s.partitionKeyPath)
	return name
}

// DefaultTTL returns the container default item lifetime in seconds.
func (s *Schema) DefaultTTL() int32 { return s.defaultTTL }

// Fields returns the field declarations in declaration order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// Lookup returns the declaration for a field name.
func (s *Schema) Lookup(name string) (Field, bool) {
	if i, ok := s.index[name]; ok {
		return s.fields[i], true
	}
	return Field{}, false
}

// PartitionKeyValue extracts the partition key value from a serialized
// document.
func (s *Schema) PartitionKeyValue(doc store.Document) (any, bool) {
	return paths.Lookup(doc, s.partitionKeyPath)
}

// ContainerDefinition derives the provisioning definition for this schema.
func (s *Schema) ContainerDefinition() store.ContainerDefinition {
	return store.ContainerDefinition{
		ID:               s.containerID,
		PartitionKeyPath: s.partitionKeyPath,
		IndexingPolicy: store.IndexingPolicy{
			IncludedPaths: slices.Clone(s.includedPaths),
			ExcludedPaths: slices.Clone(s.excludedPaths),
		},
		UniqueKeys:               cloneKeys(s.uniqueKeys),
		DefaultTTL:               s.defaultTTL,
		ConflictResolutionPolicy: s.conflictPolicy,
		GeospatialConfig:         s.geospatial,
		Throughput:               s.throughput,
	}
}

func (s *Schema) pathKinds() map[string]paths.Kind {
	kinds := make(map[string]paths.Kind, len(s.fields))
	for _, f := range s.fields {
		kinds[f.Name] = f.Kind.pathKind()
	}
	return kinds
}

func remove(list []string, v string) []string {
	if i := slices.Index(list, v); i >= 0 {
		return slices.Delete(list, i, i+1)
	}
	return list
}

func cloneKeys(keys [][]string) [][]string {
	out := make([][]string, len(keys))
	for i, k := range keys {
		out[i] = slices.Clone(k)
	}
	return out
}

// validatorState holds the lazily compiled whole-object validator. Each
// schema value compiles its own; clones get a fresh state.
type validatorState struct {
	once     sync.Once
	compiled DocumentValidator
	err      error
}
