package store

import "context"

// IndexingPolicy lists the index path variants derived from the schema.
type IndexingPolicy struct {
	// IncludedPaths are indexed path variants (e.g. "/email/?").
	IncludedPaths []string

	// ExcludedPaths are path variants removed from the index.
	ExcludedPaths []string
}

// ContainerDefinition is everything a provisioner needs to materialize a
// collection. Policy blobs are passed through opaquely.
type ContainerDefinition struct {
	// ID is the physical collection identifier.
	ID string

	// PartitionKeyPath identifies the partition key property ("/org_id").
	PartitionKeyPath string

	// IndexingPolicy configures secondary indexing.
	IndexingPolicy IndexingPolicy

	// UniqueKeys are sets of paths that must be unique within a partition.
	UniqueKeys [][]string

	// DefaultTTL is the container default item lifetime in seconds.
	// Zero means no TTL.
	DefaultTTL int32

	// ConflictResolutionPolicy is an opaque policy blob.
	ConflictResolutionPolicy map[string]any

	// GeospatialConfig is an opaque policy blob.
	GeospatialConfig map[string]any

	// Throughput is the provisioned capacity, in store-native units.
	// Zero requests on-demand capacity.
	Throughput int32
}

// Provisioner manages the collection resource itself. It is an external
// collaborator; the core only produces ContainerDefinition values.
type Provisioner interface {
	CreateIfNotExists(ctx context.Context, def ContainerDefinition) error
	Replace(ctx context.Context, def ContainerDefinition) error
	Delete(ctx context.Context, containerID string) error
}
