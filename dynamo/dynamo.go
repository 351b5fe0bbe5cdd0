// Package dynamo implements the store boundary on DynamoDB. Documents are
// flat items; the concurrency token is a uuid written to _etag on every
// successful write and checked with a conditional expression.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/vellum/internal/paths"
	"github.com/jacentio/vellum/store"
)

// attrTTL is the item attribute DynamoDB's TTL process reads. Populated
// from the container's default TTL at write time.
const attrTTL = "_ttl"

// API is the slice of the DynamoDB client the driver uses. Satisfied by
// *dynamodb.Client.
type API interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	ExecuteStatement(ctx context.Context, in *dynamodb.ExecuteStatementInput, opts ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	DeleteTable(ctx context.Context, in *dynamodb.DeleteTableInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
	UpdateTimeToLive(ctx context.Context, in *dynamodb.UpdateTimeToLiveInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateTimeToLiveOutput, error)
}

// keySpec describes how a container's documents are addressed. Containers
// whose partition key is the id use a plain hash key; otherwise the
// partition key attribute is the hash key and id becomes the range key.
type keySpec struct {
	hashAttr   string
	ttlSeconds int32
}

func (k keySpec) composite() bool { return k.hashAttr != store.FieldID }

// Client is a store.Client, store.Querier and store.Provisioner backed by
// DynamoDB. Container ids map one-to-one onto table names.
type Client struct {
	api API
	now func() time.Time

	mu     sync.RWMutex
	tables map[string]keySpec
}

// Option configures a Client.
type Option func(*Client)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a driver over a DynamoDB API client.
func New(api API, opts ...Option) *Client {
	c := &Client{
		api:    api,
		now:    time.Now,
		tables: make(map[string]keySpec),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ store.Client = (*Client)(nil)
var _ store.Querier = (*Client)(nil)
var _ store.Provisioner = (*Client)(nil)

// RegisterContainer teaches the driver a container's key layout and
// default TTL. Provisioning registers automatically; register manually for
// tables created elsewhere. Unregistered containers are assumed to be
// keyed by id alone.
func (c *Client) RegisterContainer(def store.ContainerDefinition) error {
	spec, err := specFor(def)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[def.ID] = spec
	return nil
}

func specFor(def store.ContainerDefinition) (keySpec, error) {
	hashAttr := store.FieldID
	if def.PartitionKeyPath != "" {
		attr, err := paths.First(def.PartitionKeyPath)
		if err != nil {
			return keySpec{}, fmt.Errorf("vellum: container %q: %w", def.ID, err)
		}
		hashAttr = attr
	}
	return keySpec{hashAttr: hashAttr, ttlSeconds: def.DefaultTTL}, nil
}

func (c *Client) spec(container string) keySpec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if spec, ok := c.tables[container]; ok {
		return spec
	}
	return keySpec{hashAttr: store.FieldID}
}

// key builds the item key for a document address.
func (c *Client) key(container string, partitionKey any, id string) (map[string]types.AttributeValue, error) {
	spec := c.spec(container)
	if !spec.composite() {
		return map[string]types.AttributeValue{
			store.FieldID: &types.AttributeValueMemberS{Value: id},
		}, nil
	}
	pk, err := attributevalue.Marshal(partitionKey)
	if err != nil {
		return nil, fmt.Errorf("vellum: marshal partition key: %w", err)
	}
	return map[string]types.AttributeValue{
		spec.hashAttr: pk,
		store.FieldID: &types.AttributeValueMemberS{Value: id},
	}, nil
}

// ReadByID implements store.Client.
func (c *Client) ReadByID(ctx context.Context, container string, partitionKey any, id string, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	key, err := c.key(container, partitionKey, id)
	if err != nil {
		return nil, store.Metadata{}, err
	}

	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(container),
		Key:            key,
		ConsistentRead: aws.Bool(opts.ConsistentRead),
	})
	if err != nil {
		return nil, store.Metadata{}, err
	}
	if out.Item == nil {
		return nil, store.Metadata{}, store.ErrNotFound
	}
	return unmarshalDocument(out.Item)
}

// Insert implements store.Client. The put is conditioned on the item not
// existing; a collision maps to store.ErrConflict.
func (c *Client) Insert(ctx context.Context, container string, doc store.Document, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	stamped, meta := c.stamp(container, doc)
	item, err := attributevalue.MarshalMap(map[string]any(stamped))
	if err != nil {
		return nil, store.Metadata{}, fmt.Errorf("vellum: marshal document: %w", err)
	}

	_, err = c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(container),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": store.FieldID},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, store.Metadata{}, store.ErrConflict
		}
		return nil, store.Metadata{}, err
	}
	return stamped, meta, nil
}

// ConditionalReplace implements store.Client. The condition checks the
// stored etag when one is expected, or bare existence otherwise. The
// failed item is returned with the condition error, which is what lets the
// driver tell a missing document from a stale token in one round trip.
func (c *Client) ConditionalReplace(ctx context.Context, container string, partitionKey any, id string, doc store.Document, expectedETag string, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	stamped, meta := c.stamp(container, doc)
	item, err := attributevalue.MarshalMap(map[string]any(stamped))
	if err != nil {
		return nil, store.Metadata{}, fmt.Errorf("vellum: marshal document: %w", err)
	}

	in := &dynamodb.PutItemInput{
		TableName:                           aws.String(container),
		Item:                                item,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if expectedETag == "" {
		in.ConditionExpression = aws.String("attribute_exists(#id)")
		in.ExpressionAttributeNames = map[string]string{"#id": store.FieldID}
	} else {
		in.ConditionExpression = aws.String("#etag = :expected")
		in.ExpressionAttributeNames = map[string]string{"#etag": store.FieldETag}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expectedETag},
		}
	}

	if _, err := c.api.PutItem(ctx, in); err != nil {
		return nil, store.Metadata{}, mapConditionError(err)
	}
	return stamped, meta, nil
}

// ConditionalDelete implements store.Client.
func (c *Client) ConditionalDelete(ctx context.Context, container string, partitionKey any, id string, expectedETag string, opts store.RequestOptions) error {
	key, err := c.key(container, partitionKey, id)
	if err != nil {
		return err
	}

	in := &dynamodb.DeleteItemInput{
		TableName:                           aws.String(container),
		Key:                                 key,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}
	if expectedETag == "" {
		in.ConditionExpression = aws.String("attribute_exists(#id)")
		in.ExpressionAttributeNames = map[string]string{"#id": store.FieldID}
	} else {
		in.ConditionExpression = aws.String("#etag = :expected")
		in.ExpressionAttributeNames = map[string]string{"#etag": store.FieldETag}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expectedETag},
		}
	}

	if _, err := c.api.DeleteItem(ctx, in); err != nil {
		return mapConditionError(err)
	}
	return nil
}

// Upsert implements store.Client with an unconditional put.
func (c *Client) Upsert(ctx context.Context, container string, doc store.Document, opts store.RequestOptions) (store.Document, store.Metadata, error) {
	stamped, meta := c.stamp(container, doc)
	item, err := attributevalue.MarshalMap(map[string]any(stamped))
	if err != nil {
		return nil, store.Metadata{}, fmt.Errorf("vellum: marshal document: %w", err)
	}

	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(container),
		Item:      item,
	}); err != nil {
		return nil, store.Metadata{}, err
	}
	return stamped, meta, nil
}

// stamp copies doc and assigns the write's metadata: a fresh etag, the
// wall-clock timestamp, and the TTL expiry when the container declares a
// default TTL and the caller did not set one.
func (c *Client) stamp(container string, doc store.Document) (store.Document, store.Metadata) {
	now := c.now().Truncate(time.Second)
	etag := uuid.NewString()

	out := make(store.Document, len(doc)+3)
	for k, v := range doc {
		out[k] = v
	}
	out[store.FieldETag] = etag
	out[store.FieldTimestamp] = now.Unix()
	if spec := c.spec(container); spec.ttlSeconds > 0 {
		if _, set := out[attrTTL]; !set {
			out[attrTTL] = now.Unix() + int64(spec.ttlSeconds)
		}
	}
	return out, store.Metadata{ETag: etag, LastModified: now}
}

// mapConditionError translates a conditional-check failure: a failed check
// with no returned item means the document is gone, one with an item means
// the stored etag moved.
func mapConditionError(err error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		if len(condErr.Item) == 0 {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	return err
}

// unmarshalDocument converts a raw item into a document plus metadata.
func unmarshalDocument(item map[string]types.AttributeValue) (store.Document, store.Metadata, error) {
	var m map[string]any
	if err := attributevalue.UnmarshalMap(item, &m); err != nil {
		return nil, store.Metadata{}, fmt.Errorf("vellum: unmarshal document: %w", err)
	}
	doc := store.Document(m)
	return doc, metadataOf(doc), nil
}

// metadataOf extracts the stored metadata attributes.
func metadataOf(doc store.Document) store.Metadata {
	meta := store.Metadata{}
	if etag, ok := doc[store.FieldETag].(string); ok {
		meta.ETag = etag
	}
	switch ts := doc[store.FieldTimestamp].(type) {
	case float64:
		meta.LastModified = time.Unix(int64(ts), 0)
	case int64:
		meta.LastModified = time.Unix(ts, 0)
	}
	return meta
}
