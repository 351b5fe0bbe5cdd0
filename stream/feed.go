// Package stream decodes DynamoDB stream events into entity change
// notifications. It is the change-feed side of the layer: wire a
// Handler's Handle method up as an AWS Lambda handler on the table's
// stream and register a schema per container.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/vellum/model"
	"github.com/jacentio/vellum/schema"
	"github.com/jacentio/vellum/store"
)

// ChangeType classifies a feed record.
type ChangeType string

const (
	// Created is a document's first write.
	Created ChangeType = "created"

	// Updated is a replace of an existing document.
	Updated ChangeType = "updated"

	// Deleted is a document removal, including TTL expiry.
	Deleted ChangeType = "deleted"
)

// Change is one decoded feed record. Entity carries the new image for
// creates and updates and the last known image for deletes; Prior carries
// the old image for updates and is nil otherwise.
type Change struct {
	Type      ChangeType
	Container string
	Entity    *model.Entity
	Prior     *model.Entity
}

// HandlerFunc consumes a change. An error fails the Lambda invocation so
// the batch is retried.
type HandlerFunc func(ctx context.Context, change Change) error

type subscription struct {
	schema *schema.Schema
	fn     HandlerFunc
}

// Handler routes feed records to per-container subscriptions.
type Handler struct {
	subs   map[string]subscription
	logger *slog.Logger
}

// NewHandler creates a feed handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		subs:   make(map[string]subscription),
		logger: logger,
	}
}

// On subscribes fn to changes in the schema's container. One subscription
// per container; a later call replaces an earlier one.
func (h *Handler) On(s *schema.Schema, fn HandlerFunc) *Handler {
	h.subs[s.ContainerID()] = subscription{schema: s, fn: fn}
	return h
}

// Handle processes a DynamoDB stream event. Records for containers with no
// subscription are skipped. A failing record stops the batch; Lambda
// retries it and eventually dead-letters.
func (h *Handler) Handle(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process feed record",
				"eventID", record.EventID,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (h *Handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	container := tableOf(record.EventSourceArn)
	sub, ok := h.subs[container]
	if !ok {
		h.logger.Debug("no subscription for container", "container", container)
		return nil
	}

	change, ok := decodeChange(sub.schema, container, record)
	if !ok {
		return nil
	}

	h.logger.Debug("dispatching change",
		"container", container,
		"type", string(change.Type),
		"id", change.Entity.ID(),
	)
	if err := sub.fn(ctx, change); err != nil {
		return fmt.Errorf("handle %s %s/%s: %w", change.Type, container, change.Entity.ID(), err)
	}
	return nil
}

func decodeChange(s *schema.Schema, container string, record events.DynamoDBEventRecord) (Change, bool) {
	switch record.EventName {
	case "INSERT":
		return Change{
			Type:      Created,
			Container: container,
			Entity:    rehydrateImage(s, record.Change.NewImage),
		}, true
	case "MODIFY":
		return Change{
			Type:      Updated,
			Container: container,
			Entity:    rehydrateImage(s, record.Change.NewImage),
			Prior:     rehydrateImage(s, record.Change.OldImage),
		}, true
	case "REMOVE":
		return Change{
			Type:      Deleted,
			Container: container,
			Entity:    rehydrateImage(s, record.Change.OldImage),
		}, true
	}
	return Change{}, false
}

// rehydrateImage converts a stream image into an entity, extracting the
// stored metadata attributes on the way.
func rehydrateImage(s *schema.Schema, image map[string]events.DynamoDBAttributeValue) *model.Entity {
	doc := convertImage(image)
	meta := store.Metadata{}
	if etag, ok := doc[store.FieldETag].(string); ok {
		meta.ETag = etag
	}
	if ts, ok := doc[store.FieldTimestamp].(float64); ok {
		meta.LastModified = time.Unix(int64(ts), 0)
	}
	return model.Rehydrate(s, doc, meta)
}

// convertImage maps a stream image to a document. Numbers come out as
// float64, matching JSON decoding.
func convertImage(image map[string]events.DynamoDBAttributeValue) store.Document {
	doc := make(store.Document, len(image))
	for k, v := range image {
		doc[k] = convertAttr(v)
	}
	return doc
}

func convertAttr(v events.DynamoDBAttributeValue) any {
	switch v.DataType() {
	case events.DataTypeString:
		return v.String()
	case events.DataTypeNumber:
		n, _ := strconv.ParseFloat(v.Number(), 64)
		return n
	case events.DataTypeBoolean:
		return v.Boolean()
	case events.DataTypeBinary:
		return v.Binary()
	case events.DataTypeNull:
		return nil
	case events.DataTypeList:
		list := make([]any, 0, len(v.List()))
		for _, item := range v.List() {
			list = append(list, convertAttr(item))
		}
		return list
	case events.DataTypeMap:
		m := make(map[string]any, len(v.Map()))
		for k, item := range v.Map() {
			m[k] = convertAttr(item)
		}
		return m
	case events.DataTypeStringSet:
		set := make([]any, 0, len(v.StringSet()))
		for _, s := range v.StringSet() {
			set = append(set, s)
		}
		return set
	case events.DataTypeNumberSet:
		set := make([]any, 0, len(v.NumberSet()))
		for _, s := range v.NumberSet() {
			n, _ := strconv.ParseFloat(s, 64)
			set = append(set, n)
		}
		return set
	}
	return nil
}

// tableOf extracts the table name from a stream ARN:
// arn:aws:dynamodb:region:account:table/NAME/stream/TIMESTAMP.
func tableOf(arn string) string {
	const marker = ":table/"
	i := strings.Index(arn, marker)
	if i < 0 {
		return ""
	}
	rest := arn[i+len(marker):]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		return rest[:j]
	}
	return rest
}
