package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/vellum/store"
)

// tableWaitTimeout bounds how long provisioning waits for a new table to
// become active.
const tableWaitTimeout = 2 * time.Minute

// CreateIfNotExists implements store.Provisioner. Indexing, unique-key and
// conflict-resolution policies have no table-level equivalent in DynamoDB
// and are recorded only for key layout and TTL; partition key attributes
// are provisioned as strings. The default TTL maps onto DynamoDB's TTL
// process via the _ttl attribute.
func (c *Client) CreateIfNotExists(ctx context.Context, def store.ContainerDefinition) error {
	if err := c.RegisterContainer(def); err != nil {
		return err
	}

	_, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(def.ID),
	})
	if err == nil {
		return c.applyTTL(ctx, def)
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) {
		return err
	}

	if err := c.createTable(ctx, def); err != nil {
		return err
	}
	return c.applyTTL(ctx, def)
}

// Replace implements store.Provisioner. DynamoDB cannot change a live
// table's key schema; a replace that would need to is refused.
func (c *Client) Replace(ctx context.Context, def store.ContainerDefinition) error {
	spec, err := specFor(def)
	if err != nil {
		return err
	}

	out, err := c.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(def.ID),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return c.CreateIfNotExists(ctx, def)
		}
		return err
	}

	for _, ks := range out.Table.KeySchema {
		if ks.KeyType == types.KeyTypeHash && aws.ToString(ks.AttributeName) != spec.hashAttr {
			return fmt.Errorf("vellum: container %q: cannot change partition key from %q to %q: %w",
				def.ID, aws.ToString(ks.AttributeName), spec.hashAttr, store.ErrUnsupported)
		}
	}

	if err := c.RegisterContainer(def); err != nil {
		return err
	}
	return c.applyTTL(ctx, def)
}

// Delete implements store.Provisioner. A missing table is not an error.
func (c *Client) Delete(ctx context.Context, containerID string) error {
	c.mu.Lock()
	delete(c.tables, containerID)
	c.mu.Unlock()

	_, err := c.api.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(containerID),
	})
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return nil
	}
	return err
}

func (c *Client) createTable(ctx context.Context, def store.ContainerDefinition) error {
	spec, err := specFor(def)
	if err != nil {
		return err
	}

	in := &dynamodb.CreateTableInput{
		TableName: aws.String(def.ID),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(spec.hashAttr), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(spec.hashAttr), KeyType: types.KeyTypeHash},
		},
	}
	if spec.composite() {
		in.AttributeDefinitions = append(in.AttributeDefinitions, types.AttributeDefinition{
			AttributeName: aws.String(store.FieldID),
			AttributeType: types.ScalarAttributeTypeS,
		})
		in.KeySchema = append(in.KeySchema, types.KeySchemaElement{
			AttributeName: aws.String(store.FieldID),
			KeyType:       types.KeyTypeRange,
		})
	}
	if def.Throughput > 0 {
		in.BillingMode = types.BillingModeProvisioned
		in.ProvisionedThroughput = &types.ProvisionedThroughput{
			ReadCapacityUnits:  aws.Int64(int64(def.Throughput)),
			WriteCapacityUnits: aws.Int64(int64(def.Throughput)),
		}
	} else {
		in.BillingMode = types.BillingModePayPerRequest
	}

	if _, err := c.api.CreateTable(ctx, in); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(c.api)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(def.ID),
	}, tableWaitTimeout)
}

// applyTTL reconciles the table's TTL setting with the definition.
func (c *Client) applyTTL(ctx context.Context, def store.ContainerDefinition) error {
	enabled := def.DefaultTTL > 0
	_, err := c.api.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(def.ID),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			AttributeName: aws.String(attrTTL),
			Enabled:       aws.Bool(enabled),
		},
	})
	if err != nil {
		// DynamoDB rejects a no-op TTL update with a validation error;
		// re-applying the current state is fine.
		var apiErr interface{ ErrorCode() string }
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationException" {
			return nil
		}
		return err
	}
	return nil
}
