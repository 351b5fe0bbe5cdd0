package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/vellum/store"
)

// Query implements store.Querier with a PartiQL statement. The statement
// addresses the container's table directly; positional parameters are
// bound in order. Pagination resumes from the query's continuation token.
func (c *Client) Query(ctx context.Context, container string, q store.Query, opts store.RequestOptions) (store.Cursor, error) {
	params := make([]types.AttributeValue, 0, len(q.Parameters))
	for i, p := range q.Parameters {
		av, err := attributevalue.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("vellum: marshal query parameter %d: %w", i, err)
		}
		params = append(params, av)
	}

	in := &dynamodb.ExecuteStatementInput{
		Statement:      aws.String(q.Statement),
		ConsistentRead: aws.Bool(opts.ConsistentRead),
	}
	if len(params) > 0 {
		in.Parameters = params
	}
	if q.ContinuationToken != "" {
		in.NextToken = aws.String(q.ContinuationToken)
	}

	return &cursor{api: c.api, input: in}, nil
}

// cursor iterates PartiQL result pages lazily. The first page is fetched
// on the first Next call so statement errors surface through Err.
type cursor struct {
	api   API
	input *dynamodb.ExecuteStatementInput

	items   []map[string]types.AttributeValue
	idx     int
	fetched bool
	next    *string

	doc  store.Document
	meta store.Metadata
	err  error
}

var _ store.Cursor = (*cursor)(nil)

// Next advances to the next document, fetching pages as needed.
func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	for {
		if c.idx < len(c.items) {
			doc, meta, err := unmarshalDocument(c.items[c.idx])
			c.idx++
			if err != nil {
				c.err = err
				return false
			}
			c.doc, c.meta = doc, meta
			return true
		}
		if c.fetched && c.next == nil {
			return false
		}

		if c.fetched {
			// The first fetch keeps the caller's continuation token.
			c.input.NextToken = c.next
		}
		out, err := c.api.ExecuteStatement(ctx, c.input)
		if err != nil {
			c.err = err
			return false
		}
		c.fetched = true
		c.items = out.Items
		c.idx = 0
		c.next = out.NextToken
	}
}

// Document returns the current document.
func (c *cursor) Document() store.Document { return c.doc }

// Metadata returns the current document's metadata.
func (c *cursor) Metadata() store.Metadata { return c.meta }

// Token returns the continuation token for resuming after the current
// page, or "" when the result set is exhausted.
func (c *cursor) Token() string {
	if c.next == nil {
		return ""
	}
	return *c.next
}

// Err returns the first error encountered during iteration.
func (c *cursor) Err() error { return c.err }

// Close releases the cursor. PartiQL pagination holds no server state, so
// this only stops further fetches.
func (c *cursor) Close() error {
	c.items = nil
	c.next = nil
	c.fetched = true
	return nil
}
