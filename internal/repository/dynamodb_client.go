package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefix = "KV#"
	skValue  = "VALUE#"
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Client stores key-value items in a DynamoDB table, one item per key.
type Client struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTTL stamps every write with a "ttl" attribute d in the future, so a
// table with TTL enabled expires transcripts left untouched for d. Zero or
// negative leaves items without an expiry, which is the default.
func WithTTL(d time.Duration) ClientOption {
	return func(c *Client) { c.ttl = d }
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string, opts ...ClientOption) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	c := &Client{api: api, tableName: tableName, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// itemPK returns the DynamoDB partition key for a storage key.
func itemPK(key string) string {
	return pkPrefix + key
}

func itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: itemPK(key)},
		"SK": &types.AttributeValueMemberS{Value: skValue},
	}
}

// ttlValue returns the expiry as a Unix timestamp ttl after t.
func (c *Client) ttlValue(t time.Time) int64 {
	return t.Add(c.ttl).Unix()
}

// GetItem reads the value stored under key. Reads are strongly consistent so a
// value written by SetItem is visible to the next GetItem.
func (c *Client) GetItem(ctx context.Context, key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, errors.New("repository: GetItem: key is required")
	}
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, fmt.Errorf("repository: GetItem: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return "", false, nil
	}

	value, err := strAttr(out.Item, "value")
	if err != nil {
		return "", false, fmt.Errorf("repository: GetItem decode value: %w", err)
	}
	return value, true, nil
}

// SetItem writes value under key, replacing any previous value.
func (c *Client) SetItem(ctx context.Context, key, value string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("repository: SetItem: key is required")
	}
	now := c.now().UTC()
	item := itemKey(key)
	item["value"] = &types.AttributeValueMemberS{Value: value}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)}
	if c.ttl > 0 {
		item["ttl"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", c.ttlValue(now))}
	}

	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: SetItem: %w", err)
	}
	return nil
}

// RemoveItem deletes key. Deleting a missing key succeeds.
func (c *Client) RemoveItem(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("repository: RemoveItem: key is required")
	}
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("repository: RemoveItem: %w", err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
