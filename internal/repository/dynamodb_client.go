package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"orderbridge/internal/domain"
)

const (
	pkPrefixTenant = "TENANT#"
	skSession      = "SESSION#"

	// Tombstones only need to outlive saves that were in flight when the session was deleted.
	tombstoneTTL = 30 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Client.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Client wraps a DynamoDB table holding one session record per tenant.
type Client struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new repository Client.
func New(api dynamodbAPI, tableName string) (*Client, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &Client{api: api, tableName: tableName, now: time.Now}, nil
}

// tenantPK returns the DynamoDB partition key for a tenant.
func tenantPK(tenantKey string) string {
	return pkPrefixTenant + tenantKey
}

func sessionKey(tenantKey string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: tenantPK(tenantKey)},
		"SK": &types.AttributeValueMemberS{Value: skSession},
	}
}

// GetSession reads the session record for a tenant. The bool is false when no record
// exists or the session was deleted.
func (c *Client) GetSession(ctx context.Context, tenantKey string) (domain.SessionRecord, bool, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            sessionKey(tenantKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.SessionRecord{}, false, fmt.Errorf("repository: GetSession get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 || isTombstone(out.Item) {
		return domain.SessionRecord{}, false, nil
	}

	rec, err := itemToSession(out.Item)
	if err != nil {
		return domain.SessionRecord{}, false, fmt.Errorf("repository: GetSession unmarshal: %w", err)
	}
	return rec, true, nil
}

// PutSession upserts the tenant's session record. The write only lands when the stored
// item (record or tombstone) is older (lower Seq) or carries no sequence at all;
// otherwise domain.ErrStaleSession.
func (c *Client) PutSession(ctx context.Context, rec domain.SessionRecord) error {
	if strings.TrimSpace(rec.TenantKey) == "" {
		return errors.New("repository: PutSession: tenant key is required")
	}
	if rec.BlobRef == "" {
		return errors.New("repository: PutSession: blob reference is required")
	}
	if err := c.putFenced(ctx, sessionItem(rec), rec.Seq); err != nil {
		return fmt.Errorf("repository: PutSession %q seq %d: %w", rec.TenantKey, rec.Seq, err)
	}
	return nil
}

// DeleteSession replaces the tenant's session record with a tombstone carrying seq.
// The tombstone keeps the sequence fence, so a save accepted before the delete can
// no longer commit after it. A record newer than seq is left alone and reported as
// domain.ErrStaleSession. Deleting a missing record is not an error.
func (c *Client) DeleteSession(ctx context.Context, tenantKey string, seq int64) error {
	if strings.TrimSpace(tenantKey) == "" {
		return errors.New("repository: DeleteSession: tenant key is required")
	}
	if err := c.putFenced(ctx, tombstoneItem(tenantKey, seq, c.now()), seq); err != nil {
		return fmt.Errorf("repository: DeleteSession %q seq %d: %w", tenantKey, seq, err)
	}
	return nil
}

func (c *Client) putFenced(ctx context.Context, item map[string]types.AttributeValue, seq int64) error {
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(seq) OR seq < :seq"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":seq": &types.AttributeValueMemberN{Value: strconv.FormatInt(seq, 10)},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.ErrStaleSession
		}
		return err
	}
	return nil
}

// tombstoneItem marks a deleted session. expiresAt is the table's TTL attribute.
func tombstoneItem(tenantKey string, seq int64, now time.Time) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: tenantPK(tenantKey)},
		"SK":        &types.AttributeValueMemberS{Value: skSession},
		"tenantKey": &types.AttributeValueMemberS{Value: tenantKey},
		"seq":       &types.AttributeValueMemberN{Value: strconv.FormatInt(seq, 10)},
		"deleted":   &types.AttributeValueMemberBOOL{Value: true},
		"deletedAt": &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		"expiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(tombstoneTTL).Unix(), 10)},
	}
}

func isTombstone(item map[string]types.AttributeValue) bool {
	v, ok := item["deleted"].(*types.AttributeValueMemberBOOL)
	return ok && v.Value
}

// sessionItem never writes inlinePayload; legacy records are read-only.
func sessionItem(rec domain.SessionRecord) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":          &types.AttributeValueMemberS{Value: tenantPK(rec.TenantKey)},
		"SK":          &types.AttributeValueMemberS{Value: skSession},
		"tenantKey":   &types.AttributeValueMemberS{Value: rec.TenantKey},
		"blobRef":     &types.AttributeValueMemberS{Value: rec.BlobRef},
		"sizeBytes":   &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.SizeBytes, 10)},
		"contentKind": &types.AttributeValueMemberS{Value: rec.ContentKind},
		"savedAt":     &types.AttributeValueMemberS{Value: rec.SavedAt.UTC().Format(time.RFC3339Nano)},
		"seq":         &types.AttributeValueMemberN{Value: strconv.FormatInt(rec.Seq, 10)},
	}
}

// itemToSession converts a DynamoDB attribute map to a SessionRecord.
// Legacy items only carry tenantKey and inlinePayload.
func itemToSession(item map[string]types.AttributeValue) (domain.SessionRecord, error) {
	tenantKey, err := strAttr(item, "tenantKey")
	if err != nil {
		return domain.SessionRecord{}, err
	}
	rec := domain.SessionRecord{TenantKey: tenantKey}
	rec.BlobRef, _ = strAttr(item, "blobRef")             // absent in legacy items
	rec.InlinePayload, _ = strAttr(item, "inlinePayload") // absent in current items
	rec.ContentKind, _ = strAttr(item, "contentKind")

	if _, ok := item["sizeBytes"]; ok {
		if rec.SizeBytes, err = int64Attr(item, "sizeBytes"); err != nil {
			return domain.SessionRecord{}, err
		}
	}
	if _, ok := item["seq"]; ok {
		if rec.Seq, err = int64Attr(item, "seq"); err != nil {
			return domain.SessionRecord{}, err
		}
	}
	if savedAt, err := strAttr(item, "savedAt"); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, savedAt)
		if err != nil {
			return domain.SessionRecord{}, fmt.Errorf("repository: parse attribute %q: %w", "savedAt", err)
		}
		rec.SavedAt = ts
	}
	return rec, nil
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

func int64Attr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
