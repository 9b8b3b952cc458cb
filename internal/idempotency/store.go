package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
)

// Store records webhook deliveries so a redelivered notification that was already reconciled
// can be acknowledged without touching the orders table. It is an optimisation only: the
// order state machine stays the authority on whether an event applies.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a delivery is remembered
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for delivery entries.
// ttlWindow: retention window (e.g., 72*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// DeliveryKey builds the key for one provider notification, e.g.
// DeliveryKey("nowpayments", "5077125051", "finished").
func DeliveryKey(parts ...string) string {
	return strings.ToLower(strings.Join(parts, ":"))
}

// Begin claims a delivery. It returns (nil, nil) when the key is new and the caller owns the
// first attempt, or the existing record when the key was seen before; the caller should skip
// work only if the record is Done.
func (s *Store) Begin(ctx context.Context, key, orderNumber string) (*DeliveryRecord, error) {
	now := s.nowFunc().UTC()
	rec := DeliveryRecord{
		DeliveryKey: key,
		Status:      StatusInProgress,
		OrderNumber: orderNumber,
		Attempts:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Only create when attribute_not_exists(delivery_key)
		ConditionExpression: awsString("attribute_not_exists(delivery_key)"),
	})
	if err == nil {
		return nil, nil
	}

	var sc smithy.APIError
	if !errors.As(err, &sc) || sc.ErrorCode() != "ConditionalCheckFailedException" {
		return nil, fmt.Errorf("put item: %w", err)
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// expired between the put and the get; treat as new
		return nil, nil
	}
	return existing, nil
}

// Get retrieves a delivery record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*DeliveryRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       deliveryKey(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec DeliveryRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores the reconciliation outcome.
func (s *Store) MarkDone(ctx context.Context, key, outcome string, attempts int) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              deliveryKey(key),
		UpdateExpression: awsString("SET #s = :done, outcome = :outcome, attempts = :attempts, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":     &types.AttributeValueMemberS{Value: StatusDone},
			":outcome":  &types.AttributeValueMemberS{Value: outcome},
			":attempts": &types.AttributeValueMemberN{Value: strconv.Itoa(attempts)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark done): %w", err)
	}
	return nil
}

// MarkFailed marks the delivery as FAILED so the provider's redelivery runs it again.
func (s *Store) MarkFailed(ctx context.Context, key, note string, attempts int) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              deliveryKey(key),
		UpdateExpression: awsString("SET #s = :failed, note = :n, attempts = :attempts, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":   &types.AttributeValueMemberS{Value: StatusFailed},
			":n":        &types.AttributeValueMemberS{Value: note},
			":attempts": &types.AttributeValueMemberN{Value: strconv.Itoa(attempts)},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("update item (mark failed): %w", err)
	}
	return nil
}

func deliveryKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"delivery_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Helper
func awsString(s string) *string { return &s }
