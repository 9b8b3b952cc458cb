package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
)

// Store encapsulates operations on the orders table.
// Every mutation is a single conditional DynamoDB write, so per-order serialization holds
// across process instances without in-process locks.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create inserts a new order. Returns ErrDuplicateOrderNumber if the number is taken.
func (s *Store) Create(ctx context.Context, o Order) error {
	now := s.nowFunc().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = o.CreatedAt
	if o.Version == 0 {
		o.Version = 1
	}

	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(order_number)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateOrderNumber, o.OrderNumber)
		}
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// Get fetches an order by number. Returns ErrNotFound if absent.
func (s *Store) Get(ctx context.Context, orderNumber string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderNumber),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, orderNumber)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// PaymentRef is the provider handle attached to an order after session creation.
type PaymentRef struct {
	ProviderRef string
	PaymentURL  string
	PayAddress  string
	PayAmount   string
	PayCurrency string
}

// AttachPayment records the provider handle on an existing order. It never touches the
// status fields, so it does not bump the version. Returns ErrPaymentAlreadyAttached if a
// reference is already present and ErrNotFound if the row is gone.
func (s *Store) AttachPayment(ctx context.Context, orderNumber string, ref PaymentRef) (*Order, error) {
	values := map[string]types.AttributeValue{
		":provider_ref": &types.AttributeValueMemberS{Value: ref.ProviderRef},
		":updated_at":   timeValue(s.nowFunc()),
	}
	expr := "SET provider_ref = :provider_ref, updated_at = :updated_at"
	optional := []struct{ attr, value string }{
		{"payment_url", ref.PaymentURL},
		{"pay_address", ref.PayAddress},
		{"pay_amount", ref.PayAmount},
		{"pay_currency", ref.PayCurrency},
	}
	for _, f := range optional {
		if f.value == "" {
			continue
		}
		expr += fmt.Sprintf(", %s = :%s", f.attr, f.attr)
		values[":"+f.attr] = &types.AttributeValueMemberS{Value: f.value}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderNumber),
		UpdateExpression:          &expr,
		ConditionExpression:       awsString("attribute_exists(order_number) AND attribute_not_exists(provider_ref)"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			if _, getErr := s.Get(ctx, orderNumber); errors.Is(getErr, ErrNotFound) {
				return nil, getErr
			}
			return nil, fmt.Errorf("%w: %s", ErrPaymentAlreadyAttached, orderNumber)
		}
		return nil, fmt.Errorf("attach payment: %w", err)
	}
	return unmarshalOrder(out.Attributes)
}

// ApplyTransition commits an applied decision against the version the caller read.
// Status fields, history append, version bump and updated_at change in one UpdateItem, so no
// reader can observe a history entry without its matching status. Returns ErrVersionConflict
// when another writer got there first.
func (s *Store) ApplyTransition(ctx context.Context, current Order, d Decision) (*Order, error) {
	if d.Outcome != OutcomeApplied {
		return nil, fmt.Errorf("apply transition: decision is %s", d.Outcome)
	}

	entry, err := attributevalue.Marshal(d.Entry)
	if err != nil {
		return nil, fmt.Errorf("marshal history entry: %w", err)
	}

	expr := "SET order_status = :order_status, payment_status = :payment_status, can_be_cancelled = :can_be_cancelled, " +
		"status_history = list_append(status_history, :history_entry), version = :next_version, updated_at = :updated_at"
	values := map[string]types.AttributeValue{
		":order_status":     &types.AttributeValueMemberS{Value: string(d.To.Order)},
		":payment_status":   &types.AttributeValueMemberS{Value: string(d.To.Payment)},
		":can_be_cancelled": &types.AttributeValueMemberBOOL{Value: d.CanBeCancelled},
		":history_entry":    &types.AttributeValueMemberL{Value: []types.AttributeValue{entry}},
		":next_version":     numberValue(current.Version + 1),
		":expected_version": numberValue(current.Version),
		":updated_at":       timeValue(s.nowFunc()),
	}

	switch d.Event.Kind {
	case EventPaymentConfirmed:
		// settlement is written once; a later confirmation can never rewrite it
		if d.Event.SettledAmount != "" {
			expr += ", settled_amount = if_not_exists(settled_amount, :settled_amount)"
			values[":settled_amount"] = &types.AttributeValueMemberS{Value: d.Event.SettledAmount}
		}
		if d.Event.SettledCurrency != "" {
			expr += ", settled_currency = if_not_exists(settled_currency, :settled_currency)"
			values[":settled_currency"] = &types.AttributeValueMemberS{Value: d.Event.SettledCurrency}
		}
	case EventShipmentRecorded:
		if d.Event.Carrier != "" {
			expr += ", shipping_carrier = :shipping_carrier"
			values[":shipping_carrier"] = &types.AttributeValueMemberS{Value: d.Event.Carrier}
		}
		if d.Event.TrackingNumber != "" {
			expr += ", tracking_number = :tracking_number"
			values[":tracking_number"] = &types.AttributeValueMemberS{Value: d.Event.TrackingNumber}
		}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(current.OrderNumber),
		UpdateExpression:          &expr,
		ConditionExpression:       awsString("version = :expected_version"),
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return nil, fmt.Errorf("%w: %s at version %d", ErrVersionConflict, current.OrderNumber, current.Version)
		}
		return nil, fmt.Errorf("update order: %w", err)
	}
	return unmarshalOrder(out.Attributes)
}

// DeletePlaceholder removes an order that never got a provider handle and never moved.
// It is the rollback for a failed payment-handle creation; any other order is kept.
func (s *Store) DeletePlaceholder(ctx context.Context, orderNumber string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 orderKey(orderNumber),
		ConditionExpression: awsString("version = :placeholder_version AND attribute_not_exists(provider_ref)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":placeholder_version": numberValue(1),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("%w: %s", ErrNotPlaceholder, orderNumber)
		}
		return fmt.Errorf("delete placeholder: %w", err)
	}
	return nil
}

func unmarshalOrder(item map[string]types.AttributeValue) (*Order, error) {
	var o Order
	if err := attributevalue.UnmarshalMap(item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

func orderKey(orderNumber string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_number": &types.AttributeValueMemberS{Value: orderNumber},
	}
}

// isConditionFailed matches both the typed exception and a generic API error carrying its code.
func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}

func timeValue(t time.Time) types.AttributeValue {
	av, err := attributevalue.Marshal(t.UTC())
	if err != nil {
		return &types.AttributeValueMemberS{Value: t.UTC().Format(time.RFC3339Nano)}
	}
	return av
}

func numberValue(n int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
