package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
)

var (
	// ErrStatusMismatch is returned when a conditional status update finds the order elsewhere.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
	// ErrDuplicateKey is returned when the idempotency key of a new order is already taken.
	ErrDuplicateKey = errors.New("idempotency key already used")
)

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	userIndex string // GSI: user_id hash, created_at range
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, userIndex string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		userIndex: userIndex,
		nowFunc:   time.Now,
	}
}

func (s *Store) stamp(order *Order) {
	now := s.nowFunc().UTC()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
}

// Create inserts a new order. order.OrderID must be set by the caller.
func (s *Store) Create(ctx context.Context, order Order) error {
	s.stamp(&order)
	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(order_id)"),
	})
	if err != nil {
		return fmt.Errorf("put order: %w", err)
	}
	return nil
}

// CreateWithIdempotencyTransaction atomically creates:
//   - idempotency record in idempotencyTable (with ConditionExpression attribute_not_exists(idempotency_key))
//   - order record in orders table
//
// idempotencyItem must marshal to a map holding idempotency_key. A taken
// key yields ErrDuplicateKey and nothing is written.
func (s *Store) CreateWithIdempotencyTransaction(ctx context.Context, idempotencyTable string, idempotencyItem interface{}, order Order, ttlWindow time.Duration) error {
	idempMap, err := attributevalue.MarshalMap(idempotencyItem)
	if err != nil {
		return fmt.Errorf("marshal idempotency item: %w", err)
	}
	if _, ok := idempMap["expires_at"]; !ok && ttlWindow > 0 {
		expires := s.nowFunc().Add(ttlWindow).Unix()
		idempMap["expires_at"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expires)}
	}

	s.stamp(&order)
	orderMap, err := attributevalue.MarshalMap(order)
	if err != nil {
		return fmt.Errorf("marshal order item: %w", err)
	}

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &idempotencyTable,
					Item:                idempMap,
					ConditionExpression: aws.String("attribute_not_exists(idempotency_key)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                orderMap,
					ConditionExpression: aws.String("attribute_not_exists(order_id)"),
				},
			},
		},
	})
	if err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && idempotencyConflict(tce) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("transact write: %w", err)
	}
	return nil
}

// idempotencyConflict reports whether the first transact item's condition failed.
// An exception without reasons is treated as a conflict.
func idempotencyConflict(tce *types.TransactionCanceledException) bool {
	if len(tce.CancellationReasons) == 0 {
		return true
	}
	r := tce.CancellationReasons[0]
	return r.Code != nil && *r.Code == "ConditionalCheckFailed"
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            orderKey(orderID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// FindRecentUnpaid lists the user's unpaid orders in an open status created at or after since.
func (s *Store) FindRecentUnpaid(ctx context.Context, userID string, since time.Time) ([]Order, error) {
	values := map[string]types.AttributeValue{
		":u":     &types.AttributeValueMemberS{Value: userID},
		":since": &types.AttributeValueMemberS{Value: since.UTC().Format(time.RFC3339Nano)},
		":f":     &types.AttributeValueMemberBOOL{Value: false},
	}
	for k, v := range openStatusValues() {
		values[k] = v
	}
	input := &dyn.QueryInput{
		TableName:                 &s.tableName,
		IndexName:                 &s.userIndex,
		KeyConditionExpression:    aws.String("user_id = :u AND created_at >= :since"),
		FilterExpression:          aws.String("is_paid = :f AND #s IN (:s0, :s1, :s2)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
	}

	var out []Order
	for {
		res, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query recent orders: %w", err)
		}
		for _, item := range res.Items {
			var o Order
			if err := attributevalue.UnmarshalMap(item, &o); err != nil {
				return nil, fmt.Errorf("unmarshal order: %w", err)
			}
			// string keys order sub-second timestamps loosely
			if o.CreatedAt.Before(since) {
				continue
			}
			out = append(out, o)
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	return out, nil
}

// Reconcile rewrites payment method, status and total of an unpaid open
// order and returns the updated order. ErrStatusMismatch means the order was
// paid or left the open states in the meantime.
func (s *Store) Reconcile(ctx context.Context, orderID string, r Reconciliation) (*Order, error) {
	now := s.nowFunc().UTC()
	values := map[string]types.AttributeValue{
		":pm": &types.AttributeValueMemberS{Value: r.PaymentMethod},
		":st": &types.AttributeValueMemberS{Value: r.Status},
		":t":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", r.Total)},
		":ua": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		":f":  &types.AttributeValueMemberBOOL{Value: false},
	}
	for k, v := range openStatusValues() {
		values[k] = v
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       orderKey(orderID),
		UpdateExpression:          aws.String("SET payment_method = :pm, #s = :st, total = :t, updated_at = :ua"),
		ConditionExpression:       aws.String("is_paid = :f AND #s IN (:s0, :s1, :s2)"),
		ExpressionAttributeNames:  map[string]string{"#s": "status"},
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrStatusMismatch
		}
		return nil, fmt.Errorf("reconcile order: %w", err)
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Attributes, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// SetCrashCashEarned records the reward credited for the order.
func (s *Store) SetCrashCashEarned(ctx context.Context, orderID string, amount float64) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              orderKey(orderID),
		UpdateExpression: aws.String("SET crash_cash_earned = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", amount)},
		},
	})
	if err != nil {
		return fmt.Errorf("set crash cash: %w", err)
	}
	return nil
}

// IncrementAttempts increases the attempts counter by 1 (notification retries).
func (s *Store) IncrementAttempts(ctx context.Context, orderID string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              orderKey(orderID),
		UpdateExpression: aws.String("SET attempts = if_not_exists(attempts, :zero) + :inc, updated_at = :ua"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero": &types.AttributeValueMemberN{Value: "0"},
			":inc":  &types.AttributeValueMemberN{Value: "1"},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}
	return nil
}

func orderKey(orderID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"order_id": &types.AttributeValueMemberS{Value: orderID},
	}
}

func openStatusValues() map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(OpenStatuses))
	for i, st := range OpenStatuses {
		out[fmt.Sprintf(":s%d", i)] = &types.AttributeValueMemberS{Value: st}
	}
	return out
}
