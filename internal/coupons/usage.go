package coupons

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
)

// Usage is one user's history with one coupon code.
type Usage struct {
	UserID     string    `dynamodbav:"user_id"` // PK
	Code       string    `dynamodbav:"code"`    // SK
	UseCount   int       `dynamodbav:"use_count"`
	Used       bool      `dynamodbav:"used"`
	LastUsedAt time.Time `dynamodbav:"last_used_at"`
}

// Store tracks coupon redemptions: per-user usage rows and the global
// used_count on the coupon definition.
type Store struct {
	client       aws.DynamoDBAPI
	usageTable   string
	couponsTable string
	nowFunc      func() time.Time
}

// NewStore creates a coupon usage Store.
func NewStore(client aws.DynamoDBAPI, usageTable, couponsTable string) *Store {
	return &Store{
		client:       client,
		usageTable:   usageTable,
		couponsTable: couponsTable,
		nowFunc:      time.Now,
	}
}

// Usage returns the user's usage row for code, or (nil, nil) if the user never redeemed it.
func (s *Store) Usage(ctx context.Context, userID, code string) (*Usage, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.usageTable,
		Key:       usageKey(userID, code),
	})
	if err != nil {
		return nil, fmt.Errorf("get coupon usage: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var u Usage
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal coupon usage: %w", err)
	}
	return &u, nil
}

// CheckUser reports ErrCouponUserExhausted when u has used up def's per-user allowance.
// A zero PerUserLimit allows one redemption.
func CheckUser(def pricing.CouponDefinition, u *Usage) error {
	if u == nil {
		return nil
	}
	if u.Used || u.UseCount >= perUserLimit(def) {
		return pricing.ErrCouponUserExhausted
	}
	return nil
}

// Record counts one redemption of def by userID, flagging the row used once
// the per-user allowance is spent, and bumps the coupon's global used_count.
func (s *Store) Record(ctx context.Context, userID string, def pricing.CouponDefinition) error {
	code := pricing.NormalizeCode(def.Code)
	now := s.nowFunc().UTC()

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.usageTable,
		Key:              usageKey(userID, code),
		UpdateExpression: aws.String("ADD use_count :one SET last_used_at = :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return fmt.Errorf("record coupon usage: %w", err)
	}

	count := 0
	if n, ok := out.Attributes["use_count"].(*types.AttributeValueMemberN); ok {
		if count, err = strconv.Atoi(n.Value); err != nil {
			return fmt.Errorf("parse coupon use count %q: %w", n.Value, err)
		}
	}
	if count >= perUserLimit(def) {
		_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
			TableName:        &s.usageTable,
			Key:              usageKey(userID, code),
			UpdateExpression: aws.String("SET used = :t"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":t": &types.AttributeValueMemberBOOL{Value: true},
			},
		})
		if err != nil {
			return fmt.Errorf("mark coupon used: %w", err)
		}
	}

	return s.incrementUsedCount(ctx, code)
}

func (s *Store) incrementUsedCount(ctx context.Context, code string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName: &s.couponsTable,
		Key: map[string]types.AttributeValue{
			"code": &types.AttributeValueMemberS{Value: code},
		},
		UpdateExpression:    aws.String("ADD used_count :one"),
		ConditionExpression: aws.String("attribute_exists(code)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return fmt.Errorf("increment coupon used_count: %w", err)
	}
	return nil
}

func perUserLimit(def pricing.CouponDefinition) int {
	if def.PerUserLimit <= 0 {
		return 1
	}
	return def.PerUserLimit
}

func usageKey(userID, code string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"user_id": &types.AttributeValueMemberS{Value: userID},
		"code":    &types.AttributeValueMemberS{Value: pricing.NormalizeCode(code)},
	}
}
