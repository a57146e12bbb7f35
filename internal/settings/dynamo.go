package settings

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
	"github.com/imrishuroy/go-crashcart-checkout/internal/pricing"
)

// feesItem is the single settings row holding the fee schedule.
type feesItem struct {
	SettingID string              `dynamodbav:"setting_id"` // PK, always "fees"
	Schedule  pricing.FeeSchedule `dynamodbav:"schedule"`
}

// DynamoSource reads configuration straight from DynamoDB.
type DynamoSource struct {
	client        aws.DynamoDBAPI
	settingsTable string
	couponsTable  string
}

// NewDynamoSource creates a DynamoSource.
func NewDynamoSource(client aws.DynamoDBAPI, settingsTable, couponsTable string) *DynamoSource {
	return &DynamoSource{client: client, settingsTable: settingsTable, couponsTable: couponsTable}
}

var _ Provider = (*DynamoSource)(nil)

// FeeSchedule returns the stored schedule, or the built-in default when none is stored.
func (s *DynamoSource) FeeSchedule(ctx context.Context) (pricing.FeeSchedule, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.settingsTable,
		Key: map[string]types.AttributeValue{
			"setting_id": &types.AttributeValueMemberS{Value: string(FeesKey)},
		},
	})
	if err != nil {
		return pricing.FeeSchedule{}, fmt.Errorf("get fee schedule: %w", err)
	}
	if len(out.Item) == 0 {
		return pricing.DefaultFeeSchedule(), nil
	}
	var item feesItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return pricing.FeeSchedule{}, fmt.Errorf("unmarshal fee schedule: %w", err)
	}
	return item.Schedule, nil
}

// Coupon fetches a coupon definition by code.
func (s *DynamoSource) Coupon(ctx context.Context, code string) (*pricing.CouponDefinition, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.couponsTable,
		Key: map[string]types.AttributeValue{
			"code": &types.AttributeValueMemberS{Value: pricing.NormalizeCode(code)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var def pricing.CouponDefinition
	if err := attributevalue.UnmarshalMap(out.Item, &def); err != nil {
		return nil, fmt.Errorf("unmarshal coupon: %w", err)
	}
	return &def, nil
}

// Invalidate is a no-op: nothing is cached.
func (s *DynamoSource) Invalidate(ctx context.Context, keys ...Key) error { return nil }
