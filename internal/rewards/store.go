package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
)

// ErrAlreadyIssued is returned by Put when the reward id is taken.
var ErrAlreadyIssued = errors.New("reward already issued")

// Store is the CrashCash reward ledger.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

// NewStore creates a reward Store.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get returns the reward with id, or (nil, nil).
func (s *Store) Get(ctx context.Context, id string) (*Reward, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"reward_id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r Reward
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshal reward: %w", err)
	}
	return &r, nil
}

// Put writes r unless a reward with the same id exists.
func (s *Store) Put(ctx context.Context, r Reward) error {
	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshal reward: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(reward_id)"),
	})
	if err != nil {
		var ae smithy.APIError
		if errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrAlreadyIssued
		}
		return fmt.Errorf("put reward: %w", err)
	}
	return nil
}
