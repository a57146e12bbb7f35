package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
)

// ErrAddressNotFound is returned when the address is missing or belongs to someone else.
var ErrAddressNotFound = errors.New("address not found")

// Address is a saved delivery address.
type Address struct {
	AddressID string `json:"id" dynamodbav:"address_id"` // PK
	UserID    string `json:"userId" dynamodbav:"user_id"`
	Name      string `json:"name" dynamodbav:"name"`
	Phone     string `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	Line1     string `json:"line1" dynamodbav:"line1"`
	Line2     string `json:"line2,omitempty" dynamodbav:"line2,omitempty"`
	City      string `json:"city" dynamodbav:"city"`
	State     string `json:"state,omitempty" dynamodbav:"state,omitempty"`
	Zip       string `json:"zip" dynamodbav:"zip"`
}

// Store reads user addresses and clears carts.
type Store struct {
	client         aws.DynamoDBAPI
	addressesTable string
	cartsTable     string
}

// NewStore creates an accounts Store.
func NewStore(client aws.DynamoDBAPI, addressesTable, cartsTable string) *Store {
	return &Store{client: client, addressesTable: addressesTable, cartsTable: cartsTable}
}

// Address returns the user's address by id.
func (s *Store) Address(ctx context.Context, userID, addressID string) (*Address, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.addressesTable,
		Key: map[string]types.AttributeValue{
			"address_id": &types.AttributeValueMemberS{Value: addressID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrAddressNotFound
	}
	var a Address
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, fmt.Errorf("unmarshal address: %w", err)
	}
	if a.UserID != userID {
		return nil, ErrAddressNotFound
	}
	return &a, nil
}

// ClearCart deletes the user's cart. Clearing an absent cart is not an error.
func (s *Store) ClearCart(ctx context.Context, userID string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &s.cartsTable,
		Key: map[string]types.AttributeValue{
			"user_id": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
