package accounts

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDynamo struct {
	aws.DynamoDBAPI
	addresses map[string]map[string]types.AttributeValue
	carts     map[string]bool
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	id := in.Key["address_id"].(*types.AttributeValueMemberS).Value
	return &dyn.GetItemOutput{Item: m.addresses[id]}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dyn.DeleteItemInput, optFns ...func(*dyn.Options)) (*dyn.DeleteItemOutput, error) {
	delete(m.carts, in.Key["user_id"].(*types.AttributeValueMemberS).Value)
	return &dyn.DeleteItemOutput{}, nil
}

func TestAddress(t *testing.T) {
	item, err := attributevalue.MarshalMap(Address{AddressID: "a1", UserID: "u1", Name: "Home", Line1: "1 Main St", City: "Pune", Zip: "411001"})
	require.NoError(t, err)
	m := &mockDynamo{addresses: map[string]map[string]types.AttributeValue{"a1": item}}
	s := NewStore(m, "addresses", "carts")
	ctx := context.Background()

	a, err := s.Address(ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Pune", a.City)

	_, err = s.Address(ctx, "u2", "a1")
	assert.ErrorIs(t, err, ErrAddressNotFound, "someone else's address")

	_, err = s.Address(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrAddressNotFound)
}

func TestClearCart(t *testing.T) {
	m := &mockDynamo{carts: map[string]bool{"u1": true, "u2": true}}
	s := NewStore(m, "addresses", "carts")

	require.NoError(t, s.ClearCart(context.Background(), "u1"))
	require.NoError(t, s.ClearCart(context.Background(), "u3"))
	assert.Equal(t, map[string]bool{"u2": true}, m.carts)
}
