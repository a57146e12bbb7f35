package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-crashcart-checkout/internal/aws"
	"go.uber.org/zap"
)

// ErrInsufficientStock is returned when a conditional decrement finds fewer
// units than requested, either in base stock or in the flash-sale pool.
var ErrInsufficientStock = errors.New("insufficient stock")

// batchGetLimit is DynamoDB's BatchGetItem key limit.
const batchGetLimit = 100

// Store reads and mutates products and flash sales.
type Store struct {
	client          aws.DynamoDBAPI
	productsTable   string
	flashSalesTable string
	logger          *zap.Logger
}

// NewStore creates a catalog Store.
func NewStore(client aws.DynamoDBAPI, productsTable, flashSalesTable string, logger *zap.Logger) *Store {
	return &Store{
		client:          client,
		productsTable:   productsTable,
		flashSalesTable: flashSalesTable,
		logger:          logger,
	}
}

// Products fetches the given products keyed by id. Unknown ids are absent from the result.
func (s *Store) Products(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	for start := 0; start < len(ids); start += batchGetLimit {
		end := min(start+batchGetLimit, len(ids))

		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, id := range ids[start:end] {
			keys = append(keys, map[string]types.AttributeValue{
				"product_id": &types.AttributeValueMemberS{Value: id},
			})
		}
		request := map[string]types.KeysAndAttributes{
			s.productsTable: {Keys: keys},
		}

		for len(request) > 0 {
			res, err := s.client.BatchGetItem(ctx, &dyn.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, fmt.Errorf("batch get products: %w", err)
			}
			for _, item := range res.Responses[s.productsTable] {
				var p Product
				if err := attributevalue.UnmarshalMap(item, &p); err != nil {
					return nil, fmt.Errorf("unmarshal product: %w", err)
				}
				out[p.ProductID] = p
			}
			request = res.UnprocessedKeys
		}
	}
	return out, nil
}

// ActiveFlashSales returns sales that qualify at now.
func (s *Store) ActiveFlashSales(ctx context.Context, now time.Time) ([]FlashSale, error) {
	input := &dyn.ScanInput{
		TableName:        &s.flashSalesTable,
		FilterExpression: aws.String("is_active = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	}

	var sales []FlashSale
	for {
		res, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan flash sales: %w", err)
		}
		for _, item := range res.Items {
			var f FlashSale
			if err := attributevalue.UnmarshalMap(item, &f); err != nil {
				return nil, fmt.Errorf("unmarshal flash sale: %w", err)
			}
			// window bounds are compared as times, not as stored strings
			if f.Qualifies(now) {
				sales = append(sales, f)
			}
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = res.LastEvaluatedKey
	}
	return sales, nil
}

// Reserve decrements product stock by qty, and when saleID is set the sale's
// remaining pool for the product, in one transaction. Either condition
// failing yields ErrInsufficientStock and nothing is written. Once the
// transaction commits the reservation stands; the in_stock flag is
// maintained best effort.
func (s *Store) Reserve(ctx context.Context, productID string, qty int, saleID string) error {
	q := &types.AttributeValueMemberN{Value: strconv.Itoa(qty)}
	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           &s.productsTable,
				Key:                 productKey(productID),
				UpdateExpression:    aws.String("SET quantity = quantity - :q"),
				ConditionExpression: aws.String("attribute_exists(product_id) AND quantity >= :q"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":q": q,
				},
			},
		},
	}
	if saleID != "" {
		items = append(items, s.saleUpdate(saleID, productID, qty, true))
	}

	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items}); err != nil {
		var tce *types.TransactionCanceledException
		if errors.As(err, &tce) && conditionFailed(tce) {
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, productID)
		}
		return fmt.Errorf("reserve stock: %w", err)
	}

	if err := s.markSoldOut(ctx, productID); err != nil {
		s.logger.Warn("in_stock flag not updated after reserve", zap.String("product_id", productID), zap.Error(err))
	}
	return nil
}

// Release returns qty units to the product (and sale pool) after a reservation
// that did not end in a committed order.
func (s *Store) Release(ctx context.Context, productID string, qty int, saleID string) error {
	q := &types.AttributeValueMemberN{Value: strconv.Itoa(qty)}
	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           &s.productsTable,
				Key:                 productKey(productID),
				UpdateExpression:    aws.String("SET quantity = quantity + :q"),
				ConditionExpression: aws.String("attribute_exists(product_id)"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":q": q,
				},
			},
		},
	}
	if saleID != "" {
		items = append(items, s.saleUpdate(saleID, productID, qty, false))
	}
	if _, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: items}); err != nil {
		return fmt.Errorf("release stock: %w", err)
	}
	if err := s.setInStock(ctx, productID, "quantity > :zero", true); err != nil {
		s.logger.Warn("in_stock flag not updated after release", zap.String("product_id", productID), zap.Error(err))
	}
	return nil
}

func (s *Store) saleUpdate(saleID, productID string, qty int, reserve bool) types.TransactWriteItem {
	update := &types.Update{
		TableName: &s.flashSalesTable,
		Key: map[string]types.AttributeValue{
			"sale_id": &types.AttributeValueMemberS{Value: saleID},
		},
		ExpressionAttributeNames: map[string]string{"#p": productID},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":    &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	}
	if reserve {
		update.UpdateExpression = aws.String("SET remaining.#p = remaining.#p - :q, sold = if_not_exists(sold, :zero) + :q")
		update.ConditionExpression = aws.String("remaining.#p >= :q")
	} else {
		update.UpdateExpression = aws.String("SET remaining.#p = remaining.#p + :q, sold = if_not_exists(sold, :zero) - :q")
	}
	return types.TransactWriteItem{Update: update}
}

// markSoldOut clears in_stock once quantity reaches zero. A failed condition
// means units are left and in_stock is already true.
func (s *Store) markSoldOut(ctx context.Context, productID string) error {
	return s.setInStock(ctx, productID, "quantity <= :zero", false)
}

func (s *Store) setInStock(ctx context.Context, productID, cond string, inStock bool) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.productsTable,
		Key:                 productKey(productID),
		UpdateExpression:    aws.String("SET in_stock = :v"),
		ConditionExpression: aws.String(cond),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v":    &types.AttributeValueMemberBOOL{Value: inStock},
			":zero": &types.AttributeValueMemberN{Value: "0"},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil
		}
		return fmt.Errorf("set in_stock: %w", err)
	}
	return nil
}

func productKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: id},
	}
}

func conditionFailed(tce *types.TransactionCanceledException) bool {
	if len(tce.CancellationReasons) == 0 {
		return true
	}
	for _, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return true
		}
	}
	return false
}
