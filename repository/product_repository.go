package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/storesphere/checkout-service/models"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductRepository defines product persistence. DecrementStock is the only
// way stock is mutated during checkout and must be atomic at the store:
// read-then-write would lose updates under concurrent checkouts.
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	DecrementStock(ctx context.Context, productID string, quantity int) (*models.Product, error)
}

// DynamoProductRepository implements ProductRepository against a DynamoDB
// table keyed by product_id.
type DynamoProductRepository struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoProductRepository(client *dynamodb.Client, table string) *DynamoProductRepository {
	return &DynamoProductRepository{client: client, table: table}
}

type ddbProduct struct {
	ProductID string  `dynamodbav:"product_id"`
	Name      string  `dynamodbav:"name"`
	Price     float64 `dynamodbav:"price"`
	Stock     int     `dynamodbav:"stock"`
	Threshold int     `dynamodbav:"threshold"`
	UpdatedAt string  `dynamodbav:"updated_at,omitempty"`
}

func (r *DynamoProductRepository) Create(ctx context.Context, product *models.Product) error {
	dp := ddbProduct{
		ProductID: product.ProductID,
		Name:      product.Name,
		Price:     product.Price,
		Stock:     product.Stock,
		Threshold: product.Threshold,
		UpdatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	item, err := attributevalue.MarshalMap(dp)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{TableName: &r.table, Item: item})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

// DecrementStock subtracts quantity from stock and returns the
// post-decrement product in the same round trip. The condition guards both
// missing products and oversells; DynamoDB applies the expression
// atomically, which is the sole lost-update protection for concurrent
// checkouts on the same product.
func (r *DynamoProductRepository) DecrementStock(ctx context.Context, productID string, quantity int) (*models.Product, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": productID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	expr := "SET stock = stock - :q, updated_at = :now"
	condExpr := "attribute_exists(product_id) AND stock >= :q"

	qtyAV, _ := attributevalue.Marshal(quantity)
	nowAV, _ := attributevalue.Marshal(time.Now().UTC().Format(time.RFC3339))

	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.table,
		Key:                 key,
		UpdateExpression:    &expr,
		ConditionExpression: &condExpr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":   qtyAV,
			":now": nowAV,
		},
		ReturnValues:                        types.ReturnValueAllNew,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return nil, ErrNotFound
			}
			return nil, ErrInsufficientStock
		}
		return nil, fmt.Errorf("decrement stock failed: %w", err)
	}

	var dp ddbProduct
	if err := attributevalue.UnmarshalMap(out.Attributes, &dp); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}

	p := &models.Product{
		ProductID: dp.ProductID,
		Name:      dp.Name,
		Price:     dp.Price,
		Stock:     dp.Stock,
		Threshold: dp.Threshold,
	}
	if t, err := time.Parse(time.RFC3339, dp.UpdatedAt); err == nil {
		p.UpdatedAt = t
	}
	return p, nil
}
