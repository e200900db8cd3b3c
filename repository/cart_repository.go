package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/storesphere/checkout-service/models"
)

// CartRepository defines read access to a user's cart snapshot plus the
// post-settlement clear.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// DynamoCartRepository implements CartRepository against a DynamoDB table
// keyed by user_id, one item per user holding the full line list.
type DynamoCartRepository struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoCartRepository(client *dynamodb.Client, table string) *DynamoCartRepository {
	return &DynamoCartRepository{client: client, table: table}
}

type ddbCartLine struct {
	ProductID string  `dynamodbav:"id"`
	Name      string  `dynamodbav:"name"`
	Price     float64 `dynamodbav:"price"`
	Qty       int     `dynamodbav:"qty"`
}

type ddbCart struct {
	UserID    string        `dynamodbav:"user_id"`
	Items     []ddbCartLine `dynamodbav:"items"`
	UpdatedAt string        `dynamodbav:"updated_at,omitempty"`
}

// GetCart returns the user's cart, or nil when no cart item exists.
func (r *DynamoCartRepository) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.table,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var dc ddbCart
	if err := attributevalue.UnmarshalMap(out.Item, &dc); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	cart := &models.Cart{UserID: dc.UserID}
	for _, it := range dc.Items {
		cart.Items = append(cart.Items, models.CartLine{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.Price,
			Quantity:  it.Qty,
		})
	}
	if t, err := time.Parse(time.RFC3339, dc.UpdatedAt); err == nil {
		cart.UpdatedAt = t
	}
	return cart, nil
}

func (r *DynamoCartRepository) ClearCart(ctx context.Context, userID string) error {
	key, err := attributevalue.MarshalMap(map[string]string{"user_id": userID})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}
	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &r.table,
		Key:       key,
	})
	if err != nil {
		return fmt.Errorf("dynamodb DeleteItem failed: %w", err)
	}
	return nil
}
