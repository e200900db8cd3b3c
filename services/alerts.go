package services

import (
	"context"
	"fmt"

	awspkg "github.com/storesphere/checkout-service/pkg/aws"

	"github.com/storesphere/checkout-service/models"
)

// Alerter notifies admins that a product's stock dropped below its
// threshold. Delivery is fire-and-forget from the workflow's point of view.
type Alerter interface {
	LowStock(ctx context.Context, product *models.Product) error
}

// SNSAlerter publishes low-stock alerts to an SNS topic.
type SNSAlerter struct {
	publisher awspkg.SNSPublisher
	topicArn  string
}

func NewSNSAlerter(publisher awspkg.SNSPublisher, topicArn string) *SNSAlerter {
	return &SNSAlerter{publisher: publisher, topicArn: topicArn}
}

func (a *SNSAlerter) LowStock(ctx context.Context, product *models.Product) error {
	reorder := product.Threshold - product.Stock + 10
	message := fmt.Sprintf(
		"ALERT: Low Stock for %s!\nCurrent Stock: %d\nThreshold: %d\nPlease add at least %d items.",
		product.Name, product.Stock, product.Threshold, reorder,
	)
	subject := fmt.Sprintf("Low Stock Alert: %s", product.Name)

	return a.publisher.Publish(ctx, a.topicArn, subject, []byte(message))
}
