package sender

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESSender sends email through Amazon SES. The sender address must be a
// verified SES identity.
type SESSender struct {
	client *sesv2.Client
	from   string
}

func NewSESSender(cfg sdkaws.Config, from string) (*SESSender, error) {
	if from == "" {
		return nil, fmt.Errorf("sender email address not set")
	}
	return &SESSender{client: sesv2.NewFromConfig(cfg), from: from}, nil
}

func (s *SESSender) SendEmail(ctx context.Context, to, subject, htmlBody string) (SendResult, error) {
	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &s.from,
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &subject},
				Body: &types.Body{
					Html: &types.Content{Data: &htmlBody},
				},
			},
		},
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("ses send failed: %w", err)
	}

	res := SendResult{SentAt: time.Now()}
	if out.MessageId != nil {
		res.MessageID = *out.MessageId
	}
	return res, nil
}
