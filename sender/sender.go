package sender

import (
	"context"
	"time"
)

type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// EmailSender delivers customer-facing email. Implementations must return
// an error rather than partially send; the caller decides what a failure
// means (for receipts it means log and move on).
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, htmlBody string) (SendResult, error)
}
