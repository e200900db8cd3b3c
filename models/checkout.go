package models

import "time"

// ItemOutcome records what happened to one cart line during fulfillment.
type ItemOutcome struct {
	ProductID     string `json:"product_id"`
	Decremented   bool   `json:"decremented"`
	AlertFired    bool   `json:"alert_fired"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// CheckoutResult is the transient outcome of one checkout invocation. It is
// built fresh per call and never shared across invocations.
type CheckoutResult struct {
	Success         bool          `json:"success"`
	Message         string        `json:"message"`
	SettledQuantity int           `json:"settled_quantity"`
	SettledAmount   float64       `json:"settled_amount"`
	Items           []ItemOutcome `json:"items,omitempty"`
}

// CheckoutRequest identifies the buyer. Session lookup is handled upstream;
// identity arrives with the request.
type CheckoutRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	UserName  string `json:"user_name" binding:"required"`
	UserEmail string `json:"user_email" binding:"required,email"`
}

// SettledEvent is published after a successful settlement, best-effort.
type SettledEvent struct {
	EventID       string    `json:"event_id"`
	Event         string    `json:"event"`
	UserID        string    `json:"user_id"`
	TotalQuantity int       `json:"total_quantity"`
	TotalAmount   float64   `json:"total_amount"`
	Timestamp     time.Time `json:"timestamp"`
}

const EventCheckoutSettled = "checkout.settled"
