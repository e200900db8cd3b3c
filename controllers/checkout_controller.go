package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storesphere/checkout-service/models"
	"github.com/storesphere/checkout-service/services"
)

// CheckoutRunner is the surface the controller needs from the orchestrator.
type CheckoutRunner interface {
	Checkout(ctx context.Context, req models.CheckoutRequest, idempotencyKey string) *models.CheckoutResult
}

type CheckoutController struct {
	checkout CheckoutRunner
}

func NewCheckoutController(checkout CheckoutRunner) *CheckoutController {
	return &CheckoutController{checkout: checkout}
}

// Checkout handles POST /api/checkout.
func (cc *CheckoutController) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid payload"})
		return
	}

	idemKey := c.GetHeader("Idempotency-Key")
	result := cc.checkout.Checkout(c.Request.Context(), req, idemKey)

	c.JSON(statusFor(result), result)
}

// statusFor maps the workflow outcome to an HTTP status. An empty cart is
// unsuccessful but expected, so it stays a 200 like the rest of the happy
// path.
func statusFor(result *models.CheckoutResult) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.Message {
	case services.MsgCartEmpty:
		return http.StatusOK
	case services.MsgDuplicate:
		return http.StatusConflict
	case services.MsgCartUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
