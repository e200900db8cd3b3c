package controllers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/storesphere/checkout-service/controllers"
	"github.com/storesphere/checkout-service/models"
	"github.com/storesphere/checkout-service/services"
)

type stubCheckout struct {
	result  *models.CheckoutResult
	gotReq  models.CheckoutRequest
	gotIdem string
}

func (s *stubCheckout) Checkout(_ context.Context, req models.CheckoutRequest, idempotencyKey string) *models.CheckoutResult {
	s.gotReq = req
	s.gotIdem = idempotencyKey
	return s.result
}

func performCheckout(t *testing.T, stub *stubCheckout, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	ctrl := controllers.NewCheckoutController(stub)
	r.POST("/api/checkout", ctrl.Checkout)

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const validBody = `{"user_id":"u1","user_name":"Asha","user_email":"asha@example.com"}`

func TestCheckoutController_Success(t *testing.T) {
	stub := &stubCheckout{result: &models.CheckoutResult{Success: true, Message: services.MsgSettled, SettledQuantity: 3}}

	w := performCheckout(t, stub, validBody, map[string]string{"Idempotency-Key": "abc"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Equal(t, "u1", stub.gotReq.UserID)
	assert.Equal(t, "abc", stub.gotIdem)
}

func TestCheckoutController_EmptyCartIsNotAnHTTPError(t *testing.T) {
	stub := &stubCheckout{result: &models.CheckoutResult{Success: false, Message: services.MsgCartEmpty}}

	w := performCheckout(t, stub, validBody, nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), services.MsgCartEmpty)
}

func TestCheckoutController_SettlementFailure(t *testing.T) {
	stub := &stubCheckout{result: &models.CheckoutResult{Success: false, Message: services.MsgSettlementFailed}}

	w := performCheckout(t, stub, validBody, nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestCheckoutController_Duplicate(t *testing.T) {
	stub := &stubCheckout{result: &models.CheckoutResult{Success: false, Message: services.MsgDuplicate}}

	w := performCheckout(t, stub, validBody, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCheckoutController_InvalidPayload(t *testing.T) {
	stub := &stubCheckout{result: &models.CheckoutResult{Success: true}}

	w := performCheckout(t, stub, `{"user_id":"u1"}`, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
