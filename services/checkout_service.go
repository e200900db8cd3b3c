package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storesphere/checkout-service/kafka"
	"github.com/storesphere/checkout-service/models"
	awspkg "github.com/storesphere/checkout-service/pkg/aws"
	"github.com/storesphere/checkout-service/repository"
	"github.com/storesphere/checkout-service/sender"
)

// Result messages exposed to the caller. Only the empty-cart and
// settlement branches flip the Success flag; everything else is absorbed
// where it happens.
const (
	MsgCartEmpty        = "cart empty"
	MsgCartUnavailable  = "failed to fetch cart"
	MsgSettlementFailed = "failed to record payment"
	MsgDuplicate        = "duplicate checkout request"
	MsgSettled          = "payment recorded"
)

const defaultCallTimeout = 10 * time.Second

// idempotencyTTL bounds how long a claimed checkout key blocks replays.
const idempotencyTTL = 24 * time.Hour

// CheckoutService coordinates one checkout: resolve the cart, decrement
// stock per line, settle the ledger, then fire the best-effort
// notifications. Stock decrements commit independently per item and are
// not rolled back if settlement later fails; that window is accepted.
type CheckoutService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	ledger   repository.LedgerRepository
	alerter  Alerter
	email    sender.EmailSender
	events   kafka.SettledEventPublisher
	idem     repository.IdempotencyStore
	metrics  *awspkg.MetricsClient

	callTimeout time.Duration
	logger      *zap.Logger
}

// CheckoutOption tweaks optional collaborators on the service.
type CheckoutOption func(*CheckoutService)

// WithSettledEvents wires a best-effort post-settlement event publisher.
func WithSettledEvents(p kafka.SettledEventPublisher) CheckoutOption {
	return func(s *CheckoutService) { s.events = p }
}

// WithIdempotencyStore enables the replay guard for requests carrying an
// idempotency key.
func WithIdempotencyStore(store repository.IdempotencyStore) CheckoutOption {
	return func(s *CheckoutService) { s.idem = store }
}

// WithCallTimeout bounds each collaborator round trip.
func WithCallTimeout(d time.Duration) CheckoutOption {
	return func(s *CheckoutService) { s.callTimeout = d }
}

// WithMetrics wires CloudWatch business counters.
func WithMetrics(m *awspkg.MetricsClient) CheckoutOption {
	return func(s *CheckoutService) { s.metrics = m }
}

func (s *CheckoutService) recordCount(metric string) {
	if s.metrics == nil || !s.metrics.IsEnabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.metrics.RecordCount(ctx, metric, map[string]string{"Service": "checkout-service"})
	}()
}

func NewCheckoutService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	ledger repository.LedgerRepository,
	alerter Alerter,
	email sender.EmailSender,
	logger *zap.Logger,
	opts ...CheckoutOption,
) *CheckoutService {
	s := &CheckoutService{
		carts:       carts,
		products:    products,
		ledger:      ledger,
		alerter:     alerter,
		email:       email,
		callTimeout: defaultCallTimeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Checkout runs the full workflow for one buyer. It always returns a
// result; failures of individual collaborators are encoded in it rather
// than raised, per the propagation rules above.
func (s *CheckoutService) Checkout(ctx context.Context, req models.CheckoutRequest, idempotencyKey string) *models.CheckoutResult {
	log := s.logger.With(zap.String("user_id", req.UserID))

	claimed, res := s.claimIdempotency(ctx, idempotencyKey, log)
	if res != nil {
		return res
	}
	// A claim is released whenever the checkout does not settle, so a
	// retry with the same key can succeed.
	releaseClaim := func() {
		if claimed {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.callTimeout)
			defer cancel()
			if err := s.idem.Release(rctx, idempotencyKey); err != nil {
				log.Warn("failed to release idempotency claim", zap.Error(err))
			}
		}
	}

	cart, err := s.resolveCart(ctx, req.UserID)
	if err != nil {
		log.Error("cart fetch failed", zap.Error(err))
		releaseClaim()
		return &models.CheckoutResult{Success: false, Message: MsgCartUnavailable}
	}
	if cart.IsEmpty() {
		log.Info("checkout on empty cart, nothing to do")
		releaseClaim()
		s.recordCount(awspkg.MetricCheckoutsEmpty)
		return &models.CheckoutResult{Success: false, Message: MsgCartEmpty}
	}

	// Totals come from the cart snapshot, not from per-item outcomes: the
	// ledger reflects what the customer bought even when a stock update
	// was skipped.
	var totalQty int
	var totalAmount float64
	for _, line := range cart.Items {
		totalQty += line.Quantity
		totalAmount += line.UnitPrice * float64(line.Quantity)
	}

	outcomes := s.fulfillLines(ctx, cart.Items, log)

	if _, err := s.settle(ctx, req, totalQty, totalAmount); err != nil {
		log.Error("settlement failed, checkout aborted",
			zap.Int("total_quantity", totalQty),
			zap.Float64("total_amount", totalAmount),
			zap.Error(err),
		)
		releaseClaim()
		s.recordCount(awspkg.MetricCheckoutsFailed)
		return &models.CheckoutResult{
			Success: false,
			Message: MsgSettlementFailed,
			Items:   outcomes,
		}
	}

	log.Info("checkout settled",
		zap.Int("total_quantity", totalQty),
		zap.Float64("total_amount", totalAmount),
		zap.Int("lines", len(cart.Items)),
	)

	s.recordCount(awspkg.MetricCheckoutsSettled)

	s.sendReceipt(ctx, req, totalAmount, cart.Items, log)
	s.clearCart(ctx, req.UserID, log)
	s.publishSettled(ctx, req.UserID, totalQty, totalAmount, log)

	return &models.CheckoutResult{
		Success:         true,
		Message:         MsgSettled,
		SettledQuantity: totalQty,
		SettledAmount:   totalAmount,
		Items:           outcomes,
	}
}

// claimIdempotency takes the replay guard when a key was supplied. The
// second return is non-nil when the checkout must stop here.
func (s *CheckoutService) claimIdempotency(ctx context.Context, key string, log *zap.Logger) (bool, *models.CheckoutResult) {
	if s.idem == nil || key == "" {
		return false, nil
	}
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	ok, err := s.idem.Claim(cctx, key, idempotencyTTL)
	if err != nil {
		// The guard itself being down must not block sales.
		log.Warn("idempotency claim failed, proceeding without guard", zap.Error(err))
		return false, nil
	}
	if !ok {
		log.Info("duplicate checkout rejected", zap.String("idempotency_key", key))
		return false, &models.CheckoutResult{Success: false, Message: MsgDuplicate}
	}
	return true, nil
}

func (s *CheckoutService) resolveCart(ctx context.Context, userID string) (*models.Cart, error) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.carts.GetCart(cctx, userID)
}

// fulfillLines fans out across the cart lines. Lines touch disjoint
// products in the common case; when two lines name the same product the
// store-side atomic decrement keeps the updates cumulative.
func (s *CheckoutService) fulfillLines(ctx context.Context, lines []models.CartLine, log *zap.Logger) []models.ItemOutcome {
	outcomes := make([]models.ItemOutcome, len(lines))

	var wg sync.WaitGroup
	for i, line := range lines {
		wg.Add(1)
		go func(i int, line models.CartLine) {
			defer wg.Done()
			outcomes[i] = s.fulfillLine(ctx, line, log)
		}(i, line)
	}
	wg.Wait()

	return outcomes
}

func (s *CheckoutService) fulfillLine(ctx context.Context, line models.CartLine, log *zap.Logger) models.ItemOutcome {
	outcome := models.ItemOutcome{ProductID: line.ProductID}

	if line.Quantity <= 0 {
		outcome.FailureReason = "invalid quantity"
		return outcome
	}

	dctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	product, err := s.products.DecrementStock(dctx, line.ProductID, line.Quantity)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			outcome.FailureReason = "product not found"
		case errors.Is(err, repository.ErrInsufficientStock):
			outcome.FailureReason = "insufficient stock"
		default:
			outcome.FailureReason = "stock update failed"
		}
		log.Warn("stock update failed for item",
			zap.String("product_id", line.ProductID),
			zap.Int("quantity", line.Quantity),
			zap.Error(err),
		)
		s.recordCount(awspkg.MetricItemFailures)
		return outcome
	}
	outcome.Decremented = true

	if product.Stock < product.Threshold {
		actx, acancel := context.WithTimeout(ctx, s.callTimeout)
		defer acancel()
		if err := s.alerter.LowStock(actx, product); err != nil {
			log.Warn("low-stock alert failed",
				zap.String("product_id", line.ProductID),
				zap.Error(err),
			)
		} else {
			outcome.AlertFired = true
			s.recordCount(awspkg.MetricInventoryLow)
			log.Info("low-stock alert sent",
				zap.String("product", product.Name),
				zap.Int("stock", product.Stock),
				zap.Int("threshold", product.Threshold),
			)
		}
	}

	return outcome
}

func (s *CheckoutService) settle(ctx context.Context, req models.CheckoutRequest, qty int, amount float64) (*models.LedgerEntry, error) {
	sctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return s.ledger.SettlePurchase(sctx, req.UserID, req.UserName, qty, amount)
}

func (s *CheckoutService) sendReceipt(ctx context.Context, req models.CheckoutRequest, amount float64, lines []models.CartLine, log *zap.Logger) {
	ectx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	body := buildReceiptHTML(req.UserName, amount, lines)
	if _, err := s.email.SendEmail(ectx, req.UserEmail, receiptSubject, body); err != nil {
		log.Warn("receipt email failed", zap.String("to", req.UserEmail), zap.Error(err))
		return
	}
	log.Info("receipt email sent", zap.String("to", req.UserEmail))
}

func (s *CheckoutService) clearCart(ctx context.Context, userID string, log *zap.Logger) {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	if err := s.carts.ClearCart(cctx, userID); err != nil {
		log.Warn("cart clear failed after settlement", zap.Error(err))
	}
}

func (s *CheckoutService) publishSettled(ctx context.Context, userID string, qty int, amount float64, log *zap.Logger) {
	if s.events == nil {
		return
	}
	ectx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	evt := models.SettledEvent{
		EventID:       uuid.NewString(),
		Event:         models.EventCheckoutSettled,
		UserID:        userID,
		TotalQuantity: qty,
		TotalAmount:   amount,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.events.SendSettledEvent(ectx, evt); err != nil {
		log.Warn("settled event publish failed", zap.Error(err))
	}
}
