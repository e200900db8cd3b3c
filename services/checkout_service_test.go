package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storesphere/checkout-service/models"
	"github.com/storesphere/checkout-service/repository"
	"github.com/storesphere/checkout-service/sender"
	"github.com/storesphere/checkout-service/services"
)

// --- In-memory fakes ---

type fakeCartRepo struct {
	mu      sync.Mutex
	carts   map[string]*models.Cart
	getErr  error
	cleared []string
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{carts: make(map[string]*models.Cart)}
}

func (f *fakeCartRepo) GetCart(_ context.Context, userID string) (*models.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.carts[userID], nil
}

func (f *fakeCartRepo) ClearCart(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	delete(f.carts, userID)
	return nil
}

type fakeProductRepo struct {
	mu       sync.Mutex
	products map[string]*models.Product
	failIDs  map[string]error
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{
		products: make(map[string]*models.Product),
		failIDs:  make(map[string]error),
	}
}

func (f *fakeProductRepo) Create(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *p
	f.products[p.ProductID] = &cp
	return nil
}

func (f *fakeProductRepo) DecrementStock(_ context.Context, productID string, quantity int) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failIDs[productID]; ok {
		return nil, err
	}
	p, ok := f.products[productID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if p.Stock < quantity {
		return nil, repository.ErrInsufficientStock
	}
	p.Stock -= quantity
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) stock(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID].Stock
}

type fakeLedgerRepo struct {
	mu      sync.Mutex
	entries map[string]*models.LedgerEntry
	failErr error
	calls   int
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: make(map[string]*models.LedgerEntry)}
}

func (f *fakeLedgerRepo) SettlePurchase(_ context.Context, userID, userName string, deltaQty int, deltaAmount float64) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failErr != nil {
		return nil, f.failErr
	}
	entry, ok := f.entries[userID]
	if !ok {
		entry = &models.LedgerEntry{UserID: userID, UserName: userName}
		f.entries[userID] = entry
	}
	entry.TotalQuantity += deltaQty
	entry.TotalAmount += deltaAmount
	cp := *entry
	return &cp, nil
}

func (f *fakeLedgerRepo) GetEntry(_ context.Context, userID string) (*models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[userID]
	if !ok {
		return nil, errors.New("record not found")
	}
	cp := *entry
	return &cp, nil
}

type fakeAlerter struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeAlerter) LowStock(_ context.Context, p *models.Product) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, p.ProductID)
	return nil
}

type sentMail struct {
	to, subject, body string
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, htmlBody string) (sender.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return sender.SendResult{}, f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return sender.SendResult{MessageID: "test", SentAt: time.Now()}, nil
}

type fakeIdemStore struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
	claimErr error
}

func newFakeIdemStore() *fakeIdemStore {
	return &fakeIdemStore{claimed: make(map[string]bool)}
}

func (f *fakeIdemStore) Claim(_ context.Context, key string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.claimed[key] {
		return false, nil
	}
	f.claimed[key] = true
	return true, nil
}

func (f *fakeIdemStore) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.claimed, key)
	f.released = append(f.released, key)
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.SettledEvent
}

func (f *fakeEvents) SendSettledEvent(_ context.Context, evt models.SettledEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return nil
}

// --- Helpers ---

type fixture struct {
	carts    *fakeCartRepo
	products *fakeProductRepo
	ledger   *fakeLedgerRepo
	alerter  *fakeAlerter
	email    *fakeEmail
	svc      *services.CheckoutService
}

func newFixture(t *testing.T, opts ...services.CheckoutOption) *fixture {
	t.Helper()
	f := &fixture{
		carts:    newFakeCartRepo(),
		products: newFakeProductRepo(),
		ledger:   newFakeLedgerRepo(),
		alerter:  &fakeAlerter{},
		email:    &fakeEmail{},
	}
	f.svc = services.NewCheckoutService(
		f.carts, f.products, f.ledger, f.alerter, f.email, zap.NewNop(), opts...,
	)
	return f
}

func (f *fixture) addProduct(id string, stock, threshold int) {
	_ = f.products.Create(context.Background(), &models.Product{
		ProductID: id,
		Name:      "Product " + id,
		Price:     250,
		Stock:     stock,
		Threshold: threshold,
	})
}

func (f *fixture) setCart(userID string, lines ...models.CartLine) {
	f.carts.carts[userID] = &models.Cart{UserID: userID, Items: lines}
}

var buyer = models.CheckoutRequest{
	UserID:    "u1",
	UserName:  "Asha",
	UserEmail: "asha@example.com",
}

// --- Tests ---

func TestCheckout_TotalsMatchCartLines(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 15)
	f.addProduct("p2", 100, 15)
	f.setCart(buyer.UserID,
		models.CartLine{ProductID: "p1", Name: "Keyboard", UnitPrice: 120, Quantity: 2},
		models.CartLine{ProductID: "p2", Name: "Mouse", UnitPrice: 45.5, Quantity: 3},
		models.CartLine{ProductID: "missing", Name: "Ghost", UnitPrice: 10, Quantity: 1},
	)

	res := f.svc.Checkout(context.Background(), buyer, "")

	require.True(t, res.Success)
	// Totals cover every cart line, including the one whose stock update
	// failed.
	assert.Equal(t, 6, res.SettledQuantity)
	assert.InDelta(t, 120*2+45.5*3+10, res.SettledAmount, 0.001)

	require.Len(t, res.Items, 3)
	byID := map[string]models.ItemOutcome{}
	for _, o := range res.Items {
		byID[o.ProductID] = o
	}
	assert.True(t, byID["p1"].Decremented)
	assert.True(t, byID["p2"].Decremented)
	assert.False(t, byID["missing"].Decremented)
	assert.Equal(t, "product not found", byID["missing"].FailureReason)

	assert.Equal(t, 98, f.products.stock("p1"))
	assert.Equal(t, 97, f.products.stock("p2"))

	entry, err := f.ledger.GetEntry(context.Background(), buyer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 6, entry.TotalQuantity)
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Checkout(context.Background(), buyer, "")

	assert.False(t, res.Success)
	assert.Equal(t, services.MsgCartEmpty, res.Message)
	assert.Zero(t, f.ledger.calls)
	assert.Empty(t, f.email.sent)
	assert.Empty(t, f.alerter.calls)
	assert.Empty(t, f.carts.cleared)
}

func TestCheckout_CartFetchFailure(t *testing.T) {
	f := newFixture(t)
	f.carts.getErr = errors.New("dynamodb unreachable")

	res := f.svc.Checkout(context.Background(), buyer, "")

	assert.False(t, res.Success)
	assert.Equal(t, services.MsgCartUnavailable, res.Message)
	assert.Zero(t, f.ledger.calls)
}

func TestCheckout_NotificationFailuresStillSucceed(t *testing.T) {
	f := newFixture(t)
	f.alerter.err = errors.New("sns down")
	f.email.err = errors.New("ses down")
	f.addProduct("p1", 10, 25) // below threshold after decrement
	f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "Cable", UnitPrice: 5, Quantity: 1})

	res := f.svc.Checkout(context.Background(), buyer, "")

	require.True(t, res.Success)
	assert.Equal(t, 1, res.SettledQuantity)
	assert.False(t, res.Items[0].AlertFired)

	entry, err := f.ledger.GetEntry(context.Background(), buyer.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.TotalQuantity)
}

func TestCheckout_SettlementFailureKeepsStockApplied(t *testing.T) {
	f := newFixture(t)
	f.ledger.failErr = errors.New("deadlock detected")
	f.addProduct("p1", 100, 15)
	f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "Desk", UnitPrice: 300, Quantity: 2})

	res := f.svc.Checkout(context.Background(), buyer, "")

	assert.False(t, res.Success)
	assert.Equal(t, services.MsgSettlementFailed, res.Message)
	assert.Zero(t, res.SettledQuantity)

	// Per-item decrements already committed are not compensated.
	assert.Equal(t, 98, f.products.stock("p1"))

	_, err := f.ledger.GetEntry(context.Background(), buyer.UserID)
	assert.Error(t, err)
	assert.Empty(t, f.email.sent)
	assert.Empty(t, f.carts.cleared)
}

func TestCheckout_ConcurrentDecrementsAreCumulative(t *testing.T) {
	f := newFixture(t)
	f.addProduct("hot", 1000, 15)

	const buyers = 20
	for i := 0; i < buyers; i++ {
		f.setCart(fmt.Sprintf("user-%d", i), models.CartLine{ProductID: "hot", Name: "Hot Item", UnitPrice: 80, Quantity: 3})
	}

	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		userID := fmt.Sprintf("user-%d", i)
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			req := models.CheckoutRequest{UserID: userID, UserName: userID, UserEmail: userID + "@example.com"}
			res := f.svc.Checkout(context.Background(), req, "")
			assert.True(t, res.Success)
		}(userID)
	}
	wg.Wait()

	assert.Equal(t, 1000-buyers*3, f.products.stock("hot"))
}

func TestCheckout_SameProductTwiceInOneCart(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 50, 15)
	f.setCart(buyer.UserID,
		models.CartLine{ProductID: "p1", Name: "Pen", UnitPrice: 2, Quantity: 4},
		models.CartLine{ProductID: "p1", Name: "Pen", UnitPrice: 2, Quantity: 6},
	)

	res := f.svc.Checkout(context.Background(), buyer, "")

	require.True(t, res.Success)
	assert.Equal(t, 40, f.products.stock("p1"))
	assert.Equal(t, 10, res.SettledQuantity)
}

func TestCheckout_AlertFiring(t *testing.T) {
	t.Run("crossing the threshold fires once", func(t *testing.T) {
		f := newFixture(t)
		f.addProduct("p1", 26, 25)
		f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "Lamp", UnitPrice: 600, Quantity: 2})

		res := f.svc.Checkout(context.Background(), buyer, "")

		require.True(t, res.Success)
		assert.True(t, res.Items[0].AlertFired)
		assert.Equal(t, []string{"p1"}, f.alerter.calls)
	})

	t.Run("staying at or above threshold fires none", func(t *testing.T) {
		f := newFixture(t)
		f.addProduct("p1", 100, 25)
		f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "Lamp", UnitPrice: 600, Quantity: 2})

		res := f.svc.Checkout(context.Background(), buyer, "")

		require.True(t, res.Success)
		assert.False(t, res.Items[0].AlertFired)
		assert.Empty(t, f.alerter.calls)
	})

	t.Run("already below threshold keeps alerting", func(t *testing.T) {
		f := newFixture(t)
		f.addProduct("p1", 10, 25)

		for i := 0; i < 2; i++ {
			req := models.CheckoutRequest{UserID: fmt.Sprintf("u%d", i), UserName: "n", UserEmail: "n@example.com"}
			f.setCart(req.UserID, models.CartLine{ProductID: "p1", Name: "Lamp", UnitPrice: 600, Quantity: 1})
			res := f.svc.Checkout(context.Background(), req, "")
			require.True(t, res.Success)
			assert.True(t, res.Items[0].AlertFired)
		}
		assert.Len(t, f.alerter.calls, 2)
	})
}

func TestCheckout_LedgerUpsertIsAssociative(t *testing.T) {
	sequential := newFixture(t)
	sequential.addProduct("p1", 1000, 15)
	sequential.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 2})
	require.True(t, sequential.svc.Checkout(context.Background(), buyer, "").Success)
	sequential.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 5})
	require.True(t, sequential.svc.Checkout(context.Background(), buyer, "").Success)

	combined := newFixture(t)
	combined.addProduct("p1", 1000, 15)
	combined.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 7})
	require.True(t, combined.svc.Checkout(context.Background(), buyer, "").Success)

	seqEntry, err := sequential.ledger.GetEntry(context.Background(), buyer.UserID)
	require.NoError(t, err)
	combEntry, err := combined.ledger.GetEntry(context.Background(), buyer.UserID)
	require.NoError(t, err)

	assert.Equal(t, combEntry.TotalQuantity, seqEntry.TotalQuantity)
	assert.InDelta(t, combEntry.TotalAmount, seqEntry.TotalAmount, 0.001)
}

func TestCheckout_ReceiptContent(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 15)
	f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "Keyboard", UnitPrice: 120, Quantity: 2})

	res := f.svc.Checkout(context.Background(), buyer, "")

	require.True(t, res.Success)
	require.Len(t, f.email.sent, 1)
	mail := f.email.sent[0]
	assert.Equal(t, buyer.UserEmail, mail.to)
	assert.Contains(t, mail.subject, "Receipt")
	assert.Contains(t, mail.body, "Keyboard (x2): Rs. 240.00")
	assert.Contains(t, mail.body, "Asha")
}

func TestCheckout_CartClearedAfterSettlement(t *testing.T) {
	f := newFixture(t)
	f.addProduct("p1", 100, 15)
	f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 1})

	res := f.svc.Checkout(context.Background(), buyer, "")

	require.True(t, res.Success)
	assert.Equal(t, []string{buyer.UserID}, f.carts.cleared)
}

func TestCheckout_Idempotency(t *testing.T) {
	t.Run("duplicate key settles once", func(t *testing.T) {
		idem := newFakeIdemStore()
		f := newFixture(t, services.WithIdempotencyStore(idem))
		f.addProduct("p1", 100, 15)
		f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 1})

		first := f.svc.Checkout(context.Background(), buyer, "key-1")
		require.True(t, first.Success)

		f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 1})
		second := f.svc.Checkout(context.Background(), buyer, "key-1")
		assert.False(t, second.Success)
		assert.Equal(t, services.MsgDuplicate, second.Message)
		assert.Equal(t, 1, f.ledger.calls)
	})

	t.Run("failed settlement releases the claim", func(t *testing.T) {
		idem := newFakeIdemStore()
		f := newFixture(t, services.WithIdempotencyStore(idem))
		f.ledger.failErr = errors.New("db down")
		f.addProduct("p1", 100, 15)
		f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 1})

		res := f.svc.Checkout(context.Background(), buyer, "key-2")
		require.False(t, res.Success)
		assert.Contains(t, idem.released, "key-2")

		// Retry with the same key goes through once the ledger recovers.
		f.ledger.failErr = nil
		f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 1})
		retry := f.svc.Checkout(context.Background(), buyer, "key-2")
		assert.True(t, retry.Success)
	})

	t.Run("guard outage does not block sales", func(t *testing.T) {
		idem := newFakeIdemStore()
		idem.claimErr = errors.New("redis down")
		f := newFixture(t, services.WithIdempotencyStore(idem))
		f.addProduct("p1", 100, 15)
		f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 1})

		res := f.svc.Checkout(context.Background(), buyer, "key-3")
		assert.True(t, res.Success)
	})
}

func TestCheckout_SettledEventPublished(t *testing.T) {
	events := &fakeEvents{}
	f := newFixture(t, services.WithSettledEvents(events))
	f.addProduct("p1", 100, 15)
	f.setCart(buyer.UserID, models.CartLine{ProductID: "p1", Name: "A", UnitPrice: 10, Quantity: 2})

	res := f.svc.Checkout(context.Background(), buyer, "")

	require.True(t, res.Success)
	require.Len(t, events.events, 1)
	evt := events.events[0]
	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, models.EventCheckoutSettled, evt.Event)
	assert.Equal(t, buyer.UserID, evt.UserID)
	assert.Equal(t, 2, evt.TotalQuantity)
	assert.True(t, strings.HasPrefix(evt.Event, "checkout."))
}
