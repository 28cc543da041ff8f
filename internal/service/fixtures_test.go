package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/vault"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	customerID = int64(1)
	otherID    = int64(2)
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

var validCard = CreditCard{
	CardName:   "Personal",
	CardNumber: "4111 1111 1111 1111",
	ExpiryDate: "12/40",
	CVV:        "123",
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return p.err
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishOrderCanceled(_ context.Context, e *models.OrderCanceledEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	return p.record(e.EventType + ":" + string(e.To))
}

func (p *recordingPublisher) PublishRefundRequested(_ context.Context, e *models.RefundRequestedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishRefundResolved(_ context.Context, e *models.RefundResolvedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

type testEnv struct {
	repo   *store.Memory
	events *recordingPublisher
	redis  *redisclient.Client
	mr     *miniredis.Miniredis
	now    time.Time

	ledger     *InventoryLedger
	carts      *CartService
	checkout   *CheckoutService
	orders     *OrderService
	deliveries *DeliveryService
	refunds    *RefundService
	revenue    *RevenueService
}

var testThresholds = StatusThresholds{ProcessingAfter: 60 * time.Second, InTransitAfter: 10 * time.Second}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rc, err := redisclient.NewClient(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	cardVault, _, err := vault.Generate()
	require.NoError(t, err)

	e := &testEnv{
		repo:   store.NewMemory(),
		events: &recordingPublisher{},
		redis:  rc,
		mr:     mr,
		now:    t0,
	}
	clock := func() time.Time { return e.now }

	e.ledger = NewInventoryLedger()
	e.carts = NewCartService(e.repo)
	e.carts.now = clock

	authorizer := NewCardCheckAuthorizer()
	authorizer.now = clock

	e.checkout = NewCheckoutService(e.repo, e.ledger, authorizer, cardVault, rc, rc, e.events,
		CheckoutConfig{LockTTL: 30 * time.Second, IdempotencyTTL: time.Hour})
	e.checkout.now = clock

	e.orders = NewOrderService(e.repo, e.ledger, e.events, testThresholds)
	e.deliveries = NewDeliveryService(e.repo, e.orders)
	e.refunds = NewRefundService(e.repo, e.ledger, e.events, 30*24*time.Hour)
	e.revenue = NewRevenueService(e.repo)

	e.repo.AddProfile(models.Profile{
		UserID: customerID, Email: "sam@example.com",
		FirstName: "Sam", LastName: "Lee", HomeAddress: "1 Main St",
	})
	e.repo.AddProfile(models.Profile{
		UserID: otherID, Email: "kim@example.com",
		FirstName: "Kim", LastName: "Park", HomeAddress: "9 Side Rd",
	})
	return e
}

func (e *testEnv) addProduct(name, price, cost string, stock int) int64 {
	return e.repo.AddProduct(models.Product{
		Name:            name,
		Image:           name + ".png",
		Price:           decimal.RequireFromString(price),
		Cost:            decimal.RequireFromString(cost),
		QuantityInStock: stock,
	})
}

func (e *testEnv) product(t *testing.T, id int64) *models.Product {
	t.Helper()
	var p *models.Product
	require.NoError(t, e.repo.View(context.Background(), func(tx store.Tx) error {
		var err error
		p, err = tx.GetProduct(context.Background(), id)
		return err
	}))
	return p
}

func (e *testEnv) orderItem(t *testing.T, id int64) *models.OrderItem {
	t.Helper()
	var item *models.OrderItem
	require.NoError(t, e.repo.View(context.Background(), func(tx store.Tx) error {
		var err error
		item, err = tx.GetOrderItem(context.Background(), id)
		return err
	}))
	return item
}

func (e *testEnv) deliveryFor(t *testing.T, orderID int64) *models.Delivery {
	t.Helper()
	var d *models.Delivery
	require.NoError(t, e.repo.View(context.Background(), func(tx store.Tx) error {
		var err error
		d, err = tx.GetDeliveryByOrder(context.Background(), orderID)
		return err
	}))
	return d
}

// placeOrder puts qty of each product in the user's cart and checks out.
func (e *testEnv) placeOrder(t *testing.T, userID int64, lines map[int64]int) *models.Order {
	t.Helper()
	ctx := context.Background()
	for productID, qty := range lines {
		_, err := e.carts.AddItem(ctx, models.Identity{UserID: userID}, productID, qty)
		require.NoError(t, err)
	}
	res, err := e.checkout.Checkout(ctx, &CheckoutRequest{UserID: userID, Card: validCard})
	require.NoError(t, err)
	require.True(t, res.Created)
	return res.Order
}

// deliver drives an order to DELIVERED through its delivery.
func (e *testEnv) deliver(t *testing.T, orderID int64) {
	t.Helper()
	d := e.deliveryFor(t, orderID)
	_, err := e.deliveries.UpdateStatus(context.Background(), d.ID, models.DeliveryStatusDelivered, e.now)
	require.NoError(t, err)
}

// faultyRepo fails stock and cart writes for one product, to exercise
// rollback of multi-line transactions.
type faultyRepo struct {
	*store.Memory
	failProduct int64
}

var errInjected = errors.New("injected failure")

func (r *faultyRepo) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return r.Memory.WithTx(ctx, func(tx store.Tx) error {
		return fn(&faultyTx{Tx: tx, failProduct: r.failProduct})
	})
}

type faultyTx struct {
	store.Tx
	failProduct int64
}

func (t *faultyTx) UpdateProductStock(ctx context.Context, id int64, quantityInStock, totalSold int) error {
	if id == t.failProduct {
		return errInjected
	}
	return t.Tx.UpdateProductStock(ctx, id, quantityInStock, totalSold)
}

func (t *faultyTx) SaveCartItem(ctx context.Context, item *models.CartItem) error {
	if item.ProductID == t.failProduct {
		return errInjected
	}
	return t.Tx.SaveCartItem(ctx, item)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
