package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersOf(t *testing.T, e *testEnv, userID int64) []models.Order {
	t.Helper()
	var orders []models.Order
	require.NoError(t, e.repo.View(context.Background(), func(tx store.Tx) error {
		var err error
		orders, err = tx.ListOrdersByUser(context.Background(), userID)
		return err
	}))
	return orders
}

func TestCheckoutClampedCart(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "25.00", "11.00", 10)
	user := models.Identity{UserID: customerID}

	_, err := e.carts.AddItem(ctx, user, id, 12)
	require.NoError(t, err)

	res, err := e.checkout.Checkout(ctx, &CheckoutRequest{UserID: customerID, Card: validCard})
	require.NoError(t, err)
	require.True(t, res.Created)

	order := res.Order
	assert.Equal(t, models.OrderStatusProcessing, order.Status)
	assert.Equal(t, "250.00", order.TotalPrice.StringFixed(2))
	assert.Equal(t, t0, order.CreatedAt)

	require.Len(t, order.Items, 1)
	line := order.Items[0]
	assert.Equal(t, 10, line.Quantity)
	assert.Equal(t, "chair", line.ProductName)
	assert.Equal(t, "chair.png", line.ProductImage)
	assert.Equal(t, "25.00", line.ProductPrice.StringFixed(2))
	assert.Equal(t, "11.00", line.UnitCost.StringFixed(2))
	assert.Equal(t, "250.00", line.Price.StringFixed(2))
	assert.Equal(t, "250.00", line.OriginalPrice.StringFixed(2))

	p := e.product(t, id)
	assert.Equal(t, 0, p.QuantityInStock)
	assert.Equal(t, 10, p.TotalSold)

	cart, err := e.carts.GetOrCreateCart(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	d := e.deliveryFor(t, order.ID)
	assert.Equal(t, models.DeliveryStatusPending, d.Status)
	assert.Equal(t, "Sam Lee", d.CustomerName)
	assert.Equal(t, "1 Main St", d.DeliveryAddress)
	assert.Equal(t, []int64{id}, d.ProductIDs)

	assert.Equal(t, []string{models.EventTypeOrderPlaced}, e.events.types())
}

func TestCheckoutSnapshotsDiscount(t *testing.T) {
	e := newTestEnv(t)
	start, end := t0.Add(-time.Hour), t0.Add(time.Hour)
	id := e.repo.AddProduct(models.Product{
		Name:               "sofa",
		Price:              dec("200.00"),
		Cost:               dec("90.00"),
		QuantityInStock:    3,
		DiscountPercentage: dec("10"),
		DiscountStart:      &start,
		DiscountEnd:        &end,
	})

	order := e.placeOrder(t, customerID, map[int64]int{id: 2})

	assert.Equal(t, "360.00", order.TotalPrice.StringFixed(2))
	assert.Equal(t, "360.00", order.Items[0].Price.StringFixed(2))
	assert.Equal(t, "400.00", order.Items[0].OriginalPrice.StringFixed(2))
	assert.Equal(t, "200.00", order.Items[0].ProductPrice.StringFixed(2))
}

func TestCheckoutEmptyCart(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.checkout.Checkout(ctx, &CheckoutRequest{UserID: customerID, Card: validCard})
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)

	_, err = e.carts.GetOrCreateCart(ctx, models.Identity{UserID: customerID})
	require.NoError(t, err)
	_, err = e.checkout.Checkout(ctx, &CheckoutRequest{UserID: customerID, Card: validCard})
	assert.ErrorIs(t, err, apperr.ErrEmptyCart)
}

func TestCheckoutPaymentFailureChangesNothing(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "25.00", "11.00", 4)
	_, err := e.carts.AddItem(ctx, models.Identity{UserID: customerID}, id, 2)
	require.NoError(t, err)

	cases := map[string]CreditCard{
		"incomplete": {CardNumber: "4111111111111111", ExpiryDate: "12/40"},
		"expired":    {CardNumber: "4111111111111111", ExpiryDate: "01/26", CVV: "123"},
		"bad number": {CardNumber: "4111-abc", ExpiryDate: "12/40", CVV: "123"},
		"bad expiry": {CardNumber: "4111111111111111", ExpiryDate: "2040-12", CVV: "123"},
	}
	for name, card := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := e.checkout.Checkout(ctx, &CheckoutRequest{UserID: customerID, Card: card})
			assert.ErrorIs(t, err, apperr.ErrPaymentFailed)
		})
	}

	assert.Equal(t, 4, e.product(t, id).QuantityInStock)
	assert.Empty(t, ordersOf(t, e, customerID))
	cart, err := e.carts.GetOrCreateCart(ctx, models.Identity{UserID: customerID})
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
	assert.Empty(t, e.events.types())
}

func TestCheckoutRollsBackWhenALineFails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	first := e.addProduct("chair", "25.00", "11.00", 5)
	second := e.addProduct("table", "80.00", "30.00", 5)
	user := models.Identity{UserID: customerID}

	_, err := e.carts.AddItem(ctx, user, first, 2)
	require.NoError(t, err)
	_, err = e.carts.AddItem(ctx, user, second, 3)
	require.NoError(t, err)

	// stock drops after the line was added
	e.repo.SetStock(second, 1)

	_, err = e.checkout.Checkout(ctx, &CheckoutRequest{UserID: customerID, Card: validCard})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	assert.Equal(t, 5, e.product(t, first).QuantityInStock)
	assert.Equal(t, 0, e.product(t, first).TotalSold)
	assert.Equal(t, 1, e.product(t, second).QuantityInStock)
	assert.Empty(t, ordersOf(t, e, customerID))

	cart, err := e.carts.GetOrCreateCart(ctx, user)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
}

func TestCheckoutIdempotencyKey(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "25.00", "11.00", 10)
	_, err := e.carts.AddItem(ctx, models.Identity{UserID: customerID}, id, 2)
	require.NoError(t, err)

	req := &CheckoutRequest{UserID: customerID, IdempotencyKey: "k-1", Card: validCard}
	first, err := e.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Created)

	again, err := e.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Order.ID, again.Order.ID)
	assert.Len(t, again.Order.Items, 1)

	// cache gone: the stored key still answers
	e.mr.FlushAll()
	replay, err := e.checkout.Checkout(ctx, req)
	require.NoError(t, err)
	assert.False(t, replay.Created)
	assert.Equal(t, first.Order.ID, replay.Order.ID)

	assert.Equal(t, 8, e.product(t, id).QuantityInStock)
	assert.Len(t, ordersOf(t, e, customerID), 1)
}

func TestCheckoutRejectsConcurrentCheckout(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "25.00", "11.00", 10)
	_, err := e.carts.AddItem(ctx, models.Identity{UserID: customerID}, id, 1)
	require.NoError(t, err)

	_, ok, err := e.redis.AcquireLock(ctx, "checkout:1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = e.checkout.Checkout(ctx, &CheckoutRequest{UserID: customerID, Card: validCard})
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, 10, e.product(t, id).QuantityInStock)
}

func TestCheckoutSavedCards(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "25.00", "11.00", 10)
	user := models.Identity{UserID: customerID}

	card := validCard
	card.SaveNewCard = true
	_, err := e.carts.AddItem(ctx, user, id, 1)
	require.NoError(t, err)
	_, err = e.checkout.Checkout(ctx, &CheckoutRequest{UserID: customerID, Card: card})
	require.NoError(t, err)

	cards, err := e.checkout.ListCards(ctx, customerID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "1111", cards[0].Last4)
	assert.Equal(t, "Personal", cards[0].CardName)
	assert.NotContains(t, string(cards[0].EncryptedNumber), "4111")

	_, err = e.carts.AddItem(ctx, user, id, 1)
	require.NoError(t, err)
	res, err := e.checkout.Checkout(ctx, &CheckoutRequest{
		UserID: customerID,
		Card:   CreditCard{UseSavedCard: true, CardID: cards[0].ID},
	})
	require.NoError(t, err)
	assert.True(t, res.Created)

	_, err = e.carts.AddItem(ctx, models.Identity{UserID: otherID}, id, 1)
	require.NoError(t, err)
	_, err = e.checkout.Checkout(ctx, &CheckoutRequest{
		UserID: otherID,
		Card:   CreditCard{UseSavedCard: true, CardID: cards[0].ID},
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound, "cards belong to their owner")
}

func TestOrderSnapshotSurvivesProductDeletion(t *testing.T) {
	e := newTestEnv(t)
	id := e.addProduct("chair", "25.00", "11.00", 10)
	order := e.placeOrder(t, customerID, map[int64]int{id: 2})

	e.repo.DeleteProduct(id)

	item := e.orderItem(t, order.Items[0].ID)
	assert.Nil(t, item.ProductID)
	assert.Equal(t, "chair", item.ProductName)
	assert.Equal(t, "50.00", item.Price.StringFixed(2))
}

func TestPublishFailureDoesNotFailCheckout(t *testing.T) {
	e := newTestEnv(t)
	e.events.err = assert.AnError
	id := e.addProduct("chair", "25.00", "11.00", 10)

	order := e.placeOrder(t, customerID, map[int64]int{id: 1})
	assert.NotZero(t, order.ID)
}
