package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryStatusDrivesOrder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "25.00", "11.00", 10)
	order := e.placeOrder(t, customerID, map[int64]int{id: 1})
	d := e.deliveryFor(t, order.ID)

	updated, err := e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusInTransit, t0.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusInTransit, updated.Status)

	orders, err := e.orders.ListOrders(ctx, customerID, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusInTransit, orders[0].Status)

	// same status again is a no-op
	_, err = e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusInTransit, t0.Add(3*time.Second))
	require.NoError(t, err)

	_, err = e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusPending, t0.Add(3*time.Second))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusCanceled, t0.Add(3*time.Second))
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "only processing orders can be canceled")

	updated, err = e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusDelivered, t0.Add(4*time.Second))
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusDelivered, updated.Status)

	_, err = e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusInTransit, t0.Add(5*time.Second))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	assert.Equal(t, []string{
		models.EventTypeOrderPlaced,
		models.EventTypeOrderStatusChanged + ":IN-TRANSIT",
		models.EventTypeOrderStatusChanged + ":DELIVERED",
	}, e.events.types())
}

func TestDeliveryCancelReleasesStock(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "25.00", "11.00", 10)
	order := e.placeOrder(t, customerID, map[int64]int{id: 4})
	d := e.deliveryFor(t, order.ID)

	updated, err := e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusCanceled, t0)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusCanceled, updated.Status)
	assert.Equal(t, 10, e.product(t, id).QuantityInStock)

	_, err = e.deliveries.UpdateStatus(ctx, d.ID, models.DeliveryStatusDelivered, t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestDeliveryUpdateValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.deliveries.UpdateStatus(ctx, 1, "LOST", t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = e.deliveries.UpdateStatus(ctx, 12345, models.DeliveryStatusDelivered, t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListDeliveries(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	a := e.addProduct("chair", "25.00", "11.00", 10)
	b := e.addProduct("table", "80.00", "30.00", 10)
	e.placeOrder(t, customerID, map[int64]int{a: 1, b: 1})
	e.placeOrder(t, otherID, map[int64]int{b: 1})

	deliveries, err := e.deliveries.ListDeliveries(ctx)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.ElementsMatch(t, []int64{a, b}, deliveries[0].ProductIDs)
	assert.Equal(t, "Kim Park", deliveries[1].CustomerName)
}
