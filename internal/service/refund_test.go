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

// deliveredLine places and delivers an order of qty units and returns its line.
func deliveredLine(t *testing.T, e *testEnv, productID int64, qty int) models.OrderItem {
	t.Helper()
	order := e.placeOrder(t, customerID, map[int64]int{productID: qty})
	e.deliver(t, order.ID)
	return order.Items[0]
}

func TestRefundBoundEnforcedAtApproval(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "10.00", "4.00", 5)
	line := deliveredLine(t, e, id, 5)
	require.Equal(t, 0, e.product(t, id).QuantityInStock)

	first, err := e.refunds.RequestReturn(ctx, customerID, line.ID, 3, "wobbly", t0)
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusPending, first.Status)

	// both requests pass the request-time check
	second, err := e.refunds.RequestReturn(ctx, customerID, line.ID, 3, "still wobbly", t0)
	require.NoError(t, err)

	approved, err := e.refunds.Approve(ctx, first.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusApproved, approved.Status)
	assert.Equal(t, "30.00", approved.RefundAmount.StringFixed(2))
	require.NotNil(t, approved.ResolvedAt)

	item := e.orderItem(t, line.ID)
	assert.Equal(t, 3, item.RefundedQuantity)
	assert.Equal(t, 2, item.RefundableQuantity())
	assert.True(t, item.IsReturnApproved)
	assert.Equal(t, 3, e.product(t, id).QuantityInStock)
	assert.Equal(t, 2, e.product(t, id).TotalSold)

	_, err = e.refunds.Approve(ctx, second.ID, t0.Add(time.Hour))
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	item = e.orderItem(t, line.ID)
	assert.Equal(t, 3, item.RefundedQuantity, "failed approval changes nothing")
	assert.Equal(t, 3, e.product(t, id).QuantityInStock)

	pending, err := e.refunds.ListRefunds(ctx, models.RefundStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	_, err = e.refunds.RequestReturn(ctx, customerID, line.ID, 3, "again", t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity, "only 2 left to refund")
}

func TestRequestReturnRules(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "10.00", "4.00", 10)

	open := e.placeOrder(t, customerID, map[int64]int{id: 2})
	_, err := e.refunds.RequestReturn(ctx, customerID, open.Items[0].ID, 1, "", t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "order not delivered yet")

	line := deliveredLine(t, e, id, 2)

	_, err = e.refunds.RequestReturn(ctx, customerID, line.ID, 0, "", t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)
	_, err = e.refunds.RequestReturn(ctx, customerID, line.ID, 3, "", t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidQuantity)

	_, err = e.refunds.RequestReturn(ctx, otherID, line.ID, 1, "", t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.refunds.RequestReturn(ctx, customerID, 9999, 1, "", t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.refunds.RequestReturn(ctx, customerID, line.ID, 1, "", t0.Add(31*24*time.Hour))
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "window closed")

	refund, err := e.refunds.RequestReturn(ctx, customerID, line.ID, 1, "  scratched  ", t0.Add(29*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "scratched", refund.Reason)

	item := e.orderItem(t, line.ID)
	assert.True(t, item.IsReturnRequested)
	assert.Equal(t, 1, item.RequestedReturnQuantity)
	assert.Equal(t, 0, item.RefundedQuantity, "requesting does not refund")
}

func TestDenyRefund(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "10.00", "4.00", 3)
	line := deliveredLine(t, e, id, 3)

	refund, err := e.refunds.RequestReturn(ctx, customerID, line.ID, 2, "changed mind", t0)
	require.NoError(t, err)

	denied, err := e.refunds.Deny(ctx, refund.ID, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusDenied, denied.Status)
	require.NotNil(t, denied.ResolvedAt)
	assert.True(t, denied.RefundAmount.IsZero())

	assert.Equal(t, 0, e.product(t, id).QuantityInStock)
	assert.Equal(t, 0, e.orderItem(t, line.ID).RefundedQuantity)

	_, err = e.refunds.Deny(ctx, refund.ID, t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = e.refunds.Approve(ctx, refund.ID, t0)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	_, err = e.refunds.Approve(ctx, 9999, t0)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Contains(t, e.events.types(), models.EventTypeRefundDenied)
}

func TestRefundAmountIsProportional(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "10.00", "4.00", 3)
	line := deliveredLine(t, e, id, 3)

	refund, err := e.refunds.RequestReturn(ctx, customerID, line.ID, 1, "", t0)
	require.NoError(t, err)
	approved, err := e.refunds.Approve(ctx, refund.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, "10.00", approved.RefundAmount.StringFixed(2))

	item := models.OrderItem{Quantity: 3, Price: dec("10.00")}
	assert.Equal(t, "3.33", item.AmountFor(1).StringFixed(2))
}

func TestApproveForDeletedProduct(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("chair", "10.00", "4.00", 3)
	line := deliveredLine(t, e, id, 3)
	e.repo.DeleteProduct(id)

	refund, err := e.refunds.RequestReturn(ctx, customerID, line.ID, 2, "", t0)
	require.NoError(t, err)
	approved, err := e.refunds.Approve(ctx, refund.ID, t0)
	require.NoError(t, err)
	assert.Equal(t, "20.00", approved.RefundAmount.StringFixed(2))
	assert.Equal(t, 2, e.orderItem(t, line.ID).RefundedQuantity)
}

func TestListRefundsValidatesStatus(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.refunds.ListRefunds(context.Background(), "MAYBE")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	all, err := e.refunds.ListRefunds(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, all)
}
