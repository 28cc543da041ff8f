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

func TestAggregate(t *testing.T) {
	day1 := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	day2 := day1.Add(24 * time.Hour)

	report := Aggregate([]models.RevenueLine{
		{OrderID: 2, OrderCreatedAt: day2, Quantity: 1, Price: dec("20.00"), UnitCost: dec("5.00")},
		{OrderID: 1, OrderCreatedAt: day1, Quantity: 5, RefundedQuantity: 2, Price: dec("50.00"), UnitCost: dec("6.00")},
		{OrderID: 1, OrderCreatedAt: day1, Quantity: 3, RefundedQuantity: 1, Price: dec("10.00"), UnitCost: dec("1.00")},
	})

	require.Len(t, report.RevenueByDate, 2)
	first := report.RevenueByDate[0]
	assert.Equal(t, "2026-03-10", first.Date)
	// 30.00 + 6.666.. rounded once per day
	assert.Equal(t, "36.67", first.Revenue.StringFixed(2))
	assert.Equal(t, "20.00", first.Cost.StringFixed(2))
	assert.Equal(t, "16.67", first.Profit.StringFixed(2))
	assert.Equal(t, "23.33", first.Refunded.StringFixed(2))

	second := report.RevenueByDate[1]
	assert.Equal(t, "2026-03-11", second.Date)
	assert.Equal(t, "20.00", second.Revenue.StringFixed(2))
	assert.Equal(t, "15.00", second.Profit.StringFixed(2))

	assert.Equal(t, "56.67", report.TotalRevenue.StringFixed(2))
	assert.Equal(t, "25.00", report.TotalCost.StringFixed(2))
	assert.Equal(t, "31.67", report.TotalProfit.StringFixed(2))
	assert.Equal(t, "23.33", report.TotalRefunded.StringFixed(2))
}

func TestAggregateEmpty(t *testing.T) {
	report := Aggregate(nil)
	assert.Empty(t, report.RevenueByDate)
	assert.True(t, report.TotalRevenue.IsZero())
	assert.True(t, report.TotalProfit.IsZero())
}

func TestAnalyzeExcludesCanceledAndNetsRefunds(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	lamp := e.addProduct("lamp", "50.00", "6.00", 10)
	mug := e.addProduct("mug", "20.00", "5.00", 10)

	// day 1: 5 lamps, 2 of them returned
	line := deliveredLine(t, e, lamp, 5)
	refund, err := e.refunds.RequestReturn(ctx, customerID, line.ID, 2, "", e.now)
	require.NoError(t, err)
	_, err = e.refunds.Approve(ctx, refund.ID, e.now)
	require.NoError(t, err)

	// day 2: one mug kept, one order canceled
	e.now = t0.Add(24 * time.Hour)
	e.placeOrder(t, customerID, map[int64]int{mug: 1})
	canceled := e.placeOrder(t, otherID, map[int64]int{mug: 3})
	_, err = e.orders.Cancel(ctx, otherID, canceled.ID, e.now)
	require.NoError(t, err)

	report, err := e.revenue.Analyze(ctx, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", report.StartDate)
	assert.Equal(t, "2026-03-11", report.EndDate)
	require.Len(t, report.RevenueByDate, 2)

	assert.Equal(t, "30.00", report.RevenueByDate[0].Revenue.StringFixed(2))
	assert.Equal(t, "18.00", report.RevenueByDate[0].Cost.StringFixed(2))
	assert.Equal(t, "12.00", report.RevenueByDate[0].Profit.StringFixed(2))
	assert.Equal(t, "20.00", report.RevenueByDate[0].Refunded.StringFixed(2))

	assert.Equal(t, "20.00", report.RevenueByDate[1].Revenue.StringFixed(2))
	assert.Equal(t, "5.00", report.RevenueByDate[1].Cost.StringFixed(2))

	assert.Equal(t, "50.00", report.TotalRevenue.StringFixed(2))
	assert.Equal(t, "27.00", report.TotalProfit.StringFixed(2))

	// the end day is inclusive and the start day bounds the range
	report, err = e.revenue.Analyze(ctx, t0.Add(24*time.Hour), t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, report.RevenueByDate, 1)
	assert.Equal(t, "2026-03-11", report.RevenueByDate[0].Date)
}

func TestAnalyzeKeepsCostAfterProductDeletion(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	id := e.addProduct("lamp", "50.00", "6.00", 10)
	e.placeOrder(t, customerID, map[int64]int{id: 2})
	e.repo.DeleteProduct(id)

	report, err := e.revenue.Analyze(ctx, t0, t0)
	require.NoError(t, err)
	assert.Equal(t, "100.00", report.TotalRevenue.StringFixed(2))
	assert.Equal(t, "12.00", report.TotalCost.StringFixed(2))
	assert.Equal(t, "88.00", report.TotalProfit.StringFixed(2))
}

func TestAnalyzeRejectsInvertedRange(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.revenue.Analyze(context.Background(), t0, t0.Add(-48*time.Hour))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
