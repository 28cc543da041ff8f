package service

import (
	"context"
	"sort"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// DayRevenue is one calendar day (UTC) of the breakdown
type DayRevenue struct {
	Date     string          `json:"date"`
	Revenue  decimal.Decimal `json:"revenue"`
	Cost     decimal.Decimal `json:"cost"`
	Profit   decimal.Decimal `json:"profit"`
	Refunded decimal.Decimal `json:"refunded"`
}

// RevenueReport is net of refunds and excludes canceled orders. Cost comes
// from the unit cost captured on each order line at checkout, so deleting
// or repricing a product later does not change past figures.
type RevenueReport struct {
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalProfit   decimal.Decimal `json:"total_profit"`
	TotalRefunded decimal.Decimal `json:"total_refunded"`
	RevenueByDate []DayRevenue    `json:"revenue_by_date"`
}

// RevenueService is the read-only revenue and profit aggregator
type RevenueService struct {
	repo store.Repository
}

// NewRevenueService creates a new revenue service
func NewRevenueService(repo store.Repository) *RevenueService {
	return &RevenueService{repo: repo}
}

// Analyze reports revenue and profit for orders created between the two
// calendar days, both inclusive.
func (s *RevenueService) Analyze(ctx context.Context, start, end time.Time) (*RevenueReport, error) {
	ctx, span := util.StartSpan(ctx, "RevenueService.Analyze")
	defer span.End()

	from, to, err := dayRange(start, end)
	if err != nil {
		return nil, err
	}

	var lines []models.RevenueLine
	err = s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		lines, err = tx.ListRevenueLines(ctx, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	report := Aggregate(lines)
	report.StartDate = from.Format(dateLayout)
	report.EndDate = to.AddDate(0, 0, -1).Format(dateLayout)
	return report, nil
}

// Aggregate folds order lines into totals and a per-day breakdown ordered by
// date. For each line the kept fraction (quantity - refunded) / quantity of
// the line price counts as revenue and the refunded fraction as refunded.
func Aggregate(lines []models.RevenueLine) *RevenueReport {
	report := &RevenueReport{
		TotalRevenue:  decimal.Zero,
		TotalCost:     decimal.Zero,
		TotalProfit:   decimal.Zero,
		TotalRefunded: decimal.Zero,
		RevenueByDate: []DayRevenue{},
	}

	days := map[string]*DayRevenue{}
	for _, line := range lines {
		if line.Quantity <= 0 {
			continue
		}

		qty := decimal.NewFromInt(int64(line.Quantity))
		kept := decimal.NewFromInt(int64(line.Quantity - line.RefundedQuantity))
		refunded := decimal.NewFromInt(int64(line.RefundedQuantity))

		revenue := line.Price.Mul(kept).Div(qty)
		cost := line.UnitCost.Mul(kept)
		refundedAmount := line.Price.Mul(refunded).Div(qty)

		date := line.OrderCreatedAt.UTC().Format(dateLayout)
		day, ok := days[date]
		if !ok {
			day = &DayRevenue{Date: date, Revenue: decimal.Zero, Cost: decimal.Zero, Profit: decimal.Zero, Refunded: decimal.Zero}
			days[date] = day
		}
		day.Revenue = day.Revenue.Add(revenue)
		day.Cost = day.Cost.Add(cost)
		day.Refunded = day.Refunded.Add(refundedAmount)

		report.TotalRevenue = report.TotalRevenue.Add(revenue)
		report.TotalCost = report.TotalCost.Add(cost)
		report.TotalRefunded = report.TotalRefunded.Add(refundedAmount)
	}

	for _, day := range days {
		day.Revenue = day.Revenue.Round(2)
		day.Cost = day.Cost.Round(2)
		day.Refunded = day.Refunded.Round(2)
		day.Profit = day.Revenue.Sub(day.Cost)
		report.RevenueByDate = append(report.RevenueByDate, *day)
	}
	sort.Slice(report.RevenueByDate, func(i, j int) bool {
		return report.RevenueByDate[i].Date < report.RevenueByDate[j].Date
	})

	report.TotalRevenue = report.TotalRevenue.Round(2)
	report.TotalCost = report.TotalCost.Round(2)
	report.TotalRefunded = report.TotalRefunded.Round(2)
	report.TotalProfit = report.TotalRevenue.Sub(report.TotalCost)
	return report
}
