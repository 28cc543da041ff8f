package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// StatusThresholds are the dwell times after which an order advances on its
// own: PROCESSING to IN-TRANSIT after ProcessingAfter, IN-TRANSIT to
// DELIVERED after InTransitAfter.
type StatusThresholds struct {
	ProcessingAfter time.Duration
	InTransitAfter  time.Duration
}

// UpdateStatusByTime advances order by at most one step when the time since
// its last status change exceeds the threshold for its current status. The
// timer restarts at now. It reports whether the order changed; calling it
// again within the same window is a no-op.
func UpdateStatusByTime(order *models.Order, now time.Time, th StatusThresholds) bool {
	elapsed := now.Sub(order.LastStatusChange)

	switch order.Status {
	case models.OrderStatusProcessing:
		if elapsed <= th.ProcessingAfter {
			return false
		}
		order.Status = models.OrderStatusInTransit
	case models.OrderStatusInTransit:
		if elapsed <= th.InTransitAfter {
			return false
		}
		order.Status = models.OrderStatusDelivered
	default:
		return false
	}

	order.LastStatusChange = now
	return true
}

// OrderService runs the order lifecycle
type OrderService struct {
	repo       store.Repository
	ledger     *InventoryLedger
	events     EventPublisher
	thresholds StatusThresholds
	logger     *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(repo store.Repository, ledger *InventoryLedger, events EventPublisher, thresholds StatusThresholds) *OrderService {
	return &OrderService{
		repo:       repo,
		ledger:     ledger,
		events:     events,
		thresholds: thresholds,
		logger:     util.GetLogger(),
	}
}

// ListOrders returns the user's orders, newest first, after bringing their
// time-driven status up to date.
func (s *OrderService) ListOrders(ctx context.Context, userID int64, now time.Time) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	var (
		orders  []models.Order
		changes []statusChange
	)
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		list, err := tx.ListOrdersByUser(ctx, userID)
		if err != nil {
			return err
		}

		orders = make([]models.Order, 0, len(list))
		for _, o := range list {
			order := &o
			if !o.Status.Terminal() {
				var change *statusChange
				order, change, err = s.advance(ctx, tx, o.ID, now)
				if err != nil {
					return err
				}
				if change != nil {
					changes = append(changes, *change)
				}
			}
			if order, err = loadOrderItems(ctx, tx, order); err != nil {
				return err
			}
			orders = append(orders, *order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, changes, "read")
	return orders, nil
}

// LatestOrder returns the user's most recent order.
func (s *OrderService) LatestOrder(ctx context.Context, userID int64, now time.Time) (*models.Order, error) {
	orders, err := s.ListOrders(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, apperr.New("order.LatestOrder", apperr.ErrNotFound, "no orders found")
	}
	return &orders[0], nil
}

// SweepStatuses applies UpdateStatusByTime to every in-flight order, one
// transaction per order. Failures are logged and do not stop the sweep.
func (s *OrderService) SweepStatuses(ctx context.Context, now time.Time) (advanced int, err error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SweepStatuses")
	defer func() { util.EndSpan(span, err) }()

	var pending []models.Order
	err = s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		pending, err = tx.ListOrdersByStatus(ctx, models.OrderStatusProcessing, models.OrderStatusInTransit)
		return err
	})
	if err != nil {
		return 0, err
	}

	for _, o := range pending {
		if ctx.Err() != nil {
			return advanced, ctx.Err()
		}
		// skip rows that cannot be due yet without taking a lock
		candidate := o
		if !UpdateStatusByTime(&candidate, now, s.thresholds) {
			continue
		}

		var change *statusChange
		err := s.repo.WithTx(ctx, func(tx store.Tx) error {
			var err error
			_, change, err = s.advance(ctx, tx, o.ID, now)
			return err
		})
		if err != nil {
			s.logger.Error("Failed to advance order status", zap.Int64("order_id", o.ID), zap.Error(err))
			continue
		}
		if change != nil {
			advanced++
			s.announce(ctx, []statusChange{*change}, "sweep")
		}
	}
	return advanced, nil
}

// Cancel cancels one of the user's orders. Only PROCESSING orders can be
// canceled; every line goes back to stock in the same transaction as the
// status flip.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID int64, now time.Time) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	var order *models.Order
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		current, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if current.UserID != userID {
			return apperr.NotFound("order.Cancel", "order", orderID)
		}
		order, err = s.cancelLocked(ctx, tx, orderID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishCanceled(ctx, order, now)
	return order, nil
}

// cancelLocked cancels orderID inside tx after applying any due time-driven
// transition, so an order that has already shipped cannot be canceled.
func (s *OrderService) cancelLocked(ctx context.Context, tx store.Tx, orderID int64, now time.Time) (*models.Order, error) {
	order, _, err := s.advance(ctx, tx, orderID, now)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusProcessing {
		return nil, &apperr.Error{
			Op:      "order.Cancel",
			Kind:    apperr.ErrInvalidState,
			ID:      formatID(orderID),
			Message: "only PROCESSING orders can be canceled, order is " + string(order.Status),
		}
	}

	items, err := tx.ListOrderItems(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if err := s.ledger.releaseLine(ctx, tx, &items[i], items[i].Quantity); err != nil {
			return nil, err
		}
	}

	order.Status = models.OrderStatusCanceled
	order.LastStatusChange = now
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := syncDelivery(ctx, tx, order, now); err != nil {
		return nil, err
	}

	order.Items = items
	return order, nil
}

// advance locks the order and applies the time-driven transition. The
// returned change is nil when nothing moved.
func (s *OrderService) advance(ctx context.Context, tx store.Tx, orderID int64, now time.Time) (*models.Order, *statusChange, error) {
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	from := order.Status
	if !UpdateStatusByTime(order, now, s.thresholds) {
		return order, nil, nil
	}

	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, nil, err
	}
	if err := syncDelivery(ctx, tx, order, now); err != nil {
		return nil, nil, err
	}
	return order, &statusChange{orderID: order.ID, from: from, to: order.Status, at: now}, nil
}

func (s *OrderService) announce(ctx context.Context, changes []statusChange, trigger string) {
	for _, c := range changes {
		util.OrderStatusTransitions.WithLabelValues(string(c.to), trigger).Inc()
		s.logger.Info("Order status changed",
			zap.Int64("order_id", c.orderID),
			zap.String("from", string(c.from)),
			zap.String("to", string(c.to)),
			zap.String("trigger", trigger))

		event := &models.OrderStatusChangedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderStatusChanged, c.at),
			OrderID:   c.orderID,
			From:      c.from,
			To:        c.to,
		}
		if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderStatusChanged event", zap.Int64("order_id", c.orderID), zap.Error(err))
		}
	}
}

func (s *OrderService) publishCanceled(ctx context.Context, order *models.Order, now time.Time) {
	util.OrdersCanceledTotal.Inc()
	util.OrderStatusTransitions.WithLabelValues(string(models.OrderStatusCanceled), "cancel").Inc()
	s.logger.Info("Order canceled", zap.Int64("order_id", order.ID))

	event := &models.OrderCanceledEvent{
		BaseEvent: newBaseEvent(models.EventTypeOrderCanceled, now),
		OrderID:   order.ID,
		UserID:    order.UserID,
	}
	if err := s.events.PublishOrderCanceled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCanceled event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

// ListInvoices returns the orders created between the two calendar days,
// both inclusive, with their lines.
func (s *OrderService) ListInvoices(ctx context.Context, start, end time.Time) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListInvoices")
	defer span.End()

	from, to, err := dayRange(start, end)
	if err != nil {
		return nil, err
	}

	var orders []models.Order
	err = s.repo.View(ctx, func(tx store.Tx) error {
		list, err := tx.ListOrdersBetween(ctx, from, to)
		if err != nil {
			return err
		}
		orders = make([]models.Order, 0, len(list))
		for i := range list {
			order, err := loadOrderItems(ctx, tx, &list[i])
			if err != nil {
				return err
			}
			orders = append(orders, *order)
		}
		return nil
	})
	return orders, err
}

// GetInvoice returns one order with its lines
func (s *OrderService) GetInvoice(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetInvoice")
	defer span.End()

	var order *models.Order
	err := s.repo.View(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order, err = loadOrderItems(ctx, tx, o)
		return err
	})
	return order, err
}

// syncDelivery mirrors the order status onto its delivery. Orders without a
// delivery row are left alone.
func syncDelivery(ctx context.Context, tx store.Tx, order *models.Order, now time.Time) error {
	delivery, err := tx.GetDeliveryByOrder(ctx, order.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	status := models.DeliveryStatusFor(order.Status)
	if delivery.Status == status {
		return nil
	}
	delivery.Status = status
	delivery.UpdatedAt = now
	return tx.UpdateDelivery(ctx, delivery)
}

func loadOrderItems(ctx context.Context, tx store.Tx, order *models.Order) (*models.Order, error) {
	items, err := tx.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// dayRange turns two calendar dates into the half-open UTC interval covering
// both days.
func dayRange(start, end time.Time) (time.Time, time.Time, error) {
	from := truncateDay(start)
	to := truncateDay(end).AddDate(0, 0, 1)
	if !from.Before(to) {
		return time.Time{}, time.Time{}, apperr.New("dayRange", apperr.ErrInvalidInput, "start_date must not be after end_date")
	}
	return from, to, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
