package service

import (
	"context"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

var deliveryRank = map[models.DeliveryStatus]int{
	models.DeliveryStatusPending:   0,
	models.DeliveryStatusInTransit: 1,
	models.DeliveryStatusDelivered: 2,
}

// DeliveryService lets product managers move deliveries along. The linked
// order follows in the same transaction.
type DeliveryService struct {
	repo   store.Repository
	orders *OrderService
	logger *zap.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(repo store.Repository, orders *OrderService) *DeliveryService {
	return &DeliveryService{repo: repo, orders: orders, logger: util.GetLogger()}
}

// ListDeliveries returns every delivery with its linked product ids
func (s *DeliveryService) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.ListDeliveries")
	defer span.End()

	var deliveries []models.Delivery
	err := s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		deliveries, err = tx.ListDeliveries(ctx)
		return err
	})
	return deliveries, err
}

// UpdateStatus moves a delivery forward and mirrors the change onto its order.
// Setting the current status again is a no-op. CANCELED cancels the order,
// which releases its stock and requires the order to still be PROCESSING.
func (s *DeliveryService) UpdateStatus(ctx context.Context, deliveryID int64, status models.DeliveryStatus, now time.Time) (*models.Delivery, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.UpdateStatus")
	defer span.End()

	_, known := deliveryRank[status]
	if !known && status != models.DeliveryStatusCanceled {
		return nil, apperr.New("delivery.UpdateStatus", apperr.ErrInvalidInput, "unknown delivery status %q", status)
	}

	var (
		delivery *models.Delivery
		canceled *models.Order
		change   *statusChange
	)
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		d, err := tx.GetDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		order, err := tx.LockOrder(ctx, d.OrderID)
		if err != nil {
			return err
		}

		if status == models.DeliveryStatusCanceled {
			if canceled, err = s.orders.cancelLocked(ctx, tx, order.ID, now); err != nil {
				return err
			}
			delivery, err = tx.GetDelivery(ctx, deliveryID)
			return err
		}

		if order.Status.Terminal() {
			return apperr.New("delivery.UpdateStatus", apperr.ErrInvalidState, "order is already %s", order.Status)
		}
		current := models.DeliveryStatusFor(order.Status)
		if status == current {
			delivery = d
			return nil
		}
		if deliveryRank[status] < deliveryRank[current] {
			return apperr.New("delivery.UpdateStatus", apperr.ErrInvalidState, "cannot move delivery back from %s to %s", current, status)
		}

		from := order.Status
		order.Status = models.OrderStatusFor(status)
		order.LastStatusChange = now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		d.Status = status
		d.UpdatedAt = now
		if err := tx.UpdateDelivery(ctx, d); err != nil {
			return err
		}
		delivery = d
		change = &statusChange{orderID: order.ID, from: from, to: order.Status, at: now}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if canceled != nil {
		s.orders.publishCanceled(ctx, canceled, now)
	}
	if change != nil {
		s.orders.announce(ctx, []statusChange{*change}, "delivery")
	}
	return delivery, nil
}
