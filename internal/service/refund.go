package service

import (
	"context"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RefundService runs the return workflow. The refundable quantity is checked
// when a return is requested and again, under the order item lock, when it is
// approved; only the second check guards the refunded_quantity bound.
type RefundService struct {
	repo   store.Repository
	ledger *InventoryLedger
	events EventPublisher
	window time.Duration
	logger *zap.Logger
}

// NewRefundService creates a new refund service. window is how long after
// the order was placed a return may be requested.
func NewRefundService(repo store.Repository, ledger *InventoryLedger, events EventPublisher, window time.Duration) *RefundService {
	return &RefundService{
		repo:   repo,
		ledger: ledger,
		events: events,
		window: window,
		logger: util.GetLogger(),
	}
}

// RequestReturn opens a PENDING refund for qty units of one of the user's
// delivered order lines.
func (s *RefundService) RequestReturn(ctx context.Context, userID, orderItemID int64, qty int, reason string, now time.Time) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.RequestReturn")
	defer span.End()

	var refund *models.Refund
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		item, err := tx.LockOrderItem(ctx, orderItemID)
		if err != nil {
			return err
		}
		order, err := tx.GetOrder(ctx, item.OrderID)
		if err != nil {
			return err
		}
		if order.UserID != userID {
			return apperr.NotFound("refund.RequestReturn", "order item", orderItemID)
		}

		if order.Status != models.OrderStatusDelivered {
			return apperr.New("refund.RequestReturn", apperr.ErrInvalidState, "only delivered orders can be returned")
		}
		if s.window > 0 && now.Sub(order.CreatedAt) > s.window {
			return apperr.New("refund.RequestReturn", apperr.ErrInvalidState, "the return window for this order has closed")
		}
		if qty <= 0 || qty > item.RefundableQuantity() {
			return apperr.New("refund.RequestReturn", apperr.ErrInvalidQuantity,
				"quantity must be between 1 and %d", item.RefundableQuantity())
		}

		refund = &models.Refund{
			OrderItemID:       item.ID,
			UserID:            userID,
			RequestedQuantity: qty,
			Reason:            strings.TrimSpace(reason),
			Status:            models.RefundStatusPending,
			RefundAmount:      decimal.Zero,
			CreatedAt:         now,
		}
		if err := tx.CreateRefund(ctx, refund); err != nil {
			return err
		}

		item.IsReturnRequested = true
		item.RequestedReturnQuantity = qty
		return tx.UpdateOrderItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	util.RefundsTotal.WithLabelValues("requested").Inc()
	s.logger.Info("Refund requested",
		zap.Int64("refund_id", refund.ID),
		zap.Int64("order_item_id", orderItemID),
		zap.Int("quantity", qty))

	event := &models.RefundRequestedEvent{
		BaseEvent:   newBaseEvent(models.EventTypeRefundRequested, now),
		RefundID:    refund.ID,
		OrderItemID: refund.OrderItemID,
		UserID:      refund.UserID,
		Quantity:    refund.RequestedQuantity,
	}
	if err := s.events.PublishRefundRequested(ctx, event); err != nil {
		s.logger.Error("Failed to publish RefundRequested event", zap.Int64("refund_id", refund.ID), zap.Error(err))
	}
	return refund, nil
}

// Approve settles a PENDING refund: computes the amount, returns the units to
// stock and bumps refunded_quantity, all in one transaction.
func (s *RefundService) Approve(ctx context.Context, refundID int64, now time.Time) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Approve")
	defer span.End()

	var refund *models.Refund
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if refund, err = lockPending(ctx, tx, "refund.Approve", refundID); err != nil {
			return err
		}

		item, err := tx.LockOrderItem(ctx, refund.OrderItemID)
		if err != nil {
			return err
		}
		if refund.RequestedQuantity > item.RefundableQuantity() {
			return apperr.New("refund.Approve", apperr.ErrInvalidQuantity,
				"requested %d but only %d refundable", refund.RequestedQuantity, item.RefundableQuantity())
		}

		amount := item.AmountFor(refund.RequestedQuantity)
		if err := s.ledger.releaseLine(ctx, tx, item, refund.RequestedQuantity); err != nil {
			return err
		}

		item.RefundedQuantity += refund.RequestedQuantity
		item.IsReturnApproved = true
		if err := tx.UpdateOrderItem(ctx, item); err != nil {
			return err
		}

		refund.Status = models.RefundStatusApproved
		refund.RefundAmount = amount
		refund.ResolvedAt = &now
		return tx.UpdateRefund(ctx, refund)
	})
	if err != nil {
		return nil, err
	}

	util.RefundsTotal.WithLabelValues("approved").Inc()
	s.logger.Info("Refund approved",
		zap.Int64("refund_id", refund.ID),
		zap.String("amount", refund.RefundAmount.StringFixed(2)))
	s.publishResolved(ctx, refund, models.EventTypeRefundApproved, now)
	return refund, nil
}

// Deny closes a PENDING refund with no stock or order item changes.
func (s *RefundService) Deny(ctx context.Context, refundID int64, now time.Time) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Deny")
	defer span.End()

	var refund *models.Refund
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if refund, err = lockPending(ctx, tx, "refund.Deny", refundID); err != nil {
			return err
		}
		refund.Status = models.RefundStatusDenied
		refund.ResolvedAt = &now
		return tx.UpdateRefund(ctx, refund)
	})
	if err != nil {
		return nil, err
	}

	util.RefundsTotal.WithLabelValues("denied").Inc()
	s.logger.Info("Refund denied", zap.Int64("refund_id", refund.ID))
	s.publishResolved(ctx, refund, models.EventTypeRefundDenied, now)
	return refund, nil
}

// ListRefunds returns refunds, filtered by status when one is given
func (s *RefundService) ListRefunds(ctx context.Context, status models.RefundStatus) ([]models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.ListRefunds")
	defer span.End()

	switch status {
	case "", models.RefundStatusPending, models.RefundStatusApproved, models.RefundStatusDenied:
	default:
		return nil, apperr.New("refund.ListRefunds", apperr.ErrInvalidInput, "unknown refund status %q", status)
	}

	var refunds []models.Refund
	err := s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		refunds, err = tx.ListRefunds(ctx, status)
		return err
	})
	return refunds, err
}

func (s *RefundService) publishResolved(ctx context.Context, refund *models.Refund, eventType string, now time.Time) {
	event := &models.RefundResolvedEvent{
		BaseEvent:   newBaseEvent(eventType, now),
		RefundID:    refund.ID,
		OrderItemID: refund.OrderItemID,
		UserID:      refund.UserID,
		Quantity:    refund.RequestedQuantity,
		Amount:      refund.RefundAmount,
	}
	if err := s.events.PublishRefundResolved(ctx, event); err != nil {
		s.logger.Error("Failed to publish refund event",
			zap.Int64("refund_id", refund.ID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

func lockPending(ctx context.Context, tx store.Tx, op string, refundID int64) (*models.Refund, error) {
	refund, err := tx.LockRefund(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if refund.Status != models.RefundStatusPending {
		return nil, &apperr.Error{
			Op:      op,
			Kind:    apperr.ErrInvalidState,
			ID:      formatID(refundID),
			Message: "refund is already " + string(refund.Status),
		}
	}
	return refund, nil
}
