package worker

import (
	"context"

	"storefront/internal/models"

	"go.uber.org/zap"
)

// Notifier delivers customer-facing messages. Email and invoice PDF
// rendering live outside this service.
type Notifier interface {
	OrderPlaced(ctx context.Context, e *models.OrderPlacedEvent) error
	OrderCanceled(ctx context.Context, e *models.OrderCanceledEvent) error
	OrderStatusChanged(ctx context.Context, e *models.OrderStatusChangedEvent) error
	RefundRequested(ctx context.Context, e *models.RefundRequestedEvent) error
	RefundResolved(ctx context.Context, e *models.RefundResolvedEvent) error
}

// LogNotifier records notifications in the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) OrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	n.logger.Info("Invoice email queued",
		zap.Int64("order_id", e.OrderID),
		zap.String("email", e.Email),
		zap.String("total_price", e.TotalPrice.StringFixed(2)),
		zap.Int("items", len(e.Items)))
	return nil
}

func (n *LogNotifier) OrderCanceled(_ context.Context, e *models.OrderCanceledEvent) error {
	n.logger.Info("Cancellation notice queued", zap.Int64("order_id", e.OrderID), zap.Int64("user_id", e.UserID))
	return nil
}

func (n *LogNotifier) OrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	n.logger.Info("Order status notice queued",
		zap.Int64("order_id", e.OrderID),
		zap.String("from", string(e.From)),
		zap.String("to", string(e.To)))
	return nil
}

func (n *LogNotifier) RefundRequested(_ context.Context, e *models.RefundRequestedEvent) error {
	n.logger.Info("Refund request acknowledged", zap.Int64("refund_id", e.RefundID), zap.Int("quantity", e.Quantity))
	return nil
}

func (n *LogNotifier) RefundResolved(_ context.Context, e *models.RefundResolvedEvent) error {
	n.logger.Info("Refund decision notice queued",
		zap.Int64("refund_id", e.RefundID),
		zap.String("event_type", e.EventType),
		zap.String("amount", e.Amount.StringFixed(2)))
	return nil
}
