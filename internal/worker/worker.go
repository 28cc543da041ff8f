package worker

import (
	"context"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/service"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// NotificationWorker turns domain events into customer notifications.
// Each event is handled at most once: the processed_events mark and the
// notifier call share a transaction, so a failed notification leaves no mark
// and the consumer's next attempt goes through.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	repo         store.Repository
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, repo store.Repository, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		repo:         repo,
		notifier:     notifier,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnOrderPlaced(func(ctx context.Context, e *models.OrderPlacedEvent) error {
		return w.once(ctx, e.BaseEvent, func() error { return notifier.OrderPlaced(ctx, e) })
	})
	w.eventHandler.OnOrderCanceled(func(ctx context.Context, e *models.OrderCanceledEvent) error {
		return w.once(ctx, e.BaseEvent, func() error { return notifier.OrderCanceled(ctx, e) })
	})
	w.eventHandler.OnOrderStatusChanged(func(ctx context.Context, e *models.OrderStatusChangedEvent) error {
		return w.once(ctx, e.BaseEvent, func() error { return notifier.OrderStatusChanged(ctx, e) })
	})
	w.eventHandler.OnRefundRequested(func(ctx context.Context, e *models.RefundRequestedEvent) error {
		return w.once(ctx, e.BaseEvent, func() error { return notifier.RefundRequested(ctx, e) })
	})
	w.eventHandler.OnRefundResolved(func(ctx context.Context, e *models.RefundResolvedEvent) error {
		return w.once(ctx, e.BaseEvent, func() error { return notifier.RefundResolved(ctx, e) })
	})

	return w
}

// Start consumes until ctx is canceled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) once(ctx context.Context, base models.BaseEvent, notify func() error) (err error) {
	ctx, span := util.StartSpan(ctx, "NotificationWorker.handle")
	defer func() { util.EndSpan(span, err) }()

	duplicate := false
	err = w.repo.WithTx(ctx, func(tx store.Tx) error {
		if base.EventID != "" {
			fresh, err := tx.MarkEventProcessed(ctx, base.EventID, base.EventType)
			if err != nil {
				return err
			}
			if !fresh {
				duplicate = true
				return nil
			}
		}
		return notify()
	})

	switch {
	case err != nil:
		util.NotificationsTotal.WithLabelValues(base.EventType, "failed").Inc()
		w.logger.Error("Notification failed",
			zap.String("event_id", base.EventID),
			zap.String("event_type", base.EventType),
			zap.Error(err))
	case duplicate:
		util.NotificationsTotal.WithLabelValues(base.EventType, "duplicate").Inc()
		w.logger.Debug("Event already processed, skipping", zap.String("event_id", base.EventID))
	default:
		util.NotificationsTotal.WithLabelValues(base.EventType, "sent").Inc()
	}
	return err
}

const sweepLock = "status-sweep"

// StatusSweeper periodically applies time-driven order transitions. A Redis
// lock keeps concurrent replicas from sweeping at the same time.
type StatusSweeper struct {
	orders   *service.OrderService
	locks    service.Locker
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewStatusSweeper creates a sweeper that runs every interval
func NewStatusSweeper(orders *service.OrderService, locks service.Locker, interval time.Duration) *StatusSweeper {
	return &StatusSweeper{
		orders:   orders,
		locks:    locks,
		interval: interval,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Start sweeps on every tick until ctx is canceled
func (s *StatusSweeper) Start(ctx context.Context) error {
	s.logger.Info("Starting status sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping status sweeper")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Status sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs one sweep if no other replica holds the lock. It reports
// how many orders moved.
func (s *StatusSweeper) RunOnce(ctx context.Context) (int, error) {
	token, ok, err := s.locks.AcquireLock(ctx, sweepLock, s.interval)
	if err != nil {
		return 0, err
	}
	if !ok {
		s.logger.Debug("Status sweep already running elsewhere")
		return 0, nil
	}
	defer func() {
		if _, err := s.locks.ReleaseLock(context.Background(), sweepLock, token); err != nil {
			s.logger.Warn("Failed to release sweep lock", zap.Error(err))
		}
	}()

	moved, err := s.orders.SweepStatuses(ctx, s.now())
	if moved > 0 {
		s.logger.Info("Status sweep advanced orders", zap.Int("count", moved))
	}
	return moved, err
}
