package service

import (
	"context"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
)

// EventPublisher delivers domain events after the owning transaction has
// committed. Implemented by broker.EventPublisher.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
	PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishRefundRequested(ctx context.Context, event *models.RefundRequestedEvent) error
	PublishRefundResolved(ctx context.Context, event *models.RefundResolvedEvent) error
}

// Locker is a distributed lock. Implemented by redisclient.Client.
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, name, token string) (bool, error)
}

// IdempotencyCache remembers which order a checkout idempotency key produced.
// Implemented by redisclient.Client.
type IdempotencyCache interface {
	RememberOrder(ctx context.Context, userID int64, key string, orderID int64, ttl time.Duration) error
	LookupOrder(ctx context.Context, userID int64, key string) (int64, bool, error)
}

func newBaseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}

// statusChange is a transition applied inside a transaction and announced
// once it commits.
type statusChange struct {
	orderID  int64
	from, to models.OrderStatus
	at       time.Time
}
