package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// PublishOrderPlaced publishes OrderPlaced event
func (ep *EventPublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderCanceled publishes OrderCanceled event
func (ep *EventPublisher) PublishOrderCanceled(ctx context.Context, event *models.OrderCanceledEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event)
}

// PublishRefundRequested publishes RefundRequested event
func (ep *EventPublisher) PublishRefundRequested(ctx context.Context, event *models.RefundRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("refund-%d", event.RefundID), event)
}

// PublishRefundResolved publishes RefundApproved or RefundDenied, per event.EventType
func (ep *EventPublisher) PublishRefundResolved(ctx context.Context, event *models.RefundResolvedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("refund-%d", event.RefundID), event)
}

// EventHandler routes decoded events to registered callbacks
type EventHandler struct {
	onOrderPlaced        func(context.Context, *models.OrderPlacedEvent) error
	onOrderCanceled      func(context.Context, *models.OrderCanceledEvent) error
	onOrderStatusChanged func(context.Context, *models.OrderStatusChangedEvent) error
	onRefundRequested    func(context.Context, *models.RefundRequestedEvent) error
	onRefundResolved     func(context.Context, *models.RefundResolvedEvent) error
	logger               *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

func (eh *EventHandler) OnOrderPlaced(handler func(context.Context, *models.OrderPlacedEvent) error) {
	eh.onOrderPlaced = handler
}

func (eh *EventHandler) OnOrderCanceled(handler func(context.Context, *models.OrderCanceledEvent) error) {
	eh.onOrderCanceled = handler
}

func (eh *EventHandler) OnOrderStatusChanged(handler func(context.Context, *models.OrderStatusChangedEvent) error) {
	eh.onOrderStatusChanged = handler
}

func (eh *EventHandler) OnRefundRequested(handler func(context.Context, *models.RefundRequestedEvent) error) {
	eh.onRefundRequested = handler
}

// OnRefundResolved receives both REFUND_APPROVED and REFUND_DENIED
func (eh *EventHandler) OnRefundResolved(handler func(context.Context, *models.RefundResolvedEvent) error) {
	eh.onRefundResolved = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderPlaced:
		return dispatch(ctx, msg, eh.onOrderPlaced)
	case models.EventTypeOrderCanceled:
		return dispatch(ctx, msg, eh.onOrderCanceled)
	case models.EventTypeOrderStatusChanged:
		return dispatch(ctx, msg, eh.onOrderStatusChanged)
	case models.EventTypeRefundRequested:
		return dispatch(ctx, msg, eh.onRefundRequested)
	case models.EventTypeRefundApproved, models.EventTypeRefundDenied:
		return dispatch(ctx, msg, eh.onRefundResolved)
	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

func dispatch[E any](ctx context.Context, msg kafka.Message, handler func(context.Context, *E) error) error {
	if handler == nil {
		return nil
	}
	var event E
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", event, err)
	}
	return handler(ctx, &event)
}
