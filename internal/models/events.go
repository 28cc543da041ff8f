package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPlaced        = "ORDER_PLACED"
	EventTypeOrderCanceled      = "ORDER_CANCELED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeRefundRequested    = "REFUND_REQUESTED"
	EventTypeRefundApproved     = "REFUND_APPROVED"
	EventTypeRefundDenied       = "REFUND_DENIED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderPlacedEvent published after a successful checkout
type OrderPlacedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	UserID     int64           `json:"user_id"`
	Email      string          `json:"email"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Items      []OrderItemData `json:"items"`
}

// OrderCanceledEvent published when a PROCESSING order is canceled
type OrderCanceledEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
	UserID  int64 `json:"user_id"`
}

// OrderStatusChangedEvent published on every lifecycle transition other than cancel
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID int64       `json:"order_id"`
	From    OrderStatus `json:"from"`
	To      OrderStatus `json:"to"`
}

// RefundRequestedEvent published when a customer asks for a return
type RefundRequestedEvent struct {
	BaseEvent
	RefundID    int64 `json:"refund_id"`
	OrderItemID int64 `json:"order_item_id"`
	UserID      int64 `json:"user_id"`
	Quantity    int   `json:"quantity"`
}

// RefundResolvedEvent published when a refund is approved or denied
type RefundResolvedEvent struct {
	BaseEvent
	RefundID    int64           `json:"refund_id"`
	OrderItemID int64           `json:"order_item_id"`
	UserID      int64           `json:"user_id"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID *int64          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}
