package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is owned by the catalog; the core only reads it and mutates
// quantity_in_stock and total_sold.
type Product struct {
	ID                 int64           `db:"id" json:"id"`
	Name               string          `db:"name" json:"name"`
	Image              string          `db:"image" json:"image"`
	Price              decimal.Decimal `db:"price" json:"price"`
	Cost               decimal.Decimal `db:"cost" json:"cost"`
	QuantityInStock    int             `db:"quantity_in_stock" json:"quantity_in_stock"`
	TotalSold          int             `db:"total_sold" json:"total_sold"`
	DiscountPercentage decimal.Decimal `db:"discount_percentage" json:"discount_percentage"`
	DiscountStart      *time.Time      `db:"discount_start" json:"discount_start,omitempty"`
	DiscountEnd        *time.Time      `db:"discount_end" json:"discount_end,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
}

var hundred = decimal.NewFromInt(100)

// DiscountedPrice returns the unit price at instant now, reduced by the
// discount percentage when now falls inside the discount window.
func (p *Product) DiscountedPrice(now time.Time) decimal.Decimal {
	if p.DiscountStart == nil || p.DiscountEnd == nil || !p.DiscountPercentage.IsPositive() {
		return p.Price
	}
	if now.Before(*p.DiscountStart) || now.After(*p.DiscountEnd) {
		return p.Price
	}
	factor := hundred.Sub(p.DiscountPercentage).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}

// Cart belongs to exactly one of a user or a guest token.
type Cart struct {
	ID         int64      `db:"id" json:"id"`
	UserID     *int64     `db:"user_id" json:"user_id,omitempty"`
	GuestToken *string    `db:"guest_token" json:"guest_token,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	Items      []CartLine `db:"-" json:"items"`
}

// CartItem is unique per (cart, product).
type CartItem struct {
	ID        int64 `db:"id" json:"id"`
	CartID    int64 `db:"cart_id" json:"cart_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// CartLine is a cart item priced at read time.
type CartLine struct {
	CartItem
	ProductName string          `json:"product_name"`
	UnitPrice   decimal.Decimal `json:"price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// Identity addresses a cart: either a registered user or a guest token.
type Identity struct {
	UserID     int64
	GuestToken string
}

func (i Identity) IsUser() bool { return i.UserID != 0 }

func (i Identity) IsZero() bool { return i.UserID == 0 && i.GuestToken == "" }

type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusInTransit  OrderStatus = "IN-TRANSIT"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCanceled   OrderStatus = "CANCELED"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCanceled
}

// Order is created at checkout. user_id and created_at never change.
type Order struct {
	ID               int64           `db:"id" json:"id"`
	UserID           int64           `db:"user_id" json:"user_id"`
	Status           OrderStatus     `db:"status" json:"status"`
	TotalPrice       decimal.Decimal `db:"total_price" json:"total_price"`
	IdempotencyKey   *string         `db:"idempotency_key" json:"-"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	LastStatusChange time.Time       `db:"last_status_change" json:"last_status_change"`
	Items            []OrderItem     `db:"-" json:"items"`
}

// OrderItem is the snapshot of a purchased line. ProductID becomes nil when
// the product is deleted; the snapshot fields stay authoritative.
type OrderItem struct {
	ID                      int64           `db:"id" json:"id"`
	OrderID                 int64           `db:"order_id" json:"order_id"`
	ProductID               *int64          `db:"product_id" json:"product_id"`
	ProductName             string          `db:"product_name" json:"product_name"`
	ProductImage            string          `db:"product_image" json:"product_image"`
	ProductPrice            decimal.Decimal `db:"product_price" json:"product_price"`
	UnitCost                decimal.Decimal `db:"unit_cost" json:"-"`
	Quantity                int             `db:"quantity" json:"quantity"`
	Price                   decimal.Decimal `db:"price" json:"price"`
	OriginalPrice           decimal.Decimal `db:"original_price" json:"original_price"`
	RefundedQuantity        int             `db:"refunded_quantity" json:"refunded_quantity"`
	IsReturnRequested       bool            `db:"is_return_requested" json:"is_return_requested"`
	IsReturnApproved        bool            `db:"is_return_approved" json:"is_return_approved"`
	RequestedReturnQuantity int             `db:"requested_return_quantity" json:"requested_return_quantity"`
}

// RefundableQuantity is the ordered quantity not yet refunded.
func (i *OrderItem) RefundableQuantity() int {
	return i.Quantity - i.RefundedQuantity
}

// AmountFor returns the share of the line price paid for qty units.
func (i *OrderItem) AmountFor(qty int) decimal.Decimal {
	if i.Quantity == 0 {
		return decimal.Zero
	}
	return i.Price.Mul(decimal.NewFromInt(int64(qty))).Div(decimal.NewFromInt(int64(i.Quantity))).Round(2)
}

type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "PENDING"
	RefundStatusApproved RefundStatus = "APPROVED"
	RefundStatusDenied   RefundStatus = "DENIED"
)

// Refund is one return request against one order item.
type Refund struct {
	ID                int64           `db:"id" json:"id"`
	OrderItemID       int64           `db:"order_item_id" json:"order_item_id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	RequestedQuantity int             `db:"requested_quantity" json:"requested_quantity"`
	Reason            string          `db:"reason" json:"reason"`
	Status            RefundStatus    `db:"status" json:"status"`
	RefundAmount      decimal.Decimal `db:"refund_amount" json:"refund_amount"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	ResolvedAt        *time.Time      `db:"resolved_at" json:"resolved_at,omitempty"`
}

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusInTransit DeliveryStatus = "IN-TRANSIT"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusCanceled  DeliveryStatus = "CANCELED"
)

// Delivery is 1:1 with an order; address and products are captured at checkout.
type Delivery struct {
	ID              int64          `db:"id" json:"id"`
	OrderID         int64          `db:"order_id" json:"order_id"`
	CustomerName    string         `db:"customer_name" json:"customer_name"`
	DeliveryAddress string         `db:"delivery_address" json:"delivery_address"`
	Status          DeliveryStatus `db:"status" json:"status"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
	ProductIDs      []int64        `db:"-" json:"product_ids"`
}

// DeliveryStatusFor mirrors an order status onto its delivery.
func DeliveryStatusFor(s OrderStatus) DeliveryStatus {
	switch s {
	case OrderStatusInTransit:
		return DeliveryStatusInTransit
	case OrderStatusDelivered:
		return DeliveryStatusDelivered
	case OrderStatusCanceled:
		return DeliveryStatusCanceled
	default:
		return DeliveryStatusPending
	}
}

// OrderStatusFor mirrors a delivery status onto its order.
func OrderStatusFor(s DeliveryStatus) OrderStatus {
	switch s {
	case DeliveryStatusInTransit:
		return OrderStatusInTransit
	case DeliveryStatusDelivered:
		return OrderStatusDelivered
	case DeliveryStatusCanceled:
		return OrderStatusCanceled
	default:
		return OrderStatusProcessing
	}
}

// Profile holds the customer data the core needs from the identity provider.
type Profile struct {
	UserID      int64  `db:"user_id" json:"user_id"`
	Email       string `db:"email" json:"email"`
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	HomeAddress string `db:"home_address" json:"home_address"`
	Role        Role   `db:"role" json:"role"`
}

// SavedCard stores card data encrypted; only Last4 is kept in clear.
type SavedCard struct {
	ID              int64     `db:"id" json:"id"`
	UserID          int64     `db:"user_id" json:"-"`
	CardName        string    `db:"card_name" json:"card_name"`
	Last4           string    `db:"last4" json:"last4"`
	EncryptedNumber []byte    `db:"encrypted_number" json:"-"`
	EncryptedExpiry []byte    `db:"encrypted_expiry" json:"-"`
	EncryptedCVV    []byte    `db:"encrypted_cvv" json:"-"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// RevenueLine is the read model the revenue aggregator works on: one order
// line of a non-canceled order.
type RevenueLine struct {
	OrderID          int64           `db:"order_id"`
	OrderCreatedAt   time.Time       `db:"order_created_at"`
	Quantity         int             `db:"quantity"`
	RefundedQuantity int             `db:"refunded_quantity"`
	Price            decimal.Decimal `db:"price"`
	UnitCost         decimal.Decimal `db:"unit_cost"`
}
