package store

import (
	"context"
	"time"

	"storefront/internal/models"
)

// Repository is the durable store. Every mutation runs inside WithTx: the
// callback's writes commit together when it returns nil and are discarded
// otherwise.
type Repository interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Tx is the set of operations available inside a transaction. Lock* methods
// take a row lock held until the transaction ends. Lookups of missing rows
// return an error wrapping apperr.ErrNotFound.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	LockProduct(ctx context.Context, id int64) (*models.Product, error)
	UpdateProductStock(ctx context.Context, id int64, quantityInStock, totalSold int) error

	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	GetSessionUser(ctx context.Context, token string, now time.Time) (int64, error)

	GetCartByUser(ctx context.Context, userID int64) (*models.Cart, error)
	GetCartByGuestToken(ctx context.Context, token string) (*models.Cart, error)
	CreateCart(ctx context.Context, cart *models.Cart) error
	DeleteCart(ctx context.Context, cartID int64) error
	ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error)
	GetCartItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error)
	GetCartItemByProduct(ctx context.Context, cartID, productID int64) (*models.CartItem, error)
	SaveCartItem(ctx context.Context, item *models.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, itemID int64) error
	ClearCart(ctx context.Context, cartID int64) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	UpdateOrder(ctx context.Context, order *models.Order) error
	ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	ListOrdersByStatus(ctx context.Context, statuses ...models.OrderStatus) ([]models.Order, error)
	ListOrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error)

	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error)
	LockOrderItem(ctx context.Context, id int64) (*models.OrderItem, error)
	UpdateOrderItem(ctx context.Context, item *models.OrderItem) error
	ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	ListRevenueLines(ctx context.Context, from, to time.Time) ([]models.RevenueLine, error)

	CreateRefund(ctx context.Context, refund *models.Refund) error
	GetRefund(ctx context.Context, id int64) (*models.Refund, error)
	LockRefund(ctx context.Context, id int64) (*models.Refund, error)
	UpdateRefund(ctx context.Context, refund *models.Refund) error
	ListRefunds(ctx context.Context, status models.RefundStatus) ([]models.Refund, error)

	CreateDelivery(ctx context.Context, delivery *models.Delivery) error
	GetDelivery(ctx context.Context, id int64) (*models.Delivery, error)
	GetDeliveryByOrder(ctx context.Context, orderID int64) (*models.Delivery, error)
	UpdateDelivery(ctx context.Context, delivery *models.Delivery) error
	ListDeliveries(ctx context.Context) ([]models.Delivery, error)

	CreateCard(ctx context.Context, card *models.SavedCard) error
	GetCard(ctx context.Context, userID, cardID int64) (*models.SavedCard, error)
	ListCards(ctx context.Context, userID int64) ([]models.SavedCard, error)

	// MarkEventProcessed records eventID and reports whether it was new.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
}
