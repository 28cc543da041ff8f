package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder creates a new order
func (t *pgTx) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, status, total_price, idempotency_key, created_at, last_status_change)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	err := t.tx.GetContext(ctx, &order.ID, query,
		order.UserID, order.Status, order.TotalPrice, order.IdempotencyKey,
		order.CreatedAt, order.LastStatusChange)
	if err != nil {
		return conflict(err, "store.CreateOrder", "duplicate idempotency key")
	}
	return nil
}

// GetOrder retrieves an order by ID
func (t *pgTx) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "store.GetOrder", "order", id)
	}
	return &order, nil
}

// LockOrder reads an order with FOR UPDATE
func (t *pgTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "store.LockOrder", "order", id)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves a user's order by idempotency key
func (t *pgTx) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if err != nil {
		return nil, notFound(err, "store.GetOrderByIdempotencyKey", "order", key)
	}
	return &order, nil
}

// UpdateOrder persists the mutable order fields
func (t *pgTx) UpdateOrder(ctx context.Context, order *models.Order) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, total_price = $2, last_status_change = $3 WHERE id = $4",
		order.Status, order.TotalPrice, order.LastStatusChange, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	return mustAffect(res, "store.UpdateOrder", "order", order.ID)
}

// ListOrdersByUser retrieves orders for a user, newest first
func (t *pgTx) ListOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := t.tx.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC", userID)
	return orders, err
}

// ListOrdersByStatus retrieves orders in any of the given statuses
func (t *pgTx) ListOrdersByStatus(ctx context.Context, statuses ...models.OrderStatus) ([]models.Order, error) {
	orders := []models.Order{}
	if len(statuses) == 0 {
		return orders, nil
	}

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query, args, err := sqlx.In("SELECT * FROM orders WHERE status IN (?) ORDER BY id", values)
	if err != nil {
		return nil, err
	}
	query = t.tx.Rebind(query)

	err = t.tx.SelectContext(ctx, &orders, query, args...)
	return orders, err
}

// ListOrdersBetween retrieves orders created in [from, to)
func (t *pgTx) ListOrdersBetween(ctx context.Context, from, to time.Time) ([]models.Order, error) {
	orders := []models.Order{}
	err := t.tx.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at, id", from, to)
	return orders, err
}

// CreateOrderItem creates a new order item snapshot
func (t *pgTx) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (order_id, product_id, product_name, product_image, product_price,
			unit_cost, quantity, price, original_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	return t.tx.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ProductID, item.ProductName, item.ProductImage, item.ProductPrice,
		item.UnitCost, item.Quantity, item.Price, item.OriginalPrice)
}

func (t *pgTx) GetOrderItem(ctx context.Context, id int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := t.tx.GetContext(ctx, &item, "SELECT * FROM order_items WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "store.GetOrderItem", "order item", id)
	}
	return &item, nil
}

// LockOrderItem serializes refund mutations on one line.
func (t *pgTx) LockOrderItem(ctx context.Context, id int64) (*models.OrderItem, error) {
	var item models.OrderItem
	err := t.tx.GetContext(ctx, &item, "SELECT * FROM order_items WHERE id = $1 FOR UPDATE", id)
	if err != nil {
		return nil, notFound(err, "store.LockOrderItem", "order item", id)
	}
	return &item, nil
}

// UpdateOrderItem persists the return/refund fields of a line
func (t *pgTx) UpdateOrderItem(ctx context.Context, item *models.OrderItem) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE order_items
		SET refunded_quantity = $1, is_return_requested = $2, is_return_approved = $3,
			requested_return_quantity = $4
		WHERE id = $5`,
		item.RefundedQuantity, item.IsReturnRequested, item.IsReturnApproved,
		item.RequestedReturnQuantity, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update order item: %w", err)
	}
	return mustAffect(res, "store.UpdateOrderItem", "order item", item.ID)
}

// ListOrderItems retrieves all items for an order
func (t *pgTx) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	err := t.tx.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// ListRevenueLines returns lines of non-canceled orders created in [from, to)
func (t *pgTx) ListRevenueLines(ctx context.Context, from, to time.Time) ([]models.RevenueLine, error) {
	lines := []models.RevenueLine{}
	err := t.tx.SelectContext(ctx, &lines, `
		SELECT oi.order_id, o.created_at AS order_created_at, oi.quantity, oi.refunded_quantity,
			oi.price, oi.unit_cost
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.created_at >= $1 AND o.created_at < $2 AND o.status <> $3
		ORDER BY o.created_at, oi.id`,
		from, to, models.OrderStatusCanceled)
	return lines, err
}
