package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

// CreateDelivery inserts the delivery and links its products.
func (t *pgTx) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	query := `
		INSERT INTO deliveries (order_id, customer_name, delivery_address, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id`

	err := t.tx.GetContext(ctx, &delivery.ID, query,
		delivery.OrderID, delivery.CustomerName, delivery.DeliveryAddress, delivery.Status, delivery.CreatedAt)
	if err != nil {
		return conflict(err, "store.CreateDelivery", "order already has a delivery")
	}
	delivery.UpdatedAt = delivery.CreatedAt

	for _, productID := range delivery.ProductIDs {
		_, err := t.tx.ExecContext(ctx,
			"INSERT INTO delivery_products (delivery_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			delivery.ID, productID)
		if err != nil {
			return fmt.Errorf("failed to link product %d to delivery: %w", productID, err)
		}
	}
	return nil
}

func (t *pgTx) GetDelivery(ctx context.Context, id int64) (*models.Delivery, error) {
	var delivery models.Delivery
	err := t.tx.GetContext(ctx, &delivery, "SELECT * FROM deliveries WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "store.GetDelivery", "delivery", id)
	}
	return &delivery, t.loadDeliveryProducts(ctx, &delivery)
}

func (t *pgTx) GetDeliveryByOrder(ctx context.Context, orderID int64) (*models.Delivery, error) {
	var delivery models.Delivery
	err := t.tx.GetContext(ctx, &delivery, "SELECT * FROM deliveries WHERE order_id = $1", orderID)
	if err != nil {
		return nil, notFound(err, "store.GetDeliveryByOrder", "delivery", orderID)
	}
	return &delivery, t.loadDeliveryProducts(ctx, &delivery)
}

func (t *pgTx) UpdateDelivery(ctx context.Context, delivery *models.Delivery) error {
	res, err := t.tx.ExecContext(ctx,
		"UPDATE deliveries SET status = $1, delivery_address = $2, updated_at = $3 WHERE id = $4",
		delivery.Status, delivery.DeliveryAddress, delivery.UpdatedAt, delivery.ID)
	if err != nil {
		return fmt.Errorf("failed to update delivery: %w", err)
	}
	return mustAffect(res, "store.UpdateDelivery", "delivery", delivery.ID)
}

func (t *pgTx) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	deliveries := []models.Delivery{}
	if err := t.tx.SelectContext(ctx, &deliveries, "SELECT * FROM deliveries ORDER BY id"); err != nil {
		return nil, err
	}
	for i := range deliveries {
		if err := t.loadDeliveryProducts(ctx, &deliveries[i]); err != nil {
			return nil, err
		}
	}
	return deliveries, nil
}

func (t *pgTx) loadDeliveryProducts(ctx context.Context, delivery *models.Delivery) error {
	delivery.ProductIDs = []int64{}
	return t.tx.SelectContext(ctx, &delivery.ProductIDs,
		"SELECT product_id FROM delivery_products WHERE delivery_id = $1 ORDER BY product_id", delivery.ID)
}
