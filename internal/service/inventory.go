package service

import (
	"context"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// InventoryLedger owns quantity_in_stock and total_sold. Every mutation runs
// on a transaction the caller owns, after locking the product row, so the
// stock change commits or rolls back together with the order or refund that
// caused it.
type InventoryLedger struct {
	logger *zap.Logger
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger() *InventoryLedger {
	return &InventoryLedger{logger: util.GetLogger()}
}

// Reserve takes qty units out of stock and counts them as sold. It returns the
// locked product as it was before the decrement, for snapshotting.
func (l *InventoryLedger) Reserve(ctx context.Context, tx store.Tx, productID int64, qty int) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Reserve")
	defer span.End()

	if qty <= 0 {
		return nil, apperr.New("inventory.Reserve", apperr.ErrInvalidQuantity, "quantity must be positive")
	}

	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		util.StockReservationsFailed.WithLabelValues("lookup").Inc()
		return nil, err
	}

	if qty > product.QuantityInStock {
		util.StockReservationsFailed.WithLabelValues("insufficient_stock").Inc()
		l.logger.Info("Stock reservation rejected",
			zap.Int64("product_id", productID),
			zap.Int("requested", qty),
			zap.Int("available", product.QuantityInStock))
		return nil, &apperr.Error{
			Op:      "inventory.Reserve",
			Kind:    apperr.ErrInsufficientStock,
			ID:      formatID(productID),
			Message: "insufficient stock for " + product.Name,
		}
	}

	err = tx.UpdateProductStock(ctx, productID, product.QuantityInStock-qty, product.TotalSold+qty)
	if err != nil {
		return nil, err
	}
	return product, nil
}

// Release puts qty units back into stock and takes them off total_sold.
// There is no upper bound on stock.
func (l *InventoryLedger) Release(ctx context.Context, tx store.Tx, productID int64, qty int) error {
	ctx, span := util.StartSpan(ctx, "InventoryLedger.Release")
	defer span.End()

	if qty <= 0 {
		return apperr.New("inventory.Release", apperr.ErrInvalidQuantity, "quantity must be positive")
	}

	product, err := tx.LockProduct(ctx, productID)
	if err != nil {
		return err
	}

	sold := product.TotalSold - qty
	if sold < 0 {
		sold = 0
	}
	return tx.UpdateProductStock(ctx, productID, product.QuantityInStock+qty, sold)
}

// releaseLine returns an order line's units to stock. Lines whose product was
// deleted have nowhere to go and are skipped.
func (l *InventoryLedger) releaseLine(ctx context.Context, tx store.Tx, item *models.OrderItem, qty int) error {
	if item.ProductID == nil {
		l.logger.Warn("Skipping stock release for deleted product",
			zap.Int64("order_item_id", item.ID),
			zap.Int("quantity", qty))
		return nil
	}
	return l.Release(ctx, tx, *item.ProductID, qty)
}
