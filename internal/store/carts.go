package store

import (
	"context"
	"fmt"

	"storefront/internal/models"
)

func (t *pgTx) GetCartByUser(ctx context.Context, userID int64) (*models.Cart, error) {
	var cart models.Cart
	err := t.tx.GetContext(ctx, &cart,
		"SELECT id, user_id, guest_token, created_at FROM carts WHERE user_id = $1", userID)
	if err != nil {
		return nil, notFound(err, "store.GetCartByUser", "cart", userID)
	}
	return &cart, nil
}

func (t *pgTx) GetCartByGuestToken(ctx context.Context, token string) (*models.Cart, error) {
	var cart models.Cart
	err := t.tx.GetContext(ctx, &cart,
		"SELECT id, user_id, guest_token, created_at FROM carts WHERE guest_token = $1", token)
	if err != nil {
		return nil, notFound(err, "store.GetCartByGuestToken", "cart", token)
	}
	return &cart, nil
}

// CreateCart inserts a cart; a duplicate owner yields apperr.ErrConflict.
func (t *pgTx) CreateCart(ctx context.Context, cart *models.Cart) error {
	query := `
		INSERT INTO carts (user_id, guest_token)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := t.tx.QueryRowxContext(ctx, query, cart.UserID, cart.GuestToken).Scan(&cart.ID, &cart.CreatedAt)
	if err != nil {
		return conflict(err, "store.CreateCart", "cart already exists for this identity")
	}
	return nil
}

func (t *pgTx) DeleteCart(ctx context.Context, cartID int64) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM carts WHERE id = $1", cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return mustAffect(res, "store.DeleteCart", "cart", cartID)
}

func (t *pgTx) ListCartItems(ctx context.Context, cartID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}
	err := t.tx.SelectContext(ctx, &items,
		"SELECT * FROM cart_items WHERE cart_id = $1 ORDER BY id", cartID)
	return items, err
}

func (t *pgTx) GetCartItem(ctx context.Context, cartID, itemID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := t.tx.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return nil, notFound(err, "store.GetCartItem", "cart item", itemID)
	}
	return &item, nil
}

func (t *pgTx) GetCartItemByProduct(ctx context.Context, cartID, productID int64) (*models.CartItem, error) {
	var item models.CartItem
	err := t.tx.GetContext(ctx, &item,
		"SELECT * FROM cart_items WHERE cart_id = $1 AND product_id = $2", cartID, productID)
	if err != nil {
		return nil, notFound(err, "store.GetCartItemByProduct", "cart item", productID)
	}
	return &item, nil
}

// SaveCartItem inserts or overwrites the (cart, product) line.
func (t *pgTx) SaveCartItem(ctx context.Context, item *models.CartItem) error {
	query := `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity
		RETURNING id`

	return t.tx.GetContext(ctx, &item.ID, query, item.CartID, item.ProductID, item.Quantity)
}

func (t *pgTx) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM cart_items WHERE id = $1 AND cart_id = $2", itemID, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	return mustAffect(res, "store.DeleteCartItem", "cart item", itemID)
}

func (t *pgTx) ClearCart(ctx context.Context, cartID int64) error {
	_, err := t.tx.ExecContext(ctx, "DELETE FROM cart_items WHERE cart_id = $1", cartID)
	return err
}
