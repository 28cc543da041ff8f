package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CartService keeps one cart per identity. Every write clamps the line
// quantity to the product's current stock.
type CartService struct {
	repo   store.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(repo store.Repository) *CartService {
	return &CartService{
		repo:   repo,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// GetOrCreateCart returns the identity's cart, creating it on first access.
func (s *CartService) GetOrCreateCart(ctx context.Context, id models.Identity) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetOrCreateCart")
	defer span.End()

	var cart *models.Cart
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if cart, err = getOrCreateCart(ctx, tx, id); err != nil {
			return err
		}
		return s.price(ctx, tx, cart)
	})
	return cart, err
}

// AddItem adds qty of a product, summing with an existing line and clamping
// the result to stock.
func (s *CartService) AddItem(ctx context.Context, id models.Identity, productID int64, qty int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if qty <= 0 {
		return nil, apperr.New("cart.AddItem", apperr.ErrInvalidQuantity, "quantity must be positive")
	}

	var cart *models.Cart
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		// The product lock comes first: concurrent adds for the same product,
		// including the lazy cart creation, queue behind it.
		product, err := tx.LockProduct(ctx, productID)
		if err != nil {
			return err
		}
		if product.QuantityInStock == 0 {
			return apperr.New("cart.AddItem", apperr.ErrInsufficientStock, "%s is out of stock", product.Name)
		}

		if cart, err = getOrCreateCart(ctx, tx, id); err != nil {
			return err
		}

		item := &models.CartItem{CartID: cart.ID, ProductID: productID}
		existing, err := tx.GetCartItemByProduct(ctx, cart.ID, productID)
		switch {
		case err == nil:
			item = existing
			item.Quantity += qty
		case errors.Is(err, apperr.ErrNotFound):
			item.Quantity = qty
		default:
			return err
		}
		item.Quantity = clampToStock(item.Quantity, product)

		if err := tx.SaveCartItem(ctx, item); err != nil {
			return err
		}
		return s.price(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Cart item added",
		zap.Int64("cart_id", cart.ID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", qty))
	return cart, nil
}

// UpdateItem sets a line's quantity, clamped to stock.
func (s *CartService) UpdateItem(ctx context.Context, id models.Identity, itemID int64, qty int) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateItem")
	defer span.End()

	if qty <= 0 {
		return nil, apperr.New("cart.UpdateItem", apperr.ErrInvalidQuantity, "quantity must be positive")
	}

	var cart *models.Cart
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if cart, err = findCart(ctx, tx, id); err != nil {
			return cartItemNotFound("cart.UpdateItem", itemID, err)
		}

		item, err := tx.GetCartItem(ctx, cart.ID, itemID)
		if err != nil {
			return err
		}

		product, err := tx.LockProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product.QuantityInStock == 0 {
			return apperr.New("cart.UpdateItem", apperr.ErrInsufficientStock, "%s is out of stock", product.Name)
		}

		item.Quantity = clampToStock(qty, product)
		if err := tx.SaveCartItem(ctx, item); err != nil {
			return err
		}
		return s.price(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem deletes a line from the identity's cart.
func (s *CartService) RemoveItem(ctx context.Context, id models.Identity, itemID int64) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.RemoveItem")
	defer span.End()

	var cart *models.Cart
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if cart, err = findCart(ctx, tx, id); err != nil {
			return cartItemNotFound("cart.RemoveItem", itemID, err)
		}
		if err := tx.DeleteCartItem(ctx, cart.ID, itemID); err != nil {
			return err
		}
		return s.price(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// Merge folds the guest cart into the user's cart and deletes the guest cart,
// all in one transaction. Products that are now out of stock are dropped
// from both carts.
func (s *CartService) Merge(ctx context.Context, userID int64, guestToken string) (*models.Cart, error) {
	ctx, span := util.StartSpan(ctx, "CartService.Merge")
	defer span.End()

	if guestToken == "" {
		return nil, apperr.New("cart.Merge", apperr.ErrInvalidInput, "Guest-Token header is required")
	}

	var cart *models.Cart
	err := s.repo.WithTx(ctx, func(tx store.Tx) error {
		guest, err := tx.GetCartByGuestToken(ctx, guestToken)
		if err != nil {
			return err
		}
		guestItems, err := tx.ListCartItems(ctx, guest.ID)
		if err != nil {
			return err
		}

		if cart, err = getOrCreateCart(ctx, tx, models.Identity{UserID: userID}); err != nil {
			return err
		}

		// Lock products in id order so two merges cannot deadlock.
		sort.Slice(guestItems, func(i, j int) bool { return guestItems[i].ProductID < guestItems[j].ProductID })

		for _, g := range guestItems {
			product, err := tx.LockProduct(ctx, g.ProductID)
			if err != nil {
				return err
			}

			item := &models.CartItem{CartID: cart.ID, ProductID: g.ProductID, Quantity: g.Quantity}
			existing, err := tx.GetCartItemByProduct(ctx, cart.ID, g.ProductID)
			switch {
			case err == nil:
				item = existing
				item.Quantity += g.Quantity
			case !errors.Is(err, apperr.ErrNotFound):
				return err
			}

			item.Quantity = clampToStock(item.Quantity, product)
			if item.Quantity == 0 {
				// out of stock: the user's own line goes too
				if existing != nil {
					if err := tx.DeleteCartItem(ctx, cart.ID, existing.ID); err != nil {
						return err
					}
				}
				continue
			}
			if err := tx.SaveCartItem(ctx, item); err != nil {
				return err
			}
		}

		if err := tx.DeleteCart(ctx, guest.ID); err != nil {
			return err
		}
		return s.price(ctx, tx, cart)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Guest cart merged",
		zap.Int64("user_id", userID),
		zap.Int64("cart_id", cart.ID))
	return cart, nil
}

// price loads the cart's lines with their current discounted prices.
func (s *CartService) price(ctx context.Context, tx store.Tx, cart *models.Cart) error {
	items, err := tx.ListCartItems(ctx, cart.ID)
	if err != nil {
		return err
	}

	now := s.now()
	cart.Items = make([]models.CartLine, 0, len(items))
	for _, item := range items {
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		unit := product.DiscountedPrice(now)
		cart.Items = append(cart.Items, models.CartLine{
			CartItem:    item,
			ProductName: product.Name,
			UnitPrice:   unit,
			TotalPrice:  unit.Mul(decimal.NewFromInt(int64(item.Quantity))),
		})
	}
	return nil
}

func clampToStock(qty int, product *models.Product) int {
	if qty > product.QuantityInStock {
		return product.QuantityInStock
	}
	return qty
}

func findCart(ctx context.Context, tx store.Tx, id models.Identity) (*models.Cart, error) {
	switch {
	case id.IsUser():
		return tx.GetCartByUser(ctx, id.UserID)
	case id.GuestToken != "":
		return tx.GetCartByGuestToken(ctx, id.GuestToken)
	default:
		return nil, apperr.New("cart.find", apperr.ErrUnauthorized, "authentication or a Guest-Token header is required")
	}
}

func getOrCreateCart(ctx context.Context, tx store.Tx, id models.Identity) (*models.Cart, error) {
	cart, err := findCart(ctx, tx, id)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return cart, err
	}

	cart = &models.Cart{}
	if id.IsUser() {
		userID := id.UserID
		cart.UserID = &userID
	} else {
		token := id.GuestToken
		cart.GuestToken = &token
	}
	if err := tx.CreateCart(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// cartItemNotFound reports a missing cart as a missing item.
func cartItemNotFound(op string, itemID int64, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound(op, "cart item", itemID)
	}
	return err
}
