package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"
	"storefront/internal/vault"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CheckoutConfig holds the checkout timing knobs
type CheckoutConfig struct {
	LockTTL        time.Duration
	IdempotencyTTL time.Duration
}

// CheckoutService turns a user's cart into an order. The order, its line
// snapshots, the stock decrements, the cart clearing and the delivery row are
// written in one transaction.
type CheckoutService struct {
	repo     store.Repository
	ledger   *InventoryLedger
	payments PaymentAuthorizer
	vault    *vault.Vault
	locks    Locker
	idem     IdempotencyCache
	events   EventPublisher
	cfg      CheckoutConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	repo store.Repository,
	ledger *InventoryLedger,
	payments PaymentAuthorizer,
	cardVault *vault.Vault,
	locks Locker,
	idem IdempotencyCache,
	events EventPublisher,
	cfg CheckoutConfig,
) *CheckoutService {
	return &CheckoutService{
		repo:     repo,
		ledger:   ledger,
		payments: payments,
		vault:    cardVault,
		locks:    locks,
		idem:     idem,
		events:   events,
		cfg:      cfg,
		logger:   util.GetLogger(),
		now:      time.Now,
	}
}

// CheckoutRequest is a checkout for an authenticated user
type CheckoutRequest struct {
	UserID         int64
	IdempotencyKey string
	Card           CreditCard
}

// CheckoutResult carries the order and whether this call created it. A
// replayed idempotency key returns the earlier order with Created=false.
type CheckoutResult struct {
	Order   *models.Order
	Created bool
}

// Checkout places an order from the user's cart.
func (s *CheckoutService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if req.IdempotencyKey != "" {
		previous, err := s.replay(ctx, req)
		if err != nil {
			return nil, err
		}
		if previous != nil {
			return &CheckoutResult{Order: previous}, nil
		}
	}

	lockName := fmt.Sprintf("checkout:%d", req.UserID)
	token, ok, err := s.locks.AcquireLock(ctx, lockName, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire checkout lock: %w", err)
	}
	if !ok {
		util.CheckoutFailedTotal.WithLabelValues("locked").Inc()
		return nil, apperr.New("checkout.Checkout", apperr.ErrConflict, "a checkout for this account is already in progress")
	}
	defer func() {
		if _, err := s.locks.ReleaseLock(context.Background(), lockName, token); err != nil {
			s.logger.Warn("Failed to release checkout lock", zap.Int64("user_id", req.UserID), zap.Error(err))
		}
	}()

	var (
		order   *models.Order
		created bool
		email   string
	)
	err = s.repo.WithTx(ctx, func(tx store.Tx) error {
		if req.IdempotencyKey != "" {
			existing, err := tx.GetOrderByIdempotencyKey(ctx, req.UserID, req.IdempotencyKey)
			if err == nil {
				order, err = loadOrderItems(ctx, tx, existing)
				return err
			}
			if !errors.Is(err, apperr.ErrNotFound) {
				return err
			}
		}

		var err error
		order, email, err = s.placeOrder(ctx, tx, req)
		created = err == nil
		return err
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Info("Checkout failed", zap.Int64("user_id", req.UserID), zap.Error(err))
		return nil, err
	}

	if !created {
		return &CheckoutResult{Order: order}, nil
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.String("total_price", order.TotalPrice.StringFixed(2)))

	if req.IdempotencyKey != "" {
		if err := s.idem.RememberOrder(ctx, req.UserID, req.IdempotencyKey, order.ID, s.cfg.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to cache idempotency key", zap.Int64("order_id", order.ID), zap.Error(err))
		}
	}
	s.publishPlaced(ctx, order, email)

	return &CheckoutResult{Order: order, Created: true}, nil
}

// replay answers a repeated idempotency key from the cache. A cache miss or
// error falls through to the authoritative check inside the transaction.
func (s *CheckoutService) replay(ctx context.Context, req *CheckoutRequest) (*models.Order, error) {
	orderID, found, err := s.idem.LookupOrder(ctx, req.UserID, req.IdempotencyKey)
	if err != nil {
		s.logger.Warn("Idempotency cache lookup failed", zap.Error(err))
		return nil, nil
	}
	if !found {
		return nil, nil
	}

	s.logger.Info("Duplicate checkout request detected",
		zap.String("idempotency_key", req.IdempotencyKey),
		zap.Int64("order_id", orderID))

	var order *models.Order
	err = s.repo.View(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order, err = loadOrderItems(ctx, tx, o)
		return err
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return order, err
}

func (s *CheckoutService) placeOrder(ctx context.Context, tx store.Tx, req *CheckoutRequest) (*models.Order, string, error) {
	cart, err := tx.GetCartByUser(ctx, req.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, "", apperr.ErrEmptyCart
	}
	if err != nil {
		return nil, "", err
	}

	items, err := tx.ListCartItems(ctx, cart.ID)
	if err != nil {
		return nil, "", err
	}
	if len(items) == 0 {
		return nil, "", apperr.ErrEmptyCart
	}

	profile, err := tx.GetProfile(ctx, req.UserID)
	if err != nil {
		return nil, "", err
	}

	card, err := resolveCard(ctx, tx, s.vault, req.UserID, req.Card)
	if err != nil {
		return nil, "", err
	}

	now := s.now()

	estimate := decimal.Zero
	for _, item := range items {
		product, err := tx.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, "", err
		}
		estimate = estimate.Add(product.DiscountedPrice(now).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	if err := s.payments.Authorize(ctx, card, estimate); err != nil {
		return nil, "", err
	}

	order := &models.Order{
		UserID:           req.UserID,
		Status:           models.OrderStatusProcessing,
		TotalPrice:       decimal.Zero,
		CreatedAt:        now,
		LastStatusChange: now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		order.IdempotencyKey = &key
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, "", err
	}

	// Lock products in id order so concurrent checkouts cannot deadlock.
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	total := decimal.Zero
	productIDs := make([]int64, 0, len(items))
	order.Items = make([]models.OrderItem, 0, len(items))
	for _, item := range items {
		product, err := s.ledger.Reserve(ctx, tx, item.ProductID, item.Quantity)
		if err != nil {
			return nil, "", err
		}

		qty := decimal.NewFromInt(int64(item.Quantity))
		linePrice := product.DiscountedPrice(now).Mul(qty)
		productID := product.ID
		line := models.OrderItem{
			OrderID:       order.ID,
			ProductID:     &productID,
			ProductName:   product.Name,
			ProductImage:  product.Image,
			ProductPrice:  product.Price,
			UnitCost:      product.Cost,
			Quantity:      item.Quantity,
			Price:         linePrice,
			OriginalPrice: product.Price.Mul(qty),
		}
		if err := tx.CreateOrderItem(ctx, &line); err != nil {
			return nil, "", err
		}

		order.Items = append(order.Items, line)
		productIDs = append(productIDs, productID)
		total = total.Add(linePrice)
	}

	order.TotalPrice = total
	if err := tx.UpdateOrder(ctx, order); err != nil {
		return nil, "", err
	}

	if err := tx.ClearCart(ctx, cart.ID); err != nil {
		return nil, "", err
	}

	delivery := &models.Delivery{
		OrderID:         order.ID,
		CustomerName:    strings.TrimSpace(profile.FirstName + " " + profile.LastName),
		DeliveryAddress: profile.HomeAddress,
		Status:          models.DeliveryStatusPending,
		CreatedAt:       now,
		ProductIDs:      productIDs,
	}
	if err := tx.CreateDelivery(ctx, delivery); err != nil {
		return nil, "", err
	}

	if req.Card.SaveNewCard && !req.Card.UseSavedCard {
		if _, err := saveCard(ctx, tx, s.vault, req.UserID, card); err != nil {
			return nil, "", err
		}
	}

	return order, profile.Email, nil
}

func (s *CheckoutService) publishPlaced(ctx context.Context, order *models.Order, email string) {
	items := make([]models.OrderItemData, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, models.OrderItemData{
			ProductID: item.ProductID,
			Name:      item.ProductName,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderPlaced, s.now()),
		OrderID:    order.ID,
		UserID:     order.UserID,
		Email:      email,
		TotalPrice: order.TotalPrice,
		Items:      items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event", zap.Int64("order_id", order.ID), zap.Error(err))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, apperr.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, apperr.ErrPaymentFailed):
		return "payment_failed"
	case errors.Is(err, apperr.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// ListCards returns the user's saved cards. Only name and last four digits
// leave the store in clear.
func (s *CheckoutService) ListCards(ctx context.Context, userID int64) ([]models.SavedCard, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.ListCards")
	defer span.End()

	var cards []models.SavedCard
	err := s.repo.View(ctx, func(tx store.Tx) error {
		var err error
		cards, err = tx.ListCards(ctx, userID)
		return err
	})
	return cards, err
}
