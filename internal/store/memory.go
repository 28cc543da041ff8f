package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// Memory is an in-process Repository. Transactions are serialized by one
// mutex and work on a copy of the data that replaces the live copy only when
// the callback succeeds, so rollback is total.
type Memory struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	seq        int64
	products   map[int64]models.Product
	profiles   map[int64]models.Profile
	sessions   map[string]memSession
	carts      map[int64]models.Cart
	cartItems  map[int64]models.CartItem
	orders     map[int64]models.Order
	orderItems map[int64]models.OrderItem
	refunds    map[int64]models.Refund
	deliveries map[int64]models.Delivery
	cards      map[int64]models.SavedCard
	events     map[string]string
}

type memSession struct {
	userID    int64
	expiresAt time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: &memData{
		products:   map[int64]models.Product{},
		profiles:   map[int64]models.Profile{},
		sessions:   map[string]memSession{},
		carts:      map[int64]models.Cart{},
		cartItems:  map[int64]models.CartItem{},
		orders:     map[int64]models.Order{},
		orderItems: map[int64]models.OrderItem{},
		refunds:    map[int64]models.Refund{},
		deliveries: map[int64]models.Delivery{},
		cards:      map[int64]models.SavedCard{},
		events:     map[string]string{},
	}}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (d *memData) clone() *memData {
	return &memData{
		seq:        d.seq,
		products:   copyMap(d.products),
		profiles:   copyMap(d.profiles),
		sessions:   copyMap(d.sessions),
		carts:      copyMap(d.carts),
		cartItems:  copyMap(d.cartItems),
		orders:     copyMap(d.orders),
		orderItems: copyMap(d.orderItems),
		refunds:    copyMap(d.refunds),
		deliveries: copyMap(d.deliveries),
		cards:      copyMap(d.cards),
		events:     copyMap(d.events),
	}
}

func (d *memData) nextID() int64 {
	d.seq++
	return d.seq
}

func (m *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	m.data = work
	return nil
}

// View runs fn against a throwaway copy; writes are discarded.
func (m *Memory) View(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return fn(&memTx{d: m.data.clone()})
}

func (m *Memory) Close() error { return nil }

// AddProduct seeds a catalog product and returns its id.
func (m *Memory) AddProduct(p models.Product) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.data.nextID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.data.products[p.ID] = p
	return p.ID
}

// SetStock overwrites a product's stock, as a catalog edit would.
func (m *Memory) SetStock(productID int64, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.data.products[productID]; ok {
		p.QuantityInStock = qty
		m.data.products[productID] = p
	}
}

// DeleteProduct removes a product; order lines keep their snapshot and lose
// the back-reference, cart lines and delivery links go with it.
func (m *Memory) DeleteProduct(productID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data.products, productID)
	for id, item := range m.data.orderItems {
		if item.ProductID != nil && *item.ProductID == productID {
			item.ProductID = nil
			m.data.orderItems[id] = item
		}
	}
	for id, item := range m.data.cartItems {
		if item.ProductID == productID {
			delete(m.data.cartItems, id)
		}
	}
	for id, d := range m.data.deliveries {
		kept := make([]int64, 0, len(d.ProductIDs))
		for _, pid := range d.ProductIDs {
			if pid != productID {
				kept = append(kept, pid)
			}
		}
		d.ProductIDs = kept
		m.data.deliveries[id] = d
	}
}

// AddProfile seeds an identity-provider profile.
func (m *Memory) AddProfile(p models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Role == "" {
		p.Role = models.RoleCustomer
	}
	m.data.profiles[p.UserID] = p
}

// DeleteProfile removes a profile, as when the identity provider drops an
// account. Its sessions stay behind.
func (m *Memory) DeleteProfile(userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data.profiles, userID)
}

// AddSession seeds a bearer token for userID.
func (m *Memory) AddSession(token string, userID int64, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.sessions[token] = memSession{userID: userID, expiresAt: expiresAt}
}

type memTx struct {
	d *memData
}

var _ Tx = (*memTx)(nil)

func (t *memTx) GetProduct(_ context.Context, id int64) (*models.Product, error) {
	p, ok := t.d.products[id]
	if !ok {
		return nil, apperr.NotFound("store.GetProduct", "product", id)
	}
	return &p, nil
}

func (t *memTx) LockProduct(ctx context.Context, id int64) (*models.Product, error) {
	return t.GetProduct(ctx, id)
}

func (t *memTx) UpdateProductStock(_ context.Context, id int64, quantityInStock, totalSold int) error {
	p, ok := t.d.products[id]
	if !ok {
		return apperr.NotFound("store.UpdateProductStock", "product", id)
	}
	p.QuantityInStock = quantityInStock
	p.TotalSold = totalSold
	t.d.products[id] = p
	return nil
}

func (t *memTx) GetProfile(_ context.Context, userID int64) (*models.Profile, error) {
	p, ok := t.d.profiles[userID]
	if !ok {
		return nil, apperr.NotFound("store.GetProfile", "profile", userID)
	}
	return &p, nil
}

func (t *memTx) GetSessionUser(_ context.Context, token string, now time.Time) (int64, error) {
	s, ok := t.d.sessions[token]
	if !ok || !s.expiresAt.After(now) {
		return 0, apperr.NotFound("store.GetSessionUser", "session", "")
	}
	return s.userID, nil
}

func (t *memTx) GetCartByUser(_ context.Context, userID int64) (*models.Cart, error) {
	for _, c := range t.d.carts {
		if c.UserID != nil && *c.UserID == userID {
			return &c, nil
		}
	}
	return nil, apperr.NotFound("store.GetCartByUser", "cart", userID)
}

func (t *memTx) GetCartByGuestToken(_ context.Context, token string) (*models.Cart, error) {
	for _, c := range t.d.carts {
		if c.GuestToken != nil && *c.GuestToken == token {
			return &c, nil
		}
	}
	return nil, apperr.NotFound("store.GetCartByGuestToken", "cart", token)
}

func (t *memTx) CreateCart(ctx context.Context, cart *models.Cart) error {
	var err error
	if cart.UserID != nil {
		_, err = t.GetCartByUser(ctx, *cart.UserID)
	} else if cart.GuestToken != nil {
		_, err = t.GetCartByGuestToken(ctx, *cart.GuestToken)
	}
	if err == nil {
		return apperr.New("store.CreateCart", apperr.ErrConflict, "cart already exists for this identity")
	}
	cart.ID = t.d.nextID()
	cart.CreatedAt = time.Now()
	stored := *cart
	stored.Items = nil
	t.d.carts[cart.ID] = stored
	return nil
}

func (t *memTx) DeleteCart(_ context.Context, cartID int64) error {
	if _, ok := t.d.carts[cartID]; !ok {
		return apperr.NotFound("store.DeleteCart", "cart", cartID)
	}
	delete(t.d.carts, cartID)
	for id, item := range t.d.cartItems {
		if item.CartID == cartID {
			delete(t.d.cartItems, id)
		}
	}
	return nil
}

func (t *memTx) ListCartItems(_ context.Context, cartID int64) ([]models.CartItem, error) {
	items := []models.CartItem{}
	for _, item := range t.d.cartItems {
		if item.CartID == cartID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (t *memTx) GetCartItem(_ context.Context, cartID, itemID int64) (*models.CartItem, error) {
	item, ok := t.d.cartItems[itemID]
	if !ok || item.CartID != cartID {
		return nil, apperr.NotFound("store.GetCartItem", "cart item", itemID)
	}
	return &item, nil
}

func (t *memTx) GetCartItemByProduct(_ context.Context, cartID, productID int64) (*models.CartItem, error) {
	for _, item := range t.d.cartItems {
		if item.CartID == cartID && item.ProductID == productID {
			return &item, nil
		}
	}
	return nil, apperr.NotFound("store.GetCartItemByProduct", "cart item", productID)
}

func (t *memTx) SaveCartItem(ctx context.Context, item *models.CartItem) error {
	if existing, err := t.GetCartItemByProduct(ctx, item.CartID, item.ProductID); err == nil {
		item.ID = existing.ID
	} else {
		item.ID = t.d.nextID()
	}
	t.d.cartItems[item.ID] = *item
	return nil
}

func (t *memTx) DeleteCartItem(ctx context.Context, cartID, itemID int64) error {
	if _, err := t.GetCartItem(ctx, cartID, itemID); err != nil {
		return err
	}
	delete(t.d.cartItems, itemID)
	return nil
}

func (t *memTx) ClearCart(_ context.Context, cartID int64) error {
	for id, item := range t.d.cartItems {
		if item.CartID == cartID {
			delete(t.d.cartItems, id)
		}
	}
	return nil
}

func (t *memTx) CreateOrder(_ context.Context, order *models.Order) error {
	if order.IdempotencyKey != nil {
		for _, o := range t.d.orders {
			if o.UserID == order.UserID && o.IdempotencyKey != nil && *o.IdempotencyKey == *order.IdempotencyKey {
				return apperr.New("store.CreateOrder", apperr.ErrConflict, "duplicate idempotency key")
			}
		}
	}
	order.ID = t.d.nextID()
	stored := *order
	stored.Items = nil
	t.d.orders[order.ID] = stored
	return nil
}

func (t *memTx) GetOrder(_ context.Context, id int64) (*models.Order, error) {
	o, ok := t.d.orders[id]
	if !ok {
		return nil, apperr.NotFound("store.GetOrder", "order", id)
	}
	return &o, nil
}

func (t *memTx) LockOrder(ctx context.Context, id int64) (*models.Order, error) {
	return t.GetOrder(ctx, id)
}

func (t *memTx) GetOrderByIdempotencyKey(_ context.Context, userID int64, key string) (*models.Order, error) {
	for _, o := range t.d.orders {
		if o.UserID == userID && o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return &o, nil
		}
	}
	return nil, apperr.NotFound("store.GetOrderByIdempotencyKey", "order", key)
}

func (t *memTx) UpdateOrder(_ context.Context, order *models.Order) error {
	stored, ok := t.d.orders[order.ID]
	if !ok {
		return apperr.NotFound("store.UpdateOrder", "order", order.ID)
	}
	stored.Status = order.Status
	stored.TotalPrice = order.TotalPrice
	stored.LastStatusChange = order.LastStatusChange
	t.d.orders[order.ID] = stored
	return nil
}

func (t *memTx) sortedOrders(keep func(models.Order) bool) []models.Order {
	orders := []models.Order{}
	for _, o := range t.d.orders {
		if keep(o) {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID < orders[j].ID
		}
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders
}

func (t *memTx) ListOrdersByUser(_ context.Context, userID int64) ([]models.Order, error) {
	orders := t.sortedOrders(func(o models.Order) bool { return o.UserID == userID })
	for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
		orders[i], orders[j] = orders[j], orders[i]
	}
	return orders, nil
}

func (t *memTx) ListOrdersByStatus(_ context.Context, statuses ...models.OrderStatus) ([]models.Order, error) {
	orders := t.sortedOrders(func(o models.Order) bool {
		for _, s := range statuses {
			if o.Status == s {
				return true
			}
		}
		return false
	})
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, nil
}

func (t *memTx) ListOrdersBetween(_ context.Context, from, to time.Time) ([]models.Order, error) {
	return t.sortedOrders(func(o models.Order) bool {
		return !o.CreatedAt.Before(from) && o.CreatedAt.Before(to)
	}), nil
}

func (t *memTx) CreateOrderItem(_ context.Context, item *models.OrderItem) error {
	if _, ok := t.d.orders[item.OrderID]; !ok {
		return apperr.NotFound("store.CreateOrderItem", "order", item.OrderID)
	}
	item.ID = t.d.nextID()
	t.d.orderItems[item.ID] = *item
	return nil
}

func (t *memTx) GetOrderItem(_ context.Context, id int64) (*models.OrderItem, error) {
	item, ok := t.d.orderItems[id]
	if !ok {
		return nil, apperr.NotFound("store.GetOrderItem", "order item", id)
	}
	return &item, nil
}

func (t *memTx) LockOrderItem(ctx context.Context, id int64) (*models.OrderItem, error) {
	return t.GetOrderItem(ctx, id)
}

func (t *memTx) UpdateOrderItem(_ context.Context, item *models.OrderItem) error {
	stored, ok := t.d.orderItems[item.ID]
	if !ok {
		return apperr.NotFound("store.UpdateOrderItem", "order item", item.ID)
	}
	stored.RefundedQuantity = item.RefundedQuantity
	stored.IsReturnRequested = item.IsReturnRequested
	stored.IsReturnApproved = item.IsReturnApproved
	stored.RequestedReturnQuantity = item.RequestedReturnQuantity
	t.d.orderItems[item.ID] = stored
	return nil
}

func (t *memTx) ListOrderItems(_ context.Context, orderID int64) ([]models.OrderItem, error) {
	items := []models.OrderItem{}
	for _, item := range t.d.orderItems {
		if item.OrderID == orderID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (t *memTx) ListRevenueLines(ctx context.Context, from, to time.Time) ([]models.RevenueLine, error) {
	orders, _ := t.ListOrdersBetween(ctx, from, to)
	lines := []models.RevenueLine{}
	for _, o := range orders {
		if o.Status == models.OrderStatusCanceled {
			continue
		}
		items, _ := t.ListOrderItems(ctx, o.ID)
		for _, item := range items {
			lines = append(lines, models.RevenueLine{
				OrderID:          o.ID,
				OrderCreatedAt:   o.CreatedAt,
				Quantity:         item.Quantity,
				RefundedQuantity: item.RefundedQuantity,
				Price:            item.Price,
				UnitCost:         item.UnitCost,
			})
		}
	}
	return lines, nil
}

func (t *memTx) CreateRefund(_ context.Context, refund *models.Refund) error {
	if _, ok := t.d.orderItems[refund.OrderItemID]; !ok {
		return apperr.NotFound("store.CreateRefund", "order item", refund.OrderItemID)
	}
	refund.ID = t.d.nextID()
	t.d.refunds[refund.ID] = *refund
	return nil
}

func (t *memTx) GetRefund(_ context.Context, id int64) (*models.Refund, error) {
	r, ok := t.d.refunds[id]
	if !ok {
		return nil, apperr.NotFound("store.GetRefund", "refund", id)
	}
	return &r, nil
}

func (t *memTx) LockRefund(ctx context.Context, id int64) (*models.Refund, error) {
	return t.GetRefund(ctx, id)
}

func (t *memTx) UpdateRefund(_ context.Context, refund *models.Refund) error {
	stored, ok := t.d.refunds[refund.ID]
	if !ok {
		return apperr.NotFound("store.UpdateRefund", "refund", refund.ID)
	}
	stored.Status = refund.Status
	stored.RefundAmount = refund.RefundAmount
	stored.ResolvedAt = refund.ResolvedAt
	t.d.refunds[refund.ID] = stored
	return nil
}

func (t *memTx) ListRefunds(_ context.Context, status models.RefundStatus) ([]models.Refund, error) {
	refunds := []models.Refund{}
	for _, r := range t.d.refunds {
		if status == "" || r.Status == status {
			refunds = append(refunds, r)
		}
	}
	sort.Slice(refunds, func(i, j int) bool { return refunds[i].ID < refunds[j].ID })
	return refunds, nil
}

func (t *memTx) CreateDelivery(ctx context.Context, delivery *models.Delivery) error {
	if _, err := t.GetDeliveryByOrder(ctx, delivery.OrderID); err == nil {
		return apperr.New("store.CreateDelivery", apperr.ErrConflict, "order already has a delivery")
	}
	delivery.ID = t.d.nextID()
	delivery.UpdatedAt = delivery.CreatedAt
	stored := *delivery
	stored.ProductIDs = append([]int64(nil), delivery.ProductIDs...)
	sort.Slice(stored.ProductIDs, func(i, j int) bool { return stored.ProductIDs[i] < stored.ProductIDs[j] })
	t.d.deliveries[delivery.ID] = stored
	return nil
}

func (t *memTx) GetDelivery(_ context.Context, id int64) (*models.Delivery, error) {
	d, ok := t.d.deliveries[id]
	if !ok {
		return nil, apperr.NotFound("store.GetDelivery", "delivery", id)
	}
	d.ProductIDs = append([]int64{}, d.ProductIDs...)
	return &d, nil
}

func (t *memTx) GetDeliveryByOrder(ctx context.Context, orderID int64) (*models.Delivery, error) {
	for id, d := range t.d.deliveries {
		if d.OrderID == orderID {
			return t.GetDelivery(ctx, id)
		}
	}
	return nil, apperr.NotFound("store.GetDeliveryByOrder", "delivery", orderID)
}

func (t *memTx) UpdateDelivery(_ context.Context, delivery *models.Delivery) error {
	stored, ok := t.d.deliveries[delivery.ID]
	if !ok {
		return apperr.NotFound("store.UpdateDelivery", "delivery", delivery.ID)
	}
	stored.Status = delivery.Status
	stored.DeliveryAddress = delivery.DeliveryAddress
	stored.UpdatedAt = delivery.UpdatedAt
	t.d.deliveries[delivery.ID] = stored
	return nil
}

func (t *memTx) ListDeliveries(ctx context.Context) ([]models.Delivery, error) {
	deliveries := make([]models.Delivery, 0, len(t.d.deliveries))
	for id := range t.d.deliveries {
		d, _ := t.GetDelivery(ctx, id)
		deliveries = append(deliveries, *d)
	}
	sort.Slice(deliveries, func(i, j int) bool { return deliveries[i].ID < deliveries[j].ID })
	return deliveries, nil
}

func (t *memTx) CreateCard(_ context.Context, card *models.SavedCard) error {
	card.ID = t.d.nextID()
	card.CreatedAt = time.Now()
	t.d.cards[card.ID] = *card
	return nil
}

func (t *memTx) GetCard(_ context.Context, userID, cardID int64) (*models.SavedCard, error) {
	c, ok := t.d.cards[cardID]
	if !ok || c.UserID != userID {
		return nil, apperr.NotFound("store.GetCard", "saved card", cardID)
	}
	return &c, nil
}

func (t *memTx) ListCards(_ context.Context, userID int64) ([]models.SavedCard, error) {
	cards := []models.SavedCard{}
	for _, c := range t.d.cards {
		if c.UserID == userID {
			cards = append(cards, c)
		}
	}
	sort.Slice(cards, func(i, j int) bool { return cards[i].ID < cards[j].ID })
	return cards, nil
}

func (t *memTx) MarkEventProcessed(_ context.Context, eventID, eventType string) (bool, error) {
	if _, ok := t.d.events[eventID]; ok {
		return false, nil
	}
	t.d.events[eventID] = eventType
	return true, nil
}
