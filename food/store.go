package food

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubsincronica/clubd/identity"
	"github.com/clubsincronica/clubd/metrics"
	"github.com/clubsincronica/clubd/notify"
	"github.com/clubsincronica/clubd/storage"
)

// Store operation errors.
var (
	// ErrNoCart is returned by operations that require an active cart.
	ErrNoCart = errors.New("no active cart")
	// ErrInvalidQuantity is returned when adding an item with quantity < 1.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	// ErrIndexOutOfRange is returned for a bad cart line index.
	ErrIndexOutOfRange = errors.New("cart index out of range")
	// ErrOrderNotFound is returned when an order ID is unknown.
	ErrOrderNotFound = errors.New("order not found")
	// ErrNotificationNotFound is returned when a notification ID is unknown.
	ErrNotificationNotFound = errors.New("notification not found")
)

// Store manages the active cart, the order list and the notification
// list, persisted as JSON blobs under fixed keys. Mutations update
// memory first and then persist; a persistence failure is logged and the
// in-memory state stands, so memory and disk can diverge until the next
// successful write.
type Store struct {
	kv        storage.KV
	logger    *slog.Logger
	identity  identity.Provider
	publisher notify.Publisher

	mu            sync.RWMutex
	cart          *Cart
	orders        []Order        // most recent first
	notifications []Notification // most recent first
}

// NewStore creates a food store. identity may be nil when no user
// attribution is needed; publisher nil disables NATS fan-out.
func NewStore(kv storage.KV, id identity.Provider, publisher notify.Publisher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = notify.Nop{}
	}
	return &Store{kv: kv, logger: logger, identity: id, publisher: publisher}
}

// Load restores persisted cart, orders and notifications.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cart Cart
	found, err := s.loadKey(ctx, storage.KeyFoodCart, &cart)
	if err != nil {
		return err
	}
	if found {
		s.cart = &cart
	}

	if _, err := s.loadKey(ctx, storage.KeyFoodOrders, &s.orders); err != nil {
		return err
	}
	if _, err := s.loadKey(ctx, storage.KeyFoodNotifications, &s.notifications); err != nil {
		return err
	}
	return nil
}

func (s *Store) loadKey(ctx context.Context, key string, out any) (bool, error) {
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// AddToCart adds a menu item to the cart. If there is no cart, or the
// existing cart belongs to a different vendor, a new cart is started with
// only this item; the prior cart is discarded without confirmation (the
// UI never asked — known gap carried over from the shipped client).
// An existing line with the same menu item and the same customization
// selection has its quantity incremented instead.
func (s *Store) AddToCart(ctx context.Context, item MenuItem, vendor Vendor, quantity int, customizations []Customization, instructions string) (*Cart, error) {
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	s.mu.Lock()
	if s.cart == nil || s.cart.Vendor.ID != vendor.ID {
		s.cart = &Cart{Vendor: vendor, OrderType: OrderTypePickup}
	}

	merged := false
	for i := range s.cart.Items {
		line := &s.cart.Items[i]
		if line.MenuItem.ID == item.ID && sameSelection(line.Customizations, customizations) {
			line.Quantity += quantity
			line.reprice()
			merged = true
			break
		}
	}
	if !merged {
		line := LineItem{
			MenuItem:       item,
			Quantity:       quantity,
			Customizations: customizations,
			Instructions:   instructions,
		}
		line.reprice()
		s.cart.Items = append(s.cart.Items, line)
	}
	cart := s.cart.clone()
	s.mu.Unlock()

	s.persistCart(ctx)
	return cart, nil
}

// RemoveFromCart removes the line at index. An emptied cart becomes nil,
// not a zero-item cart.
func (s *Store) RemoveFromCart(ctx context.Context, index int) (*Cart, error) {
	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return nil, ErrNoCart
	}
	if index < 0 || index >= len(s.cart.Items) {
		s.mu.Unlock()
		return nil, ErrIndexOutOfRange
	}
	s.cart.Items = append(s.cart.Items[:index], s.cart.Items[index+1:]...)
	if len(s.cart.Items) == 0 {
		s.cart = nil
	}
	cart := s.cart.clone()
	s.mu.Unlock()

	s.persistCart(ctx)
	return cart, nil
}

// UpdateQuantity sets the quantity of the line at index, recomputing its
// price. A quantity of zero or less removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, index, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, index)
	}

	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return nil, ErrNoCart
	}
	if index < 0 || index >= len(s.cart.Items) {
		s.mu.Unlock()
		return nil, ErrIndexOutOfRange
	}
	line := &s.cart.Items[index]
	line.Quantity = quantity
	line.reprice()
	cart := s.cart.clone()
	s.mu.Unlock()

	s.persistCart(ctx)
	return cart, nil
}

// ClearCart discards the cart unconditionally.
func (s *Store) ClearCart(ctx context.Context) {
	s.mu.Lock()
	s.cart = nil
	s.mu.Unlock()
	s.persistCart(ctx)
}

// SetOrderType sets the fulfillment mode of the active cart.
func (s *Store) SetOrderType(ctx context.Context, t OrderType) error {
	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return ErrNoCart
	}
	s.cart.OrderType = t
	s.mu.Unlock()

	s.persistCart(ctx)
	return nil
}

// SetDeliveryInfo sets the delivery address and instructions of the
// active cart.
func (s *Store) SetDeliveryInfo(ctx context.Context, address, instructions string) error {
	s.mu.Lock()
	if s.cart == nil {
		s.mu.Unlock()
		return ErrNoCart
	}
	s.cart.DeliveryAddress = address
	s.cart.DeliveryInstructions = instructions
	s.mu.Unlock()

	s.persistCart(ctx)
	return nil
}

// Cart returns a copy of the active cart, or nil.
func (s *Store) Cart() *Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.clone()
}

// CartTotal returns the sum of line prices, zero when there is no cart.
func (s *Store) CartTotal() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cart == nil {
		return decimal.Zero
	}
	return s.cart.Total()
}

// CreateOrder snapshots the cart into a new pending order, emits an
// order-confirmed notification, and clears the cart. The order number is
// a display label only; collisions are possible and the UUID is the key.
func (s *Store) CreateOrder(ctx context.Context, paymentMethod string) (*Order, error) {
	now := time.Now()

	s.mu.Lock()
	if s.cart == nil || len(s.cart.Items) == 0 {
		s.mu.Unlock()
		return nil, ErrNoCart
	}

	subtotal := s.cart.Total()
	fee := decimal.Zero
	if s.cart.OrderType == OrderTypeDelivery {
		fee = DeliveryFee
	}
	tax := subtotal.Mul(TaxRate)

	order := Order{
		ID:                   uuid.New().String(),
		Number:               fmt.Sprintf("ORD-%d-%04d", now.Year(), rand.IntN(10000)),
		Vendor:               s.cart.Vendor,
		Items:                append([]LineItem(nil), s.cart.Items...),
		Subtotal:             subtotal,
		DeliveryFee:          fee,
		Tax:                  tax,
		Total:                subtotal.Add(fee).Add(tax),
		Type:                 s.cart.OrderType,
		DeliveryAddress:      s.cart.DeliveryAddress,
		DeliveryInstructions: s.cart.DeliveryInstructions,
		PaymentMethod:        paymentMethod,
		Status:               StatusPending,
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	s.orders = append([]Order{order}, s.orders...)
	s.cart = nil
	s.appendNotification(order.ID, NotifyOrderConfirmed, order.Number, now)
	s.mu.Unlock()

	metrics.OrdersCreated.Inc()

	s.persistCart(ctx)
	s.persistOrders(ctx)
	s.persistNotifications(ctx)
	return &order, nil
}

// UpdateOrderStatus sets the order's status and emits the mapped
// notification, if any. No transition validation is performed; the
// status graph is documented on OrderStatus, not enforced.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus) (*Order, error) {
	now := time.Now()

	s.mu.Lock()
	var order *Order
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			order = &s.orders[i]
			break
		}
	}
	if order == nil {
		s.mu.Unlock()
		return nil, ErrOrderNotFound
	}

	prev := order.Status
	order.Status = status
	order.UpdatedAt = now
	order.StatusHistory = append(order.StatusHistory, StatusChange{
		From:      prev,
		To:        status,
		Timestamp: now,
	})

	if notifType, ok := statusNotifications[status]; ok {
		s.appendNotification(order.ID, notifType, order.Number, now)
	}
	updated := *order
	s.mu.Unlock()

	metrics.OrderTransitions.WithLabelValues(string(status)).Inc()

	s.persistOrders(ctx)
	s.persistNotifications(ctx)
	return &updated, nil
}

// Orders returns the order list, most recent first.
func (s *Store) Orders() []Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Order(nil), s.orders...)
}

// Order returns the order with the given ID.
func (s *Store) Order(orderID string) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			o := s.orders[i]
			return &o, nil
		}
	}
	return nil, ErrOrderNotFound
}

// Notifications returns the notification list, most recent first.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Notification(nil), s.notifications...)
}

// MarkNotificationRead flips a notification to read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return ErrNotificationNotFound
	}
	s.persistNotifications(ctx)
	return nil
}

// MarkAllNotificationsRead flips every notification to read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context) {
	s.mu.Lock()
	for i := range s.notifications {
		s.notifications[i].Read = true
	}
	s.mu.Unlock()
	s.persistNotifications(ctx)
}

// ClearNotifications removes all notifications. Individual deletion is
// not supported.
func (s *Store) ClearNotifications(ctx context.Context) {
	s.mu.Lock()
	s.notifications = nil
	s.mu.Unlock()
	s.persistNotifications(ctx)
}

// UnreadCount returns the number of unread notifications.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// appendNotification prepends a notification and publishes it.
// Caller holds the write lock.
func (s *Store) appendNotification(orderID string, t NotificationType, orderNumber string, now time.Time) {
	title, message := notificationText(t, orderNumber)
	n := Notification{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Type:      t,
		Title:     title,
		Message:   message,
		CreatedAt: now,
	}
	s.notifications = append([]Notification{n}, s.notifications...)
	s.publish(n)
}

func (s *Store) publish(n Notification) {
	if s.identity == nil {
		return
	}
	user, ok := s.identity.Current()
	if !ok {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("Failed to marshal notification", "error", err)
		return
	}
	if err := s.publisher.Publish(notify.UserSubject(user.ID), data); err != nil {
		s.logger.Warn("Failed to publish notification", "type", n.Type, "error", err)
	}
}

func (c *Cart) clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = append([]LineItem(nil), c.Items...)
	return &out
}

func (s *Store) persistCart(ctx context.Context) {
	s.mu.RLock()
	cart := s.cart.clone()
	s.mu.RUnlock()

	if cart == nil {
		if err := s.kv.Delete(ctx, storage.KeyFoodCart); err != nil {
			s.logger.Warn("Failed to clear persisted cart", "error", err)
		}
		return
	}
	s.persistKey(ctx, storage.KeyFoodCart, cart)
}

func (s *Store) persistOrders(ctx context.Context) {
	s.mu.RLock()
	orders := append([]Order(nil), s.orders...)
	s.mu.RUnlock()
	s.persistKey(ctx, storage.KeyFoodOrders, orders)
}

func (s *Store) persistNotifications(ctx context.Context) {
	s.mu.RLock()
	notifications := append([]Notification(nil), s.notifications...)
	s.mu.RUnlock()
	s.persistKey(ctx, storage.KeyFoodNotifications, notifications)
}

func (s *Store) persistKey(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to marshal state", "key", key, "error", err)
		return
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		s.logger.Warn("Failed to persist state", "key", key, "error", err)
	}
}
