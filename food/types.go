// Package food manages the single active food cart, converts it into
// immutable orders, and drives each order through its status lifecycle,
// emitting notifications along the way.
package food

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OrderType is the fulfillment mode of a cart or order.
type OrderType string

const (
	OrderTypeDelivery OrderType = "delivery"
	OrderTypePickup   OrderType = "pickup"
)

// OrderStatus is the lifecycle state of an order. The linear progression
// is pending → confirmed → preparing → ready → (out-for-delivery,
// delivery only) → delivered. cancelled is reachable from any non-terminal
// state; refunded is a separate terminal state. Transitions are not
// validated: any caller may set any status, matching the shipped client.
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusReady          OrderStatus = "ready"
	StatusOutForDelivery OrderStatus = "out-for-delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
	StatusRefunded       OrderStatus = "refunded"
)

// Pricing constants. Tax is a flat 10% of the subtotal; the delivery fee
// applies only to delivery orders.
var (
	TaxRate     = decimal.NewFromFloat(0.10)
	DeliveryFee = decimal.NewFromFloat(3.50)
)

// Vendor identifies the provider a cart or order belongs to.
type Vendor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MenuItem is a purchasable entry on a vendor's menu.
type MenuItem struct {
	ID          string          `json:"id"`
	VendorID    string          `json:"vendor_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Category    string          `json:"category,omitempty"`
	Available   bool            `json:"available"`
}

// Customization is one option group's selection on a line item: the
// group, the chosen option IDs, and the additional price those options
// add per unit.
type Customization struct {
	GroupID   string          `json:"group_id"`
	OptionIDs []string        `json:"option_ids"`
	Price     decimal.Decimal `json:"price"`
}

// LineItem is one cart line. Price is always quantity × (unit price +
// sum of customization prices); it is recomputed on every quantity or
// customization change, never patched.
type LineItem struct {
	MenuItem       MenuItem        `json:"menu_item"`
	Quantity       int             `json:"quantity"`
	Customizations []Customization `json:"customizations,omitempty"`
	Instructions   string          `json:"instructions,omitempty"`
	Price          decimal.Decimal `json:"price"`
}

// unitPrice is the per-unit price including customizations.
func (l *LineItem) unitPrice() decimal.Decimal {
	p := l.MenuItem.Price
	for _, c := range l.Customizations {
		p = p.Add(c.Price)
	}
	return p
}

// reprice recomputes Price from the current quantity and customizations.
func (l *LineItem) reprice() {
	l.Price = l.unitPrice().Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// sameSelection reports whether two customization sets select the same
// options. Option order within a group does not matter.
func sameSelection(a, b []Customization) bool {
	if len(a) != len(b) {
		return false
	}
	an := normalizeSelection(a)
	bn := normalizeSelection(b)
	for i := range an {
		if an[i].GroupID != bn[i].GroupID {
			return false
		}
		if !an[i].Price.Equal(bn[i].Price) {
			return false
		}
		if len(an[i].OptionIDs) != len(bn[i].OptionIDs) {
			return false
		}
		for j := range an[i].OptionIDs {
			if an[i].OptionIDs[j] != bn[i].OptionIDs[j] {
				return false
			}
		}
	}
	return true
}

func normalizeSelection(cs []Customization) []Customization {
	out := make([]Customization, len(cs))
	for i, c := range cs {
		ids := make([]string, len(c.OptionIDs))
		copy(ids, c.OptionIDs)
		sort.Strings(ids)
		out[i] = Customization{GroupID: c.GroupID, OptionIDs: ids, Price: c.Price}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out
}

// Cart is the single in-progress selection, scoped to one vendor.
// Adding an item from a different vendor replaces the cart wholesale.
type Cart struct {
	Vendor               Vendor     `json:"vendor"`
	Items                []LineItem `json:"items"`
	OrderType            OrderType  `json:"order_type"`
	DeliveryAddress      string     `json:"delivery_address,omitempty"`
	DeliveryInstructions string     `json:"delivery_instructions,omitempty"`
}

// Total is the sum of line prices.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price)
	}
	return total
}

// StatusChange records one order status transition.
type StatusChange struct {
	From      OrderStatus `json:"from"`
	To        OrderStatus `json:"to"`
	Timestamp time.Time   `json:"timestamp"`
}

// Order is an immutable snapshot of a cart plus computed totals. Only
// Status, UpdatedAt and StatusHistory mutate after creation; orders are
// never deleted.
type Order struct {
	ID                   string          `json:"id"`
	Number               string          `json:"number"`
	Vendor               Vendor          `json:"vendor"`
	Items                []LineItem      `json:"items"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	DeliveryFee          decimal.Decimal `json:"delivery_fee"`
	Tax                  decimal.Decimal `json:"tax"`
	Total                decimal.Decimal `json:"total"`
	Type                 OrderType       `json:"type"`
	DeliveryAddress      string          `json:"delivery_address,omitempty"`
	DeliveryInstructions string          `json:"delivery_instructions,omitempty"`
	PaymentMethod        string          `json:"payment_method"`
	Status               OrderStatus     `json:"status"`
	StatusHistory        []StatusChange  `json:"status_history,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// NotificationType tags a notification with the order event it reports.
type NotificationType string

const (
	NotifyOrderConfirmed      NotificationType = "order-confirmed"
	NotifyOrderPreparing      NotificationType = "order-preparing"
	NotifyOrderReady          NotificationType = "order-ready"
	NotifyOrderOutForDelivery NotificationType = "order-out-for-delivery"
	NotifyOrderDelivered      NotificationType = "order-delivered"
	NotifyOrderCancelled      NotificationType = "order-cancelled"
)

// statusNotifications maps order statuses to notification types.
// pending and refunded intentionally have no entry.
var statusNotifications = map[OrderStatus]NotificationType{
	StatusConfirmed:      NotifyOrderConfirmed,
	StatusPreparing:      NotifyOrderPreparing,
	StatusReady:          NotifyOrderReady,
	StatusOutForDelivery: NotifyOrderOutForDelivery,
	StatusDelivered:      NotifyOrderDelivered,
	StatusCancelled:      NotifyOrderCancelled,
}

// notificationText returns the title and message for a notification type.
func notificationText(t NotificationType, orderNumber string) (string, string) {
	switch t {
	case NotifyOrderConfirmed:
		return "Order confirmed", "Your order " + orderNumber + " has been confirmed."
	case NotifyOrderPreparing:
		return "Order in the kitchen", "Your order " + orderNumber + " is being prepared."
	case NotifyOrderReady:
		return "Order ready", "Your order " + orderNumber + " is ready."
	case NotifyOrderOutForDelivery:
		return "Order on its way", "Your order " + orderNumber + " is out for delivery."
	case NotifyOrderDelivered:
		return "Order delivered", "Your order " + orderNumber + " has been delivered. Enjoy!"
	case NotifyOrderCancelled:
		return "Order cancelled", "Your order " + orderNumber + " has been cancelled."
	default:
		return "Order update", "Your order " + orderNumber + " was updated."
	}
}

// Notification reports an order event to the user. Notifications are
// prepended most-recent-first and only ever mutated to flip Read.
type Notification struct {
	ID        string           `json:"id"`
	OrderID   string           `json:"order_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
