// Package vendors provides the vendor-facing side of the marketplace:
// the vendor's menu, incoming orders, and derived sales statistics.
package vendors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubsincronica/clubd/food"
	"github.com/clubsincronica/clubd/storage"
)

// Store operation errors.
var (
	// ErrMenuItemNotFound is returned when a menu item ID is unknown.
	ErrMenuItemNotFound = errors.New("menu item not found")
)

// OrderSource exposes the order list the vendor views are derived from.
// The food store satisfies it; the vendor store only reads.
type OrderSource interface {
	Orders() []food.Order
}

// MenuItemPatch carries the mutable menu item fields. Nil fields are
// left unchanged.
type MenuItemPatch struct {
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Category    *string
	Available   *bool
}

// PopularItem is one entry in the popularity ranking.
type PopularItem struct {
	ItemID       string          `json:"item_id"`
	ItemName     string          `json:"item_name"`
	OrderCount   int             `json:"order_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	Rank         int             `json:"rank"`
	LastOrdered  time.Time       `json:"last_ordered"`
}

// Stats is the derived dashboard summary for a vendor.
type Stats struct {
	TotalOrders   int                      `json:"total_orders"`
	ActiveOrders  int                      `json:"active_orders"`
	Revenue       decimal.Decimal          `json:"revenue"`
	CountByStatus map[food.OrderStatus]int `json:"count_by_status"`
	PopularItems  []PopularItem            `json:"popular_items"`
}

// Store manages a vendor's menu and derives order views from the order
// source. The menu persists under the vendor menu key; the views are
// computed on demand and never stored.
type Store struct {
	kv     storage.KV
	logger *slog.Logger
	orders OrderSource

	mu   sync.RWMutex
	menu []food.MenuItem
}

// NewStore creates a vendor store. orders may be nil for menu-only use.
func NewStore(kv storage.KV, orders OrderSource, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger, orders: orders}
}

// Load restores the persisted menu.
func (s *Store) Load(ctx context.Context) error {
	data, err := s.kv.Get(ctx, storage.KeyVendorMenu)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load vendor menu: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := json.Unmarshal(data, &s.menu); err != nil {
		return fmt.Errorf("unmarshal vendor menu: %w", err)
	}
	return nil
}

// AddMenuItem adds an item to the menu. A missing ID is assigned. Items
// always start available, overriding whatever the Available field
// carries; use UpdateMenuItem to take an item off the menu.
func (s *Store) AddMenuItem(ctx context.Context, item food.MenuItem) (*food.MenuItem, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	item.Available = true

	s.mu.Lock()
	s.menu = append(s.menu, item)
	s.mu.Unlock()

	s.persistMenu(ctx)
	return &item, nil
}

// UpdateMenuItem applies the patch to the item with the given ID.
func (s *Store) UpdateMenuItem(ctx context.Context, id string, patch MenuItemPatch) (*food.MenuItem, error) {
	s.mu.Lock()
	var item *food.MenuItem
	for i := range s.menu {
		if s.menu[i].ID == id {
			item = &s.menu[i]
			break
		}
	}
	if item == nil {
		s.mu.Unlock()
		return nil, ErrMenuItemNotFound
	}
	if patch.Name != nil {
		item.Name = *patch.Name
	}
	if patch.Description != nil {
		item.Description = *patch.Description
	}
	if patch.Price != nil {
		item.Price = *patch.Price
	}
	if patch.Category != nil {
		item.Category = *patch.Category
	}
	if patch.Available != nil {
		item.Available = *patch.Available
	}
	updated := *item
	s.mu.Unlock()

	s.persistMenu(ctx)
	return &updated, nil
}

// RemoveMenuItem removes the item with the given ID.
func (s *Store) RemoveMenuItem(ctx context.Context, id string) error {
	s.mu.Lock()
	found := false
	menu := s.menu[:0]
	for _, item := range s.menu {
		if item.ID == id {
			found = true
			continue
		}
		menu = append(menu, item)
	}
	s.menu = menu
	s.mu.Unlock()

	if !found {
		return ErrMenuItemNotFound
	}
	s.persistMenu(ctx)
	return nil
}

// Menu returns the vendor's menu items.
func (s *Store) Menu(vendorID string) []food.MenuItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []food.MenuItem
	for _, item := range s.menu {
		if item.VendorID == vendorID {
			out = append(out, item)
		}
	}
	return out
}

// activeStatuses are the order states a vendor still has to act on.
var activeStatuses = map[food.OrderStatus]bool{
	food.StatusPending:        true,
	food.StatusConfirmed:      true,
	food.StatusPreparing:      true,
	food.StatusReady:          true,
	food.StatusOutForDelivery: true,
}

// IncomingOrders returns the vendor's orders that are not yet settled,
// most recent first.
func (s *Store) IncomingOrders(vendorID string) []food.Order {
	if s.orders == nil {
		return nil
	}
	var out []food.Order
	for _, o := range s.orders.Orders() {
		if o.Vendor.ID == vendorID && activeStatuses[o.Status] {
			out = append(out, o)
		}
	}
	return out
}

// Stats derives the vendor's dashboard summary from the order list.
// Revenue counts delivered orders only.
func (s *Store) Stats(vendorID string) Stats {
	stats := Stats{
		Revenue:       decimal.Zero,
		CountByStatus: make(map[food.OrderStatus]int),
	}
	if s.orders == nil {
		return stats
	}

	type itemAgg struct {
		name        string
		count       int
		revenue     decimal.Decimal
		lastOrdered time.Time
	}
	items := make(map[string]*itemAgg)

	for _, o := range s.orders.Orders() {
		if o.Vendor.ID != vendorID {
			continue
		}
		stats.TotalOrders++
		stats.CountByStatus[o.Status]++
		if activeStatuses[o.Status] {
			stats.ActiveOrders++
		}
		if o.Status == food.StatusDelivered {
			stats.Revenue = stats.Revenue.Add(o.Total)
		}

		for _, line := range o.Items {
			agg := items[line.MenuItem.ID]
			if agg == nil {
				agg = &itemAgg{name: line.MenuItem.Name, revenue: decimal.Zero}
				items[line.MenuItem.ID] = agg
			}
			agg.count += line.Quantity
			agg.revenue = agg.revenue.Add(line.Price)
			if o.CreatedAt.After(agg.lastOrdered) {
				agg.lastOrdered = o.CreatedAt
			}
		}
	}

	for id, agg := range items {
		stats.PopularItems = append(stats.PopularItems, PopularItem{
			ItemID:       id,
			ItemName:     agg.name,
			OrderCount:   agg.count,
			TotalRevenue: agg.revenue,
			LastOrdered:  agg.lastOrdered,
		})
	}
	sort.Slice(stats.PopularItems, func(i, j int) bool {
		if stats.PopularItems[i].OrderCount != stats.PopularItems[j].OrderCount {
			return stats.PopularItems[i].OrderCount > stats.PopularItems[j].OrderCount
		}
		return stats.PopularItems[i].ItemID < stats.PopularItems[j].ItemID
	})
	for i := range stats.PopularItems {
		stats.PopularItems[i].Rank = i + 1
	}

	return stats
}

func (s *Store) persistMenu(ctx context.Context) {
	s.mu.RLock()
	menu := append([]food.MenuItem(nil), s.menu...)
	s.mu.RUnlock()

	data, err := json.Marshal(menu)
	if err != nil {
		s.logger.Error("Failed to marshal vendor menu", "error", err)
		return
	}
	if err := s.kv.Put(ctx, storage.KeyVendorMenu, data); err != nil {
		s.logger.Warn("Failed to persist vendor menu", "error", err)
	}
}
