package vendors

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubsincronica/clubd/food"
	"github.com/clubsincronica/clubd/storage"
)

type fixedOrders []food.Order

func (f fixedOrders) Orders() []food.Order { return f }

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMenuCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewStore(storage.NewMemKV(), nil, nil)

	item, err := s.AddMenuItem(ctx, food.MenuItem{
		VendorID: "vendor-a",
		Name:     "Buddha Bowl",
		Price:    price("12.50"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, item.ID)
	assert.True(t, item.Available, "new items default to available")

	t.Run("explicitly unavailable items still start available", func(t *testing.T) {
		added, err := s.AddMenuItem(ctx, food.MenuItem{
			VendorID:  "vendor-a",
			Name:      "Seasonal Soup",
			Available: false,
		})
		require.NoError(t, err)
		assert.True(t, added.Available, "AddMenuItem overrides the Available flag")

		// Hiding an item goes through UpdateMenuItem
		hidden := false
		updated, err := s.UpdateMenuItem(ctx, added.ID, MenuItemPatch{Available: &hidden})
		require.NoError(t, err)
		assert.False(t, updated.Available)

		require.NoError(t, s.RemoveMenuItem(ctx, added.ID))
	})

	t.Run("menu filters by vendor", func(t *testing.T) {
		_, _ = s.AddMenuItem(ctx, food.MenuItem{VendorID: "vendor-b", Name: "Poke"})
		menu := s.Menu("vendor-a")
		require.Len(t, menu, 1)
		assert.Equal(t, "Buddha Bowl", menu[0].Name)
	})

	t.Run("patch applies only non-nil fields", func(t *testing.T) {
		newPrice := price("13.00")
		unavailable := false
		updated, err := s.UpdateMenuItem(ctx, item.ID, MenuItemPatch{Price: &newPrice, Available: &unavailable})
		require.NoError(t, err)
		assert.True(t, updated.Price.Equal(newPrice))
		assert.False(t, updated.Available)
		assert.Equal(t, "Buddha Bowl", updated.Name)
	})

	t.Run("unknown item", func(t *testing.T) {
		_, err := s.UpdateMenuItem(ctx, "missing", MenuItemPatch{})
		assert.ErrorIs(t, err, ErrMenuItemNotFound)
		assert.ErrorIs(t, s.RemoveMenuItem(ctx, "missing"), ErrMenuItemNotFound)
	})

	t.Run("remove", func(t *testing.T) {
		require.NoError(t, s.RemoveMenuItem(ctx, item.ID))
		assert.Empty(t, s.Menu("vendor-a"))
	})
}

func TestMenuPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemKV()

	first := NewStore(kv, nil, nil)
	item, _ := first.AddMenuItem(ctx, food.MenuItem{VendorID: "vendor-a", Name: "Bowl", Price: price("10.00")})

	second := NewStore(kv, nil, nil)
	require.NoError(t, second.Load(ctx))
	menu := second.Menu("vendor-a")
	require.Len(t, menu, 1)
	assert.Equal(t, item.ID, menu[0].ID)
}

func testOrder(vendorID string, status food.OrderStatus, total string, createdAt time.Time, items ...food.LineItem) food.Order {
	return food.Order{
		ID:        "ord-" + vendorID + "-" + string(status) + "-" + createdAt.Format("150405"),
		Vendor:    food.Vendor{ID: vendorID},
		Items:     items,
		Total:     price(total),
		Status:    status,
		CreatedAt: createdAt,
	}
}

func line(itemID, name string, qty int, lineTotal string) food.LineItem {
	return food.LineItem{
		MenuItem: food.MenuItem{ID: itemID, Name: name},
		Quantity: qty,
		Price:    price(lineTotal),
	}
}

func TestIncomingOrders(t *testing.T) {
	now := time.Now()
	orders := fixedOrders{
		testOrder("vendor-a", food.StatusPending, "10.00", now),
		testOrder("vendor-a", food.StatusPreparing, "20.00", now.Add(time.Minute)),
		testOrder("vendor-a", food.StatusDelivered, "30.00", now.Add(2*time.Minute)),
		testOrder("vendor-a", food.StatusCancelled, "5.00", now.Add(3*time.Minute)),
		testOrder("vendor-b", food.StatusPending, "7.00", now),
	}
	s := NewStore(storage.NewMemKV(), orders, nil)

	incoming := s.IncomingOrders("vendor-a")
	require.Len(t, incoming, 2)
	for _, o := range incoming {
		assert.Equal(t, "vendor-a", o.Vendor.ID)
		assert.Contains(t, []food.OrderStatus{food.StatusPending, food.StatusPreparing}, o.Status)
	}
}

func TestStats(t *testing.T) {
	now := time.Now()
	orders := fixedOrders{
		testOrder("vendor-a", food.StatusDelivered, "27.50", now,
			line("item-bowl", "Buddha Bowl", 2, "25.00")),
		testOrder("vendor-a", food.StatusDelivered, "15.40", now.Add(time.Hour),
			line("item-bowl", "Buddha Bowl", 1, "12.50"),
			line("item-juice", "Green Juice", 1, "4.00")),
		testOrder("vendor-a", food.StatusPreparing, "12.50", now,
			line("item-bowl", "Buddha Bowl", 1, "12.50")),
		testOrder("vendor-a", food.StatusCancelled, "4.40", now,
			line("item-juice", "Green Juice", 1, "4.00")),
		testOrder("vendor-b", food.StatusDelivered, "99.00", now),
	}
	s := NewStore(storage.NewMemKV(), orders, nil)

	stats := s.Stats("vendor-a")

	assert.Equal(t, 4, stats.TotalOrders)
	assert.Equal(t, 1, stats.ActiveOrders)
	// Delivered orders only: 27.50 + 15.40
	assert.True(t, stats.Revenue.Equal(price("42.90")), "got %s", stats.Revenue)
	assert.Equal(t, 2, stats.CountByStatus[food.StatusDelivered])
	assert.Equal(t, 1, stats.CountByStatus[food.StatusPreparing])
	assert.Equal(t, 1, stats.CountByStatus[food.StatusCancelled])

	require.Len(t, stats.PopularItems, 2)
	top := stats.PopularItems[0]
	assert.Equal(t, "item-bowl", top.ItemID)
	assert.Equal(t, 4, top.OrderCount)
	assert.Equal(t, 1, top.Rank)
	// 25.00 + 12.50 + 12.50
	assert.True(t, top.TotalRevenue.Equal(price("50.00")), "got %s", top.TotalRevenue)
	assert.Equal(t, 2, stats.PopularItems[1].Rank)
}

func TestStatsWithoutOrderSource(t *testing.T) {
	s := NewStore(storage.NewMemKV(), nil, nil)
	stats := s.Stats("vendor-a")
	assert.Equal(t, 0, stats.TotalOrders)
	assert.Nil(t, s.IncomingOrders("vendor-a"))
}
