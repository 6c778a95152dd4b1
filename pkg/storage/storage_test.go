package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() (*Item, *Item) {
	return &Item{Key: "wood", UnitSize: 1}, &Item{Key: "stone", UnitSize: 1}
}

func TestNewRejectsInvalidPolicies(t *testing.T) {
	free := MustNew(Free{})
	global := MustNew(Global{Storage: free})

	cases := []struct {
		name   string
		policy Policy
		err    error
	}{
		{"nil", nil, ErrInvalidPolicy},
		{"no stacks", Stacked{StackCount: 0, Capacity: 10}, ErrInvalidPolicy},
		{"negative capacity", ItemCapped{Capacity: -1}, ErrInvalidPolicy},
		{"global without target", Global{}, ErrNoTarget},
		{"store without target", Store{}, ErrNoTarget},
		{"global of global", Global{Storage: global}, ErrInvalidPolicy},
		{"specific without item", ItemSpecific{Capacities: []ItemQuantity{{Quantity: 1}}}, ErrInvalidPolicy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.policy)
			assert.ErrorIs(t, err, tc.err)
		})
	}
	assert.Panics(t, func() { MustNew(Stacked{}) })
}

func TestFreeQuantityReservation(t *testing.T) {
	item, _ := testItems()
	s := MustNew(Free{})

	assert.Equal(t, 0, s.AddItems(item, 10, false))
	assert.Equal(t, 10, s.GetItemQuantityRemaining(item))

	r := s.ReserveQuantity(item, 5)
	assert.Equal(t, 5, r.Amount())
	assert.Equal(t, 5, s.GetItemQuantityRemaining(item))

	assert.Equal(t, 0, s.UnreserveQuantity(item, 5))
	assert.Equal(t, 10, s.GetItemQuantityRemaining(item))
	assert.Equal(t, Unlimited, s.GetItemCapacityRemaining(item))
}

func TestItemCappedCapacityReservation(t *testing.T) {
	item, _ := testItems()
	s := MustNew(ItemCapped{Capacity: 10})

	assert.Equal(t, 10, s.GetItemCapacityRemaining(item))
	r := s.ReserveCapacity(item, 5)
	assert.Equal(t, 5, s.GetItemCapacityRemaining(item))
	assert.Equal(t, 5, s.GetReservedCapacity(item))

	r.Release()
	assert.Equal(t, 10, s.GetItemCapacityRemaining(item))
	assert.Equal(t, 0, s.AddItems(item, 5, false))
	assert.Equal(t, 5, s.GetItemCapacityRemaining(item))
}

func TestStackedQuantityReservation(t *testing.T) {
	item, _ := testItems()
	s := MustNew(Stacked{StackCount: 4, Capacity: 4})

	s.AddItems(item, 10, false)
	assert.Equal(t, 10, s.GetItemQuantityRemaining(item))
	r := s.ReserveQuantity(item, 5)
	assert.Equal(t, 5, s.GetItemQuantityRemaining(item))
	assert.Equal(t, 5, s.RemoveItems(item, 10), "reserved stock stays")
	r.Release()
	assert.Equal(t, 5, s.GetItemQuantityRemaining(item))
}

func TestStackedCapacityReservation(t *testing.T) {
	item, other := testItems()
	s := MustNew(Stacked{StackCount: 4, Capacity: 4})

	s.AddItems(item, 10, false)
	assert.Equal(t, 6, s.GetItemCapacityRemaining(item))

	r := s.ReserveCapacity(item, 5)
	assert.Equal(t, 5, r.Amount())
	assert.Equal(t, 1, s.GetItemCapacityRemaining(item))
	assert.Equal(t, 4, s.AddItems(item, 5, false))

	assert.Equal(t, 0, s.UnreserveCapacity(item, 5))
	assert.Equal(t, 5, s.GetItemCapacityRemaining(item))
	assert.Equal(t, 0, s.AddItems(item, 5, false))
	assert.Equal(t, 16, s.GetItemQuantity(item))
	assert.Equal(t, 0, s.GetItemCapacityRemaining(item))
	assert.Equal(t, 0, s.RemoveItems(item, 16))

	held := s.ReserveCapacity(item, 1)
	assert.Equal(t, item, s.Stacks()[0].Item(), "reserving binds an empty stack")
	assert.Equal(t, 4, s.AddItems(other, 16, false))
	held.Release()
	assert.Nil(t, s.Stacks()[0].Item())
	assert.Equal(t, 12, s.AddItems(other, 16, false))

	assert.Equal(t, 0, s.GetItemQuantity(item))
	assert.Equal(t, 16, s.GetItemQuantity(other))
}

func TestStackedLayout(t *testing.T) {
	a, b := testItems()
	s := MustNew(Stacked{StackCount: 4, Capacity: 10})

	s.AddItems(a, 25, false)
	s.AddItems(b, 5, false)

	stacks := s.Stacks()
	require.Len(t, stacks, 4)
	var quantities []int
	var items []*Item
	for _, st := range stacks {
		quantities = append(quantities, st.Quantity())
		items = append(items, st.Item())
	}
	assert.Equal(t, []int{10, 10, 5, 5}, quantities)
	assert.Equal(t, []*Item{a, a, a, b}, items)

	assert.Equal(t, 5, s.GetItemCapacityRemaining(a))
	assert.Equal(t, 5, s.GetItemCapacityRemaining(b))
	assert.Equal(t, 40, s.GetItemCapacity(nil))
	assert.Equal(t, 10, s.GetItemCapacityRemaining(nil))

	assert.Equal(t, 5, s.AddItems(a, 10, false))
	assert.Equal(t, 0, s.AddItems(a, 10, true))
	assert.Equal(t, 40, s.GetItemQuantity(a))

	assert.Equal(t, 5, s.RemoveItems(b, 10))
	assert.Equal(t, 0, s.GetItemQuantity(b))
	assert.Nil(t, stacks[3].Item())
}

func TestMoveItemsTo(t *testing.T) {
	item, _ := testItems()
	source := MustNew(ItemCapped{Capacity: 100})
	target := MustNew(ItemCapped{Capacity: 10})
	source.AddItems(item, 50, false)

	assert.Equal(t, 10, source.MoveItemsTo(target, item, -1))
	assert.Equal(t, 40, source.GetItemQuantity(item))
	assert.Equal(t, 10, target.GetItemQuantity(item))

	assert.Equal(t, 10, target.MoveItemsTo(source, item, -1))
	assert.Equal(t, 50, source.GetItemQuantity(item))
	assert.Equal(t, 0, target.GetItemQuantity(item))

	assert.Equal(t, 5, source.MoveItemsTo(target, item, 5))
	assert.Equal(t, 45, source.GetItemQuantity(item))
	assert.Equal(t, 5, target.GetItemQuantity(item))
	assert.Equal(t, 5, source.MoveItemsTo(target, nil, -1))

	assert.Equal(t, 0, source.MoveItemsTo(target, item, 0))
	assert.Equal(t, 0, source.MoveItemsTo(nil, item, 5))
	assert.Equal(t, 0, source.MoveItemsTo(source, item, 5))
}

func TestMoveKeepsReservedStock(t *testing.T) {
	item, _ := testItems()
	source := MustNew(Free{})
	target := MustNew(Free{})
	source.AddItems(item, 10, false)
	r := source.ReserveQuantity(item, 8)
	defer r.Release()

	assert.Equal(t, 2, source.MoveItemsTo(target, item, -1))
	assert.Equal(t, 8, source.GetItemQuantity(item))
}

func TestItemCappedRatios(t *testing.T) {
	a, b := testItems()
	s := MustNew(ItemCapped{Capacity: 10})
	s.AddItems(a, 5, false)
	s.AddItems(b, 10, false)

	assert.Equal(t, 5, s.GetItemCapacityRemaining(a))
	assert.Equal(t, 0, s.GetItemCapacityRemaining(b))
	assert.Equal(t, 0, s.GetItemCapacityRemainingRatio(a, 0.5))
	assert.Equal(t, 0, s.GetItemsOverRatio(a, 0.5))
	assert.Equal(t, 5, s.GetItemsOverRatio(a, 0))
	assert.Equal(t, 5, s.GetItemsOverRatio(b, 0.5))
}

func TestTotalItemCapped(t *testing.T) {
	a, b := testItems()
	s := MustNew(TotalItemCapped{Capacity: 20})
	s.AddItems(a, 5, false)
	s.AddItems(b, 10, false)

	assert.Equal(t, 5, s.GetItemCapacityRemaining(a))
	assert.Equal(t, 5, s.GetItemCapacityRemaining(b))
	assert.Equal(t, 3, s.AddItems(a, 8, false))
	assert.Equal(t, 0, s.GetItemCapacityRemaining(nil))
}

func TestUnitCapped(t *testing.T) {
	a := &Item{Key: "plank", UnitSize: 10}
	b := &Item{Key: "stone", UnitSize: 1}
	s := MustNew(UnitCapped{Capacity: 10})

	s.AddItems(a, 50, false)
	assert.Equal(t, 50, s.GetItemCapacityRemaining(a))
	assert.Equal(t, 100, s.GetItemCapacity(a))
	s.AddItems(b, 10, false)
	assert.Equal(t, 0, s.GetItemCapacityRemaining(b))
}

func TestTotalUnitCapped(t *testing.T) {
	a := &Item{Key: "plank", UnitSize: 10}
	b := &Item{Key: "stone", UnitSize: 1}
	s := MustNew(TotalUnitCapped{Capacity: 10})

	s.AddItems(a, 30, false)
	s.AddItems(b, 2, false)
	assert.Equal(t, 50, s.GetItemCapacityRemaining(a))
	assert.Equal(t, 5, s.GetItemCapacityRemaining(b))
}

func TestItemSpecific(t *testing.T) {
	a, b := testItems()
	c := &Item{Key: "fish"}
	s := MustNew(ItemSpecific{Capacities: []ItemQuantity{{Item: a, Quantity: 10}, {Item: b, Quantity: 5}}})

	s.AddItems(a, 5, false)
	s.AddItems(b, 1, false)
	assert.Equal(t, 5, s.GetItemCapacityRemaining(a))
	assert.Equal(t, 4, s.GetItemCapacityRemaining(b))
	assert.Equal(t, 9, s.GetItemCapacityRemaining(nil))
	assert.Equal(t, 15, s.GetItemCapacity(nil))

	assert.Equal(t, 0, s.GetItemCapacity(c))
	assert.Equal(t, 3, s.AddItems(c, 3, false))
}

func TestGlobalDelegation(t *testing.T) {
	item, _ := testItems()
	global := MustNew(Free{})
	proxy := MustNew(Global{Storage: global})

	proxy.AddItems(item, 5, false)
	global.AddItems(item, 10, false)
	assert.Equal(t, 15, proxy.GetItemQuantity(item))
	assert.Equal(t, 15, global.GetItemQuantity(item))

	assert.Equal(t, ModeGlobal, proxy.Mode())
	assert.Empty(t, proxy.SaveData().Items)
	assert.Equal(t, Unlimited, proxy.GetItemCapacity(item))
}

func TestStoreDelegation(t *testing.T) {
	item, _ := testItems()
	store := MustNew(Free{})
	store.AddItems(item, 1, false)

	a := MustNew(Store{Storage: store})
	b := MustNew(Store{Storage: store})
	independent := MustNew(Free{})

	a.AddItems(item, 5, false)
	b.AddItems(item, 10, false)
	independent.AddItems(item, 100, false)

	assert.Equal(t, 16, store.GetItemQuantity(item))
	assert.Equal(t, 16, a.GetItemQuantity(item))
	assert.Equal(t, 16, b.GetItemQuantity(item))
	assert.Equal(t, 100, independent.GetItemQuantity(item))
}

func TestQueriesAndClear(t *testing.T) {
	a, b := testItems()
	s := MustNew(Free{})
	assert.False(t, s.HasItems())
	assert.Equal(t, 0, s.RemoveItems(a, 0))
	assert.Equal(t, 3, s.RemoveItems(a, 3))

	s.AddItems(b, 2, false)
	s.AddItems(a, 3, false)
	assert.True(t, s.HasItems())
	assert.True(t, s.HasItem(a))
	assert.True(t, s.HasItemsRemaining(a, 3))
	assert.False(t, s.HasItemsRemaining(a, 4))
	assert.Equal(t, []ItemQuantity{{Item: b, Quantity: 2}, {Item: a, Quantity: 3}}, s.GetItemQuantities())
	assert.Equal(t, 5, s.GetItemQuantity(nil))

	s.ReserveCapacity(a, 2)
	s.ClearReservations()
	assert.Equal(t, 0, s.GetReservedCapacity(nil))
	assert.Equal(t, 3, s.GetItemQuantity(a))

	s.Clear()
	assert.False(t, s.HasItems())
	assert.Empty(t, s.GetItemQuantities())
}

func TestOnChanged(t *testing.T) {
	item, _ := testItems()
	global := MustNew(Free{})
	proxy := MustNew(Global{Storage: global})

	calls := 0
	cancel := proxy.OnChanged(func(*ItemStorage) { calls++ })
	proxy.AddItems(item, 1, false)
	global.RemoveItems(item, 1)
	global.RemoveItems(item, 1)
	assert.Equal(t, 2, calls, "no-op removals do not notify")

	cancel()
	global.AddItems(item, 1, false)
	assert.Equal(t, 2, calls)
}

func TestDebugText(t *testing.T) {
	a, _ := testItems()
	s := MustNew(ItemCapped{Capacity: 10})
	s.AddItems(a, 4, false)
	s.ReserveCapacity(a, 2)
	assert.Equal(t, "item_capped 4/10\nwood 4/10 +2\n", s.DebugText())

	stacked := MustNew(Stacked{StackCount: 2, Capacity: 5})
	stacked.AddItems(a, 3, false)
	assert.Contains(t, stacked.DebugText(), "#0 wood 3/5")
	assert.Contains(t, stacked.DebugText(), "#1 empty/5")
}

func TestCappedAddKeepsReservedSpace(t *testing.T) {
	cases := []struct {
		name     string
		policy   Policy
		reserve  int
		capacity int
	}{
		{"item capped", ItemCapped{Capacity: 10}, 5, 10},
		{"total item capped", TotalItemCapped{Capacity: 10}, 5, 10},
		{"unit capped", UnitCapped{Capacity: 10}, 5, 10},
		{"stacked", Stacked{StackCount: 2, Capacity: 4}, 4, 8},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item, _ := testItems()
			s := MustNew(tc.policy)

			r := s.ReserveCapacity(item, tc.reserve)
			require.Equal(t, tc.reserve, r.Amount())

			free := tc.capacity - tc.reserve
			assert.Equal(t, 10-free, s.AddItems(item, 10, true))
			assert.Equal(t, free, s.GetItemQuantity(item))
			assert.Equal(t, tc.reserve, s.GetReservedCapacity(item))

			assert.Equal(t, 0, r.Deliver(tc.reserve), "reserved space survives a capped add")
			assert.Equal(t, tc.capacity, s.GetItemQuantity(item))
			assert.LessOrEqual(t, s.GetItemQuantity(item), s.GetItemCapacity(item))
		})
	}
}

func TestRemainingWithoutItem(t *testing.T) {
	a, b := testItems()

	items := MustNew(ItemCapped{Capacity: 10})
	assert.Equal(t, 10, items.GetItemCapacityRemaining(nil))
	items.AddItems(a, 4, false)
	items.AddItems(b, 7, false)
	assert.Equal(t, 3, items.GetItemCapacityRemaining(nil))
	r := items.ReserveCapacity(a, 5)
	assert.Equal(t, 1, items.GetItemCapacityRemaining(nil))
	r.Release()

	plank := &Item{Key: "plank", UnitSize: 10}
	units := MustNew(UnitCapped{Capacity: 10})
	units.AddItems(plank, 30, false)
	units.AddItems(b, 2, false)
	assert.Equal(t, 7, units.GetItemCapacityRemaining(nil))
	units.ReserveCapacity(b, 6)
	assert.Equal(t, 2, units.GetItemCapacityRemaining(nil))
}
