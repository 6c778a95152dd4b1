package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemStackBinding(t *testing.T) {
	a, b := testItems()
	st := NewItemStack(10)

	assert.Equal(t, 0, st.AddQuantity(a, 0))
	assert.Nil(t, st.Item(), "an empty add does not bind")

	assert.Equal(t, 0, st.AddQuantity(a, 4))
	assert.Equal(t, a, st.Item())
	assert.Equal(t, 3, st.AddQuantity(b, 3), "bound to another item")
	assert.Equal(t, 0, st.GetItemCapacity(b))
	assert.InDelta(t, 0.4, st.FillDegree(), 0.0001)

	assert.Equal(t, 0, st.ReserveCapacity(a, 2))
	assert.Equal(t, 0, st.RemoveQuantity(a, 4))
	assert.Equal(t, a, st.Item(), "stays bound while capacity is reserved")
	assert.Equal(t, 0, st.UnreserveCapacity(a, 2))
	assert.Nil(t, st.Item())
}

func TestItemStackLimits(t *testing.T) {
	a := &Item{Key: "plank", UnitSize: 2}
	st := NewItemStack(3)

	assert.Equal(t, 6, st.GetItemCapacity(a))
	assert.Equal(t, 2, st.AddQuantity(a, 8))
	assert.True(t, st.HasItem(a))
	assert.Equal(t, 1, st.RemoveQuantity(a, 7))
	assert.False(t, st.HasItems())
	assert.Equal(t, 5, st.ReserveCapacity(a, 11))
	assert.Equal(t, 0, st.GetItemCapacityRemaining(a))
}

func TestItemStackSetQuantity(t *testing.T) {
	a, _ := testItems()
	st := NewItemStack(10)

	st.SetQuantity(5)
	assert.Equal(t, 0, st.Quantity(), "unbound stacks ignore SetQuantity")

	st.AddQuantity(a, 1)
	st.SetQuantity(7)
	assert.Equal(t, 7, st.Quantity())
	st.SetQuantity(-3)
	assert.Equal(t, 0, st.Quantity())
	assert.Nil(t, st.Item())
}

func TestItemStackChanged(t *testing.T) {
	a, _ := testItems()
	st := NewItemStack(10)

	var seen []int
	cancel := st.OnChanged(func(s *ItemStack) { seen = append(seen, s.Quantity()) })
	st.AddQuantity(a, 3)
	st.RemoveQuantity(a, 1)
	st.RemoveQuantity(a, 0)
	cancel()
	st.AddQuantity(a, 1)

	assert.Equal(t, []int{3, 2}, seen)
}
