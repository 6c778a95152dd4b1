package storage

import (
	"fmt"
	"strings"
)

// OrderMode tells carriers what a storage wants done with one item.
type OrderMode int

const (
	// OrderNeutral neither requests nor offers the item.
	OrderNeutral OrderMode = iota
	// OrderReceive accepts deliveries of the item up to the order ratio.
	OrderReceive
	// OrderGet actively requests the item up to the order ratio.
	OrderGet
	// OrderEmpty offers everything above the order ratio for pickup.
	OrderEmpty
)

var orderModeNames = [...]string{
	OrderNeutral: "neutral",
	OrderReceive: "receive",
	OrderGet:     "get",
	OrderEmpty:   "empty",
}

func (m OrderMode) String() string {
	if m < 0 || int(m) >= len(orderModeNames) {
		return fmt.Sprintf("OrderMode(%d)", int(m))
	}
	return orderModeNames[m]
}

// MarshalText implements encoding.TextMarshaler.
func (m OrderMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *OrderMode) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range orderModeNames {
		if n == name {
			*m = OrderMode(i)
			return nil
		}
	}
	return fmt.Errorf("storage: unknown order mode %q", text)
}

// StorageOrder is a standing instruction for one item of a storage.
type StorageOrder struct {
	Item  *Item
	Mode  OrderMode
	Ratio float64
}

// Demand returns how many of the order's item s wants delivered.
func (o StorageOrder) Demand(s *ItemStorage) int {
	if o.Mode != OrderReceive && o.Mode != OrderGet {
		return 0
	}
	return s.GetItemCapacityRemainingRatio(o.Item, o.Ratio)
}

// Surplus returns how many of the order's item s wants picked up.
func (o StorageOrder) Surplus(s *ItemStorage) int {
	if o.Mode != OrderEmpty {
		return 0
	}
	return min(s.GetItemsOverRatio(o.Item, o.Ratio), s.GetItemQuantityRemaining(o.Item))
}
