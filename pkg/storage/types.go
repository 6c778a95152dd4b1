// Package storage tracks how many units of which items live in a container.
// A container is configured with exactly one capacity Policy and exposes
// add, remove, move, query and reserve operations. The package is not safe
// for concurrent use; callers drive it from a single simulation goroutine.
package storage

import (
	"fmt"
	"math"
	"strings"
)

// Unlimited is reported as capacity and free space by storages without a
// ceiling.
const Unlimited = math.MaxInt

// Item describes a resource type. Items are compared by identity, so a
// process holds exactly one *Item per key (see Registry).
type Item struct {
	Key  string `json:"key" yaml:"key"`
	Name string `json:"name,omitempty" yaml:"name"`
	// UnitSize is how many items make up one storage unit. Zero means 1.
	UnitSize int `json:"unitSize,omitempty" yaml:"unit_size"`
	// Priority is an ordering hint for callers; storages never read it.
	Priority int `json:"priority,omitempty" yaml:"priority"`
}

func (i *Item) unitSize() int {
	if i == nil || i.UnitSize < 1 {
		return 1
	}
	return i.UnitSize
}

func (i *Item) String() string {
	if i == nil {
		return "<nil>"
	}
	if i.Name != "" {
		return i.Name
	}
	return i.Key
}

// ItemQuantity pairs an item with an amount.
type ItemQuantity struct {
	Item     *Item
	Quantity int
}

func (iq ItemQuantity) String() string {
	return fmt.Sprintf("%d %s", iq.Quantity, iq.Item)
}

// Mode names the capacity policy of a storage.
type Mode int

const (
	// ModeFree accepts any amount of any item.
	ModeFree Mode = iota
	// ModeItemCapped caps every item independently at the same capacity.
	ModeItemCapped
	// ModeTotalItemCapped caps the sum of all items.
	ModeTotalItemCapped
	// ModeUnitCapped caps every item independently in units.
	ModeUnitCapped
	// ModeTotalUnitCapped caps the sum of all items in units.
	ModeTotalUnitCapped
	// ModeStacked splits the storage into stacks that each hold one item.
	ModeStacked
	// ModeItemSpecific caps items by a per-item table.
	ModeItemSpecific
	// ModeGlobal forwards every operation to the global storage.
	ModeGlobal
	// ModeStore forwards every operation to a shared store.
	ModeStore
)

var modeNames = [...]string{
	ModeFree:            "free",
	ModeItemCapped:      "item_capped",
	ModeTotalItemCapped: "total_item_capped",
	ModeUnitCapped:      "unit_capped",
	ModeTotalUnitCapped: "total_unit_capped",
	ModeStacked:         "stacked",
	ModeItemSpecific:    "item_specific",
	ModeGlobal:          "global",
	ModeStore:           "store",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode resolves a mode name as produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for m, n := range modeNames {
		if n == name {
			return Mode(m), nil
		}
	}
	return 0, fmt.Errorf("storage: unknown mode %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(modeNames) {
		return nil, fmt.Errorf("storage: invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Delegating reports whether storages in this mode forward to another storage.
func (m Mode) Delegating() bool {
	return m == ModeGlobal || m == ModeStore
}
