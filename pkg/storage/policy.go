package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPolicy is returned by New for a policy that cannot be built.
	ErrInvalidPolicy = errors.New("storage: invalid policy")
	// ErrNoTarget is returned when a delegating policy has no target storage.
	ErrNoTarget = errors.New("storage: delegating policy without target")
)

// Policy is the capacity policy a storage is built with. It is implemented
// only by the policy types of this package.
type Policy interface {
	Mode() Mode
	validate() error
}

// Free places no limit on any item.
type Free struct{}

// ItemCapped limits every item to Capacity independently.
type ItemCapped struct {
	Capacity int
}

// TotalItemCapped limits the sum of all items to Capacity.
type TotalItemCapped struct {
	Capacity int
}

// UnitCapped limits every item to Capacity units, i.e. Capacity*UnitSize items.
type UnitCapped struct {
	Capacity int
}

// TotalUnitCapped limits the units used by all items together to Capacity.
type TotalUnitCapped struct {
	Capacity int
}

// Stacked creates StackCount stacks holding Capacity units of one item each.
type Stacked struct {
	StackCount int
	Capacity   int
}

// ItemSpecific limits each item to the quantity listed for it. Items that are
// not listed cannot be stored.
type ItemSpecific struct {
	Capacities []ItemQuantity
}

// Global forwards every operation to Storage, the process wide pool.
type Global struct {
	Storage *ItemStorage
}

// Store forwards every operation to Storage, a pool shared by a group of
// storages.
type Store struct {
	Storage *ItemStorage
}

func (Free) Mode() Mode            { return ModeFree }
func (ItemCapped) Mode() Mode      { return ModeItemCapped }
func (TotalItemCapped) Mode() Mode { return ModeTotalItemCapped }
func (UnitCapped) Mode() Mode      { return ModeUnitCapped }
func (TotalUnitCapped) Mode() Mode { return ModeTotalUnitCapped }
func (Stacked) Mode() Mode         { return ModeStacked }
func (ItemSpecific) Mode() Mode    { return ModeItemSpecific }
func (Global) Mode() Mode          { return ModeGlobal }
func (Store) Mode() Mode           { return ModeStore }

func (Free) validate() error { return nil }

func (p ItemCapped) validate() error      { return nonNegative(p.Mode(), p.Capacity) }
func (p TotalItemCapped) validate() error { return nonNegative(p.Mode(), p.Capacity) }
func (p UnitCapped) validate() error      { return nonNegative(p.Mode(), p.Capacity) }
func (p TotalUnitCapped) validate() error { return nonNegative(p.Mode(), p.Capacity) }

func (p Stacked) validate() error {
	if p.StackCount <= 0 {
		return fmt.Errorf("%w: stacked storage needs a positive stack count, got %d", ErrInvalidPolicy, p.StackCount)
	}
	return nonNegative(p.Mode(), p.Capacity)
}

func (p ItemSpecific) validate() error {
	for _, c := range p.Capacities {
		if c.Item == nil {
			return fmt.Errorf("%w: item specific capacity without item", ErrInvalidPolicy)
		}
		if c.Quantity < 0 {
			return fmt.Errorf("%w: negative capacity %d for %s", ErrInvalidPolicy, c.Quantity, c.Item.Key)
		}
	}
	return nil
}

func (p Global) validate() error {
	if p.Storage == nil {
		return fmt.Errorf("%w (global)", ErrNoTarget)
	}
	if p.Storage.Mode() == ModeGlobal {
		return fmt.Errorf("%w: the global storage cannot itself be global", ErrInvalidPolicy)
	}
	return nil
}

func (p Store) validate() error {
	if p.Storage == nil {
		return fmt.Errorf("%w (store)", ErrNoTarget)
	}
	return nil
}

func nonNegative(m Mode, capacity int) error {
	if capacity < 0 {
		return fmt.Errorf("%w: %s capacity must not be negative, got %d", ErrInvalidPolicy, m, capacity)
	}
	return nil
}

// scale applies a fill ratio to a capacity, flooring the result.
func scale(capacity int, ratio float64) int {
	if ratio <= 0 {
		return 0
	}
	if capacity == Unlimited {
		return Unlimited
	}
	if ratio == 1 {
		return capacity
	}
	v := float64(capacity) * ratio
	if v >= float64(Unlimited) {
		return Unlimited
	}
	return int(v)
}

// units returns how many storage units quantity items occupy.
func units(item *Item, quantity int) int {
	us := item.unitSize()
	return (quantity + us - 1) / us
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
