package storage

import "fmt"

// ItemStack is one slot of a stacked storage. An unbound stack accepts any
// item and binds to it; it unbinds again once both its quantity and its
// reserved capacity are zero.
type ItemStack struct {
	// UnitCapacity is the number of units the stack holds.
	UnitCapacity int

	item             *Item
	quantity         int
	reservedCapacity int

	changed listeners[*ItemStack]
}

// NewItemStack returns an unbound stack holding unitCapacity units.
func NewItemStack(unitCapacity int) *ItemStack {
	return &ItemStack{UnitCapacity: unitCapacity}
}

// Item returns the bound item or nil.
func (s *ItemStack) Item() *Item { return s.item }

// Quantity returns the number of items on the stack.
func (s *ItemStack) Quantity() int { return s.quantity }

// ReservedCapacity returns the space promised to pending deliveries.
func (s *ItemStack) ReservedCapacity() int { return s.reservedCapacity }

// HasItems reports whether the stack holds anything.
func (s *ItemStack) HasItems() bool { return s.quantity > 0 }

// HasItem reports whether the stack holds some of item.
func (s *ItemStack) HasItem(item *Item) bool {
	return item != nil && s.item == item && s.quantity > 0
}

// FillDegree is the quantity as a fraction of the bound item's capacity.
func (s *ItemStack) FillDegree() float64 {
	if s.item == nil || s.UnitCapacity <= 0 {
		return 0
	}
	return float64(s.quantity) / float64(s.UnitCapacity*s.item.unitSize())
}

// OnChanged registers fn to run after every mutation of the stack. The
// returned function removes the registration.
func (s *ItemStack) OnChanged(fn func(*ItemStack)) func() {
	return s.changed.add(fn)
}

// GetItemCapacity returns how many of item fit on the stack, or 0 when the
// stack is bound to another item.
func (s *ItemStack) GetItemCapacity(item *Item) int {
	if item == nil || (s.item != nil && s.item != item) {
		return 0
	}
	return s.UnitCapacity * item.unitSize()
}

// GetItemCapacityRemaining returns the unreserved free space for item.
func (s *ItemStack) GetItemCapacityRemaining(item *Item) int {
	return clampZero(s.GetItemCapacity(item) - s.used(item))
}

func (s *ItemStack) used(item *Item) int {
	if s.item != item {
		return 0
	}
	return s.quantity + s.reservedCapacity
}

// free is the remaining space counted in the stack's own terms, used when no
// item is specified.
func (s *ItemStack) free() int {
	if s.item == nil {
		return s.UnitCapacity
	}
	return s.GetItemCapacityRemaining(s.item)
}

// AddQuantity adds up to quantity of item and returns what did not fit.
func (s *ItemStack) AddQuantity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	n := min(quantity, s.GetItemCapacityRemaining(item))
	if n == 0 {
		return quantity
	}
	s.item = item
	s.quantity += n
	s.changed.emit(s)
	return quantity - n
}

// overflow puts quantity on a stack already bound to item ignoring the unit
// capacity.
func (s *ItemStack) overflow(quantity int) {
	if quantity <= 0 || s.item == nil {
		return
	}
	s.quantity += quantity
	s.changed.emit(s)
}

// RemoveQuantity removes up to quantity of item and returns what could not be
// removed.
func (s *ItemStack) RemoveQuantity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	if s.item != item {
		return quantity
	}
	n := min(quantity, s.quantity)
	if n == 0 {
		return quantity
	}
	s.quantity -= n
	s.unbindIfEmpty()
	s.changed.emit(s)
	return quantity - n
}

// SetQuantity overwrites the quantity of the bound item. It does nothing on
// an unbound stack.
func (s *ItemStack) SetQuantity(quantity int) {
	if s.item == nil {
		return
	}
	s.quantity = clampZero(quantity)
	s.unbindIfEmpty()
	s.changed.emit(s)
}

// ReserveCapacity reserves up to quantity of free space for item and returns
// the part that could not be reserved. Reserving binds an unbound stack.
func (s *ItemStack) ReserveCapacity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	n := min(quantity, s.GetItemCapacityRemaining(item))
	if n == 0 {
		return quantity
	}
	s.item = item
	s.reservedCapacity += n
	s.changed.emit(s)
	return quantity - n
}

// UnreserveCapacity releases up to quantity of reserved space and returns the
// part that was not reserved in the first place.
func (s *ItemStack) UnreserveCapacity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	if s.item != item {
		return quantity
	}
	n := min(quantity, s.reservedCapacity)
	if n == 0 {
		return quantity
	}
	s.reservedCapacity -= n
	s.unbindIfEmpty()
	s.changed.emit(s)
	return quantity - n
}

func (s *ItemStack) clear() {
	if s.item == nil && s.quantity == 0 && s.reservedCapacity == 0 {
		return
	}
	s.item = nil
	s.quantity = 0
	s.reservedCapacity = 0
	s.changed.emit(s)
}

func (s *ItemStack) clearReservation() {
	if s.reservedCapacity == 0 {
		return
	}
	s.reservedCapacity = 0
	s.unbindIfEmpty()
	s.changed.emit(s)
}

func (s *ItemStack) unbindIfEmpty() {
	if s.quantity == 0 && s.reservedCapacity == 0 {
		s.item = nil
	}
}

func (s *ItemStack) String() string {
	if s.item == nil {
		return fmt.Sprintf("empty/%d", s.UnitCapacity)
	}
	if s.reservedCapacity > 0 {
		return fmt.Sprintf("%s %d(+%d)/%d", s.item, s.quantity, s.reservedCapacity, s.GetItemCapacity(s.item))
	}
	return fmt.Sprintf("%s %d/%d", s.item, s.quantity, s.GetItemCapacity(s.item))
}
