package storage

import "fmt"

// ItemStorage is a container of items governed by one Policy.
//
// Pooled modes (Free, ItemCapped, TotalItemCapped, UnitCapped,
// TotalUnitCapped, ItemSpecific) keep one quantity per item. Stacked storages
// keep their items in ItemStacks. Global and Store storages keep nothing and
// forward every call to their target.
type ItemStorage struct {
	policy Policy
	target *ItemStorage

	quantities         map[*Item]int
	reservedQuantities map[*Item]int
	reservedCapacities map[*Item]int
	// order lists items in the order they were first stored so that
	// listings and snapshots are deterministic.
	order []*Item

	specific map[*Item]int
	stacks   []*ItemStack

	changed listeners[*ItemStorage]
}

// New builds a storage for the given policy.
func New(p Policy) (*ItemStorage, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	s := &ItemStorage{policy: p}
	switch p := p.(type) {
	case Global:
		s.target = p.Storage
		return s, nil
	case Store:
		s.target = p.Storage
		return s, nil
	case Stacked:
		s.stacks = make([]*ItemStack, p.StackCount)
		for i := range s.stacks {
			s.stacks[i] = NewItemStack(p.Capacity)
		}
	case ItemSpecific:
		s.specific = make(map[*Item]int, len(p.Capacities))
		for _, c := range p.Capacities {
			s.specific[c.Item] += c.Quantity
		}
	}
	s.quantities = make(map[*Item]int)
	s.reservedQuantities = make(map[*Item]int)
	s.reservedCapacities = make(map[*Item]int)
	return s, nil
}

// MustNew is like New but panics on an invalid policy.
func MustNew(p Policy) *ItemStorage {
	s, err := New(p)
	if err != nil {
		panic(err)
	}
	return s
}

// Policy returns the policy the storage was built with.
func (s *ItemStorage) Policy() Policy { return s.policy }

// Mode returns the mode of the storage's policy.
func (s *ItemStorage) Mode() Mode { return s.policy.Mode() }

// Target returns the storage a Global or Store storage forwards to.
func (s *ItemStorage) Target() *ItemStorage { return s.target }

// Stacks returns the stacks of a Stacked storage in order.
func (s *ItemStorage) Stacks() []*ItemStack {
	if s.target != nil {
		return s.target.Stacks()
	}
	return append([]*ItemStack(nil), s.stacks...)
}

// resolve follows delegation to the storage that actually holds the items.
func (s *ItemStorage) resolve() *ItemStorage {
	for s.target != nil {
		s = s.target
	}
	return s
}

func (s *ItemStorage) isStacked() bool {
	_, ok := s.policy.(Stacked)
	return ok
}

// OnChanged registers fn to run after every mutation of the storage that
// holds the items. The returned function removes the registration.
func (s *ItemStorage) OnChanged(fn func(*ItemStorage)) func() {
	return s.resolve().changed.add(fn)
}

func (s *ItemStorage) notify() { s.changed.emit(s) }

func (s *ItemStorage) touch(item *Item) {
	if _, ok := s.quantities[item]; !ok {
		s.quantities[item] = 0
		s.order = append(s.order, item)
	}
}

// GetItemQuantity returns the quantity of item, or of all items when item is
// nil.
func (s *ItemStorage) GetItemQuantity(item *Item) int {
	if s.target != nil {
		return s.target.GetItemQuantity(item)
	}
	if s.isStacked() {
		total := 0
		for _, st := range s.stacks {
			if item == nil || st.item == item {
				total += st.quantity
			}
		}
		return total
	}
	if item != nil {
		return s.quantities[item]
	}
	total := 0
	for _, q := range s.quantities {
		total += q
	}
	return total
}

// GetItemQuantities lists every stored item with a positive quantity in the
// order items were first stored.
func (s *ItemStorage) GetItemQuantities() []ItemQuantity {
	if s.target != nil {
		return s.target.GetItemQuantities()
	}
	var out []ItemQuantity
	if s.isStacked() {
		index := make(map[*Item]int)
		for _, st := range s.stacks {
			if st.item == nil || st.quantity == 0 {
				continue
			}
			if i, ok := index[st.item]; ok {
				out[i].Quantity += st.quantity
				continue
			}
			index[st.item] = len(out)
			out = append(out, ItemQuantity{Item: st.item, Quantity: st.quantity})
		}
		return out
	}
	for _, item := range s.order {
		if q := s.quantities[item]; q > 0 {
			out = append(out, ItemQuantity{Item: item, Quantity: q})
		}
	}
	return out
}

// GetReservedQuantity returns the stock of item promised to pending pickups,
// or the total over all items when item is nil.
func (s *ItemStorage) GetReservedQuantity(item *Item) int {
	if s.target != nil {
		return s.target.GetReservedQuantity(item)
	}
	if item != nil {
		return s.reservedQuantities[item]
	}
	total := 0
	for _, q := range s.reservedQuantities {
		total += q
	}
	return total
}

// GetReservedCapacity returns the space promised to pending deliveries of
// item, or the total over all items when item is nil.
func (s *ItemStorage) GetReservedCapacity(item *Item) int {
	if s.target != nil {
		return s.target.GetReservedCapacity(item)
	}
	if s.isStacked() {
		total := 0
		for _, st := range s.stacks {
			if item == nil || st.item == item {
				total += st.reservedCapacity
			}
		}
		return total
	}
	if item != nil {
		return s.reservedCapacities[item]
	}
	total := 0
	for _, q := range s.reservedCapacities {
		total += q
	}
	return total
}

// GetItemQuantityRemaining returns the stock of item that is not reserved.
func (s *ItemStorage) GetItemQuantityRemaining(item *Item) int {
	return clampZero(s.GetItemQuantity(item) - s.GetReservedQuantity(item))
}

// GetItemCapacity returns how many of item the storage can hold in total.
// Without an item it returns the capacity in the policy's own terms.
func (s *ItemStorage) GetItemCapacity(item *Item) int {
	switch p := s.policy.(type) {
	case Free:
		return Unlimited
	case ItemCapped:
		return p.Capacity
	case TotalItemCapped:
		return p.Capacity
	case UnitCapped:
		return p.Capacity * item.unitSize()
	case TotalUnitCapped:
		return p.Capacity * item.unitSize()
	case Stacked:
		return p.StackCount * p.Capacity * item.unitSize()
	case ItemSpecific:
		if item != nil {
			return s.specific[item]
		}
		total := 0
		for _, c := range s.specific {
			total += c
		}
		return total
	default:
		return s.target.GetItemCapacity(item)
	}
}

// GetItemCapacityRemaining returns the free space for item that is not
// reserved for pending deliveries.
func (s *ItemStorage) GetItemCapacityRemaining(item *Item) int {
	return s.GetItemCapacityRemainingRatio(item, 1)
}

// GetItemCapacityRemainingRatio is GetItemCapacityRemaining with the capacity
// scaled by ratio, so that 0.5 reports the space left until half full.
func (s *ItemStorage) GetItemCapacityRemainingRatio(item *Item, ratio float64) int {
	if s.target != nil {
		return s.target.GetItemCapacityRemainingRatio(item, ratio)
	}
	return s.remaining(item, ratio)
}

// GetItemsOverRatio returns how many of item exceed the capacity scaled by
// ratio.
func (s *ItemStorage) GetItemsOverRatio(item *Item, ratio float64) int {
	if s.target != nil {
		return s.target.GetItemsOverRatio(item, ratio)
	}
	limit := scale(s.GetItemCapacity(item), ratio)
	if limit == Unlimited {
		return 0
	}
	return clampZero(s.GetItemQuantity(item) - limit)
}

// remaining computes the free space of a local storage that is not reserved
// for pending deliveries. Without an item, ItemCapped and UnitCapped report
// the space left for the fullest item.
func (s *ItemStorage) remaining(item *Item, ratio float64) int {
	rc := s.GetReservedCapacity
	switch p := s.policy.(type) {
	case Free:
		if scale(Unlimited, ratio) == Unlimited {
			return Unlimited
		}
		return 0
	case ItemCapped:
		if item == nil {
			fullest := 0
			for i, q := range s.quantities {
				fullest = max(fullest, q+rc(i))
			}
			for i, q := range s.reservedCapacities {
				fullest = max(fullest, q+s.quantities[i])
			}
			return clampZero(scale(p.Capacity, ratio) - fullest)
		}
		return clampZero(scale(p.Capacity, ratio) - s.quantities[item] - rc(item))
	case UnitCapped:
		if item == nil {
			fullest := 0
			for i, q := range s.quantities {
				fullest = max(fullest, units(i, q+rc(i)))
			}
			for i, q := range s.reservedCapacities {
				fullest = max(fullest, units(i, q+s.quantities[i]))
			}
			return clampZero(scale(p.Capacity, ratio) - fullest)
		}
		return clampZero(scale(p.Capacity*item.unitSize(), ratio) - s.quantities[item] - rc(item))
	case TotalItemCapped:
		return clampZero(scale(p.Capacity, ratio) - s.GetItemQuantity(nil) - rc(nil))
	case TotalUnitCapped:
		used := 0
		for i, q := range s.quantities {
			used += units(i, q+rc(i))
		}
		return clampZero(scale(p.Capacity, ratio)-used) * item.unitSize()
	case ItemSpecific:
		if item != nil {
			return clampZero(scale(s.specific[item], ratio) - s.quantities[item] - rc(item))
		}
		total := 0
		for i, c := range s.specific {
			total += clampZero(scale(c, ratio) - s.quantities[i] - rc(i))
		}
		return total
	case Stacked:
		free := 0
		for _, st := range s.stacks {
			switch {
			case item == nil:
				free += st.free()
			case st.item == nil:
				free += st.UnitCapacity * item.unitSize()
			case st.item == item:
				free += clampZero(st.UnitCapacity*item.unitSize() - st.quantity - st.reservedCapacity)
			}
		}
		free = clampZero(free)
		limit := clampZero(scale(s.GetItemCapacity(item), ratio) - s.GetItemQuantity(item) - rc(item))
		return min(free, limit)
	}
	return 0
}

// AddItems adds up to quantity of item and returns the quantity that was not
// added. Space reserved for pending deliveries is kept free. With capped set
// a Stacked storage may overfill the last stack holding item, but never
// beyond the item's total capacity less its reserved space.
func (s *ItemStorage) AddItems(item *Item, quantity int, capped bool) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	if s.target != nil {
		return s.target.AddItems(item, quantity, capped)
	}
	if s.isStacked() {
		return s.addStacked(item, quantity, capped)
	}
	n := min(quantity, s.remaining(item, 1))
	if n == 0 {
		return quantity
	}
	s.touch(item)
	s.quantities[item] += n
	s.notify()
	return quantity - n
}

func (s *ItemStorage) addStacked(item *Item, quantity int, capped bool) int {
	left := quantity
	s.eachStackFor(item, func(st *ItemStack) bool {
		left = st.AddQuantity(item, left)
		return left > 0
	})
	if capped && left > 0 {
		room := s.GetItemCapacity(item) - s.GetItemQuantity(item) - s.GetReservedCapacity(item)
		if n := min(left, room); n > 0 {
			if last := s.lastStackOf(item); last != nil {
				last.overflow(n)
				left -= n
			}
		}
	}
	if left != quantity {
		s.notify()
	}
	return left
}

// eachStackFor visits the stacks already bound to item and then the unbound
// stacks, left to right, until fn returns false.
func (s *ItemStorage) eachStackFor(item *Item, fn func(*ItemStack) bool) {
	for _, st := range s.stacks {
		if st.item == item && !fn(st) {
			return
		}
	}
	for _, st := range s.stacks {
		if st.item == nil && !fn(st) {
			return
		}
	}
}

func (s *ItemStorage) lastStackOf(item *Item) *ItemStack {
	for i := len(s.stacks) - 1; i >= 0; i-- {
		if s.stacks[i].item == item {
			return s.stacks[i]
		}
	}
	return nil
}

// RemoveItems removes up to quantity of item, leaving reserved stock in
// place, and returns the quantity that was not removed.
func (s *ItemStorage) RemoveItems(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	if s.target != nil {
		return s.target.RemoveItems(item, quantity)
	}
	n := min(quantity, s.GetItemQuantityRemaining(item))
	if n == 0 {
		return quantity
	}
	if s.isStacked() {
		left := n
		for _, st := range s.stacks {
			if st.item != item {
				continue
			}
			if left = st.RemoveQuantity(item, left); left == 0 {
				break
			}
		}
		n -= left
	} else {
		s.quantities[item] -= n
	}
	s.notify()
	return quantity - n
}

// MoveItemsTo moves up to quantity of item into target and returns the
// quantity moved. A nil item moves the first item that has unreserved stock;
// a negative quantity moves as much as target accepts.
func (s *ItemStorage) MoveItemsTo(target *ItemStorage, item *Item, quantity int) int {
	if target == nil || quantity == 0 || s.resolve() == target.resolve() {
		return 0
	}
	if item == nil {
		if item = s.firstAvailable(); item == nil {
			return 0
		}
	}
	if quantity < 0 {
		quantity = Unlimited
	}
	n := min(quantity, s.GetItemQuantityRemaining(item), target.GetItemCapacityRemaining(item))
	if n <= 0 {
		return 0
	}
	moved := n - s.RemoveItems(item, n)
	if rejected := target.AddItems(item, moved, false); rejected > 0 {
		s.AddItems(item, rejected, true)
		moved -= rejected
	}
	return moved
}

func (s *ItemStorage) firstAvailable() *Item {
	for _, iq := range s.GetItemQuantities() {
		if s.GetItemQuantityRemaining(iq.Item) > 0 {
			return iq.Item
		}
	}
	return nil
}

// HasItems reports whether the storage holds anything.
func (s *ItemStorage) HasItems() bool { return s.GetItemQuantity(nil) > 0 }

// HasItem reports whether the storage holds some of item.
func (s *ItemStorage) HasItem(item *Item) bool {
	return item != nil && s.GetItemQuantity(item) > 0
}

// HasItemsRemaining reports whether at least quantity of item is in stock
// and not reserved.
func (s *ItemStorage) HasItemsRemaining(item *Item, quantity int) bool {
	if quantity <= 0 {
		quantity = 1
	}
	return s.GetItemQuantityRemaining(item) >= quantity
}

// Clear drops every item and reservation.
func (s *ItemStorage) Clear() {
	if s.target != nil {
		s.target.Clear()
		return
	}
	s.reset()
	s.notify()
}

func (s *ItemStorage) reset() {
	for _, st := range s.stacks {
		st.clear()
	}
	clear(s.quantities)
	clear(s.reservedQuantities)
	clear(s.reservedCapacities)
	s.order = s.order[:0]
}

// ClearReservations drops every reservation and keeps the stock.
func (s *ItemStorage) ClearReservations() {
	if s.target != nil {
		s.target.ClearReservations()
		return
	}
	for _, st := range s.stacks {
		st.clearReservation()
	}
	clear(s.reservedQuantities)
	clear(s.reservedCapacities)
	s.notify()
}
