package storage

import (
	"fmt"

	"github.com/google/uuid"
)

// ReserveQuantity reserves up to quantity of item's unreserved stock so that
// nobody else can remove it, and returns a guard holding the reservation.
// The amount is clamped to the available stock; Amount reports what was
// actually reserved. Callers must Release or Collect the guard.
func (s *ItemStorage) ReserveQuantity(item *Item, quantity int) *QuantityReservation {
	mustNotBeNegative("quantity", quantity)
	owner := s.resolve()
	r := &QuantityReservation{reservation: reservation{id: uuid.New(), storage: owner, item: item}}
	r.amount = owner.reserveQuantity(item, quantity)
	return r
}

// UnreserveQuantity releases up to quantity of item's reserved stock and
// returns the part that was not reserved.
func (s *ItemStorage) UnreserveQuantity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	if s.target != nil {
		return s.target.UnreserveQuantity(item, quantity)
	}
	n := min(quantity, s.reservedQuantities[item])
	if n == 0 {
		return quantity
	}
	s.reservedQuantities[item] -= n
	s.notify()
	return quantity - n
}

func (s *ItemStorage) reserveQuantity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return 0
	}
	n := min(quantity, s.GetItemQuantityRemaining(item))
	if n == 0 {
		return 0
	}
	s.touch(item)
	s.reservedQuantities[item] += n
	s.notify()
	return n
}

// ReserveCapacity reserves up to quantity of free space for item so that
// other additions cannot fill it, and returns a guard holding the
// reservation. The amount is clamped to the free space; Amount reports what
// was actually reserved. Callers must Release or Deliver the guard.
func (s *ItemStorage) ReserveCapacity(item *Item, quantity int) *CapacityReservation {
	mustNotBeNegative("capacity", quantity)
	owner := s.resolve()
	r := &CapacityReservation{reservation: reservation{id: uuid.New(), storage: owner, item: item}}
	r.amount = owner.reserveCapacity(item, quantity)
	return r
}

// UnreserveCapacity releases up to quantity of space reserved for item and
// returns the part that was not reserved.
func (s *ItemStorage) UnreserveCapacity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return clampZero(quantity)
	}
	if s.target != nil {
		return s.target.UnreserveCapacity(item, quantity)
	}
	var n int
	if s.isStacked() {
		left := quantity
		for _, st := range s.stacks {
			if st.item != item {
				continue
			}
			if left = st.UnreserveCapacity(item, left); left == 0 {
				break
			}
		}
		n = quantity - left
	} else {
		n = min(quantity, s.reservedCapacities[item])
		s.reservedCapacities[item] -= n
	}
	if n == 0 {
		return quantity
	}
	s.notify()
	return quantity - n
}

func (s *ItemStorage) reserveCapacity(item *Item, quantity int) int {
	if item == nil || quantity <= 0 {
		return 0
	}
	n := min(quantity, s.GetItemCapacityRemaining(item))
	if n == 0 {
		return 0
	}
	if s.isStacked() {
		left := n
		s.eachStackFor(item, func(st *ItemStack) bool {
			left = st.ReserveCapacity(item, left)
			return left > 0
		})
		n -= left
	} else {
		s.touch(item)
		s.reservedCapacities[item] += n
	}
	s.notify()
	return n
}

func mustNotBeNegative(what string, quantity int) {
	if quantity < 0 {
		panic(fmt.Sprintf("storage: negative %s reservation %d", what, quantity))
	}
}

type reservation struct {
	id      uuid.UUID
	storage *ItemStorage
	item    *Item
	amount  int
}

// ID identifies the reservation, e.g. in logs.
func (r *reservation) ID() uuid.UUID { return r.id }

// Item returns the reserved item.
func (r *reservation) Item() *Item { return r.item }

// Amount returns the quantity still held by the reservation.
func (r *reservation) Amount() int { return r.amount }

// Storage returns the storage holding the reservation. For delegating
// storages this is the storage they forward to.
func (r *reservation) Storage() *ItemStorage { return r.storage }

// Active reports whether the reservation still holds anything.
func (r *reservation) Active() bool { return r.amount > 0 }

// QuantityReservation holds stock reserved with ReserveQuantity.
type QuantityReservation struct {
	reservation
}

// Release gives the reserved stock back. Calling it again has no effect.
func (r *QuantityReservation) Release() {
	if r == nil || r.amount == 0 {
		return
	}
	r.storage.UnreserveQuantity(r.item, r.amount)
	r.amount = 0
}

// Collect removes the reserved stock from the storage and ends the
// reservation. It returns how many items were taken, which is less than
// Amount when the stock was removed by other means in the meantime.
func (r *QuantityReservation) Collect() int {
	if r == nil || r.amount == 0 {
		return 0
	}
	amount := r.amount
	r.Release()
	return amount - r.storage.RemoveItems(r.item, amount)
}

// CapacityReservation holds space reserved with ReserveCapacity.
type CapacityReservation struct {
	reservation
}

// Release gives the reserved space back. Calling it again has no effect.
func (r *CapacityReservation) Release() {
	if r == nil || r.amount == 0 {
		return
	}
	r.storage.UnreserveCapacity(r.item, r.amount)
	r.amount = 0
}

// Deliver adds quantity of the reserved item into the reserved space and
// ends the reservation. It returns the quantity that could not be added.
func (r *CapacityReservation) Deliver(quantity int) int {
	if r == nil {
		return clampZero(quantity)
	}
	r.Release()
	return r.storage.AddItems(r.item, quantity, false)
}
