package storage

import (
	"testing"

	"pgregory.net/rapid"
)

var propertyItems = []*Item{
	{Key: "wood", UnitSize: 1},
	{Key: "plank", UnitSize: 3},
	{Key: "stone", UnitSize: 2},
}

func drawPolicy(t *rapid.T) Policy {
	capacity := rapid.IntRange(0, 40).Draw(t, "capacity")
	switch rapid.IntRange(0, 6).Draw(t, "mode") {
	case 0:
		return Free{}
	case 1:
		return ItemCapped{Capacity: capacity}
	case 2:
		return TotalItemCapped{Capacity: capacity}
	case 3:
		return UnitCapped{Capacity: capacity}
	case 4:
		return TotalUnitCapped{Capacity: capacity}
	case 5:
		return Stacked{StackCount: rapid.IntRange(1, 5).Draw(t, "stacks"), Capacity: capacity}
	default:
		return ItemSpecific{Capacities: []ItemQuantity{
			{Item: propertyItems[0], Quantity: capacity},
			{Item: propertyItems[1], Quantity: capacity / 2},
		}}
	}
}

// checkInvariants verifies the accounting rules every local storage keeps
// under non-forcing operations. Once a capped add has overfilled a stack the
// capacity rules no longer bind.
func checkInvariants(t *rapid.T, s *ItemStorage, overfilled bool) {
	for _, item := range propertyItems {
		q := s.GetItemQuantity(item)
		if q < 0 {
			t.Fatalf("%s: negative quantity %d", item.Key, q)
		}
		if rq := s.GetReservedQuantity(item); rq > q {
			t.Fatalf("%s: reserved quantity %d exceeds quantity %d", item.Key, rq, q)
		}
		if rc, capacity := s.GetReservedCapacity(item), s.GetItemCapacity(item); !overfilled && q+rc > capacity {
			t.Fatalf("%s: quantity %d + reserved %d exceeds capacity %d", item.Key, q, rc, capacity)
		}
	}
	for i, st := range s.Stacks() {
		if st.Item() == nil {
			if st.Quantity() != 0 || st.ReservedCapacity() != 0 {
				t.Fatalf("stack %d: unbound but holds %d (+%d)", i, st.Quantity(), st.ReservedCapacity())
			}
			continue
		}
		if !overfilled && st.Quantity()+st.ReservedCapacity() > st.GetItemCapacity(st.Item()) {
			t.Fatalf("stack %d overfilled: %s", i, st)
		}
	}
}

func TestPropertyInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := MustNew(drawPolicy(t))
		var quantities []*QuantityReservation
		var capacities []*CapacityReservation
		overfilled := false

		steps := rapid.IntRange(1, 60).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			item := rapid.SampledFrom(propertyItems).Draw(t, "item")
			n := rapid.IntRange(0, 30).Draw(t, "n")
			switch rapid.IntRange(0, 6).Draw(t, "op") {
			case 0:
				capped := rapid.Bool().Draw(t, "capped")
				reserved := s.GetReservedCapacity(item)
				if rejected := s.AddItems(item, n, capped); rejected < 0 || rejected > n {
					t.Fatalf("add %d returned %d", n, rejected)
				}
				if rc := s.GetReservedCapacity(item); rc != reserved {
					t.Fatalf("%s: add changed reserved capacity %d -> %d", item.Key, reserved, rc)
				}
				if q, rc := s.GetItemQuantity(item), s.GetReservedCapacity(item); !overfilled && q+rc > s.GetItemCapacity(item) {
					t.Fatalf("%s: add took reserved space: %d + %d > %d", item.Key, q, rc, s.GetItemCapacity(item))
				}
				overfilled = overfilled || (capped && s.isStacked())
			case 1:
				if left := s.RemoveItems(item, n); left < 0 || left > n {
					t.Fatalf("remove %d returned %d", n, left)
				}
			case 2:
				quantities = append(quantities, s.ReserveQuantity(item, n))
			case 3:
				capacities = append(capacities, s.ReserveCapacity(item, n))
			case 4:
				if len(quantities) > 0 {
					quantities[0].Collect()
					quantities = quantities[1:]
				}
			case 5:
				if len(capacities) > 0 {
					capacities[0].Deliver(n)
					capacities = capacities[1:]
				}
			case 6:
				if len(capacities) > 0 {
					capacities[len(capacities)-1].Release()
					capacities = capacities[:len(capacities)-1]
				}
			}
			checkInvariants(t, s, overfilled)
		}

		for _, r := range quantities {
			r.Release()
		}
		for _, r := range capacities {
			r.Release()
		}
		if rq := s.GetReservedQuantity(nil); rq != 0 {
			t.Fatalf("reserved quantity leaked: %d", rq)
		}
		if rc := s.GetReservedCapacity(nil); rc != 0 {
			t.Fatalf("reserved capacity leaked: %d", rc)
		}
	})
}

func TestPropertyAddRemoveRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := MustNew(Free{})
		item := rapid.SampledFrom(propertyItems).Draw(t, "item")
		s.AddItems(item, rapid.IntRange(0, 100).Draw(t, "initial"), false)
		s.ReserveQuantity(item, rapid.IntRange(0, 100).Draw(t, "reserved"))

		before := s.GetItemQuantity(item)
		n := rapid.IntRange(0, 100).Draw(t, "n")
		if rejected := s.AddItems(item, n, false); rejected != 0 {
			t.Fatalf("free storage rejected %d", rejected)
		}
		if left := s.RemoveItems(item, n); left != 0 {
			t.Fatalf("could not remove %d of what was just added", left)
		}
		if after := s.GetItemQuantity(item); after != before {
			t.Fatalf("quantity %d after round trip, want %d", after, before)
		}
	})
}

func TestPropertyDelegationMirrorsTarget(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := MustNew(drawPolicy(t))
		var proxy *ItemStorage
		if rapid.Bool().Draw(t, "global") {
			proxy = MustNew(Global{Storage: target})
		} else {
			proxy = MustNew(Store{Storage: target})
		}

		steps := rapid.IntRange(1, 30).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			item := rapid.SampledFrom(propertyItems).Draw(t, "item")
			n := rapid.IntRange(0, 20).Draw(t, "n")
			via := target
			if rapid.Bool().Draw(t, "via proxy") {
				via = proxy
			}
			if rapid.Bool().Draw(t, "add") {
				via.AddItems(item, n, false)
			} else {
				via.RemoveItems(item, n)
			}
			for _, it := range propertyItems {
				if p, q := proxy.GetItemQuantity(it), target.GetItemQuantity(it); p != q {
					t.Fatalf("%s: proxy reports %d, target holds %d", it.Key, p, q)
				}
			}
			checkInvariants(t, target, false)
		}
	})
}
