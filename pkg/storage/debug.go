package storage

import (
	"fmt"
	"strings"
)

// DebugText describes the storage's contents for on-screen diagnostics.
func (s *ItemStorage) DebugText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", s.Mode())
	if s.target != nil {
		fmt.Fprintf(&b, " -> %s\n", s.target.Mode())
		b.WriteString(s.target.DebugText())
		return b.String()
	}
	if capacity := s.GetItemCapacity(nil); capacity != Unlimited {
		fmt.Fprintf(&b, " %d/%d", s.GetItemQuantity(nil), capacity)
	}
	b.WriteByte('\n')
	if s.isStacked() {
		for i, st := range s.stacks {
			fmt.Fprintf(&b, "#%d %s\n", i, st)
		}
		for _, item := range s.order {
			if rq := s.reservedQuantities[item]; rq > 0 {
				fmt.Fprintf(&b, "%s reserved %d\n", item, rq)
			}
		}
		return b.String()
	}
	for _, item := range s.order {
		q, rq, rc := s.quantities[item], s.reservedQuantities[item], s.reservedCapacities[item]
		if q == 0 && rq == 0 && rc == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s %d", item, q)
		if capacity := s.GetItemCapacity(item); capacity != Unlimited {
			fmt.Fprintf(&b, "/%d", capacity)
		}
		if rq > 0 {
			fmt.Fprintf(&b, " -%d", rq)
		}
		if rc > 0 {
			fmt.Fprintf(&b, " +%d", rc)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
