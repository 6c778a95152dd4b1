package depot

import (
	"context"

	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// OrderStatus reports a storage order and what it currently asks for.
type OrderStatus struct {
	Item    string            `json:"item"`
	Mode    storage.OrderMode `json:"mode"`
	Ratio   float64           `json:"ratio"`
	Demand  int               `json:"demand,omitempty"`
	Surplus int               `json:"surplus,omitempty"`
}

// Demand reports the orders of a storage.
func (w *World) Demand(id string) ([]OrderStatus, error) {
	e, err := w.entry(id)
	if err != nil {
		return nil, err
	}
	return orderStatus(e), nil
}

func orderStatus(e *entry) []OrderStatus {
	result := make([]OrderStatus, 0, len(e.orders))
	for _, o := range e.orders {
		result = append(result, OrderStatus{
			Item:    o.Item.Key,
			Mode:    o.Mode,
			Ratio:   o.Ratio,
			Demand:  o.Demand(e.storage),
			Surplus: o.Surplus(e.storage),
		})
	}
	return result
}

// dispatchOrders starts deliveries that serve storage orders. Demands are
// served from surpluses first; get orders fall back to the global storage
// and surpluses nobody asked for go to the global storage. Deliveries in
// flight hold reservations, so the same demand is never served twice.
func (w *World) dispatchOrders(ctx context.Context) {
	considered := 0
	for _, id := range w.ids {
		e := w.entries[id]
		for _, o := range e.orders {
			demand := o.Demand(e.storage)
			if demand <= 0 {
				continue
			}
			for _, src := range w.surplusSources(o.Item, e) {
				demand -= w.dispatch(ctx, src.entry, e, o.Item, min(demand, src.surplus))
				if demand <= 0 {
					break
				}
			}
			if demand > 0 && o.Mode == storage.OrderGet {
				demand -= w.dispatch(ctx, w.global, e, o.Item, min(demand, w.global.storage.GetItemQuantityRemaining(o.Item)))
			}
			considered++
		}
	}
	for _, id := range w.ids {
		e := w.entries[id]
		for _, o := range e.orders {
			if surplus := o.Surplus(e.storage); surplus > 0 {
				w.dispatch(ctx, e, w.global, o.Item, surplus)
			}
		}
	}
	if considered > 0 {
		w.log.Debugf("tick %d: %d order demands considered", w.tick, considered)
	}
}

type source struct {
	*entry
	surplus int
}

func (w *World) surplusSources(item *storage.Item, dst *entry) []source {
	var result []source
	for _, id := range w.ids {
		e := w.entries[id]
		if e == dst || resolved(e.storage) == resolved(dst.storage) {
			continue
		}
		for _, o := range e.orders {
			if o.Item != item {
				continue
			}
			if n := o.Surplus(e.storage); n > 0 {
				result = append(result, source{entry: e, surplus: n})
			}
		}
	}
	return result
}

// dispatch starts an order delivery and returns the quantity reserved.
func (w *World) dispatch(ctx context.Context, src, dst *entry, item *storage.Item, quantity int) int {
	if quantity <= 0 || resolved(src.storage) == resolved(dst.storage) {
		return 0
	}
	d, err := w.StartDelivery(ctx, OrdersActor, src.id, dst.id, item.Key, quantity)
	if err != nil {
		w.log.Debugf("order delivery %s -> %s: %s", src.id, dst.id, err)
		return 0
	}
	return d.Quantity
}
