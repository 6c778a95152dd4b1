package depot

import (
	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// ItemStatus is the accounting of one item in a storage.
type ItemStatus struct {
	Key              string `json:"key"`
	Quantity         int    `json:"quantity"`
	Reserved         int    `json:"reserved,omitempty"`
	ReservedCapacity int    `json:"reservedCapacity,omitempty"`
	Capacity         int    `json:"capacity"`
	Remaining        int    `json:"remaining"`
}

// StorageStatus is a snapshot of a storage for clients.
type StorageStatus struct {
	ID     string        `json:"id"`
	Kind   string        `json:"kind"`
	Owner  string        `json:"owner,omitempty"`
	Mode   storage.Mode  `json:"mode"`
	Target string        `json:"target,omitempty"`
	Items  []ItemStatus  `json:"items"`
	Stacks []string      `json:"stacks,omitempty"`
	Orders []OrderStatus `json:"orders,omitempty"`
	Jobs   int           `json:"jobs,omitempty"`
}

// Status reports the contents of one storage. Items appear when the
// storage holds or reserves them, or has an order for them.
func (w *World) Status(id string) (StorageStatus, error) {
	e, err := w.entry(id)
	if err != nil {
		return StorageStatus{}, err
	}
	return w.status(e), nil
}

// StatusAll reports every storage in configuration order.
func (w *World) StatusAll() []StorageStatus {
	result := make([]StorageStatus, 0, len(w.ids))
	for _, id := range w.ids {
		result = append(result, w.status(w.entries[id]))
	}
	return result
}

func (w *World) status(e *entry) StorageStatus {
	s := e.storage
	st := StorageStatus{
		ID:     e.id,
		Kind:   e.kind,
		Owner:  e.owner,
		Mode:   s.Mode(),
		Items:  []ItemStatus{},
		Orders: orderStatus(e),
		Jobs:   len(w.production.GetStorageJobs(e.id)),
	}
	if t := s.Target(); t != nil {
		st.Target = w.names[t]
	}

	ordered := make(map[*storage.Item]bool, len(e.orders))
	for _, o := range e.orders {
		ordered[o.Item] = true
	}
	for _, item := range w.registry.Items() {
		is := ItemStatus{
			Key:              item.Key,
			Quantity:         s.GetItemQuantity(item),
			Reserved:         s.GetReservedQuantity(item),
			ReservedCapacity: s.GetReservedCapacity(item),
			Capacity:         s.GetItemCapacity(item),
			Remaining:        s.GetItemCapacityRemaining(item),
		}
		if is.Quantity == 0 && is.Reserved == 0 && is.ReservedCapacity == 0 && !ordered[item] {
			continue
		}
		st.Items = append(st.Items, is)
	}
	for _, stack := range s.Stacks() {
		st.Stacks = append(st.Stacks, stack.String())
	}
	return st
}

// Watch calls fn with the storage's status whenever its contents change,
// and returns a function that stops watching. fn runs on the simulation
// goroutine and must not block.
func (w *World) Watch(id string, fn func(StorageStatus)) (func(), error) {
	e, err := w.entry(id)
	if err != nil {
		return nil, err
	}
	return e.storage.OnChanged(func(*storage.ItemStorage) { fn(w.status(e)) }), nil
}

// DebugText returns the engine's diagnostic dump of a storage.
func (w *World) DebugText(id string) (string, error) {
	e, err := w.entry(id)
	if err != nil {
		return "", err
	}
	return e.storage.DebugText(), nil
}
