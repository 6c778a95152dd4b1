package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrModeMismatch is returned when loading a snapshot taken under another
// mode.
var ErrModeMismatch = errors.New("storage: snapshot mode mismatch")

// Snapshot is the persisted form of a storage. Pooled storages fill Items,
// Stacked storages fill Stacks, delegating storages persist nothing.
// Reservations of pooled storages are not persisted.
type Snapshot struct {
	Mode   Mode             `json:"mode" jsonschema:"type=string,enum=free,enum=item_capped,enum=total_item_capped,enum=unit_capped,enum=total_unit_capped,enum=stacked,enum=item_specific,enum=global,enum=store"`
	Items  []QuantityRecord `json:"items,omitempty" jsonschema:"description=Quantities of pooled storages in insertion order"`
	Stacks []StackRecord    `json:"stacks,omitempty" jsonschema:"description=Stacks of stacked storages in order"`
}

// QuantityRecord is one item quantity in a snapshot.
type QuantityRecord struct {
	Key      string `json:"key" jsonschema:"required"`
	Quantity int    `json:"quantity" jsonschema:"minimum=0"`
}

// StackRecord is one stack in a snapshot. An empty key marks an unbound
// stack.
type StackRecord struct {
	Key              string `json:"key,omitempty"`
	Quantity         int    `json:"quantity,omitempty" jsonschema:"minimum=0"`
	ReservedCapacity int    `json:"reservedCapacity,omitempty" jsonschema:"minimum=0"`
}

// UnknownItemsError lists snapshot keys that did not resolve to an item.
// Suggestions maps a key to the closest registered key, when one exists.
type UnknownItemsError struct {
	Keys        []string
	Suggestions map[string]string
}

func (e *UnknownItemsError) Error() string {
	parts := make([]string, 0, len(e.Keys))
	for _, k := range e.Keys {
		if s, ok := e.Suggestions[k]; ok {
			parts = append(parts, fmt.Sprintf("%s (did you mean %s?)", k, s))
			continue
		}
		parts = append(parts, k)
	}
	return "storage: unknown item keys: " + strings.Join(parts, ", ")
}

// IsUnknownItems reports whether err carries an UnknownItemsError.
func IsUnknownItems(err error) bool {
	var e *UnknownItemsError
	return errors.As(err, &e)
}

// SaveData captures the storage's contents.
func (s *ItemStorage) SaveData() Snapshot {
	snap := Snapshot{Mode: s.Mode()}
	switch {
	case s.target != nil:
	case s.isStacked():
		snap.Stacks = make([]StackRecord, len(s.stacks))
		for i, st := range s.stacks {
			if st.item == nil {
				continue
			}
			snap.Stacks[i] = StackRecord{Key: st.item.Key, Quantity: st.quantity, ReservedCapacity: st.reservedCapacity}
		}
	default:
		for _, iq := range s.GetItemQuantities() {
			snap.Items = append(snap.Items, QuantityRecord{Key: iq.Item.Key, Quantity: iq.Quantity})
		}
	}
	return snap
}

// LoadData replaces the storage's contents with snap, resolving keys through
// lookup. Records whose key does not resolve leave an empty slot; they are
// reported through an *UnknownItemsError after everything else was loaded.
// Loading into a delegating storage does nothing.
func (s *ItemStorage) LoadData(snap Snapshot, lookup ItemLookup) error {
	if s.target != nil {
		return nil
	}
	if snap.Mode != s.Mode() {
		return fmt.Errorf("%w: snapshot is %s, storage is %s", ErrModeMismatch, snap.Mode, s.Mode())
	}
	s.reset()
	unknown := make(map[string]struct{})
	resolve := func(key string) *Item {
		if key == "" {
			return nil
		}
		item, ok := lookup.Lookup(key)
		if !ok {
			unknown[key] = struct{}{}
			return nil
		}
		return item
	}
	if s.isStacked() {
		for i, rec := range snap.Stacks {
			if i >= len(s.stacks) {
				break
			}
			item := resolve(rec.Key)
			if item == nil || (rec.Quantity <= 0 && rec.ReservedCapacity <= 0) {
				continue
			}
			st := s.stacks[i]
			st.item = item
			st.quantity = clampZero(rec.Quantity)
			st.reservedCapacity = clampZero(rec.ReservedCapacity)
			st.changed.emit(st)
		}
	} else {
		for _, rec := range snap.Items {
			item := resolve(rec.Key)
			if item == nil || rec.Quantity <= 0 {
				continue
			}
			s.touch(item)
			s.quantities[item] += rec.Quantity
		}
	}
	s.notify()
	if len(unknown) == 0 {
		return nil
	}
	e := &UnknownItemsError{Suggestions: make(map[string]string)}
	suggester, _ := lookup.(interface{ Suggest(string) (string, bool) })
	for k := range unknown {
		e.Keys = append(e.Keys, k)
		if suggester == nil {
			continue
		}
		if s, ok := suggester.Suggest(k); ok {
			e.Suggestions[k] = s
		}
	}
	sort.Strings(e.Keys)
	return e
}
