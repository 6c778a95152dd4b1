package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/agnivade/levenshtein"
)

var (
	// ErrEmptyKey is returned when registering an item without key.
	ErrEmptyKey = errors.New("storage: item without key")
	// ErrDuplicateKey is returned when a key is registered twice.
	ErrDuplicateKey = errors.New("storage: duplicate item key")
)

// ItemLookup resolves item keys found in snapshots.
type ItemLookup interface {
	Lookup(key string) (*Item, bool)
}

// Registry interns items by key so that every key maps to exactly one *Item.
// Unlike storages it is safe for concurrent use, since clients read it from
// connection goroutines.
type Registry struct {
	mu    sync.RWMutex
	items map[string]*Item
}

// NewRegistry constructs a registry seeded with items. Duplicate or keyless
// seeds are ignored.
func NewRegistry(items ...*Item) *Registry {
	r := &Registry{items: make(map[string]*Item, len(items))}
	for _, item := range items {
		_ = r.Register(item) // ignore duplicates during seed
	}
	return r
}

// Register adds item under its key.
func (r *Registry) Register(item *Item) error {
	if item == nil || item.Key == "" {
		return ErrEmptyKey
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items == nil {
		r.items = make(map[string]*Item)
	}
	if _, exists := r.items[item.Key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, item.Key)
	}
	r.items[item.Key] = item
	return nil
}

// Lookup returns the item registered under key.
func (r *Registry) Lookup(key string) (*Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	item, ok := r.items[key]
	return item, ok
}

// Items returns every registered item sorted by priority, then key.
func (r *Registry) Items() []*Item {
	r.mu.RLock()
	out := make([]*Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Len returns the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Suggest returns the registered key closest to key by edit distance. Keys
// further away than a third of their length are not suggested.
func (r *Registry) Suggest(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best, bestDist := "", -1
	for k := range r.items {
		d := levenshtein.ComputeDistance(key, k)
		if bestDist < 0 || d < bestDist || (d == bestDist && k < best) {
			best, bestDist = k, d
		}
	}
	if bestDist < 0 || bestDist > max(1, len(best)/3) {
		return "", false
	}
	return best, true
}
