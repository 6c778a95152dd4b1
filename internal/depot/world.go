// Package depot holds the simulation state of a settlement's storages and
// drives it from a single goroutine.
package depot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitmark-inc/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gravitas-games/citybuilder/internal/config"
	"github.com/gravitas-games/citybuilder/internal/production"
	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// Errors returned by world operations.
var (
	ErrUnknownStorage  = errors.New("depot: unknown storage")
	ErrUnknownItem     = errors.New("depot: unknown item")
	ErrUnknownDelivery = errors.New("depot: unknown delivery")
	ErrSameStorage     = errors.New("depot: source and destination are the same storage")
	ErrNothingToMove   = errors.New("depot: nothing to move")
	ErrNoCapacity      = errors.New("depot: destination is full")
	ErrNotOwner        = errors.New("depot: not owned by actor")
)

// Storage kinds reported in status.
const (
	KindGlobal  = "global"
	KindStore   = "store"
	KindStorage = "storage"
)

// OrdersActor is the actor recorded on deliveries dispatched for storage
// orders.
const OrdersActor = "orders"

type entry struct {
	id      string
	owner   string
	kind    string
	storage *storage.ItemStorage
	orders  []storage.StorageOrder
}

// World is the simulation state. It is not safe for concurrent use; Depot
// serialises access to it.
type World struct {
	log    *logger.L
	tracer trace.Tracer

	registry   *storage.Registry
	global     *entry
	entries    map[string]*entry
	ids        []string
	names      map[*storage.ItemStorage]string
	production *production.Manager

	deliveries    []*delivery
	deliveryTicks uint64
	tick          uint64
}

// NewWorld builds the storages described by cfg and fills the global
// storage with its start items.
func NewWorld(cfg config.DepotConfig, bus production.EventBus, opts ...production.Option) (*World, error) {
	w := &World{
		log:           logger.New("depot"),
		tracer:        otel.Tracer("citybuilder/depot"),
		registry:      storage.NewRegistry(),
		entries:       make(map[string]*entry),
		names:         make(map[*storage.ItemStorage]string),
		deliveryTicks: uint64(max(1, cfg.DeliveryTicks)),
	}
	for i := range cfg.Items {
		item := cfg.Items[i]
		if err := w.registry.Register(&item); err != nil {
			return nil, fmt.Errorf("item %q: %w", item.Key, err)
		}
	}

	global, err := w.addStorage(KindGlobal, cfg.Global, nil)
	if err != nil {
		return nil, err
	}
	w.global = global
	for _, q := range cfg.StartItems {
		item, err := w.item(q.Item)
		if err != nil {
			return nil, fmt.Errorf("start items: %w", err)
		}
		if rejected := global.storage.AddItems(item, q.Quantity, false); rejected > 0 {
			w.log.Warnf("global storage rejected %d of %d start %s", rejected, q.Quantity, item.Key)
		}
	}

	stores := make(map[string]*storage.ItemStorage, len(cfg.Stores))
	for _, sc := range cfg.Stores {
		e, err := w.addStorage(KindStore, sc, nil)
		if err != nil {
			return nil, err
		}
		stores[sc.ID] = e.storage
	}
	for _, sc := range cfg.Storages {
		if _, err := w.addStorage(KindStorage, sc, stores); err != nil {
			return nil, err
		}
	}

	recipes := production.NewRecipeRegistry()
	for _, rc := range cfg.Recipes {
		recipe, err := w.recipe(rc)
		if err != nil {
			return nil, err
		}
		if err := recipes.Register(recipe); err != nil {
			return nil, fmt.Errorf("recipe %s: %w", rc.ID, err)
		}
	}
	mods := make(production.StaticModifiers, len(cfg.Modifiers))
	for _, m := range cfg.Modifiers {
		mods[m.Storage] = production.Modifiers{
			InputCost:   m.InputCost,
			OutputYield: m.OutputYield,
			TimeSpeed:   m.TimeSpeed,
			Source:      m.Storage,
		}
	}
	w.production = production.NewManager("depot", recipes, w, bus, []production.ModifierSource{mods}, opts...)

	w.log.Infof("world built: %d items, %d storages, %d recipes", w.registry.Len(), len(w.ids), recipes.Count())
	return w, nil
}

func (w *World) addStorage(kind string, sc config.StorageConfig, stores map[string]*storage.ItemStorage) (*entry, error) {
	if _, exists := w.entries[sc.ID]; exists {
		return nil, fmt.Errorf("storage %s: duplicate id", sc.ID)
	}
	policy, err := w.policy(sc, stores)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", sc.ID, err)
	}
	s, err := storage.New(policy)
	if err != nil {
		return nil, fmt.Errorf("storage %s: %w", sc.ID, err)
	}
	e := &entry{id: sc.ID, owner: sc.Owner, kind: kind, storage: s}
	for _, oc := range sc.Orders {
		item, err := w.item(oc.Item)
		if err != nil {
			return nil, fmt.Errorf("storage %s: order: %w", sc.ID, err)
		}
		e.orders = append(e.orders, storage.StorageOrder{Item: item, Mode: oc.Mode, Ratio: oc.Ratio})
	}
	w.entries[sc.ID] = e
	w.ids = append(w.ids, sc.ID)
	w.names[s] = sc.ID
	return e, nil
}

func (w *World) policy(sc config.StorageConfig, stores map[string]*storage.ItemStorage) (storage.Policy, error) {
	switch sc.Mode {
	case storage.ModeFree:
		return storage.Free{}, nil
	case storage.ModeItemCapped:
		return storage.ItemCapped{Capacity: sc.Capacity}, nil
	case storage.ModeTotalItemCapped:
		return storage.TotalItemCapped{Capacity: sc.Capacity}, nil
	case storage.ModeUnitCapped:
		return storage.UnitCapped{Capacity: sc.Capacity}, nil
	case storage.ModeTotalUnitCapped:
		return storage.TotalUnitCapped{Capacity: sc.Capacity}, nil
	case storage.ModeStacked:
		return storage.Stacked{StackCount: sc.StackCount, Capacity: sc.Capacity}, nil
	case storage.ModeItemSpecific:
		capacities := make([]storage.ItemQuantity, 0, len(sc.Capacities))
		for _, c := range sc.Capacities {
			item, err := w.item(c.Item)
			if err != nil {
				return nil, err
			}
			capacities = append(capacities, storage.ItemQuantity{Item: item, Quantity: c.Quantity})
		}
		return storage.ItemSpecific{Capacities: capacities}, nil
	case storage.ModeGlobal:
		if w.global == nil {
			return nil, fmt.Errorf("%w: global storage cannot delegate", storage.ErrInvalidPolicy)
		}
		return storage.Global{Storage: w.global.storage}, nil
	case storage.ModeStore:
		target, ok := stores[sc.Store]
		if !ok {
			return nil, fmt.Errorf("%w: unknown store %q", storage.ErrNoTarget, sc.Store)
		}
		return storage.Store{Storage: target}, nil
	default:
		return nil, fmt.Errorf("%w: mode %s", storage.ErrInvalidPolicy, sc.Mode)
	}
}

func (w *World) recipe(rc config.RecipeConfig) (*production.Recipe, error) {
	recipe := &production.Recipe{
		ID:       production.RecipeID(rc.ID),
		Name:     rc.Name,
		Category: rc.Category,
		Duration: rc.Duration,
	}
	for _, in := range rc.Inputs {
		item, err := w.item(in.Item)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", rc.ID, err)
		}
		recipe.Inputs = append(recipe.Inputs, production.Input{Item: item, Quantity: in.Quantity, Tool: in.Tool})
	}
	for _, out := range rc.Outputs {
		item, err := w.item(out.Item)
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", rc.ID, err)
		}
		recipe.Outputs = append(recipe.Outputs, production.Output{Item: item, Quantity: out.Quantity, Probability: out.Probability})
	}
	return recipe, nil
}

func (w *World) item(key string) (*storage.Item, error) {
	if item, ok := w.registry.Lookup(key); ok {
		return item, nil
	}
	if s, ok := w.registry.Suggest(key); ok {
		return nil, fmt.Errorf("%w %q (did you mean %q?)", ErrUnknownItem, key, s)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownItem, key)
}

func (w *World) entry(id string) (*entry, error) {
	e, ok := w.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownStorage, id)
	}
	return e, nil
}

// Registry returns the item registry. It is safe to use from any goroutine.
func (w *World) Registry() *storage.Registry { return w.registry }

// Production returns the production manager.
func (w *World) Production() *production.Manager { return w.production }

// Tick returns the number of steps taken.
func (w *World) Tick() uint64 { return w.tick }

// IDs returns the storage ids in configuration order, global first.
func (w *World) IDs() []string { return append([]string(nil), w.ids...) }

// Storage returns the storage with the given id.
func (w *World) Storage(id string) (*storage.ItemStorage, error) {
	e, err := w.entry(id)
	if err != nil {
		return nil, err
	}
	return e.storage, nil
}

// Add puts items into a storage and returns the quantity rejected.
func (w *World) Add(ctx context.Context, id, itemKey string, quantity int, capped bool) (int, error) {
	_, span := w.tracer.Start(ctx, "depot.add", trace.WithAttributes(
		attribute.String("storage.id", id),
		attribute.String("item.key", itemKey),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	e, err := w.entry(id)
	if err != nil {
		return 0, err
	}
	item, err := w.item(itemKey)
	if err != nil {
		return 0, err
	}
	rejected := e.storage.AddItems(item, quantity, capped)
	span.SetAttributes(attribute.Int("rejected", rejected))
	return rejected, nil
}

// Remove takes items out of a storage and returns the quantity that could
// not be removed.
func (w *World) Remove(ctx context.Context, id, itemKey string, quantity int) (int, error) {
	_, span := w.tracer.Start(ctx, "depot.remove", trace.WithAttributes(
		attribute.String("storage.id", id),
		attribute.String("item.key", itemKey),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	e, err := w.entry(id)
	if err != nil {
		return 0, err
	}
	item, err := w.item(itemKey)
	if err != nil {
		return 0, err
	}
	left := e.storage.RemoveItems(item, quantity)
	span.SetAttributes(attribute.Int("left", left))
	return left, nil
}

// Move transfers items between two storages immediately and returns the
// quantity moved. An empty item key moves the first available item, a
// negative quantity moves as much as fits.
func (w *World) Move(ctx context.Context, from, to, itemKey string, quantity int) (int, error) {
	_, span := w.tracer.Start(ctx, "depot.move", trace.WithAttributes(
		attribute.String("storage.from", from),
		attribute.String("storage.to", to),
		attribute.String("item.key", itemKey),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	src, err := w.entry(from)
	if err != nil {
		return 0, err
	}
	dst, err := w.entry(to)
	if err != nil {
		return 0, err
	}
	var item *storage.Item
	if itemKey != "" {
		if item, err = w.item(itemKey); err != nil {
			return 0, err
		}
	}
	moved := src.storage.MoveItemsTo(dst.storage, item, quantity)
	span.SetAttributes(attribute.Int("moved", moved))
	return moved, nil
}

// Step advances the simulation by one tick: deliveries that arrived are
// unloaded, production jobs that are due complete, and every
// delivery_ticks steps new deliveries are dispatched for storage orders.
func (w *World) Step(ctx context.Context, now time.Time) {
	w.tick++
	w.stepDeliveries(ctx)
	w.production.Update(now)
	if w.tick%w.deliveryTicks == 0 {
		w.dispatchOrders(ctx)
	}
}
