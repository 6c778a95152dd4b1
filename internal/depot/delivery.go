package depot

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// Delivery describes an item transfer in flight.
type Delivery struct {
	ID       uuid.UUID `json:"id"`
	Actor    string    `json:"actor"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Item     string    `json:"item"`
	Quantity int       `json:"quantity"`
	DueTick  uint64    `json:"dueTick"`
}

// delivery holds the stock reserved at the source and the space reserved at
// the destination until the carrier arrives.
type delivery struct {
	Delivery
	ctx    context.Context
	from   *entry
	source *storage.QuantityReservation
	dest   *storage.CapacityReservation
}

func (d *delivery) release() {
	d.source.Release()
	d.dest.Release()
}

// StartDelivery reserves up to quantity of an item at from and the space
// for it at to. The items are moved when the delivery arrives after
// delivery_ticks steps. The delivery is cancelled when ctx is done before
// it arrives.
func (w *World) StartDelivery(ctx context.Context, actor, from, to, itemKey string, quantity int) (Delivery, error) {
	_, span := w.tracer.Start(ctx, "depot.delivery.start", trace.WithAttributes(
		attribute.String("actor", actor),
		attribute.String("storage.from", from),
		attribute.String("storage.to", to),
		attribute.String("item.key", itemKey),
		attribute.Int("quantity", quantity),
	))
	defer span.End()

	src, err := w.entry(from)
	if err != nil {
		return Delivery{}, err
	}
	dst, err := w.entry(to)
	if err != nil {
		return Delivery{}, err
	}
	item, err := w.item(itemKey)
	if err != nil {
		return Delivery{}, err
	}
	if resolved(src.storage) == resolved(dst.storage) {
		return Delivery{}, ErrSameStorage
	}
	if quantity <= 0 {
		return Delivery{}, fmt.Errorf("%w: quantity %d", ErrNothingToMove, quantity)
	}

	source := src.storage.ReserveQuantity(item, quantity)
	if source.Amount() == 0 {
		return Delivery{}, fmt.Errorf("%w: no %s available in %s", ErrNothingToMove, item.Key, from)
	}
	dest := dst.storage.ReserveCapacity(item, source.Amount())
	if dest.Amount() == 0 {
		source.Release()
		return Delivery{}, fmt.Errorf("%w: no space for %s in %s", ErrNoCapacity, item.Key, to)
	}
	if dest.Amount() < source.Amount() {
		source.Release()
		source = src.storage.ReserveQuantity(item, dest.Amount())
	}

	d := &delivery{
		Delivery: Delivery{
			ID:       uuid.New(),
			Actor:    actor,
			From:     from,
			To:       to,
			Item:     item.Key,
			Quantity: source.Amount(),
			DueTick:  w.tick + w.deliveryTicks,
		},
		ctx:    ctx,
		from:   src,
		source: source,
		dest:   dest,
	}
	w.deliveries = append(w.deliveries, d)
	span.SetAttributes(attribute.String("delivery.id", d.ID.String()), attribute.Int("reserved", d.Quantity))
	w.log.Debugf("delivery %s started: %d %s %s -> %s by %s", d.ID, d.Quantity, item.Key, from, to, actor)
	return d.Delivery, nil
}

// CancelDelivery cancels a delivery started by actor. An empty actor may
// cancel any delivery.
func (w *World) CancelDelivery(actor string, id uuid.UUID) error {
	for i, d := range w.deliveries {
		if d.ID != id {
			continue
		}
		if actor != "" && d.Actor != actor {
			return fmt.Errorf("%w: delivery %s", ErrNotOwner, id)
		}
		d.release()
		w.deliveries = append(w.deliveries[:i], w.deliveries[i+1:]...)
		w.log.Debugf("delivery %s cancelled by %q", id, actor)
		return nil
	}
	return fmt.Errorf("%w %s", ErrUnknownDelivery, id)
}

// CancelActor cancels every delivery started by actor and returns how many
// were cancelled.
func (w *World) CancelActor(actor string) int {
	return w.dropDeliveries(func(d *delivery) bool { return d.Actor == actor })
}

func (w *World) dropDeliveries(drop func(*delivery) bool) int {
	kept := w.deliveries[:0]
	n := 0
	for _, d := range w.deliveries {
		if drop(d) {
			d.release()
			n++
			continue
		}
		kept = append(kept, d)
	}
	clear(w.deliveries[len(kept):])
	w.deliveries = kept
	return n
}

// Deliveries lists deliveries in flight. An empty actor lists all of them.
func (w *World) Deliveries(actor string) []Delivery {
	result := make([]Delivery, 0, len(w.deliveries))
	for _, d := range w.deliveries {
		if actor == "" || d.Actor == actor {
			result = append(result, d.Delivery)
		}
	}
	return result
}

func (w *World) stepDeliveries(ctx context.Context) {
	cancelled := w.dropDeliveries(func(d *delivery) bool { return d.ctx.Err() != nil })
	if cancelled > 0 {
		w.log.Debugf("%d deliveries cancelled by their context", cancelled)
	}
	arrived := w.dropDeliveriesArrived()
	for _, d := range arrived {
		w.unload(ctx, d)
	}
}

func (w *World) dropDeliveriesArrived() []*delivery {
	var arrived []*delivery
	kept := w.deliveries[:0]
	for _, d := range w.deliveries {
		if w.tick >= d.DueTick {
			arrived = append(arrived, d)
			continue
		}
		kept = append(kept, d)
	}
	clear(w.deliveries[len(kept):])
	w.deliveries = kept
	return arrived
}

func (w *World) unload(ctx context.Context, d *delivery) {
	_, span := w.tracer.Start(ctx, "depot.delivery.arrive", trace.WithAttributes(
		attribute.String("delivery.id", d.ID.String()),
		attribute.Int("quantity", d.Quantity),
	))
	defer span.End()

	item := d.source.Item()
	taken := d.source.Collect()
	rejected := d.dest.Deliver(taken)
	if rejected > 0 {
		// the destination changed under the reservation; the carrier brings the rest back
		d.from.storage.AddItems(item, rejected, true)
		w.log.Warnf("delivery %s: %d %s returned to %s", d.ID, rejected, item.Key, d.From)
	}
	span.SetAttributes(attribute.Int("delivered", taken-rejected))
	w.log.Debugf("delivery %s arrived: %d %s in %s", d.ID, taken-rejected, item.Key, d.To)
}

// resolved returns the storage that actually holds the items of s.
func resolved(s *storage.ItemStorage) *storage.ItemStorage {
	for s.Target() != nil {
		s = s.Target()
	}
	return s
}
