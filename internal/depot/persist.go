package depot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gravitas-games/citybuilder/internal/snapshot"
	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// KeyPrefix prefixes the backend keys of storage snapshots.
const KeyPrefix = "storage/"

// SnapshotKey returns the backend key of a storage's snapshot.
func SnapshotKey(id string) string { return KeyPrefix + id }

// Save writes a snapshot of every storage that holds items. Delegating
// storages are skipped since their target is saved on its own.
func (w *World) Save(ctx context.Context, backend snapshot.Backend) error {
	ctx, span := w.tracer.Start(ctx, "depot.save")
	defer span.End()

	saved := 0
	for _, id := range w.ids {
		e := w.entries[id]
		if e.storage.Mode().Delegating() {
			continue
		}
		data, err := json.Marshal(e.storage.SaveData())
		if err != nil {
			return fmt.Errorf("storage %s: encode snapshot: %w", id, err)
		}
		if err := backend.Put(ctx, SnapshotKey(id), data); err != nil {
			return fmt.Errorf("storage %s: save snapshot: %w", id, err)
		}
		saved++
	}
	span.SetAttributes(attribute.Int("storages.saved", saved))
	w.log.Debugf("saved %d storages at tick %d", saved, w.tick)
	return nil
}

// Load restores every storage that has a snapshot in backend. Deliveries
// and production jobs in flight are cancelled first and all reservations
// are cleared afterwards, since no guard survives a restart. Snapshot
// entries for unknown items are dropped with a warning.
func (w *World) Load(ctx context.Context, backend snapshot.Backend) error {
	ctx, span := w.tracer.Start(ctx, "depot.load")
	defer span.End()

	w.dropDeliveries(func(*delivery) bool { return true })
	for _, job := range w.production.GetAllJobs() {
		_ = w.production.CancelProduction(job.ID) // jobs are not persisted
	}

	loaded := 0
	for _, id := range w.ids {
		e := w.entries[id]
		if e.storage.Mode().Delegating() {
			continue
		}
		data, err := backend.Get(ctx, SnapshotKey(id))
		if errors.Is(err, snapshot.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("storage %s: load snapshot: %w", id, err)
		}
		var snap storage.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return fmt.Errorf("storage %s: decode snapshot: %w", id, err)
		}
		err = e.storage.LoadData(snap, w.registry)
		switch {
		case storage.IsUnknownItems(err):
			w.log.Warnf("storage %s: %s", id, err)
			span.AddEvent("unknown.items", trace.WithAttributes(attribute.String("storage.id", id)))
		case err != nil:
			return fmt.Errorf("storage %s: %w", id, err)
		}
		loaded++
	}
	for _, id := range w.ids {
		w.entries[id].storage.ClearReservations()
	}
	span.SetAttributes(attribute.Int("storages.loaded", loaded))
	w.log.Infof("loaded %d storages", loaded)
	return nil
}
