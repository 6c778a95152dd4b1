package depot

import (
	"fmt"

	"github.com/gravitas-games/citybuilder/internal/production"
)

// StartProduction starts a recipe in a storage on behalf of actor.
func (w *World) StartProduction(actor, storageID string, recipe production.RecipeID, repeat bool) (*production.Job, error) {
	if _, err := w.entry(storageID); err != nil {
		return nil, err
	}
	start := w.production.StartProduction
	if repeat {
		start = w.production.StartRepeatingProduction
	}
	id, err := start(recipe, actor, storageID)
	if err != nil {
		return nil, err
	}
	w.log.Debugf("job %s: %s started in %s by %s", id, recipe, storageID, actor)
	return w.production.GetJob(id), nil
}

// CancelProduction cancels a job started by actor, refunding its consumed
// inputs when refund is set. An empty actor may cancel any job.
func (w *World) CancelProduction(actor string, id production.JobID, refund bool) error {
	job := w.production.GetJob(id)
	if job == nil {
		return fmt.Errorf("%w: %s", production.ErrJobNotFound, id)
	}
	if actor != "" && job.Owner != actor {
		return fmt.Errorf("%w: job %s", ErrNotOwner, id)
	}
	if refund {
		return w.production.CancelProductionWithRefund(id)
	}
	return w.production.CancelProduction(id)
}

// Jobs lists the production jobs running in a storage.
func (w *World) Jobs(storageID string) ([]*production.Job, error) {
	if _, err := w.entry(storageID); err != nil {
		return nil, err
	}
	return w.production.GetStorageJobs(storageID), nil
}

// Shutdown releases every delivery and cancels every job with a refund. It
// returns how many of each were stopped.
func (w *World) Shutdown() (deliveries, jobs int) {
	deliveries = w.dropDeliveries(func(*delivery) bool { return true })
	for _, job := range w.production.GetAllJobs() {
		if err := w.production.CancelProductionWithRefund(job.ID); err != nil {
			w.log.Warnf("job %s: %s", job.ID, err)
		}
		jobs++
	}
	return deliveries, jobs
}
