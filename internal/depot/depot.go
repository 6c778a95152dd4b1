package depot

import (
	"context"
	"errors"
	"time"

	"github.com/bitmark-inc/logger"

	"github.com/gravitas-games/citybuilder/internal/snapshot"
	"github.com/gravitas-games/citybuilder/pkg/storage"
)

// ErrStopped is returned by Do once the depot loop has exited.
var ErrStopped = errors.New("depot: stopped")

// saveTimeout bounds the final save on shutdown.
const saveTimeout = 10 * time.Second

type command struct {
	fn     func(*World) error
	result chan error
}

// Depot owns a World and runs it on a single goroutine. Every access to
// the world goes through Do.
type Depot struct {
	log      *logger.L
	world    *World
	backend  snapshot.Backend
	tick     time.Duration
	autosave time.Duration

	commands chan command
	done     chan struct{}
}

// New creates a depot stepping world tickRate times per second. A nil
// backend disables persistence.
func New(world *World, backend snapshot.Backend, tickRate int, autosave time.Duration) *Depot {
	return &Depot{
		log:      logger.New("depot"),
		world:    world,
		backend:  backend,
		tick:     time.Second / time.Duration(max(1, tickRate)),
		autosave: autosave,
		commands: make(chan command),
		done:     make(chan struct{}),
	}
}

// Registry returns the item registry, which is safe to read from any
// goroutine.
func (d *Depot) Registry() *storage.Registry { return d.world.registry }

// Do runs fn on the depot goroutine and returns its error. It returns
// ctx.Err() if ctx ends first; fn may still run in that case.
func (d *Depot) Do(ctx context.Context, fn func(*World) error) error {
	cmd := command{fn: fn, result: make(chan error, 1)}
	select {
	case d.commands <- cmd:
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (d *Depot) Done() <-chan struct{} { return d.done }

// Run loads the persisted storages, then processes commands and ticks
// until ctx is cancelled. On the way out it releases every delivery,
// refunds running jobs and saves once more.
func (d *Depot) Run(ctx context.Context) error {
	defer close(d.done)

	if d.backend != nil {
		if err := d.world.Load(ctx, d.backend); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()
	var autosave <-chan time.Time
	if d.backend != nil && d.autosave > 0 {
		t := time.NewTicker(d.autosave)
		defer t.Stop()
		autosave = t.C
	}

	d.log.Infof("running at %s per tick", d.tick)
	for {
		select {
		case <-ctx.Done():
			return d.shutdown()
		case cmd := <-d.commands:
			cmd.result <- cmd.fn(d.world)
		case now := <-ticker.C:
			d.world.Step(ctx, now)
		case <-autosave:
			if err := d.world.Save(ctx, d.backend); err != nil {
				d.log.Errorf("autosave: %s", err)
			}
		}
	}
}

func (d *Depot) shutdown() error {
	deliveries, jobs := d.world.Shutdown()
	d.log.Infof("stopping: %d deliveries released, %d jobs refunded", deliveries, jobs)
	if d.backend == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	return d.world.Save(ctx, d.backend)
}
