package depot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/citybuilder/internal/snapshot"
)

func TestDepotRunSavesOnShutdown(t *testing.T) {
	backend := snapshot.NewMemory()
	w, _ := newTestWorld(t)
	d := New(w, backend, 50, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- d.Run(ctx) }()

	err := d.Do(context.Background(), func(w *World) error {
		_, err := w.Add(context.Background(), "global", "stone", 12, false)
		return err
	})
	require.NoError(t, err)

	var tick uint64
	require.Eventually(t, func() bool {
		_ = d.Do(context.Background(), func(w *World) error {
			tick = w.Tick()
			return nil
		})
		return tick > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("depot did not stop")
	}

	assert.ErrorIs(t, d.Do(context.Background(), func(*World) error { return nil }), ErrStopped)

	restored, _ := newTestWorld(t)
	require.NoError(t, restored.Load(context.Background(), backend))
	assert.Equal(t, 12, quantity(t, restored, "global", "stone"))
}

func TestDepotDoRespectsContext(t *testing.T) {
	w, _ := newTestWorld(t)
	d := New(w, nil, 20, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Do(ctx, func(*World) error { return nil }), context.Canceled)
}
