package depot

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/citybuilder/internal/snapshot"
	"github.com/gravitas-games/citybuilder/internal/snapshot/mocks"
)

// storages that hold their own items in the test world
var localStorages = []string{"global", "market", "warehouse", "mill"}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := snapshot.NewMemory()

	w1, _ := newTestWorld(t)
	_, err := w1.Add(ctx, "warehouse", "wood", 30, false)
	require.NoError(t, err)
	_, err = w1.Add(ctx, "stall", "stone", 5, false)
	require.NoError(t, err)
	_, err = w1.Remove(ctx, "global", "wood", 60)
	require.NoError(t, err)
	_, err = w1.StartDelivery(ctx, "alice", "global", "warehouse", "wood", 5)
	require.NoError(t, err)
	require.NoError(t, w1.Save(ctx, backend))

	keys, err := backend.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"storage/global", "storage/market", "storage/mill", "storage/warehouse"}, keys)

	w2, _ := newTestWorld(t)
	require.NoError(t, w2.Load(ctx, backend))
	assert.Equal(t, 40, quantity(t, w2, "global", "wood"), "snapshot replaces start items")
	assert.Equal(t, 30, quantity(t, w2, "warehouse", "wood"))
	assert.Equal(t, 5, quantity(t, w2, "stall", "stone"))

	warehouse, _ := w2.Storage("warehouse")
	global, _ := w2.Storage("global")
	assert.Zero(t, warehouse.GetReservedCapacity(nil), "reservations do not survive a load")
	assert.Zero(t, global.GetReservedQuantity(nil))
}

func TestSaveSkipsDelegatingStorages(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	backend := mocks.NewMockBackend(ctl)
	for _, id := range localStorages {
		backend.EXPECT().Put(gomock.Any(), SnapshotKey(id), gomock.Any()).Return(nil)
	}

	w, _ := newTestWorld(t)
	require.NoError(t, w.Save(context.Background(), backend))
}

func TestSaveReportsBackendError(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	backend := mocks.NewMockBackend(ctl)
	backend.EXPECT().Put(gomock.Any(), "storage/global", gomock.Any()).Return(errors.New("disk full"))

	w, _ := newTestWorld(t)
	err := w.Save(context.Background(), backend)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestLoadWithoutSnapshots(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	backend := mocks.NewMockBackend(ctl)
	backend.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, snapshot.ErrNotFound).Times(len(localStorages))

	w, _ := newTestWorld(t)
	require.NoError(t, w.Load(context.Background(), backend))
	assert.Equal(t, 100, quantity(t, w, "global", "wood"), "start items stay")
}

func TestLoadReportsBackendError(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	backend := mocks.NewMockBackend(ctl)
	backend.EXPECT().Get(gomock.Any(), "storage/global").Return(nil, errors.New("connection refused"))

	w, _ := newTestWorld(t)
	assert.Error(t, w.Load(context.Background(), backend))
}

func TestLoadDropsUnknownItems(t *testing.T) {
	ctx := context.Background()
	backend := snapshot.NewMemory()
	require.NoError(t, backend.Put(ctx, "storage/global",
		[]byte(`{"mode":"free","items":[{"key":"wood","quantity":7},{"key":"wod","quantity":1}]}`)))

	w, _ := newTestWorld(t)
	require.NoError(t, w.Load(ctx, backend))
	assert.Equal(t, 7, quantity(t, w, "global", "wood"))
}

func TestLoadRejectsModeMismatch(t *testing.T) {
	ctx := context.Background()
	backend := snapshot.NewMemory()
	require.NoError(t, backend.Put(ctx, "storage/warehouse", []byte(`{"mode":"free"}`)))

	w, _ := newTestWorld(t)
	assert.Error(t, w.Load(ctx, backend))
}
