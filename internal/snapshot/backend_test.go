package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/citybuilder/internal/config"
)

func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Get(ctx, "storage/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Put(ctx, "storage/warehouse", []byte(`{"mode":"stacked"}`)))
	require.NoError(t, b.Put(ctx, "storage/bakery", []byte(`{"mode":"free"}`)))
	require.NoError(t, b.Put(ctx, "meta/version", []byte("1")))

	data, err := b.Get(ctx, "storage/warehouse")
	require.NoError(t, err)
	assert.Equal(t, `{"mode":"stacked"}`, string(data))

	keys, err := b.Keys(ctx, "storage/")
	require.NoError(t, err)
	assert.Equal(t, []string{"storage/bakery", "storage/warehouse"}, keys)

	require.NoError(t, b.Put(ctx, "storage/bakery", []byte(`{"mode":"item_specific"}`)))
	data, err = b.Get(ctx, "storage/bakery")
	require.NoError(t, err)
	assert.Equal(t, `{"mode":"item_specific"}`, string(data))

	require.NoError(t, b.Delete(ctx, "storage/bakery"))
	_, err = b.Get(ctx, "storage/bakery")
	assert.ErrorIs(t, err, ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, ok := b.(*RedisBackend); !ok {
		assert.ErrorIs(t, b.Put(cancelled, "storage/late", nil), context.Canceled)
	}
}

func TestMemoryBackend(t *testing.T) {
	b := NewMemory()
	exerciseBackend(t, b)

	data := []byte("abc")
	require.NoError(t, b.Put(context.Background(), "k", data))
	data[0] = 'x'
	got, _ := b.Get(context.Background(), "k")
	assert.Equal(t, "abc", string(got), "stored bytes are copied")
	assert.NoError(t, b.Close())
}

func TestLevelDBBackend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	b, err := OpenLevelDB(dir, "depot:")
	require.NoError(t, err)
	exerciseBackend(t, b)
	require.NoError(t, b.Close())

	reopened, err := OpenLevelDB(dir, "depot:")
	require.NoError(t, err)
	defer reopened.Close()
	data, err := reopened.Get(context.Background(), "storage/warehouse")
	require.NoError(t, err)
	assert.Equal(t, `{"mode":"stacked"}`, string(data))

	other, err := reopened.Keys(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"meta/version", "storage/warehouse"}, other)
}

// TestRedisBackend needs a running redis, e.g. REDIS_ADDR=localhost:6379.
func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	prefix := "citybuilder-test:" + t.Name() + ":"
	b := NewRedis(client, prefix)
	defer func() {
		keys, _ := b.Keys(ctx, "")
		for _, k := range keys {
			_ = b.Delete(ctx, k)
		}
	}()
	exerciseBackend(t, b)
}

func TestOpen(t *testing.T) {
	b, err := Open(config.PersistenceConfig{Backend: config.BackendNone}, nil)
	assert.NoError(t, err)
	assert.Nil(t, b)

	b, err = Open(config.PersistenceConfig{Backend: config.BackendMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryBackend{}, b)

	_, err = Open(config.PersistenceConfig{Backend: config.BackendRedis}, nil)
	assert.Error(t, err)

	_, err = Open(config.PersistenceConfig{Backend: "tape"}, nil)
	assert.Error(t, err)
}
