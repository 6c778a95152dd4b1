// Package snapshot persists storage snapshots in a key/value backend.
package snapshot

//go:generate mockgen -destination=mocks/backend.go -package=mocks github.com/gravitas-games/citybuilder/internal/snapshot Backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/gravitas-games/citybuilder/internal/config"
)

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("snapshot: not found")

// Backend stores opaque snapshot blobs under string keys.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Keys lists the stored keys that start with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Open builds the backend selected by cfg. It returns a nil Backend when
// persistence is disabled. The redis client is only used by the redis
// backend and is not closed by it.
func Open(cfg config.PersistenceConfig, client *redis.Client) (Backend, error) {
	switch cfg.Backend {
	case config.BackendNone, "":
		return nil, nil
	case config.BackendMemory:
		return NewMemory(), nil
	case config.BackendRedis:
		if client == nil {
			return nil, errors.New("snapshot: redis backend without redis client")
		}
		return NewRedis(client, cfg.Prefix), nil
	case config.BackendLevelDB:
		return OpenLevelDB(cfg.Path, cfg.Prefix)
	default:
		return nil, fmt.Errorf("snapshot: unknown backend %q", cfg.Backend)
	}
}
