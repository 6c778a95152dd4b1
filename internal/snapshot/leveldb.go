package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBBackend stores snapshots in a local LevelDB database.
type LevelDBBackend struct {
	db     *leveldb.DB
	prefix string
}

// OpenLevelDB opens or creates the database at path.
func OpenLevelDB(path, prefix string) (*LevelDBBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open leveldb %s: %w", path, err)
	}
	return &LevelDBBackend{db: db, prefix: prefix}, nil
}

func (b *LevelDBBackend) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Put([]byte(b.prefix+key), data, nil)
}

func (b *LevelDBBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := b.db.Get([]byte(b.prefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *LevelDBBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Delete([]byte(b.prefix+key), nil)
}

// Keys iterates in key order, so the result is already sorted.
func (b *LevelDBBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	iter := b.db.NewIterator(util.BytesPrefix([]byte(b.prefix+prefix)), nil)
	defer iter.Release()

	var keys []string
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		keys = append(keys, string(iter.Key()[len(b.prefix):]))
	}
	return keys, iter.Error()
}

func (b *LevelDBBackend) Close() error { return b.db.Close() }
