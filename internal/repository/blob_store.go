package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// BlobStore keeps each collection as one JSON array under a fixed key and
// rewrites the whole array on every change. A single mutex serializes
// read-modify-write cycles within the process; separate processes sharing
// the same KV get last-write-wins.
type BlobStore struct {
	kv     KV
	prefix string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewBlobStore creates a blob store over kv; keys are "<prefix>:users" and so on
func NewBlobStore(kv KV, prefix string, logger *slog.Logger) *BlobStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlobStore{kv: kv, prefix: prefix, logger: logger}
}

func (s *BlobStore) key(collection string) string {
	if s.prefix == "" {
		return collection
	}
	return s.prefix + ":" + collection
}

// Users returns the user repository of this store
func (s *BlobStore) Users() *BlobUserRepository {
	return &BlobUserRepository{c: collection[*blobUser]{store: s, name: "users"}}
}

// Orders returns the order repository of this store
func (s *BlobStore) Orders() *BlobOrderRepository {
	return &BlobOrderRepository{c: collection[*blobOrder]{store: s, name: "orders"}}
}

// Absences returns the absence repository of this store
func (s *BlobStore) Absences() *BlobAbsenceRepository {
	return &BlobAbsenceRepository{c: collection[*blobAbsence]{store: s, name: "absences"}}
}

// collection is one JSON array in the KV
type collection[T any] struct {
	store *BlobStore
	name  string
}

func (c collection[T]) load(ctx context.Context) ([]T, error) {
	key := c.store.key(c.name)
	data, found, err := c.store.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if !found || len(data) == 0 {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

func (c collection[T]) save(ctx context.Context, items []T) error {
	key := c.store.key(c.name)
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.store.kv.Set(ctx, key, data); err != nil {
		c.store.logger.Error("failed to write collection",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// read loads the collection under the store lock
func (c collection[T]) read(ctx context.Context) ([]T, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	return c.load(ctx)
}

// update runs a read-modify-write cycle; fn's error aborts without writing
func (c collection[T]) update(ctx context.Context, fn func(items []T) ([]T, error)) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	items, err := c.load(ctx)
	if err != nil {
		return err
	}
	items, err = fn(items)
	if err != nil {
		return err
	}
	return c.save(ctx, items)
}
