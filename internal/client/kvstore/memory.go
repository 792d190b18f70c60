package kvstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zelebiz/zelebiz/internal/common"
)

// MemoryStore is a process-local Store used when no database path is
// configured. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Item
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item), now: time.Now}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := s.GetItem(ctx, key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (s *MemoryStore) GetItem(_ context.Context, key string) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, common.ErrNotFound)
	}
	it.Value = slices.Clone(it.Value)
	return &it, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := s.items[key]
	s.items[key] = Item{Key: key, Value: slices.Clone(value), Version: it.Version + 1, UpdatedAt: s.now()}
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

func (s *MemoryStore) CompareAndSwap(_ context.Context, key string, version int64, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if (!ok && version != 0) || (ok && it.Version != version) {
		return fmt.Errorf("key %q at version %d: %w", key, version, ErrVersionConflict)
	}
	s.items[key] = Item{Key: key, Value: slices.Clone(value), Version: version + 1, UpdatedAt: s.now()}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) error {
	return update(ctx, s, key, fn)
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []Item
	for k, it := range s.items {
		if strings.HasPrefix(k, prefix) {
			it.Value = slices.Clone(it.Value)
			items = append(items, it)
		}
	}
	slices.SortFunc(items, func(a, b Item) int { return strings.Compare(a.Key, b.Key) })
	return items, nil
}

func (s *MemoryStore) Close() error { return nil }
