// Package cache keeps the last-known-good server copy of entities so reads
// keep working offline. Entries live in the key/value store under
// "zelebiz_cache/<entity>/<id>".
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/zelebiz/zelebiz/internal/client/kvstore"
	"github.com/zelebiz/zelebiz/internal/client/models"
	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/logging"
)

// ErrMiss is returned when nothing is cached and the server cannot be asked.
var ErrMiss = errors.New("cache miss")

// fetchAttempts is how many times Read asks the server before giving up.
const fetchAttempts = 3

type Fetcher interface {
	Fetch(ctx context.Context, entity, id string) (json.RawMessage, error)
}

type Connectivity interface {
	Current() bool
}

type Cache struct {
	store   kvstore.Store
	fetcher Fetcher
	online  Connectivity
	maxAge  time.Duration
	gcAge   time.Duration
	logger  logging.Logger

	now          func() time.Time
	fetchBackoff func() retry.Backoff
}

func New(store kvstore.Store, fetcher Fetcher, online Connectivity, maxAge, gcAge time.Duration, logger logging.Logger) *Cache {
	return &Cache{
		store:   store,
		fetcher: fetcher,
		online:  online,
		maxAge:  maxAge,
		gcAge:   gcAge,
		logger:  logger.With("module", "cache"),
		now:     time.Now,
		fetchBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(fetchAttempts-1, retry.NewExponential(200*time.Millisecond))
		},
	}
}

func key(entity, id string) string {
	return common.StorageKeyCache + entity + "/" + id
}

func decodeEntry(raw []byte) (*models.CacheEntry, error) {
	var e models.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("cache entry: %w: %w", common.ErrSerialization, err)
	}
	return &e, nil
}

func (c *Cache) Get(ctx context.Context, entity, id string) (*models.CacheEntry, error) {
	raw, err := c.store.Get(ctx, key(entity, id))
	if errors.Is(err, common.ErrNotFound) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, err
	}

	e, err := decodeEntry(raw)
	if err != nil {
		c.logger.Warn(ctx, "dropping undecodable cache entry", "entity", entity, "id", id, "error", err)
		_ = c.store.Remove(ctx, key(entity, id))
		return nil, ErrMiss
	}
	return e, nil
}

func (c *Cache) Put(ctx context.Context, entity, id string, value json.RawMessage) error {
	b, err := json.Marshal(models.CacheEntry{
		Entity:    entity,
		ID:        id,
		Value:     slices.Clone(value),
		FetchedAt: c.now(),
	})
	if err != nil {
		return fmt.Errorf("cache entry: %w: %w", common.ErrSerialization, err)
	}
	return c.store.Put(ctx, key(entity, id), b)
}

// Invalidate marks the entry stale. The value stays as last-known-good.
func (c *Cache) Invalidate(ctx context.Context, entity, id string) error {
	return c.store.Update(ctx, key(entity, id), func(raw []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, kvstore.ErrSkipWrite
		}
		e, err := decodeEntry(raw)
		if err != nil {
			return nil, err
		}
		if e.Stale {
			return nil, kvstore.ErrSkipWrite
		}
		e.Stale = true
		return json.Marshal(e)
	})
}

func (c *Cache) IsStale(e *models.CacheEntry) bool {
	return e.Stale || c.now().Sub(e.FetchedAt) > c.maxAge
}

// Read returns a fresh entry from the cache or the server. When the server
// cannot be reached the cached value is returned with Stale set; without a
// cached value the result is ErrMiss offline or the fetch error online.
func (c *Cache) Read(ctx context.Context, entity, id string) (*models.CacheEntry, error) {
	cached, err := c.Get(ctx, entity, id)
	if err != nil && !errors.Is(err, ErrMiss) {
		return nil, err
	}
	if cached != nil && !c.IsStale(cached) {
		return cached, nil
	}

	if !c.online.Current() {
		if cached == nil {
			return nil, ErrMiss
		}
		cached.Stale = true
		return cached, nil
	}

	value, err := c.fetch(ctx, entity, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			_ = c.store.Remove(ctx, key(entity, id))
			return nil, err
		}
		if cached == nil {
			return nil, err
		}
		c.logger.Warn(ctx, "serving stale cache entry", "entity", entity, "id", id, "error", err)
		cached.Stale = true
		return cached, nil
	}

	if err := c.Put(ctx, entity, id, value); err != nil {
		return nil, err
	}
	return &models.CacheEntry{Entity: entity, ID: id, Value: value, FetchedAt: c.now()}, nil
}

func (c *Cache) fetch(ctx context.Context, entity, id string) (json.RawMessage, error) {
	var value json.RawMessage
	err := retry.Do(ctx, c.fetchBackoff(), func(ctx context.Context) error {
		v, err := c.fetcher.Fetch(ctx, entity, id)
		if common.IsRetryable(err) {
			return retry.RetryableError(err)
		}
		value = v
		return err
	})
	return value, err
}

// Collect removes entries fetched more than the GC age ago and returns how
// many it removed.
func (c *Cache) Collect(ctx context.Context) (int, error) {
	items, err := c.store.List(ctx, common.StorageKeyCache)
	if err != nil {
		return 0, err
	}

	cutoff := c.now().Add(-c.gcAge)
	n := 0
	for _, it := range items {
		e, err := decodeEntry(it.Value)
		if err == nil && e.FetchedAt.After(cutoff) {
			continue
		}
		if err := c.store.Remove(ctx, it.Key); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		c.logger.Debug(ctx, "cache collected", "removed", n, "prefix", strings.TrimSuffix(common.StorageKeyCache, "/"))
	}
	return n, nil
}
