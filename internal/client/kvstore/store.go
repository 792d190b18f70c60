// Package kvstore is the durable key/value store every piece of client state
// lives in. Values are opaque bytes; each key carries a version that is bumped
// on every write so callers can do optimistic read-modify-write.
package kvstore

import (
	"context"
	"errors"
	"time"
)

// ErrVersionConflict is returned by CompareAndSwap when the stored version
// does not match the expected one.
var ErrVersionConflict = errors.New("version conflict")

// maxUpdateRetries bounds the optimistic loop in Update.
const maxUpdateRetries = 16

// Item is a stored value with its bookkeeping.
type Item struct {
	Key       string
	Value     []byte
	Version   int64
	UpdatedAt time.Time
}

// Store is implemented by SQLiteStore and MemoryStore.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetItem(ctx context.Context, key string) (*Item, error)
	Put(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
	// CompareAndSwap writes value only if the current version equals version.
	// Version 0 means the key must not exist yet.
	CompareAndSwap(ctx context.Context, key string, version int64, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	List(ctx context.Context, prefix string) ([]Item, error)
	Close() error
}

// UpdateFunc receives the current value (nil and false when absent) and
// returns the value to store. Returning ErrSkipWrite leaves the key untouched.
type UpdateFunc func(current []byte, exists bool) ([]byte, error)

// ErrSkipWrite can be returned from an UpdateFunc to abort without error.
var ErrSkipWrite = errors.New("skip write")

// update implements Update for any store on top of GetItem and CompareAndSwap.
func update(ctx context.Context, s Store, key string, fn UpdateFunc) error {
	for range maxUpdateRetries {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			current []byte
			version int64
		)
		item, err := s.GetItem(ctx, key)
		switch {
		case err == nil:
			current, version = item.Value, item.Version
		case isNotFound(err):
		default:
			return err
		}

		next, err := fn(current, version > 0)
		if errors.Is(err, ErrSkipWrite) {
			return nil
		}
		if err != nil {
			return err
		}

		err = s.CompareAndSwap(ctx, key, version, next)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		return err
	}
	return ErrVersionConflict
}
