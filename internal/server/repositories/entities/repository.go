// Package entities stores the server copy of every collection record.
package entities

import (
	"context"
	"encoding/json"

	"github.com/zelebiz/zelebiz/internal/server/models"
)

// Repository works on rows keyed by (user, entity, id). Versions start at 1
// and grow by one with every change.
type Repository interface {
	// Get returns the row, tombstones included, or common.ErrNotFound.
	Get(ctx context.Context, userID, entity, id string) (*models.Entity, error)
	// Insert returns common.ErrConflict when a live row already exists. A
	// tombstone is revived with the next version.
	Insert(ctx context.Context, userID, entity, id string, value json.RawMessage) (int64, error)
	// Update replaces the value of a live row or returns common.ErrNotFound.
	Update(ctx context.Context, userID, entity, id string, value json.RawMessage) (int64, error)
	// Delete turns a live row into a tombstone. It reports false when there
	// was nothing to delete.
	Delete(ctx context.Context, userID, entity, id string) (int64, bool, error)
}
