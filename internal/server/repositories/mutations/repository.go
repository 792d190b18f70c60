// Package mutations keeps the idempotency log: one row per applied
// mutation key and user.
package mutations

import (
	"context"

	"github.com/zelebiz/zelebiz/internal/server/models"
)

type Repository interface {
	// Claim inserts m unless its key is already recorded for the user and
	// reports whether it did. A concurrent claim of the same key blocks until
	// the first transaction ends.
	Claim(ctx context.Context, m *models.AppliedMutation) (bool, error)
	// Find returns the recorded mutation or common.ErrNotFound.
	Find(ctx context.Context, userID, key string) (*models.AppliedMutation, error)
	// SetVersion stores the entity version the mutation produced.
	SetVersion(ctx context.Context, userID, key string, version int64) error
}
