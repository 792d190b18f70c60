// Package refreshtokens declares the server-side repository contract for
// managing refresh tokens in persistent storage.
package refreshtokens

import (
	"context"
	"time"

	"github.com/zelebiz/zelebiz/internal/server/models"
)

// Repository stores refresh tokens by their hash; raw token strings never
// reach the database.
type Repository interface {
	// Create stores a token hash for userID with an expiry of now+validity.
	Create(ctx context.Context, userID string, tokenHash string, validity time.Duration) error

	// Find returns common.ErrNotFound when the hash is unknown.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Delete removes one token. Deleting an absent token is not an error.
	Delete(ctx context.Context, tokenHash string) error

	// DeleteForUser revokes every token of userID.
	DeleteForUser(ctx context.Context, userID string) error
}
