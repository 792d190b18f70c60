package mutations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zelebiz/zelebiz/internal/common"
	"github.com/zelebiz/zelebiz/internal/dbx"
	"github.com/zelebiz/zelebiz/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Claim(ctx context.Context, m *models.AppliedMutation) (bool, error) {
	query := `
		INSERT INTO applied_mutations (user_id, key, entity, entity_id, action)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, key) DO NOTHING
		RETURNING applied_at
	`
	err := r.db.QueryRowContext(ctx, query, m.UserID, m.Key, m.Entity, m.EntityID, string(m.Action)).Scan(&m.AppliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) Find(ctx context.Context, userID, key string) (*models.AppliedMutation, error) {
	query := `
		SELECT entity, entity_id, action, version, applied_at
		FROM applied_mutations
		WHERE user_id = $1 AND key = $2
	`
	m := &models.AppliedMutation{UserID: userID, Key: key}
	var action string
	err := r.db.QueryRowContext(ctx, query, userID, key).Scan(&m.Entity, &m.EntityID, &action, &m.Version, &m.AppliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.Action = models.Action(action)
	return m, nil
}

func (r *PostgresRepository) SetVersion(ctx context.Context, userID, key string, version int64) error {
	query := `
		UPDATE applied_mutations SET version = $3
		WHERE user_id = $1 AND key = $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, key, version); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
