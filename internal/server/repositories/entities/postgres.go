package entities

import (
	"context"
	"database/sql"
	"encoding/json"
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

func (r *PostgresRepository) Get(ctx context.Context, userID, entity, id string) (*models.Entity, error) {
	query := `
		SELECT value, version, deleted, updated_at
		FROM entities
		WHERE user_id = $1 AND entity = $2 AND id = $3
	`
	e := &models.Entity{UserID: userID, Entity: entity, ID: id}
	var value []byte
	err := r.db.QueryRowContext(ctx, query, userID, entity, id).Scan(&value, &e.Version, &e.Deleted, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	e.Value = json.RawMessage(value)
	return e, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, userID, entity, id string, value json.RawMessage) (int64, error) {
	query := `
		INSERT INTO entities (user_id, entity, id, value)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (user_id, entity, id) DO UPDATE
		SET value = excluded.value, deleted = FALSE, version = entities.version + 1, updated_at = now()
		WHERE entities.deleted
		RETURNING version
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, userID, entity, id, string(value)).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s/%s already exists: %w", entity, id, common.ErrConflict)
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID, entity, id string, value json.RawMessage) (int64, error) {
	query := `
		UPDATE entities
		SET value = $4::jsonb, version = version + 1, updated_at = now()
		WHERE user_id = $1 AND entity = $2 AND id = $3 AND NOT deleted
		RETURNING version
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, userID, entity, id, string(value)).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%s/%s: %w", entity, id, common.ErrNotFound)
		}
		return 0, fmt.Errorf("db error: %w", err)
	}
	return version, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, entity, id string) (int64, bool, error) {
	query := `
		UPDATE entities
		SET deleted = TRUE, value = 'null'::jsonb, version = version + 1, updated_at = now()
		WHERE user_id = $1 AND entity = $2 AND id = $3 AND NOT deleted
		RETURNING version
	`
	var version int64
	err := r.db.QueryRowContext(ctx, query, userID, entity, id).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("db error: %w", err)
	}
	return version, true, nil
}
